// Package components defines ECS components for the ring world.
package components

import (
	"github.com/pthm-cable/ringsoup/agent"
	"github.com/pthm-cable/ringsoup/genome"
)

// Position is an entity's coordinate along the ring, in [0, ring length).
type Position struct {
	X float64
}

// Occupant links an entity to the genome and agent it represents.
// The agent's Position mirrors the entity's Position after every world update.
type Occupant struct {
	Genome genome.ID
	Agent  *agent.Agent
}
