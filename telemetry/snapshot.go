package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// SnapshotVersion is incremented when the format changes.
const SnapshotVersion = 1

// Snapshot holds the state of one genome's agents on the ring.
type Snapshot struct {
	Version    int     `json:"version"`
	Seed       int64   `json:"seed"`
	RingLength float64 `json:"ring_length"`
	Tick       int     `json:"tick"`

	Genome  string       `json:"genome"`
	Fitness float64      `json:"fitness"`
	Agents  []AgentState `json:"agents"`
}

// AgentState holds one agent's run state.
type AgentState struct {
	ID               uint32    `json:"id"`
	Position         float64   `json:"position"`
	Direction        int       `json:"direction"`
	Surprise         int       `json:"surprise"`
	Activation       []bool    `json:"activation"`
	Predicted        []bool    `json:"predicted"`
	ActivationCounts []int     `json:"activation_counts"`
	Recurrent        []float64 `json:"recurrent,omitempty"`
}

// SaveSnapshot writes a snapshot to dir as snapshot_{genome}_{tick}.json.
// Returns the filepath where it was saved.
func SaveSnapshot(snapshot *Snapshot, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("snapshot_%s_%d.json", snapshot.Genome, snapshot.Tick))

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}

	return path, nil
}

// LoadSnapshot reads a snapshot from disk.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if snapshot.Version != SnapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", snapshot.Version)
	}

	return &snapshot, nil
}
