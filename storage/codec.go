package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pthm-cable/ringsoup/config"
	"github.com/pthm-cable/ringsoup/genome"
	"github.com/pthm-cable/ringsoup/neural"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

// VersionedRecord tags every persisted record.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// ControllerBlob is one controller's architecture and flat parameter vector.
type ControllerBlob struct {
	Arch   neural.Architecture `json:"arch"`
	Params []float64           `json:"params"`
}

// ControllerRecord is a named pair of controllers with provenance.
type ControllerRecord struct {
	VersionedRecord
	Name       string         `json:"name"`
	Action     ControllerBlob `json:"action"`
	Prediction ControllerBlob `json:"prediction"`
	Fitness    float64        `json:"fitness"`
	RingLength float64        `json:"ring_length,omitempty"`
	RunID      string         `json:"run_id,omitempty"`
}

// NewControllerRecord captures a genome's controllers under name.
func NewControllerRecord(name string, g *genome.Genome) ControllerRecord {
	return ControllerRecord{
		VersionedRecord: VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion},
		Name:            name,
		Action:          ControllerBlob{Arch: g.Action.Architecture(), Params: g.Action.ToVector()},
		Prediction:      ControllerBlob{Arch: g.Prediction.Architecture(), Params: g.Prediction.ToVector()},
		Fitness:         g.Fitness,
	}
}

func EncodeControllerRecord(r ControllerRecord) ([]byte, error) {
	return json.Marshal(r)
}

// DecodeControllerRecord parses and validates a record: versions must match and
// every parameter vector must fit its architecture.
func DecodeControllerRecord(data []byte) (ControllerRecord, error) {
	var record ControllerRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return ControllerRecord{}, err
	}
	if err := checkVersion(record.VersionedRecord); err != nil {
		return ControllerRecord{}, err
	}
	if err := record.Validate(); err != nil {
		return ControllerRecord{}, err
	}
	return record, nil
}

// Validate checks both blobs against their architectures.
func (r ControllerRecord) Validate() error {
	if err := r.Action.validate(false); err != nil {
		return fmt.Errorf("action controller: %w", err)
	}
	if err := r.Prediction.validate(true); err != nil {
		return fmt.Errorf("prediction controller: %w", err)
	}
	return nil
}

func (b ControllerBlob) validate(recurrent bool) error {
	if b.Arch.Recurrent != recurrent {
		return fmt.Errorf("%w: recurrent = %v", neural.ErrShapeMismatch, b.Arch.Recurrent)
	}
	if err := b.Arch.Validate(); err != nil {
		return err
	}
	if len(b.Params) != b.Arch.TotalSize() {
		return fmt.Errorf("%w: got %d parameters, want %d", neural.ErrShapeMismatch, len(b.Params), b.Arch.TotalSize())
	}
	return nil
}

// Controllers rebuilds both controllers from the record.
func (r ControllerRecord) Controllers() (*neural.ActionController, *neural.PredictionController, error) {
	if err := r.Validate(); err != nil {
		return nil, nil, err
	}
	ac, err := r.Action.controller()
	if err != nil {
		return nil, nil, fmt.Errorf("action controller: %w", err)
	}
	pc, err := r.Prediction.controller()
	if err != nil {
		return nil, nil, fmt.Errorf("prediction controller: %w", err)
	}
	action, ok := ac.(*neural.ActionController)
	if !ok {
		return nil, nil, fmt.Errorf("action controller: %w: got %T", neural.ErrShapeMismatch, ac)
	}
	prediction, ok := pc.(*neural.PredictionController)
	if !ok {
		return nil, nil, fmt.Errorf("prediction controller: %w: got %T", neural.ErrShapeMismatch, pc)
	}
	return action, prediction, nil
}

func (b ControllerBlob) controller() (neural.Controller, error) {
	c, err := neural.New(b.Arch)
	if err != nil {
		return nil, err
	}
	if err := c.FromVector(b.Params); err != nil {
		return nil, err
	}
	return c, nil
}

// Genome rebuilds a genome without agents from the record.
func (r ControllerRecord) Genome(alloc *genome.IDAllocator, params genome.AgentParams) (*genome.Genome, error) {
	action, prediction, err := r.Controllers()
	if err != nil {
		return nil, fmt.Errorf("controllers %q: %w", r.Name, err)
	}
	g := genome.New(alloc, r.Name, action, prediction, params)
	g.Fitness = r.Fitness
	return g, nil
}

// GenomeFor rebuilds a genome without agents for cfg. Both stored
// architectures must equal the ones cfg derives, or the error wraps
// neural.ErrShapeMismatch.
func (r ControllerRecord) GenomeFor(alloc *genome.IDAllocator, cfg *config.Config) (*genome.Genome, error) {
	action, prediction := genome.Architectures(cfg)
	if r.Action.Arch != action {
		return nil, fmt.Errorf("controllers %q: %w: stored action %+v, config needs %+v",
			r.Name, neural.ErrShapeMismatch, r.Action.Arch, action)
	}
	if r.Prediction.Arch != prediction {
		return nil, fmt.Errorf("controllers %q: %w: stored prediction %+v, config needs %+v",
			r.Name, neural.ErrShapeMismatch, r.Prediction.Arch, prediction)
	}
	return r.Genome(alloc, genome.ParamsFromConfig(cfg))
}

func EncodeFitnessHistory(history []float64) ([]byte, error) {
	return json.Marshal(history)
}

func DecodeFitnessHistory(data []byte) ([]float64, error) {
	var history []float64
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, err
	}
	return history, nil
}

func checkVersion(v VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
