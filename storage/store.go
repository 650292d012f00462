// Package storage persists trained controllers and evolution histories.
package storage

import "context"

// Store saves named controller records and per-run fitness histories.
type Store interface {
	Init(ctx context.Context) error
	SaveControllers(ctx context.Context, record ControllerRecord) error
	GetControllers(ctx context.Context, name string) (ControllerRecord, bool, error)
	ListControllers(ctx context.Context) ([]string, error)
	DeleteControllers(ctx context.Context, name string) error
	SaveFitnessHistory(ctx context.Context, runID string, history []float64) error
	GetFitnessHistory(ctx context.Context, runID string) ([]float64, bool, error)
	Close() error
}
