package storage

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// MemoryStore keeps encoded records in maps. Safe for concurrent use.
type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	controllers map[string][]byte
	history     map[string][]float64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.controllers = make(map[string][]byte)
	s.history = make(map[string][]float64)
	return nil
}

func (s *MemoryStore) SaveControllers(_ context.Context, record ControllerRecord) error {
	payload, err := EncodeControllerRecord(record)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return errNotInitialized
	}
	s.controllers[record.Name] = payload
	return nil
}

func (s *MemoryStore) GetControllers(_ context.Context, name string) (ControllerRecord, bool, error) {
	s.mu.RLock()
	payload, ok := s.controllers[name]
	s.mu.RUnlock()
	if !ok {
		return ControllerRecord{}, false, nil
	}

	record, err := DecodeControllerRecord(payload)
	if err != nil {
		return ControllerRecord{}, false, err
	}
	return record, true, nil
}

func (s *MemoryStore) ListControllers(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.controllers))
	for name := range s.controllers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *MemoryStore) DeleteControllers(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.controllers, name)
	return nil
}

func (s *MemoryStore) SaveFitnessHistory(_ context.Context, runID string, history []float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return errNotInitialized
	}

	s.history[runID] = append([]float64(nil), history...)
	return nil
}

func (s *MemoryStore) GetFitnessHistory(_ context.Context, runID string) ([]float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.history[runID]
	if !ok {
		return nil, false, nil
	}
	return append([]float64(nil), history...), true, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

var errNotInitialized = errors.New("store is not initialized")
