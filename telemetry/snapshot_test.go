package telemetry

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSnapshotSaveLoad(t *testing.T) {
	tmpDir := t.TempDir()

	snapshot := &Snapshot{
		Version:    SnapshotVersion,
		Seed:       42,
		RingLength: 25,
		Tick:       500,
		Genome:     "best",
		Fitness:    3.2,
		Agents: []AgentState{
			{
				ID:               1,
				Position:         12.5,
				Direction:        1,
				Surprise:         1600,
				Activation:       []bool{true, false, false, true},
				Predicted:        []bool{true, false, false, false},
				ActivationCounts: []int{250, 0, 3, 120},
				Recurrent:        []float64{0.1, -0.4},
			},
		},
	}

	path, err := SaveSnapshot(snapshot, tmpDir)
	if err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}
	if filepath.Base(path) != "snapshot_best_500.json" {
		t.Errorf("unexpected file name %s", filepath.Base(path))
	}

	loaded, err := LoadSnapshot(path)
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}

	if loaded.RingLength != 25 || loaded.Tick != 500 || loaded.Seed != 42 {
		t.Errorf("header mismatch: %+v", loaded)
	}
	if len(loaded.Agents) != 1 {
		t.Fatalf("expected 1 agent, got %d", len(loaded.Agents))
	}
	a := loaded.Agents[0]
	if a.Position != 12.5 || a.Direction != 1 || a.Surprise != 1600 {
		t.Errorf("agent mismatch: %+v", a)
	}
	if !a.Activation[3] || a.ActivationCounts[3] != 120 || a.Recurrent[1] != -0.4 {
		t.Errorf("agent slices mismatch: %+v", a)
	}
}

func TestLoadSnapshotRejectsVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.json")
	if err := os.WriteFile(path, []byte(`{"version": 99}`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSnapshot(path); err == nil {
		t.Error("expected error for unknown version")
	}
}
