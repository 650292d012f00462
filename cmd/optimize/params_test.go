package main

import (
	"testing"

	"github.com/pthm-cable/ringsoup/config"
)

func TestParseLengths(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    []float64
		wantErr bool
	}{
		{"empty", "", nil, false},
		{"single", "25", []float64{25}, false},
		{"list with spaces", "5, 12.5,25", []float64{5, 12.5, 25}, false},
		{"not a number", "5,x", nil, true},
		{"non-positive", "5,0", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseLengths(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("got %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestApplyOverrides(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	gens := cfg.Evolution.MaxGenerations

	applied, err := ApplyOverrides(cfg, map[string]float64{
		"generations": -1,
		"runs":        3,
		"step-size":   0.25,
	})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Evolution.MaxGenerations != gens {
		t.Errorf("negative value changed max_generations to %d", cfg.Evolution.MaxGenerations)
	}
	if cfg.Evolution.Runs != 3 || cfg.Evolution.StepSize != 0.25 {
		t.Errorf("runs = %d, step_size = %v", cfg.Evolution.Runs, cfg.Evolution.StepSize)
	}
	if len(applied) != 2 {
		t.Errorf("applied = %v", applied)
	}

	if _, err := ApplyOverrides(cfg, map[string]float64{"agents": 0.5}); err == nil {
		t.Error("expected out-of-range error")
	}
}
