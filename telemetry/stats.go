package telemetry

import (
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// GenerationStats summarises the candidate fitnesses of one generation.
type GenerationStats struct {
	RunID      string  `csv:"run_id"`
	Length     float64 `csv:"ring_length"`
	Run        int     `csv:"run"`
	Generation int     `csv:"generation"`

	Candidates int     `csv:"candidates"`
	Best       float64 `csv:"best"`
	Mean       float64 `csv:"mean"`
	Std        float64 `csv:"std"`
	P10        float64 `csv:"p10"`
	P50        float64 `csv:"p50"`
	P90        float64 `csv:"p90"`

	// Best fitness seen since the run started
	BestSoFar float64 `csv:"best_so_far"`
	ElapsedMS int64   `csv:"elapsed_ms"`
}

// ScoreRecord holds the post-evolution metrics of one final candidate.
type ScoreRecord struct {
	RunID     string  `csv:"run_id"`
	Length    float64 `csv:"ring_length"`
	Run       int     `csv:"run"`
	Candidate int     `csv:"candidate"`
	Fitness   float64 `csv:"fitness"`
	Distance  float64 `csv:"covered_distance"`
	Entropy   float64 `csv:"sensor_entropy"`
	Ratio     float64 `csv:"cluster_ratio"`
}

// Percentile calculates the p-th percentile of a sorted slice.
// p should be in [0, 1]. Returns 0 if slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	// Linear interpolation
	idx := p * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// ComputeFitnessStats fills the distribution fields of s from values.
// An empty slice leaves them zero.
func (s *GenerationStats) ComputeFitnessStats(values []float64) {
	s.Candidates = len(values)
	if len(values) == 0 {
		return
	}

	s.Best = floats.Max(values)
	if len(values) > 1 {
		s.Mean, s.Std = stat.MeanStdDev(values, nil)
	} else {
		s.Mean = values[0]
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	s.P10 = Percentile(sorted, 0.10)
	s.P50 = Percentile(sorted, 0.50)
	s.P90 = Percentile(sorted, 0.90)
}

// LogValue implements slog.LogValuer for structured logging.
func (s GenerationStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("run_id", s.RunID),
		slog.Float64("ring_length", s.Length),
		slog.Int("run", s.Run),
		slog.Int("generation", s.Generation),
		slog.Int("candidates", s.Candidates),
		slog.Float64("best", s.Best),
		slog.Float64("mean", s.Mean),
		slog.Float64("std", s.Std),
		slog.Float64("p50", s.P50),
		slog.Float64("best_so_far", s.BestSoFar),
		slog.Int64("elapsed_ms", s.ElapsedMS),
	)
}

// LogStats logs the generation stats using slog.
func (s GenerationStats) LogStats() {
	slog.Info("generation",
		"length", s.Length,
		"run", s.Run,
		"gen", s.Generation,
		"best", s.Best,
		"mean", s.Mean,
		"std", s.Std,
		"best_so_far", s.BestSoFar,
		"elapsed_ms", s.ElapsedMS,
	)
}

// LogValue implements slog.LogValuer for structured logging.
func (r ScoreRecord) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("candidate", r.Candidate),
		slog.Float64("fitness", r.Fitness),
		slog.Float64("covered_distance", r.Distance),
		slog.Float64("sensor_entropy", r.Entropy),
		slog.Float64("cluster_ratio", r.Ratio),
	)
}
