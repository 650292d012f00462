package telemetry

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"sort"
)

// HallEntry is one candidate parameter vector together with where it came from.
type HallEntry struct {
	Params     []float64 `json:"params"`
	Fitness    float64   `json:"fitness"`
	Length     float64   `json:"ring_length"`
	Run        int       `json:"run"`
	Generation int       `json:"generation"`
}

// HallOfFame keeps the best candidates seen, sorted by descending fitness.
type HallOfFame struct {
	entries []HallEntry
	maxSize int
	rng     *rand.Rand
}

// NewHallOfFame creates a hall of fame with the given capacity.
func NewHallOfFame(maxSize int, rng *rand.Rand) *HallOfFame {
	if maxSize < 1 {
		maxSize = 1
	}
	return &HallOfFame{
		entries: make([]HallEntry, 0, maxSize),
		maxSize: maxSize,
		rng:     rng,
	}
}

// Consider offers a candidate. The parameter slice is copied.
// Returns true if the candidate was added.
func (hof *HallOfFame) Consider(entry HallEntry) bool {
	// Find insertion point (sorted descending by fitness)
	idx := sort.Search(len(hof.entries), func(i int) bool {
		return hof.entries[i].Fitness < entry.Fitness
	})

	// If hall is full and entry would be last (lowest), skip it
	if len(hof.entries) >= hof.maxSize && idx >= hof.maxSize {
		return false
	}

	entry.Params = append([]float64(nil), entry.Params...)
	hof.entries = append(hof.entries, HallEntry{})
	copy(hof.entries[idx+1:], hof.entries[idx:])
	hof.entries[idx] = entry

	if len(hof.entries) > hof.maxSize {
		hof.entries = hof.entries[:hof.maxSize]
	}
	return true
}

// Sample selects an entry using tournament selection (k=3).
// Returns nil if the hall is empty.
func (hof *HallOfFame) Sample() *HallEntry {
	if len(hof.entries) == 0 || hof.rng == nil {
		return hof.Best()
	}

	const tournamentSize = 3
	var best *HallEntry
	for i := 0; i < tournamentSize && i < len(hof.entries); i++ {
		candidate := &hof.entries[hof.rng.Intn(len(hof.entries))]
		if best == nil || candidate.Fitness > best.Fitness {
			best = candidate
		}
	}

	out := *best
	out.Params = append([]float64(nil), best.Params...)
	return &out
}

// Best returns a copy of the top entry, or nil if the hall is empty.
func (hof *HallOfFame) Best() *HallEntry {
	if len(hof.entries) == 0 {
		return nil
	}
	out := hof.entries[0]
	out.Params = append([]float64(nil), out.Params...)
	return &out
}

// Entries returns the entries in descending fitness order.
func (hof *HallOfFame) Entries() []HallEntry {
	return append([]HallEntry(nil), hof.entries...)
}

// Size returns the number of entries.
func (hof *HallOfFame) Size() int { return len(hof.entries) }

// TopFitness returns the highest fitness, or 0 if the hall is empty.
func (hof *HallOfFame) TopFitness() float64 {
	if len(hof.entries) == 0 {
		return 0
	}
	return hof.entries[0].Fitness
}

// MarshalJSON serializes the entries.
func (hof *HallOfFame) MarshalJSON() ([]byte, error) {
	return json.MarshalIndent(hof.entries, "", "  ")
}

// LoadHallOfFameFromFile reads a hall of fame JSON file.
func LoadHallOfFameFromFile(path string, rng *rand.Rand) (*HallOfFame, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading hall of fame: %w", err)
	}

	var raw []HallEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing hall of fame JSON: %w", err)
	}

	hof := NewHallOfFame(len(raw), rng)
	for _, e := range raw {
		hof.Consider(e)
	}
	return hof, nil
}
