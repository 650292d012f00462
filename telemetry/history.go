package telemetry

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/gocarina/gocsv"
)

// HistoryRow is one recorded agent position.
// Segment increases whenever the trajectory wraps around the ring, so a
// plotter can draw each segment as one continuous line.
type HistoryRow struct {
	Agent    uint32  `csv:"agent"`
	Tick     int     `csv:"tick"`
	Segment  int     `csv:"segment"`
	Position float64 `csv:"position"`
}

// HistoryRows converts an agent's positions (oldest first) into rows, starting
// a new segment whenever consecutive positions differ by more than maxJump.
// firstTick is the tick of positions[0].
func HistoryRows(agent uint32, positions []float64, maxJump float64, firstTick int) []HistoryRow {
	rows := make([]HistoryRow, len(positions))
	segment := 0
	for i, p := range positions {
		if i > 0 && math.Abs(p-positions[i-1]) > maxJump {
			segment++
		}
		rows[i] = HistoryRow{Agent: agent, Tick: firstTick + i, Segment: segment, Position: p}
	}
	return rows
}

// WriteHistory writes rows with a header.
func WriteHistory(w io.Writer, rows []HistoryRow) error {
	if err := gocsv.Marshal(rows, w); err != nil {
		return fmt.Errorf("writing history: %w", err)
	}
	return nil
}

// WriteHistoryFile writes rows to path, replacing any existing file.
func WriteHistoryFile(path string, rows []HistoryRow) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := WriteHistory(f, rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
