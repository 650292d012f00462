package telemetry

import (
	"fmt"
	"log/slog"
)

// BookmarkType identifies the type of bookmark.
type BookmarkType string

const (
	BookmarkBreakthrough BookmarkType = "fitness_breakthrough"
	BookmarkStagnation   BookmarkType = "stagnation"
	BookmarkCollapse     BookmarkType = "collapse"
)

// Bookmark represents an automatically triggered bookmark.
type Bookmark struct {
	Type        BookmarkType `csv:"type"`
	Length      float64      `csv:"ring_length"`
	Run         int          `csv:"run"`
	Generation  int          `csv:"generation"`
	Description string       `csv:"description"`
}

// LogBookmark logs the bookmark using slog.
func (b Bookmark) LogBookmark() {
	slog.Info("bookmark",
		"type", string(b.Type),
		"length", b.Length,
		"run", b.Run,
		"gen", b.Generation,
		"description", b.Description,
	)
}

// BookmarkDetector flags notable generations of one evolution run.
type BookmarkDetector struct {
	// Rolling history (circular buffer)
	history     []GenerationStats
	historySize int
	historyIdx  int
	historyFull bool

	bestSoFar      float64
	seen           bool
	sinceImprove   int
	stagnationSent bool
}

// NewBookmarkDetector creates a detector with the given history size.
func NewBookmarkDetector(historySize int) *BookmarkDetector {
	if historySize < 5 {
		historySize = 5 // minimum for stagnation detection
	}
	return &BookmarkDetector{
		history:     make([]GenerationStats, historySize),
		historySize: historySize,
	}
}

// Check analyzes the latest generation and returns any triggered bookmarks.
func (bd *BookmarkDetector) Check(stats GenerationStats) []Bookmark {
	var bookmarks []Bookmark

	if len(bd.getHistory()) >= 3 {
		if b := bd.checkBreakthrough(stats); b != nil {
			bookmarks = append(bookmarks, *b)
		}
		if b := bd.checkCollapse(stats); b != nil {
			bookmarks = append(bookmarks, *b)
		}
	}

	if !bd.seen || stats.Best > bd.bestSoFar {
		bd.bestSoFar = stats.Best
		bd.seen = true
		bd.sinceImprove = 0
		bd.stagnationSent = false
	} else {
		bd.sinceImprove++
	}
	if b := bd.checkStagnation(stats); b != nil {
		bookmarks = append(bookmarks, *b)
	}

	bd.addToHistory(stats)
	return bookmarks
}

func (bd *BookmarkDetector) addToHistory(stats GenerationStats) {
	bd.history[bd.historyIdx] = stats
	bd.historyIdx = (bd.historyIdx + 1) % bd.historySize
	if bd.historyIdx == 0 {
		bd.historyFull = true
	}
}

func (bd *BookmarkDetector) getHistory() []GenerationStats {
	if bd.historyFull {
		return bd.history
	}
	return bd.history[:bd.historyIdx]
}

func (bd *BookmarkDetector) rollingMeanBest() float64 {
	history := bd.getHistory()
	var sum float64
	for _, h := range history {
		sum += h.Best
	}
	return sum / float64(len(history))
}

// checkBreakthrough: best exceeds the rolling mean of recent bests by more than 10%.
func (bd *BookmarkDetector) checkBreakthrough(stats GenerationStats) *Bookmark {
	avg := bd.rollingMeanBest()
	if avg <= 0 || stats.Best <= avg*1.1 {
		return nil
	}
	return &Bookmark{
		Type:        BookmarkBreakthrough,
		Length:      stats.Length,
		Run:         stats.Run,
		Generation:  stats.Generation,
		Description: fmt.Sprintf("best %.4f vs rolling avg %.4f", stats.Best, avg),
	}
}

// checkCollapse: mean fitness fell below half of the rolling mean of bests.
func (bd *BookmarkDetector) checkCollapse(stats GenerationStats) *Bookmark {
	avg := bd.rollingMeanBest()
	if avg <= 0 || stats.Mean >= avg*0.5 {
		return nil
	}
	return &Bookmark{
		Type:        BookmarkCollapse,
		Length:      stats.Length,
		Run:         stats.Run,
		Generation:  stats.Generation,
		Description: fmt.Sprintf("mean %.4f vs rolling best %.4f", stats.Mean, avg),
	}
}

// checkStagnation fires once per plateau, after historySize generations without improvement.
func (bd *BookmarkDetector) checkStagnation(stats GenerationStats) *Bookmark {
	if bd.stagnationSent || bd.sinceImprove < bd.historySize {
		return nil
	}
	bd.stagnationSent = true
	return &Bookmark{
		Type:        BookmarkStagnation,
		Length:      stats.Length,
		Run:         stats.Run,
		Generation:  stats.Generation,
		Description: fmt.Sprintf("no improvement over %.4f for %d generations", bd.bestSoFar, bd.sinceImprove),
	}
}
