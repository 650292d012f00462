package telemetry

import "testing"

func hasBookmark(bookmarks []Bookmark, typ BookmarkType) bool {
	for _, b := range bookmarks {
		if b.Type == typ {
			return true
		}
	}
	return false
}

func TestBookmarkDetector_Breakthrough(t *testing.T) {
	bd := NewBookmarkDetector(10)

	for i := 0; i < 5; i++ {
		bd.Check(GenerationStats{Generation: i, Best: 1.0, Mean: 0.8})
	}

	bookmarks := bd.Check(GenerationStats{Generation: 5, Best: 1.5, Mean: 0.9})
	if !hasBookmark(bookmarks, BookmarkBreakthrough) {
		t.Error("expected fitness_breakthrough bookmark")
	}
}

func TestBookmarkDetector_NoBreakthroughOnSmallGain(t *testing.T) {
	bd := NewBookmarkDetector(10)

	for i := 0; i < 5; i++ {
		bd.Check(GenerationStats{Generation: i, Best: 1.0, Mean: 0.8})
	}

	bookmarks := bd.Check(GenerationStats{Generation: 5, Best: 1.05, Mean: 0.8})
	if hasBookmark(bookmarks, BookmarkBreakthrough) {
		t.Error("5% gain should not be a breakthrough")
	}
}

func TestBookmarkDetector_Collapse(t *testing.T) {
	bd := NewBookmarkDetector(10)

	for i := 0; i < 4; i++ {
		bd.Check(GenerationStats{Generation: i, Best: 2.0, Mean: 1.8})
	}

	bookmarks := bd.Check(GenerationStats{Generation: 4, Best: 1.9, Mean: 0.5})
	if !hasBookmark(bookmarks, BookmarkCollapse) {
		t.Error("expected collapse bookmark")
	}
}

func TestBookmarkDetector_StagnationFiresOnce(t *testing.T) {
	bd := NewBookmarkDetector(5)

	bd.Check(GenerationStats{Generation: 0, Best: 1.0, Mean: 0.9})
	count := 0
	for i := 1; i <= 12; i++ {
		if hasBookmark(bd.Check(GenerationStats{Generation: i, Best: 1.0, Mean: 0.9}), BookmarkStagnation) {
			count++
		}
	}
	if count != 1 {
		t.Errorf("stagnation fired %d times, want 1", count)
	}

	// Improvement re-arms the detector
	bd.Check(GenerationStats{Generation: 13, Best: 1.2, Mean: 0.9})
	count = 0
	for i := 14; i <= 20; i++ {
		if hasBookmark(bd.Check(GenerationStats{Generation: i, Best: 1.2, Mean: 0.9}), BookmarkStagnation) {
			count++
		}
	}
	if count != 1 {
		t.Errorf("stagnation fired %d times after improvement, want 1", count)
	}
}
