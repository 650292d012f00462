package telemetry

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/ringsoup/config"
)

// Metric stream kinds.
const (
	KindGenFitness = "gen_fitness" // x: generation, y: best fitness of that generation
	KindFitness    = "fitness"     // x: ring length, y: best fitness of a run
	KindDistance   = "distance"    // x: ring length, y: covered distance
	KindEntropy    = "entropy"     // x: ring length, y: sensor entropy
	KindRatio      = "ratio"       // x: ring length, y: largest-cluster ratio
)

// Point is one (x, y) row of a metric stream.
type Point struct {
	X float64 `csv:"x"`
	Y float64 `csv:"y"`
}

// MetricPath returns {dir}/{prefix}_{kind}_L={length}.csv.
func MetricPath(dir, prefix, kind string, length float64) string {
	name := fmt.Sprintf("%s_%s_L=%s.csv", prefix, kind, strconv.FormatFloat(length, 'g', -1, 64))
	return filepath.Join(dir, name)
}

// MetricWriter appends points to one metric stream file.
type MetricWriter struct {
	path string
	f    *os.File
}

// OpenMetric opens (or creates) a metric stream for appending.
// A new file starts with a comment line naming the stream.
func OpenMetric(dir, prefix, kind string, length float64) (*MetricWriter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	path := MetricPath(dir, prefix, kind, length)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Size() == 0 {
		if _, err := fmt.Fprintf(f, "# %s L=%s\n", kind, strconv.FormatFloat(length, 'g', -1, 64)); err != nil {
			f.Close()
			return nil, fmt.Errorf("writing %s: %w", path, err)
		}
	}
	return &MetricWriter{path: path, f: f}, nil
}

// Append writes points as headerless x,y rows.
func (m *MetricWriter) Append(points ...Point) error {
	if len(points) == 0 {
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(points, m.f); err != nil {
		return fmt.Errorf("writing %s: %w", m.path, err)
	}
	return nil
}

// Path returns the stream file path.
func (m *MetricWriter) Path() string { return m.path }

// Close closes the stream file.
func (m *MetricWriter) Close() error { return m.f.Close() }

// ReadPoints reads a metric stream, ignoring lines that start with '#'.
func ReadPoints(path string) ([]Point, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	return DecodePoints(f)
}

// DecodePoints parses headerless x,y rows, ignoring '#' comment lines.
func DecodePoints(r io.Reader) ([]Point, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	var points []Point
	if err := gocsv.UnmarshalCSVWithoutHeaders(cr, &points); err != nil {
		return nil, fmt.Errorf("parsing points: %w", err)
	}
	return points, nil
}

// OutputManager handles structured experiment output: per-kind metric streams
// keyed by ring length, plus the generation and score logs.
// A nil *OutputManager discards everything.
type OutputManager struct {
	dir    string
	prefix string

	streams map[string]*MetricWriter

	generationFile *os.File
	scoreFile      *os.File
	perfFile       *os.File
	bookmarkFile   *os.File

	// Track if headers have been written
	generationHeaderWritten bool
	scoreHeaderWritten      bool
	perfHeaderWritten       bool
	bookmarkHeaderWritten   bool
}

// NewOutputManager creates a new output manager and initializes the output directory.
// Returns nil if dir is empty (output disabled).
func NewOutputManager(dir, prefix string) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	om := &OutputManager{dir: dir, prefix: prefix, streams: make(map[string]*MetricWriter)}

	var err error
	if om.generationFile, err = om.create("generations.csv"); err != nil {
		return nil, err
	}
	if om.scoreFile, err = om.create("scores.csv"); err != nil {
		om.Close()
		return nil, err
	}
	if om.perfFile, err = om.create("perf.csv"); err != nil {
		om.Close()
		return nil, err
	}
	if om.bookmarkFile, err = om.create("bookmarks.csv"); err != nil {
		om.Close()
		return nil, err
	}

	return om, nil
}

func (om *OutputManager) create(name string) (*os.File, error) {
	f, err := os.Create(filepath.Join(om.dir, om.fileName(name)))
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", name, err)
	}
	return f, nil
}

func (om *OutputManager) fileName(name string) string {
	if om.prefix == "" {
		return name
	}
	return om.prefix + "_" + name
}

// WriteConfig saves the current configuration as YAML.
func (om *OutputManager) WriteConfig(cfg *config.Config) error {
	if om == nil {
		return nil
	}
	return cfg.WriteYAML(filepath.Join(om.dir, om.fileName("config.yaml")))
}

// AppendPoint appends one point to the (kind, length) stream, opening it on first use.
func (om *OutputManager) AppendPoint(kind string, length float64, p Point) error {
	if om == nil {
		return nil
	}
	key := kind + "@" + strconv.FormatFloat(length, 'g', -1, 64)
	m, ok := om.streams[key]
	if !ok {
		var err error
		m, err = OpenMetric(om.dir, om.prefix, kind, length)
		if err != nil {
			return err
		}
		om.streams[key] = m
	}
	return m.Append(p)
}

// WriteGeneration writes a generation record to generations.csv.
func (om *OutputManager) WriteGeneration(stats GenerationStats) error {
	if om == nil {
		return nil
	}
	return writeRecord(om.generationFile, []GenerationStats{stats}, &om.generationHeaderWritten, "generation")
}

// WriteScore writes a score record to scores.csv.
func (om *OutputManager) WriteScore(r ScoreRecord) error {
	if om == nil {
		return nil
	}
	return writeRecord(om.scoreFile, []ScoreRecord{r}, &om.scoreHeaderWritten, "score")
}

// WritePerf writes a performance stats record to perf.csv.
func (om *OutputManager) WritePerf(stats PerfStats, windowEnd int64) error {
	if om == nil {
		return nil
	}
	return writeRecord(om.perfFile, []PerfRecord{stats.Record(windowEnd)}, &om.perfHeaderWritten, "perf")
}

// WriteBookmark writes a bookmark record to bookmarks.csv.
func (om *OutputManager) WriteBookmark(b Bookmark) error {
	if om == nil {
		return nil
	}
	return writeRecord(om.bookmarkFile, []Bookmark{b}, &om.bookmarkHeaderWritten, "bookmark")
}

// writeRecord marshals records, including the header on the first write only.
func writeRecord(f *os.File, records any, headerWritten *bool, what string) error {
	if !*headerWritten {
		if err := gocsv.Marshal(records, f); err != nil {
			return fmt.Errorf("writing %s: %w", what, err)
		}
		*headerWritten = true
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(records, f); err != nil {
		return fmt.Errorf("writing %s: %w", what, err)
	}
	return nil
}

// WriteHallOfFame saves the hall of fame as JSON.
func (om *OutputManager) WriteHallOfFame(hof *HallOfFame) error {
	if om == nil || hof == nil {
		return nil
	}

	hofPath := filepath.Join(om.dir, om.fileName("hall_of_fame.json"))
	data, err := hof.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshaling hall of fame: %w", err)
	}

	if err := os.WriteFile(hofPath, data, 0644); err != nil {
		return fmt.Errorf("writing hall_of_fame.json: %w", err)
	}

	return nil
}

// Dir returns the output directory path.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// Close flushes and closes all output files.
func (om *OutputManager) Close() error {
	if om == nil {
		return nil
	}

	var firstErr error
	for _, f := range []*os.File{om.generationFile, om.scoreFile, om.perfFile, om.bookmarkFile} {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, m := range om.streams {
		if err := m.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}
