package result

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/segmentio/encoding/json"
	"github.com/signalnine/stabilizer/internal/stability"
)

var (
	ErrNoRunFiles       = errors.New("no run files found")
	ErrInconsistentRuns = errors.New("run files disagree on their benchmarks")
)

const runFileExt = ".csv"

// Batch is the content of a run directory regrouped per benchmark.
// Samples keep the row order of the first run file.
type Batch struct {
	Files   []string
	Samples []stability.Sample
}

func CreateRunDir(baseDir string) (string, error) {
	runsDir := filepath.Join(baseDir, "runs")
	stamp := time.Now().UTC().Format("2006-01-02T15-04-05")
	runDir := filepath.Join(runsDir, stamp)
	runDir, err := filepath.Abs(runDir)
	if err != nil {
		return "", fmt.Errorf("resolving run dir: %w", err)
	}
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", fmt.Errorf("creating run dir: %w", err)
	}
	latest := filepath.Join(baseDir, "latest")
	os.Remove(latest)
	if err := os.Symlink(runDir, latest); err != nil {
		return "", fmt.Errorf("creating latest symlink: %w", err)
	}
	return runDir, nil
}

func RunFilePath(runDir string, run int) string {
	return filepath.Join(runDir, fmt.Sprintf("run-%03d%s", run, runFileExt))
}

// ListRunFiles returns the run files in dir sorted by name.
func ListRunFiles(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("reading run dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading run dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), runFileExt) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoRunFiles, dir)
	}
	sort.Strings(files)
	return files, nil
}

// LoadBatch reads every run file in dir and groups the rows by benchmark.
// Each file must list the same benchmarks exactly once.
func LoadBatch(dir string, schema *Schema) (*Batch, error) {
	files, err := ListRunFiles(dir)
	if err != nil {
		return nil, err
	}

	var (
		index   map[string]int
		samples []stability.Sample
	)
	for _, path := range files {
		records, err := ReadRunFile(path, schema)
		if err != nil {
			return nil, err
		}
		if samples == nil {
			index = make(map[string]int, len(records))
			samples = make([]stability.Sample, 0, len(records))
			for _, r := range records {
				if _, dup := index[r.Benchmark]; dup {
					return nil, fmt.Errorf("%w: benchmark %q listed twice in %s", ErrInconsistentRuns, r.Benchmark, path)
				}
				index[r.Benchmark] = len(samples)
				samples = append(samples, stability.Sample{
					Benchmark: r.Benchmark,
					Trials:    make([]stability.Trial, 0, len(files)),
				})
			}
		} else if len(records) != len(samples) {
			return nil, fmt.Errorf("%w: %s has %d benchmarks, %s has %d",
				ErrInconsistentRuns, path, len(records), files[0], len(samples))
		}

		seen := make(map[string]bool, len(records))
		for _, r := range records {
			pos, ok := index[r.Benchmark]
			if !ok {
				return nil, fmt.Errorf("%w: benchmark %q in %s is missing from %s",
					ErrInconsistentRuns, r.Benchmark, path, files[0])
			}
			if seen[r.Benchmark] {
				return nil, fmt.Errorf("%w: benchmark %q listed twice in %s", ErrInconsistentRuns, r.Benchmark, path)
			}
			seen[r.Benchmark] = true
			samples[pos].Trials = append(samples[pos].Trials, schema.Trial(r))
		}
	}
	return &Batch{Files: files, Samples: samples}, nil
}

// ReadRunFile parses one run file. Without an id column the row index
// identifies the benchmark.
func ReadRunFile(path string, schema *Schema) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening run file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header of %s: %w", path, err)
	}
	// Spreadsheet exports often start with a UTF-8 byte order mark.
	header[0] = strings.TrimPrefix(header[0], "\ufeff")
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(h)] = i
	}
	statusCol, ok := cols[schema.StatusColumn]
	if !ok {
		return nil, fmt.Errorf("%s: missing status column %q", path, schema.StatusColumn)
	}
	idCol, hasID := cols[schema.IDColumn]
	timeCol, hasTime := cols[schema.TimeColumn]

	var records []Record
	for row := 0; ; row++ {
		fields, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		rec := Record{
			Benchmark: fmt.Sprintf("row-%d", row),
			Status:    strings.TrimSpace(fields[statusCol]),
		}
		if hasID {
			rec.Benchmark = strings.TrimSpace(fields[idCol])
		}
		if hasTime {
			rec.Elapsed, rec.Timed = parseElapsed(fields[timeCol])
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseElapsed(raw string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, false
	}
	return v, true
}

// WriteRunFile writes records in the column layout of schema.
func WriteRunFile(path string, records []Record, schema *Schema) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating run file: %w", err)
	}
	w := csv.NewWriter(f)
	w.Write([]string{schema.IDColumn, schema.StatusColumn, schema.TimeColumn})
	for _, rec := range records {
		elapsed := ""
		if rec.Timed {
			elapsed = strconv.FormatFloat(rec.Elapsed, 'f', 3, 64)
		}
		w.Write([]string{rec.Benchmark, rec.Status, elapsed})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("writing run file: %w", err)
	}
	return f.Close()
}

func WriteRunMeta(runDir string, meta *RunMeta) error {
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return fmt.Errorf("creating run dir: %w", err)
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling meta: %w", err)
	}
	return os.WriteFile(filepath.Join(runDir, "meta.json"), data, 0o644)
}

func ReadRunMeta(path string) (*RunMeta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading meta: %w", err)
	}
	var meta RunMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parsing meta: %w", err)
	}
	return &meta, nil
}
