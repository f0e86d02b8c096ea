package history

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/signalnine/stabilizer/internal/report"
	"github.com/signalnine/stabilizer/internal/stability"
	_ "modernc.org/sqlite"
)

// Store is a SQLite-backed log of classification runs.
type Store struct {
	db *sql.DB
}

// Run summarises one recorded classification run.
type Run struct {
	ID        string
	Source    string
	CreatedAt time.Time
	Counts    map[stability.Label]int
}

// Entry is one benchmark's label in one recorded run.
type Entry struct {
	RunID       string
	CreatedAt   time.Time
	Label       stability.Label
	SuccessRate float64
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", path, err)
	}
	s, err := New(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New creates the history tables if they don't exist.
func New(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id          TEXT    PRIMARY KEY,
			source      TEXT    NOT NULL,
			sample_size INTEGER NOT NULL,
			created_at  INTEGER NOT NULL
		)
	`); err != nil {
		return nil, fmt.Errorf("create runs table: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS classifications (
			run_id       TEXT    NOT NULL REFERENCES runs(id),
			benchmark    TEXT    NOT NULL,
			label        TEXT    NOT NULL,
			success_rate REAL    NOT NULL,
			mean_time    REAL,
			PRIMARY KEY (run_id, benchmark)
		)
	`); err != nil {
		return nil, fmt.Errorf("create classifications table: %w", err)
	}
	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_classifications_benchmark
		ON classifications (benchmark)
	`); err != nil {
		return nil, fmt.Errorf("create classifications index: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores every classified benchmark of sum under a new run id.
// Failed benchmarks are not recorded.
func (s *Store) Record(source string, sum *report.Summary) (string, error) {
	id := uuid.NewString()
	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("begin record: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO runs (id, source, sample_size, created_at) VALUES (?, ?, ?, ?)`,
		id, source, sum.Params.SampleSize, time.Now().UnixNano(),
	); err != nil {
		return "", fmt.Errorf("record run: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO classifications (run_id, benchmark, label, success_rate, mean_time)
		 VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return "", fmt.Errorf("prepare classification insert: %w", err)
	}
	defer stmt.Close()

	for _, o := range sum.Outcomes {
		if o.Err != nil {
			continue
		}
		var mean sql.NullFloat64
		if o.Stats.Timed > 0 {
			mean = sql.NullFloat64{Float64: o.Stats.MeanTime, Valid: true}
		}
		if _, err := stmt.Exec(id, o.Benchmark, string(o.Verdict.Label), o.Stats.SuccessRate, mean); err != nil {
			return "", fmt.Errorf("record classification of %s: %w", o.Benchmark, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit record: %w", err)
	}
	return id, nil
}

// Runs returns the most recent runs first, at most limit of them. A limit
// of zero or less returns every run.
func (s *Store) Runs(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(
		`SELECT id, source, created_at FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	var runs []Run
	for rows.Next() {
		var (
			r  Run
			ts int64
		)
		if err := rows.Scan(&r.ID, &r.Source, &ts); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.CreatedAt = time.Unix(0, ts)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	rows.Close()

	for i := range runs {
		counts, err := s.counts(runs[i].ID)
		if err != nil {
			return nil, err
		}
		runs[i].Counts = counts
	}
	return runs, nil
}

func (s *Store) counts(runID string) (map[stability.Label]int, error) {
	rows, err := s.db.Query(
		`SELECT label, COUNT(*) FROM classifications WHERE run_id = ? GROUP BY label`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[stability.Label]int, len(stability.Labels))
	for _, l := range stability.Labels {
		counts[l] = 0
	}
	for rows.Next() {
		var (
			label string
			n     int
		)
		if err := rows.Scan(&label, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[stability.Label(label)] = n
	}
	return counts, rows.Err()
}

// Benchmark returns the label history of one benchmark, oldest first.
func (s *Store) Benchmark(name string) ([]Entry, error) {
	rows, err := s.db.Query(
		`SELECT c.run_id, r.created_at, c.label, c.success_rate
		 FROM classifications c JOIN runs r ON r.id = c.run_id
		 WHERE c.benchmark = ?
		 ORDER BY r.created_at ASC, r.rowid ASC`,
		name,
	)
	if err != nil {
		return nil, fmt.Errorf("query benchmark history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e     Entry
			ts    int64
			label string
		)
		if err := rows.Scan(&e.RunID, &ts, &label, &e.SuccessRate); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		e.CreatedAt = time.Unix(0, ts)
		e.Label = stability.Label(label)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Flips counts the label changes between consecutive entries of one
// benchmark's history.
func Flips(entries []Entry) int {
	n := 0
	for i := 1; i < len(entries); i++ {
		if entries[i].Label != entries[i-1].Label {
			n++
		}
	}
	return n
}
