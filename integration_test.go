//go:build integration

package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/signalnine/stabilizer/internal/config"
	"github.com/signalnine/stabilizer/internal/docker"
	"github.com/signalnine/stabilizer/internal/report"
	"github.com/signalnine/stabilizer/internal/result"
	"github.com/signalnine/stabilizer/internal/runner"
	"github.com/signalnine/stabilizer/internal/stability"
)

// createBenchmarks writes two benchmark files: one the fake solver always
// answers, one it never does.
func createBenchmarks(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "solved.smt2"), []byte("unsat"), 0o644)
	os.WriteFile(filepath.Join(dir, "hard.smt2"), []byte("unknown"), 0o644)
	return dir
}

func TestSampleAndClassifyIntegration(t *testing.T) {
	if os.Getenv("STABILIZER_DOCKER_TESTS") == "" {
		t.Skip("set STABILIZER_DOCKER_TESTS=1 to run integration tests")
	}

	benchDir := createBenchmarks(t)
	runDir, err := result.CreateRunDir(t.TempDir())
	if err != nil {
		t.Fatalf("CreateRunDir: %v", err)
	}

	dr, err := docker.NewRunner()
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	defer dr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	const runs = 5
	names, err := runner.DiscoverBenchmarks(benchDir, "*.smt2")
	if err != nil {
		t.Fatalf("DiscoverBenchmarks: %v", err)
	}
	records, errs := runner.Collect(ctx, dr, &runner.CollectOpts{
		Trial: runner.TrialOpts{
			BenchmarkDir: benchDir,
			Image:        "alpine:latest",
			Command:      []string{"sh", "-c", "cat /benchmarks/{benchmark}"},
			Timeout:      30 * time.Second,
		},
		Benchmarks: names,
		Runs:       runs,
		Parallel:   2,
	})
	if len(errs) != 0 {
		t.Fatalf("Collect: %v", errs)
	}

	cfg := config.Default()
	schema := result.NewSchema(cfg.Records)
	for i, recs := range records {
		if err := result.WriteRunFile(result.RunFilePath(runDir, i+1), recs, schema); err != nil {
			t.Fatalf("WriteRunFile: %v", err)
		}
	}

	batch, err := result.LoadBatch(runDir, schema)
	if err != nil {
		t.Fatalf("LoadBatch: %v", err)
	}
	p := cfg.Classification.Params()
	p.SampleSize = runs
	sum, err := report.Classify(batch.Samples, p, 2)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if sum.Counts[stability.Unsolvable] != 1 {
		t.Errorf("unsolvable: got %d, want 1", sum.Counts[stability.Unsolvable])
	}
	if len(sum.Failed) != 0 {
		t.Errorf("unexpected failures: %+v", sum.Failed)
	}
}
