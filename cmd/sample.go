package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/signalnine/stabilizer/internal/config"
	"github.com/signalnine/stabilizer/internal/docker"
	"github.com/signalnine/stabilizer/internal/gitops"
	"github.com/signalnine/stabilizer/internal/report"
	"github.com/signalnine/stabilizer/internal/result"
	"github.com/signalnine/stabilizer/internal/runner"
	"github.com/spf13/cobra"
)

var (
	flagBenchmark string
	flagRuns      int
	flagParallel  int
	flagOut       string
)

func newSampleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Run the solver repeatedly on every benchmark and classify the result",
		RunE:  runSample,
	}
	cmd.Flags().StringVar(&flagBenchmark, "benchmark", "", "only run benchmarks matching this name or glob")
	cmd.Flags().IntVar(&flagRuns, "runs", 0, "override the number of runs")
	cmd.Flags().IntVar(&flagParallel, "parallel", 0, "max concurrent containers")
	cmd.Flags().StringVar(&flagOut, "out", "", "results directory (defaults to the config value)")
	return cmd
}

func runSample(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadOrDefault(cfgFile)
	if err != nil {
		return err
	}
	s := &cfg.Sampling
	if len(s.Command) == 0 {
		return fmt.Errorf("no solver command configured (sampling.command)")
	}
	if s.BenchmarkDir == "" && s.BenchmarkRepo == "" {
		return fmt.Errorf("no benchmarks configured (sampling.benchmark_dir or sampling.benchmark_repo)")
	}
	if flagRuns > 0 {
		s.Runs = flagRuns
	}
	if flagParallel > 0 {
		s.Parallel = flagParallel
	}
	if flagOut != "" {
		cfg.Results.Dir = flagOut
	}

	runDir, err := result.CreateRunDir(cfg.Results.Dir)
	if err != nil {
		return err
	}
	fmt.Printf("Run directory: %s\n", runDir)

	var commit string
	if s.BenchmarkRepo != "" {
		s.BenchmarkDir, commit, err = checkoutBenchmarks(runDir, s)
		if err != nil {
			return err
		}
	}

	names, err := runner.DiscoverBenchmarks(s.BenchmarkDir, s.Pattern)
	if err != nil {
		return err
	}
	names = filterBenchmarks(names, flagBenchmark)
	if len(names) == 0 {
		return fmt.Errorf("no benchmarks in %s match %q", s.BenchmarkDir, s.Pattern)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	dr, err := docker.NewRunner()
	if err != nil {
		return err
	}
	defer dr.Close()

	meta := &result.RunMeta{
		Image:      s.Image,
		Command:    s.Command,
		Runs:       s.Runs,
		Benchmarks: len(names),
		TimeLimit:  cfg.Classification.TimeLimit,
		StartedAt:  time.Now().UTC(),

		BenchmarkRepo:   s.BenchmarkRepo,
		BenchmarkCommit: commit,
	}

	bar := progressbar.Default(int64(s.Runs*len(names)), "sampling")
	runs, errs := runner.Collect(ctx, dr, &runner.CollectOpts{
		Trial: runner.TrialOpts{
			BenchmarkDir: s.BenchmarkDir,
			Image:        s.Image,
			Command:      s.Command,
			Env:          s.Env,
			Timeout:      timeoutFor(cfg),
			CPULimit:     s.CPULimit,
			MemoryLimit:  s.MemoryLimitMB * 1024 * 1024,
		},
		Benchmarks: names,
		Runs:       s.Runs,
		Parallel:   s.Parallel,
		LaunchRate: s.LaunchRate,
		Progress:   func() { bar.Add(1) },
	})
	bar.Finish()
	if ctx.Err() != nil {
		return fmt.Errorf("sampling interrupted: %w", ctx.Err())
	}
	for _, err := range errs {
		fmt.Printf("  ERROR: %v\n", err)
	}

	schema := result.NewSchema(cfg.Records)
	for i, records := range runs {
		if err := result.WriteRunFile(result.RunFilePath(runDir, i+1), records, schema); err != nil {
			return err
		}
	}
	meta.FinishedAt = time.Now().UTC()
	meta.Failures = len(errs)
	if err := result.WriteRunMeta(runDir, meta); err != nil {
		return err
	}
	log.Info().Str("dir", runDir).Int("runs", s.Runs).Int("benchmarks", len(names)).Msg("sampling finished")

	// The fresh run is classified with exactly the runs just collected.
	cfg.Classification.SampleSize = s.Runs
	cfg.Classification.InferSampleSize = false
	fmt.Println("\n--- Results ---")
	_, err = classifyDir(runDir, cfg, report.Options{Format: "table", Unstable: true}, os.Stdout)
	return err
}

// checkoutBenchmarks clones the benchmark repository into the run directory.
// benchmark_dir, when set, is taken relative to the checkout.
func checkoutBenchmarks(runDir string, s *config.Sampling) (dir, commit string, err error) {
	dest := filepath.Join(runDir, "benchmarks")
	log.Info().Str("repo", s.BenchmarkRepo).Str("ref", s.BenchmarkRef).Msg("cloning benchmarks")
	if err := gitops.CloneAndCheckout(s.BenchmarkRepo, s.BenchmarkRef, dest); err != nil {
		return "", "", err
	}
	commit, err = gitops.HeadCommit(dest)
	if err != nil {
		return "", "", err
	}
	sub := filepath.Clean(s.BenchmarkDir)
	if filepath.IsAbs(sub) || strings.HasPrefix(sub, "..") {
		return "", "", fmt.Errorf("sampling.benchmark_dir %q must stay inside the benchmark repository", s.BenchmarkDir)
	}
	return filepath.Join(dest, sub), commit, nil
}

func filterBenchmarks(names []string, pattern string) []string {
	if pattern == "" {
		return names
	}
	var filtered []string
	for _, n := range names {
		if matchBenchmark(n, pattern) {
			filtered = append(filtered, n)
		}
	}
	return filtered
}

// matchBenchmark accepts an exact name, a name without extension, or a glob.
func matchBenchmark(name, pattern string) bool {
	if name == pattern || strings.TrimSuffix(name, filepath.Ext(name)) == pattern {
		return true
	}
	ok, err := filepath.Match(pattern, name)
	return err == nil && ok
}

// timeoutFor gives the container a short grace period past the time limit
// so the solver can report its own timeout first.
func timeoutFor(cfg *config.Config) time.Duration {
	limit := time.Duration(cfg.Classification.TimeLimit * float64(time.Second))
	return limit + limit/10
}
