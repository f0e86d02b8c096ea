package runner

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/signalnine/stabilizer/internal/docker"
	"github.com/signalnine/stabilizer/internal/result"
	"golang.org/x/time/rate"
)

// BenchmarkMount is where the benchmark directory appears in the container.
const BenchmarkMount = "/benchmarks"

// ContainerRunner runs one solver container to completion.
type ContainerRunner interface {
	Run(ctx context.Context, opts *docker.RunOpts) (*docker.RunResult, error)
}

type TrialOpts struct {
	Benchmark    string
	BenchmarkDir string
	Run          int
	Image        string
	Command      []string
	Env          map[string]string
	Timeout      time.Duration
	CPULimit     float64
	MemoryLimit  int64
}

// solverVerdicts are the answers recognised in solver output.
var solverVerdicts = map[string]bool{
	"sat":     true,
	"unsat":   true,
	"unknown": true,
	"timeout": true,
}

// StatusFromResult maps a finished container to the raw status written to
// run files: the first solver verdict printed, otherwise "ok" or "error"
// by exit code. A container killed at its deadline is a "timeout".
func StatusFromResult(exitCode int, timedOut bool, output string) string {
	if timedOut {
		return "timeout"
	}
	sc := bufio.NewScanner(strings.NewReader(output))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if solverVerdicts[line] {
			return line
		}
	}
	if exitCode == 0 {
		return "ok"
	}
	return "error"
}

// BuildCommand substitutes {benchmark} and {seed} in the command template.
func BuildCommand(template []string, benchmark string, seed int) []string {
	r := strings.NewReplacer("{benchmark}", benchmark, "{seed}", strconv.Itoa(seed))
	cmd := make([]string, len(template))
	for i, arg := range template {
		cmd[i] = r.Replace(arg)
	}
	return cmd
}

// RunTrial runs the solver once on one benchmark. Elapsed time is recorded
// for every run that finished before the deadline.
func RunTrial(ctx context.Context, cr ContainerRunner, opts *TrialOpts) (result.Record, error) {
	rec := result.Record{Benchmark: opts.Benchmark}

	dirAbs, err := filepath.Abs(opts.BenchmarkDir)
	if err != nil {
		return rec, fmt.Errorf("resolving benchmark dir: %w", err)
	}

	res, err := cr.Run(ctx, &docker.RunOpts{
		Image:       opts.Image,
		Command:     BuildCommand(opts.Command, opts.Benchmark, opts.Run),
		Env:         opts.Env,
		Timeout:     opts.Timeout,
		Mounts:      []docker.Mount{{Source: dirAbs, Target: BenchmarkMount, ReadOnly: true}},
		CPULimit:    opts.CPULimit,
		MemoryLimit: opts.MemoryLimit,
		UserID:      fmt.Sprintf("%d:%d", os.Getuid(), os.Getgid()),
		OutputTail:  50,
	})
	if err != nil {
		return rec, fmt.Errorf("running %s (run %d): %w", opts.Benchmark, opts.Run, err)
	}

	rec.Status = StatusFromResult(res.ExitCode, res.TimedOut, res.Output)
	if !res.TimedOut {
		rec.Elapsed = res.Duration.Seconds()
		rec.Timed = true
	}
	return rec, nil
}

// DiscoverBenchmarks lists the files in dir matching pattern, sorted.
func DiscoverBenchmarks(dir, pattern string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading benchmark dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ok, err := filepath.Match(pattern, e.Name())
		if err != nil {
			return nil, fmt.Errorf("matching %q: %w", pattern, err)
		}
		if ok {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// CollectOpts configures a full sampling pass.
type CollectOpts struct {
	Trial      TrialOpts
	Benchmarks []string
	Runs       int
	Parallel   int
	// LaunchRate caps container starts per second; 0 disables throttling.
	LaunchRate float64
	Progress   func()
}

// Collect runs every benchmark Runs times. The result holds one record per
// benchmark for each run, in Benchmarks order. A trial that could not be
// executed is recorded with status "error" so every run lists every
// benchmark; its error is returned alongside.
func Collect(ctx context.Context, cr ContainerRunner, opts *CollectOpts) ([][]result.Record, []error) {
	runs := make([][]result.Record, opts.Runs)
	for r := range runs {
		runs[r] = make([]result.Record, len(opts.Benchmarks))
	}

	var limiter *rate.Limiter
	if opts.LaunchRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.LaunchRate), 1)
	}

	n := opts.Runs * len(opts.Benchmarks)
	errs := RunIndexed(opts.Parallel, n, func(i int) error {
		run, b := i/len(opts.Benchmarks), i%len(opts.Benchmarks)
		if opts.Progress != nil {
			defer opts.Progress()
		}
		name := opts.Benchmarks[b]
		runs[run][b] = result.Record{Benchmark: name, Status: "error"}

		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return fmt.Errorf("waiting to launch %s (run %d): %w", name, run+1, err)
			}
		}

		trial := opts.Trial
		trial.Benchmark = name
		trial.Run = run + 1
		rec, err := RunTrial(ctx, cr, &trial)
		if err != nil {
			log.Warn().Str("benchmark", name).Int("run", run+1).Err(err).Msg("trial failed")
			return err
		}
		runs[run][b] = rec
		return nil
	})
	return runs, errs
}
