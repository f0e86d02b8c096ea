package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/signalnine/stabilizer/internal/config"
	"github.com/signalnine/stabilizer/internal/history"
	"github.com/signalnine/stabilizer/internal/metrics"
	"github.com/signalnine/stabilizer/internal/report"
	"github.com/signalnine/stabilizer/internal/result"
	"github.com/signalnine/stabilizer/internal/stability"
	"github.com/spf13/cobra"
)

var (
	flagFormat      string
	flagUnstable    bool
	flagDetails     bool
	flagSampleSize  int
	flagRSolvable   float64
	flagRStable     float64
	flagAlpha       float64
	flagTimeLimit   float64
	flagOmega       float64
	flagWorkers     int
	flagHistoryPath string
	flagMetricsFile string
)

func newClassifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify <run-dir>",
		Short: "Classify every benchmark in a directory of run files",
		Long: "Read one CSV file per independent run from run-dir, regroup the rows per benchmark " +
			"and label each benchmark unsolvable, unstable, stable or inconclusive.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefault(cfgFile)
			if err != nil {
				return err
			}
			applyClassifyFlags(cmd, cfg)
			_, err = classifyDir(args[0], cfg, report.Options{
				Format:   flagFormat,
				Unstable: flagUnstable,
				Details:  flagDetails,
			}, os.Stdout)
			return err
		},
	}
	d := stability.DefaultParams()
	cmd.Flags().StringVar(&flagFormat, "format", "table", "output format (table, markdown, json)")
	cmd.Flags().BoolVar(&flagUnstable, "unstable", false, "list the benchmarks classified unstable")
	cmd.Flags().BoolVar(&flagDetails, "details", false, "include per-benchmark verdicts (json only)")
	cmd.Flags().IntVar(&flagSampleSize, "sample-size", d.SampleSize, "expected runs per benchmark (0 infers it from the run files)")
	cmd.Flags().Float64Var(&flagRSolvable, "r-solvable", d.RSolvable, "reference solvable rate")
	cmd.Flags().Float64Var(&flagRStable, "r-stable", d.RStable, "reference stable rate")
	cmd.Flags().Float64Var(&flagAlpha, "alpha", d.Alpha, "lower-tail critical value")
	cmd.Flags().Float64Var(&flagTimeLimit, "time-limit", d.TimeLimit, "per-trial time limit in seconds")
	cmd.Flags().Float64Var(&flagOmega, "omega", d.Omega, "fraction of the time limit a flaky benchmark must stay under")
	cmd.Flags().IntVar(&flagWorkers, "parallel", 0, "classification workers (defaults to the config value)")
	cmd.Flags().StringVar(&flagHistoryPath, "history", "", "record the run in this SQLite history database")
	cmd.Flags().StringVar(&flagMetricsFile, "metrics-file", "", "write a Prometheus textfile with the results")
	return cmd
}

// applyClassifyFlags overrides config values with the flags set on cmd.
func applyClassifyFlags(cmd *cobra.Command, cfg *config.Config) {
	c := &cfg.Classification
	flags := cmd.Flags()
	if flags.Changed("sample-size") {
		c.SampleSize = flagSampleSize
		c.InferSampleSize = flagSampleSize == 0
	}
	if flags.Changed("r-solvable") {
		c.RSolvable = flagRSolvable
	}
	if flags.Changed("r-stable") {
		c.RStable = flagRStable
	}
	if flags.Changed("alpha") {
		c.Alpha = flagAlpha
	}
	if flags.Changed("time-limit") {
		c.TimeLimit = flagTimeLimit
	}
	if flags.Changed("omega") {
		c.Omega = flagOmega
	}
	if flags.Changed("parallel") && flagWorkers > 0 {
		c.Parallel = flagWorkers
	}
	if flags.Changed("history") {
		cfg.History.Path = flagHistoryPath
	}
	if flags.Changed("metrics-file") {
		cfg.Metrics.Textfile = flagMetricsFile
	}
}

// classifyDir loads the run files in dir, classifies them and writes the
// report to w. The run is recorded in the history database and exported as
// metrics when those are configured.
func classifyDir(dir string, cfg *config.Config, opts report.Options, w io.Writer) (*report.Summary, error) {
	batch, err := result.LoadBatch(dir, result.NewSchema(cfg.Records))
	if err != nil {
		return nil, err
	}
	if len(batch.Samples) == 0 {
		return nil, fmt.Errorf("no benchmarks listed in the run files of %s", dir)
	}

	p := cfg.Classification.Params()
	if cfg.Classification.InferSampleSize {
		p.SampleSize = len(batch.Files)
	} else if len(batch.Files) != p.SampleSize {
		return nil, fmt.Errorf("%w: %s holds %d run files, want %d",
			stability.ErrSampleMismatch, dir, len(batch.Files), p.SampleSize)
	}
	checkRunMeta(dir, p.SampleSize)

	log.Debug().Str("dir", dir).Int("benchmarks", len(batch.Samples)).Int("runs", p.SampleSize).Msg("classifying")
	sum, err := report.Classify(batch.Samples, p, cfg.Classification.Parallel)
	if err != nil {
		return nil, err
	}
	if err := report.Write(sum, opts, w); err != nil {
		return nil, err
	}

	if cfg.History.Path != "" {
		if err := recordHistory(cfg.History.Path, dir, sum); err != nil {
			return sum, err
		}
	}
	if cfg.Metrics.Textfile != "" {
		if err := metrics.Export(cfg.Metrics.Textfile, sum); err != nil {
			return sum, err
		}
		log.Debug().Str("path", cfg.Metrics.Textfile).Msg("exported metrics")
	}
	return sum, nil
}

func checkRunMeta(dir string, n int) {
	meta, err := result.ReadRunMeta(filepath.Join(dir, "meta.json"))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Str("dir", dir).Msg("ignoring unreadable run manifest")
		}
		return
	}
	if meta.Runs != n {
		log.Warn().Int("manifest_runs", meta.Runs).Int("runs", n).Msg("run manifest disagrees with the run files")
	}
	if meta.Failures > 0 {
		log.Warn().Int("failures", meta.Failures).Msg("sampling run recorded failed trials as errors")
	}
}

func recordHistory(path, dir string, sum *report.Summary) error {
	store, err := history.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	id, err := store.Record(abs, sum)
	if err != nil {
		return err
	}
	log.Info().Str("run", id).Str("history", path).Msg("recorded classification")
	return nil
}
