package cmd

import (
	"fmt"

	"github.com/signalnine/stabilizer/internal/config"
	"github.com/signalnine/stabilizer/internal/runner"
	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the benchmarks the sampler would run and the active thresholds",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefault(cfgFile)
			if err != nil {
				return err
			}
			c := cfg.Classification
			fmt.Println("Thresholds:")
			if c.InferSampleSize {
				fmt.Println("  - sample size: inferred from run files")
			} else {
				fmt.Printf("  - sample size: %d\n", c.SampleSize)
			}
			fmt.Printf("  - r_solvable: %g, r_stable: %g, alpha: %g\n", c.RSolvable, c.RStable, c.Alpha)
			fmt.Printf("  - time limit: %gs, omega: %g (unstable below %gs)\n", c.TimeLimit, c.Omega, c.Params().TimeThreshold())

			s := cfg.Sampling
			if s.BenchmarkRepo != "" {
				fmt.Printf("\nBenchmarks are checked out from %s@%s at sampling time.\n", s.BenchmarkRepo, s.BenchmarkRef)
				return nil
			}
			if s.BenchmarkDir == "" {
				fmt.Println("\nNo benchmark directory configured.")
				return nil
			}
			names, err := runner.DiscoverBenchmarks(s.BenchmarkDir, s.Pattern)
			if err != nil {
				return err
			}
			fmt.Printf("\nBenchmarks (%s, %d runs each):\n", s.Image, s.Runs)
			for _, n := range names {
				fmt.Printf("  - %s\n", n)
			}
			return nil
		},
	}
}
