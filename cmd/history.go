package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/signalnine/stabilizer/internal/config"
	"github.com/signalnine/stabilizer/internal/history"
	"github.com/signalnine/stabilizer/internal/stability"
	"github.com/spf13/cobra"
)

var (
	flagHistoryBenchmark string
	flagHistoryLimit     int
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [db]",
		Short: "Show recorded classification runs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefault(cfgFile)
			if err != nil {
				return err
			}
			path := cfg.History.Path
			if len(args) > 0 {
				path = args[0]
			}
			if path == "" {
				return fmt.Errorf("no history database given (argument or history.path)")
			}
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("opening history: %w", err)
			}
			store, err := history.Open(path)
			if err != nil {
				return err
			}
			defer store.Close()

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			if flagHistoryBenchmark != "" {
				entries, err := store.Benchmark(flagHistoryBenchmark)
				if err != nil {
					return err
				}
				if len(entries) == 0 {
					return fmt.Errorf("benchmark %q has no recorded classification", flagHistoryBenchmark)
				}
				fmt.Fprintln(tw, "RECORDED\tRUN\tLABEL\tSUCCESS RATE")
				for _, e := range entries {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%.1f%%\n",
						e.CreatedAt.Format("2006-01-02 15:04:05"), e.RunID[:8], e.Label, e.SuccessRate*100)
				}
				if err := tw.Flush(); err != nil {
					return err
				}
				fmt.Printf("\n%d label change(s) over %d run(s)\n", history.Flips(entries), len(entries))
				return nil
			}

			runs, err := store.Runs(flagHistoryLimit)
			if err != nil {
				return err
			}
			fmt.Fprint(tw, "RECORDED\tRUN")
			for _, l := range stability.Labels {
				fmt.Fprintf(tw, "\t%s", l)
			}
			fmt.Fprintln(tw, "\tSOURCE")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s", r.CreatedAt.Format("2006-01-02 15:04:05"), r.ID[:8])
				for _, l := range stability.Labels {
					fmt.Fprintf(tw, "\t%d", r.Counts[l])
				}
				fmt.Fprintf(tw, "\t%s\n", r.Source)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&flagHistoryBenchmark, "benchmark", "", "show the label history of one benchmark")
	cmd.Flags().IntVar(&flagHistoryLimit, "limit", 20, "number of runs to show (0 shows all)")
	return cmd
}
