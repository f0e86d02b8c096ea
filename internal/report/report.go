package report

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/encoding/json"
	"github.com/signalnine/stabilizer/internal/runner"
	"github.com/signalnine/stabilizer/internal/stability"
)

// Outcome is the classification of one benchmark. Err is set, and Verdict
// left zero, when the benchmark could not be classified.
type Outcome struct {
	Benchmark string
	Stats     stability.Statistics
	Verdict   stability.Verdict
	Err       error
}

type Summary struct {
	Params   stability.Params
	Counts   map[stability.Label]int
	Unstable []string
	Outcomes []Outcome
	Failed   []Outcome
}

// Classify aggregates and classifies every sample on up to workers
// goroutines. A benchmark that fails is recorded in Failed and the rest are
// still classified.
func Classify(samples []stability.Sample, p stability.Params, workers int) (*Summary, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	outcomes := make([]Outcome, len(samples))
	runner.RunIndexed(workers, len(samples), func(i int) error {
		outcomes[i] = classifyOne(samples[i], p)
		return outcomes[i].Err
	})

	sum := &Summary{
		Params:   p,
		Counts:   make(map[stability.Label]int, len(stability.Labels)),
		Outcomes: outcomes,
	}
	for _, l := range stability.Labels {
		sum.Counts[l] = 0
	}
	for _, o := range outcomes {
		if o.Err != nil {
			log.Warn().Str("benchmark", o.Benchmark).Err(o.Err).Msg("skipping benchmark")
			sum.Failed = append(sum.Failed, o)
			continue
		}
		sum.Counts[o.Verdict.Label]++
		if o.Verdict.Label == stability.Unstable {
			sum.Unstable = append(sum.Unstable, o.Benchmark)
		}
	}
	sort.Strings(sum.Unstable)
	return sum, nil
}

func classifyOne(s stability.Sample, p stability.Params) Outcome {
	o := Outcome{Benchmark: s.Benchmark, Stats: stability.Statistics{MeanTime: math.NaN()}}
	st, err := stability.Aggregate(s, p.SampleSize)
	if err != nil {
		o.Err = err
		return o
	}
	o.Stats = st
	v, err := stability.Explain(st, p)
	if err != nil {
		o.Err = fmt.Errorf("classifying %s: %w", s.Benchmark, err)
		return o
	}
	o.Verdict = v
	return o
}

// Options selects what Write renders beyond the label counts.
type Options struct {
	Format   string
	Unstable bool
	Details  bool
}

func Write(sum *Summary, opts Options, w io.Writer) error {
	switch opts.Format {
	case "markdown":
		return writeMarkdown(sum, opts, w)
	case "json":
		return writeJSON(sum, opts, w)
	case "table", "":
		return writeTable(sum, opts, w)
	default:
		return fmt.Errorf("unknown format %q", opts.Format)
	}
}

var labelColor = map[stability.Label]*color.Color{
	stability.Stable:       color.New(color.FgGreen),
	stability.Unstable:     color.New(color.FgYellow),
	stability.Unsolvable:   color.New(color.FgRed),
	stability.Inconclusive: color.New(color.FgHiBlack),
}

func total(sum *Summary) int {
	n := 0
	for _, c := range sum.Counts {
		n += c
	}
	return n
}

func writeTable(sum *Summary, opts Options, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Categorization results (n=%d, time threshold %.1fs):\n", sum.Params.SampleSize, sum.Params.TimeThreshold())
	fmt.Fprintln(tw, "LABEL\tCOUNT\tSHARE")
	fmt.Fprintln(tw, strings.Repeat("-", 32))
	n := total(sum)
	for _, l := range stability.Labels {
		share := 0.0
		if n > 0 {
			share = float64(sum.Counts[l]) / float64(n) * 100
		}
		fmt.Fprintf(tw, "%s\t%d\t%.1f%%\n", labelColor[l].Sprint(string(l)), sum.Counts[l], share)
	}
	if len(sum.Failed) > 0 {
		fmt.Fprintf(tw, "failed\t%d\t\n", len(sum.Failed))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if opts.Unstable && len(sum.Unstable) > 0 {
		fmt.Fprintln(w, "\nUnstable benchmarks:")
		for _, b := range sum.Unstable {
			fmt.Fprintf(w, "  - %s\n", b)
		}
	}
	return nil
}

func writeMarkdown(sum *Summary, opts Options, w io.Writer) error {
	fmt.Fprintln(w, "| Label | Count |")
	fmt.Fprintln(w, "|---|---|")
	for _, l := range stability.Labels {
		fmt.Fprintf(w, "| %s | %d |\n", l, sum.Counts[l])
	}
	if len(sum.Failed) > 0 {
		fmt.Fprintf(w, "| failed | %d |\n", len(sum.Failed))
	}
	if opts.Unstable && len(sum.Unstable) > 0 {
		fmt.Fprintln(w, "\n**Unstable benchmarks**")
		fmt.Fprintln(w)
		for _, b := range sum.Unstable {
			fmt.Fprintf(w, "- `%s`\n", b)
		}
	}
	return nil
}

type jsonBenchmark struct {
	Benchmark string               `json:"benchmark"`
	Stats     stability.Statistics `json:"stats"`
	MeanTime  *float64             `json:"mean_time"`
	Verdict   *stability.Verdict   `json:"verdict,omitempty"`
	Error     string               `json:"error,omitempty"`
}

type jsonSummary struct {
	Params     stability.Params        `json:"params"`
	Counts     map[stability.Label]int `json:"counts"`
	Failed     int                     `json:"failed"`
	Unstable   []string                `json:"unstable,omitempty"`
	Benchmarks []jsonBenchmark         `json:"benchmarks,omitempty"`
}

func writeJSON(sum *Summary, opts Options, w io.Writer) error {
	out := jsonSummary{
		Params: sum.Params,
		Counts: sum.Counts,
		Failed: len(sum.Failed),
	}
	if opts.Unstable {
		out.Unstable = sum.Unstable
	}
	if opts.Details {
		for _, o := range sum.Outcomes {
			b := jsonBenchmark{Benchmark: o.Benchmark, Stats: o.Stats}
			if !math.IsNaN(o.Stats.MeanTime) {
				mean := o.Stats.MeanTime
				b.MeanTime = &mean
			}
			if o.Err != nil {
				b.Error = o.Err.Error()
			} else {
				v := o.Verdict
				b.Verdict = &v
			}
			out.Benchmarks = append(out.Benchmarks, b)
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
