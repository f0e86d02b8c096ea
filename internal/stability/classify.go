package stability

import "fmt"

type Label string

const (
	Unsolvable   Label = "unsolvable"
	Unstable     Label = "unstable"
	Stable       Label = "stable"
	Inconclusive Label = "inconclusive"
)

// Labels lists every label in report order.
var Labels = []Label{Stable, Unstable, Unsolvable, Inconclusive}

// Classify runs the decision procedure on a benchmark's statistics. The
// first matching rule wins:
//
//  1. no successful trial: unsolvable
//  2. rate significantly below RSolvable: unsolvable
//  3. rate significantly below RStable and mean success time under
//     Omega*TimeLimit: unstable
//  4. rate significantly at or above RStable: stable
//  5. otherwise inconclusive
func Classify(st Statistics, p Params) (Label, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	// N is zero only for statistics built by hand without a trial count.
	if st.N != 0 && st.N != p.SampleSize {
		return "", fmt.Errorf("%w: statistics for %d trials, params want %d",
			ErrSampleMismatch, st.N, p.SampleSize)
	}
	if !st.HasSuccess {
		return Unsolvable, nil
	}

	rejected, err := Unsolvability.Run(st.SuccessRate, p)
	if err != nil {
		return "", err
	}
	if rejected {
		return Unsolvable, nil
	}

	rejected, err = Instability.Run(st.SuccessRate, p)
	if err != nil {
		return "", err
	}
	// MeanTime is NaN when no success was timed, which fails the comparison.
	if rejected && st.MeanTime < p.TimeThreshold() {
		return Unstable, nil
	}

	rejected, err = Stability.Run(st.SuccessRate, p)
	if err != nil {
		return "", err
	}
	if rejected {
		return Stable, nil
	}
	return Inconclusive, nil
}

// TestOutcome is one named test evaluated in isolation.
type TestOutcome struct {
	Name      string  `json:"name"`
	Reference float64 `json:"reference"`
	Direction string  `json:"direction"`
	Z         float64 `json:"z"`
	Rejected  bool    `json:"rejected"`
}

// Verdict pairs a label with the outcome of every named test. The tests are
// evaluated independently; only Label reflects the ordered procedure.
type Verdict struct {
	Label    Label         `json:"label"`
	FastMean bool          `json:"fast_mean"`
	Tests    []TestOutcome `json:"tests,omitempty"`
	Shortcut bool          `json:"shortcut,omitempty"`
}

// Explain classifies st and reports the individual test outcomes behind the
// label. A zero-success sample is reported as a shortcut with no tests.
func Explain(st Statistics, p Params) (Verdict, error) {
	label, err := Classify(st, p)
	if err != nil {
		return Verdict{}, err
	}
	v := Verdict{Label: label}
	if !st.HasSuccess {
		v.Shortcut = true
		return v, nil
	}
	v.FastMean = st.MeanTime < p.TimeThreshold()
	for _, t := range Tests {
		ref := t.Reference(p)
		z, err := ZScore(st.SuccessRate, p.SampleSize, ref)
		if err != nil {
			return Verdict{}, fmt.Errorf("%s test: %w", t.Name, err)
		}
		rejected, err := t.Run(st.SuccessRate, p)
		if err != nil {
			return Verdict{}, err
		}
		v.Tests = append(v.Tests, TestOutcome{
			Name:      t.Name,
			Reference: ref,
			Direction: t.Direction.String(),
			Z:         z,
			Rejected:  rejected,
		})
	}
	return v, nil
}
