package stability

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrInvalidSampleSize = errors.New("sample size must be positive")
	ErrInvalidReference  = errors.New("reference proportion must lie strictly between 0 and 1")
	ErrInvalidProportion = errors.New("observed proportion must lie in [0, 1]")
)

// Direction selects the tail of a one-tailed test.
type Direction int

const (
	// Lower tests H0: rate >= p0 against HA: rate < p0.
	Lower Direction = iota
	// Upper tests H0: rate < p0 against HA: rate >= p0.
	Upper
)

func (d Direction) String() string {
	switch d {
	case Lower:
		return "lower"
	case Upper:
		return "upper"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// ZScore returns the normal-approximation z-score of pHat against p0 for a
// sample of size n.
func ZScore(pHat float64, n int, p0 float64) (float64, error) {
	if n <= 0 {
		return 0, fmt.Errorf("%w: got %d", ErrInvalidSampleSize, n)
	}
	if !(p0 > 0 && p0 < 1) {
		return 0, fmt.Errorf("%w: got %g", ErrInvalidReference, p0)
	}
	if math.IsNaN(pHat) || pHat < 0 || pHat > 1 {
		return 0, fmt.Errorf("%w: got %g", ErrInvalidProportion, pHat)
	}
	se := math.Sqrt(p0 * (1 - p0) / float64(n))
	return (pHat - p0) / se, nil
}

// OneTailedTest reports whether H0 is rejected. alpha is the lower-tail
// critical value (negative); the upper tail compares against -alpha.
func OneTailedTest(pHat float64, n int, p0, alpha float64, dir Direction) (bool, error) {
	z, err := ZScore(pHat, n, p0)
	if err != nil {
		return false, err
	}
	switch dir {
	case Lower:
		return z < alpha, nil
	case Upper:
		return z > -alpha, nil
	default:
		return false, fmt.Errorf("unknown test direction %s", dir)
	}
}

// NamedTest binds the proportion test to one of the configured reference
// rates and a tail.
type NamedTest struct {
	Name      string
	Direction Direction
	reference func(Params) float64
}

// Reference returns the p0 this test uses under p.
func (t NamedTest) Reference(p Params) float64 {
	return t.reference(p)
}

// Run applies the test to an observed rate using p's sample size and alpha.
func (t NamedTest) Run(rate float64, p Params) (bool, error) {
	rejected, err := OneTailedTest(rate, p.SampleSize, t.reference(p), p.Alpha, t.Direction)
	if err != nil {
		return false, fmt.Errorf("%s test: %w", t.Name, err)
	}
	return rejected, nil
}

func solvableRate(p Params) float64 { return p.RSolvable }
func stableRate(p Params) float64   { return p.RStable }

var (
	Unsolvability = NamedTest{Name: "unsolvability", Direction: Lower, reference: solvableRate}
	Solvability   = NamedTest{Name: "solvability", Direction: Upper, reference: solvableRate}
	Instability   = NamedTest{Name: "instability", Direction: Lower, reference: stableRate}
	Stability     = NamedTest{Name: "stability", Direction: Upper, reference: stableRate}
)

// Tests lists the named tests in evaluation order.
var Tests = []NamedTest{Unsolvability, Solvability, Instability, Stability}
