package stability

import "fmt"

// Params holds the constants a classification run is evaluated under. A
// batch shares one Params value; nothing mutates it during a run.
type Params struct {
	SampleSize int     `json:"sample_size"`
	RSolvable  float64 `json:"r_solvable"`
	RStable    float64 `json:"r_stable"`
	Alpha      float64 `json:"alpha"`
	TimeLimit  float64 `json:"time_limit"`
	Omega      float64 `json:"omega"`
}

const (
	DefaultSampleSize = 60
	DefaultRSolvable  = 0.05
	DefaultRStable    = 0.95
	DefaultAlpha      = -1.645
	DefaultTimeLimit  = 60
	DefaultOmega      = 0.8
)

func DefaultParams() Params {
	return Params{
		SampleSize: DefaultSampleSize,
		RSolvable:  DefaultRSolvable,
		RStable:    DefaultRStable,
		Alpha:      DefaultAlpha,
		TimeLimit:  DefaultTimeLimit,
		Omega:      DefaultOmega,
	}
}

// TimeThreshold is the mean success time below which a partially failing
// benchmark counts as unstable rather than slow.
func (p Params) TimeThreshold() float64 {
	return p.Omega * p.TimeLimit
}

func (p Params) Validate() error {
	if p.SampleSize <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidSampleSize, p.SampleSize)
	}
	if !(p.RSolvable > 0 && p.RSolvable < 1) {
		return fmt.Errorf("r_solvable: %w: got %g", ErrInvalidReference, p.RSolvable)
	}
	if !(p.RStable > 0 && p.RStable < 1) {
		return fmt.Errorf("r_stable: %w: got %g", ErrInvalidReference, p.RStable)
	}
	if p.RSolvable >= p.RStable {
		return fmt.Errorf("r_solvable (%g) must be below r_stable (%g)", p.RSolvable, p.RStable)
	}
	if !(p.Alpha < 0) {
		return fmt.Errorf("alpha must be a negative critical value, got %g", p.Alpha)
	}
	if !(p.TimeLimit > 0) {
		return fmt.Errorf("time limit must be positive, got %g", p.TimeLimit)
	}
	if !(p.Omega > 0) {
		return fmt.Errorf("omega must be positive, got %g", p.Omega)
	}
	return nil
}
