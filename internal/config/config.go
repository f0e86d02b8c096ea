package config

import (
	"fmt"
	"os"

	"github.com/signalnine/stabilizer/internal/stability"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Classification Classification `yaml:"classification"`
	Records        Records        `yaml:"records"`
	Sampling       Sampling       `yaml:"sampling"`
	Results        Results        `yaml:"results"`
	History        History        `yaml:"history"`
	Metrics        Metrics        `yaml:"metrics"`
}

// Classification carries the statistical parameters. With InferSampleSize
// set, the trial count is taken from the number of run files instead of
// SampleSize.
type Classification struct {
	SampleSize      int     `yaml:"sample_size"`
	InferSampleSize bool    `yaml:"infer_sample_size"`
	RSolvable       float64 `yaml:"r_solvable"`
	RStable         float64 `yaml:"r_stable"`
	Alpha           float64 `yaml:"alpha"`
	TimeLimit       float64 `yaml:"time_limit"`
	Omega           float64 `yaml:"omega"`
	Parallel        int     `yaml:"parallel"`
}

// Records describes the columns and status vocabulary of run files.
type Records struct {
	IDColumn        string   `yaml:"id_column"`
	StatusColumn    string   `yaml:"status_column"`
	TimeColumn      string   `yaml:"time_column"`
	SuccessStatuses []string `yaml:"success_statuses"`
	ErrorStatuses   []string `yaml:"error_statuses"`
}

type Sampling struct {
	Image         string            `yaml:"image"`
	Command       []string          `yaml:"command"`
	BenchmarkDir  string            `yaml:"benchmark_dir"`
	BenchmarkRepo string            `yaml:"benchmark_repo"`
	BenchmarkRef  string            `yaml:"benchmark_ref"`
	Pattern       string            `yaml:"pattern"`
	Runs          int               `yaml:"runs"`
	Parallel      int               `yaml:"parallel"`
	LaunchRate    float64           `yaml:"launch_rate"`
	Env           map[string]string `yaml:"env"`
	CPULimit      float64           `yaml:"cpu_limit"`
	MemoryLimitMB int64             `yaml:"memory_limit_mb"`
}

type Results struct {
	Dir string `yaml:"dir"`
}

type History struct {
	Path string `yaml:"path"`
}

// Metrics configures the Prometheus textfile written after each
// classification. Empty disables it.
type Metrics struct {
	Textfile string `yaml:"textfile"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	if err := validate(cfg); err != nil {
		panic(err)
	}
	return cfg
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// LoadOrDefault loads path, or returns Default when path is empty.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

// Params converts the classification section into core parameters.
func (c *Classification) Params() stability.Params {
	return stability.Params{
		SampleSize: c.SampleSize,
		RSolvable:  c.RSolvable,
		RStable:    c.RStable,
		Alpha:      c.Alpha,
		TimeLimit:  c.TimeLimit,
		Omega:      c.Omega,
	}
}

func validate(cfg *Config) error {
	c := &cfg.Classification
	if c.SampleSize < 0 {
		return fmt.Errorf("classification.sample_size must not be negative")
	}
	if c.RSolvable == 0 {
		c.RSolvable = stability.DefaultRSolvable
	}
	if c.RStable == 0 {
		c.RStable = stability.DefaultRStable
	}
	if c.Alpha == 0 {
		c.Alpha = stability.DefaultAlpha
	}
	if c.TimeLimit == 0 {
		c.TimeLimit = stability.DefaultTimeLimit
	}
	if c.Omega == 0 {
		c.Omega = stability.DefaultOmega
	}
	if c.Parallel < 1 {
		c.Parallel = 1
	}
	// Sample size is checked once the run files are known.
	p := c.Params()
	p.SampleSize = 1
	if err := p.Validate(); err != nil {
		return fmt.Errorf("classification: %w", err)
	}
	if c.InferSampleSize {
		c.SampleSize = 0
	} else if c.SampleSize == 0 {
		c.SampleSize = stability.DefaultSampleSize
	}

	r := &cfg.Records
	if r.IDColumn == "" {
		r.IDColumn = "benchmark"
	}
	if r.StatusColumn == "" {
		r.StatusColumn = "result"
	}
	if r.TimeColumn == "" {
		r.TimeColumn = "time_cpu"
	}
	if len(r.SuccessStatuses) == 0 {
		r.SuccessStatuses = []string{"unsat", "ok"}
	}
	if len(r.ErrorStatuses) == 0 {
		r.ErrorStatuses = []string{"error", "crashed"}
	}
	for _, s := range r.SuccessStatuses {
		for _, e := range r.ErrorStatuses {
			if s == e {
				return fmt.Errorf("records: status %q is both success and error", s)
			}
		}
	}

	s := &cfg.Sampling
	if s.Runs == 0 {
		s.Runs = c.SampleSize
	}
	if s.Runs == 0 {
		s.Runs = stability.DefaultSampleSize
	}
	if s.Runs < 0 {
		return fmt.Errorf("sampling.runs must not be negative")
	}
	if s.Parallel < 1 {
		s.Parallel = 1
	}
	if s.LaunchRate < 0 {
		return fmt.Errorf("sampling.launch_rate must not be negative")
	}
	if s.Pattern == "" {
		s.Pattern = "*.smt2"
	}
	if len(s.Command) > 0 && s.Image == "" {
		return fmt.Errorf("sampling.image is required when a command is set")
	}
	if s.BenchmarkRepo != "" && s.BenchmarkRef == "" {
		s.BenchmarkRef = "main"
	}

	if cfg.Results.Dir == "" {
		cfg.Results.Dir = "results"
	}
	return nil
}
