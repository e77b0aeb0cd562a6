// Package config reads the optional .covtest.yaml file at the top of the tree being tested.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the name of the configuration file looked for in the directory being tested.
const FileName = ".covtest.yaml"

const (
	ProgressAuto  = "auto"
	ProgressBar   = "bar"
	ProgressLines = "lines"
	ProgressNone  = "none"
)

// ProgressModes are the valid values of Config.Progress.
var ProgressModes = []string{ProgressAuto, ProgressBar, ProgressLines, ProgressNone}

const (
	DefaultPython        = "python3"
	DefaultSlowThreshold = 10 * time.Second
	DefaultSlowestCount  = 10
)

type Config struct {
	// Python is the interpreter used to load modules and run tests.
	Python string `yaml:"python"`
	// Exclude lists patterns for directory names that are not scanned for test modules.
	Exclude []string `yaml:"exclude"`
	// Pairs are run in addition to the ones found by scanning, with paths relative to the
	// directory being tested.
	Pairs []Pair `yaml:"pairs"`
	// Progress is one of ProgressModes.
	Progress string `yaml:"progress"`
	// SlowThreshold is how long a run has to take before the slowest tests are reported.
	SlowThreshold time.Duration `yaml:"slow_threshold"`
	// SlowestCount is how many of the slowest tests are reported.
	SlowestCount int `yaml:"slowest_count"`
	// Color enables colored output. If unset, color is used when writing to a terminal.
	Color *bool `yaml:"color"`
	// Lock prevents concurrent runs over the same directory. Defaults to true.
	Lock *bool `yaml:"lock"`
	// ReportJSON, if set, is where a JSON report is written.
	ReportJSON string `yaml:"report_json"`
}

type Pair struct {
	Module string `yaml:"module"`
	Tests  string `yaml:"tests"`
}

func (p Pair) String() string {
	return p.Module + ":" + p.Tests
}

// ParsePair parses the "module.py:module_tests.py" form of a pair.
func ParsePair(s string) (Pair, error) {
	module, tests, ok := strings.Cut(s, ":")
	if !ok || module == "" || tests == "" {
		return Pair{}, &ValidationError{Field: "pair", Message: fmt.Sprintf("%q is not of the form module.py:module_tests.py", s)}
	}
	return Pair{Module: module, Tests: tests}, nil
}

// ValidationError describes an invalid configuration value.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func Default() Config {
	return Config{
		Python:        DefaultPython,
		Progress:      ProgressAuto,
		SlowThreshold: DefaultSlowThreshold,
		SlowestCount:  DefaultSlowestCount,
	}
}

// Load reads a configuration file. Settings that are not in the file have their default
// values; keys that are not recognized are an error.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadDir reads FileName from dir if it exists, and returns the defaults if it does not.
func LoadDir(dir string) (Config, error) {
	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return Load(path)
}

func Parse(data []byte) (Config, error) {
	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Python == "" {
		return &ValidationError{Field: "python", Message: "must not be empty"}
	}
	if !isProgressMode(c.Progress) {
		return &ValidationError{Field: "progress", Message: fmt.Sprintf("must be one of %s", strings.Join(ProgressModes, ", "))}
	}
	if c.SlowThreshold <= 0 {
		return &ValidationError{Field: "slow_threshold", Message: "must be positive"}
	}
	if c.SlowestCount < 1 {
		return &ValidationError{Field: "slowest_count", Message: "must be at least 1"}
	}
	for _, pattern := range c.Exclude {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return &ValidationError{Field: "exclude", Message: fmt.Sprintf("bad pattern %q", pattern)}
		}
	}
	for i, p := range c.Pairs {
		if p.Module == "" || p.Tests == "" {
			return &ValidationError{Field: fmt.Sprintf("pairs[%d]", i), Message: "module and tests are both required"}
		}
	}
	return nil
}

// LockEnabled reports whether runs should take the directory lock.
func (c Config) LockEnabled() bool {
	return c.Lock == nil || *c.Lock
}

func isProgressMode(s string) bool {
	for _, m := range ProgressModes {
		if s == m {
			return true
		}
	}
	return false
}
