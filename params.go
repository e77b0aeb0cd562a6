package main

import (
	"fmt"
	"path/filepath"

	"github.com/launchdarkly/covtest/config"

	"github.com/spf13/cobra"
)

type commandParams struct {
	configPath string
	python     string
	pairs      []string
	exclude    []string
	progress   string
	noColor    bool
	debug      bool
	debugAll   bool
	reportJSON string
	noLock     bool
}

func (c *commandParams) bind(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&c.configPath, "config", "", "configuration file (default: "+config.FileName+" in the directory being tested)")
	fs.StringVar(&c.python, "python", "", "Python interpreter to run tests with (default \""+config.DefaultPython+"\")")
	fs.StringArrayVar(&c.pairs, "pair", nil, "run module.py:module_tests.py as an additional pair (repeatable)")
	fs.StringArrayVar(&c.exclude, "exclude", nil, "do not scan directories with this name or pattern (repeatable)")
	fs.StringVar(&c.progress, "progress", "", "how to show progress: auto, bar, lines or none")
	fs.BoolVar(&c.noColor, "no-color", false, "disable colored output")
	fs.BoolVar(&c.debug, "debug", false, "show the output of failed tests")
	fs.BoolVar(&c.debugAll, "debug-all", false, "log everything sent to and received from the interpreter")
	fs.StringVar(&c.reportJSON, "report-json", "", "also write a JSON report to this file")
	fs.BoolVar(&c.noLock, "no-lock", false, "allow another run over the same directory at the same time")
}

// settings are the parameters of a run after the configuration file and the command line
// have been combined.
type settings struct {
	root       string
	config     config.Config
	pairs      []config.Pair
	showOutput bool
	debugAll   bool
	color      *bool
}

// resolve loads the configuration file and applies the command line on top of it.
// Explicit pairs from both are resolved relative to root.
func (c *commandParams) resolve(cmd *cobra.Command, root string) (settings, error) {
	var cfg config.Config
	var err error
	if c.configPath != "" {
		cfg, err = config.Load(c.configPath)
	} else {
		cfg, err = config.LoadDir(root)
	}
	if err != nil {
		return settings{}, err
	}

	flags := cmd.Flags()
	if flags.Changed("python") {
		cfg.Python = c.python
	}
	cfg.Exclude = append(cfg.Exclude, c.exclude...)
	if flags.Changed("progress") {
		cfg.Progress = c.progress
	}
	if c.noColor {
		no := false
		cfg.Color = &no
	}
	if c.reportJSON != "" {
		cfg.ReportJSON = c.reportJSON
	}
	if c.noLock {
		no := false
		cfg.Lock = &no
	}
	for _, s := range c.pairs {
		p, err := config.ParsePair(s)
		if err != nil {
			return settings{}, err
		}
		cfg.Pairs = append(cfg.Pairs, p)
	}
	if err := cfg.Validate(); err != nil {
		return settings{}, err
	}

	s := settings{
		root:       root,
		config:     cfg,
		showOutput: c.debug || c.debugAll,
		debugAll:   c.debugAll,
		color:      cfg.Color,
	}
	for _, p := range cfg.Pairs {
		s.pairs = append(s.pairs, config.Pair{Module: underRoot(root, p.Module), Tests: underRoot(root, p.Tests)})
	}
	return s, nil
}

func underRoot(root, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

// usageError is a problem with the command line or configuration.
type usageError struct {
	err error
}

func (e usageError) Error() string { return e.err.Error() }

func (e usageError) Unwrap() error { return e.err }

func usageErrorf(format string, args ...interface{}) error {
	return usageError{err: fmt.Errorf(format, args...)}
}
