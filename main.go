package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/launchdarkly/covtest/config"
	"github.com/launchdarkly/covtest/framework"
	"github.com/launchdarkly/covtest/lockfile"
	"github.com/launchdarkly/covtest/logging"
	"github.com/launchdarkly/covtest/pairing"
	"github.com/launchdarkly/covtest/report"
	"github.com/launchdarkly/covtest/runner"
	"github.com/launchdarkly/covtest/worker"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

const (
	exitOK          = 0
	exitFailed      = 1
	exitUsage       = 2
	exitEnvironment = 3
)

// errRunFailed is returned by the command when the tests ran but the run did not pass.
var errRunFailed = errors.New("run failed")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the command line and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCommand(stdout, stderr)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	if errors.Is(err, errRunFailed) {
		return exitFailed
	}
	fmt.Fprintf(stderr, "Error: %s\n", err)
	return exitCode(err)
}

func exitCode(err error) int {
	var ue usageError
	var ve *config.ValidationError
	switch {
	case errors.As(err, &ue), errors.As(err, &ve):
		return exitUsage
	default:
		return exitEnvironment
	}
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	var params commandParams
	cmd := &cobra.Command{
		Use:   "covtest [directory]",
		Short: "Run each module's tests and require them to cover the module completely",
		Long: `covtest finds every Python module in a directory tree that has a test module next
to it (name.py with name_tests.py or nameTests.py), runs each test module, and measures
the statement coverage of its module while only that module's tests are running.

The run passes only if every test passes and every paired module is fully covered by
its own tests.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.MaximumNArgs(1)(cmd, args); err != nil {
				return usageError{err: err}
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) > 0 {
				root = args[0]
			}
			if info, err := os.Stat(root); err != nil || !info.IsDir() {
				return usageErrorf("%s is not a directory", root)
			}
			s, err := params.resolve(cmd, root)
			if err != nil {
				return usageError{err: err}
			}
			ok, err := runCovtest(cmd.Context(), s, stdout, stderr)
			if err != nil {
				return err
			}
			if !ok {
				return errRunFailed
			}
			return nil
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err: err}
	})
	params.bind(cmd)
	return cmd
}

// runCovtest runs every pair under root and writes the report. It returns whether the
// run passed; an error means that the run could not be completed.
func runCovtest(ctx context.Context, s settings, stdout, stderr io.Writer) (bool, error) {
	debugLogger := logging.New(stderr, "covtest", s.debugAll)
	defer func() { _ = debugLogger.Sync() }()

	if s.config.LockEnabled() {
		lockPath, err := lockfile.PathFor(s.root)
		if err != nil {
			return false, err
		}
		lock := lockfile.New(lockPath)
		if err := lock.Acquire(); err != nil {
			return false, err
		}
		defer func() { _ = lock.Release() }()
		debugLogger.Printf("Holding lock %s", lockPath)
	}

	finder := pairing.NewFinder(s.config.Exclude, debugLogger.Named("pairing"))
	for _, p := range s.pairs {
		finder.AddPair(p.Module, p.Tests)
	}
	if err := finder.FindPairs(s.root); err != nil {
		return false, fmt.Errorf("scanning %s: %w", s.root, err)
	}

	client, err := worker.Start(ctx, worker.Config{
		Python:      s.config.Python,
		Output:      debugLogger.Named("interpreter"),
		DebugLogger: debugLogger.Named("worker"),
	})
	if err != nil {
		return false, err
	}
	defer func() { _ = client.Close() }()
	debugLogger.Printf("Interpreter: %s", client.Status().Description)

	testLogger, progress := newTestLogger(s.config.Progress, stdout)
	result, err := runner.New(client, s.root,
		runner.WithTestLogger(testLogger),
		runner.WithDebugLogger(debugLogger.Named("runner")),
	).Run(ctx, finder.Pairs())
	if progress != nil {
		progress.Clear()
	}
	if err != nil {
		return false, err
	}

	color := s.color != nil && *s.color
	if s.color == nil {
		color = isTerminal(stdout)
	}
	report.New(stdout, report.Options{
		SlowThreshold: s.config.SlowThreshold,
		SlowestCount:  s.config.SlowestCount,
		ShowOutput:    s.showOutput,
		Color:         color,
	}).Write(result.Results, result.Elapsed)

	if s.config.ReportJSON != "" {
		if _, err := report.WriteJSON(s.config.ReportJSON, result.Results, result.Elapsed); err != nil {
			return false, fmt.Errorf("writing JSON report: %w", err)
		}
	}
	return result.Results.OK(), nil
}

// newTestLogger picks how progress is shown. The ProgressLogger, if one is used, is also
// returned so that its last line can be erased before the report is written.
func newTestLogger(mode string, out io.Writer) (framework.TestLogger, *framework.ProgressLogger) {
	if mode == config.ProgressAuto {
		mode = config.ProgressNone
		if isTerminal(out) {
			mode = config.ProgressBar
		}
	}
	switch mode {
	case config.ProgressBar:
		p := framework.NewProgressLogger(out)
		return p, p
	case config.ProgressLines:
		return ConsoleTestLogger{out: out}, nil
	default:
		return framework.NullTestLogger(), nil
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
