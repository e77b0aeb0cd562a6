// Package runner runs every pair's tests under its own coverage measurement.
//
// For each pair, in order, the Runner erases and starts coverage, reloads the module
// under test so that its top-level statements execute while coverage is recording, runs
// the test suite, stops coverage, and records the module's missed statements. Because
// the measurement is erased before every pair, a module only gets credit for statements
// executed by its own tests.
package runner

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/launchdarkly/covtest/coverage"
	"github.com/launchdarkly/covtest/framework"
	"github.com/launchdarkly/covtest/loader"
	"github.com/launchdarkly/covtest/pairing"

	"go.uber.org/multierr"
)

// Interpreter is everything the Runner needs from the interpreter: loading modules,
// measuring coverage, and sending the output of the code under test somewhere.
type Interpreter interface {
	loader.Backend
	coverage.Engine
	SetOutput(output framework.Logger)
}

// Run is the outcome of Runner.Run.
type Run struct {
	Results framework.Results
	Elapsed time.Duration
}

type Runner struct {
	interpreter Interpreter
	roots       []string
	testLogger  framework.TestLogger
	debugLogger framework.Logger
	now         func() time.Time
}

type Option func(*Runner)

// WithTestLogger sets the TestLogger that is told about each test as it runs.
func WithTestLogger(testLogger framework.TestLogger) Option {
	return func(r *Runner) { r.testLogger = testLogger }
}

func WithDebugLogger(debugLogger framework.Logger) Option {
	return func(r *Runner) {
		if debugLogger != nil {
			r.debugLogger = debugLogger
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// New creates a Runner. Coverage results for files under root are reported with paths
// relative to root.
func New(interpreter Interpreter, root string, options ...Option) *Runner {
	r := &Runner{
		interpreter: interpreter,
		testLogger:  framework.NullTestLogger(),
		debugLogger: framework.NullLogger(),
		now:         time.Now,
	}
	if root != "" {
		r.roots = rootForms(root)
	}
	for _, o := range options {
		o(r)
	}
	return r
}

// Run loads every pair and then runs them in order. An error means that the run could not
// be completed: a module could not be loaded, the interpreter failed, or ctx was
// canceled. Test failures and coverage misses are not errors; they are in the Results.
func (r *Runner) Run(ctx context.Context, pairs []pairing.Pair) (Run, error) {
	started := r.now()

	l := loader.New(r.interpreter)
	loaded := make([]loader.LoadedPair, 0, len(pairs))
	total := 0
	for _, p := range pairs {
		if err := ctx.Err(); err != nil {
			return Run{}, err
		}
		lp, err := l.LoadPair(p)
		if err != nil {
			return Run{}, r.abort(ctx, err)
		}
		r.debugLogger.Printf("Loaded %s (%d tests)", p, lp.Suite.CountTestCases())
		loaded = append(loaded, lp)
		total += lp.Suite.CountTestCases()
	}

	agg := framework.NewAggregator(total, r.testLogger,
		framework.WithDebugLogger(r.debugLogger),
		framework.WithClock(r.now),
	)
	r.interpreter.SetOutput(agg)
	defer r.interpreter.SetOutput(nil)

	recorder := coverage.NewRecorder(r.interpreter)
	for _, lp := range loaded {
		if err := ctx.Err(); err != nil {
			return Run{}, err
		}
		if err := r.runPair(recorder, agg, lp); err != nil {
			return Run{}, r.abort(ctx, err)
		}
	}

	return Run{Results: agg.Results(), Elapsed: r.now().Sub(started)}, nil
}

func (r *Runner) runPair(recorder *coverage.Recorder, agg *framework.Aggregator, lp loader.LoadedPair) (err error) {
	r.debugLogger.Printf("Running tests for %s", lp.Pair)
	session, err := recorder.Begin()
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, session.End())
	}()

	// The module's top-level statements ran when it was first loaded, before coverage
	// was recording. Running them again now is what lets them count as covered.
	if err := lp.Module.Reload(); err != nil {
		return fmt.Errorf("reloading %s: %w", lp.ModulePath, err)
	}
	if err := lp.Suite.Run(agg); err != nil {
		return fmt.Errorf("running tests in %s: %w", lp.TestModulePath, err)
	}
	if err := session.End(); err != nil {
		return err
	}

	analysis, err := session.Analyze(lp.Module)
	if err != nil {
		return err
	}
	analysis.Identifier = r.relative(analysis.Identifier)
	if miss, missed := analysis.Miss(); missed {
		r.debugLogger.Printf("%s missed statements %s", miss.Module, miss.Description)
		agg.AddCoverageMiss(miss)
	}
	return nil
}

// abort prefers the context's error, since a canceled run usually shows up first as the
// interpreter being killed in the middle of a command.
func (r *Runner) abort(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

func (r *Runner) relative(identifier string) string {
	if !filepath.IsAbs(identifier) {
		return identifier
	}
	for _, root := range r.roots {
		rel, err := filepath.Rel(root, identifier)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return rel
		}
	}
	return identifier
}

// rootForms returns the absolute path of root, and also the path with symbolic links
// resolved if that is different; the interpreter reports canonical file names.
func rootForms(root string) []string {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil
	}
	forms := []string{abs}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil && resolved != abs {
		forms = append(forms, resolved)
	}
	return forms
}
