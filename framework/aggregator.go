package framework

import (
	"runtime/debug"
	"sync/atomic"
	"time"
)

// Aggregator collects everything that happens during a run: the outcome and timing of
// every test, and the coverage misses recorded after each module's tests have run. It is
// the ResultSink passed to every Suite in the run.
//
// It is also a Logger: output that the code under test writes while a test is running is
// attached to that test's result, and anything written between tests goes to the debug
// logger.
//
// Apart from Printf, an Aggregator must only be used from the goroutine that runs the tests.
type Aggregator struct {
	results     Results
	testLogger  TestLogger
	debugLogger Logger
	now         func() time.Time
	current     *runningTest
	inTest      atomic.Bool
	output      CapturingLogger
}

type runningTest struct {
	id       TestID
	started  time.Time
	outcomes []TestResult
}

type AggregatorOption func(*Aggregator)

// WithClock replaces time.Now for measuring test durations.
func WithClock(now func() time.Time) AggregatorOption {
	return func(a *Aggregator) { a.now = now }
}

// WithDebugLogger sets where output written outside of any test, and internal problems
// such as a panicking TestLogger, are reported.
func WithDebugLogger(logger Logger) AggregatorOption {
	return func(a *Aggregator) {
		if logger != nil {
			a.debugLogger = logger
		}
	}
}

// NewAggregator creates an Aggregator for a run of total test cases.
func NewAggregator(total int, testLogger TestLogger, options ...AggregatorOption) *Aggregator {
	if testLogger == nil {
		testLogger = nullTestLogger{}
	}
	a := &Aggregator{
		testLogger:  testLogger,
		debugLogger: NullLogger(),
		now:         time.Now,
	}
	a.results.Total = total
	for _, o := range options {
		o(a)
	}
	return a
}

func (a *Aggregator) StartTest(id TestID) {
	if a.current != nil {
		a.finish(a.current)
	}
	a.results.TestsRun++
	n, total := a.results.TestsRun, a.results.Total
	a.notify(func(l TestLogger) { l.TestStarted(id, n, total) })
	a.current = &runningTest{id: id, started: a.now()}
	a.inTest.Store(true)
}

func (a *Aggregator) StopTest(id TestID) {
	end := a.now()
	t := a.current
	if t == nil || t.id.Key() != id.Key() {
		a.debugLogger.Printf("Test %s stopped without having been started", id)
		return
	}
	a.results.Timings = append(a.results.Timings, Timing{Elapsed: end.Sub(t.started), TestID: id})
	a.finish(t)
}

func (a *Aggregator) finish(t *runningTest) {
	a.current = nil
	a.inTest.Store(false)
	output := a.output.Take()

	if len(t.outcomes) == 0 {
		t.outcomes = append(t.outcomes, TestResult{TestID: t.id, Outcome: OutcomeSuccess})
	}
	failed := false
	for i := range t.outcomes {
		t.outcomes[i].Output = output
		a.record(t.outcomes[i])
		switch t.outcomes[i].Outcome {
		case OutcomeError, OutcomeFailure:
			failed = true
		}
	}
	if t.outcomes[0].Outcome == OutcomeSkipped && len(t.outcomes) == 1 {
		reason := t.outcomes[0].Description
		a.notify(func(l TestLogger) { l.TestSkipped(t.id, reason) })
		return
	}
	a.notify(func(l TestLogger) { l.TestFinished(t.id, failed) })
}

func (a *Aggregator) record(r TestResult) {
	a.results.Tests = append(a.results.Tests, r)
	switch r.Outcome {
	case OutcomeError:
		a.results.Errors = append(a.results.Errors, r)
	case OutcomeFailure:
		a.results.Failures = append(a.results.Failures, r)
	}
}

// add attaches an outcome to the running test. The interpreter can also report an error
// outside of any test, for instance when a class-level fixture raises; that is recorded
// on its own.
func (a *Aggregator) add(id TestID, outcome Outcome, description string) {
	r := TestResult{TestID: id, Outcome: outcome, Description: description}
	switch outcome {
	case OutcomeError, OutcomeFailure:
		a.notify(func(l TestLogger) { l.TestError(id, description) })
	}
	if a.current != nil && a.current.id.Key() == id.Key() {
		a.current.outcomes = append(a.current.outcomes, r)
		return
	}
	a.record(r)
}

func (a *Aggregator) AddSuccess(id TestID) {
	if a.current != nil && a.current.id.Key() == id.Key() {
		// A success with no other outcome is the default at StopTest.
		return
	}
	a.add(id, OutcomeSuccess, "")
}

func (a *Aggregator) AddError(id TestID, description string) {
	a.add(id, OutcomeError, description)
}

func (a *Aggregator) AddFailure(id TestID, description string) {
	a.add(id, OutcomeFailure, description)
}

func (a *Aggregator) AddSkip(id TestID, reason string) {
	a.add(id, OutcomeSkipped, reason)
}

// AddCoverageMiss records that a module was not fully covered by its tests.
func (a *Aggregator) AddCoverageMiss(miss CoverageMiss) {
	a.results.CoverageMisses = append(a.results.CoverageMisses, miss)
}

// Printf implements Logger. It is safe to call from any goroutine.
func (a *Aggregator) Printf(message string, args ...interface{}) {
	if a.inTest.Load() {
		a.output.Printf(message, args...)
		return
	}
	a.debugLogger.Printf(message, args...)
}

func (a *Aggregator) OK() bool {
	return a.results.OK()
}

// Results returns what has been collected so far. A test that was started but never
// stopped is included as if it had stopped now.
func (a *Aggregator) Results() Results {
	if a.current != nil {
		a.finish(a.current)
	}
	return a.results
}

func (a *Aggregator) notify(action func(TestLogger)) {
	defer func() {
		if r := recover(); r != nil {
			a.debugLogger.Printf("unexpected panic in test logger: %+v\n%s", r, string(debug.Stack()))
		}
	}()
	action(a.testLogger)
}
