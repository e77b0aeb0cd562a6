package framework

import (
	"fmt"
	"strings"
	"time"
)

// Outcome is the final state of a single test case.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeFailure
	OutcomeError
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	case OutcomeError:
		return "error"
	case OutcomeSkipped:
		return "skipped"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// TestID identifies a test case. Path is the dotted identifier split into its parts
// (module, class, method); Description is how the interpreter prints the test, which is
// what reports show when it is available.
type TestID struct {
	Path        []string
	Description string
}

func (t TestID) String() string {
	if t.Description != "" {
		return t.Description
	}
	return strings.Join(t.Path, ".")
}

// Key returns a value that is equal for two TestIDs referring to the same test.
func (t TestID) Key() string {
	return strings.Join(t.Path, ".") + "|" + t.Description
}

type TestResult struct {
	TestID      TestID
	Outcome     Outcome
	Description string
	Output      CapturedOutput
}

// CoverageMiss records the statements of one module that its paired tests never executed.
// A module whose statements were all executed never gets one.
type CoverageMiss struct {
	Module      string
	Statements  []int
	Missed      []int
	Description string
}

type Timing struct {
	Elapsed time.Duration
	TestID  TestID
}

type Results struct {
	Tests          []TestResult
	Errors         []TestResult
	Failures       []TestResult
	CoverageMisses []CoverageMiss
	Timings        []Timing
	TestsRun       int
	Total          int
}

// OK is true only if no test raised an error, no test failed, and every module was
// fully covered by its tests.
func (r Results) OK() bool {
	return len(r.Errors) == 0 && len(r.Failures) == 0 && len(r.CoverageMisses) == 0
}
