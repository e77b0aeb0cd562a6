package report

import (
	"encoding/json"
	"time"

	"github.com/launchdarkly/covtest/framework"
	"github.com/launchdarkly/covtest/lockfile"

	"github.com/google/uuid"
)

// JSONReport is the machine-readable form of a run's results.
type JSONReport struct {
	RunID          string           `json:"runId"`
	OK             bool             `json:"ok"`
	TestsRun       int              `json:"testsRun"`
	Total          int              `json:"total"`
	ElapsedSeconds float64          `json:"elapsedSeconds"`
	Errors         []JSONTestResult `json:"errors"`
	Failures       []JSONTestResult `json:"failures"`
	CoverageMisses []JSONMiss       `json:"coverageMisses"`
	Timings        []JSONTiming     `json:"timings"`
}

type JSONTestResult struct {
	Test        string   `json:"test"`
	Description string   `json:"description"`
	Output      []string `json:"output,omitempty"`
}

type JSONMiss struct {
	Module      string `json:"module"`
	Statements  []int  `json:"statements"`
	Missed      []int  `json:"missed"`
	Description string `json:"description"`
}

type JSONTiming struct {
	Test    string  `json:"test"`
	Seconds float64 `json:"seconds"`
}

// NewJSONReport builds the JSON form of a run's results with a new run ID.
func NewJSONReport(results framework.Results, elapsed time.Duration) JSONReport {
	r := JSONReport{
		RunID:          uuid.New().String(),
		OK:             results.OK(),
		TestsRun:       results.TestsRun,
		Total:          results.Total,
		ElapsedSeconds: elapsed.Seconds(),
		Errors:         jsonTestResults(results.Errors),
		Failures:       jsonTestResults(results.Failures),
		CoverageMisses: []JSONMiss{},
		Timings:        []JSONTiming{},
	}
	for _, m := range SortedMisses(results.CoverageMisses) {
		r.CoverageMisses = append(r.CoverageMisses, JSONMiss(m))
	}
	for _, t := range results.Timings {
		r.Timings = append(r.Timings, JSONTiming{Test: t.TestID.String(), Seconds: t.Elapsed.Seconds()})
	}
	return r
}

func jsonTestResults(list []framework.TestResult) []JSONTestResult {
	ret := []JSONTestResult{}
	for _, t := range list {
		jr := JSONTestResult{Test: t.TestID.String(), Description: t.Description}
		for _, m := range t.Output {
			jr.Output = append(jr.Output, m.Message)
		}
		ret = append(ret, jr)
	}
	return ret
}

// WriteJSON writes the JSON report to path. Readers of path never see a partly written
// report.
func WriteJSON(path string, results framework.Results, elapsed time.Duration) (JSONReport, error) {
	r := NewJSONReport(results, elapsed)
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return r, err
	}
	return r, lockfile.AtomicWrite(path, append(data, '\n'))
}
