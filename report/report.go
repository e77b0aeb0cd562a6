// Package report writes the summary of a run.
//
// The text report has a fixed layout: an OK or FAILED banner; for a failed run the
// errors, the failures, a table of the statements each module's tests missed, and the
// failure and error counts; the slowest tests if the run took long; and the total time.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/launchdarkly/covtest/config"
	"github.com/launchdarkly/covtest/framework"

	"github.com/fatih/color"
)

const (
	slowestNameLength = 70
	outputPrefix      = "    OUTPUT "
)

type Options struct {
	// SlowThreshold is how long a run has to take before the slowest tests are listed.
	SlowThreshold time.Duration
	// SlowestCount is how many of the slowest tests are listed.
	SlowestCount int
	// ShowOutput adds the output captured from each failed test after its description.
	ShowOutput bool
	// Color enables a green or red banner.
	Color bool
}

func DefaultOptions() Options {
	return Options{SlowThreshold: config.DefaultSlowThreshold, SlowestCount: config.DefaultSlowestCount}
}

type Reporter struct {
	out     io.Writer
	options Options
}

// New returns a Reporter. Zero values in options select the defaults.
func New(out io.Writer, options Options) *Reporter {
	defaults := DefaultOptions()
	if options.SlowThreshold <= 0 {
		options.SlowThreshold = defaults.SlowThreshold
	}
	if options.SlowestCount <= 0 {
		options.SlowestCount = defaults.SlowestCount
	}
	return &Reporter{out: out, options: options}
}

// Write writes the report for a run that took elapsed.
func (r *Reporter) Write(results framework.Results, elapsed time.Duration) {
	fmt.Fprint(r.out, "\n\n")

	if results.OK() {
		r.banner(color.FgGreen, "OK")
	} else {
		r.banner(color.FgRed, "FAILED")
		fmt.Fprintln(r.out)
		r.writeErrorList("ERROR", results.Errors)
		r.writeErrorList("FAILURE", results.Failures)
		if len(results.CoverageMisses) > 0 {
			fmt.Fprintln(r.out)
			r.writeMisses(results.CoverageMisses)
			fmt.Fprintln(r.out)
		}
		fmt.Fprintf(r.out, "%d failures, %d errors\n", len(results.Failures), len(results.Errors))
	}

	if elapsed > r.options.SlowThreshold {
		fmt.Fprintln(r.out)
		fmt.Fprintln(r.out, "Slowest tests:")
		for _, t := range Slowest(results.Timings, r.options.SlowestCount) {
			fmt.Fprintf(r.out, "  %5.1f s %s\n", t.Elapsed.Seconds(), framework.Truncate(t.TestID.String(), slowestNameLength))
		}
	}

	fmt.Fprintf(r.out, "Time: %.1f s\n", elapsed.Seconds())
}

func (r *Reporter) banner(attr color.Attribute, text string) {
	c := color.New(attr, color.Bold)
	if r.options.Color {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	_, _ = c.Fprint(r.out, text)
	fmt.Fprintln(r.out)
}

func (r *Reporter) writeErrorList(flavor string, list []framework.TestResult) {
	for _, t := range list {
		fmt.Fprintf(r.out, "%s: %s\n", flavor, t.TestID)
		fmt.Fprintln(r.out, t.Description)
		if r.options.ShowOutput && len(t.Output) > 0 {
			t.Output.Dump(r.out, outputPrefix)
		}
	}
}

func (r *Reporter) writeMisses(misses []framework.CoverageMiss) {
	fmt.Fprintln(r.out, "Statements missed by per-module tests:")
	width := 0
	for _, m := range misses {
		if n := utf8.RuneCountInString(m.Module); n > width {
			width = n
		}
	}
	const format = "  %-*s   %s\n"
	fmt.Fprintf(r.out, format, width, "Module", "Missed statements")
	for _, m := range SortedMisses(misses) {
		fmt.Fprintf(r.out, format, width, m.Module, m.Description)
	}
}

// SortedMisses returns the misses in ascending order of module identifier.
func SortedMisses(misses []framework.CoverageMiss) []framework.CoverageMiss {
	ret := append([]framework.CoverageMiss(nil), misses...)
	sort.SliceStable(ret, func(i, j int) bool {
		return ret[i].Module < ret[j].Module
	})
	return ret
}

// Slowest returns the n longest timings, in ascending order of duration. Timings with
// equal durations are ordered by test name.
func Slowest(timings []framework.Timing, n int) []framework.Timing {
	sorted := append([]framework.Timing(nil), timings...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Elapsed != sorted[j].Elapsed {
			return sorted[i].Elapsed < sorted[j].Elapsed
		}
		return strings.Compare(sorted[i].TestID.String(), sorted[j].TestID.String()) < 0
	})
	if len(sorted) > n {
		sorted = sorted[len(sorted)-n:]
	}
	return sorted
}
