package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/launchdarkly/covtest/framework"
)

// ConsoleTestLogger writes a line for every test, for output that is not a terminal or
// when the transient progress line is not wanted.
type ConsoleTestLogger struct {
	out io.Writer
}

func (c ConsoleTestLogger) TestStarted(id framework.TestID, number, total int) {
	fmt.Fprintf(c.out, "[%d/%d] %s\n", number, total, id)
}

func (c ConsoleTestLogger) TestError(id framework.TestID, description string) {
	lines := strings.Split(strings.TrimRight(description, "\n"), "\n")
	// the last line of a traceback is the exception itself
	fmt.Fprintf(c.out, "  %s\n", lines[len(lines)-1])
}

func (c ConsoleTestLogger) TestFinished(id framework.TestID, failed bool) {
	if failed {
		fmt.Fprintf(c.out, "  FAILED: %s\n", id)
	}
}

func (c ConsoleTestLogger) TestSkipped(id framework.TestID, reason string) {
	if reason == "" {
		fmt.Fprintf(c.out, "  SKIPPED: %s\n", id)
	} else {
		fmt.Fprintf(c.out, "  SKIPPED: %s (%s)\n", id, reason)
	}
}
