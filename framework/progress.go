package framework

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

const progressNameLength = 50

// ProgressLogger is a TestLogger that keeps a single transient line of the form
// "Running test N/total: name" on a terminal. Each new message erases the previous one
// with backspaces, and Clear erases the last one so that whatever is written next starts
// from a clean line.
type ProgressLogger struct {
	out     io.Writer
	lastLen int
}

func NewProgressLogger(out io.Writer) *ProgressLogger {
	return &ProgressLogger{out: out}
}

func (p *ProgressLogger) TestStarted(id TestID, number, total int) {
	p.Clear()
	msg := fmt.Sprintf("Running test %d/%d: %s", number, total, Truncate(id.String(), progressNameLength))
	// Newlines in a test description would break the overwrite.
	msg = strings.ReplaceAll(msg, "\n", " ")
	_, _ = io.WriteString(p.out, msg)
	p.lastLen = utf8.RuneCountInString(msg)
}

func (p *ProgressLogger) TestError(TestID, string)   {}
func (p *ProgressLogger) TestFinished(TestID, bool)  {}
func (p *ProgressLogger) TestSkipped(TestID, string) {}

// Clear erases the current progress message, if any.
func (p *ProgressLogger) Clear() {
	if p.lastLen == 0 {
		return
	}
	_, _ = io.WriteString(p.out, strings.Repeat("\b \b", p.lastLen))
	p.lastLen = 0
}

// Truncate shortens s to at most n characters.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
