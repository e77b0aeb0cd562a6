package framework

// TestLogger is told about each test as it runs. Implementations only produce console
// output; they cannot change the outcome of a run.
type TestLogger interface {
	TestStarted(id TestID, number, total int)
	TestError(id TestID, description string)
	TestFinished(id TestID, failed bool)
	TestSkipped(id TestID, reason string)
}

type nullTestLogger struct{}

func (n nullTestLogger) TestStarted(TestID, int, int) {}
func (n nullTestLogger) TestError(TestID, string)     {}
func (n nullTestLogger) TestFinished(TestID, bool)    {}
func (n nullTestLogger) TestSkipped(TestID, string)   {}

// NullTestLogger returns a TestLogger that does nothing.
func NullTestLogger() TestLogger { return nullTestLogger{} }
