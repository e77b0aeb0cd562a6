package framework

// Module is a loaded unit of code.
//
// Reload executes the module body again in place: the module keeps its identity (so code
// that imported it, and coverage analysis, still refer to the same module), but all of its
// top-level statements run again.
type Module interface {
	Name() string
	Path() string
	Reload() error
}

// Suite is the set of test cases defined by a test module.
//
// Run reports into the sink as each test runs. A test that fails or raises is reported
// through the sink and does not make Run return an error; an error from Run means the
// suite itself could not be run at all.
type Suite interface {
	CountTestCases() int
	Run(sink ResultSink) error
}

// ResultSink receives the lifecycle and outcome of every test case run by a Suite.
// StartTest and StopTest bracket each test; exactly one of the Add methods is called
// between them.
type ResultSink interface {
	StartTest(id TestID)
	StopTest(id TestID)
	AddSuccess(id TestID)
	AddError(id TestID, description string)
	AddFailure(id TestID, description string)
	AddSkip(id TestID, reason string)
}
