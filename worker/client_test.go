package worker

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/launchdarkly/covtest/framework"
	"github.com/launchdarkly/covtest/loader"
	"github.com/launchdarkly/covtest/servicedef"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const helperModeVar = "COVTEST_HELPER_MODE"

// startFake starts this test binary as the interpreter, running TestHelperProcess in place
// of the harness script.
func startFake(t *testing.T, mode string, output framework.Logger) *Client {
	c, err := Start(context.Background(), Config{
		Python:     os.Args[0],
		PythonArgs: []string{"-test.run=TestHelperProcess", "--"},
		Env:        append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", helperModeVar+"="+mode),
		Output:     output,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

type recordingSink struct {
	events []string
}

func (s *recordingSink) StartTest(id framework.TestID)            { s.add("start", id, "") }
func (s *recordingSink) StopTest(id framework.TestID)             { s.add("stop", id, "") }
func (s *recordingSink) AddSuccess(id framework.TestID)           { s.add("success", id, "") }
func (s *recordingSink) AddError(id framework.TestID, d string)   { s.add("error", id, d) }
func (s *recordingSink) AddFailure(id framework.TestID, d string) { s.add("failure", id, d) }
func (s *recordingSink) AddSkip(id framework.TestID, d string)    { s.add("skip", id, d) }

func (s *recordingSink) add(event string, id framework.TestID, details string) {
	line := event + " " + id.String()
	if details != "" {
		line += ": " + details
	}
	s.events = append(s.events, line)
}

func TestStartReadsStatus(t *testing.T) {
	c := startFake(t, "normal", nil)

	assert.Equal(t, "fake interpreter", c.Status().Description)
	assert.Equal(t, map[loader.Kind][]string{
		loader.KindSource:   {".py"},
		loader.KindCompiled: {".pyc"},
	}, c.ModuleSuffixes())
}

func TestLoadDiscoverAndRun(t *testing.T) {
	c := startFake(t, "normal", nil)

	m, err := c.LoadModule("foo_tests", "pkg/foo_tests.py", loader.KindSource)
	require.NoError(t, err)
	assert.Equal(t, "foo_tests", m.Name())
	assert.Equal(t, "pkg/foo_tests.py", m.Path())

	suite, err := c.LoadTests(m)
	require.NoError(t, err)
	assert.Equal(t, 2, suite.CountTestCases())

	var sink recordingSink
	require.NoError(t, suite.Run(&sink))
	assert.Equal(t, []string{
		"start test_ok (foo_tests.T)",
		"success test_ok (foo_tests.T)",
		"stop test_ok (foo_tests.T)",
		"start test_bad (foo_tests.T)",
		"failure test_bad (foo_tests.T): AssertionError",
		"stop test_bad (foo_tests.T)",
	}, sink.events)
}

func TestRunSplitsTestIDIntoPath(t *testing.T) {
	id := testID(servicedef.TestInfo{ID: "foo_tests.T.test_ok", Description: "test_ok (foo_tests.T)"})
	assert.Equal(t, []string{"foo_tests", "T", "test_ok"}, id.Path)
	assert.Equal(t, "test_ok (foo_tests.T)", id.String())
}

func TestCoverageCommands(t *testing.T) {
	c := startFake(t, "normal", nil)

	m, err := c.LoadModule("foo", "foo.py", loader.KindSource)
	require.NoError(t, err)
	require.NoError(t, c.Erase())
	require.NoError(t, c.Start())
	require.NoError(t, m.Reload())
	require.NoError(t, c.Stop())

	a, err := c.Analyze(m)
	require.NoError(t, err)
	assert.Equal(t, "/abs/foo.py", a.Identifier)
	assert.Equal(t, []int{1, 2, 4}, a.Statements)
	assert.Equal(t, []int{4}, a.Missed)
	assert.Equal(t, "4", a.Description)
}

func TestErrorReplyBecomesWorkerError(t *testing.T) {
	c := startFake(t, "normal", nil)

	_, err := c.LoadModule("broken", "broken.py", loader.KindSource)
	require.Error(t, err)
	var workerErr *framework.WorkerError
	require.ErrorAs(t, err, &workerErr)
	assert.Equal(t, servicedef.CommandLoad, workerErr.Command)
	assert.Equal(t, "broken.py", workerErr.Target)
	assert.Contains(t, workerErr.Message, "SyntaxError")

	// an error reply leaves the connection usable
	_, err = c.LoadModule("foo", "foo.py", loader.KindSource)
	assert.NoError(t, err)
}

func TestOutputIsForwarded(t *testing.T) {
	output := &framework.CapturingLogger{}
	c := startFake(t, "normal", output)

	m, err := c.LoadModule("noisy", "noisy.py", loader.KindSource)
	require.NoError(t, err)
	require.NoError(t, c.Close())

	assert.Equal(t, "noisy", m.Name())
	var lines []string
	for _, m := range output.Output() {
		lines = append(lines, m.Message)
	}
	assert.Equal(t, []string{"hello from noisy"}, lines)
}

func TestUnexpectedExitIsReported(t *testing.T) {
	c := startFake(t, "crash", nil)

	_, err := c.LoadModule("foo", "foo.py", loader.KindSource)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "interpreter exited unexpectedly")
	assert.Contains(t, err.Error(), "Segmentation fault")

	// the connection stays broken
	assert.Equal(t, err, c.Erase())
}

func TestOutOfSequenceReplyBreaksConnection(t *testing.T) {
	c := startFake(t, "badseq", nil)

	err := c.Erase()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected reply")
	assert.Error(t, c.Start())
}

func TestModuleFromAnotherClientIsRejected(t *testing.T) {
	c := startFake(t, "normal", nil)

	_, err := c.LoadTests(fakeModule{})
	assert.Error(t, err)
}

func TestCloseDoesNotWaitForBackgroundProcessHoldingOutput(t *testing.T) {
	c := startFake(t, "orphan", nil)

	started := time.Now()
	require.NoError(t, c.Close())
	assert.Less(t, time.Since(started), outputGracePeriod+3*time.Second)
}

func TestStartFailsForMissingInterpreter(t *testing.T) {
	_, err := Start(context.Background(), Config{Python: "/nonexistent/python-for-covtest"})
	assert.Error(t, err)
}

type fakeModule struct{}

func (fakeModule) Name() string  { return "x" }
func (fakeModule) Path() string  { return "x.py" }
func (fakeModule) Reload() error { return nil }

// TestHelperProcess isn't a real test. It stands in for the interpreter in the tests above.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	mode := os.Getenv(helperModeVar)
	if mode == "linger" {
		time.Sleep(15 * time.Second)
		os.Exit(0)
	}
	if mode == "orphan" {
		startLingeringChild()
	}
	fakeInterpreter(mode)
	os.Exit(0)
}

// startLingeringChild leaves a process running that shares this process's stderr, the
// way a test that spawns a server and never stops it would.
func startLingeringChild() {
	cmd := exec.Command(os.Args[0], "-test.run=TestHelperProcess", "--")
	cmd.Env = append(os.Environ(), helperModeVar+"=linger")
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}

func fakeInterpreter(mode string) {
	out := json.NewEncoder(os.Stdout)
	reply := func(r servicedef.Reply) { _ = out.Encode(r) }

	reply(servicedef.Reply{Seq: 0, Done: true, Status: &servicedef.StatusInfo{
		Description: "fake interpreter",
		Suffixes:    map[string][]string{"source": {".py"}, "compiled": {".pyc"}, "unknown": {".x"}},
	}})

	handles := map[int]string{}
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		var cmd servicedef.CommandParams
		if err := json.Unmarshal(scanner.Bytes(), &cmd); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		switch mode {
		case "crash":
			fmt.Fprintln(os.Stderr, "Fatal Python error: Segmentation fault")
			os.Exit(139)
		case "badseq":
			reply(servicedef.Reply{Seq: cmd.Seq + 100, Done: true})
			continue
		}
		switch cmd.Command {
		case servicedef.CommandLoad:
			if cmd.Load.Name == "broken" {
				reply(servicedef.Reply{Seq: cmd.Seq, Done: true, Error: "SyntaxError: invalid syntax"})
				continue
			}
			if cmd.Load.Name == "noisy" {
				fmt.Fprintln(os.Stderr, "hello from noisy")
			}
			h := len(handles) + 1
			handles[h] = cmd.Load.Name
			reply(servicedef.Reply{Seq: cmd.Seq, Done: true, Handle: ldvalue.NewOptionalInt(h)})
		case servicedef.CommandDiscover:
			h := len(handles) + 1
			handles[h] = "suite"
			reply(servicedef.Reply{Seq: cmd.Seq, Done: true, Handle: ldvalue.NewOptionalInt(h), Count: ldvalue.NewOptionalInt(2)})
		case servicedef.CommandRun:
			event := func(name, test, details string) {
				reply(servicedef.Reply{Seq: cmd.Seq, Event: name, Details: details, Test: &servicedef.TestInfo{
					ID:          "foo_tests.T." + test,
					Description: test + " (foo_tests.T)",
				}})
			}
			event(servicedef.EventStartTest, "test_ok", "")
			event(servicedef.EventSuccess, "test_ok", "")
			event(servicedef.EventStopTest, "test_ok", "")
			event(servicedef.EventStartTest, "test_bad", "")
			event(servicedef.EventFailure, "test_bad", "AssertionError")
			event(servicedef.EventStopTest, "test_bad", "")
			reply(servicedef.Reply{Seq: cmd.Seq, Done: true})
		case servicedef.CommandAnalyze:
			reply(servicedef.Reply{Seq: cmd.Seq, Done: true, Analysis: &servicedef.AnalysisInfo{
				Filename: "/abs/foo.py", Statements: []int{1, 2, 4}, Missed: []int{4}, Description: "4",
			}})
		case servicedef.CommandQuit:
			reply(servicedef.Reply{Seq: cmd.Seq, Done: true})
			return
		default:
			reply(servicedef.Reply{Seq: cmd.Seq, Done: true})
		}
	}
}
