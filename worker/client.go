// Package worker runs the Python interpreter that loads modules, runs their tests, and
// measures coverage, and provides the loader, suite and coverage engine implementations
// that talk to it.
//
// The interpreter is a child process running a small harness script that is embedded in
// this package. The two sides exchange the line-delimited JSON messages defined in the
// servicedef package over the child's stdin and stdout. The child's stderr carries any
// output written by the code under test, which is passed line by line to a Logger.
//
// A Client is not safe for concurrent use: commands are sent one at a time, and each one
// waits for its replies before returning.
package worker

import (
	"bufio"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	covconfig "github.com/launchdarkly/covtest/config"
	"github.com/launchdarkly/covtest/framework"
	"github.com/launchdarkly/covtest/loader"
	"github.com/launchdarkly/covtest/servicedef"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

//go:embed harness.py
var harnessScript []byte

const (
	harnessFileName = "covtest_harness.py"
	stderrTailLines = 20

	// outputGracePeriod bounds the wait for stderr to reach EOF once the interpreter is
	// gone; a background process it started may hold the pipe open indefinitely.
	outputGracePeriod = 2 * time.Second
)

// ErrClosed is returned by commands sent after Close.
var ErrClosed = errors.New("interpreter worker is closed")

// Config describes how to start the interpreter.
type Config struct {
	// Python is the interpreter executable. Defaults to config.DefaultPython.
	Python string
	// PythonArgs are passed to the interpreter before the harness script.
	PythonArgs []string
	// Dir is the interpreter's working directory.
	Dir string
	// Env, if not nil, replaces the interpreter's environment.
	Env []string
	// Output receives each line the interpreter writes to stderr.
	Output framework.Logger
	// DebugLogger receives a log of the protocol traffic.
	DebugLogger framework.Logger
}

type Client struct {
	cmd         *exec.Cmd
	stdin       io.WriteCloser
	replies     *bufio.Reader
	status      servicedef.StatusInfo
	scriptDir   string
	debugLogger framework.Logger
	output      framework.Logger
	stderrTail  []string
	stderrDone  chan struct{}
	lastSeq     int
	broken      error
	closeOnce   sync.Once
	lock        sync.Mutex
}

// Start launches the interpreter and waits for it to report its status. Canceling ctx
// kills the interpreter.
func Start(ctx context.Context, config Config) (*Client, error) {
	if config.Python == "" {
		config.Python = covconfig.DefaultPython
	}
	c := &Client{
		debugLogger: config.DebugLogger,
		output:      config.Output,
		stderrDone:  make(chan struct{}),
	}
	if c.debugLogger == nil {
		c.debugLogger = framework.NullLogger()
	}
	if c.output == nil {
		c.output = framework.NullLogger()
	}

	scriptDir, err := os.MkdirTemp("", "covtest-worker-")
	if err != nil {
		return nil, err
	}
	c.scriptDir = scriptDir
	scriptPath := filepath.Join(scriptDir, harnessFileName)
	if err := os.WriteFile(scriptPath, harnessScript, 0o600); err != nil {
		_ = os.RemoveAll(scriptDir)
		return nil, err
	}

	args := append(append([]string(nil), config.PythonArgs...), "-u", scriptPath)
	var cb commandBuilder
	cb.add(config.Python)
	cb.add(args...)
	c.debugLogger.Printf("Starting interpreter: %s", cb)

	c.cmd = exec.CommandContext(ctx, config.Python, args...)
	c.cmd.Dir = config.Dir
	c.cmd.Env = config.Env
	c.cmd.WaitDelay = outputGracePeriod
	stdin, err := c.cmd.StdinPipe()
	if err != nil {
		return nil, c.abandon(err)
	}
	stdout, err := c.cmd.StdoutPipe()
	if err != nil {
		return nil, c.abandon(err)
	}
	stderr, err := c.cmd.StderrPipe()
	if err != nil {
		return nil, c.abandon(err)
	}
	if err := c.cmd.Start(); err != nil {
		return nil, c.abandon(fmt.Errorf("could not start interpreter %q: %w", config.Python, err))
	}
	c.stdin = stdin
	c.replies = bufio.NewReader(stdout)
	go c.forwardOutput(stderr)

	reply, err := c.readReply(0)
	if err == nil && reply.Status == nil {
		err = c.fail(errors.New("interpreter did not report its status"))
	}
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	c.status = *reply.Status
	c.debugLogger.Printf("Interpreter status: %s", c.status.Description)
	return c, nil
}

func (c *Client) abandon(err error) error {
	_ = os.RemoveAll(c.scriptDir)
	return err
}

// Status returns what the interpreter reported about itself when it started.
func (c *Client) Status() servicedef.StatusInfo {
	return c.status
}

// SetOutput changes where the interpreter's stderr lines go.
func (c *Client) SetOutput(output framework.Logger) {
	if output == nil {
		output = framework.NullLogger()
	}
	c.lock.Lock()
	c.output = output
	c.lock.Unlock()
}

// Close tells the interpreter to exit and waits for it.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		if c.broken == nil {
			if seq, sendErr := c.send(servicedef.CommandParams{Command: servicedef.CommandQuit}); sendErr == nil {
				_, _ = c.readReply(seq)
			}
		}
		if c.broken == nil {
			c.broken = ErrClosed
		}
		_ = c.stdin.Close()
		c.awaitOutput()
		err = c.cmd.Wait()
		_ = os.RemoveAll(c.scriptDir)
		if err != nil {
			c.debugLogger.Printf("Interpreter exited: %s", err)
		}
	})
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// The interpreter's own failure has already been reported by the command that saw it.
		return nil
	}
	return err
}

// ModuleSuffixes implements loader.Backend.
func (c *Client) ModuleSuffixes() map[loader.Kind][]string {
	ret := make(map[loader.Kind][]string)
	for name, suffixes := range c.status.Suffixes {
		if kind, ok := loader.ParseKind(name); ok {
			ret[kind] = append([]string(nil), suffixes...)
		}
	}
	return ret
}

// LoadModule implements loader.Backend.
func (c *Client) LoadModule(name, path string, kind loader.Kind) (framework.Module, error) {
	reply, err := c.call(servicedef.CommandParams{
		Command: servicedef.CommandLoad,
		Load:    &servicedef.LoadParams{Name: name, Path: path, Kind: kind.String()},
	}, path)
	if err != nil {
		return nil, err
	}
	if !reply.Handle.IsDefined() {
		return nil, c.fail(fmt.Errorf("interpreter did not return a handle for %s", path))
	}
	return &Module{owner: c, handle: reply.Handle.IntValue(), name: name, path: path}, nil
}

// LoadTests implements loader.Backend.
func (c *Client) LoadTests(testModule framework.Module) (framework.Suite, error) {
	m, err := c.ownModule(testModule)
	if err != nil {
		return nil, err
	}
	reply, err := c.call(servicedef.CommandParams{
		Command: servicedef.CommandDiscover,
		Handle:  ldvalue.NewOptionalInt(m.handle),
	}, m.path)
	if err != nil {
		return nil, err
	}
	if !reply.Handle.IsDefined() {
		return nil, c.fail(fmt.Errorf("interpreter did not return a suite for %s", m.path))
	}
	return &Suite{owner: c, handle: reply.Handle.IntValue(), count: reply.Count.OrElse(0), path: m.path}, nil
}

func (c *Client) ownModule(module framework.Module) (*Module, error) {
	m, ok := module.(*Module)
	if !ok || m.owner != c {
		return nil, fmt.Errorf("module %s was not loaded by this interpreter", module.Path())
	}
	return m, nil
}

func (c *Client) call(params servicedef.CommandParams, target string) (servicedef.Reply, error) {
	seq, err := c.send(params)
	if err != nil {
		return servicedef.Reply{}, err
	}
	reply, err := c.readReply(seq)
	if err != nil {
		return servicedef.Reply{}, err
	}
	if !reply.Done {
		return servicedef.Reply{}, c.fail(fmt.Errorf("unexpected %q event in reply to %s", reply.Event, params.Command))
	}
	if reply.Error != "" {
		return servicedef.Reply{}, &framework.WorkerError{Command: params.Command, Target: target, Message: reply.Error}
	}
	return reply, nil
}

func (c *Client) send(params servicedef.CommandParams) (int, error) {
	if c.broken != nil {
		return 0, c.broken
	}
	c.lastSeq++
	params.Seq = c.lastSeq
	data, err := json.Marshal(params)
	if err != nil {
		return 0, err
	}
	c.debugLogger.Printf("Sending command: %s", string(data))
	if _, err := c.stdin.Write(append(data, '\n')); err != nil {
		return 0, c.fail(fmt.Errorf("could not send command to interpreter: %w", err))
	}
	return params.Seq, nil
}

func (c *Client) readReply(seq int) (servicedef.Reply, error) {
	if c.broken != nil {
		return servicedef.Reply{}, c.broken
	}
	line, err := c.replies.ReadBytes('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			// stderr is complete once the process has exited, which makes the tail useful
			c.awaitOutput()
			return servicedef.Reply{}, c.fail(fmt.Errorf("interpreter exited unexpectedly%s", c.describeStderr()))
		}
		return servicedef.Reply{}, c.fail(err)
	}
	c.debugLogger.Printf("Received: %s", strings.TrimSpace(string(line)))
	var reply servicedef.Reply
	if err := json.Unmarshal(line, &reply); err != nil {
		return servicedef.Reply{}, c.fail(fmt.Errorf("malformed reply from interpreter: %s", strings.TrimSpace(string(line))))
	}
	if reply.Seq != seq {
		if reply.Error != "" {
			return servicedef.Reply{}, c.fail(fmt.Errorf("interpreter error: %s", reply.Error))
		}
		return servicedef.Reply{}, c.fail(fmt.Errorf("expected reply %d from interpreter but got %d", seq, reply.Seq))
	}
	return reply, nil
}

// fail marks the connection as unusable: once the two sides disagree about where they
// are in the conversation, nothing that follows can be trusted.
func (c *Client) fail(err error) error {
	if c.broken == nil {
		c.broken = err
	}
	return err
}

func (c *Client) forwardOutput(r io.Reader) {
	defer close(c.stderrDone)
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			line = strings.TrimRight(line, "\r\n")
			c.lock.Lock()
			c.stderrTail = append(c.stderrTail, line)
			if len(c.stderrTail) > stderrTailLines {
				c.stderrTail = c.stderrTail[1:]
			}
			output := c.output
			c.lock.Unlock()
			output.Printf("%s", line)
		}
		if err != nil {
			return
		}
	}
}

// awaitOutput waits for the interpreter's stderr to reach EOF, but not beyond
// outputGracePeriod. Wait closes the pipe afterward, which ends forwardOutput either way.
func (c *Client) awaitOutput() {
	timer := time.NewTimer(outputGracePeriod)
	defer timer.Stop()
	select {
	case <-c.stderrDone:
	case <-timer.C:
		c.debugLogger.Printf("Interpreter output still open after %s; no longer waiting for it", outputGracePeriod)
	}
}

func (c *Client) describeStderr() string {
	c.lock.Lock()
	defer c.lock.Unlock()
	if len(c.stderrTail) == 0 {
		return ""
	}
	return ":\n" + strings.Join(c.stderrTail, "\n")
}
