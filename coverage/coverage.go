// Package coverage controls statement coverage measurement.
//
// The measuring itself is done by an Engine, which records every statement executed
// anywhere in the interpreter while it is started. Because that state is global, a
// measurement only means something if it was erased and started right before the code of
// interest ran and stopped right after. Recorder enforces this with sessions: Begin erases
// and starts, End stops, and only one session can be open at a time.
package coverage

import (
	"errors"
	"fmt"
	"sync"

	"github.com/launchdarkly/covtest/framework"
)

// ErrSessionActive is returned by Begin while another session has not ended yet.
var ErrSessionActive = errors.New("a coverage session is already active")

// ErrSessionNotEnded is returned by Session.Analyze before Session.End.
var ErrSessionNotEnded = errors.New("coverage session has not ended")

// Engine is the interpreter's coverage instrumentation.
type Engine interface {
	// Erase discards everything recorded so far.
	Erase() error
	// Start begins recording executed statements.
	Start() error
	// Stop ends recording.
	Stop() error
	// Analyze reports which executable statements of a module were not executed.
	Analyze(module framework.Module) (Analysis, error)
}

// Analysis is the coverage of a single module.
type Analysis struct {
	// Identifier names the module, normally the path of its source file.
	Identifier string
	// Statements are the line numbers of all executable statements.
	Statements []int
	// Missed are the line numbers of statements that were not executed.
	Missed []int
	// Description is a human-readable form of Missed, such as "3-5, 9".
	Description string
}

// Miss converts the analysis into a CoverageMiss. It returns false if nothing was missed.
func (a Analysis) Miss() (framework.CoverageMiss, bool) {
	if len(a.Missed) == 0 {
		return framework.CoverageMiss{}, false
	}
	return framework.CoverageMiss{
		Module:      a.Identifier,
		Statements:  append([]int(nil), a.Statements...),
		Missed:      append([]int(nil), a.Missed...),
		Description: a.Description,
	}, true
}

type Recorder struct {
	engine Engine
	active bool
	lock   sync.Mutex
}

func NewRecorder(engine Engine) *Recorder {
	return &Recorder{engine: engine}
}

// Reset discards all recorded coverage.
func (r *Recorder) Reset() error {
	return wrap("erase", r.engine.Erase())
}

// Start begins recording.
func (r *Recorder) Start() error {
	return wrap("start", r.engine.Start())
}

// Stop ends recording.
func (r *Recorder) Stop() error {
	return wrap("stop", r.engine.Stop())
}

// Analyze reports the coverage of a module from what was recorded so far.
func (r *Recorder) Analyze(module framework.Module) (Analysis, error) {
	a, err := r.engine.Analyze(module)
	if err != nil {
		return Analysis{}, fmt.Errorf("analyzing coverage of %s: %w", module.Path(), err)
	}
	return a, nil
}

// Begin erases all previous coverage and starts recording. The returned session must be
// ended with End, even if the code being measured fails.
func (r *Recorder) Begin() (*Session, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.active {
		return nil, ErrSessionActive
	}
	if err := r.Reset(); err != nil {
		return nil, err
	}
	if err := r.Start(); err != nil {
		return nil, err
	}
	r.active = true
	return &Session{owner: r}, nil
}

func (r *Recorder) release() {
	r.lock.Lock()
	r.active = false
	r.lock.Unlock()
}

// Session is one measurement: everything executed between Begin and End.
type Session struct {
	owner *Recorder
	ended bool
	once  sync.Once
}

// End stops recording and allows a new session to begin. Calling it more than once
// has no further effect.
func (s *Session) End() error {
	var err error
	s.once.Do(func() {
		err = s.owner.Stop()
		s.ended = true
		s.owner.release()
	})
	return err
}

// Analyze reports the coverage of a module during this session.
func (s *Session) Analyze(module framework.Module) (Analysis, error) {
	if !s.ended {
		return Analysis{}, ErrSessionNotEnded
	}
	return s.owner.Analyze(module)
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("coverage %s: %w", op, err)
}
