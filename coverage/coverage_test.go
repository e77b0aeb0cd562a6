package coverage

import (
	"errors"
	"testing"

	"github.com/launchdarkly/covtest/framework"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeModule struct{ path string }

func (m fakeModule) Name() string  { return m.path }
func (m fakeModule) Path() string  { return m.path }
func (m fakeModule) Reload() error { return nil }

type fakeEngine struct {
	calls    []string
	analysis Analysis
	stopErr  error
}

func (e *fakeEngine) Erase() error { e.calls = append(e.calls, "erase"); return nil }
func (e *fakeEngine) Start() error { e.calls = append(e.calls, "start"); return nil }
func (e *fakeEngine) Stop() error  { e.calls = append(e.calls, "stop"); return e.stopErr }

func (e *fakeEngine) Analyze(m framework.Module) (Analysis, error) {
	e.calls = append(e.calls, "analyze "+m.Path())
	return e.analysis, nil
}

func TestSessionBracketsMeasurement(t *testing.T) {
	e := &fakeEngine{analysis: Analysis{Identifier: "foo.py", Statements: []int{1, 2}}}
	r := NewRecorder(e)

	s, err := r.Begin()
	require.NoError(t, err)
	require.NoError(t, s.End())
	a, err := s.Analyze(fakeModule{"foo.py"})
	require.NoError(t, err)

	assert.Equal(t, []string{"erase", "start", "stop", "analyze foo.py"}, e.calls)
	assert.Equal(t, "foo.py", a.Identifier)
}

func TestOnlyOneSessionAtATime(t *testing.T) {
	r := NewRecorder(&fakeEngine{})

	s1, err := r.Begin()
	require.NoError(t, err)

	_, err = r.Begin()
	assert.Equal(t, ErrSessionActive, err)

	require.NoError(t, s1.End())
	s2, err := r.Begin()
	require.NoError(t, err)
	require.NoError(t, s2.End())
}

func TestSessionEndIsIdempotent(t *testing.T) {
	e := &fakeEngine{}
	s, err := NewRecorder(e).Begin()
	require.NoError(t, err)

	require.NoError(t, s.End())
	require.NoError(t, s.End())

	assert.Equal(t, []string{"erase", "start", "stop"}, e.calls)
}

func TestSessionAnalyzeBeforeEnd(t *testing.T) {
	s, err := NewRecorder(&fakeEngine{}).Begin()
	require.NoError(t, err)

	_, err = s.Analyze(fakeModule{"foo.py"})
	assert.Equal(t, ErrSessionNotEnded, err)
}

func TestSessionEndReleasesEvenIfStopFails(t *testing.T) {
	cause := errors.New("tracer crashed")
	e := &fakeEngine{stopErr: cause}
	r := NewRecorder(e)

	s, err := r.Begin()
	require.NoError(t, err)
	assert.ErrorIs(t, s.End(), cause)

	_, err = r.Begin()
	assert.NoError(t, err)
}

func TestAnalysisMiss(t *testing.T) {
	full := Analysis{Identifier: "foo.py", Statements: []int{1, 2, 3}}
	_, missed := full.Miss()
	assert.False(t, missed)

	partial := Analysis{Identifier: "foo.py", Statements: []int{1, 2, 3, 7, 8}, Missed: []int{7, 8}, Description: "7-8"}
	miss, missed := partial.Miss()
	require.True(t, missed)
	assert.Equal(t, framework.CoverageMiss{
		Module:      "foo.py",
		Statements:  []int{1, 2, 3, 7, 8},
		Missed:      []int{7, 8},
		Description: "7-8",
	}, miss)
}
