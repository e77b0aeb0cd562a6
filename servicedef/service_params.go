// Package servicedef defines the messages exchanged with the interpreter worker.
//
// Each message is a single line of JSON. The worker starts by sending a status reply with
// sequence number zero. After that the runner sends one command at a time and reads
// replies carrying the same sequence number until one of them has Done set. Most commands
// produce exactly one reply; CommandRun produces an event reply for each step of each
// test before the final one.
package servicedef

import "gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"

const (
	CommandLoad     = "load"
	CommandDiscover = "discover"
	CommandReload   = "reload"
	CommandRun      = "run"
	CommandErase    = "erase"
	CommandStart    = "start"
	CommandStop     = "stop"
	CommandAnalyze  = "analyze"
	CommandQuit     = "quit"
)

const (
	EventStartTest = "startTest"
	EventStopTest  = "stopTest"
	EventSuccess   = "success"
	EventFailure   = "failure"
	EventError     = "error"
	EventSkip      = "skip"
)

type CommandParams struct {
	Seq     int                 `json:"seq"`
	Command string              `json:"command"`
	Handle  ldvalue.OptionalInt `json:"handle"`
	Load    *LoadParams         `json:"load,omitempty"`
}

type LoadParams struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Kind string `json:"kind"`
}

type Reply struct {
	Seq      int                 `json:"seq"`
	Done     bool                `json:"done"`
	Error    string              `json:"error,omitempty"`
	Event    string              `json:"event,omitempty"`
	Test     *TestInfo           `json:"test,omitempty"`
	Details  string              `json:"details,omitempty"`
	Handle   ldvalue.OptionalInt `json:"handle"`
	Count    ldvalue.OptionalInt `json:"count"`
	Analysis *AnalysisInfo       `json:"analysis,omitempty"`
	Status   *StatusInfo         `json:"status,omitempty"`
}

// TestInfo identifies a test: ID is the interpreter's dotted test id, Description is how
// the test prints itself.
type TestInfo struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

type AnalysisInfo struct {
	Filename    string `json:"filename"`
	Statements  []int  `json:"statements"`
	Missed      []int  `json:"missed"`
	Description string `json:"description"`
}

// StatusInfo is sent once by the worker when it starts.
type StatusInfo struct {
	Description string              `json:"description"`
	Suffixes    map[string][]string `json:"suffixes"`
}
