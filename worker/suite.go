package worker

import (
	"fmt"
	"strings"

	"github.com/launchdarkly/covtest/framework"
	"github.com/launchdarkly/covtest/servicedef"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

// Suite is the set of tests discovered in a test module.
type Suite struct {
	owner  *Client
	handle int
	count  int
	path   string
}

func (s *Suite) CountTestCases() int { return s.count }

// Run runs every test in the suite, reporting each step to sink as the interpreter
// reports it.
func (s *Suite) Run(sink framework.ResultSink) error {
	c := s.owner
	seq, err := c.send(servicedef.CommandParams{
		Command: servicedef.CommandRun,
		Handle:  ldvalue.NewOptionalInt(s.handle),
	})
	if err != nil {
		return err
	}
	for {
		reply, err := c.readReply(seq)
		if err != nil {
			return err
		}
		if reply.Done {
			if reply.Error != "" {
				return &framework.WorkerError{Command: servicedef.CommandRun, Target: s.path, Message: reply.Error}
			}
			return nil
		}
		if reply.Test == nil {
			return c.fail(fmt.Errorf("%q event without a test", reply.Event))
		}
		id := testID(*reply.Test)
		switch reply.Event {
		case servicedef.EventStartTest:
			sink.StartTest(id)
		case servicedef.EventStopTest:
			sink.StopTest(id)
		case servicedef.EventSuccess:
			sink.AddSuccess(id)
		case servicedef.EventFailure:
			sink.AddFailure(id, reply.Details)
		case servicedef.EventError:
			sink.AddError(id, reply.Details)
		case servicedef.EventSkip:
			sink.AddSkip(id, reply.Details)
		default:
			return c.fail(fmt.Errorf("unknown event %q", reply.Event))
		}
	}
}

func testID(info servicedef.TestInfo) framework.TestID {
	var path []string
	if info.ID != "" {
		path = strings.Split(info.ID, ".")
	}
	return framework.TestID{Path: path, Description: info.Description}
}
