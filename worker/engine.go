package worker

import (
	"fmt"

	"github.com/launchdarkly/covtest/coverage"
	"github.com/launchdarkly/covtest/framework"
	"github.com/launchdarkly/covtest/servicedef"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

// Erase implements coverage.Engine.
func (c *Client) Erase() error { return c.simple(servicedef.CommandErase) }

// Start implements coverage.Engine.
func (c *Client) Start() error { return c.simple(servicedef.CommandStart) }

// Stop implements coverage.Engine.
func (c *Client) Stop() error { return c.simple(servicedef.CommandStop) }

// Analyze implements coverage.Engine.
func (c *Client) Analyze(module framework.Module) (coverage.Analysis, error) {
	m, err := c.ownModule(module)
	if err != nil {
		return coverage.Analysis{}, err
	}
	reply, err := c.call(servicedef.CommandParams{
		Command: servicedef.CommandAnalyze,
		Handle:  ldvalue.NewOptionalInt(m.handle),
	}, m.path)
	if err != nil {
		return coverage.Analysis{}, err
	}
	if reply.Analysis == nil {
		return coverage.Analysis{}, c.fail(fmt.Errorf("interpreter did not return an analysis of %s", m.path))
	}
	return coverage.Analysis{
		Identifier:  reply.Analysis.Filename,
		Statements:  reply.Analysis.Statements,
		Missed:      reply.Analysis.Missed,
		Description: reply.Analysis.Description,
	}, nil
}

func (c *Client) simple(command string) error {
	_, err := c.call(servicedef.CommandParams{Command: command}, "")
	return err
}
