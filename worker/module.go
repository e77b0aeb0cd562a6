package worker

import (
	"github.com/launchdarkly/covtest/servicedef"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

// Module is a module loaded into the interpreter.
type Module struct {
	owner  *Client
	handle int
	name   string
	path   string
}

func (m *Module) Name() string { return m.name }

func (m *Module) Path() string { return m.path }

// Reload executes the module's body again in the same module object.
func (m *Module) Reload() error {
	_, err := m.owner.call(servicedef.CommandParams{
		Command: servicedef.CommandReload,
		Handle:  ldvalue.NewOptionalInt(m.handle),
	}, m.path)
	return err
}
