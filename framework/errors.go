package framework

import "fmt"

// LoadError means a path could not be loaded because its suffix does not correspond to
// any kind of module the interpreter recognizes.
type LoadError struct {
	Path string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("Unknown module: %s", e.Path)
}

// WorkerError is an error reported by the interpreter while carrying out a command, such
// as an exception raised while importing or reloading a module.
type WorkerError struct {
	Command string
	Target  string
	Message string
}

func (e *WorkerError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("%s %s: %s", e.Command, e.Target, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Command, e.Message)
}
