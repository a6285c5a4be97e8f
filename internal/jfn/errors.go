package jfn

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedDescriptor = errors.New("malformed descriptor")
	ErrCyclicReference     = errors.New("cyclic function reference")
	ErrUnknownFunction     = errors.New("unknown function")
	ErrEvaluation          = errors.New("evaluation failed")
)

// NodeError locates a failure inside a descriptor tree.
type NodeError struct {
	Function string
	Path     string
	Reason   string
	Err      error
}

func (e *NodeError) Error() string {
	where := e.Path
	if e.Function != "" {
		where = e.Function + ":" + e.Path
	}
	return fmt.Sprintf("%v at %s: %s", e.Err, where, e.Reason)
}

func (e *NodeError) Unwrap() error { return e.Err }

func malformed(function, path, format string, args ...any) error {
	return &NodeError{
		Function: function,
		Path:     path,
		Reason:   fmt.Sprintf(format, args...),
		Err:      ErrMalformedDescriptor,
	}
}
