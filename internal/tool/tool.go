package tool

import (
	"context"
	"errors"
	"fmt"
)

// Call is one tool invocation bound to a target device.
type Call struct {
	Function string
	Params   map[string]any
	Device   string
	Address  string
}

// Executor performs a tool call against a device and returns a
// structured payload or a typed error.
type Executor interface {
	Execute(ctx context.Context, call Call) (map[string]any, error)
}

// Error taxonomy for failed invocations. All of these are step-level
// recoverable: they are recorded on the invocation, never aborted on.
var (
	ErrCommunication  = errors.New("device communication failure")
	ErrAuthentication = errors.New("device authentication failure")
	ErrProtocol       = errors.New("protocol error")
)

// ValidationError means the call itself was malformed for the named
// function (unknown function or missing required params).
type ValidationError struct {
	Function string
	Reason   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid call to %s: %s", e.Function, e.Reason)
}
