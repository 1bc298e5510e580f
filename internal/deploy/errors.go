package deploy

import (
	"fmt"
)

// Phase is the stage of a deployment an error was raised in.
type Phase string

const (
	// PhaseDeclaration covers graph validation of the declared stack.
	PhaseDeclaration Phase = "declaration"
	// PhaseStaging covers synthesis and code packaging.
	PhaseStaging Phase = "staging"
	// PhaseProvisioning covers every call made to the provider.
	PhaseProvisioning Phase = "provisioning"
	// PhaseInvocation covers running a deployed function.
	PhaseInvocation Phase = "invocation"
)

// Error reports a failed deployment operation.
type Error struct {
	Phase    Phase
	Stack    string
	Resource string
	Err      error

	// RollbackErr is set when undoing the resources created before the
	// failure did not fully succeed.
	RollbackErr error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s", e.Stack, e.Phase)
	if e.Resource != "" {
		msg += " of " + e.Resource
	}
	msg += " failed: " + e.Err.Error()
	if e.RollbackErr != nil {
		msg += fmt.Sprintf(" (rollback: %v)", e.RollbackErr)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(phase Phase, stack, resource string, err error) *Error {
	return &Error{Phase: phase, Stack: stack, Resource: resource, Err: err}
}
