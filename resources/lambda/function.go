// Package lambda declares managed functions and their code artifacts.
//
// A function's handler is opaque here: a wrong entrypoint, a missing code
// path or a runtime that does not match the artifact are all accepted at
// declaration and only fail when the function is invoked.
package lambda

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	stackwire "github.com/schedulegen/stackwire-go"
	"github.com/schedulegen/stackwire-go/construct"
)

var (
	// ErrCodeRequired is returned when FunctionProps.Code is nil.
	ErrCodeRequired = errors.New("lambda: code is required")
	// ErrRuntimeRequired is returned when FunctionProps.Runtime is unset.
	ErrRuntimeRequired = errors.New("lambda: runtime is required")
)

// Function defaults, matching the provider defaults.
const (
	DefaultMemorySize = 128
	DefaultTimeout    = 3 * time.Second
)

// FunctionProps configures a Function.
type FunctionProps struct {
	Code    *Code
	Handler string
	Runtime Runtime

	// FunctionName is the physical name. Changing it replaces the function.
	FunctionName string
	Description  string
	MemorySize   int
	Timeout      time.Duration
	Environment  map[string]string
}

// Function is a declared compute resource.
type Function struct {
	stack *construct.Stack
	id    string
	props FunctionProps
}

// NewFunction declares a function in stack.
func NewFunction(stack *construct.Stack, id string, props FunctionProps) (*Function, error) {
	if stack == nil {
		return nil, fmt.Errorf("function %q: stack scope is required", id)
	}
	if props.Code == nil {
		return nil, fmt.Errorf("%s: %w", stack.Path(id), ErrCodeRequired)
	}
	if props.Runtime.IsZero() {
		return nil, fmt.Errorf("%s: %w", stack.Path(id), ErrRuntimeRequired)
	}
	if props.MemorySize < 0 || props.Timeout < 0 {
		return nil, fmt.Errorf("%s: memory size and timeout must not be negative", stack.Path(id))
	}

	f := &Function{stack: stack, id: id, props: props}
	if err := stack.Add(f); err != nil {
		return nil, err
	}
	return f, nil
}

// ID implements stackwire.Resource.
func (f *Function) ID() string { return f.id }

// Kind implements stackwire.Resource.
func (f *Function) Kind() stackwire.Kind { return stackwire.KindCompute }

// ResourceType implements stackwire.Resource.
func (f *Function) ResourceType() string { return "AWS::Lambda::Function" }

// Dependencies implements stackwire.Resource. No link to storage is declared.
func (f *Function) Dependencies() []string { return nil }

// Stack returns the owning stack.
func (f *Function) Stack() *construct.Stack { return f.stack }

// Props returns the props as declared.
func (f *Function) Props() FunctionProps { return f.props }

// Handler returns the entrypoint identifier.
func (f *Function) Handler() string { return f.props.Handler }

// Runtime returns the declared runtime.
func (f *Function) Runtime() Runtime { return f.props.Runtime }

// Code returns the code artifact reference.
func (f *Function) Code() *Code { return f.props.Code }

// MemorySize returns the effective memory size in MB.
func (f *Function) MemorySize() int {
	if f.props.MemorySize == 0 {
		return DefaultMemorySize
	}
	return f.props.MemorySize
}

// Timeout returns the effective timeout.
func (f *Function) Timeout() time.Duration {
	if f.props.Timeout == 0 {
		return DefaultTimeout
	}
	return f.props.Timeout
}

// FunctionName returns the physical function name.
func (f *Function) FunctionName() string {
	if f.props.FunctionName != "" {
		return f.props.FunctionName
	}
	sum := md5.Sum([]byte(f.stack.ID() + "/" + f.id))
	name := f.stack.ID() + "-" + f.id
	if len(name) > 55 {
		name = name[:55]
	}
	return name + "-" + hex.EncodeToString(sum[:])[:8]
}

// FunctionArn returns a reference to the function ARN.
func (f *Function) FunctionArn() stackwire.AttrRef {
	return stackwire.AttrRef{Resource: f.id, Attribute: "Arn"}
}
