package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/schedulegen/stackwire-go/internal/asset"
	"github.com/schedulegen/stackwire-go/internal/cloud"
)

// ErrNoExecutor is returned when a function's entrypoint resolves but no Go
// handler stands in for it. The account cannot run foreign code.
var ErrNoExecutor = errors.New("no executor registered for entrypoint")

// Handler executes an invocation payload in place of the artifact code.
type Handler func(ctx context.Context, payload []byte) ([]byte, error)

// ProxyHandler adapts an API Gateway proxy handler to a Handler.
func ProxyHandler(fn func(context.Context, events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error)) Handler {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		var req events.APIGatewayProxyRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, fmt.Errorf("decoding proxy request: %w", err)
		}
		resp, err := fn(ctx, req)
		if err != nil {
			return nil, err
		}
		return json.Marshal(resp)
	}
}

// RegisterHandler makes h execute for functions whose handler string is
// entrypoint, once the entrypoint resolves inside their artifact.
func (a *Account) RegisterHandler(entrypoint string, h Handler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handlers[entrypoint] = h
}

type function struct {
	spec     cloud.FunctionSpec
	arn      string
	files    []string
	inspectE error
}

func (a *Account) functionArn(name string) string {
	return fmt.Sprintf("arn:aws:lambda:%s:%s:function:%s", a.region, a.accountID, name)
}

func (a *Account) newFunction(spec cloud.FunctionSpec) *function {
	fn := &function{spec: spec, arn: a.functionArn(spec.Name)}
	// The artifact is read now but only judged at invocation, so a broken
	// archive still deploys.
	fn.files, fn.inspectE = asset.Inspect(spec.Code)
	return fn
}

func (fn *function) info() *cloud.FunctionInfo {
	return &cloud.FunctionInfo{Name: fn.spec.Name, Arn: fn.arn, CodeSha256: fn.spec.CodeSha256}
}

// CreateFunction implements cloud.Functions. The handler is not resolved.
func (a *Account) CreateFunction(ctx context.Context, spec cloud.FunctionSpec) (*cloud.FunctionInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if spec.Name == "" {
		return nil, errors.New("function name is required")
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.functions[spec.Name]; exists {
		return nil, fmt.Errorf("function %s already exists", spec.Name)
	}
	fn := a.newFunction(spec)
	a.functions[spec.Name] = fn
	return fn.info(), nil
}

// UpdateFunction implements cloud.Functions.
func (a *Account) UpdateFunction(ctx context.Context, spec cloud.FunctionSpec) (*cloud.FunctionInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.functions[spec.Name]; !exists {
		return nil, fmt.Errorf("function %s: %w", spec.Name, cloud.ErrNotFound)
	}
	fn := a.newFunction(spec)
	a.functions[spec.Name] = fn
	return fn.info(), nil
}

// DeleteFunction implements cloud.Functions.
func (a *Account) DeleteFunction(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.functions[name]; !exists {
		return fmt.Errorf("function %s: %w", name, cloud.ErrNotFound)
	}
	delete(a.functions, name)
	return nil
}

// FunctionCode implements cloud.CodeReader.
func (a *Account) FunctionCode(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	fn, ok := a.functions[name]
	if !ok {
		return nil, fmt.Errorf("function %s: %w", name, cloud.ErrNotFound)
	}
	return append([]byte(nil), fn.spec.Code...), nil
}

// Function returns a provisioned function by name.
func (a *Account) Function(name string) (*cloud.FunctionInfo, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	fn, ok := a.functions[name]
	if !ok {
		return nil, false
	}
	return fn.info(), true
}

func (a *Account) lookupFunction(nameOrArn string) (*function, Handler, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	fn, ok := a.functions[functionName(nameOrArn)]
	if !ok {
		return nil, nil, false
	}
	return fn, a.handlers[fn.spec.Handler], true
}

// functionName returns the name inside a function ARN, dropping any version
// or alias qualifier. Plain names are returned as is.
func functionName(nameOrArn string) string {
	if !strings.HasPrefix(nameOrArn, "arn:") {
		return nameOrArn
	}
	_, rest, ok := strings.Cut(nameOrArn, ":function:")
	if !ok {
		return nameOrArn
	}
	name, _, _ := strings.Cut(rest, ":")
	return name
}

// Invoke implements cloud.Functions. The entrypoint is resolved inside the
// artifact on every call; failures are *cloud.InvocationError.
func (a *Account) Invoke(ctx context.Context, nameOrArn string, payload []byte) ([]byte, error) {
	fn, h, ok := a.lookupFunction(nameOrArn)
	if !ok {
		return nil, fmt.Errorf("function %s: %w", nameOrArn, cloud.ErrNotFound)
	}
	fail := func(err error) ([]byte, error) {
		return nil, &cloud.InvocationError{Function: fn.spec.Name, Err: err}
	}

	if fn.inspectE != nil {
		return fail(fn.inspectE)
	}
	if _, err := ResolveEntrypoint(fn.spec.Runtime, fn.spec.Handler, fn.files); err != nil {
		return fail(err)
	}
	if h == nil {
		return fail(fmt.Errorf("%s: %w", fn.spec.Handler, ErrNoExecutor))
	}

	timeout := fn.spec.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := h(ctx, payload)
	if err != nil {
		return fail(err)
	}
	if ctx.Err() != nil {
		return fail(fmt.Errorf("task timed out after %s", timeout))
	}
	return out, nil
}
