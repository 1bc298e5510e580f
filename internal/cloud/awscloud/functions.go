package awscloud

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"

	"github.com/schedulegen/stackwire-go/internal/cloud"
)

// ErrRoleRequired is returned when a function is created without an
// execution role configured.
var ErrRoleRequired = errors.New("function execution role arn is required")

func environment(vars map[string]string) *types.Environment {
	if len(vars) == 0 {
		return nil
	}
	return &types.Environment{Variables: vars}
}

func (c *Cloud) CreateFunction(ctx context.Context, spec cloud.FunctionSpec) (*cloud.FunctionInfo, error) {
	if c.roleArn == "" {
		return nil, ErrRoleRequired
	}
	out, err := c.Client.Lambda.CreateFunction(ctx, &lambda.CreateFunctionInput{
		FunctionName: aws.String(spec.Name),
		Role:         aws.String(c.roleArn),
		Handler:      aws.String(spec.Handler),
		Runtime:      types.Runtime(spec.Runtime.Name()),
		Code:         &types.FunctionCode{ZipFile: spec.Code},
		MemorySize:   aws.Int32(int32(spec.MemorySize)),
		Timeout:      aws.Int32(int32(spec.Timeout.Seconds())),
		Description:  aws.String(spec.Description),
		Environment:  environment(spec.Environment),
		Tags:         spec.Tags,
	})
	if err != nil {
		return nil, fmt.Errorf("creating function %s: %w", spec.Name, mapError(err))
	}
	c.log.Debug().Str("function", spec.Name).Str("runtime", spec.Runtime.Name()).Msg("function created")

	if err := c.waitActive(ctx, spec.Name); err != nil {
		return nil, c.discard(ctx, err, "function "+spec.Name, func(ctx context.Context) error {
			return c.DeleteFunction(ctx, spec.Name)
		})
	}
	return &cloud.FunctionInfo{
		Name:       spec.Name,
		Arn:        aws.ToString(out.FunctionArn),
		CodeSha256: aws.ToString(out.CodeSha256),
	}, nil
}

// UpdateFunction pushes the configuration, then the code. Each step waits for
// the previous update to settle.
func (c *Cloud) UpdateFunction(ctx context.Context, spec cloud.FunctionSpec) (*cloud.FunctionInfo, error) {
	input := &lambda.UpdateFunctionConfigurationInput{
		FunctionName: aws.String(spec.Name),
		Handler:      aws.String(spec.Handler),
		Runtime:      types.Runtime(spec.Runtime.Name()),
		MemorySize:   aws.Int32(int32(spec.MemorySize)),
		Timeout:      aws.Int32(int32(spec.Timeout.Seconds())),
		Description:  aws.String(spec.Description),
		Environment:  &types.Environment{Variables: spec.Environment},
	}
	if c.roleArn != "" {
		input.Role = aws.String(c.roleArn)
	}
	if _, err := c.Client.Lambda.UpdateFunctionConfiguration(ctx, input); err != nil {
		return nil, fmt.Errorf("updating function %s configuration: %w", spec.Name, mapError(err))
	}
	if err := c.waitUpdated(ctx, spec.Name); err != nil {
		return nil, err
	}

	out, err := c.Client.Lambda.UpdateFunctionCode(ctx, &lambda.UpdateFunctionCodeInput{
		FunctionName: aws.String(spec.Name),
		ZipFile:      spec.Code,
	})
	if err != nil {
		return nil, fmt.Errorf("updating function %s code: %w", spec.Name, mapError(err))
	}
	if err := c.waitUpdated(ctx, spec.Name); err != nil {
		return nil, err
	}
	return &cloud.FunctionInfo{
		Name:       spec.Name,
		Arn:        aws.ToString(out.FunctionArn),
		CodeSha256: aws.ToString(out.CodeSha256),
	}, nil
}

// FunctionCode implements cloud.CodeReader. Lambda hands out the archive
// through a short-lived presigned URL.
func (c *Cloud) FunctionCode(ctx context.Context, name string) ([]byte, error) {
	out, err := c.Client.Lambda.GetFunction(ctx, &lambda.GetFunctionInput{FunctionName: aws.String(name)})
	if err != nil {
		return nil, fmt.Errorf("getting function %s: %w", name, mapError(err))
	}
	if out.Code == nil || aws.ToString(out.Code.Location) == "" {
		return nil, fmt.Errorf("function %s: code location: %w", name, cloud.ErrNotSupported)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, aws.ToString(out.Code.Location), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.Client.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading code of %s: %w", name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("downloading code of %s: %s", name, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

func (c *Cloud) DeleteFunction(ctx context.Context, name string) error {
	if _, err := c.Client.Lambda.DeleteFunction(ctx, &lambda.DeleteFunctionInput{FunctionName: aws.String(name)}); err != nil {
		return fmt.Errorf("deleting function %s: %w", name, mapError(err))
	}
	return nil
}

// Invoke runs the function synchronously. A function error reported by the
// service (for example an unresolvable handler) becomes a
// *cloud.InvocationError carrying the error payload.
func (c *Cloud) Invoke(ctx context.Context, name string, payload []byte) ([]byte, error) {
	out, err := c.Client.Lambda.Invoke(ctx, &lambda.InvokeInput{
		FunctionName: aws.String(name),
		Payload:      payload,
	})
	if err != nil {
		return nil, fmt.Errorf("invoking %s: %w", name, mapError(err))
	}
	if out.FunctionError != nil {
		return nil, &cloud.InvocationError{
			Function: name,
			Err:      fmt.Errorf("%s: %s", aws.ToString(out.FunctionError), out.Payload),
		}
	}
	return out.Payload, nil
}

func (c *Cloud) waitActive(ctx context.Context, name string) error {
	if c.wait <= 0 {
		return nil
	}
	waiter := lambda.NewFunctionActiveV2Waiter(c.Client.Lambda)
	if err := waiter.Wait(ctx, &lambda.GetFunctionInput{FunctionName: aws.String(name)}, c.wait); err != nil {
		return fmt.Errorf("waiting for function %s: %w", name, err)
	}
	return nil
}

func (c *Cloud) waitUpdated(ctx context.Context, name string) error {
	if c.wait <= 0 {
		return nil
	}
	waiter := lambda.NewFunctionUpdatedV2Waiter(c.Client.Lambda)
	if err := waiter.Wait(ctx, &lambda.GetFunctionInput{FunctionName: aws.String(name)}, c.wait); err != nil {
		return fmt.Errorf("waiting for function %s update: %w", name, err)
	}
	return nil
}
