// Package cloud defines the provisioning backends a stack is deployed to.
//
// A Provider is composed of three narrow services, one per resource kind.
// Implementations live in subpackages: memory (an in-process simulated
// account), awscloud (aws-sdk-go-v2) and minio (S3-compatible storage only).
package cloud

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/schedulegen/stackwire-go/resources/lambda"
)

var (
	// ErrBucketAlreadyExists is returned when a bucket name is taken anywhere
	// in the provider namespace.
	ErrBucketAlreadyExists = errors.New("bucket name already taken")
	// ErrBucketNotEmpty is returned when deleting a bucket that still holds objects.
	ErrBucketNotEmpty = errors.New("bucket not empty")
	// ErrNotFound is returned for a missing bucket, object, version, function or gateway.
	ErrNotFound = errors.New("not found")
	// ErrEntrypointNotFound is returned at invocation when the handler does
	// not resolve inside the code artifact.
	ErrEntrypointNotFound = errors.New("entrypoint not found in artifact")
	// ErrRuntimeMismatch is returned at invocation when the artifact was not
	// built for the function's runtime.
	ErrRuntimeMismatch = errors.New("artifact does not match runtime")
	// ErrInvocationFailed wraps every failure raised while invoking a function.
	ErrInvocationFailed = errors.New("invocation failed")
	// ErrNotSupported is returned by providers that lack a service.
	ErrNotSupported = errors.New("not supported by provider")
)

// BucketSpec is the desired state of a bucket.
type BucketSpec struct {
	Name      string
	Versioned bool
	Tags      map[string]string
}

// BucketInfo describes a provisioned bucket.
type BucketInfo struct {
	Name      string `json:"name"`
	Arn       string `json:"arn"`
	Versioned bool   `json:"versioned"`
}

// Buckets provisions storage and reads and writes objects.
type Buckets interface {
	CreateBucket(ctx context.Context, spec BucketSpec) (*BucketInfo, error)
	// UpdateBucket applies a versioning change. Disabling versioning on a
	// versioned bucket suspends it; existing versions are kept.
	UpdateBucket(ctx context.Context, spec BucketSpec) (*BucketInfo, error)
	DeleteBucket(ctx context.Context, name string) error

	// PutObject stores body under key and returns the version id, "null"
	// when the bucket is not versioned.
	PutObject(ctx context.Context, bucket, key string, body []byte) (string, error)
	// GetObject reads a version of key; an empty versionID reads the latest.
	GetObject(ctx context.Context, bucket, key, versionID string) ([]byte, error)
}

// FunctionSpec is the desired state of a function.
type FunctionSpec struct {
	Name        string
	Handler     string
	Runtime     lambda.Runtime
	Code        []byte
	CodeSha256  string
	MemorySize  int
	Timeout     time.Duration
	Environment map[string]string
	Description string
	Tags        map[string]string
}

// FunctionInfo describes a provisioned function.
type FunctionInfo struct {
	Name       string `json:"name"`
	Arn        string `json:"arn"`
	CodeSha256 string `json:"code_sha256"`
}

// Functions provisions and invokes functions. Handlers are not checked when
// a function is created; they are resolved on each invocation.
type Functions interface {
	CreateFunction(ctx context.Context, spec FunctionSpec) (*FunctionInfo, error)
	UpdateFunction(ctx context.Context, spec FunctionSpec) (*FunctionInfo, error)
	DeleteFunction(ctx context.Context, name string) error
	Invoke(ctx context.Context, name string, payload []byte) ([]byte, error)
}

// CodeReader is implemented by function services that can return the code
// archive a function currently runs.
type CodeReader interface {
	FunctionCode(ctx context.Context, name string) ([]byte, error)
}

// GatewaySpec is the desired state of a catch-all HTTP gateway.
type GatewaySpec struct {
	Name         string
	StageName    string
	Description  string
	FunctionName string
	FunctionArn  string
}

// GatewayInfo describes a provisioned gateway.
type GatewayInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Stage string `json:"stage"`
	URL   string `json:"url"`
}

// Gateways provisions HTTP ingress that proxies every request to one function.
type Gateways interface {
	CreateGateway(ctx context.Context, spec GatewaySpec) (*GatewayInfo, error)
	UpdateGateway(ctx context.Context, id string, spec GatewaySpec) (*GatewayInfo, error)
	DeleteGateway(ctx context.Context, id string) error
}

// Provider is a complete backend.
type Provider struct {
	Name string
	Buckets
	Functions
	Gateways
}

// Validate checks that every service is present.
func (p Provider) Validate() error {
	switch {
	case p.Buckets == nil:
		return fmt.Errorf("provider %s: buckets: %w", p.Name, ErrNotSupported)
	case p.Functions == nil:
		return fmt.Errorf("provider %s: functions: %w", p.Name, ErrNotSupported)
	case p.Gateways == nil:
		return fmt.Errorf("provider %s: gateways: %w", p.Name, ErrNotSupported)
	}
	return nil
}

// InvocationError is returned by Invoke when the function could not run.
type InvocationError struct {
	Function string
	Err      error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("invoking %s: %v", e.Function, e.Err)
}

func (e *InvocationError) Unwrap() []error {
	return []error{ErrInvocationFailed, e.Err}
}

// GatewayURL formats the invoke URL of a gateway stage. China regions use
// their own domain.
func GatewayURL(id, region, stage string) string {
	suffix := "amazonaws.com"
	if strings.HasPrefix(region, "cn-") {
		suffix = "amazonaws.com.cn"
	}
	return fmt.Sprintf("https://%s.execute-api.%s.%s/%s/", id, region, suffix, stage)
}
