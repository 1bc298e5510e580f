// Package awscloud provisions stacks against a real AWS account with
// aws-sdk-go-v2.
//
// Every service is reached through a narrow client interface so tests can
// substitute testify mocks for the SDK clients.
package awscloud

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/apigatewayv2"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"

	"github.com/schedulegen/stackwire-go/internal/cloud"
)

// S3Client is the part of the S3 API used for buckets and objects.
type S3Client interface {
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	DeleteBucket(ctx context.Context, params *s3.DeleteBucketInput, optFns ...func(*s3.Options)) (*s3.DeleteBucketOutput, error)
	PutBucketVersioning(ctx context.Context, params *s3.PutBucketVersioningInput, optFns ...func(*s3.Options)) (*s3.PutBucketVersioningOutput, error)
	PutBucketTagging(ctx context.Context, params *s3.PutBucketTaggingInput, optFns ...func(*s3.Options)) (*s3.PutBucketTaggingOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// LambdaClient is the part of the Lambda API used for functions, their
// invocation and the permission a gateway needs to call them.
type LambdaClient interface {
	GetFunction(ctx context.Context, params *lambda.GetFunctionInput, optFns ...func(*lambda.Options)) (*lambda.GetFunctionOutput, error)
	CreateFunction(ctx context.Context, params *lambda.CreateFunctionInput, optFns ...func(*lambda.Options)) (*lambda.CreateFunctionOutput, error)
	UpdateFunctionCode(ctx context.Context, params *lambda.UpdateFunctionCodeInput, optFns ...func(*lambda.Options)) (*lambda.UpdateFunctionCodeOutput, error)
	UpdateFunctionConfiguration(ctx context.Context, params *lambda.UpdateFunctionConfigurationInput, optFns ...func(*lambda.Options)) (*lambda.UpdateFunctionConfigurationOutput, error)
	DeleteFunction(ctx context.Context, params *lambda.DeleteFunctionInput, optFns ...func(*lambda.Options)) (*lambda.DeleteFunctionOutput, error)
	Invoke(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
	AddPermission(ctx context.Context, params *lambda.AddPermissionInput, optFns ...func(*lambda.Options)) (*lambda.AddPermissionOutput, error)
}

// ApiGatewayV2Client is the part of the API Gateway v2 API used for HTTP APIs.
type ApiGatewayV2Client interface {
	CreateApi(ctx context.Context, params *apigatewayv2.CreateApiInput, optFns ...func(*apigatewayv2.Options)) (*apigatewayv2.CreateApiOutput, error)
	UpdateApi(ctx context.Context, params *apigatewayv2.UpdateApiInput, optFns ...func(*apigatewayv2.Options)) (*apigatewayv2.UpdateApiOutput, error)
	DeleteApi(ctx context.Context, params *apigatewayv2.DeleteApiInput, optFns ...func(*apigatewayv2.Options)) (*apigatewayv2.DeleteApiOutput, error)
	CreateStage(ctx context.Context, params *apigatewayv2.CreateStageInput, optFns ...func(*apigatewayv2.Options)) (*apigatewayv2.CreateStageOutput, error)
}

// STSClient resolves the account and partition of the caller.
type STSClient interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// HTTPClient downloads function code from the presigned location Lambda
// returns.
type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

// Clients holds one client per service. A nil HTTP uses the SDK's default
// transport.
type Clients struct {
	S3     S3Client
	Lambda LambdaClient
	Gw     ApiGatewayV2Client
	STS    STSClient
	HTTP   HTTPClient
}

// Options configures a Cloud.
type Options struct {
	Region  string
	Profile string
	// RoleArn is the execution role assumed by every function.
	RoleArn string
	// WaitTimeout bounds how long function updates wait for the previous
	// update to settle. Zero skips waiting.
	WaitTimeout time.Duration
	Logger      zerolog.Logger
}

// Cloud implements the cloud services on AWS.
type Cloud struct {
	Client    Clients
	region    string
	accountID string
	partition string
	roleArn   string
	wait      time.Duration
	log       zerolog.Logger
}

// New loads the default AWS configuration and resolves the caller account.
func New(ctx context.Context, opts Options) (*Cloud, error) {
	var loaders []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loaders = append(loaders, awsconfig.WithRegion(opts.Region))
	}
	if opts.Profile != "" {
		loaders = append(loaders, awsconfig.WithSharedConfigProfile(opts.Profile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	opts.Region = cfg.Region
	return FromClients(ctx, Clients{
		S3:     s3.NewFromConfig(cfg),
		Lambda: lambda.NewFromConfig(cfg),
		Gw:     apigatewayv2.NewFromConfig(cfg),
		STS:    sts.NewFromConfig(cfg),
	}, opts)
}

// FromClients builds a Cloud over existing clients.
func FromClients(ctx context.Context, clients Clients, opts Options) (*Cloud, error) {
	if opts.Region == "" {
		return nil, errors.New("aws region is required")
	}
	caller, err := clients.STS.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return nil, fmt.Errorf("resolving caller identity: %w", err)
	}
	if clients.HTTP == nil {
		clients.HTTP = awshttp.NewBuildableClient()
	}
	return &Cloud{
		Client:    clients,
		region:    opts.Region,
		accountID: aws.ToString(caller.Account),
		partition: partitionOf(aws.ToString(caller.Arn)),
		roleArn:   opts.RoleArn,
		wait:      opts.WaitTimeout,
		log:       opts.Logger,
	}, nil
}

// Provider exposes c as a cloud.Provider.
func (c *Cloud) Provider() cloud.Provider {
	return cloud.Provider{Name: "aws", Buckets: c, Functions: c, Gateways: c}
}

// Region is the region every resource is created in.
func (c *Cloud) Region() string { return c.region }

// AccountID is the account of the caller identity.
func (c *Cloud) AccountID() string { return c.accountID }

// Partition is the ARN partition of the caller: aws, aws-cn or aws-us-gov.
func (c *Cloud) Partition() string { return c.partition }

// partitionOf reads the partition from an ARN, defaulting to aws.
func partitionOf(arn string) string {
	parts := strings.SplitN(arn, ":", 3)
	if len(parts) < 3 || parts[0] != "arn" || parts[1] == "" {
		return "aws"
	}
	return parts[1]
}

// discard deletes a resource whose creation failed after it came into
// existence and returns cause joined with any cleanup failure.
func (c *Cloud) discard(ctx context.Context, cause error, what string, del func(context.Context) error) error {
	ctx = context.WithoutCancel(ctx)
	if err := del(ctx); err != nil && !errors.Is(err, cloud.ErrNotFound) {
		c.log.Warn().Err(err).Str("resource", what).Msg("cleanup after failed create did not succeed")
		return errors.Join(cause, fmt.Errorf("cleaning up %s: %w", what, err))
	}
	c.log.Debug().Str("resource", what).Msg("removed after failed create")
	return cause
}

// mapError attaches the matching cloud sentinel to an AWS API error.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	switch apiErr.ErrorCode() {
	case "BucketAlreadyExists", "BucketAlreadyOwnedByYou":
		return fmt.Errorf("%w: %w", cloud.ErrBucketAlreadyExists, err)
	case "BucketNotEmpty":
		return fmt.Errorf("%w: %w", cloud.ErrBucketNotEmpty, err)
	case "NoSuchBucket", "NoSuchKey", "NoSuchVersion", "NotFound", "NotFoundException", "ResourceNotFoundException":
		return fmt.Errorf("%w: %w", cloud.ErrNotFound, err)
	}
	return err
}
