package awscloud

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/apigatewayv2"
	gwtypes "github.com/aws/aws-sdk-go-v2/service/apigatewayv2/types"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/schedulegen/stackwire-go/internal/cloud"
	lambdares "github.com/schedulegen/stackwire-go/resources/lambda"
)

type MockS3Client struct{ mock.Mock }

func (m *MockS3Client) CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(*s3.CreateBucketOutput), args.Error(1)
}

func (m *MockS3Client) DeleteBucket(ctx context.Context, params *s3.DeleteBucketInput, optFns ...func(*s3.Options)) (*s3.DeleteBucketOutput, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(*s3.DeleteBucketOutput), args.Error(1)
}

func (m *MockS3Client) PutBucketVersioning(ctx context.Context, params *s3.PutBucketVersioningInput, optFns ...func(*s3.Options)) (*s3.PutBucketVersioningOutput, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(*s3.PutBucketVersioningOutput), args.Error(1)
}

func (m *MockS3Client) PutBucketTagging(ctx context.Context, params *s3.PutBucketTaggingInput, optFns ...func(*s3.Options)) (*s3.PutBucketTaggingOutput, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(*s3.PutBucketTaggingOutput), args.Error(1)
}

func (m *MockS3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(*s3.PutObjectOutput), args.Error(1)
}

func (m *MockS3Client) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(*s3.GetObjectOutput), args.Error(1)
}

type MockLambdaClient struct{ mock.Mock }

func (m *MockLambdaClient) GetFunction(ctx context.Context, params *lambda.GetFunctionInput, optFns ...func(*lambda.Options)) (*lambda.GetFunctionOutput, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(*lambda.GetFunctionOutput), args.Error(1)
}

func (m *MockLambdaClient) CreateFunction(ctx context.Context, params *lambda.CreateFunctionInput, optFns ...func(*lambda.Options)) (*lambda.CreateFunctionOutput, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(*lambda.CreateFunctionOutput), args.Error(1)
}

func (m *MockLambdaClient) UpdateFunctionCode(ctx context.Context, params *lambda.UpdateFunctionCodeInput, optFns ...func(*lambda.Options)) (*lambda.UpdateFunctionCodeOutput, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(*lambda.UpdateFunctionCodeOutput), args.Error(1)
}

func (m *MockLambdaClient) UpdateFunctionConfiguration(ctx context.Context, params *lambda.UpdateFunctionConfigurationInput, optFns ...func(*lambda.Options)) (*lambda.UpdateFunctionConfigurationOutput, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(*lambda.UpdateFunctionConfigurationOutput), args.Error(1)
}

func (m *MockLambdaClient) DeleteFunction(ctx context.Context, params *lambda.DeleteFunctionInput, optFns ...func(*lambda.Options)) (*lambda.DeleteFunctionOutput, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(*lambda.DeleteFunctionOutput), args.Error(1)
}

func (m *MockLambdaClient) Invoke(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(*lambda.InvokeOutput), args.Error(1)
}

func (m *MockLambdaClient) AddPermission(ctx context.Context, params *lambda.AddPermissionInput, optFns ...func(*lambda.Options)) (*lambda.AddPermissionOutput, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(*lambda.AddPermissionOutput), args.Error(1)
}

type MockApiGatewayClient struct{ mock.Mock }

func (m *MockApiGatewayClient) CreateApi(ctx context.Context, params *apigatewayv2.CreateApiInput, optFns ...func(*apigatewayv2.Options)) (*apigatewayv2.CreateApiOutput, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(*apigatewayv2.CreateApiOutput), args.Error(1)
}

func (m *MockApiGatewayClient) UpdateApi(ctx context.Context, params *apigatewayv2.UpdateApiInput, optFns ...func(*apigatewayv2.Options)) (*apigatewayv2.UpdateApiOutput, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(*apigatewayv2.UpdateApiOutput), args.Error(1)
}

func (m *MockApiGatewayClient) DeleteApi(ctx context.Context, params *apigatewayv2.DeleteApiInput, optFns ...func(*apigatewayv2.Options)) (*apigatewayv2.DeleteApiOutput, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(*apigatewayv2.DeleteApiOutput), args.Error(1)
}

func (m *MockApiGatewayClient) CreateStage(ctx context.Context, params *apigatewayv2.CreateStageInput, optFns ...func(*apigatewayv2.Options)) (*apigatewayv2.CreateStageOutput, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(*apigatewayv2.CreateStageOutput), args.Error(1)
}

type MockSTSClient struct{ mock.Mock }

func (m *MockSTSClient) GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(*sts.GetCallerIdentityOutput), args.Error(1)
}

type mocks struct {
	s3     *MockS3Client
	lambda *MockLambdaClient
	gw     *MockApiGatewayClient
	sts    *MockSTSClient
}

func newCloud(t *testing.T, region string) (*Cloud, mocks) {
	t.Helper()
	return newCloudAs(t, region, "arn:aws:iam::123456789012:user/test")
}

func newCloudAs(t *testing.T, region, callerArn string) (*Cloud, mocks) {
	t.Helper()
	m := mocks{&MockS3Client{}, &MockLambdaClient{}, &MockApiGatewayClient{}, &MockSTSClient{}}
	m.sts.On("GetCallerIdentity", mock.Anything, mock.Anything).Return(&sts.GetCallerIdentityOutput{
		Account: aws.String("123456789012"),
		Arn:     aws.String(callerArn),
	}, nil)

	c, err := FromClients(context.Background(), Clients{S3: m.s3, Lambda: m.lambda, Gw: m.gw, STS: m.sts}, Options{
		Region:  region,
		RoleArn: "arn:aws:iam::123456789012:role/generator",
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)
	return c, m
}

func apiError(code string) error {
	return &smithy.GenericAPIError{Code: code, Message: code}
}

func TestFromClients(t *testing.T) {
	c, m := newCloud(t, "us-west-2")
	assert.Equal(t, "123456789012", c.AccountID())
	assert.Equal(t, "us-west-2", c.Region())
	assert.NoError(t, c.Provider().Validate())
	m.sts.AssertExpectations(t)

	_, err := FromClients(context.Background(), Clients{STS: m.sts}, Options{})
	assert.Error(t, err)
}

func TestMapError(t *testing.T) {
	tests := []struct {
		code string
		want error
	}{
		{"BucketAlreadyExists", cloud.ErrBucketAlreadyExists},
		{"BucketAlreadyOwnedByYou", cloud.ErrBucketAlreadyExists},
		{"BucketNotEmpty", cloud.ErrBucketNotEmpty},
		{"NoSuchBucket", cloud.ErrNotFound},
		{"NoSuchKey", cloud.ErrNotFound},
		{"ResourceNotFoundException", cloud.ErrNotFound},
		{"NotFoundException", cloud.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := mapError(apiError(tt.code))
			assert.ErrorIs(t, err, tt.want)

			var apiErr smithy.APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.code, apiErr.ErrorCode())
		})
	}

	plain := errors.New("boom")
	assert.Equal(t, plain, mapError(plain))
	assert.Equal(t, apiError("Throttling").Error(), mapError(apiError("Throttling")).Error())
	assert.NoError(t, mapError(nil))
}

func TestCreateBucket(t *testing.T) {
	c, m := newCloud(t, "us-west-2")
	m.s3.On("CreateBucket", mock.Anything, mock.MatchedBy(func(in *s3.CreateBucketInput) bool {
		return aws.ToString(in.Bucket) == "uvic-schedule-generator-bucket" &&
			in.CreateBucketConfiguration.LocationConstraint == s3types.BucketLocationConstraint("us-west-2")
	})).Return(&s3.CreateBucketOutput{}, nil)
	m.s3.On("PutBucketVersioning", mock.Anything, mock.MatchedBy(func(in *s3.PutBucketVersioningInput) bool {
		return in.VersioningConfiguration.Status == s3types.BucketVersioningStatusEnabled
	})).Return(&s3.PutBucketVersioningOutput{}, nil)
	m.s3.On("PutBucketTagging", mock.Anything, mock.MatchedBy(func(in *s3.PutBucketTaggingInput) bool {
		return len(in.Tagging.TagSet) == 2 && aws.ToString(in.Tagging.TagSet[0].Key) == "app"
	})).Return(&s3.PutBucketTaggingOutput{}, nil)

	info, err := c.CreateBucket(context.Background(), cloud.BucketSpec{
		Name:      "uvic-schedule-generator-bucket",
		Versioned: true,
		Tags:      map[string]string{"team": "generator", "app": "schedule"},
	})
	require.NoError(t, err)
	assert.True(t, info.Versioned)
	assert.Equal(t, "arn:aws:s3:::uvic-schedule-generator-bucket", info.Arn)
	m.s3.AssertExpectations(t)
}

func TestCreateBucket_UsEast1HasNoLocationConstraint(t *testing.T) {
	c, m := newCloud(t, "us-east-1")
	m.s3.On("CreateBucket", mock.Anything, mock.MatchedBy(func(in *s3.CreateBucketInput) bool {
		return in.CreateBucketConfiguration == nil
	})).Return(&s3.CreateBucketOutput{}, nil)

	_, err := c.CreateBucket(context.Background(), cloud.BucketSpec{Name: "plain"})
	require.NoError(t, err)
	m.s3.AssertNotCalled(t, "PutBucketVersioning", mock.Anything, mock.Anything)
}

func TestCreateBucket_NameTaken(t *testing.T) {
	c, m := newCloud(t, "us-east-1")
	m.s3.On("CreateBucket", mock.Anything, mock.Anything).Return((*s3.CreateBucketOutput)(nil), apiError("BucketAlreadyExists"))

	_, err := c.CreateBucket(context.Background(), cloud.BucketSpec{Name: "taken"})
	assert.ErrorIs(t, err, cloud.ErrBucketAlreadyExists)
}

func TestUpdateBucket_Suspends(t *testing.T) {
	c, m := newCloud(t, "us-east-1")
	m.s3.On("PutBucketVersioning", mock.Anything, mock.MatchedBy(func(in *s3.PutBucketVersioningInput) bool {
		return in.VersioningConfiguration.Status == s3types.BucketVersioningStatusSuspended
	})).Return(&s3.PutBucketVersioningOutput{}, nil)

	info, err := c.UpdateBucket(context.Background(), cloud.BucketSpec{Name: "b"})
	require.NoError(t, err)
	assert.False(t, info.Versioned)
	m.s3.AssertExpectations(t)
}

func TestObjects(t *testing.T) {
	c, m := newCloud(t, "us-east-1")
	m.s3.On("PutObject", mock.Anything, mock.Anything).Return(&s3.PutObjectOutput{VersionId: aws.String("v-1")}, nil).Once()
	m.s3.On("PutObject", mock.Anything, mock.Anything).Return(&s3.PutObjectOutput{}, nil).Once()
	m.s3.On("GetObject", mock.Anything, mock.MatchedBy(func(in *s3.GetObjectInput) bool {
		return aws.ToString(in.VersionId) == "v-1"
	})).Return(&s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader("first"))}, nil)
	m.s3.On("GetObject", mock.Anything, mock.MatchedBy(func(in *s3.GetObjectInput) bool {
		return in.VersionId == nil
	})).Return((*s3.GetObjectOutput)(nil), apiError("NoSuchKey"))

	id, err := c.PutObject(context.Background(), "b", "k", []byte("first"))
	require.NoError(t, err)
	assert.Equal(t, "v-1", id)

	id, err = c.PutObject(context.Background(), "b", "k", []byte("second"))
	require.NoError(t, err)
	assert.Equal(t, "null", id)

	data, err := c.GetObject(context.Background(), "b", "k", "v-1")
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))

	_, err = c.GetObject(context.Background(), "b", "k", "")
	assert.ErrorIs(t, err, cloud.ErrNotFound)
}

func TestDeleteBucket_NotEmpty(t *testing.T) {
	c, m := newCloud(t, "us-east-1")
	m.s3.On("DeleteBucket", mock.Anything, mock.Anything).Return((*s3.DeleteBucketOutput)(nil), apiError("BucketNotEmpty"))

	assert.ErrorIs(t, c.DeleteBucket(context.Background(), "b"), cloud.ErrBucketNotEmpty)
}

func functionSpec() cloud.FunctionSpec {
	return cloud.FunctionSpec{
		Name:        "generator",
		Handler:     "insert entrypoint here",
		Runtime:     lambdares.RuntimeJava11,
		Code:        []byte("zip"),
		MemorySize:  128,
		Timeout:     3 * time.Second,
		Environment: map[string]string{"BUCKET": "b"},
	}
}

func TestCreateFunction(t *testing.T) {
	c, m := newCloud(t, "us-east-1")
	m.lambda.On("CreateFunction", mock.Anything, mock.MatchedBy(func(in *lambda.CreateFunctionInput) bool {
		return aws.ToString(in.FunctionName) == "generator" &&
			aws.ToString(in.Role) == "arn:aws:iam::123456789012:role/generator" &&
			aws.ToString(in.Handler) == "insert entrypoint here" &&
			string(in.Runtime) == "java11" &&
			aws.ToInt32(in.MemorySize) == 128 &&
			aws.ToInt32(in.Timeout) == 3 &&
			in.Environment.Variables["BUCKET"] == "b"
	})).Return(&lambda.CreateFunctionOutput{
		FunctionArn: aws.String("arn:aws:lambda:us-east-1:123456789012:function:generator"),
		CodeSha256:  aws.String("sha"),
	}, nil)

	info, err := c.CreateFunction(context.Background(), functionSpec())
	require.NoError(t, err)
	assert.Equal(t, "arn:aws:lambda:us-east-1:123456789012:function:generator", info.Arn)
	assert.Equal(t, "sha", info.CodeSha256)
	m.lambda.AssertExpectations(t)
}

func TestCreateFunction_RequiresRole(t *testing.T) {
	c, _ := newCloud(t, "us-east-1")
	c.roleArn = ""
	_, err := c.CreateFunction(context.Background(), functionSpec())
	assert.ErrorIs(t, err, ErrRoleRequired)
}

func TestUpdateFunction(t *testing.T) {
	c, m := newCloud(t, "us-east-1")
	m.lambda.On("UpdateFunctionConfiguration", mock.Anything, mock.Anything).Return(&lambda.UpdateFunctionConfigurationOutput{}, nil)
	m.lambda.On("UpdateFunctionCode", mock.Anything, mock.MatchedBy(func(in *lambda.UpdateFunctionCodeInput) bool {
		return string(in.ZipFile) == "zip"
	})).Return(&lambda.UpdateFunctionCodeOutput{FunctionArn: aws.String("arn"), CodeSha256: aws.String("new")}, nil)

	info, err := c.UpdateFunction(context.Background(), functionSpec())
	require.NoError(t, err)
	assert.Equal(t, "new", info.CodeSha256)
	m.lambda.AssertExpectations(t)
}

func TestInvoke_FunctionError(t *testing.T) {
	c, m := newCloud(t, "us-east-1")
	m.lambda.On("Invoke", mock.Anything, mock.Anything).Return(&lambda.InvokeOutput{
		FunctionError: aws.String("Unhandled"),
		Payload:       []byte(`{"errorType":"java.lang.ClassNotFoundException"}`),
	}, nil)

	_, err := c.Invoke(context.Background(), "generator", []byte(`{}`))
	assert.ErrorIs(t, err, cloud.ErrInvocationFailed)
	assert.Contains(t, err.Error(), "ClassNotFoundException")
}

func TestInvoke_Success(t *testing.T) {
	c, m := newCloud(t, "us-east-1")
	m.lambda.On("Invoke", mock.Anything, mock.Anything).Return(&lambda.InvokeOutput{Payload: []byte(`"ok"`)}, nil)

	out, err := c.Invoke(context.Background(), "generator", nil)
	require.NoError(t, err)
	assert.Equal(t, `"ok"`, string(out))
}

func TestCreateGateway(t *testing.T) {
	c, m := newCloud(t, "us-east-1")
	fnArn := "arn:aws:lambda:us-east-1:123456789012:function:generator"
	m.gw.On("CreateApi", mock.Anything, mock.MatchedBy(func(in *apigatewayv2.CreateApiInput) bool {
		return in.ProtocolType == gwtypes.ProtocolTypeHttp && aws.ToString(in.Target) == fnArn
	})).Return(&apigatewayv2.CreateApiOutput{ApiId: aws.String("abc123")}, nil)
	m.gw.On("CreateStage", mock.Anything, mock.MatchedBy(func(in *apigatewayv2.CreateStageInput) bool {
		return aws.ToString(in.StageName) == "prod" && aws.ToBool(in.AutoDeploy)
	})).Return(&apigatewayv2.CreateStageOutput{}, nil)
	m.lambda.On("AddPermission", mock.Anything, mock.MatchedBy(func(in *lambda.AddPermissionInput) bool {
		return aws.ToString(in.Principal) == "apigateway.amazonaws.com" &&
			aws.ToString(in.SourceArn) == "arn:aws:execute-api:us-east-1:123456789012:abc123/*"
	})).Return((*lambda.AddPermissionOutput)(nil), apiError("ResourceConflictException"))

	info, err := c.CreateGateway(context.Background(), cloud.GatewaySpec{
		Name:         "generator-api",
		StageName:    "prod",
		FunctionName: "generator",
		FunctionArn:  fnArn,
	})
	require.NoError(t, err)
	assert.Equal(t, "abc123", info.ID)
	assert.Equal(t, "https://abc123.execute-api.us-east-1.amazonaws.com/prod/", info.URL)
	m.gw.AssertExpectations(t)
	m.lambda.AssertExpectations(t)
}

func TestDeleteGateway_NotFound(t *testing.T) {
	c, m := newCloud(t, "us-east-1")
	m.gw.On("DeleteApi", mock.Anything, mock.Anything).Return((*apigatewayv2.DeleteApiOutput)(nil), apiError("NotFoundException"))

	assert.ErrorIs(t, c.DeleteGateway(context.Background(), "gone"), cloud.ErrNotFound)
}

func TestCreateBucket_RemovedWhenVersioningFails(t *testing.T) {
	c, m := newCloud(t, "us-east-1")
	m.s3.On("CreateBucket", mock.Anything, mock.Anything).Return(&s3.CreateBucketOutput{}, nil)
	m.s3.On("PutBucketVersioning", mock.Anything, mock.Anything).
		Return((*s3.PutBucketVersioningOutput)(nil), apiError("AccessDenied"))
	m.s3.On("DeleteBucket", mock.Anything, mock.MatchedBy(func(in *s3.DeleteBucketInput) bool {
		return aws.ToString(in.Bucket) == "b"
	})).Return(&s3.DeleteBucketOutput{}, nil).Once()

	_, err := c.CreateBucket(context.Background(), cloud.BucketSpec{Name: "b", Versioned: true})
	require.Error(t, err)
	var apiErr smithy.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "AccessDenied", apiErr.ErrorCode())
	assert.NotContains(t, err.Error(), "cleaning up")
	m.s3.AssertExpectations(t)
}

func TestCreateBucket_CleanupFailureIsJoined(t *testing.T) {
	c, m := newCloud(t, "us-east-1")
	m.s3.On("CreateBucket", mock.Anything, mock.Anything).Return(&s3.CreateBucketOutput{}, nil)
	m.s3.On("PutBucketTagging", mock.Anything, mock.Anything).
		Return((*s3.PutBucketTaggingOutput)(nil), apiError("AccessDenied"))
	m.s3.On("DeleteBucket", mock.Anything, mock.Anything).
		Return((*s3.DeleteBucketOutput)(nil), apiError("InternalError"))

	_, err := c.CreateBucket(context.Background(), cloud.BucketSpec{Name: "b", Tags: map[string]string{"app": "generator"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tagging bucket b")
	assert.Contains(t, err.Error(), "cleaning up bucket b")
	m.s3.AssertNumberOfCalls(t, "DeleteBucket", 1)
}

func TestCreateFunction_RemovedWhenNeverActive(t *testing.T) {
	c, m := newCloud(t, "us-east-1")
	c.wait = time.Second
	m.lambda.On("CreateFunction", mock.Anything, mock.Anything).Return(&lambda.CreateFunctionOutput{
		FunctionArn: aws.String("arn:aws:lambda:us-east-1:123456789012:function:generator"),
	}, nil)
	m.lambda.On("GetFunction", mock.Anything, mock.Anything).
		Return((*lambda.GetFunctionOutput)(nil), apiError("AccessDeniedException"))
	m.lambda.On("DeleteFunction", mock.Anything, mock.MatchedBy(func(in *lambda.DeleteFunctionInput) bool {
		return aws.ToString(in.FunctionName) == "generator"
	})).Return(&lambda.DeleteFunctionOutput{}, nil).Once()

	_, err := c.CreateFunction(context.Background(), functionSpec())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "waiting for function generator")
	m.lambda.AssertExpectations(t)
}

func TestCreateGateway_RemovedWhenStageFails(t *testing.T) {
	c, m := newCloud(t, "us-east-1")
	m.gw.On("CreateApi", mock.Anything, mock.Anything).Return(&apigatewayv2.CreateApiOutput{ApiId: aws.String("abc123")}, nil)
	m.gw.On("CreateStage", mock.Anything, mock.Anything).
		Return((*apigatewayv2.CreateStageOutput)(nil), apiError("BadRequestException"))
	m.gw.On("DeleteApi", mock.Anything, mock.MatchedBy(func(in *apigatewayv2.DeleteApiInput) bool {
		return aws.ToString(in.ApiId) == "abc123"
	})).Return(&apigatewayv2.DeleteApiOutput{}, nil).Once()

	_, err := c.CreateGateway(context.Background(), cloud.GatewaySpec{
		Name:        "generator-api",
		StageName:   "prod",
		FunctionArn: "arn:aws:lambda:us-east-1:123456789012:function:generator",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "creating stage prod")
	m.gw.AssertExpectations(t)
	m.lambda.AssertNotCalled(t, "AddPermission", mock.Anything, mock.Anything)
}

func TestCreateGateway_RemovedWhenPermissionFails(t *testing.T) {
	c, m := newCloud(t, "us-east-1")
	m.gw.On("CreateApi", mock.Anything, mock.Anything).Return(&apigatewayv2.CreateApiOutput{ApiId: aws.String("abc123")}, nil)
	m.gw.On("CreateStage", mock.Anything, mock.Anything).Return(&apigatewayv2.CreateStageOutput{}, nil)
	m.lambda.On("AddPermission", mock.Anything, mock.Anything).
		Return((*lambda.AddPermissionOutput)(nil), apiError("AccessDeniedException"))
	// already gone counts as cleaned up
	m.gw.On("DeleteApi", mock.Anything, mock.Anything).
		Return((*apigatewayv2.DeleteApiOutput)(nil), apiError("NotFoundException")).Once()

	_, err := c.CreateGateway(context.Background(), cloud.GatewaySpec{
		Name:        "generator-api",
		StageName:   "prod",
		FunctionArn: "arn:aws:lambda:us-east-1:123456789012:function:generator",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "granting abc123 invoke")
	assert.NotContains(t, err.Error(), "cleaning up")
	m.gw.AssertExpectations(t)
}

func TestPartitionOf(t *testing.T) {
	tests := []struct{ arn, want string }{
		{"arn:aws:iam::123456789012:user/test", "aws"},
		{"arn:aws-us-gov:iam::123456789012:user/test", "aws-us-gov"},
		{"arn:aws-cn:sts::123456789012:assumed-role/r", "aws-cn"},
		{"", "aws"},
		{"not-an-arn", "aws"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, partitionOf(tt.arn), tt.arn)
	}
}

func TestCreateBucket_GovCloudArn(t *testing.T) {
	c, m := newCloudAs(t, "us-gov-west-1", "arn:aws-us-gov:iam::123456789012:user/test")
	m.s3.On("CreateBucket", mock.Anything, mock.Anything).Return(&s3.CreateBucketOutput{}, nil)

	info, err := c.CreateBucket(context.Background(), cloud.BucketSpec{Name: "b"})
	require.NoError(t, err)
	assert.Equal(t, "aws-us-gov", c.Partition())
	assert.Equal(t, "arn:aws-us-gov:s3:::b", info.Arn)
}

func TestCreateGateway_ChinaPartition(t *testing.T) {
	c, m := newCloudAs(t, "cn-north-1", "arn:aws-cn:iam::123456789012:user/test")
	m.gw.On("CreateApi", mock.Anything, mock.Anything).Return(&apigatewayv2.CreateApiOutput{ApiId: aws.String("abc123")}, nil)
	m.gw.On("CreateStage", mock.Anything, mock.Anything).Return(&apigatewayv2.CreateStageOutput{}, nil)
	m.lambda.On("AddPermission", mock.Anything, mock.MatchedBy(func(in *lambda.AddPermissionInput) bool {
		return aws.ToString(in.SourceArn) == "arn:aws-cn:execute-api:cn-north-1:123456789012:abc123/*"
	})).Return(&lambda.AddPermissionOutput{}, nil)

	info, err := c.CreateGateway(context.Background(), cloud.GatewaySpec{
		Name:        "generator-api",
		StageName:   "prod",
		FunctionArn: "arn:aws-cn:lambda:cn-north-1:123456789012:function:generator",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://abc123.execute-api.cn-north-1.amazonaws.com.cn/prod/", info.URL)
	m.lambda.AssertExpectations(t)
}

func TestFunctionCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/code.zip" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("previous zip"))
	}))
	defer srv.Close()

	c, m := newCloud(t, "us-east-1")
	m.lambda.On("GetFunction", mock.Anything, mock.MatchedBy(func(in *lambda.GetFunctionInput) bool {
		return aws.ToString(in.FunctionName) == "generator"
	})).Return(&lambda.GetFunctionOutput{
		Code: &lambdatypes.FunctionCodeLocation{Location: aws.String(srv.URL + "/code.zip")},
	}, nil)
	m.lambda.On("GetFunction", mock.Anything, mock.MatchedBy(func(in *lambda.GetFunctionInput) bool {
		return aws.ToString(in.FunctionName) == "expired"
	})).Return(&lambda.GetFunctionOutput{
		Code: &lambdatypes.FunctionCodeLocation{Location: aws.String(srv.URL + "/gone.zip")},
	}, nil)
	m.lambda.On("GetFunction", mock.Anything, mock.Anything).
		Return((*lambda.GetFunctionOutput)(nil), apiError("ResourceNotFoundException"))

	code, err := c.FunctionCode(context.Background(), "generator")
	require.NoError(t, err)
	assert.Equal(t, "previous zip", string(code))

	_, err = c.FunctionCode(context.Background(), "expired")
	assert.ErrorContains(t, err, "404")

	_, err = c.FunctionCode(context.Background(), "missing")
	assert.ErrorIs(t, err, cloud.ErrNotFound)
}
