package optimizer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stackwire "github.com/schedulegen/stackwire-go"
	"github.com/schedulegen/stackwire-go/construct"
	"github.com/schedulegen/stackwire-go/resources/apigateway"
	"github.com/schedulegen/stackwire-go/resources/lambda"
	"github.com/schedulegen/stackwire-go/resources/s3"
)

type stackOpts struct {
	bucket   s3.BucketProps
	function lambda.FunctionProps
	gateway  bool
}

func newStack(t *testing.T, o stackOpts) *construct.Stack {
	t.Helper()
	stack, err := construct.NewStack(construct.NewApp(nil), "S", nil)
	require.NoError(t, err)
	_, err = s3.NewBucket(stack, "Bucket", o.bucket)
	require.NoError(t, err)
	if o.function.Code == nil {
		o.function.Code = lambda.FromInline("exports.handler = async () => ({})")
	}
	fn, err := lambda.NewFunction(stack, "Function", o.function)
	require.NoError(t, err)
	if o.gateway {
		_, err = apigateway.NewLambdaRestApi(stack, "API", apigateway.LambdaRestApiProps{Handler: fn})
		require.NoError(t, err)
	}
	return stack
}

func rules(result *Result) []string {
	var ids []string
	for _, s := range result.Suggestions {
		ids = append(ids, s.Resource+"/"+s.Rule)
	}
	return ids
}

func TestOptimize_GeneratorShape(t *testing.T) {
	stack := newStack(t, stackOpts{
		bucket:   s3.BucketProps{Versioned: true},
		function: lambda.FunctionProps{Handler: "pkg.Handler", Runtime: lambda.RuntimeJava11},
		gateway:  true,
	})

	result, err := Optimize(stack, Options{})
	require.NoError(t, err)

	assert.Equal(t, "S", result.Stack)
	assert.Equal(t, 3, result.ResourceCount)
	assert.Equal(t, []string{
		"API/OPT-APIGW-001",
		"Bucket/OPT-S3-003",
		"Function/OPT-LAM-001",
	}, rules(result))
	assert.Equal(t, Summary{Security: 1, Cost: 1, Performance: 1, Total: 3}, result.Summary)
	assert.Contains(t, result.Suggestions[2].Description, "128 MB")
}

func TestOptimize_RiskyStack(t *testing.T) {
	stack := newStack(t, stackOpts{
		bucket: s3.BucketProps{RemovalPolicy: stackwire.RemovalPolicyDestroy},
		function: lambda.FunctionProps{
			Handler:    "app.handler",
			Runtime:    lambda.RuntimePython39,
			MemorySize: 1024,
			Timeout:    time.Minute,
		},
		gateway: true,
	})

	result, err := Optimize(stack, Options{Category: "all"})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"API/OPT-APIGW-001",
		"Bucket/OPT-S3-001",
		"Bucket/OPT-S3-002",
		"Function/OPT-LAM-002",
		"Function/OPT-LAM-003",
	}, rules(result))
	assert.Equal(t, 2, result.Summary.Security)
	assert.Equal(t, 3, result.Summary.Reliability)
}

func TestOptimize_CategoryFilter(t *testing.T) {
	stack := newStack(t, stackOpts{
		function: lambda.FunctionProps{Handler: "app.handler", Runtime: lambda.RuntimePython39},
		gateway:  true,
	})

	result, err := Optimize(stack, Options{Category: CategorySecurity})
	require.NoError(t, err)
	require.NotEmpty(t, result.Suggestions)
	for _, s := range result.Suggestions {
		assert.Equal(t, CategorySecurity, s.Category)
	}
	assert.Equal(t, result.Summary.Security, result.Summary.Total)
}

func TestOptimize_LongTimeoutWithoutGateway(t *testing.T) {
	stack := newStack(t, stackOpts{
		bucket:   s3.BucketProps{Versioned: true},
		function: lambda.FunctionProps{Handler: "index.handler", Runtime: lambda.RuntimeNodejs20, Timeout: 5 * time.Minute},
	})

	result, err := Optimize(stack, Options{Category: CategoryReliability})
	require.NoError(t, err)
	assert.Empty(t, result.Suggestions)
}

func TestOptimize_UnknownCategory(t *testing.T) {
	stack := newStack(t, stackOpts{function: lambda.FunctionProps{Runtime: lambda.RuntimeNodejs20}})

	_, err := Optimize(stack, Options{Category: "style"})
	assert.ErrorContains(t, err, `unknown category "style"`)
}

func TestCalculateSummary(t *testing.T) {
	summary := calculateSummary([]Suggestion{
		{Category: CategorySecurity},
		{Category: CategorySecurity},
		{Category: CategoryCost},
		{Category: CategoryPerformance},
		{Category: CategoryReliability},
		{Category: CategoryReliability},
	})

	assert.Equal(t, Summary{Security: 2, Cost: 1, Performance: 1, Reliability: 2, Total: 6}, summary)
}
