// Package infra declares the schedule generator stack.
package infra

import (
	"github.com/schedulegen/stackwire-go/construct"
	"github.com/schedulegen/stackwire-go/internal/asset"
	"github.com/schedulegen/stackwire-go/resources/apigateway"
	"github.com/schedulegen/stackwire-go/resources/lambda"
	"github.com/schedulegen/stackwire-go/resources/s3"
)

// StackID is the id the generator stack is declared under by the CLI.
const StackID = "GeneratorStack"

// GeneratorStack holds the declared resources of the schedule generator.
type GeneratorStack struct {
	*construct.Stack

	Bucket   *s3.Bucket
	Function *lambda.Function
	API      *apigateway.LambdaRestApi
}

// NewGeneratorStack declares the generator bucket, function and API in app.
//
// The function is not given access to the bucket and nothing references the
// bucket's name; the two are deployed side by side only.
func NewGeneratorStack(app *construct.App, id string, props *construct.StackProps) (*GeneratorStack, error) {
	var sp construct.StackProps
	if props != nil {
		sp = *props
	}
	if sp.AssetRoot == "" {
		sp.AssetRoot = asset.CallerDir()
	}

	stack, err := construct.NewStack(app, id, &sp)
	if err != nil {
		return nil, err
	}

	bucket, err := s3.NewBucket(stack, "GeneratorBucket", s3.BucketProps{
		BucketName: "uvic-schedule-generator-bucket",
		Versioned:  true,
	})
	if err != nil {
		return nil, err
	}

	handler, err := lambda.NewFunction(stack, "GeneratorFunction", lambda.FunctionProps{
		Code:    lambda.FromAsset("../app"),
		Handler: "insert entrypoint here",
		Runtime: lambda.RuntimeJava11,
	})
	if err != nil {
		return nil, err
	}

	api, err := apigateway.NewLambdaRestApi(stack, "GeneratorAPI", apigateway.LambdaRestApiProps{
		Handler: handler,
	})
	if err != nil {
		return nil, err
	}

	return &GeneratorStack{Stack: stack, Bucket: bucket, Function: handler, API: api}, nil
}
