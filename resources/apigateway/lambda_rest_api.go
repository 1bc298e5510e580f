// Package apigateway declares HTTP ingress in front of functions.
package apigateway

import (
	"errors"
	"fmt"

	stackwire "github.com/schedulegen/stackwire-go"
	"github.com/schedulegen/stackwire-go/construct"
	"github.com/schedulegen/stackwire-go/resources/lambda"
)

var (
	// ErrHandlerRequired is returned when no function is given.
	ErrHandlerRequired = errors.New("apigateway: handler function is required")
	// ErrForeignHandler is returned when the function belongs to another stack.
	ErrForeignHandler = errors.New("apigateway: handler function belongs to a different stack")
)

// DefaultStageName is the stage requests are served from.
const DefaultStageName = "prod"

// LambdaRestApiProps configures a LambdaRestApi.
type LambdaRestApiProps struct {
	// Handler receives every request, for every path and method.
	Handler *lambda.Function

	RestApiName string
	StageName   string
	Description string
}

// LambdaRestApi is a catch-all proxy in front of one function. There is no
// routing table and no authorization.
type LambdaRestApi struct {
	stack *construct.Stack
	id    string
	props LambdaRestApiProps
}

// NewLambdaRestApi declares a gateway in stack.
func NewLambdaRestApi(stack *construct.Stack, id string, props LambdaRestApiProps) (*LambdaRestApi, error) {
	if stack == nil {
		return nil, fmt.Errorf("rest api %q: stack scope is required", id)
	}
	if props.Handler == nil {
		return nil, fmt.Errorf("%s: %w", stack.Path(id), ErrHandlerRequired)
	}
	if props.Handler.Stack() != stack {
		return nil, fmt.Errorf("%s: %w", stack.Path(id), ErrForeignHandler)
	}
	if props.RestApiName == "" {
		props.RestApiName = id
	}
	if props.StageName == "" {
		props.StageName = DefaultStageName
	}

	api := &LambdaRestApi{stack: stack, id: id, props: props}
	if err := stack.Add(api); err != nil {
		return nil, err
	}
	return api, nil
}

// ID implements stackwire.Resource.
func (a *LambdaRestApi) ID() string { return a.id }

// Kind implements stackwire.Resource.
func (a *LambdaRestApi) Kind() stackwire.Kind { return stackwire.KindGateway }

// ResourceType implements stackwire.Resource.
func (a *LambdaRestApi) ResourceType() string { return "AWS::ApiGateway::RestApi" }

// Dependencies implements stackwire.Resource. The gateway depends on exactly
// its handler.
func (a *LambdaRestApi) Dependencies() []string {
	return []string{a.props.Handler.ID()}
}

// Stack returns the owning stack.
func (a *LambdaRestApi) Stack() *construct.Stack { return a.stack }

// Props returns the props with defaults applied.
func (a *LambdaRestApi) Props() LambdaRestApiProps { return a.props }

// Handler returns the function every request is routed to.
func (a *LambdaRestApi) Handler() *lambda.Function { return a.props.Handler }

// RestApiName returns the API name.
func (a *LambdaRestApi) RestApiName() string { return a.props.RestApiName }

// StageName returns the deployed stage name.
func (a *LambdaRestApi) StageName() string { return a.props.StageName }

// URLOutput names the template output holding the stage invoke URL.
func (a *LambdaRestApi) URLOutput() string { return a.id + "Endpoint" }
