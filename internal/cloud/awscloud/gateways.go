package awscloud

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/apigatewayv2"
	"github.com/aws/aws-sdk-go-v2/service/apigatewayv2/types"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/smithy-go"

	"github.com/schedulegen/stackwire-go/internal/cloud"
)

// CreateGateway quick-creates an HTTP API whose default route proxies to the
// function, adds an auto-deployed stage and grants the API invoke rights.
func (c *Cloud) CreateGateway(ctx context.Context, spec cloud.GatewaySpec) (*cloud.GatewayInfo, error) {
	if spec.FunctionArn == "" {
		return nil, fmt.Errorf("gateway %s: function arn is required", spec.Name)
	}
	api, err := c.Client.Gw.CreateApi(ctx, &apigatewayv2.CreateApiInput{
		Name:         aws.String(spec.Name),
		ProtocolType: types.ProtocolTypeHttp,
		Target:       aws.String(spec.FunctionArn),
		Description:  aws.String(spec.Description),
	})
	if err != nil {
		return nil, fmt.Errorf("creating api %s: %w", spec.Name, mapError(err))
	}
	apiID := aws.ToString(api.ApiId)

	if err := c.deployGateway(ctx, apiID, spec); err != nil {
		return nil, c.discard(ctx, err, "api "+apiID, func(ctx context.Context) error {
			return c.DeleteGateway(ctx, apiID)
		})
	}
	c.log.Debug().Str("api", apiID).Str("stage", spec.StageName).Msg("gateway created")

	return &cloud.GatewayInfo{
		ID:    apiID,
		Name:  spec.Name,
		Stage: spec.StageName,
		URL:   cloud.GatewayURL(apiID, c.region, spec.StageName),
	}, nil
}

func (c *Cloud) deployGateway(ctx context.Context, apiID string, spec cloud.GatewaySpec) error {
	if _, err := c.Client.Gw.CreateStage(ctx, &apigatewayv2.CreateStageInput{
		ApiId:      aws.String(apiID),
		StageName:  aws.String(spec.StageName),
		AutoDeploy: aws.Bool(true),
	}); err != nil {
		return fmt.Errorf("creating stage %s: %w", spec.StageName, mapError(err))
	}
	return c.putPermission(ctx, apiID, spec.FunctionArn)
}

func (c *Cloud) UpdateGateway(ctx context.Context, id string, spec cloud.GatewaySpec) (*cloud.GatewayInfo, error) {
	if _, err := c.Client.Gw.UpdateApi(ctx, &apigatewayv2.UpdateApiInput{
		ApiId:       aws.String(id),
		Name:        aws.String(spec.Name),
		Target:      aws.String(spec.FunctionArn),
		Description: aws.String(spec.Description),
	}); err != nil {
		return nil, fmt.Errorf("updating api %s: %w", id, mapError(err))
	}
	if err := c.putPermission(ctx, id, spec.FunctionArn); err != nil {
		return nil, err
	}
	return &cloud.GatewayInfo{
		ID:    id,
		Name:  spec.Name,
		Stage: spec.StageName,
		URL:   cloud.GatewayURL(id, c.region, spec.StageName),
	}, nil
}

func (c *Cloud) DeleteGateway(ctx context.Context, id string) error {
	if _, err := c.Client.Gw.DeleteApi(ctx, &apigatewayv2.DeleteApiInput{ApiId: aws.String(id)}); err != nil {
		return fmt.Errorf("deleting api %s: %w", id, mapError(err))
	}
	return nil
}

// putPermission lets the API invoke the function. An existing statement is
// left in place.
func (c *Cloud) putPermission(ctx context.Context, apiID, functionArn string) error {
	var apiErr smithy.APIError

	_, err := c.Client.Lambda.AddPermission(ctx, &lambda.AddPermissionInput{
		Action:       aws.String("lambda:InvokeFunction"),
		FunctionName: aws.String(functionArn),
		Principal:    aws.String("apigateway.amazonaws.com"),
		SourceArn:    aws.String(fmt.Sprintf("arn:%s:execute-api:%s:%s:%s/*", c.partition, c.region, c.accountID, apiID)),
		StatementId:  aws.String("stackwire-" + apiID),
	})

	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "ResourceConflictException" {
		return nil
	}

	if err != nil {
		return fmt.Errorf("granting %s invoke on %s: %w", apiID, functionArn, mapError(err))
	}

	return nil
}
