package template

import (
	"sort"

	stackwire "github.com/schedulegen/stackwire-go"
	"github.com/schedulegen/stackwire-go/construct"
	"github.com/schedulegen/stackwire-go/internal/asset"
	"github.com/schedulegen/stackwire-go/intrinsics"
	"github.com/schedulegen/stackwire-go/resources/apigateway"
	"github.com/schedulegen/stackwire-go/resources/lambda"
	"github.com/schedulegen/stackwire-go/resources/s3"
)

// AssetBucket is the bootstrap bucket code assets are uploaded to.
var AssetBucket = intrinsics.Sub{String: "cdk-hnb659fds-assets-${AWS::AccountId}-${AWS::Region}"}

const basicExecutionPolicy = "policy/service-role/AWSLambdaBasicExecutionRole"

type builder struct {
	stack      *construct.Stack
	opts       Options
	tmpl       *stackwire.Template
	assets     map[string]*asset.Staged
	logicalIDs map[string]string
}

// put adds a resource under the logical id derived from path.
func (b *builder) put(def stackwire.ResourceDef, props any, path ...string) (string, error) {
	id := LogicalID(b.stack, path...)
	if props != nil {
		p, err := normalize(props)
		if err != nil {
			return "", err
		}
		def.Properties = p
	}
	if def.Metadata == nil {
		def.Metadata = map[string]any{}
	}
	def.Metadata["aws:cdk:path"] = b.stack.Path(path...)
	b.tmpl.Resources[id] = def
	return id, nil
}

func (b *builder) output(name, description string, value any) error {
	v, err := normalizeValue(value)
	if err != nil {
		return err
	}
	b.tmpl.Outputs[name] = stackwire.Output{Description: description, Value: v}
	return nil
}

func (b *builder) tags() []map[string]string {
	tags := b.stack.Props().Tags
	if len(tags) == 0 {
		return nil
	}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]map[string]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, map[string]string{"Key": k, "Value": tags[k]})
	}
	return out
}

func (b *builder) addBucket(bucket *s3.Bucket) error {
	props := map[string]any{
		"BucketName": bucket.BucketName(),
	}
	if bucket.Props().Versioned {
		props["VersioningConfiguration"] = map[string]any{"Status": "Enabled"}
	}
	if tags := b.tags(); tags != nil {
		props["Tags"] = tags
	}

	policy := string(bucket.Props().RemovalPolicy)
	id, err := b.put(stackwire.ResourceDef{
		Type:                "AWS::S3::Bucket",
		DeletionPolicy:      policy,
		UpdateReplacePolicy: policy,
	}, props, bucket.ID(), "Resource")
	if err != nil {
		return err
	}
	b.logicalIDs[bucket.ID()] = id

	return b.output(bucket.ID()+"Name", "Name of the "+bucket.ID()+" bucket", intrinsics.Ref{LogicalName: id})
}

func (b *builder) addFunction(fn *lambda.Function) error {
	roleID, err := b.put(stackwire.ResourceDef{Type: "AWS::IAM::Role"}, map[string]any{
		"AssumeRolePolicyDocument": intrinsics.NewPolicyDocument(intrinsics.AssumeRoleStatement("lambda.amazonaws.com")),
		"ManagedPolicyArns":        []any{intrinsics.Arn("iam", "", "aws", basicExecutionPolicy)},
	}, fn.ID(), "ServiceRole", "Resource")
	if err != nil {
		return err
	}

	def := stackwire.ResourceDef{
		Type:      "AWS::Lambda::Function",
		DependsOn: []string{roleID},
	}
	var code map[string]any
	if fn.Code().IsAsset() {
		staged, err := asset.Stage(fn.Code(), b.stack.Props().AssetRoot, b.opts.Outdir)
		if err != nil {
			return err
		}
		b.assets[fn.ID()] = staged
		code = map[string]any{"S3Bucket": AssetBucket, "S3Key": staged.Key}
		def.Metadata = map[string]any{
			"aws:asset:path":     "asset." + staged.Hash + ".zip",
			"aws:asset:property": "Code",
		}
	} else {
		code = map[string]any{"ZipFile": fn.Code().Inline()}
	}

	props := map[string]any{
		"Code":       code,
		"Handler":    fn.Handler(),
		"Runtime":    fn.Runtime().Name(),
		"Role":       intrinsics.GetAtt{LogicalName: roleID, Attribute: "Arn"},
		"MemorySize": fn.MemorySize(),
		"Timeout":    int(fn.Timeout().Seconds()),
	}
	if name := fn.Props().FunctionName; name != "" {
		props["FunctionName"] = name
	}
	if d := fn.Props().Description; d != "" {
		props["Description"] = d
	}
	if env := fn.Props().Environment; len(env) > 0 {
		props["Environment"] = map[string]any{"Variables": env}
	}
	if tags := b.tags(); tags != nil {
		props["Tags"] = tags
	}

	id, err := b.put(def, props, fn.ID(), "Resource")
	if err != nil {
		return err
	}
	b.logicalIDs[fn.ID()] = id

	return b.output(fn.ID()+"Arn", "ARN of the "+fn.ID()+" function", intrinsics.GetAtt{LogicalName: id, Attribute: "Arn"})
}

func (b *builder) addRestApi(api *apigateway.LambdaRestApi) error {
	fnID, ok := b.logicalIDs[api.Handler().ID()]
	if !ok {
		// Dependencies are synthesized first, so this only happens for a
		// handler that was never added to the stack.
		return apigateway.ErrHandlerRequired
	}
	fnArn := intrinsics.GetAtt{LogicalName: fnID, Attribute: "Arn"}

	restProps := map[string]any{"Name": api.RestApiName()}
	if d := api.Props().Description; d != "" {
		restProps["Description"] = d
	}
	restID, err := b.put(stackwire.ResourceDef{Type: "AWS::ApiGateway::RestApi"}, restProps, api.ID(), "Resource")
	if err != nil {
		return err
	}
	b.logicalIDs[api.ID()] = restID
	restRef := intrinsics.Ref{LogicalName: restID}

	proxyID, err := b.put(stackwire.ResourceDef{Type: "AWS::ApiGateway::Resource"}, map[string]any{
		"ParentId":  intrinsics.GetAtt{LogicalName: restID, Attribute: "RootResourceId"},
		"PathPart":  "{proxy+}",
		"RestApiId": restRef,
	}, api.ID(), "Default", "{proxy+}", "Resource")
	if err != nil {
		return err
	}

	integration := map[string]any{
		"IntegrationHttpMethod": "POST",
		"Type":                  "AWS_PROXY",
		"Uri": intrinsics.Join{Delimiter: "", Values: []any{
			"arn:", intrinsics.AWS_PARTITION, ":apigateway:", intrinsics.AWS_REGION,
			":lambda:path/2015-03-31/functions/", fnArn, "/invocations",
		}},
	}

	proxyAnyID, err := b.put(stackwire.ResourceDef{Type: "AWS::ApiGateway::Method"}, map[string]any{
		"HttpMethod":        "ANY",
		"ResourceId":        intrinsics.Ref{LogicalName: proxyID},
		"RestApiId":         restRef,
		"AuthorizationType": "NONE",
		"Integration":       integration,
	}, api.ID(), "Default", "{proxy+}", "ANY", "Resource")
	if err != nil {
		return err
	}

	rootAnyID, err := b.put(stackwire.ResourceDef{Type: "AWS::ApiGateway::Method"}, map[string]any{
		"HttpMethod":        "ANY",
		"ResourceId":        intrinsics.GetAtt{LogicalName: restID, Attribute: "RootResourceId"},
		"RestApiId":         restRef,
		"AuthorizationType": "NONE",
		"Integration":       integration,
	}, api.ID(), "Default", "ANY", "Resource")
	if err != nil {
		return err
	}

	deploymentID, err := b.put(stackwire.ResourceDef{
		Type:      "AWS::ApiGateway::Deployment",
		DependsOn: sortedIDs(proxyAnyID, proxyID, rootAnyID),
	}, map[string]any{
		"RestApiId":   restRef,
		"Description": "Automatically created by the RestApi construct",
	}, api.ID(), "Deployment", "Resource")
	if err != nil {
		return err
	}

	stageID, err := b.put(stackwire.ResourceDef{Type: "AWS::ApiGateway::Stage"}, map[string]any{
		"RestApiId":    restRef,
		"DeploymentId": intrinsics.Ref{LogicalName: deploymentID},
		"StageName":    api.StageName(),
	}, api.ID(), "DeploymentStage."+api.StageName(), "Resource")
	if err != nil {
		return err
	}
	stageRef := intrinsics.Ref{LogicalName: stageID}

	for _, p := range []struct {
		path   []string
		source string
	}{
		{[]string{api.ID(), "Default", "{proxy+}", "ANY", "ApiPermission"}, "*"},
		{[]string{api.ID(), "Default", "ANY", "ApiPermission"}, ""},
	} {
		if _, err := b.put(stackwire.ResourceDef{Type: "AWS::Lambda::Permission"}, map[string]any{
			"Action":       "lambda:InvokeFunction",
			"FunctionName": fnArn,
			"Principal":    "apigateway.amazonaws.com",
			"SourceArn":    intrinsics.SourceArn(restID, stageRef, p.source),
		}, p.path...); err != nil {
			return err
		}
	}

	return b.output(api.URLOutput(), "URL of the "+api.ID()+" stage", intrinsics.Join{Delimiter: "", Values: []any{
		"https://", restRef, ".execute-api.", intrinsics.AWS_REGION, ".", intrinsics.AWS_URL_SUFFIX, "/", stageRef, "/",
	}})
}

func sortedIDs(ids ...string) []string {
	sort.Strings(ids)
	return ids
}
