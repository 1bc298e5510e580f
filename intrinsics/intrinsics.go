// Package intrinsics provides the CloudFormation intrinsic functions used by
// synthesized stack templates.
//
//	Ref{LogicalName: "GeneratorBucketA1B2C3D4"} → {"Ref": "GeneratorBucketA1B2C3D4"}
//	GetAtt{LogicalName: "FnRole", Attribute: "Arn"} → {"Fn::GetAtt": ["FnRole", "Arn"]}
//	Join{Delimiter: "", Values: []any{"https://", ...}} → {"Fn::Join": ["", [...]]}
package intrinsics

import (
	"github.com/lex00/cloudformation-schema-go/intrinsics"
)

type (
	// Ref represents a CloudFormation Ref intrinsic function.
	Ref = intrinsics.Ref

	// GetAtt represents a CloudFormation Fn::GetAtt intrinsic function.
	GetAtt = intrinsics.GetAtt

	// Sub represents a CloudFormation Fn::Sub intrinsic function.
	Sub = intrinsics.Sub

	// Join represents a CloudFormation Fn::Join intrinsic function.
	Join = intrinsics.Join
)

// Pseudo-parameters resolved by the deployment backend.
var (
	AWS_ACCOUNT_ID = intrinsics.AWS_ACCOUNT_ID
	AWS_PARTITION  = intrinsics.AWS_PARTITION
	AWS_REGION     = intrinsics.AWS_REGION
	AWS_STACK_NAME = intrinsics.AWS_STACK_NAME
	AWS_URL_SUFFIX = intrinsics.AWS_URL_SUFFIX
)

// Arn builds an ARN for the current partition, e.g.
// Arn("iam", "", "aws", "policy/service-role/AWSLambdaBasicExecutionRole").
func Arn(service, region, account, resource string) Join {
	return Join{Delimiter: "", Values: []any{
		"arn:", AWS_PARTITION, ":" + service + ":" + region + ":" + account + ":" + resource,
	}}
}

// SourceArn builds an execute-api ARN matching any method on path of a
// stage. stage is a literal name, "*" or a Ref to the stage resource.
func SourceArn(restAPI string, stage any, path string) Join {
	return Join{Delimiter: "", Values: []any{
		"arn:", AWS_PARTITION, ":execute-api:", AWS_REGION, ":", AWS_ACCOUNT_ID, ":",
		Ref{LogicalName: restAPI}, "/", stage, "/*/", path,
	}}
}
