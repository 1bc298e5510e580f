// Package stackwire provides the shared types for declaring, synthesizing and
// provisioning the schedule-generator cloud stack.
//
// Resources are declared with explicit constructors that take the owning stack:
//
//	app := construct.NewApp(nil)
//	stack, _ := construct.NewStack(app, "GeneratorStack", nil)
//	bucket, _ := s3.NewBucket(stack, "GeneratorBucket", s3.BucketProps{
//	    BucketName: "uvic-schedule-generator-bucket",
//	    Versioned:  true,
//	})
//
// The stackwire CLI synthesizes declared stacks into CloudFormation templates and
// provisions them against a cloud backend.
package stackwire

import (
	"encoding/json"
)

// Kind identifies the logical role of a declared resource.
type Kind string

const (
	// KindStorage is a versioned object store.
	KindStorage Kind = "storage"
	// KindCompute is a managed function.
	KindCompute Kind = "compute"
	// KindGateway is an HTTP ingress proxying to a function.
	KindGateway Kind = "gateway"
)

// Resource is a declared resource owned by a stack.
// All resource constructors (s3.NewBucket, lambda.NewFunction, ...) return types implementing it.
type Resource interface {
	// ID returns the construct id, unique within the owning stack.
	ID() string

	// Kind returns the logical role of the resource.
	Kind() Kind

	// ResourceType returns the primary CloudFormation type (e.g., "AWS::S3::Bucket").
	ResourceType() string

	// Dependencies returns the ids of resources this resource references.
	Dependencies() []string
}

// RemovalPolicy controls what happens to a physical resource when it leaves the stack.
type RemovalPolicy string

const (
	// RemovalPolicyRetain keeps the physical resource when it is removed from the stack.
	RemovalPolicyRetain RemovalPolicy = "Retain"
	// RemovalPolicyDestroy deletes the physical resource.
	RemovalPolicyDestroy RemovalPolicy = "Delete"
)

// AttrRef represents a reference to an attribute of a declared resource.
//
// Example:
//
//	fn, _ := lambda.NewFunction(stack, "Fn", props)
//	arn := fn.FunctionArn() // AttrRef{Resource: "Fn", Attribute: "Arn"}
//
// When serialized directly, AttrRef becomes:
//
//	{"Fn::GetAtt": ["Fn", "Arn"]}
//
// The template synthesizer rewrites Resource to the synthesized logical id.
type AttrRef struct {
	// Resource is the construct id of the referenced resource
	Resource string
	// Attribute is the attribute name (e.g., "Arn", "RootResourceId")
	Attribute string
}

// MarshalJSON serializes AttrRef to CloudFormation GetAtt syntax.
func (a AttrRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string][]string{
		"Fn::GetAtt": {a.Resource, a.Attribute},
	})
}

// IsZero returns true if the AttrRef has not been populated.
func (a AttrRef) IsZero() bool {
	return a.Resource == "" && a.Attribute == ""
}

// Template represents a CloudFormation template.
type Template struct {
	AWSTemplateFormatVersion string                 `json:"AWSTemplateFormatVersion" yaml:"AWSTemplateFormatVersion"`
	Description              string                 `json:"Description,omitempty" yaml:"Description,omitempty"`
	Metadata                 map[string]any         `json:"Metadata,omitempty" yaml:"Metadata,omitempty"`
	Resources                map[string]ResourceDef `json:"Resources" yaml:"Resources"`
	Outputs                  map[string]Output      `json:"Outputs,omitempty" yaml:"Outputs,omitempty"`
}

// ResourceDef is a single resource in the CloudFormation template.
type ResourceDef struct {
	Type                string         `json:"Type" yaml:"Type"`
	Properties          map[string]any `json:"Properties,omitempty" yaml:"Properties,omitempty"`
	DependsOn           []string       `json:"DependsOn,omitempty" yaml:"DependsOn,omitempty"`
	DeletionPolicy      string         `json:"DeletionPolicy,omitempty" yaml:"DeletionPolicy,omitempty"`
	UpdateReplacePolicy string         `json:"UpdateReplacePolicy,omitempty" yaml:"UpdateReplacePolicy,omitempty"`
	Metadata            map[string]any `json:"Metadata,omitempty" yaml:"Metadata,omitempty"`
}

// Output is a CloudFormation template output.
type Output struct {
	Description string `json:"Description,omitempty" yaml:"Description,omitempty"`
	Value       any    `json:"Value" yaml:"Value"`
}

// DiffAction classifies a change between two templates.
type DiffAction string

const (
	DiffAdd     DiffAction = "add"
	DiffRemove  DiffAction = "remove"
	DiffModify  DiffAction = "modify"
	DiffReplace DiffAction = "replace"
)

// DiffEntry is one changed resource.
type DiffEntry struct {
	Resource string     `json:"resource"`
	Type     string     `json:"type"`
	Action   DiffAction `json:"action"`
	Changes  []string   `json:"changes,omitempty"`
}

// TemplateDiff groups changed resources by direction.
type TemplateDiff struct {
	Added    []DiffEntry `json:"added,omitempty"`
	Removed  []DiffEntry `json:"removed,omitempty"`
	Modified []DiffEntry `json:"modified,omitempty"`
}

// DiffSummary counts changes. Replaced is a subset of Modified.
type DiffSummary struct {
	Added    int `json:"added"`
	Removed  int `json:"removed"`
	Modified int `json:"modified"`
	Replaced int `json:"replaced"`
	Total    int `json:"total"`
}

// SynthResult is the JSON output from `stackwire synth --json-result`.
type SynthResult struct {
	Success   bool     `json:"success"`
	Template  Template `json:"template,omitempty"`
	Resources []string `json:"resources,omitempty"`
	Errors    []string `json:"errors,omitempty"`
}

// ListResult is the JSON output from `stackwire list --declared`.
type ListResult struct {
	Resources []ListResource `json:"resources"`
}

// ListResource is a single resource in the list output.
type ListResource struct {
	ID           string   `json:"id"`
	Kind         Kind     `json:"kind"`
	Type         string   `json:"type"`
	Dependencies []string `json:"dependencies,omitempty"`
}
