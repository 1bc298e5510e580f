package stackwire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttrRef_MarshalJSON(t *testing.T) {
	tests := []struct {
		name     string
		ref      AttrRef
		expected string
	}{
		{
			name:     "bucket arn",
			ref:      AttrRef{Resource: "GeneratorBucket", Attribute: "Arn"},
			expected: `{"Fn::GetAtt":["GeneratorBucket","Arn"]}`,
		},
		{
			name:     "function arn",
			ref:      AttrRef{Resource: "GeneratorFunction", Attribute: "Arn"},
			expected: `{"Fn::GetAtt":["GeneratorFunction","Arn"]}`,
		},
		{
			name:     "api root resource",
			ref:      AttrRef{Resource: "GeneratorAPI", Attribute: "RootResourceId"},
			expected: `{"Fn::GetAtt":["GeneratorAPI","RootResourceId"]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.ref)
			require.NoError(t, err)
			assert.JSONEq(t, tt.expected, string(data))
		})
	}
}

func TestAttrRef_IsZero(t *testing.T) {
	assert.True(t, AttrRef{}.IsZero())
	assert.False(t, AttrRef{Resource: "GeneratorBucket"}.IsZero())
	assert.False(t, AttrRef{Attribute: "Arn"}.IsZero())
}

func TestTemplate_JSON(t *testing.T) {
	tmpl := Template{
		AWSTemplateFormatVersion: "2010-09-09",
		Resources: map[string]ResourceDef{
			"GeneratorBucket": {
				Type:           "AWS::S3::Bucket",
				Properties:     map[string]any{"BucketName": "uvic-schedule-generator-bucket"},
				DeletionPolicy: "Retain",
			},
		},
	}

	data, err := json.Marshal(tmpl)
	require.NoError(t, err)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(data, &parsed))
	assert.Equal(t, "2010-09-09", parsed["AWSTemplateFormatVersion"])
	assert.NotContains(t, parsed, "Outputs")
	assert.NotContains(t, parsed, "Description")

	bucket := parsed["Resources"].(map[string]any)["GeneratorBucket"].(map[string]any)
	assert.Equal(t, "Retain", bucket["DeletionPolicy"])
	assert.NotContains(t, bucket, "DependsOn")
}

func TestResourceDef_DependsOn(t *testing.T) {
	def := ResourceDef{
		Type:      "AWS::Lambda::Function",
		DependsOn: []string{"GeneratorFunctionServiceRole"},
	}
	data, err := json.Marshal(def)
	require.NoError(t, err)
	assert.JSONEq(t, `{"Type":"AWS::Lambda::Function","DependsOn":["GeneratorFunctionServiceRole"]}`, string(data))
}

func TestSynthResult(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		result := SynthResult{
			Success:   true,
			Template:  Template{AWSTemplateFormatVersion: "2010-09-09", Resources: map[string]ResourceDef{}},
			Resources: []string{"GeneratorBucket"},
		}
		data, err := json.Marshal(result)
		require.NoError(t, err)

		var parsed SynthResult
		require.NoError(t, json.Unmarshal(data, &parsed))
		assert.True(t, parsed.Success)
		assert.Equal(t, []string{"GeneratorBucket"}, parsed.Resources)
		assert.Empty(t, parsed.Errors)
	})

	t.Run("error", func(t *testing.T) {
		result := SynthResult{Errors: []string{"asset not found"}}
		data, err := json.Marshal(result)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"success":false`)
		assert.Contains(t, string(data), `"errors":["asset not found"]`)
		assert.NotContains(t, string(data), `"resources"`)
	})
}

func TestListResult(t *testing.T) {
	result := ListResult{Resources: []ListResource{
		{ID: "GeneratorFunction", Kind: KindCompute, Type: "AWS::Lambda::Function"},
		{ID: "GeneratorAPI", Kind: KindGateway, Type: "AWS::ApiGateway::RestApi", Dependencies: []string{"GeneratorFunction"}},
	}}
	data, err := json.Marshal(result)
	require.NoError(t, err)
	assert.JSONEq(t, `{"resources":[
		{"id":"GeneratorFunction","kind":"compute","type":"AWS::Lambda::Function"},
		{"id":"GeneratorAPI","kind":"gateway","type":"AWS::ApiGateway::RestApi","dependencies":["GeneratorFunction"]}
	]}`, string(data))
}

func TestRemovalPolicy_CloudFormationValues(t *testing.T) {
	assert.Equal(t, "Retain", string(RemovalPolicyRetain))
	assert.Equal(t, "Delete", string(RemovalPolicyDestroy))
}

func TestDiffSummary_JSON(t *testing.T) {
	data, err := json.Marshal(DiffSummary{Added: 1, Modified: 2, Replaced: 1, Total: 3})
	require.NoError(t, err)
	assert.JSONEq(t, `{"added":1,"removed":0,"modified":2,"replaced":1,"total":3}`, string(data))
}
