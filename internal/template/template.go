// Package template synthesizes declared stacks into CloudFormation templates.
package template

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	stackwire "github.com/schedulegen/stackwire-go"
	"github.com/schedulegen/stackwire-go/construct"
	"github.com/schedulegen/stackwire-go/internal/asset"
	"github.com/schedulegen/stackwire-go/internal/graph"
	"github.com/schedulegen/stackwire-go/resources/apigateway"
	"github.com/schedulegen/stackwire-go/resources/lambda"
	"github.com/schedulegen/stackwire-go/resources/s3"
)

// Options configures synthesis.
type Options struct {
	// Outdir receives staged assets. Empty hashes assets without writing them.
	Outdir string

	Logger zerolog.Logger
}

// Result is a synthesized stack.
type Result struct {
	Template *stackwire.Template

	// Assets holds the staged code of every asset-backed function, by construct id.
	Assets map[string]*asset.Staged

	// LogicalIDs maps construct ids to the logical id of their primary resource.
	LogicalIDs map[string]string
}

// Synthesize builds the template of stack. Resources are expanded in
// dependency order; a stack whose graph has a cycle is rejected.
func Synthesize(stack *construct.Stack, opts Options) (*Result, error) {
	g := graph.FromStack(stack)
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("stack %s: %w", stack.ID(), err)
	}
	order, err := g.TopologicalOrder()
	if err != nil {
		return nil, err
	}

	b := &builder{
		stack: stack,
		opts:  opts,
		tmpl: &stackwire.Template{
			AWSTemplateFormatVersion: "2010-09-09",
			Description:              stack.Props().Description,
			Resources:                make(map[string]stackwire.ResourceDef),
			Outputs:                  make(map[string]stackwire.Output),
		},
		assets:     make(map[string]*asset.Staged),
		logicalIDs: make(map[string]string),
	}
	if env := stack.Props().Env; env.Account != "" || env.Region != "" {
		b.tmpl.Metadata = map[string]any{
			"stackwire:env": map[string]any{"account": env.Account, "region": env.Region},
		}
	}

	for _, id := range order {
		r, _ := stack.Resource(id)
		switch res := r.(type) {
		case *s3.Bucket:
			err = b.addBucket(res)
		case *lambda.Function:
			err = b.addFunction(res)
		case *apigateway.LambdaRestApi:
			err = b.addRestApi(res)
		default:
			err = fmt.Errorf("unsupported resource type %s", r.ResourceType())
		}
		if err != nil {
			return nil, fmt.Errorf("synthesizing %s: %w", stack.Path(id), err)
		}
		opts.Logger.Debug().Str("resource", id).Str("logical_id", b.logicalIDs[id]).Msg("synthesized")
	}

	if len(b.tmpl.Outputs) == 0 {
		b.tmpl.Outputs = nil
	}
	return &Result{Template: b.tmpl, Assets: b.assets, LogicalIDs: b.logicalIDs}, nil
}

// WriteTemplate writes <stack>.template.json into dir and returns its path.
func (r *Result) WriteTemplate(dir, stackID string) (string, error) {
	data, err := ToJSON(r.Template)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, stackID+".template.json")
	return path, os.WriteFile(path, data, 0o644)
}

// ResourceNames returns the logical ids of the template, sorted.
func ResourceNames(t *stackwire.Template) []string {
	names := make([]string, 0, len(t.Resources))
	for name := range t.Resources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ToJSON serializes the template to JSON.
func ToJSON(t *stackwire.Template) ([]byte, error) {
	return json.MarshalIndent(t, "", "  ")
}

// ToYAML serializes the template to YAML.
func ToYAML(t *stackwire.Template) ([]byte, error) {
	return yaml.Marshal(t)
}

// normalize converts a value holding intrinsics into plain maps and slices, so
// the template marshals the same way to JSON and YAML and compares with
// reflect.DeepEqual.
func normalize(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func normalizeValue(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
