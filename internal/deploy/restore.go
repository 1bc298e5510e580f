package deploy

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/schedulegen/stackwire-go/internal/asset"
	"github.com/schedulegen/stackwire-go/internal/cloud"
	"github.com/schedulegen/stackwire-go/internal/state"
	"github.com/schedulegen/stackwire-go/resources/lambda"
)

// previousBucket is the spec a bucket was last deployed with.
func (r *run) previousBucket(want *desired) cloud.BucketSpec {
	prev := r.plan.previous.Resources[want.id]
	spec := want.bucket
	spec.Name = prev.PhysicalID
	spec.Versioned = prev.Properties["Versioned"] == true
	return spec
}

// previousFunction is the spec a function was last deployed with, code
// included. It fails when the old code cannot be recovered, so an update is
// never applied without a way back.
func (r *run) previousFunction(ctx context.Context, want *desired) (cloud.FunctionSpec, error) {
	prev := r.plan.previous.Resources[want.id]
	props := prev.Properties

	spec := want.function
	spec.Name = prev.PhysicalID
	spec.Handler = stringProp(props, "Handler")
	spec.Description = stringProp(props, "Description")
	spec.MemorySize = intProp(props, "MemorySize")
	spec.Timeout = time.Duration(intProp(props, "Timeout")) * time.Second
	spec.Environment = envProp(props, "Environment")
	if name := stringProp(props, "Runtime"); name != want.function.Runtime.Name() {
		rt, ok := lambda.LookupRuntime(name)
		if !ok {
			rt = lambda.NewRuntime(name, want.function.Runtime.Family())
		}
		spec.Runtime = rt
	}

	hash := stringProp(props, "CodeSha256")
	if hash == want.function.CodeSha256 {
		return spec, nil
	}
	code, err := r.previousCode(ctx, spec.Name, hash)
	if err != nil {
		return cloud.FunctionSpec{}, fmt.Errorf("recovering previous code of %s: %w", spec.Name, err)
	}
	spec.Code = code
	spec.CodeSha256 = hash
	return spec, nil
}

// previousCode returns the archive with the given hash: the staged copy in the
// outdir when it is still there, otherwise the provider's.
func (r *run) previousCode(ctx context.Context, name, hash string) ([]byte, error) {
	if r.d.opts.Outdir != "" && hash != "" {
		data, sum, err := asset.Package(filepath.Join(r.d.opts.Outdir, "asset."+hash+".zip"))
		if err == nil && sum == hash {
			return data, nil
		}
	}
	reader, ok := r.d.opts.Provider.Functions.(cloud.CodeReader)
	if !ok {
		return nil, fmt.Errorf("provider %s cannot read function code: %w", r.d.opts.Provider.Name, cloud.ErrNotSupported)
	}
	return reader.FunctionCode(ctx, name)
}

// previousGateway is the spec a gateway was last deployed with, pointing at
// the function it proxied to then.
func (r *run) previousGateway(want *desired) cloud.GatewaySpec {
	prev := r.plan.previous.Resources[want.id]
	spec := cloud.GatewaySpec{
		Name:         stringProp(prev.Properties, "RestApiName"),
		StageName:    stringProp(prev.Properties, "StageName"),
		Description:  stringProp(prev.Properties, "Description"),
		FunctionName: stringProp(prev.Properties, "FunctionName"),
	}
	if fn, ok := r.previousByPhysicalID(spec.FunctionName); ok {
		spec.FunctionArn = fn.Outputs["FunctionArn"]
	}
	return spec
}

func (r *run) previousByPhysicalID(physicalID string) (state.ResourceRecord, bool) {
	for _, res := range r.plan.previous.Resources {
		if res.PhysicalID == physicalID {
			return res, true
		}
	}
	return state.ResourceRecord{}, false
}

func stringProp(props map[string]any, key string) string {
	s, _ := props[key].(string)
	return s
}

// intProp reads a number that may have been decoded from JSON.
func intProp(props map[string]any, key string) int {
	switch v := props[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	}
	return 0
}

func envProp(props map[string]any, key string) map[string]string {
	switch v := props[key].(type) {
	case map[string]string:
		return v
	case map[string]any:
		env := make(map[string]string, len(v))
		for k, val := range v {
			env[k] = fmt.Sprint(val)
		}
		return env
	}
	return nil
}
