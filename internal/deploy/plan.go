package deploy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	stackwire "github.com/schedulegen/stackwire-go"
	"github.com/schedulegen/stackwire-go/construct"
	"github.com/schedulegen/stackwire-go/internal/asset"
	"github.com/schedulegen/stackwire-go/internal/cloud"
	"github.com/schedulegen/stackwire-go/internal/graph"
	"github.com/schedulegen/stackwire-go/internal/state"
	"github.com/schedulegen/stackwire-go/internal/template"
	"github.com/schedulegen/stackwire-go/resources/apigateway"
	"github.com/schedulegen/stackwire-go/resources/lambda"
	"github.com/schedulegen/stackwire-go/resources/s3"
)

// Action is what a deployment does to one resource.
type Action string

const (
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionReplace Action = "replace"
	ActionDelete  Action = "delete"
	ActionNoop    Action = "noop"
)

// replaceKeys are the properties that cannot change in place.
var replaceKeys = map[stackwire.Kind][]string{
	stackwire.KindStorage: {"BucketName"},
	stackwire.KindCompute: {"FunctionName"},
	stackwire.KindGateway: {"StageName"},
}

// Change is the planned action for one resource.
type Change struct {
	Resource string
	Kind     stackwire.Kind
	Type     string
	Action   Action
	Reason   string

	Before map[string]any
	After  map[string]any
}

// Plan is the difference between a declared stack and its last deployment.
type Plan struct {
	Stack   string
	Changes []Change
	// Waves are the declared resources grouped by provisioning level.
	Waves [][]string

	previous *state.StackRecord
	desired  map[string]*desired
	synth    *template.Result
}

// HasChanges reports whether applying the plan would touch any resource.
func (p *Plan) HasChanges() bool {
	for _, c := range p.Changes {
		if c.Action != ActionNoop {
			return true
		}
	}
	return false
}

// Template is the synthesized template of the declared stack.
func (p *Plan) Template() *stackwire.Template {
	return p.synth.Template
}

// Change returns the planned change of a resource.
func (p *Plan) Change(id string) (Change, bool) {
	for _, c := range p.Changes {
		if c.Resource == id {
			return c, true
		}
	}
	return Change{}, false
}

// Summary counts the changes by action, e.g. "1 to create, 2 unchanged".
func (p *Plan) Summary() string {
	counts := make(map[Action]int)
	for _, c := range p.Changes {
		counts[c.Action]++
	}
	var parts []string
	for _, a := range []Action{ActionCreate, ActionUpdate, ActionReplace, ActionDelete} {
		if n := counts[a]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d to %s", n, a))
		}
	}
	if n := counts[ActionNoop]; n > 0 {
		parts = append(parts, fmt.Sprintf("%d unchanged", n))
	}
	if len(parts) == 0 {
		return "no resources"
	}
	return strings.Join(parts, ", ")
}

// desired is the provisioning input of one declared resource.
type desired struct {
	id       string
	kind     stackwire.Kind
	typ      string
	props    map[string]any
	retain   bool
	bucket   cloud.BucketSpec
	function cloud.FunctionSpec
	gateway  cloud.GatewaySpec
	// handler is the construct id of the function a gateway proxies to.
	handler string
}

// Plan compares stack with its recorded state.
func (d *Deployer) Plan(ctx context.Context, stack *construct.Stack) (*Plan, error) {
	g := graph.FromStack(stack)
	if err := g.Validate(); err != nil {
		return nil, newError(PhaseDeclaration, stack.ID(), "", err)
	}
	waves, err := g.Waves()
	if err != nil {
		return nil, newError(PhaseDeclaration, stack.ID(), "", err)
	}

	synth, err := template.Synthesize(stack, template.Options{Outdir: d.opts.Outdir, Logger: d.log})
	if err != nil {
		return nil, newError(PhaseStaging, stack.ID(), "", err)
	}

	previous, err := d.opts.Store.Get(ctx, stack.ID())
	switch {
	case errors.Is(err, state.ErrNotFound):
		previous = nil
	case err != nil:
		return nil, fmt.Errorf("reading state of %s: %w", stack.ID(), err)
	}

	p := &Plan{
		Stack:    stack.ID(),
		Waves:    waves,
		previous: previous,
		desired:  make(map[string]*desired),
		synth:    synth,
	}
	for _, r := range stack.Resources() {
		want, err := desiredOf(stack, r, synth)
		if err != nil {
			return nil, newError(PhaseStaging, stack.ID(), r.ID(), err)
		}
		p.desired[want.id] = want

		var before *state.ResourceRecord
		if previous != nil {
			if rec, ok := previous.Resources[want.id]; ok {
				before = &rec
			}
		}
		p.Changes = append(p.Changes, compare(want, before))
	}
	if previous != nil {
		for _, id := range previous.ResourceIDs() {
			if _, ok := p.desired[id]; ok {
				continue
			}
			rec := previous.Resources[id]
			reason := "removed from stack"
			if rec.Retain {
				reason = "removed from stack; physical resource is retained"
			}
			p.Changes = append(p.Changes, Change{
				Resource: id,
				Kind:     rec.Kind,
				Type:     rec.Type,
				Action:   ActionDelete,
				Reason:   reason,
				Before:   rec.Properties,
			})
		}
	}
	sort.Slice(p.Changes, func(i, j int) bool { return p.Changes[i].Resource < p.Changes[j].Resource })

	d.log.Debug().Str("stack", p.Stack).Str("summary", p.Summary()).Msg("planned")
	return p, nil
}

func compare(want *desired, before *state.ResourceRecord) Change {
	c := Change{Resource: want.id, Kind: want.kind, Type: want.typ, After: want.props}
	if before == nil {
		c.Action = ActionCreate
		return c
	}
	c.Before = before.Properties

	if before.Type != want.typ {
		c.Action = ActionReplace
		c.Reason = fmt.Sprintf("type changed from %s", before.Type)
		return c
	}
	for _, key := range replaceKeys[want.kind] {
		if !reflect.DeepEqual(before.Properties[key], want.props[key]) {
			c.Action = ActionReplace
			c.Reason = key + " changed (requires replacement)"
			return c
		}
	}

	changed := changedKeys(before.Properties, want.props)
	if len(changed) == 0 {
		c.Action = ActionNoop
		return c
	}
	c.Action = ActionUpdate
	c.Reason = "changed: " + strings.Join(changed, ", ")
	if want.kind == stackwire.KindStorage && before.Properties["Versioned"] == true && want.props["Versioned"] == false {
		c.Reason = "versioning suspended; existing versions are kept"
	}
	return c
}

func changedKeys(before, after map[string]any) []string {
	seen := make(map[string]bool)
	var keys []string
	for _, m := range []map[string]any{before, after} {
		for k := range m {
			if seen[k] {
				continue
			}
			seen[k] = true
			if !reflect.DeepEqual(before[k], after[k]) {
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)
	return keys
}

func desiredOf(stack *construct.Stack, r stackwire.Resource, synth *template.Result) (*desired, error) {
	want := &desired{id: r.ID(), kind: r.Kind(), typ: r.ResourceType()}
	tags := stack.Props().Tags

	var props map[string]any
	switch res := r.(type) {
	case *s3.Bucket:
		want.bucket = cloud.BucketSpec{Name: res.BucketName(), Versioned: res.Props().Versioned, Tags: tags}
		want.retain = res.Props().RemovalPolicy == stackwire.RemovalPolicyRetain
		props = map[string]any{
			"BucketName":    want.bucket.Name,
			"Versioned":     want.bucket.Versioned,
			"RemovalPolicy": string(res.Props().RemovalPolicy),
		}

	case *lambda.Function:
		code, hash, err := functionCode(res, synth)
		if err != nil {
			return nil, err
		}
		want.function = cloud.FunctionSpec{
			Name:        res.FunctionName(),
			Handler:     res.Handler(),
			Runtime:     res.Runtime(),
			Code:        code,
			CodeSha256:  hash,
			MemorySize:  res.MemorySize(),
			Timeout:     res.Timeout(),
			Environment: res.Props().Environment,
			Description: res.Props().Description,
			Tags:        tags,
		}
		props = map[string]any{
			"FunctionName": want.function.Name,
			"Handler":      want.function.Handler,
			"Runtime":      want.function.Runtime.Name(),
			"CodeSha256":   hash,
			"MemorySize":   want.function.MemorySize,
			"Timeout":      int(want.function.Timeout.Seconds()),
			"Environment":  want.function.Environment,
			"Description":  want.function.Description,
		}

	case *apigateway.LambdaRestApi:
		want.handler = res.Handler().ID()
		want.gateway = cloud.GatewaySpec{
			Name:         res.RestApiName(),
			StageName:    res.StageName(),
			Description:  res.Props().Description,
			FunctionName: res.Handler().FunctionName(),
		}
		props = map[string]any{
			"RestApiName":  want.gateway.Name,
			"StageName":    want.gateway.StageName,
			"Description":  want.gateway.Description,
			"FunctionName": want.gateway.FunctionName,
		}

	default:
		return nil, fmt.Errorf("unsupported resource type %s", r.ResourceType())
	}

	normalized, err := normalize(props)
	if err != nil {
		return nil, err
	}
	want.props = normalized
	return want, nil
}

// functionCode returns the zip archive of a function and its hash. Asset code
// was staged during synthesis; inline source is archived under the file name
// its runtime family loads.
func functionCode(fn *lambda.Function, synth *template.Result) ([]byte, string, error) {
	if fn.Code().IsAsset() {
		staged, ok := synth.Assets[fn.ID()]
		if !ok {
			return nil, "", fmt.Errorf("no staged asset for %s", fn.ID())
		}
		return staged.Data, staged.Hash, nil
	}
	return asset.PackageInline(fn.Code().Inline(), asset.InlineFile(fn.Runtime().Family()))
}

// normalize round-trips props through JSON so they compare equal to the
// properties read back from a state store.
func normalize(props map[string]any) (map[string]any, error) {
	data, err := json.Marshal(props)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
