// Package deploy provisions declared stacks against a cloud provider.
//
// A deployment is all or nothing: resources are created wave by wave in
// dependency order, and the first failure deletes everything the run created
// and re-applies the recorded spec of everything it updated before the error
// is returned. State is saved only when every resource was
// provisioned and every stale resource removed.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	stackwire "github.com/schedulegen/stackwire-go"
	"github.com/schedulegen/stackwire-go/construct"
	"github.com/schedulegen/stackwire-go/internal/cloud"
	"github.com/schedulegen/stackwire-go/internal/state"
	"github.com/schedulegen/stackwire-go/internal/template"
)

// Options configures a Deployer.
type Options struct {
	Provider cloud.Provider
	Store    state.Store

	// Outdir receives staged assets. Empty stages them in memory only.
	Outdir string

	Logger zerolog.Logger
}

// Deployer plans, applies and destroys stacks.
type Deployer struct {
	opts Options
	log  zerolog.Logger
}

// New returns a Deployer. The provider must offer every service.
func New(opts Options) (*Deployer, error) {
	if opts.Store == nil {
		return nil, errors.New("deploy: state store is required")
	}
	if err := opts.Provider.Validate(); err != nil {
		return nil, fmt.Errorf("deploy: %w", err)
	}
	return &Deployer{opts: opts, log: opts.Logger.With().Str("provider", opts.Provider.Name).Logger()}, nil
}

// Result is a successful deployment.
type Result struct {
	Plan   *Plan
	Record *state.StackRecord
}

// Deploy applies the plan of stack and records the result.
func (d *Deployer) Deploy(ctx context.Context, stack *construct.Stack) (*Result, error) {
	ctx, span := otel.Tracer("").Start(ctx, "deploy.Deploy", trace.WithAttributes(attribute.String("stack", stack.ID())))
	defer span.End()

	plan, err := d.Plan(ctx, stack)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	d.log.Info().Str("stack", plan.Stack).Str("plan", plan.Summary()).Msg("deploying")

	r := &run{d: d, plan: plan, results: make(map[string]state.ResourceRecord)}
	if err := r.apply(ctx); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, r.fail(ctx, err)
	}

	rec, err := r.record()
	if err == nil {
		err = d.opts.Store.Save(ctx, rec)
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, r.fail(ctx, newError(PhaseProvisioning, plan.Stack, "", fmt.Errorf("saving state: %w", err)))
	}

	d.log.Info().Str("stack", plan.Stack).Int("resources", len(rec.Resources)).Msg("deployed")
	return &Result{Plan: plan, Record: rec}, nil
}

// Destroy deletes every recorded resource of a stack, gateways first and
// buckets last. Retained buckets are left in place; their ids are returned and
// the record is kept with StatusRetained. Without retained resources the
// record is deleted.
func (d *Deployer) Destroy(ctx context.Context, name string) ([]string, error) {
	ctx, span := otel.Tracer("").Start(ctx, "deploy.Destroy", trace.WithAttributes(attribute.String("stack", name)))
	defer span.End()

	rec, err := d.opts.Store.Get(ctx, name)
	if err != nil {
		return nil, err
	}

	var retained []string
	for _, res := range removalOrder(rec.Resources) {
		if res.Retain {
			d.log.Info().Str("stack", name).Str("resource", res.ID).Str("physical_id", res.PhysicalID).Msg("retained")
			retained = append(retained, res.ID)
			continue
		}
		if err := d.remove(ctx, res); err != nil {
			span.SetStatus(codes.Error, err.Error())
			// keep what is left so a second destroy resumes here
			rec.UpdatedAt = time.Now().UTC()
			if serr := d.opts.Store.Save(ctx, rec); serr != nil {
				d.log.Error().Err(serr).Str("stack", name).Msg("saving partial destroy")
			}
			return nil, newError(PhaseProvisioning, name, res.ID, err)
		}
		delete(rec.Resources, res.ID)
		d.log.Info().Str("stack", name).Str("resource", res.ID).Msg("deleted")
	}

	if len(retained) == 0 {
		return nil, d.opts.Store.Delete(ctx, name)
	}
	rec.Status = state.StatusRetained
	rec.UpdatedAt = time.Now().UTC()
	return retained, d.opts.Store.Save(ctx, rec)
}

// Outputs returns the outputs of a deployed stack keyed "<resource>.<name>".
func (d *Deployer) Outputs(ctx context.Context, name string) (map[string]string, error) {
	rec, err := d.opts.Store.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	return rec.Outputs(), nil
}

// Invoke runs a deployed function of a stack with payload.
func (d *Deployer) Invoke(ctx context.Context, name, resource string, payload []byte) ([]byte, error) {
	ctx, span := otel.Tracer("").Start(ctx, "deploy.Invoke", trace.WithAttributes(
		attribute.String("stack", name),
		attribute.String("resource", resource),
	))
	defer span.End()

	rec, err := d.opts.Store.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	res, ok := rec.Resources[resource]
	if !ok {
		return nil, newError(PhaseInvocation, name, resource, fmt.Errorf("resource %s: %w", resource, cloud.ErrNotFound))
	}
	if res.Kind != stackwire.KindCompute {
		return nil, newError(PhaseInvocation, name, resource, fmt.Errorf("%s is a %s resource, not a function", resource, res.Kind))
	}

	out, err := d.opts.Provider.Invoke(ctx, res.PhysicalID, payload)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, newError(PhaseInvocation, name, resource, err)
	}
	return out, nil
}

func (d *Deployer) remove(ctx context.Context, res state.ResourceRecord) error {
	var err error
	switch res.Kind {
	case stackwire.KindGateway:
		err = d.opts.Provider.DeleteGateway(ctx, res.PhysicalID)
	case stackwire.KindCompute:
		err = d.opts.Provider.DeleteFunction(ctx, res.PhysicalID)
	case stackwire.KindStorage:
		err = d.opts.Provider.DeleteBucket(ctx, res.PhysicalID)
	default:
		return fmt.Errorf("unknown resource kind %q", res.Kind)
	}
	if errors.Is(err, cloud.ErrNotFound) {
		d.log.Warn().Str("resource", res.ID).Str("physical_id", res.PhysicalID).Msg("already deleted")
		return nil
	}
	return err
}

// kindRank orders removals so nothing is deleted before its dependents.
var kindRank = map[stackwire.Kind]int{
	stackwire.KindGateway: 0,
	stackwire.KindCompute: 1,
	stackwire.KindStorage: 2,
}

func removalOrder(resources map[string]state.ResourceRecord) []state.ResourceRecord {
	out := make([]state.ResourceRecord, 0, len(resources))
	for _, res := range resources {
		out = append(out, res)
	}
	sortRemovals(out)
	return out
}

func sortRemovals(res []state.ResourceRecord) {
	sort.Slice(res, func(i, j int) bool {
		if kindRank[res[i].Kind] != kindRank[res[j].Kind] {
			return kindRank[res[i].Kind] < kindRank[res[j].Kind]
		}
		return res[i].ID < res[j].ID
	})
}

// run is one application of a plan.
type run struct {
	d    *Deployer
	plan *Plan

	mu      sync.Mutex
	results map[string]state.ResourceRecord
	journal []undo
	stale   []state.ResourceRecord
}

// undo deletes a resource created by the run or restores one it updated.
type undo struct {
	resource string
	fn       func(ctx context.Context) error
}

func (r *run) apply(ctx context.Context) error {
	for i, wave := range r.plan.Waves {
		wctx, span := otel.Tracer("").Start(ctx, "deploy.wave", trace.WithAttributes(
			attribute.Int("wave", i),
			attribute.StringSlice("resources", wave),
		))
		g, gctx := errgroup.WithContext(wctx)
		for _, id := range wave {
			g.Go(func() error { return r.applyResource(gctx, id) })
		}
		err := g.Wait()
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		if err != nil {
			return err
		}
	}
	return r.removeStale(ctx)
}

func (r *run) applyResource(ctx context.Context, id string) error {
	want := r.plan.desired[id]
	change, _ := r.plan.Change(id)

	ctx, span := otel.Tracer("").Start(ctx, "deploy.resource", trace.WithAttributes(
		attribute.String("resource", id),
		attribute.String("action", string(change.Action)),
	))
	defer span.End()

	log := r.d.log.With().Str("stack", r.plan.Stack).Str("resource", id).Str("action", string(change.Action)).Logger()
	if change.Action == ActionNoop {
		rec := r.plan.previous.Resources[id]
		rec.Properties = want.props
		rec.Retain = want.retain
		r.set(rec)
		log.Debug().Msg("unchanged")
		return nil
	}

	var (
		rec state.ResourceRecord
		err error
	)
	switch want.kind {
	case stackwire.KindStorage:
		rec, err = r.applyBucket(ctx, change, want)
	case stackwire.KindCompute:
		rec, err = r.applyFunction(ctx, change, want)
	case stackwire.KindGateway:
		rec, err = r.applyGateway(ctx, change, want)
	default:
		err = fmt.Errorf("unknown resource kind %q", want.kind)
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		log.Error().Err(err).Msg("provisioning failed")
		return newError(PhaseProvisioning, r.plan.Stack, id, err)
	}

	r.set(rec)
	if change.Action == ActionReplace {
		r.retire(id)
	}
	log.Info().Str("physical_id", rec.PhysicalID).Msg("provisioned")
	return nil
}

func (r *run) applyBucket(ctx context.Context, change Change, want *desired) (state.ResourceRecord, error) {
	buckets := r.d.opts.Provider.Buckets

	var (
		info *cloud.BucketInfo
		err  error
	)
	if change.Action == ActionUpdate {
		before := r.previousBucket(want)
		r.push(want.id, func(ctx context.Context) error {
			_, err := buckets.UpdateBucket(ctx, before)
			return err
		})
		info, err = buckets.UpdateBucket(ctx, want.bucket)
	} else {
		info, err = buckets.CreateBucket(ctx, want.bucket)
		if err == nil {
			name := info.Name
			r.push(want.id, func(ctx context.Context) error { return buckets.DeleteBucket(ctx, name) })
		}
	}
	if err != nil {
		return state.ResourceRecord{}, err
	}
	return want.record(info.Name, map[string]string{"BucketName": info.Name, "Arn": info.Arn}), nil
}

func (r *run) applyFunction(ctx context.Context, change Change, want *desired) (state.ResourceRecord, error) {
	functions := r.d.opts.Provider.Functions

	var (
		info *cloud.FunctionInfo
		err  error
	)
	if change.Action == ActionUpdate {
		before, perr := r.previousFunction(ctx, want)
		if perr != nil {
			return state.ResourceRecord{}, perr
		}
		r.push(want.id, func(ctx context.Context) error {
			_, err := functions.UpdateFunction(ctx, before)
			return err
		})
		info, err = functions.UpdateFunction(ctx, want.function)
	} else {
		info, err = functions.CreateFunction(ctx, want.function)
		if err == nil {
			name := info.Name
			r.push(want.id, func(ctx context.Context) error { return functions.DeleteFunction(ctx, name) })
		}
	}
	if err != nil {
		return state.ResourceRecord{}, err
	}
	return want.record(info.Name, map[string]string{"FunctionName": info.Name, "FunctionArn": info.Arn}), nil
}

func (r *run) applyGateway(ctx context.Context, change Change, want *desired) (state.ResourceRecord, error) {
	gateways := r.d.opts.Provider.Gateways

	fn, ok := r.get(want.handler)
	if !ok {
		return state.ResourceRecord{}, fmt.Errorf("handler %s was not provisioned", want.handler)
	}
	spec := want.gateway
	spec.FunctionName = fn.PhysicalID
	spec.FunctionArn = fn.Outputs["FunctionArn"]

	var (
		info *cloud.GatewayInfo
		err  error
	)
	if change.Action == ActionUpdate {
		id := r.plan.previous.Resources[want.id].PhysicalID
		before := r.previousGateway(want)
		r.push(want.id, func(ctx context.Context) error {
			_, err := gateways.UpdateGateway(ctx, id, before)
			return err
		})
		info, err = gateways.UpdateGateway(ctx, id, spec)
	} else {
		info, err = gateways.CreateGateway(ctx, spec)
		if err == nil {
			id := info.ID
			r.push(want.id, func(ctx context.Context) error { return gateways.DeleteGateway(ctx, id) })
		}
	}
	if err != nil {
		return state.ResourceRecord{}, err
	}
	return want.record(info.ID, map[string]string{"ID": info.ID, "Stage": info.Stage, "URL": info.URL}), nil
}

// removeStale deletes replaced resources and resources no longer declared.
func (r *run) removeStale(ctx context.Context) error {
	stale := append([]state.ResourceRecord(nil), r.stale...)
	for _, c := range r.plan.Changes {
		if c.Action == ActionDelete {
			stale = append(stale, r.plan.previous.Resources[c.Resource])
		}
	}
	sortRemovals(stale)

	for _, res := range stale {
		log := r.d.log.With().Str("stack", r.plan.Stack).Str("resource", res.ID).Str("physical_id", res.PhysicalID).Logger()
		if res.Retain {
			log.Info().Msg("retained")
			continue
		}
		if err := r.d.remove(ctx, res); err != nil {
			return newError(PhaseProvisioning, r.plan.Stack, res.ID, fmt.Errorf("removing %s: %w", res.PhysicalID, err))
		}
		log.Info().Msg("removed")
	}
	return nil
}

// fail rolls back the run and attaches any rollback failure to err.
func (r *run) fail(ctx context.Context, err error) error {
	rbErr := r.rollback(context.WithoutCancel(ctx))

	var derr *Error
	if !errors.As(err, &derr) {
		derr = newError(PhaseProvisioning, r.plan.Stack, "", err)
	}
	derr.RollbackErr = rbErr
	return derr
}

func (r *run) rollback(ctx context.Context) error {
	r.mu.Lock()
	journal := r.journal
	r.journal = nil
	r.mu.Unlock()

	var errs []error
	for i := len(journal) - 1; i >= 0; i-- {
		u := journal[i]
		if err := u.fn(ctx); err != nil && !errors.Is(err, cloud.ErrNotFound) {
			errs = append(errs, fmt.Errorf("%s: %w", u.resource, err))
			continue
		}
		r.d.log.Warn().Str("stack", r.plan.Stack).Str("resource", u.resource).Msg("rolled back")
	}
	return errors.Join(errs...)
}

func (r *run) record() (*state.StackRecord, error) {
	data, err := template.ToJSON(r.plan.synth.Template)
	if err != nil {
		return nil, err
	}
	rec := state.NewRecord(r.plan.Stack, r.d.opts.Provider.Name)
	if prev := r.plan.previous; prev != nil {
		rec.ID = prev.ID
		rec.CreatedAt = prev.CreatedAt
	}
	rec.Template = data
	r.mu.Lock()
	for id, res := range r.results {
		rec.Resources[id] = res
	}
	r.mu.Unlock()
	return rec, nil
}

func (r *run) set(rec state.ResourceRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[rec.ID] = rec
}

func (r *run) get(id string) (state.ResourceRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.results[id]
	return rec, ok
}

func (r *run) push(resource string, fn func(ctx context.Context) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.journal = append(r.journal, undo{resource: resource, fn: fn})
}

func (r *run) retire(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stale = append(r.stale, r.plan.previous.Resources[id])
}

func (want *desired) record(physicalID string, outputs map[string]string) state.ResourceRecord {
	return state.ResourceRecord{
		ID:         want.id,
		Kind:       want.kind,
		Type:       want.typ,
		PhysicalID: physicalID,
		Properties: want.props,
		Outputs:    outputs,
		Retain:     want.retain,
	}
}
