// Package dispatch is the single code path every transport calls into.
// It resolves the operation, compiles (or fetches) the plan, resolves
// the backing resource, runs the kernel, and converts the result or
// error into a transport-neutral outcome that each transport then
// serializes in its own wire format.
package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/artpar/opkernel/core/kernel"
	"github.com/artpar/opkernel/core/opview"
	"github.com/artpar/opkernel/core/registry"
	"github.com/artpar/opkernel/core/resource"
	"github.com/artpar/opkernel/core/storage"
	"github.com/rs/zerolog"
)

// Outcome is the transport-neutral result of a dispatched call.
type Outcome struct {
	// Status is an HTTP-equivalent status class transports map into
	// their wire formats.
	Status int

	// Body is the serializable response payload.
	Body map[string]any
}

// OK reports whether the outcome is a success.
func (o Outcome) OK() bool {
	return o.Status >= 200 && o.Status < 300
}

// Observer receives fire-and-forget telemetry about dispatched calls.
type Observer interface {
	ObserveDispatch(model, op string, status int, d time.Duration)
}

// Dispatcher is the dispatch boundary.
type Dispatcher struct {
	app      string
	reg      *registry.Registry
	resolver *resource.Resolver
	kernel   *kernel.Kernel
	observer Observer
	logger   zerolog.Logger
}

// New creates a dispatcher. Observer may be nil.
func New(app string, reg *registry.Registry, resolver *resource.Resolver, k *kernel.Kernel, observer Observer, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		app:      app,
		reg:      reg,
		resolver: resolver,
		kernel:   k,
		observer: observer,
		logger:   logger,
	}
}

// Dispatch runs one operation call end to end.
func (d *Dispatcher) Dispatch(ctx context.Context, model, alias string, payload map[string]any, params map[string]string) Outcome {
	start := time.Now()
	outcome := d.dispatch(ctx, model, alias, payload, params)

	if d.observer != nil {
		d.observer.ObserveDispatch(model, alias, outcome.Status, time.Since(start))
	}
	return outcome
}

func (d *Dispatcher) dispatch(ctx context.Context, model, alias string, payload map[string]any, params map[string]string) Outcome {
	if _, ok := d.reg.Lookup(model, alias); !ok {
		return Outcome{Status: 404, Body: map[string]any{
			"error":   "unknown_operation",
			"message": "operation " + alias + " is not registered on model " + model,
		}}
	}

	plan, err := d.kernel.BuildPlan(model, alias)
	if err != nil {
		d.logger.Error().Err(err).Str("model", model).Str("op", alias).Msg("plan build failed")
		return Outcome{Status: 500, Body: map[string]any{"error": "plan_build_failed"}}
	}

	m, _ := d.reg.Model(model)
	provider, err := d.resolver.ResolveProvider(model, m.Meta.API, alias)
	if err != nil {
		d.logger.Error().Err(err).Str("model", model).Str("op", alias).Msg("no resource provider")
		return Outcome{Status: 500, Body: map[string]any{"error": "server_configuration"}}
	}

	handle, release, err := provider.Acquire(ctx)
	if err != nil {
		d.logger.Error().Err(err).Str("model", model).Str("op", alias).Msg("resource acquisition failed")
		return Outcome{Status: 500, Body: map[string]any{"error": "resource_unavailable"}}
	}

	c := kernel.NewContext(d.app, model, alias, payload, params, d.logger)
	c.View = plan.View
	c.BindResource(handle, release)

	if err := d.kernel.Run(ctx, c, plan); err != nil {
		return d.failure(c, err)
	}
	return success(c, plan.View.Spec.Target)
}

func success(c *kernel.Context, target string) Outcome {
	status := 200
	if target == "create" || target == "bulk_create" {
		status = 201
	}

	body := map[string]any{"status": "ok"}
	switch {
	case c.Result.List != nil || (c.Result.Count > 0 && c.Result.Data == nil):
		body["items"] = c.Result.List
		body["count"] = c.Result.Count
	case c.Result.Data != nil:
		body["data"] = c.Result.Data
	}
	if c.Result.ID != "" {
		body["id"] = c.Result.ID
	}
	if len(c.Result.Meta) > 0 {
		body["meta"] = c.Result.Meta
	}
	return Outcome{Status: status, Body: body}
}

// failure maps the error taxonomy onto transport-neutral outcomes.
// Validation failures carry offending field names; infra failures stay
// generic while the structured detail goes to the log only.
func (d *Dispatcher) failure(c *kernel.Context, err error) Outcome {
	var verr *opview.ValidationError
	if errors.As(err, &verr) {
		return Outcome{Status: 400, Body: map[string]any{
			"error":   "validation_failed",
			"fields":  verr.Fields,
			"reasons": verr.Reasons,
		}}
	}

	var nf *storage.NotFoundError
	if errors.As(err, &nf) {
		return Outcome{Status: 404, Body: map[string]any{
			"error":   "not_found",
			"message": nf.Error(),
		}}
	}

	var sys *kernel.SystemStepError
	if errors.As(err, &sys) {
		c.Log.Error().Err(sys.Err).Str("phase", sys.Phase).Str("step", sys.Step).Msg("system step failed")
		return Outcome{Status: 500, Body: map[string]any{"error": "system_step_failed"}}
	}

	var stmt *storage.StatementError
	if errors.As(err, &stmt) {
		// Statement text and parameters are structured log context,
		// never response payload.
		c.Log.Error().Err(stmt.Err).Str("sql", stmt.SQL).Interface("args", stmt.Args).Msg("statement failed")
		return Outcome{Status: 500, Body: map[string]any{"error": "storage_failure"}}
	}

	var noProv *resource.NoProviderError
	if errors.As(err, &noProv) {
		c.Log.Error().Err(err).Msg("no resource provider")
		return Outcome{Status: 500, Body: map[string]any{"error": "server_configuration"}}
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Outcome{Status: 499, Body: map[string]any{"error": "cancelled"}}
	}

	c.Log.Error().Err(err).Msg("dispatch failed")
	return Outcome{Status: 500, Body: map[string]any{"error": "internal"}}
}
