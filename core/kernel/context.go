// Package kernel executes compiled operation plans through an ordered
// sequence of phases. It is a sequencer: it contains no suspension
// logic of its own, and the only blocking points are resource
// acquisition and whatever I/O hooks and handlers perform.
package kernel

import (
	"context"

	"github.com/artpar/opkernel/core/opview"
	"github.com/artpar/opkernel/core/resource"
	"github.com/rs/zerolog"
)

// Temp keys used by the built-in atoms.
const (
	// TempTxOpen is the boolean flag tracking whether START_TX opened
	// a transaction. END_TX commits only when it is set; double commit
	// and double rollback are both no-ops once cleared.
	TempTxOpen = "tx_open"

	// TempCoerced holds the field names whose input representation was
	// silently coerced.
	TempCoerced = "coerced"

	// TempInvalid holds the field names that failed validation.
	TempInvalid = "invalid"

	// TempPairedPrefix prefixes per-field ephemeral paired values.
	// Values under these keys are never logged.
	TempPairedPrefix = "paired:"
)

// Context is the only mutable object threaded through a single call.
// It is created per call and discarded after the response is produced,
// never reused or shared across calls. The resource handle it carries
// is exclusively owned by this in-flight context.
type Context struct {
	// App is the owning application name.
	App string

	// Model and Op identify the call.
	Model string
	Op    string

	// Payload is the raw inbound payload.
	Payload map[string]any

	// Params carries path/query parameters (e.g., the lookup id).
	Params map[string]string

	// View is the compiled plan metadata for this (model, alias).
	View *opview.OpView

	// DB is the acquired resource handle.
	DB resource.Handle

	// Data holds the validated, coerced, transformed values bound for
	// storage.
	Data map[string]any

	// Temp is phase-scratch state.
	Temp map[string]any

	// Result is the call outcome; populated by the handler and shaped
	// by the response atoms.
	Result *Result

	// Failure is the first error raised by a step; END_TX consults it
	// to choose commit or rollback.
	Failure error

	// Log is the per-call logger.
	Log zerolog.Logger

	release func()
}

// NewContext creates a per-call execution context.
func NewContext(app, model, op string, payload map[string]any, params map[string]string, log zerolog.Logger) *Context {
	if payload == nil {
		payload = map[string]any{}
	}
	if params == nil {
		params = map[string]string{}
	}
	return &Context{
		App:     app,
		Model:   model,
		Op:      op,
		Payload: payload,
		Params:  params,
		Data:    map[string]any{},
		Temp:    map[string]any{},
		Result:  &Result{Meta: map[string]any{}},
		Log:     log.With().Str("model", model).Str("op", op).Logger(),
	}
}

// BindResource attaches an acquired handle and its release callback.
func (c *Context) BindResource(h resource.Handle, release func()) {
	c.DB = h
	c.release = release
}

// Release invokes the resource release callback. Idempotent; the
// kernel calls it exactly once on every path.
func (c *Context) Release() {
	if c.release != nil {
		c.release()
	}
}

// TxOpen reports whether START_TX opened a transaction for this call.
func (c *Context) TxOpen() bool {
	open, _ := c.Temp[TempTxOpen].(bool)
	return open
}

// Result is the transport-neutral outcome a handler produces.
type Result struct {
	// Data is the single-record result.
	Data map[string]any

	// List holds collection results.
	List []map[string]any

	// Count is the total count for collection operations.
	Count int64

	// ID is the created/updated/deleted record id.
	ID string

	// Meta carries values surfaced to the caller outside the record,
	// e.g. an ephemeral paired value revealed exactly once.
	Meta map[string]any
}

// HookFunc is the callable bound to pipeline steps, both built-in
// atoms and user hooks.
type HookFunc func(ctx context.Context, c *Context) error
