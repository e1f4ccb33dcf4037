package kernel

import (
	"context"

	"github.com/artpar/opkernel/core/hooks"
)

// Run executes the plan's phases strictly in order. A step error
// aborts the remaining steps of its phase and all subsequent phases
// except END_TX, which still runs so an open transaction is rolled
// back. Cancellation is treated as a failure that still passes through
// cleanup. The resource release callback fires exactly once on every
// path.
func (k *Kernel) Run(ctx context.Context, c *Context, plan *Plan) error {
	defer c.Release()

	for _, phase := range hooks.Order {
		if phase == hooks.PhaseEndTx {
			// Cleanup anchor: runs regardless of earlier failures.
			for _, step := range plan.Steps(phase) {
				if err := step.Fn(ctx, c); err != nil {
					err = &SystemStepError{Phase: string(phase), Step: step.Label, Err: err}
					if c.Failure == nil {
						c.Failure = err
					} else {
						c.Log.Error().Err(err).Msg("cleanup step failed after earlier error")
					}
				}
			}
			continue
		}

		if c.Failure != nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			c.Failure = err
			continue
		}

		for _, step := range plan.Steps(phase) {
			if err := ctx.Err(); err != nil {
				c.Failure = err
				break
			}
			if err := step.Fn(ctx, c); err != nil {
				if step.System {
					err = &SystemStepError{Phase: string(phase), Step: step.Label, Err: err}
				}
				c.Failure = err
				break
			}
		}
	}

	return c.Failure
}
