package kernel

import (
	"fmt"
	"sync"

	"github.com/artpar/opkernel/core/hooks"
	"github.com/artpar/opkernel/core/opview"
	"github.com/artpar/opkernel/core/registry"
	"github.com/artpar/opkernel/core/schema"
	"github.com/artpar/opkernel/core/storage"
	"github.com/rs/zerolog"
)

// Step is one unit of work in a phase: a built-in atom or a user hook.
type Step struct {
	// Label identifies the step in diagnostics output.
	Label string

	// System marks the fixed transaction anchors; their failures wrap
	// as SystemStepError.
	System bool

	// Fn performs the work.
	Fn HookFunc
}

// Plan is the assembled per-phase step sequence for one (model, alias)
// pair: built-in atoms first, then user hooks in registration order.
type Plan struct {
	Model string
	Alias string
	View  *opview.OpView

	steps map[hooks.Phase][]Step
}

// Steps returns the ordered steps for a phase.
func (p *Plan) Steps(phase hooks.Phase) []Step {
	return p.steps[phase]
}

// Describe renders the compiled sequence as human-readable
// "PHASE:label" strings, in execution order.
func (p *Plan) Describe() []string {
	var out []string
	for _, phase := range hooks.Order {
		for _, s := range p.steps[phase] {
			out = append(out, string(phase)+":"+s.Label)
		}
	}
	return out
}

func (p *Plan) add(phase hooks.Phase, label string, system bool, fn HookFunc) {
	p.steps[phase] = append(p.steps[phase], Step{Label: label, System: system, Fn: fn})
}

// Kernel builds and runs execution plans.
type Kernel struct {
	reg      *registry.Registry
	compiler *opview.Compiler
	hooks    *hooks.Registry[HookFunc]
	store    *storage.Store
	logger   zerolog.Logger

	mu    sync.RWMutex
	plans map[string]*Plan
}

// New creates a kernel over the registries, the view compiler and the
// storage layer.
func New(
	reg *registry.Registry,
	compiler *opview.Compiler,
	hookReg *hooks.Registry[HookFunc],
	store *storage.Store,
	logger zerolog.Logger,
) *Kernel {
	return &Kernel{
		reg:      reg,
		compiler: compiler,
		hooks:    hookReg,
		store:    store,
		logger:   logger,
		plans:    make(map[string]*Plan),
	}
}

// Hooks returns the kernel's hook registry for external bindings.
func (k *Kernel) Hooks() *hooks.Registry[HookFunc] {
	return k.hooks
}

// Compiler returns the view compiler.
func (k *Kernel) Compiler() *opview.Compiler {
	return k.compiler
}

// BuildPlan assembles (or returns the cached) plan for (model, alias):
// per phase, the ordered concatenation of built-in atoms and the user
// hooks collected for that (model, alias, phase).
func (k *Kernel) BuildPlan(model, alias string) (*Plan, error) {
	key := model + "." + alias

	k.mu.RLock()
	plan, ok := k.plans[key]
	k.mu.RUnlock()
	if ok {
		return plan, nil
	}

	view, err := k.compiler.Build(model, alias)
	if err != nil {
		return nil, err
	}
	m, ok := k.reg.Model(model)
	if !ok {
		return nil, fmt.Errorf("model %q not registered", model)
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if plan, ok := k.plans[key]; ok {
		return plan, nil
	}

	plan = k.assemble(m, view)
	k.plans[key] = plan
	return plan, nil
}

// ClearPlans drops every cached plan. Hook registrations made after a
// plan was built take effect on the next build.
func (k *Kernel) ClearPlans() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.plans = make(map[string]*Plan)
}

func (k *Kernel) assemble(m schema.Model, view *opview.OpView) *Plan {
	plan := &Plan{
		Model: view.Model,
		Alias: view.Alias,
		View:  view,
		steps: make(map[hooks.Phase][]Step),
	}

	bulk := isBulk(view.Spec.Target)

	// PRE_TX_BEGIN: input resolution and validation.
	if bulk && view.Spec.Target != "bulk_delete" {
		plan.add(hooks.PhasePreTxBegin, "validate_items", false, k.atomValidateItems(view))
	} else if !bulk && len(view.SchemaIn) > 0 {
		plan.add(hooks.PhasePreTxBegin, "validate_input", false, k.atomValidateInput(view))
	}

	// START_TX: system anchor; only wired when the persist policy
	// requires a transaction.
	if view.Spec.Persist == schema.PersistDefault {
		plan.add(hooks.PhaseStartTx, "begin_tx", true, k.atomBeginTx())
	}

	// PRE_HANDLER: value generation and transforms.
	if len(view.ToStored) > 0 && !bulk {
		plan.add(hooks.PhasePreHandler, "transform_stored", false, k.atomTransformStored(view))
	}
	if view.CreateType() && len(view.Paired) > 0 && !bulk {
		plan.add(hooks.PhasePreHandler, "generate_paired", false, k.atomGeneratePaired(view))
	}
	if len(view.Spec.Set) > 0 {
		plan.add(hooks.PhasePreHandler, "apply_set", false, k.atomApplySet(view))
	}

	// HANDLER: the built-in handler for the canonical target. Pure
	// custom targets have no atom; user HANDLER hooks do the work.
	if view.Spec.Target != "custom" {
		plan.add(hooks.PhaseHandler, "handler:"+view.Spec.Target, false, k.atomHandler(m, view))
	}

	// POST_HANDLER: read-time production and response shaping.
	if len(view.Virtuals) > 0 {
		plan.add(hooks.PhasePostHandler, "produce_virtuals", false, k.atomProduceVirtuals(view))
	}
	plan.add(hooks.PhasePostHandler, "shape_response", false, k.atomShapeResponse(view))

	// END_TX: system anchor, always present; a no-op unless START_TX
	// actually opened a transaction.
	plan.add(hooks.PhaseEndTx, "end_tx", true, k.atomEndTx())

	// POST_RESPONSE: fire-and-forget telemetry.
	plan.add(hooks.PhasePostResponse, "log_outcome", false, k.atomLogOutcome())

	// User hooks, after the atoms of their phase, in registration
	// order.
	collected := k.hooks.Collect(view.Model, k.reg.Aliases(view.Model))
	for _, phase := range hooks.Order {
		for _, e := range collected[view.Alias][phase] {
			plan.add(phase, "hook:"+e.Label, false, e.Fn)
		}
	}

	return plan
}

func isBulk(target string) bool {
	switch target {
	case "bulk_create", "bulk_update", "bulk_delete", "bulk_replace":
		return true
	}
	return false
}
