package dispatch

import (
	"strings"

	"github.com/artpar/opkernel/core/hooks"
	"github.com/artpar/opkernel/core/schema"
)

// Kernelz exposes, per model and alias, the exact compiled phase/step
// sequence as human-readable "PHASE:label" strings.
func (d *Dispatcher) Kernelz() schema.KernelzResponse {
	plans := make(map[string]map[string][]string)

	for _, m := range d.reg.Models() {
		byAlias := make(map[string][]string)
		for _, alias := range d.reg.Aliases(m.Name) {
			plan, err := d.kernel.BuildPlan(m.Name, alias)
			if err != nil {
				byAlias[alias] = []string{"ERROR:" + err.Error()}
				continue
			}
			byAlias[alias] = plan.Describe()
		}
		plans[m.Name] = byAlias
	}

	return schema.KernelzResponse{Plans: plans}
}

// Hookz exposes the user hooks attached per model, alias and phase.
func (d *Dispatcher) Hookz() schema.HookzResponse {
	out := make(map[string]map[string]map[string][]string)

	for _, m := range d.reg.Models() {
		byAlias := make(map[string]map[string][]string)
		for _, alias := range d.reg.Aliases(m.Name) {
			plan, err := d.kernel.BuildPlan(m.Name, alias)
			if err != nil {
				continue
			}
			byPhase := make(map[string][]string)
			for _, phase := range hooks.Order {
				for _, step := range plan.Steps(phase) {
					if label, ok := strings.CutPrefix(step.Label, "hook:"); ok {
						byPhase[string(phase)] = append(byPhase[string(phase)], label)
					}
				}
			}
			if len(byPhase) > 0 {
				byAlias[alias] = byPhase
			}
		}
		out[m.Name] = byAlias
	}

	return schema.HookzResponse{Hooks: out}
}

// Methodz exposes the declared operations per model.
func (d *Dispatcher) Methodz() schema.MethodzResponse {
	methods := make(map[string][]schema.MethodSchema)

	for _, m := range d.reg.Models() {
		for _, spec := range d.reg.Resolve(m.Name) {
			methods[m.Name] = append(methods[m.Name], schema.MethodSchema{
				Alias:    spec.Alias,
				Target:   spec.Target,
				Arity:    string(spec.Arity),
				Persist:  string(spec.Persist),
				REST:     spec.ExposeREST,
				Implicit: spec.Implicit,
			})
		}
	}

	return schema.MethodzResponse{Methods: methods}
}
