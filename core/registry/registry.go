// Package registry manages model registration and the per-model
// operation specs. It is the process-wide arena other components key
// their caches on: models are indexed by name, specs by (model, alias),
// and Clear exists for test isolation.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/artpar/opkernel/core/schema"
)

// DuplicateAliasError reports an attempt to register two operations
// under the same (model, alias) identity. Registration-time, fatal.
type DuplicateAliasError struct {
	Model string
	Alias string
}

func (e *DuplicateAliasError) Error() string {
	return fmt.Sprintf("operation %q already registered on model %q", e.Alias, e.Model)
}

// Registry holds registered models and their operation specs.
type Registry struct {
	mu sync.RWMutex

	// models by name, with declaration order preserved.
	models map[string]schema.Model
	order  []string

	// specs per model in declaration order, indexed by alias.
	specs map[string][]schema.OpSpec
	index map[string]map[string]int
}

// New creates a new registry.
func New() *Registry {
	r := &Registry{}
	r.reset()
	return r
}

func (r *Registry) reset() {
	r.models = make(map[string]schema.Model)
	r.order = nil
	r.specs = make(map[string][]schema.OpSpec)
	r.index = make(map[string]map[string]int)
}

// RegisterModel registers a model and wires its operations: canonical
// verbs first (gated per capability marker), canonical aliases, then
// the model's custom operations in a stable order.
func (r *Registry) RegisterModel(m schema.Model) error {
	r.mu.Lock()
	if _, exists := r.models[m.Name]; exists {
		r.mu.Unlock()
		return fmt.Errorf("model %q already registered", m.Name)
	}
	r.models[m.Name] = m
	r.order = append(r.order, m.Name)
	r.mu.Unlock()

	for _, verb := range schema.CanonicalVerbs {
		if !ShouldWireCanonical(m, verb) {
			continue
		}
		if err := r.Register(m.Name, canonicalSpec(m.Name, verb, verb, true)); err != nil {
			return err
		}
	}

	for alias, target := range schema.CanonicalAliases {
		if !ShouldWireCanonical(m, target) {
			continue
		}
		if err := r.Register(m.Name, canonicalSpec(m.Name, alias, target, true)); err != nil {
			return err
		}
	}

	for _, alias := range sortedOpAliases(m.Operations) {
		op := m.Operations[alias]
		if err := r.Register(m.Name, customSpec(m.Name, alias, op)); err != nil {
			return err
		}
	}

	return nil
}

// Register records one operation spec. Fails with DuplicateAliasError
// if (model, alias) already exists. Specs are immutable once stored.
func (r *Registry) Register(model string, spec schema.OpSpec) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx, ok := r.index[model]
	if !ok {
		idx = make(map[string]int)
		r.index[model] = idx
	}
	if _, dup := idx[spec.Alias]; dup {
		return &DuplicateAliasError{Model: model, Alias: spec.Alias}
	}

	spec.Model = model
	idx[spec.Alias] = len(r.specs[model])
	r.specs[model] = append(r.specs[model], spec)
	return nil
}

// Resolve returns all specs for a model in declaration order.
func (r *Registry) Resolve(model string) []schema.OpSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.specs[model]
}

// Lookup returns the spec registered under (model, alias).
func (r *Registry) Lookup(model, alias string) (schema.OpSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx, ok := r.index[model]
	if !ok {
		return schema.OpSpec{}, false
	}
	i, ok := idx[alias]
	if !ok {
		return schema.OpSpec{}, false
	}
	return r.specs[model][i], true
}

// Model returns a registered model by name.
func (r *Registry) Model(name string) (schema.Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[name]
	return m, ok
}

// Models returns all registered models in registration order.
func (r *Registry) Models() []schema.Model {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]schema.Model, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.models[name])
	}
	return out
}

// Aliases returns the operation aliases registered for a model, in
// registration order.
func (r *Registry) Aliases(model string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	specs := r.specs[model]
	out := make([]string, len(specs))
	for i, s := range specs {
		out[i] = s.Alias
	}
	return out
}

// Clear removes all registered models and specs. Test isolation only.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reset()
}

// ShouldWireCanonical reports whether a canonical verb should be wired
// for a model. The decision is driven by capability markers: a model
// that opts out of "replace" loses replace and bulk_replace; opting
// out of "bulk" drops every bulk variant. Evaluated once per verb.
func ShouldWireCanonical(m schema.Model, verb string) bool {
	for _, marker := range verbMarkers(verb) {
		if m.Excludes(marker) {
			return false
		}
	}
	return true
}

// verbMarkers returns the capability markers a verb depends on.
func verbMarkers(verb string) []string {
	if base, ok := strings.CutPrefix(verb, "bulk_"); ok {
		return []string{"bulk", verb, base}
	}
	return []string{verb}
}

func canonicalSpec(model, alias, target string, implicit bool) schema.OpSpec {
	return schema.OpSpec{
		Model:             model,
		Alias:             alias,
		Target:            target,
		Arity:             schema.VerbArity(target),
		Persist:           schema.VerbPersist(target),
		RequestSchemaRef:  model + "." + alias + ".request",
		ResponseSchemaRef: model + "." + alias + ".response",
		ExposeREST:        true,
		Implicit:          implicit,
	}
}

func customSpec(model, alias string, op schema.Operation) schema.OpSpec {
	target := op.Target
	if target == "" {
		if len(op.Set) > 0 {
			target = "update"
		} else {
			target = "custom"
		}
	}

	arity := op.Arity
	if arity == "" {
		arity = schema.VerbArity(target)
	}
	persist := op.Persist
	if persist == "" {
		persist = schema.VerbPersist(target)
	}
	expose := true
	if op.Expose != nil {
		expose = *op.Expose
	}

	return schema.OpSpec{
		Model:             model,
		Alias:             alias,
		Target:            target,
		Arity:             arity,
		Persist:           persist,
		RequestSchemaRef:  model + "." + alias + ".request",
		ResponseSchemaRef: model + "." + alias + ".response",
		ExposeREST:        expose,
		Set:               op.Set,
	}
}

func sortedOpAliases(ops map[string]schema.Operation) []string {
	out := make([]string, 0, len(ops))
	for alias := range ops {
		out = append(out, alias)
	}
	// Stable order for map-declared operations.
	sort.Strings(out)
	return out
}
