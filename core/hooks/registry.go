package hooks

import (
	"fmt"
	"strings"
	"sync"
)

// Wildcard matches all aliases currently and later registered for a
// model.
const Wildcard = "*"

// Entry is one resolved hook in collection order.
type Entry[F any] struct {
	// Label identifies the hook in diagnostics output.
	Label string

	// Fn is the bound callable.
	Fn F
}

type binding[F any] struct {
	ops   []string
	all   bool
	phase Phase
	label string
	fn    F
}

// Registry collects hook bindings per model and resolves them into
// ordered per-(alias, phase) lists. The callable type is a parameter
// so the kernel can bind its own context signature without this
// package depending on it.
//
// Ordering guarantee: hooks for a given phase fire in registration
// order, and wildcard bindings interleave with alias-specific ones in
// that same single sequence.
type Registry[F any] struct {
	mu       sync.RWMutex
	bindings map[string][]binding[F]
	cache    map[string]map[string]map[string]map[Phase][]Entry[F]
}

// NewRegistry creates an empty hook registry.
func NewRegistry[F any]() *Registry[F] {
	return &Registry[F]{
		bindings: make(map[string][]binding[F]),
		cache:    make(map[string]map[string]map[string]map[Phase][]Entry[F]),
	}
}

// Register binds a callable to one model for the given operation
// aliases and phase. Ops may be one alias, several, or the wildcard
// "*". Works the same whether the binding originates on the model
// itself or is attached after the fact by unrelated code; ordering is
// decided solely by registration sequence.
func (r *Registry[F]) Register(model string, ops []string, phase Phase, label string, fn F) error {
	if phase.IsSystem() {
		return fmt.Errorf("phase %s is a system anchor, hooks cannot attach to it", phase)
	}
	if !phase.Valid() {
		return fmt.Errorf("unknown phase %q", phase)
	}
	if len(ops) == 0 {
		return fmt.Errorf("hook on model %q must name at least one op or the wildcard", model)
	}

	b := binding[F]{phase: phase, label: label, fn: fn}
	for _, op := range ops {
		if op == Wildcard {
			b.all = true
			continue
		}
		b.ops = append(b.ops, op)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.bindings[model] = append(r.bindings[model], b)

	// New bindings invalidate the collected view for this model.
	delete(r.cache, model)
	return nil
}

// Collect resolves the model's bindings into a per-(alias, phase)
// ordered mapping covering the given visible aliases. The result is
// memoized until the model gains a new binding or the alias set
// changes.
func (r *Registry[F]) Collect(model string, visibleAliases []string) map[string]map[Phase][]Entry[F] {
	key := strings.Join(visibleAliases, ",")

	r.mu.RLock()
	if byKey, ok := r.cache[model]; ok {
		if collected, ok := byKey[key]; ok {
			r.mu.RUnlock()
			return collected
		}
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	// Re-check after acquiring the write lock: a concurrent first
	// collection may have populated the entry. Last writer wins on a
	// fully-built value either way.
	if byKey, ok := r.cache[model]; ok {
		if collected, ok := byKey[key]; ok {
			return collected
		}
	}

	collected := make(map[string]map[Phase][]Entry[F], len(visibleAliases))
	for _, alias := range visibleAliases {
		phases := make(map[Phase][]Entry[F])
		for _, b := range r.bindings[model] {
			if !b.all && !containsOp(b.ops, alias) {
				continue
			}
			phases[b.phase] = append(phases[b.phase], Entry[F]{Label: b.label, Fn: b.fn})
		}
		collected[alias] = phases
	}

	byKey, ok := r.cache[model]
	if !ok {
		byKey = make(map[string]map[string]map[Phase][]Entry[F])
		r.cache[model] = byKey
	}
	byKey[key] = collected
	return collected
}

// Clear drops all bindings and collected views. Test isolation only.
func (r *Registry[F]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindings = make(map[string][]binding[F])
	r.cache = make(map[string]map[string]map[string]map[Phase][]Entry[F])
}

func containsOp(ops []string, alias string) bool {
	for _, op := range ops {
		if op == alias {
			return true
		}
	}
	return false
}
