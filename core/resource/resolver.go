package resource

import (
	"fmt"
	"sync"
)

// NoProviderError reports that no provider is registered at any
// precedence level for a lookup. Surfaced as a server configuration
// error, never retried.
type NoProviderError struct {
	Model string
	Alias string
	API   string
}

func (e *NoProviderError) Error() string {
	return fmt.Sprintf("no resource provider registered (model=%q alias=%q api=%q)", e.Model, e.Alias, e.API)
}

// Resolver tracks provider bindings at four precedence levels:
// operation > model/table > API-group > application-default.
// Exactly one level wins a lookup.
type Resolver struct {
	mu  sync.RWMutex
	def *Provider
	api map[string]*Provider
	tbl map[string]*Provider
	op  map[string]*Provider
}

// NewResolver creates an empty resolver.
func NewResolver() *Resolver {
	return &Resolver{
		api: make(map[string]*Provider),
		tbl: make(map[string]*Provider),
		op:  make(map[string]*Provider),
	}
}

// RegisterDefault binds the application-default provider.
func (r *Resolver) RegisterDefault(spec Spec) *Provider {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := newProvider(LevelDefault, spec)
	r.def = p
	return p
}

// RegisterAPI binds a provider for one API group.
func (r *Resolver) RegisterAPI(api string, spec Spec) *Provider {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := newProvider(LevelAPI, spec)
	r.api[api] = p
	return p
}

// RegisterTable binds a provider for one model's table.
func (r *Resolver) RegisterTable(model string, spec Spec) *Provider {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := newProvider(LevelTable, spec)
	r.tbl[model] = p
	return p
}

// RegisterOp binds a provider for one specific (model, alias) pair.
func (r *Resolver) RegisterOp(model, alias string, spec Spec) *Provider {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := newProvider(LevelOp, spec)
	r.op[opKey(model, alias)] = p
	return p
}

// UnregisterDefault removes the application-default binding.
func (r *Resolver) UnregisterDefault() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.def = nil
}

// UnregisterAPI removes an API-group binding.
func (r *Resolver) UnregisterAPI(api string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.api, api)
}

// UnregisterTable removes a model binding.
func (r *Resolver) UnregisterTable(model string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tbl, model)
}

// UnregisterOp removes an operation binding.
func (r *Resolver) UnregisterOp(model, alias string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.op, opKey(model, alias))
}

// ResolveProvider performs the deterministic precedence lookup:
// op > table > API > default. Returns NoProviderError when nothing
// is registered at any level.
func (r *Resolver) ResolveProvider(model, api, alias string) (*Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if model != "" && alias != "" {
		if p, ok := r.op[opKey(model, alias)]; ok {
			return p, nil
		}
	}
	if model != "" {
		if p, ok := r.tbl[model]; ok {
			return p, nil
		}
	}
	if api != "" {
		if p, ok := r.api[api]; ok {
			return p, nil
		}
	}
	if r.def != nil {
		return r.def, nil
	}

	return nil, &NoProviderError{Model: model, Alias: alias, API: api}
}

// HasAny reports whether any provider is registered at any level.
// Bootstrap uses it to fail fast when models are declared but no
// resource is configured.
func (r *Resolver) HasAny() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.def != nil || len(r.api) > 0 || len(r.tbl) > 0 || len(r.op) > 0
}

// Close closes every registered provider's pool.
func (r *Resolver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	closeAll := func(p *Provider) {
		if p == nil {
			return
		}
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	closeAll(r.def)
	for _, p := range r.api {
		closeAll(p)
	}
	for _, p := range r.tbl {
		closeAll(p)
	}
	for _, p := range r.op {
		closeAll(p)
	}
	return firstErr
}

// Clear removes every binding. Test isolation only.
func (r *Resolver) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.def = nil
	r.api = make(map[string]*Provider)
	r.tbl = make(map[string]*Provider)
	r.op = make(map[string]*Provider)
}

func opKey(model, alias string) string {
	return model + "." + alias
}
