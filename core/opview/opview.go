// Package opview compiles an operation spec plus field metadata into a
// single executable view, and caches it. Building a view is a pure
// function of the declared specs: no I/O happens during compilation.
package opview

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/artpar/opkernel/core/schema"
	"github.com/artpar/opkernel/core/storage"
)

// ValidationError reports bad or missing input fields. Always surfaced
// to the caller, never retried.
type ValidationError struct {
	// Fields lists the offending field names.
	Fields []string

	// Reasons maps field name to a human-readable message.
	Reasons map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", strings.Join(e.Fields, ", "))
}

// FieldRule is the compiled constraint set for one accepted input
// field.
type FieldRule struct {
	Name        string
	Type        schema.FieldType
	Required    bool
	Default     any
	Values      []string
	Constraints []schema.Constraint
}

// PairedField records a field whose stored value is derived from a
// parallel generated value (e.g., a raw token alongside its digest).
type PairedField struct {
	// Field is the declared field name. The generated raw value is
	// exposed to the caller once under this name.
	Field string

	// Column is the stored column holding the digest.
	Column string
}

// Virtual is a read-time computed field.
type Virtual struct {
	Field   string
	Produce Producer
}

// Producer computes a virtual field's value from the stored record.
type Producer func(record map[string]any) any

// Transform converts an input value to its stored representation.
type Transform struct {
	Field string
	Apply func(v any) (any, error)
}

// OpView is the compiled, cached plan metadata for one (model, alias)
// pair.
type OpView struct {
	Model string
	Alias string
	Spec  schema.OpSpec

	// SchemaIn holds accepted input fields and their constraints.
	SchemaIn map[string]FieldRule

	// InOrder is the stable iteration order of SchemaIn.
	InOrder []string

	// SchemaOut lists the exposed output fields.
	SchemaOut []string

	// RequireAll indicates missing required fields fail validation
	// (create-type and replace-type operations).
	RequireAll bool

	// Paired indexes fields with generated ephemeral values.
	Paired []PairedField

	// Virtuals are the read-time computed fields.
	Virtuals []Virtual

	// ToStored are input-to-storage transforms applied before persist.
	ToStored []Transform

	// RefreshHints lists stored fields whose values the engine fills
	// in, so writes are followed by a re-read.
	RefreshHints []string
}

// CreateType reports whether the view's target generates paired
// values (create and bulk_create).
func (v *OpView) CreateType() bool {
	return v.Spec.Target == "create" || v.Spec.Target == "bulk_create"
}

// Generator produces the ephemeral raw value for a paired field.
type Generator func() (string, error)

// Hasher digests ephemeral values for storage.
type Hasher interface {
	Hash(plaintext string) ([]byte, error)
}

// Compiler builds and memoizes OpViews per (model, alias) identity.
type Compiler struct {
	lookup   func(model, alias string) (schema.OpSpec, bool)
	models   func(name string) (schema.Model, bool)
	hasher   Hasher
	generate Generator

	mu        sync.RWMutex
	cache     map[string]*OpView
	producers map[string]Producer
}

// NewCompiler creates a compiler over the registry lookup functions.
func NewCompiler(
	lookup func(model, alias string) (schema.OpSpec, bool),
	models func(name string) (schema.Model, bool),
	hasher Hasher,
	generate Generator,
) *Compiler {
	return &Compiler{
		lookup:    lookup,
		models:    models,
		hasher:    hasher,
		generate:  generate,
		cache:     make(map[string]*OpView),
		producers: make(map[string]Producer),
	}
}

// RegisterProducer registers a named virtual-field producer.
// Producers are compiler state, registered before models load.
func (c *Compiler) RegisterProducer(name string, p Producer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.producers[name] = p
}

// Build returns the compiled view for (model, alias), building it at
// most once per cache generation. Two calls return the identical
// object until ClearCache.
func (c *Compiler) Build(model, alias string) (*OpView, error) {
	key := model + "." + alias

	c.mu.RLock()
	v, ok := c.cache[key]
	c.mu.RUnlock()
	if ok {
		return v, nil
	}

	spec, ok := c.lookup(model, alias)
	if !ok {
		return nil, fmt.Errorf("operation %q not registered on model %q", alias, model)
	}
	m, ok := c.models(model)
	if !ok {
		return nil, fmt.Errorf("model %q not registered", model)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// A concurrent first build may have won the race; return its
	// fully-built value so callers always observe one identity.
	if v, ok := c.cache[key]; ok {
		return v, nil
	}

	view, err := c.compile(m, spec)
	if err != nil {
		return nil, err
	}
	c.cache[key] = view
	return view, nil
}

// ClearCache drops every compiled view, forcing exactly one rebuild
// per (model, alias) on next use. Test isolation.
func (c *Compiler) ClearCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]*OpView)
}

// Hash digests an ephemeral value with the compiler's hasher.
func (c *Compiler) Hash(plaintext string) ([]byte, error) {
	return c.hasher.Hash(plaintext)
}

// Generate produces a fresh ephemeral raw value.
func (c *Compiler) Generate() (string, error) {
	return c.generate()
}

func (c *Compiler) compile(m schema.Model, spec schema.OpSpec) (*OpView, error) {
	view := &OpView{
		Model:      m.Name,
		Alias:      spec.Alias,
		Spec:       spec,
		SchemaIn:   make(map[string]FieldRule),
		RequireAll: requireAll(spec.Target),
	}

	for _, name := range sortedFieldNames(m.Fields) {
		f := m.Fields[name]

		if f.Virtual != "" {
			p, ok := c.producers[f.Virtual]
			if !ok {
				return nil, fmt.Errorf("model %q field %q: unknown virtual producer %q", m.Name, name, f.Virtual)
			}
			view.Virtuals = append(view.Virtuals, Virtual{Field: name, Produce: p})
			view.SchemaOut = append(view.SchemaOut, name)
			continue
		}

		if f.Type == schema.FieldTypeSecret {
			if f.Paired {
				view.Paired = append(view.Paired, PairedField{
					Field:  name,
					Column: storage.StoredColumn(name, f),
				})
			}
			// Digests never appear in input or output schemas.
			continue
		}

		if acceptsInput(spec.Target) {
			view.SchemaIn[name] = FieldRule{
				Name:        name,
				Type:        f.Type,
				Required:    f.Required,
				Default:     f.Default,
				Values:      f.Values,
				Constraints: f.Constraints,
			}
			view.InOrder = append(view.InOrder, name)
		}

		if f.IsExposed() {
			view.SchemaOut = append(view.SchemaOut, name)
		}

		if f.Type == schema.FieldTypeJSON {
			view.ToStored = append(view.ToStored, Transform{Field: name, Apply: marshalJSON})
		}

		if f.Default != nil {
			view.RefreshHints = append(view.RefreshHints, name)
		}
	}

	view.SchemaOut = append(view.SchemaOut, "id", "created_at", "updated_at")
	view.RefreshHints = append(view.RefreshHints, "created_at", "updated_at")

	return view, nil
}

func requireAll(target string) bool {
	switch target {
	case "create", "bulk_create", "replace", "bulk_replace":
		return true
	}
	return false
}

func acceptsInput(target string) bool {
	switch target {
	case "read", "get", "delete", "list", "clear", "bulk_delete":
		return false
	}
	return true
}

func marshalJSON(v any) (any, error) {
	if _, ok := v.(string); ok {
		return v, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode json field: %w", err)
	}
	return string(b), nil
}

func sortedFieldNames(fields map[string]schema.Field) []string {
	out := make([]string, 0, len(fields))
	for name := range fields {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
