// Introspection types for exposing compiled plans and declared
// operations over the diagnostics surface. These enable clients and
// operators to discover, per model and alias, exactly what the kernel
// will execute.
package schema

// KernelzResponse is returned by GET /kernelz: the compiled phase/step
// sequence per model and alias, as human-readable "PHASE:label" strings.
type KernelzResponse struct {
	Plans map[string]map[string][]string `json:"plans"`
}

// HookzResponse is returned by GET /hookz: hook labels per model,
// alias and phase.
type HookzResponse struct {
	Hooks map[string]map[string]map[string][]string `json:"hooks"`
}

// MethodzResponse is returned by GET /methodz: declared operations per
// model.
type MethodzResponse struct {
	Methods map[string][]MethodSchema `json:"methods"`
}

// MethodSchema describes one registered operation for introspection.
type MethodSchema struct {
	Alias    string `json:"alias"`
	Target   string `json:"target"`
	Arity    string `json:"arity"`
	Persist  string `json:"persist"`
	REST     bool   `json:"rest"`
	Implicit bool   `json:"implicit,omitempty"`
}

// FieldSchema describes a model field for introspection.
type FieldSchema struct {
	Name        string       `json:"name"`
	Type        string       `json:"type"`
	Required    bool         `json:"required"`
	Unique      bool         `json:"unique,omitempty"`
	Lookup      bool         `json:"lookup,omitempty"`
	Values      []string     `json:"values,omitempty"`
	Internal    bool         `json:"internal,omitempty"`
	Virtual     string       `json:"virtual,omitempty"`
	Paired      bool         `json:"paired,omitempty"`
	Default     any          `json:"default,omitempty"`
	Constraints []Constraint `json:"constraints,omitempty"`
	Description string       `json:"description,omitempty"`
}
