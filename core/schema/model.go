// Package schema defines the declarative types for models and their
// operations. A model is a named entity that owns a set of fields and
// exposes named operations; everything the kernel executes is derived
// from these definitions.
package schema

// Model is the root definition for a declarative model.
type Model struct {
	// Name is the singular name of the model (e.g., "widget", "user").
	// It is the stable identity used as a registry and cache key for
	// the whole process lifetime.
	Name string `yaml:"model"`

	// Fields defines the data fields owned by this model.
	Fields map[string]Field `yaml:"fields"`

	// Operations defines custom operations beyond the canonical verbs.
	// Canonical verbs (create, read, update, replace, delete, list,
	// clear and their bulk variants) are wired implicitly.
	Operations map[string]Operation `yaml:"operations,omitempty"`

	// Without lists capability markers this model opts out of.
	// Each marker disables the canonical verbs that depend on it,
	// e.g. "replace" or "bulk".
	Without []string `yaml:"without,omitempty"`

	// Hooks declares event handlers attached to operation phases.
	Hooks []HookDecl `yaml:"hooks,omitempty"`

	// Meta contains optional metadata.
	Meta ModelMeta `yaml:"meta,omitempty"`
}

// ModelMeta contains optional model metadata.
type ModelMeta struct {
	// Version of the model definition.
	Version string `yaml:"version,omitempty"`

	// Description for documentation.
	Description string `yaml:"description,omitempty"`

	// API is the API group this model belongs to. Provider bindings
	// registered for an API group apply to all of its models.
	API string `yaml:"api,omitempty"`
}

// HookDecl declares a hook in a model definition file.
// Programmatic hooks are registered through the hooks package; this is
// the declarative form carried by YAML definitions.
type HookDecl struct {
	// Op is the operation alias the hook fires for, or "*" for all.
	Op string `yaml:"op"`

	// Phase is the pipeline phase name (e.g., "POST_COMMIT").
	Phase string `yaml:"phase"`

	// Type of hook action. Currently "log" is supported: it emits a
	// structured log entry with the operation result, fire-and-forget.
	Type string `yaml:"type"`

	// Event is an optional label attached to emitted log entries.
	Event string `yaml:"event,omitempty"`
}

// Excludes reports whether the model opted out of a capability marker.
func (m Model) Excludes(marker string) bool {
	for _, w := range m.Without {
		if w == marker {
			return true
		}
	}
	return false
}
