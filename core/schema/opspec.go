package schema

// Arity describes whether an operation addresses one record or many.
type Arity string

const (
	AritySingle     Arity = "single"
	ArityCollection Arity = "collection"
)

// PersistPolicy controls whether the kernel opens a transaction for an
// operation.
type PersistPolicy string

const (
	// PersistDefault opens a transaction and runs the handler inside it.
	PersistDefault PersistPolicy = "default"

	// PersistSkip runs the handler without a transaction (reads).
	PersistSkip PersistPolicy = "skip"

	// PersistCustom leaves transaction management to the handler.
	PersistCustom PersistPolicy = "custom"
)

// OpSpec is the declarative description of one named operation on a
// model. Identity is (Model, Alias); specs are immutable once
// registered. Multiple aliases may map to the same canonical Target
// (e.g., "get" aliasing "read").
type OpSpec struct {
	// Model is the owning model name.
	Model string

	// Alias is the name the operation is invoked by.
	Alias string

	// Target is the canonical verb this alias executes.
	Target string

	// Arity is single or collection.
	Arity Arity

	// Persist controls transaction handling.
	Persist PersistPolicy

	// RequestSchemaRef names the compiled input shape.
	RequestSchemaRef string

	// ResponseSchemaRef names the compiled output shape.
	ResponseSchemaRef string

	// ExposeREST indicates the REST transport should route to this
	// operation. RPC dispatch reaches every registered operation.
	ExposeREST bool

	// Implicit indicates the spec was wired from the canonical verb
	// table rather than declared by the model.
	Implicit bool

	// Set contains field values applied by custom state-transition
	// operations (e.g., archive: {set: {status: archived}}).
	Set map[string]string
}

// Operation is the YAML form of a custom operation declaration.
type Operation struct {
	// Target is the canonical verb this operation behaves as.
	// Defaults to "update" for operations with Set values.
	Target string `yaml:"target,omitempty"`

	// Arity overrides the derived arity.
	Arity Arity `yaml:"arity,omitempty"`

	// Persist overrides the derived persist policy.
	Persist PersistPolicy `yaml:"persist,omitempty"`

	// Set defines field values to apply when this operation executes.
	Set map[string]string `yaml:"set,omitempty"`

	// Expose indicates the REST transport should route to this
	// operation. Defaults to true.
	Expose *bool `yaml:"expose,omitempty"`

	// Description for documentation.
	Description string `yaml:"description,omitempty"`
}

// CanonicalVerbs lists the default verbs wired for every model, in
// wiring order. Bulk variants follow their single-record forms.
var CanonicalVerbs = []string{
	"create", "read", "update", "replace", "delete", "list", "clear",
	"bulk_create", "bulk_update", "bulk_delete", "bulk_replace",
}

// CanonicalAliases maps extra aliases onto canonical targets.
var CanonicalAliases = map[string]string{
	"get": "read",
}

// VerbArity returns the arity of a canonical verb.
func VerbArity(verb string) Arity {
	switch verb {
	case "list", "clear", "bulk_create", "bulk_update", "bulk_delete", "bulk_replace":
		return ArityCollection
	}
	return AritySingle
}

// VerbPersist returns the persist policy of a canonical verb.
func VerbPersist(verb string) PersistPolicy {
	switch verb {
	case "read", "get", "list":
		return PersistSkip
	}
	return PersistDefault
}
