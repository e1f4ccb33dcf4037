package schema

// Field defines a data field in a model's schema.
type Field struct {
	// Type is the field type. See FieldType constants.
	Type FieldType `yaml:"type"`

	// Required indicates this field must be provided on create.
	Required bool `yaml:"required,omitempty"`

	// Unique indicates this field must have unique values.
	Unique bool `yaml:"unique,omitempty"`

	// Lookup indicates this field can be used to find records.
	// The "id" field is always implicitly a lookup field.
	Lookup bool `yaml:"lookup,omitempty"`

	// Default value applied when the field is absent on create.
	Default any `yaml:"default,omitempty"`

	// Values lists valid values for enum type fields.
	Values []string `yaml:"values,omitempty"`

	// Internal marks fields that are never exposed in responses.
	Internal bool `yaml:"internal,omitempty"`

	// Virtual names a read-time producer for a computed field.
	// Virtual fields are never stored.
	Virtual string `yaml:"virtual,omitempty"`

	// Paired marks a secret field whose stored value is a digest of a
	// generated ephemeral value. The raw value is produced once per
	// create and surfaced to the caller exactly once; only the digest
	// is persisted.
	Paired bool `yaml:"paired,omitempty"`

	// Constraints defines validation rules for this field.
	Constraints []Constraint `yaml:"constraints,omitempty"`

	// Description provides human-readable documentation.
	Description string `yaml:"description,omitempty"`
}

// FieldType represents the type of a schema field.
type FieldType string

const (
	FieldTypeString    FieldType = "string"
	FieldTypeInt       FieldType = "int"
	FieldTypeFloat     FieldType = "float"
	FieldTypeBool      FieldType = "bool"
	FieldTypeTimestamp FieldType = "timestamp"
	FieldTypeJSON      FieldType = "json"
	FieldTypeUUID      FieldType = "uuid"
	FieldTypeEnum      FieldType = "enum"   // requires Values
	FieldTypeSecret    FieldType = "secret" // digested, never exposed
)

// IsStored reports whether the field has a storage representation.
// Virtual fields are computed at read time and never persisted.
func (f Field) IsStored() bool {
	return f.Virtual == ""
}

// IsExposed reports whether the field appears in responses.
func (f Field) IsExposed() bool {
	return !f.Internal && f.Type != FieldTypeSecret
}

// SQLType returns the SQLite column type for this field.
func (f Field) SQLType() string {
	switch f.Type {
	case FieldTypeInt, FieldTypeBool:
		return "INTEGER"
	case FieldTypeFloat:
		return "REAL"
	case FieldTypeSecret:
		return "BLOB"
	default:
		return "TEXT"
	}
}
