package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseFile parses a model definition from a YAML file.
func ParseFile(path string) (Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Model{}, fmt.Errorf("read file %s: %w", path, err)
	}

	return Parse(data)
}

// Parse parses a model definition from YAML bytes.
func Parse(data []byte) (Model, error) {
	var m Model
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Model{}, fmt.Errorf("parse yaml: %w", err)
	}

	if err := Validate(m); err != nil {
		return Model{}, fmt.Errorf("validate model %q: %w", m.Name, err)
	}

	return m, nil
}

// ParseDir parses all model definitions from a directory, including
// subdirectories.
func ParseDir(dir string) ([]Model, error) {
	var models []Model

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}

	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())

		if entry.IsDir() {
			sub, err := ParseDir(path)
			if err != nil {
				return nil, err
			}
			models = append(models, sub...)
			continue
		}

		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		m, err := ParseFile(path)
		if err != nil {
			return nil, err
		}

		models = append(models, m)
	}

	return models, nil
}

// Validate validates a model definition.
func Validate(m Model) error {
	if m.Name == "" {
		return fmt.Errorf("model name is required")
	}
	if strings.ContainsAny(m.Name, " /.") {
		return fmt.Errorf("model name %q contains invalid characters", m.Name)
	}
	if len(m.Fields) == 0 {
		return fmt.Errorf("model must declare at least one field")
	}

	for name, f := range m.Fields {
		if f.Type == "" {
			return fmt.Errorf("field %q: type is required", name)
		}
		if f.Type == FieldTypeEnum && len(f.Values) == 0 {
			return fmt.Errorf("field %q: enum type requires values", name)
		}
		if f.Paired && f.Type != FieldTypeSecret {
			return fmt.Errorf("field %q: paired fields must be type secret", name)
		}
		if f.Virtual != "" && f.Paired {
			return fmt.Errorf("field %q: virtual fields cannot be paired", name)
		}
	}

	for alias, op := range m.Operations {
		if alias == "" {
			return fmt.Errorf("operation alias must not be empty")
		}
		if op.Target != "" && !isKnownTarget(op.Target) {
			return fmt.Errorf("operation %q: unknown target %q", alias, op.Target)
		}
	}

	return nil
}

func isKnownTarget(target string) bool {
	if target == "custom" {
		return true
	}
	for _, v := range CanonicalVerbs {
		if v == target {
			return true
		}
	}
	return false
}
