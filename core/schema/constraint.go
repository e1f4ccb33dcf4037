package schema

import (
	"fmt"
	"regexp"
	"strings"
)

// Constraint defines a validation rule for a field.
type Constraint struct {
	// Type is the constraint type (min, max, min_length, max_length,
	// pattern, not_empty).
	Type ConstraintType `yaml:"type" json:"type"`

	// Value is the constraint parameter (number, regex pattern).
	Value any `yaml:"value,omitempty" json:"value,omitempty"`

	// Message is the custom error message (optional).
	Message string `yaml:"message,omitempty" json:"message,omitempty"`
}

// ConstraintType identifies the type of constraint.
type ConstraintType string

const (
	ConstraintMin       ConstraintType = "min"
	ConstraintMax       ConstraintType = "max"
	ConstraintMinLength ConstraintType = "min_length"
	ConstraintMaxLength ConstraintType = "max_length"
	ConstraintPattern   ConstraintType = "pattern"
	ConstraintNotEmpty  ConstraintType = "not_empty"
)

// CheckConstraint validates a value against a constraint.
// Returns a message describing the failure, or "" when the value passes.
func CheckConstraint(value any, c Constraint) string {
	switch c.Type {
	case ConstraintMin:
		if n, ok := toNumber(value); ok {
			if limit, ok := toNumber(c.Value); ok && n < limit {
				return failMessage(c, fmt.Sprintf("must be at least %v", c.Value))
			}
		}
	case ConstraintMax:
		if n, ok := toNumber(value); ok {
			if limit, ok := toNumber(c.Value); ok && n > limit {
				return failMessage(c, fmt.Sprintf("must be at most %v", c.Value))
			}
		}
	case ConstraintMinLength:
		if s, ok := value.(string); ok {
			if limit, ok := toNumber(c.Value); ok && float64(len(s)) < limit {
				return failMessage(c, fmt.Sprintf("must be at least %v characters", c.Value))
			}
		}
	case ConstraintMaxLength:
		if s, ok := value.(string); ok {
			if limit, ok := toNumber(c.Value); ok && float64(len(s)) > limit {
				return failMessage(c, fmt.Sprintf("must be at most %v characters", c.Value))
			}
		}
	case ConstraintPattern:
		if s, ok := value.(string); ok {
			pattern, _ := c.Value.(string)
			re, err := regexp.Compile(pattern)
			if err != nil {
				return "invalid pattern constraint"
			}
			if !re.MatchString(s) {
				return failMessage(c, "does not match required pattern")
			}
		}
	case ConstraintNotEmpty:
		if s, ok := value.(string); ok && strings.TrimSpace(s) == "" {
			return failMessage(c, "must not be empty")
		}
	}
	return ""
}

func failMessage(c Constraint, fallback string) string {
	if c.Message != "" {
		return c.Message
	}
	return fallback
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
