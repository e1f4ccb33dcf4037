package opview

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/artpar/opkernel/core/schema"
)

// InputReport is the observable outcome of input validation: which
// field names were invalid and which were successfully coerced.
// Validation is idempotent; running it twice on the same payload
// yields the same report.
type InputReport struct {
	// Clean holds the accepted values after coercion and defaults.
	Clean map[string]any

	// Coerced lists fields whose representation was silently adjusted
	// (e.g., a numeric-looking string into an integer).
	Coerced []string

	// Invalid lists fields that failed validation.
	Invalid []string
}

// ValidateInput checks a payload against the compiled input schema.
// Missing required fields and uncoercible values produce a
// ValidationError naming the offending fields; coercible values are
// adjusted silently and recorded as coerced.
func (v *OpView) ValidateInput(payload map[string]any) (InputReport, error) {
	report := InputReport{Clean: make(map[string]any, len(payload))}
	reasons := make(map[string]string)

	for name := range payload {
		if _, ok := v.SchemaIn[name]; !ok {
			report.Invalid = append(report.Invalid, name)
			reasons[name] = "unknown field"
		}
	}

	for _, name := range v.InOrder {
		rule := v.SchemaIn[name]
		value, present := payload[name]

		if !present {
			// Defaults fill absent fields only on create-type and
			// replace-type operations; partial updates leave absent
			// fields untouched.
			if rule.Default != nil && v.RequireAll {
				report.Clean[name] = rule.Default
				continue
			}
			if rule.Required && v.RequireAll {
				report.Invalid = append(report.Invalid, name)
				reasons[name] = "field is required"
			}
			continue
		}

		if value == nil {
			// Explicit null clears an optional field.
			if rule.Required {
				report.Invalid = append(report.Invalid, name)
				reasons[name] = "field is required"
				continue
			}
			report.Clean[name] = nil
			continue
		}

		coerced, wasCoerced, ok := coerce(value, rule)
		if !ok {
			report.Invalid = append(report.Invalid, name)
			reasons[name] = fmt.Sprintf("must be %s", rule.Type)
			continue
		}
		if wasCoerced {
			report.Coerced = append(report.Coerced, name)
		}

		if msg := checkRule(coerced, rule); msg != "" {
			report.Invalid = append(report.Invalid, name)
			reasons[name] = msg
			continue
		}

		report.Clean[name] = coerced
	}

	if len(report.Invalid) > 0 {
		sort.Strings(report.Invalid)
		return report, &ValidationError{Fields: report.Invalid, Reasons: reasons}
	}
	return report, nil
}

// coerce converts a value to the rule's target type. Returns the
// converted value, whether a representation change happened, and
// whether the conversion is possible at all.
func coerce(value any, rule FieldRule) (any, bool, bool) {
	switch rule.Type {
	case schema.FieldTypeString, schema.FieldTypeUUID, schema.FieldTypeEnum, schema.FieldTypeTimestamp:
		if s, ok := value.(string); ok {
			return s, false, true
		}
		return nil, false, false

	case schema.FieldTypeInt:
		switch n := value.(type) {
		case int:
			return int64(n), false, true
		case int64:
			return n, false, true
		case float64:
			// JSON numbers decode as float64; an integral value is the
			// native representation, not a coercion.
			if n == float64(int64(n)) {
				return int64(n), false, true
			}
			return nil, false, false
		case string:
			parsed, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
			if err != nil {
				return nil, false, false
			}
			return parsed, true, true
		}
		return nil, false, false

	case schema.FieldTypeFloat:
		switch n := value.(type) {
		case float64:
			return n, false, true
		case float32:
			return float64(n), false, true
		case int:
			return float64(n), true, true
		case int64:
			return float64(n), true, true
		case string:
			parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
			if err != nil {
				return nil, false, false
			}
			return parsed, true, true
		}
		return nil, false, false

	case schema.FieldTypeBool:
		switch b := value.(type) {
		case bool:
			return b, false, true
		case string:
			parsed, err := strconv.ParseBool(strings.TrimSpace(b))
			if err != nil {
				return nil, false, false
			}
			return parsed, true, true
		}
		return nil, false, false

	case schema.FieldTypeJSON:
		return value, false, true
	}

	return value, false, true
}

func checkRule(value any, rule FieldRule) string {
	if rule.Type == schema.FieldTypeEnum {
		s, _ := value.(string)
		if !containsValue(rule.Values, s) {
			return fmt.Sprintf("must be one of: %s", strings.Join(rule.Values, ", "))
		}
	}

	for _, c := range rule.Constraints {
		if msg := schema.CheckConstraint(value, c); msg != "" {
			return msg
		}
	}
	return ""
}

func containsValue(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}
