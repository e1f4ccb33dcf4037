package opview

import (
	"errors"
	"reflect"
	"testing"

	"github.com/artpar/opkernel/core/schema"
)

func createView(t *testing.T) *OpView {
	t.Helper()
	c, _ := newCompiler(t, widgetModel())
	view, err := c.Build("widget", "create")
	if err != nil {
		t.Fatal(err)
	}
	return view
}

func updateView(t *testing.T) *OpView {
	t.Helper()
	c, _ := newCompiler(t, widgetModel())
	view, err := c.Build("widget", "update")
	if err != nil {
		t.Fatal(err)
	}
	return view
}

func TestValidateInput_CleanPayload(t *testing.T) {
	view := createView(t)

	report, err := view.ValidateInput(map[string]any{
		"name":     "Alpha",
		"quantity": float64(3),
	})
	if err != nil {
		t.Fatalf("ValidateInput() error = %v", err)
	}

	if report.Clean["name"] != "Alpha" {
		t.Errorf("name = %v", report.Clean["name"])
	}
	// JSON integers arrive as float64; normalizing an integral value is
	// not a coercion.
	if report.Clean["quantity"] != int64(3) {
		t.Errorf("quantity = %v (%T), want int64(3)", report.Clean["quantity"], report.Clean["quantity"])
	}
	if len(report.Coerced) != 0 {
		t.Errorf("Coerced = %v, want none", report.Coerced)
	}
	// Absent field with a default gets the default.
	if report.Clean["status"] != "active" {
		t.Errorf("status = %v, want default active", report.Clean["status"])
	}
}

func TestValidateInput_MissingRequired(t *testing.T) {
	view := createView(t)

	report, err := view.ValidateInput(map[string]any{})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want ValidationError", err)
	}
	if !reflect.DeepEqual(verr.Fields, []string{"name"}) {
		t.Errorf("Fields = %v, want [name]", verr.Fields)
	}
	if verr.Reasons["name"] != "field is required" {
		t.Errorf("Reasons[name] = %q", verr.Reasons["name"])
	}
	if !reflect.DeepEqual(report.Invalid, []string{"name"}) {
		t.Errorf("report.Invalid = %v", report.Invalid)
	}
}

func TestValidateInput_MissingOptionalOnUpdate(t *testing.T) {
	view := updateView(t)

	// Updates are partial: a required field may be absent.
	if _, err := view.ValidateInput(map[string]any{"quantity": float64(1)}); err != nil {
		t.Errorf("ValidateInput() error = %v", err)
	}
}

func TestValidateInput_UnknownField(t *testing.T) {
	view := createView(t)

	_, err := view.ValidateInput(map[string]any{"name": "Alpha", "bogus": 1})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want ValidationError", err)
	}
	if !reflect.DeepEqual(verr.Fields, []string{"bogus"}) {
		t.Errorf("Fields = %v, want [bogus]", verr.Fields)
	}
	if verr.Reasons["bogus"] != "unknown field" {
		t.Errorf("Reasons[bogus] = %q", verr.Reasons["bogus"])
	}
}

func TestValidateInput_Coercion(t *testing.T) {
	view := createView(t)

	report, err := view.ValidateInput(map[string]any{
		"name":     "Alpha",
		"quantity": "42",
	})
	if err != nil {
		t.Fatalf("ValidateInput() error = %v", err)
	}
	if report.Clean["quantity"] != int64(42) {
		t.Errorf("quantity = %v (%T)", report.Clean["quantity"], report.Clean["quantity"])
	}
	if !reflect.DeepEqual(report.Coerced, []string{"quantity"}) {
		t.Errorf("Coerced = %v, want [quantity]", report.Coerced)
	}
}

func TestValidateInput_Uncoercible(t *testing.T) {
	view := createView(t)

	tests := []struct {
		name  string
		value any
	}{
		{"non-numeric string", "many"},
		{"fractional float", 1.5},
		{"object", map[string]any{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := view.ValidateInput(map[string]any{"name": "Alpha", "quantity": tt.value})
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("error = %v, want ValidationError", err)
			}
			if !reflect.DeepEqual(verr.Fields, []string{"quantity"}) {
				t.Errorf("Fields = %v, want [quantity]", verr.Fields)
			}
		})
	}
}

func TestValidateInput_EnumAndConstraints(t *testing.T) {
	m := widgetModel()
	m.Fields["quantity"] = schema.Field{
		Type: schema.FieldTypeInt,
		Constraints: []schema.Constraint{
			{Type: schema.ConstraintMin, Value: 0},
		},
	}
	c, _ := newCompiler(t, m)
	view, err := c.Build("widget", "create")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := view.ValidateInput(map[string]any{"name": "A", "status": "melted"}); err == nil {
		t.Error("unknown enum value should fail")
	}
	if _, err := view.ValidateInput(map[string]any{"name": "A", "quantity": float64(-1)}); err == nil {
		t.Error("constraint violation should fail")
	}
	if _, err := view.ValidateInput(map[string]any{"name": "A", "quantity": float64(0)}); err != nil {
		t.Errorf("boundary value should pass, got %v", err)
	}
}

func TestValidateInput_ExplicitNull(t *testing.T) {
	view := updateView(t)

	// Explicit null clears an optional field.
	report, err := view.ValidateInput(map[string]any{"quantity": nil})
	if err != nil {
		t.Fatalf("ValidateInput() error = %v", err)
	}
	value, present := report.Clean["quantity"]
	if !present || value != nil {
		t.Errorf("quantity = %v present=%v, want explicit nil", value, present)
	}

	// Null on a required field is rejected.
	if _, err := view.ValidateInput(map[string]any{"name": nil}); err == nil {
		t.Error("null required field should fail")
	}
}

func TestValidateInput_Idempotent(t *testing.T) {
	view := createView(t)
	payload := map[string]any{"name": "Alpha", "quantity": "7", "bogus": true}

	first, err1 := view.ValidateInput(payload)
	second, err2 := view.ValidateInput(payload)

	if (err1 == nil) != (err2 == nil) {
		t.Fatalf("errors differ: %v vs %v", err1, err2)
	}
	if !reflect.DeepEqual(first.Invalid, second.Invalid) {
		t.Errorf("Invalid differs: %v vs %v", first.Invalid, second.Invalid)
	}
	if !reflect.DeepEqual(first.Coerced, second.Coerced) {
		t.Errorf("Coerced differs: %v vs %v", first.Coerced, second.Coerced)
	}
}
