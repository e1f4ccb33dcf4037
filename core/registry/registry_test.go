package registry

import (
	"errors"
	"testing"

	"github.com/artpar/opkernel/core/schema"
)

func testModel(name string, without ...string) schema.Model {
	return schema.Model{
		Name:    name,
		Fields:  map[string]schema.Field{"name": {Type: schema.FieldTypeString}},
		Without: without,
	}
}

func TestRegisterModel_CanonicalVerbs(t *testing.T) {
	r := New()
	if err := r.RegisterModel(testModel("widget")); err != nil {
		t.Fatalf("RegisterModel() error = %v", err)
	}

	for _, verb := range schema.CanonicalVerbs {
		spec, ok := r.Lookup("widget", verb)
		if !ok {
			t.Errorf("verb %q not wired", verb)
			continue
		}
		if spec.Target != verb {
			t.Errorf("verb %q target = %q", verb, spec.Target)
		}
		if !spec.Implicit {
			t.Errorf("verb %q should be implicit", verb)
		}
	}

	// The alias shares the target's behavior under its own name.
	get, ok := r.Lookup("widget", "get")
	if !ok {
		t.Fatal("alias get not wired")
	}
	if get.Target != "read" {
		t.Errorf("get target = %q, want read", get.Target)
	}
	if get.Persist != schema.PersistSkip {
		t.Errorf("get persist = %q, want skip", get.Persist)
	}
}

func TestRegisterModel_CapabilityOptOut(t *testing.T) {
	tests := []struct {
		name    string
		without []string
		absent  []string
		present []string
	}{
		{
			name:    "without replace drops replace and bulk_replace",
			without: []string{"replace"},
			absent:  []string{"replace", "bulk_replace"},
			present: []string{"create", "update", "bulk_update"},
		},
		{
			name:    "without bulk drops every bulk variant",
			without: []string{"bulk"},
			absent:  []string{"bulk_create", "bulk_update", "bulk_delete", "bulk_replace"},
			present: []string{"create", "update", "replace", "delete"},
		},
		{
			name:    "without delete drops the bulk variant too",
			without: []string{"delete"},
			absent:  []string{"delete", "bulk_delete"},
			present: []string{"clear", "update"},
		},
		{
			name:    "without bulk_update drops only that variant",
			without: []string{"bulk_update"},
			absent:  []string{"bulk_update"},
			present: []string{"update", "bulk_create"},
		},
		{
			name:    "without read drops the get alias too",
			without: []string{"read"},
			absent:  []string{"read", "get"},
			present: []string{"list"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New()
			if err := r.RegisterModel(testModel("widget", tt.without...)); err != nil {
				t.Fatalf("RegisterModel() error = %v", err)
			}
			for _, alias := range tt.absent {
				if _, ok := r.Lookup("widget", alias); ok {
					t.Errorf("alias %q should not be wired", alias)
				}
			}
			for _, alias := range tt.present {
				if _, ok := r.Lookup("widget", alias); !ok {
					t.Errorf("alias %q should be wired", alias)
				}
			}
		})
	}
}

func TestRegisterModel_CustomOperations(t *testing.T) {
	m := testModel("widget")
	m.Operations = map[string]schema.Operation{
		"retire": {Set: map[string]string{"status": "retired"}},
		"ping":   {Target: "custom", Persist: schema.PersistSkip},
	}

	r := New()
	if err := r.RegisterModel(m); err != nil {
		t.Fatalf("RegisterModel() error = %v", err)
	}

	retire, ok := r.Lookup("widget", "retire")
	if !ok {
		t.Fatal("retire not registered")
	}
	if retire.Target != "update" {
		t.Errorf("retire target = %q, want update (set implies update)", retire.Target)
	}
	if retire.Persist != schema.PersistDefault {
		t.Errorf("retire persist = %q, want default", retire.Persist)
	}
	if retire.Implicit {
		t.Error("retire should not be implicit")
	}

	ping, ok := r.Lookup("widget", "ping")
	if !ok {
		t.Fatal("ping not registered")
	}
	if ping.Target != "custom" {
		t.Errorf("ping target = %q, want custom", ping.Target)
	}
	if ping.Persist != schema.PersistSkip {
		t.Errorf("ping persist = %q, want skip", ping.Persist)
	}
}

func TestRegister_DuplicateAlias(t *testing.T) {
	r := New()
	if err := r.RegisterModel(testModel("widget")); err != nil {
		t.Fatal(err)
	}

	err := r.Register("widget", schema.OpSpec{Alias: "create", Target: "create"})
	var dup *DuplicateAliasError
	if !errors.As(err, &dup) {
		t.Fatalf("Register() error = %v, want DuplicateAliasError", err)
	}
	if dup.Model != "widget" || dup.Alias != "create" {
		t.Errorf("DuplicateAliasError = %+v", dup)
	}
}

func TestRegisterModel_DuplicateModel(t *testing.T) {
	r := New()
	if err := r.RegisterModel(testModel("widget")); err != nil {
		t.Fatal(err)
	}
	if err := r.RegisterModel(testModel("widget")); err == nil {
		t.Error("second RegisterModel() should fail")
	}
}

func TestResolve_Order(t *testing.T) {
	r := New()
	if err := r.RegisterModel(testModel("widget")); err != nil {
		t.Fatal(err)
	}

	specs := r.Resolve("widget")
	aliases := r.Aliases("widget")
	if len(specs) != len(aliases) {
		t.Fatalf("specs/aliases length mismatch: %d vs %d", len(specs), len(aliases))
	}
	for i, spec := range specs {
		if spec.Alias != aliases[i] {
			t.Errorf("aliases[%d] = %q, want %q", i, aliases[i], spec.Alias)
		}
	}

	// Canonical verbs come first, in their declared order.
	for i, verb := range schema.CanonicalVerbs {
		if aliases[i] != verb {
			t.Errorf("aliases[%d] = %q, want %q", i, aliases[i], verb)
		}
	}
}

func TestClear(t *testing.T) {
	r := New()
	if err := r.RegisterModel(testModel("widget")); err != nil {
		t.Fatal(err)
	}
	r.Clear()

	if _, ok := r.Model("widget"); ok {
		t.Error("model should be gone after Clear")
	}
	if _, ok := r.Lookup("widget", "create"); ok {
		t.Error("specs should be gone after Clear")
	}
	if err := r.RegisterModel(testModel("widget")); err != nil {
		t.Errorf("re-register after Clear failed: %v", err)
	}
}

func TestShouldWireCanonical(t *testing.T) {
	tests := []struct {
		verb    string
		without []string
		want    bool
	}{
		{"create", nil, true},
		{"create", []string{"create"}, false},
		{"bulk_create", []string{"bulk"}, false},
		{"bulk_create", []string{"create"}, false},
		{"bulk_create", []string{"bulk_create"}, false},
		{"bulk_delete", []string{"delete"}, false},
		{"delete", []string{"bulk"}, true},
	}

	for _, tt := range tests {
		m := testModel("widget", tt.without...)
		if got := ShouldWireCanonical(m, tt.verb); got != tt.want {
			t.Errorf("ShouldWireCanonical(%v, %q) = %v, want %v", tt.without, tt.verb, got, tt.want)
		}
	}
}
