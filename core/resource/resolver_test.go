package resource

import (
	"errors"
	"testing"
)

func memSpec() Spec {
	return Spec{Kind: "sqlite", DSN: ":memory:"}
}

func TestResolveProvider_Precedence(t *testing.T) {
	r := NewResolver()

	def := r.RegisterDefault(memSpec())
	api := r.RegisterAPI("inventory", memSpec())
	tbl := r.RegisterTable("widget", memSpec())
	op := r.RegisterOp("widget", "create", memSpec())

	// Identical specs still yield distinct provider objects per level.
	if def == api || api == tbl || tbl == op {
		t.Fatal("providers at different levels must be distinct objects")
	}

	tests := []struct {
		name  string
		model string
		api   string
		alias string
		want  *Provider
		level Level
	}{
		{"op wins over everything", "widget", "inventory", "create", op, LevelOp},
		{"table wins without op binding", "widget", "inventory", "update", tbl, LevelTable},
		{"api wins without table binding", "gadget", "inventory", "create", api, LevelAPI},
		{"default is the last resort", "gadget", "", "create", def, LevelDefault},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.ResolveProvider(tt.model, tt.api, tt.alias)
			if err != nil {
				t.Fatalf("ResolveProvider() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("resolved level %s, want %s", got.Level(), tt.level)
			}
		})
	}
}

func TestResolveProvider_NoProvider(t *testing.T) {
	r := NewResolver()

	_, err := r.ResolveProvider("widget", "inventory", "create")
	var noProv *NoProviderError
	if !errors.As(err, &noProv) {
		t.Fatalf("error = %v, want NoProviderError", err)
	}
	if noProv.Model != "widget" || noProv.API != "inventory" || noProv.Alias != "create" {
		t.Errorf("NoProviderError = %+v", noProv)
	}
}

func TestResolveProvider_FallthroughAfterUnregister(t *testing.T) {
	r := NewResolver()
	def := r.RegisterDefault(memSpec())
	r.RegisterTable("widget", memSpec())

	r.UnregisterTable("widget")

	got, err := r.ResolveProvider("widget", "", "create")
	if err != nil {
		t.Fatalf("ResolveProvider() error = %v", err)
	}
	if got != def {
		t.Error("lookup should fall through to default after unregister")
	}

	r.UnregisterDefault()
	if _, err := r.ResolveProvider("widget", "", "create"); err == nil {
		t.Error("lookup with no bindings should fail")
	}
}

func TestHasAny(t *testing.T) {
	r := NewResolver()
	if r.HasAny() {
		t.Error("empty resolver should report no providers")
	}
	r.RegisterOp("widget", "create", memSpec())
	if !r.HasAny() {
		t.Error("resolver with an op binding should report providers")
	}
	r.Clear()
	if r.HasAny() {
		t.Error("cleared resolver should report no providers")
	}
}

func TestRegister_ReplacesBinding(t *testing.T) {
	r := NewResolver()
	first := r.RegisterDefault(memSpec())
	second := r.RegisterDefault(memSpec())

	if first == second {
		t.Fatal("re-registering must create a new provider object")
	}
	got, err := r.ResolveProvider("widget", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if got != second {
		t.Error("lookup should resolve the latest binding")
	}
}
