package opview

import (
	"testing"

	"github.com/artpar/opkernel/core/registry"
	"github.com/artpar/opkernel/core/schema"
)

type plainHasher struct{}

func (plainHasher) Hash(plaintext string) ([]byte, error) { return []byte(plaintext), nil }

func fixedGenerator() (string, error) { return "raw-token", nil }

func widgetModel() schema.Model {
	return schema.Model{
		Name: "widget",
		Fields: map[string]schema.Field{
			"name":     {Type: schema.FieldTypeString, Required: true, Lookup: true},
			"status":   {Type: schema.FieldTypeEnum, Values: []string{"active", "retired"}, Default: "active"},
			"quantity": {Type: schema.FieldTypeInt},
			"tags":     {Type: schema.FieldTypeJSON},
			"access_token": {
				Type:   schema.FieldTypeSecret,
				Paired: true,
			},
		},
	}
}

func newCompiler(t *testing.T, m schema.Model) (*Compiler, *registry.Registry) {
	t.Helper()
	reg := registry.New()
	if err := reg.RegisterModel(m); err != nil {
		t.Fatal(err)
	}
	return NewCompiler(reg.Lookup, reg.Model, plainHasher{}, fixedGenerator), reg
}

func TestBuild_CompilesCreateView(t *testing.T) {
	c, _ := newCompiler(t, widgetModel())

	view, err := c.Build("widget", "create")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if !view.RequireAll {
		t.Error("create view should require all required fields")
	}
	if _, ok := view.SchemaIn["name"]; !ok {
		t.Error("name missing from SchemaIn")
	}
	if _, ok := view.SchemaIn["access_token"]; ok {
		t.Error("secret fields never appear in SchemaIn")
	}

	out := make(map[string]bool)
	for _, name := range view.SchemaOut {
		out[name] = true
	}
	for _, want := range []string{"name", "status", "id", "created_at", "updated_at"} {
		if !out[want] {
			t.Errorf("SchemaOut missing %q", want)
		}
	}
	if out["access_token"] {
		t.Error("secret fields never appear in SchemaOut")
	}

	if len(view.Paired) != 1 {
		t.Fatalf("len(Paired) = %d, want 1", len(view.Paired))
	}
	if view.Paired[0].Field != "access_token" || view.Paired[0].Column != "access_token_digest" {
		t.Errorf("Paired[0] = %+v", view.Paired[0])
	}
	if !view.CreateType() {
		t.Error("create view should be create-type")
	}

	if len(view.ToStored) != 1 || view.ToStored[0].Field != "tags" {
		t.Errorf("ToStored = %+v, want one transform for tags", view.ToStored)
	}
}

func TestBuild_ReadLikeTargetsAcceptNoInput(t *testing.T) {
	c, _ := newCompiler(t, widgetModel())

	for _, alias := range []string{"read", "get", "delete", "list", "clear", "bulk_delete"} {
		view, err := c.Build("widget", alias)
		if err != nil {
			t.Fatalf("Build(%q) error = %v", alias, err)
		}
		if len(view.SchemaIn) != 0 {
			t.Errorf("%q SchemaIn = %v, want empty", alias, view.InOrder)
		}
	}

	update, err := c.Build("widget", "update")
	if err != nil {
		t.Fatal(err)
	}
	if len(update.SchemaIn) == 0 {
		t.Error("update should accept input")
	}
	if update.RequireAll {
		t.Error("update should not require all fields")
	}
}

func TestBuild_MemoizedIdentity(t *testing.T) {
	c, _ := newCompiler(t, widgetModel())

	first, err := c.Build("widget", "create")
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.Build("widget", "create")
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("repeated Build should return the identical view object")
	}

	other, err := c.Build("widget", "update")
	if err != nil {
		t.Fatal(err)
	}
	if other == first {
		t.Error("distinct aliases must compile distinct views")
	}

	c.ClearCache()
	rebuilt, err := c.Build("widget", "create")
	if err != nil {
		t.Fatal(err)
	}
	if rebuilt == first {
		t.Error("ClearCache should force a fresh build")
	}
}

func TestBuild_UnknownOperation(t *testing.T) {
	c, _ := newCompiler(t, widgetModel())
	if _, err := c.Build("widget", "teleport"); err == nil {
		t.Error("Build for unregistered alias should fail")
	}
	if _, err := c.Build("gadget", "create"); err == nil {
		t.Error("Build for unknown model should fail")
	}
}

func TestBuild_VirtualFields(t *testing.T) {
	m := widgetModel()
	m.Fields["display"] = schema.Field{Type: schema.FieldTypeString, Virtual: "display_name"}

	c, _ := newCompiler(t, m)

	// Unknown producer is a compile error.
	if _, err := c.Build("widget", "read"); err == nil {
		t.Fatal("Build with unregistered producer should fail")
	}

	c.RegisterProducer("display_name", func(record map[string]any) any {
		name, _ := record["name"].(string)
		return "Widget: " + name
	})
	c.ClearCache()

	view, err := c.Build("widget", "read")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(view.Virtuals) != 1 {
		t.Fatalf("len(Virtuals) = %d, want 1", len(view.Virtuals))
	}
	got := view.Virtuals[0].Produce(map[string]any{"name": "Alpha"})
	if got != "Widget: Alpha" {
		t.Errorf("Produce() = %v", got)
	}
}
