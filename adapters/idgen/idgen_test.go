package idgen

import "testing"

func TestUUID(t *testing.T) {
	g := UUID{}
	a, b := g.New(), g.New()
	if a == "" || b == "" {
		t.Fatal("ids must not be empty")
	}
	if a == b {
		t.Error("consecutive ids must differ")
	}
}

func TestSequential(t *testing.T) {
	g := NewSequential("id-")
	if got := g.New(); got != "id-1" {
		t.Errorf("first id = %q, want id-1", got)
	}
	if got := g.New(); got != "id-2" {
		t.Errorf("second id = %q, want id-2", got)
	}
	g.Reset()
	if got := g.New(); got != "id-1" {
		t.Errorf("id after reset = %q, want id-1", got)
	}
}
