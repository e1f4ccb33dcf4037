package resource

import (
	"context"
	"path/filepath"
	"testing"
)

func fileSpec(t *testing.T) Spec {
	t.Helper()
	return Spec{Kind: "sqlite", DSN: filepath.Join(t.TempDir(), "test.db")}
}

func TestProvider_AcquireAndRelease(t *testing.T) {
	p := newProvider(LevelDefault, fileSpec(t))
	defer p.Close()

	ctx := context.Background()
	h, release, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	if _, err := h.ExecContext(ctx, "CREATE TABLE t (id TEXT)"); err != nil {
		t.Fatalf("exec failed: %v", err)
	}

	release()
	// Release is idempotent.
	release()
}

func TestProvider_ReleaseRollsBackOpenTx(t *testing.T) {
	p := newProvider(LevelDefault, fileSpec(t))
	defer p.Close()

	ctx := context.Background()
	h, release, err := p.Acquire(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.ExecContext(ctx, "CREATE TABLE t (id TEXT)"); err != nil {
		t.Fatal(err)
	}

	if err := h.Begin(ctx); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if _, err := h.ExecContext(ctx, "INSERT INTO t (id) VALUES (?)", "a"); err != nil {
		t.Fatal(err)
	}
	if !h.InTx() {
		t.Fatal("handle should report an open transaction")
	}

	// Releasing with an open transaction rolls it back.
	release()
	if h.InTx() {
		t.Error("release should have closed the transaction")
	}

	h2, release2, err := p.Acquire(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer release2()

	var count int
	if err := h2.QueryRowContext(ctx, "SELECT COUNT(*) FROM t").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0 (insert rolled back)", count)
	}
}

func TestHandle_TxRouting(t *testing.T) {
	p := newProvider(LevelDefault, fileSpec(t))
	defer p.Close()

	ctx := context.Background()
	h, release, err := p.Acquire(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	if _, err := h.ExecContext(ctx, "CREATE TABLE t (id TEXT)"); err != nil {
		t.Fatal(err)
	}

	if err := h.Commit(); err == nil {
		t.Error("Commit without open transaction should fail")
	}
	if err := h.Rollback(); err == nil {
		t.Error("Rollback without open transaction should fail")
	}

	if err := h.Begin(ctx); err != nil {
		t.Fatal(err)
	}
	if err := h.Begin(ctx); err == nil {
		t.Error("nested Begin should fail")
	}
	if _, err := h.ExecContext(ctx, "INSERT INTO t (id) VALUES (?)", "a"); err != nil {
		t.Fatal(err)
	}
	if err := h.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if h.InTx() {
		t.Error("transaction should be closed after commit")
	}

	var count int
	if err := h.QueryRowContext(ctx, "SELECT COUNT(*) FROM t").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestProvider_UnsupportedKind(t *testing.T) {
	p := newProvider(LevelDefault, Spec{Kind: "voltdb", DSN: "x"})
	if _, _, err := p.Acquire(context.Background()); err == nil {
		t.Error("Acquire with unsupported kind should fail")
	}
}
