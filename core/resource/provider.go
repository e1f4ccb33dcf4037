// Package resource tracks resource (database/engine) bindings at four
// precedence levels and hands out scoped connection handles. The
// resolver answers "which engine backs this call" for a model and
// optionally a specific operation alias.
package resource

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// Spec describes a backing resource.
type Spec struct {
	// Kind names the engine (e.g., "sqlite").
	Kind string `yaml:"kind"`

	// DSN is the connection string or file path.
	DSN string `yaml:"dsn"`

	// Async indicates the engine is used through an async driver.
	// Informational; the sqlite driver is synchronous.
	Async bool `yaml:"async,omitempty"`

	// Params carries extra connection parameters.
	Params map[string]string `yaml:"params,omitempty"`
}

// Level identifies the precedence level a provider was registered at.
type Level string

const (
	LevelOp      Level = "op"
	LevelTable   Level = "table"
	LevelAPI     Level = "api"
	LevelDefault Level = "default"
)

// Handle is a scoped connection to a backing resource. It is owned
// exclusively by one in-flight execution context; statements run on
// the open transaction when one exists.
type Handle interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row

	// Begin opens a transaction on the handle.
	Begin(ctx context.Context) error

	// Commit commits the open transaction.
	Commit() error

	// Rollback aborts the open transaction.
	Rollback() error

	// InTx reports whether a transaction is open.
	InTx() bool
}

// Provider is a resolved, concrete binding to a backing resource.
// A distinct Provider object exists per precedence level even when
// connection parameters are equal, so identity-based assertions in
// calling code are meaningful.
type Provider struct {
	level Level
	spec  Spec

	mu sync.Mutex
	db *sql.DB
}

func newProvider(level Level, spec Spec) *Provider {
	return &Provider{level: level, spec: spec}
}

// Level returns the precedence level this provider was registered at.
func (p *Provider) Level() Level { return p.level }

// Spec returns the provider's resource descriptor.
func (p *Provider) Spec() Spec { return p.spec }

// Acquire returns a connection handle plus an idempotent release
// callback. The pool is opened lazily on first acquisition. The
// caller must invoke release exactly once on every path; extra calls
// are no-ops.
func (p *Provider) Acquire(ctx context.Context) (Handle, func(), error) {
	db, err := p.pool()
	if err != nil {
		return nil, nil, err
	}

	h := &sqlHandle{db: db}
	var once sync.Once
	release := func() {
		once.Do(func() {
			// An abandoned transaction would leak a write lock; roll
			// it back before the handle goes away.
			if h.InTx() {
				_ = h.Rollback()
			}
			h.closed = true
		})
	}
	return h, release, nil
}

// Close closes the underlying pool.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.db == nil {
		return nil
	}
	err := p.db.Close()
	p.db = nil
	return err
}

func (p *Provider) pool() (*sql.DB, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.db != nil {
		return p.db, nil
	}

	db, err := open(p.spec)
	if err != nil {
		return nil, err
	}
	p.db = db
	return db, nil
}

func open(spec Spec) (*sql.DB, error) {
	switch spec.Kind {
	case "sqlite", "sqlite3":
		return openSQLite(spec.DSN)
	default:
		return nil, fmt.Errorf("unsupported resource kind %q", spec.Kind)
	}
}

func openSQLite(dsn string) (*sql.DB, error) {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite3", dsn+sep+"_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	return db, nil
}

// sqlHandle routes statements through the open transaction when one
// exists, otherwise straight to the pool.
type sqlHandle struct {
	db     *sql.DB
	tx     *sql.Tx
	closed bool
}

func (h *sqlHandle) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if h.tx != nil {
		return h.tx.ExecContext(ctx, query, args...)
	}
	return h.db.ExecContext(ctx, query, args...)
}

func (h *sqlHandle) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if h.tx != nil {
		return h.tx.QueryContext(ctx, query, args...)
	}
	return h.db.QueryContext(ctx, query, args...)
}

func (h *sqlHandle) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	if h.tx != nil {
		return h.tx.QueryRowContext(ctx, query, args...)
	}
	return h.db.QueryRowContext(ctx, query, args...)
}

func (h *sqlHandle) Begin(ctx context.Context) error {
	if h.tx != nil {
		return fmt.Errorf("transaction already open")
	}
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	h.tx = tx
	return nil
}

func (h *sqlHandle) Commit() error {
	if h.tx == nil {
		return fmt.Errorf("no open transaction")
	}
	err := h.tx.Commit()
	h.tx = nil
	return err
}

func (h *sqlHandle) Rollback() error {
	if h.tx == nil {
		return fmt.Errorf("no open transaction")
	}
	err := h.tx.Rollback()
	h.tx = nil
	return err
}

func (h *sqlHandle) InTx() bool { return h.tx != nil }
