// Package storage provides generic per-model CRUD over a SQL handle.
// Tables and statements are derived from model schemas; engine
// failures are re-wrapped with the offending statement text and
// parameters attached as structured context.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/artpar/opkernel/core/schema"
)

// Querier is the statement surface storage needs from a resource
// handle. Statements run on the open transaction when the handle has
// one.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// IDGenerator generates record identifiers.
type IDGenerator interface {
	New() string
}

// StatementError wraps an engine failure with the statement and its
// parameters. The detail is for logs and diagnostics only; callers
// surface a generic storage failure.
type StatementError struct {
	SQL  string
	Args []any
	Err  error
}

func (e *StatementError) Error() string {
	return fmt.Sprintf("statement failed: %v (sql=%q args=%v)", e.Err, e.SQL, e.Args)
}

func (e *StatementError) Unwrap() error { return e.Err }

// NotFoundError reports a lookup that matched no record. Distinct
// from a validation failure.
type NotFoundError struct {
	Model  string
	Lookup string
	Value  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s=%q", e.Model, e.Lookup, e.Value)
}

// ListOptions configures list queries.
type ListOptions struct {
	Limit     int
	Offset    int
	Filters   map[string]any
	OrderBy   string
	OrderDesc bool
}

// Store performs schema-derived CRUD for registered models.
type Store struct {
	models func(name string) (schema.Model, bool)
	ids    IDGenerator
}

// New creates a store. The lookup function resolves model schemas by
// name (typically registry.Model).
func New(models func(name string) (schema.Model, bool), ids IDGenerator) *Store {
	return &Store{models: models, ids: ids}
}

// StoredColumn returns the column a field persists to. Secret fields
// store a digest under a derived column name.
func StoredColumn(name string, f schema.Field) string {
	if f.Type == schema.FieldTypeSecret {
		return name + "_digest"
	}
	return name
}

// EnsureTable creates the model's table if it does not exist.
func (s *Store) EnsureTable(ctx context.Context, q Querier, m schema.Model) error {
	createSQL := buildCreateTableSQL(m)
	if _, err := q.ExecContext(ctx, createSQL); err != nil {
		return &StatementError{SQL: createSQL, Err: err}
	}
	return nil
}

// Insert stores a new record and returns its id.
func (s *Store) Insert(ctx context.Context, q Querier, model string, data map[string]any) (string, error) {
	m, ok := s.models(model)
	if !ok {
		return "", fmt.Errorf("model %q not registered", model)
	}

	id, ok := data["id"].(string)
	if !ok || id == "" {
		id = s.ids.New()
	}

	columns := []string{"id"}
	placeholders := []string{"?"}
	values := []any{id}

	for _, name := range sortedFieldNames(m.Fields) {
		f := m.Fields[name]
		if !f.IsStored() {
			continue
		}
		col := StoredColumn(name, f)
		val, exists := data[col]
		if !exists {
			val, exists = data[name]
		}
		if !exists {
			if f.Default == nil {
				continue
			}
			val = f.Default
		}
		columns = append(columns, col)
		placeholders = append(placeholders, "?")
		values = append(values, val)
	}

	insertSQL := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		tableName(m), strings.Join(columns, ", "), strings.Join(placeholders, ", "),
	)
	if _, err := q.ExecContext(ctx, insertSQL, values...); err != nil {
		return "", &StatementError{SQL: insertSQL, Args: values, Err: err}
	}
	return id, nil
}

// Get retrieves one record by a lookup column.
func (s *Store) Get(ctx context.Context, q Querier, model, lookup, value string) (map[string]any, error) {
	m, ok := s.models(model)
	if !ok {
		return nil, fmt.Errorf("model %q not registered", model)
	}

	columns := storedColumns(m)
	querySQL := fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s = ? LIMIT 1",
		strings.Join(columns, ", "), tableName(m), lookup,
	)

	rows, err := q.QueryContext(ctx, querySQL, value)
	if err != nil {
		return nil, &StatementError{SQL: querySQL, Args: []any{value}, Err: err}
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, &StatementError{SQL: querySQL, Args: []any{value}, Err: err}
		}
		return nil, &NotFoundError{Model: model, Lookup: lookup, Value: value}
	}

	record, err := scanRecord(rows, columns, m)
	if err != nil {
		return nil, &StatementError{SQL: querySQL, Args: []any{value}, Err: err}
	}
	return record, nil
}

// List retrieves records with pagination and equality filters.
func (s *Store) List(ctx context.Context, q Querier, model string, opts ListOptions) ([]map[string]any, int64, error) {
	m, ok := s.models(model)
	if !ok {
		return nil, 0, fmt.Errorf("model %q not registered", model)
	}

	if opts.Limit <= 0 {
		opts.Limit = 100
	}

	var where []string
	var args []any
	for _, name := range sortedFilterNames(opts.Filters) {
		if !knownColumn(m, name) {
			return nil, 0, fmt.Errorf("unknown filter column %q on model %q", name, model)
		}
		where = append(where, name+" = ?")
		args = append(args, opts.Filters[name])
	}
	whereSQL := ""
	if len(where) > 0 {
		whereSQL = " WHERE " + strings.Join(where, " AND ")
	}

	countSQL := "SELECT COUNT(*) FROM " + tableName(m) + whereSQL
	var count int64
	if err := q.QueryRowContext(ctx, countSQL, args...).Scan(&count); err != nil {
		return nil, 0, &StatementError{SQL: countSQL, Args: args, Err: err}
	}

	// Ordering and filter names reach the statement text, so both are
	// restricted to the model's stored columns; anything else falls
	// back to the id order.
	orderBy := "id"
	if opts.OrderBy != "" && knownColumn(m, opts.OrderBy) {
		orderBy = opts.OrderBy
	}
	orderSQL := " ORDER BY " + orderBy
	if opts.OrderDesc {
		orderSQL += " DESC"
	}

	columns := storedColumns(m)
	listSQL := fmt.Sprintf(
		"SELECT %s FROM %s%s%s LIMIT ? OFFSET ?",
		strings.Join(columns, ", "), tableName(m), whereSQL, orderSQL,
	)
	listArgs := append(append([]any{}, args...), opts.Limit, opts.Offset)

	rows, err := q.QueryContext(ctx, listSQL, listArgs...)
	if err != nil {
		return nil, 0, &StatementError{SQL: listSQL, Args: listArgs, Err: err}
	}
	defer rows.Close()

	var records []map[string]any
	for rows.Next() {
		record, err := scanRecord(rows, columns, m)
		if err != nil {
			return nil, 0, &StatementError{SQL: listSQL, Args: listArgs, Err: err}
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, &StatementError{SQL: listSQL, Args: listArgs, Err: err}
	}

	return records, count, nil
}

// Update modifies the record with the given id.
func (s *Store) Update(ctx context.Context, q Querier, model, id string, data map[string]any) error {
	m, ok := s.models(model)
	if !ok {
		return fmt.Errorf("model %q not registered", model)
	}

	var sets []string
	var values []any
	for _, name := range sortedFieldNames(m.Fields) {
		f := m.Fields[name]
		if !f.IsStored() {
			continue
		}
		col := StoredColumn(name, f)
		val, exists := data[col]
		if !exists {
			val, exists = data[name]
		}
		if !exists {
			continue
		}
		sets = append(sets, col+" = ?")
		values = append(values, val)
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")

	updateSQL := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", tableName(m), strings.Join(sets, ", "))
	values = append(values, id)

	res, err := q.ExecContext(ctx, updateSQL, values...)
	if err != nil {
		return &StatementError{SQL: updateSQL, Args: values, Err: err}
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &NotFoundError{Model: model, Lookup: "id", Value: id}
	}
	return nil
}

// Delete removes the record with the given id.
func (s *Store) Delete(ctx context.Context, q Querier, model, id string) error {
	m, ok := s.models(model)
	if !ok {
		return fmt.Errorf("model %q not registered", model)
	}

	deleteSQL := "DELETE FROM " + tableName(m) + " WHERE id = ?"
	res, err := q.ExecContext(ctx, deleteSQL, id)
	if err != nil {
		return &StatementError{SQL: deleteSQL, Args: []any{id}, Err: err}
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &NotFoundError{Model: model, Lookup: "id", Value: id}
	}
	return nil
}

// Clear removes all records of a model and returns the count.
func (s *Store) Clear(ctx context.Context, q Querier, model string) (int64, error) {
	m, ok := s.models(model)
	if !ok {
		return 0, fmt.Errorf("model %q not registered", model)
	}

	clearSQL := "DELETE FROM " + tableName(m)
	res, err := q.ExecContext(ctx, clearSQL)
	if err != nil {
		return 0, &StatementError{SQL: clearSQL, Err: err}
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func tableName(m schema.Model) string {
	return m.Name + "s"
}

func buildCreateTableSQL(m schema.Model) string {
	columns := []string{"id TEXT PRIMARY KEY"}

	for _, name := range sortedFieldNames(m.Fields) {
		f := m.Fields[name]
		if !f.IsStored() {
			continue
		}
		col := StoredColumn(name, f) + " " + f.SQLType()
		if f.Unique {
			col += " UNIQUE"
		}
		columns = append(columns, col)
	}

	columns = append(columns,
		"created_at DATETIME DEFAULT CURRENT_TIMESTAMP",
		"updated_at DATETIME DEFAULT CURRENT_TIMESTAMP",
	)

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", tableName(m), strings.Join(columns, ", "))
}

// knownColumn reports whether name is one of the model's stored
// columns (or the engine-managed id and timestamp columns).
func knownColumn(m schema.Model, name string) bool {
	switch name {
	case "id", "created_at", "updated_at":
		return true
	}
	for field, f := range m.Fields {
		if f.IsStored() && StoredColumn(field, f) == name {
			return true
		}
	}
	return false
}

func storedColumns(m schema.Model) []string {
	columns := []string{"id"}
	for _, name := range sortedFieldNames(m.Fields) {
		f := m.Fields[name]
		if !f.IsStored() {
			continue
		}
		columns = append(columns, StoredColumn(name, f))
	}
	columns = append(columns, "created_at", "updated_at")
	return columns
}

func scanRecord(rows *sql.Rows, columns []string, m schema.Model) (map[string]any, error) {
	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}

	record := make(map[string]any, len(columns))
	for i, col := range columns {
		record[col] = normalizeValue(values[i], columnType(col, m))
	}
	return record, nil
}

func columnType(col string, m schema.Model) schema.FieldType {
	for name, f := range m.Fields {
		if StoredColumn(name, f) == col {
			return f.Type
		}
	}
	return schema.FieldTypeString
}

func normalizeValue(v any, t schema.FieldType) any {
	switch val := v.(type) {
	case []byte:
		if t == schema.FieldTypeSecret {
			return val
		}
		return string(val)
	case int64:
		if t == schema.FieldTypeBool {
			return val != 0
		}
		return val
	}
	return v
}

func sortedFieldNames(fields map[string]schema.Field) []string {
	out := make([]string, 0, len(fields))
	for name := range fields {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func sortedFilterNames(filters map[string]any) []string {
	out := make([]string, 0, len(filters))
	for name := range filters {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
