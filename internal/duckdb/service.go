// Package duckdb wraps the embedded DuckDB store behind a safety gateway.
// Statements are classified as read or write before they reach the engine,
// and write execution is serialized process-wide.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/sohailahmedkhan/agents/internal/apperr"
)

const (
	// MaxResultRows is the hard cap on rows returned by any query.
	MaxResultRows = 2000
	// DefaultResultRows is used when the caller does not request a limit.
	DefaultResultRows = 1000
)

// readPrefixes are the leading keywords accepted without allow_write.
var readPrefixes = map[string]struct{}{
	"select":   {},
	"with":     {},
	"show":     {},
	"describe": {},
	"pragma":   {},
	"explain":  {},
}

// Service is the query safety gateway over one DuckDB database file.
type Service struct {
	path       string
	readOnly   bool
	allowWrite bool
	rowLimit   int

	db      *sql.DB
	writeMu sync.Mutex
}

// Health reports connection status and engine version.
type Health struct {
	Connected  bool   `json:"connected"`
	Path       string `json:"db_path"`
	ReadOnly   bool   `json:"read_only"`
	AllowWrite bool   `json:"allow_write"`
	Version    string `json:"version"`
}

// TableRef identifies one user-visible table.
type TableRef struct {
	Schema string `json:"schema"`
	Name   string `json:"name"`
}

// Column describes one table column.
type Column struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// Result is a bounded query result with loosely typed row values.
type Result struct {
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	RowCount  int      `json:"row_count"`
	Truncated bool     `json:"truncated"`
}

// New opens the database file and returns a gateway around it. With
// read_only the handle itself refuses mutation; allow_write additionally
// gates write statements at classification time.
func New(path string, readOnly, allowWrite bool, rowLimit int) (*Service, error) {
	if rowLimit < 1 || rowLimit > MaxResultRows {
		rowLimit = DefaultResultRows
	}
	if !readOnly {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}
	dsn := path
	if readOnly {
		dsn += "?access_mode=read_only"
	}
	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening duckdb at %s: %w", path, err)
	}
	return &Service{
		path:       path,
		readOnly:   readOnly,
		allowWrite: allowWrite,
		rowLimit:   rowLimit,
		db:         db,
	}, nil
}

// Close releases the underlying handle.
func (s *Service) Close() error { return s.db.Close() }

// RowLimit returns the configured default row cap.
func (s *Service) RowLimit() int { return s.rowLimit }

// Health returns connection status and version metadata.
func (s *Service) Health(ctx context.Context) (Health, error) {
	var version string
	if err := s.db.QueryRowContext(ctx, "SELECT version()").Scan(&version); err != nil {
		return Health{}, fmt.Errorf("%w: %v", apperr.ErrUpstream, err)
	}
	return Health{
		Connected:  true,
		Path:       s.path,
		ReadOnly:   s.readOnly,
		AllowWrite: s.allowWrite,
		Version:    version,
	}, nil
}

// ListTables lists user-visible schema/table pairs.
func (s *Service) ListTables(ctx context.Context) ([]TableRef, error) {
	const q = `
		SELECT table_schema, table_name
		FROM information_schema.tables
		WHERE table_schema NOT IN ('information_schema', 'pg_catalog')
		ORDER BY table_schema, table_name`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrUpstream, err)
	}
	defer rows.Close()

	var out []TableRef
	for rows.Next() {
		var t TableRef
		if err := rows.Scan(&t.Schema, &t.Name); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DescribeTable lists the columns of one table.
func (s *Service) DescribeTable(ctx context.Context, schema, table string) ([]Column, error) {
	if schema == "" {
		schema = "main"
	}
	const q = `
		SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = ? AND table_name = ?
		ORDER BY ordinal_position`
	rows, err := s.db.QueryContext(ctx, q, schema, table)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrUpstream, err)
	}
	defer rows.Close()

	var out []Column
	for rows.Next() {
		var c Column
		var nullable string
		if err := rows.Scan(&c.Name, &c.Type, &nullable); err != nil {
			return nil, err
		}
		c.Nullable = strings.EqualFold(nullable, "YES")
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: table %s.%s", apperr.ErrNotFound, schema, table)
	}
	return out, nil
}

// Query executes one SQL statement with the configured safety rules. Write
// statements fail with ErrPermissionDenied before reaching the engine unless
// allow_write is set. Results are capped at limit rows with a truncated flag.
func (s *Service) Query(ctx context.Context, sqlText string, params []any, limit int) (*Result, error) {
	statement := strings.TrimSpace(sqlText)
	if statement == "" {
		return nil, fmt.Errorf("%w: sql is required", apperr.ErrInvalidRequest)
	}
	if limit <= 0 {
		limit = s.rowLimit
	}
	if limit > MaxResultRows {
		return nil, fmt.Errorf("%w: limit must be in range [1, %d]", apperr.ErrInvalidRequest, MaxResultRows)
	}

	write := IsWriteStatement(statement)
	if write && !s.allowWrite {
		return nil, fmt.Errorf("%w: write SQL is disabled; set store.allow_write to enable", apperr.ErrPermissionDenied)
	}
	if write {
		// Single-writer discipline; reads go through unserialized.
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
	}

	rows, err := s.db.QueryContext(ctx, statement, params...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", apperr.ErrTimeout, ctx.Err())
		}
		return nil, fmt.Errorf("%w: %v", apperr.ErrUpstream, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrUpstream, err)
	}
	res := &Result{Columns: cols, Rows: [][]any{}}
	if len(cols) == 0 {
		return res, nil
	}

	for rows.Next() {
		if len(res.Rows) == limit {
			res.Truncated = true
			break
		}
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range values {
			values[i] = looseValue(v)
		}
		res.Rows = append(res.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrUpstream, err)
	}
	res.RowCount = len(res.Rows)
	return res, nil
}

// IsWriteStatement classifies SQL by its leading keyword, skipping
// whitespace and comments. Anything outside the read set counts as write.
func IsWriteStatement(sqlText string) bool {
	rest := stripLeading(sqlText)
	var b strings.Builder
	for _, r := range rest {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_' {
			b.WriteRune(r)
			continue
		}
		break
	}
	keyword := strings.ToLower(b.String())
	if keyword == "" {
		return true
	}
	_, ok := readPrefixes[keyword]
	return !ok
}

// stripLeading removes leading whitespace, line comments, and block
// comments so the first real keyword can be inspected.
func stripLeading(s string) string {
	for {
		s = strings.TrimLeft(s, " \t\r\n")
		switch {
		case strings.HasPrefix(s, "--"):
			if i := strings.IndexByte(s, '\n'); i >= 0 {
				s = s[i+1:]
			} else {
				return ""
			}
		case strings.HasPrefix(s, "/*"):
			if i := strings.Index(s, "*/"); i >= 0 {
				s = s[i+2:]
			} else {
				return ""
			}
		default:
			return s
		}
	}
}

// looseValue normalizes driver values into JSON-friendly types.
func looseValue(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	default:
		return v
	}
}
