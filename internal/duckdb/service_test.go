package duckdb

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/sohailahmedkhan/agents/internal/apperr"
)

func TestIsWriteStatement(t *testing.T) {
	cases := []struct {
		sql   string
		write bool
	}{
		{"SELECT 1", false},
		{"select * from main.properties", false},
		{"  \n\t SELECT 1", false},
		{"WITH x AS (SELECT 1) SELECT * FROM x", false},
		{"SHOW TABLES", false},
		{"DESCRIBE main.properties", false},
		{"EXPLAIN SELECT 1", false},
		{"PRAGMA database_list", false},
		{"-- leading comment\nSELECT 1", false},
		{"/* block */ SELECT 1", false},
		{"/* block */ -- line\n  select 1", false},
		{"INSERT INTO t VALUES (1)", true},
		{"insert into t values (1)", true},
		{"  UPDATE t SET a = 1", true},
		{"DELETE FROM t", true},
		{"CREATE TABLE t (a INT)", true},
		{"DROP TABLE t", true},
		{"ALTER TABLE t ADD COLUMN b INT", true},
		{"COPY t FROM 'x.csv'", true},
		{"ATTACH 'other.duckdb'", true},
		{"-- comment only", true},
		{"", true},
		{"/* unterminated", true},
		{"-- sneaky\nDROP TABLE t", true},
		{"/* c */ InSeRt INTO t VALUES (1)", true},
	}
	for _, tc := range cases {
		if got := IsWriteStatement(tc.sql); got != tc.write {
			t.Errorf("IsWriteStatement(%q) = %v, want %v", tc.sql, got, tc.write)
		}
	}
}

func newTestService(t *testing.T, allowWrite bool) *Service {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.duckdb")
	svc, err := New(path, false, allowWrite, 100)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	return svc
}

func TestQueryRejectsWriteWithoutOptIn(t *testing.T) {
	svc := newTestService(t, false)
	variants := []string{
		"CREATE TABLE t (a INT)",
		"  create table t (a int)",
		"-- comment\nCREATE TABLE t (a INT)",
		"/* c */ CREATE TABLE t (a INT)",
	}
	for _, sql := range variants {
		_, err := svc.Query(context.Background(), sql, nil, 10)
		if !errors.Is(err, apperr.ErrPermissionDenied) {
			t.Errorf("Query(%q) error = %v, want ErrPermissionDenied", sql, err)
		}
	}
}

func TestQueryAllowWriteAndTruncation(t *testing.T) {
	svc := newTestService(t, true)
	ctx := context.Background()

	if _, err := svc.Query(ctx, "CREATE TABLE nums AS SELECT * FROM range(10)", nil, 10); err != nil {
		t.Fatalf("create: %v", err)
	}

	res, err := svc.Query(ctx, "SELECT * FROM nums ORDER BY range", nil, 5)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if res.RowCount != 5 {
		t.Fatalf("RowCount = %d, want 5", res.RowCount)
	}
	if !res.Truncated {
		t.Fatal("expected truncated result")
	}

	res, err = svc.Query(ctx, "SELECT * FROM nums", nil, 10)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if res.Truncated {
		t.Fatal("exact-limit fetch should not report truncation when no extra row exists")
	}
	if res.RowCount != 10 {
		t.Fatalf("RowCount = %d, want 10", res.RowCount)
	}
}

func TestQueryValidation(t *testing.T) {
	svc := newTestService(t, false)
	ctx := context.Background()

	if _, err := svc.Query(ctx, "   ", nil, 10); !errors.Is(err, apperr.ErrInvalidRequest) {
		t.Errorf("empty sql error = %v, want ErrInvalidRequest", err)
	}
	if _, err := svc.Query(ctx, "SELECT 1", nil, MaxResultRows+1); !errors.Is(err, apperr.ErrInvalidRequest) {
		t.Errorf("oversized limit error = %v, want ErrInvalidRequest", err)
	}
	// Zero limit falls back to the configured default.
	res, err := svc.Query(ctx, "SELECT 1", nil, 0)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if res.RowCount != 1 {
		t.Fatalf("RowCount = %d, want 1", res.RowCount)
	}
}

func TestDescribeTableNotFound(t *testing.T) {
	svc := newTestService(t, false)
	_, err := svc.DescribeTable(context.Background(), "", "missing_table")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestHealth(t *testing.T) {
	svc := newTestService(t, false)
	h, err := svc.Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if !h.Connected {
		t.Fatal("expected connected")
	}
	if h.Version == "" {
		t.Fatal("expected version string")
	}
	if h.AllowWrite {
		t.Fatal("allow_write should be false")
	}
}
