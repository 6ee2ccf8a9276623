package mcp

import (
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"testing"

	"github.com/sohailahmedkhan/agents/internal/duckdb"
	"github.com/sohailahmedkhan/agents/internal/registry"
)

func newTestServer(t *testing.T, allowWrite bool) *Server {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.duckdb")
	gateway, err := duckdb.New(path, false, allowWrite, 100)
	if err != nil {
		t.Fatalf("duckdb.New: %v", err)
	}
	t.Cleanup(func() { gateway.Close() })
	return NewServer(gateway, registry.New(), nil)
}

func seedProperties(t *testing.T, s *Server) {
	t.Helper()
	ctx := context.Background()
	stmts := []string{
		`CREATE TABLE main.properties ("kommune" VARCHAR, "Forenklet Bygningskategori" VARCHAR, "BruksarealTotalt" DOUBLE)`,
		`INSERT INTO main.properties VALUES
			('Bergen Kommune', 'Skole', 1200),
			('Bergen Kommune', 'Skole', 800),
			('Bergen Kommune', 'Kontor', 3000),
			('Oslo', 'Skole', 500)`,
	}
	for _, stmt := range stmts {
		if _, err := s.gateway.Query(ctx, stmt, nil, 1); err != nil {
			t.Fatalf("seeding: %v", err)
		}
	}
}

func TestServeProtocolExchange(t *testing.T) {
	s := newTestServer(t, false)

	serverIn, clientOut := io.Pipe()
	clientIn, serverOut := io.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Serve(ctx, serverIn, serverOut) }()

	enc := json.NewEncoder(clientOut)
	dec := json.NewDecoder(clientIn)
	exchange := func(method string, params map[string]any) Response {
		t.Helper()
		if err := enc.Encode(Request{JSONRPC: "2.0", ID: 1, Method: method, Params: params}); err != nil {
			t.Fatalf("encode %s: %v", method, err)
		}
		var resp Response
		if err := dec.Decode(&resp); err != nil {
			t.Fatalf("decode %s response: %v", method, err)
		}
		return resp
	}

	resp := exchange(MethodInitialize, nil)
	if resp.Error != nil {
		t.Fatalf("initialize error: %v", resp.Error)
	}
	var init InitializeResult
	if err := json.Unmarshal(resp.Result, &init); err != nil {
		t.Fatalf("decoding initialize: %v", err)
	}
	if init.ProtocolVersion != ProtocolVersion || init.ServerName != ServerName {
		t.Fatalf("handshake = %+v", init)
	}
	if init.ToolCount == 0 {
		t.Fatal("expected advertised tools")
	}

	resp = exchange(MethodListTools, nil)
	tools, err := decodeTools(resp.Result)
	if err != nil {
		t.Fatalf("decodeTools: %v", err)
	}
	if len(tools) != init.ToolCount {
		t.Fatalf("tools/list returned %d, handshake said %d", len(tools), init.ToolCount)
	}

	resp = exchange(MethodListResources, nil)
	resources, err := decodeResources(resp.Result)
	if err != nil {
		t.Fatalf("decodeResources: %v", err)
	}
	if len(resources) == 0 {
		t.Fatal("expected resources")
	}

	resp = exchange("bogus/method", nil)
	if resp.Error == nil || resp.Error.Code != -32601 {
		t.Fatalf("unknown method response = %+v", resp.Error)
	}
}

func TestCallToolQuery(t *testing.T) {
	s := newTestServer(t, true)
	seedProperties(t, s)

	out, err := s.callTool(context.Background(), "duckdb_query", map[string]any{
		"sql": "SELECT COUNT(*) FROM main.properties",
	})
	if err != nil {
		t.Fatalf("callTool: %v", err)
	}
	rows, ok := out["rows"].([][]any)
	if !ok || len(rows) != 1 {
		t.Fatalf("unexpected rows: %v", out["rows"])
	}
}

func TestCallToolUnknownName(t *testing.T) {
	s := newTestServer(t, false)
	_, err := s.callTool(context.Background(), "duckdb_nope", nil)
	if err == nil {
		t.Fatal("expected error for unknown tool")
	}
	if rpcErr := toRPCError(err); rpcErr.Code != -32002 {
		t.Fatalf("code = %d, want -32002", rpcErr.Code)
	}
}

func TestCallToolWriteRejected(t *testing.T) {
	s := newTestServer(t, false)
	_, err := s.callTool(context.Background(), "duckdb_query", map[string]any{
		"sql": "CREATE TABLE t (a INT)",
	})
	if err == nil {
		t.Fatal("expected permission error")
	}
	if rpcErr := toRPCError(err); rpcErr.Code != -32001 {
		t.Fatalf("code = %d, want -32001", rpcErr.Code)
	}
}

func TestOccupancyDistributionTool(t *testing.T) {
	s := newTestServer(t, true)
	seedProperties(t, s)

	out, err := s.callTool(context.Background(), "duckdb_kommune_occupancy_distribution", map[string]any{
		"kommune_name": "Bergen",
	})
	if err != nil {
		t.Fatalf("callTool: %v", err)
	}
	rows, ok := out["rows"].([]map[string]any)
	if !ok {
		t.Fatalf("unexpected rows type %T", out["rows"])
	}
	if len(rows) != 2 {
		t.Fatalf("got %d categories, want 2", len(rows))
	}
	// Kontor has the larger summed area and must come first.
	if rows[0]["occupancy_category"] != "Kontor" {
		t.Fatalf("first category = %v, want Kontor", rows[0]["occupancy_category"])
	}
}

func TestLargestOccupancyAreaTool(t *testing.T) {
	s := newTestServer(t, true)
	seedProperties(t, s)

	out, err := s.callTool(context.Background(), "duckdb_kommune_largest_occupancy_area", map[string]any{
		"kommune_name": "bergen kommune",
	})
	if err != nil {
		t.Fatalf("callTool: %v", err)
	}
	row, ok := out["row"].(map[string]any)
	if !ok {
		t.Fatalf("unexpected row: %v", out["row"])
	}
	if row["occupancy_category"] != "Kontor" {
		t.Fatalf("largest category = %v, want Kontor", row["occupancy_category"])
	}
}

func TestKommuneToolRequiresName(t *testing.T) {
	s := newTestServer(t, false)
	_, err := s.callTool(context.Background(), "duckdb_kommune_data_quality_score", map[string]any{})
	if err == nil {
		t.Fatal("expected error without kommune_name")
	}
	if rpcErr := toRPCError(err); rpcErr.Code != -32602 {
		t.Fatalf("code = %d, want -32602", rpcErr.Code)
	}
}

func TestReadResourceUnknown(t *testing.T) {
	s := newTestServer(t, false)
	_, err := s.readResource(context.Background(), "duckdb://nope")
	if err == nil {
		t.Fatal("expected error")
	}
	if rpcErr := toRPCError(err); rpcErr.Code != -32002 {
		t.Fatalf("code = %d, want -32002", rpcErr.Code)
	}
}
