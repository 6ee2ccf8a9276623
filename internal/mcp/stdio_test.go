package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sohailahmedkhan/agents/config"
	"github.com/sohailahmedkhan/agents/internal/apperr"
)

// TestStdioHelperProcess is not a real test: the stdio transport tests
// re-execute the test binary with this test selected, and it serves the
// wire protocol over its own stdin/stdout until stdin closes.
func TestStdioHelperProcess(t *testing.T) {
	if os.Getenv("STDIO_HELPER") != "1" {
		t.Skip("helper process for stdio transport tests")
	}
	dropMarker := os.Getenv("STDIO_HELPER_DROP_ONCE")
	dec := json.NewDecoder(os.Stdin)
	enc := json.NewEncoder(os.Stdout)
	for {
		var req Request
		if err := dec.Decode(&req); err != nil {
			os.Exit(0)
		}
		var result any
		switch req.Method {
		case MethodInitialize:
			result = InitializeResult{ProtocolVersion: ProtocolVersion, ServerName: "scripted-stdio", ToolCount: 1}
		case MethodListTools:
			result = map[string]any{"tools": []ToolInfo{{Name: "demo_tool"}}}
		case MethodListResources:
			result = map[string]any{"resources": []ResourceInfo{{URI: "duckdb://health"}}}
		case MethodCallTool:
			// Swallow exactly one call when a marker path is set. The
			// marker outlives this process, so the respawned child
			// answers normally.
			if dropMarker != "" {
				if _, err := os.Stat(dropMarker); errors.Is(err, os.ErrNotExist) {
					if werr := os.WriteFile(dropMarker, []byte("1"), 0o644); werr == nil {
						continue
					}
				}
			}
			result = map[string]any{"ok": true}
		default:
			result = map[string]any{}
		}
		raw, _ := json.Marshal(result)
		_ = enc.Encode(Response{JSONRPC: "2.0", ID: req.ID, Result: raw})
	}
}

func stdioConfig(t *testing.T, dropMarker string) config.TransportConfig {
	t.Helper()
	t.Setenv("STDIO_HELPER", "1")
	if dropMarker != "" {
		t.Setenv("STDIO_HELPER_DROP_ONCE", dropMarker)
	}
	return config.TransportConfig{
		Mode:    "stdio",
		Command: os.Args[0],
		Args:    []string{"-test.run=TestStdioHelperProcess"},
		Timeout: 500 * time.Millisecond,
	}
}

func TestStdioTransportNotReadyBeforeStart(t *testing.T) {
	tr := NewStdioTransport(stdioConfig(t, ""), nil)

	if _, err := tr.CallTool(context.Background(), "demo_tool", nil); !errors.Is(err, apperr.ErrNotReady) {
		t.Fatalf("CallTool error = %v, want ErrNotReady", err)
	}
	if _, err := tr.ListTools(context.Background()); !errors.Is(err, apperr.ErrNotReady) {
		t.Fatalf("ListTools error = %v, want ErrNotReady", err)
	}
}

func TestStdioTransportStartAndCall(t *testing.T) {
	tr := NewStdioTransport(stdioConfig(t, ""), nil)
	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer tr.Stop()

	tools, err := tr.ListTools(context.Background())
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if len(tools) != 1 || tools[0].Name != "demo_tool" {
		t.Fatalf("tools = %+v", tools)
	}

	result, err := tr.CallTool(context.Background(), "demo_tool", map[string]any{"k": "v"})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !result.OK() {
		t.Fatalf("result = %+v", result)
	}
	if result.Data["ok"] != true {
		t.Fatalf("data = %v", result.Data)
	}
	if result.Elapsed <= 0 {
		t.Fatal("elapsed not recorded")
	}
}

func TestStdioTransportStartFailsOnMissingCommand(t *testing.T) {
	cfg := config.TransportConfig{
		Mode:    "stdio",
		Command: filepath.Join(t.TempDir(), "no-such-binary"),
		Timeout: 500 * time.Millisecond,
	}
	tr := NewStdioTransport(cfg, nil)
	if err := tr.Start(context.Background()); err == nil {
		t.Fatal("expected Start to fail")
	}
	if _, err := tr.CallTool(context.Background(), "demo_tool", nil); !errors.Is(err, apperr.ErrNotReady) {
		t.Fatalf("CallTool after failed Start = %v, want ErrNotReady", err)
	}
}

func TestStdioTransportTimeoutRespawnsChild(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "dropped")
	tr := NewStdioTransport(stdioConfig(t, marker), nil)
	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer tr.Stop()

	result, err := tr.CallTool(context.Background(), "demo_tool", nil)
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if result.OK() {
		t.Fatal("expected timeout failure")
	}
	if !strings.Contains(result.ErrorMessage, "timeout") {
		t.Fatalf("error message %q should mention timeout", result.ErrorMessage)
	}

	// The poisoned child was killed; the next call respawns, completes
	// the handshake again, and succeeds.
	result, err = tr.CallTool(context.Background(), "demo_tool", nil)
	if err != nil {
		t.Fatalf("CallTool after respawn: %v", err)
	}
	if !result.OK() {
		t.Fatalf("result after respawn = %+v", result)
	}
}
