// Package mcp implements the tool-invocation protocol: a line-oriented
// JSON-RPC exchange with tools/list, tools/call, and resource methods,
// served over stdio (ephemeral subprocess) or TCP (persistent endpoint).
package mcp

import (
	"encoding/json"
	"time"
)

// ProtocolVersion is negotiated during the initialize handshake.
const ProtocolVersion = "2025-03-26"

const (
	MethodInitialize    = "initialize"
	MethodListTools     = "tools/list"
	MethodCallTool      = "tools/call"
	MethodListResources = "resources/list"
	MethodReadResource  = "resources/read"
)

// Request is one JSON-RPC request frame.
type Request struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      int64          `json:"id"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params,omitempty"`
}

// Response is one JSON-RPC response frame.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError carries a server-side failure.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// InitializeResult is the handshake payload.
type InitializeResult struct {
	ProtocolVersion string `json:"protocol_version"`
	ServerName      string `json:"server_name"`
	ToolCount       int    `json:"tool_count"`
}

// ToolInfo describes one advertised tool.
type ToolInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// ResourceInfo describes one advertised resource.
type ResourceInfo struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// CallResult is the outcome of one tool call. Immutable once produced.
type CallResult struct {
	Status       string         `json:"status"` // ok or error
	Data         map[string]any `json:"data,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Elapsed      time.Duration  `json:"elapsed"`
}

// OK reports whether the call succeeded.
func (r CallResult) OK() bool { return r.Status == "ok" }

func okResult(data map[string]any, elapsed time.Duration) CallResult {
	return CallResult{Status: "ok", Data: data, Elapsed: elapsed}
}

func errResult(msg string, elapsed time.Duration) CallResult {
	return CallResult{Status: "error", ErrorMessage: msg, Elapsed: elapsed}
}
