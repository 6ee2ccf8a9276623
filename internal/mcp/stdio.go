package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os/exec"
	"sync"
	"time"

	"github.com/sohailahmedkhan/agents/config"
	"github.com/sohailahmedkhan/agents/internal/apperr"
)

// StdioTransport runs the tool server as a child process and speaks the
// protocol over its stdin/stdout. The process is spawned on Start and
// respawned lazily after a poisoned exchange.
type StdioTransport struct {
	command string
	args    []string
	timeout time.Duration
	logger  *log.Logger

	mu      sync.Mutex
	started bool
	cmd     *exec.Cmd
	conn    *rpcConn
	tools   []ToolInfo
}

// NewStdioTransport builds the transport without spawning anything.
func NewStdioTransport(cfg config.TransportConfig, logger *log.Logger) *StdioTransport {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &StdioTransport{
		command: cfg.Command,
		args:    cfg.Args,
		timeout: timeout,
		logger:  logger,
	}
}

// Start spawns the child, performs the handshake, and caches the tool
// catalog.
func (t *StdioTransport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return nil
	}
	if err := t.spawnLocked(ctx); err != nil {
		return err
	}
	tools, err := withListRetry(ctx, func(ctx context.Context) ([]ToolInfo, error) {
		conn, err := t.connLocked(ctx)
		if err != nil {
			return nil, err
		}
		callCtx, cancel := context.WithTimeout(ctx, t.timeout)
		defer cancel()
		raw, err := conn.roundTrip(callCtx, MethodListTools, nil)
		if err != nil {
			t.recycleLocked()
			return nil, err
		}
		return decodeTools(raw)
	})
	if err != nil {
		t.teardownLocked()
		return fmt.Errorf("fetching tool catalog: %w", err)
	}
	t.tools = tools
	t.started = true
	t.logger.Printf("[MCP] stdio transport ready, %d tools", len(tools))
	return nil
}

// Stop kills the child process.
func (t *StdioTransport) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.started = false
	t.teardownLocked()
	return nil
}

// spawnLocked starts the child and completes the initialize handshake.
func (t *StdioTransport) spawnLocked(ctx context.Context) error {
	cmd := exec.Command(t.command, t.args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("%w: opening stdin pipe: %v", apperr.ErrUpstream, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("%w: opening stdout pipe: %v", apperr.ErrUpstream, err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: starting %s: %v", apperr.ErrUpstream, t.command, err)
	}

	conn := newRPCConn(stdout, stdin, stdin)
	initCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	res, err := conn.initialize(initCtx)
	if err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return fmt.Errorf("handshake with %s: %w", t.command, err)
	}
	t.cmd = cmd
	t.conn = conn
	t.logger.Printf("[MCP] connected to %s (protocol %s)", res.ServerName, res.ProtocolVersion)
	return nil
}

func (t *StdioTransport) teardownLocked() {
	if t.conn != nil {
		_ = t.conn.Close()
		t.conn = nil
	}
	if t.cmd != nil && t.cmd.Process != nil {
		_ = t.cmd.Process.Kill()
		_ = t.cmd.Wait()
	}
	t.cmd = nil
}

// recycleLocked discards the poisoned child; the next call respawns.
func (t *StdioTransport) recycleLocked() {
	t.logger.Printf("[MCP] recycling stdio child process")
	t.teardownLocked()
}

// connLocked returns a live conn, respawning if needed.
func (t *StdioTransport) connLocked(ctx context.Context) (*rpcConn, error) {
	if t.conn != nil && !t.conn.Broken() {
		return t.conn, nil
	}
	t.teardownLocked()
	if err := t.spawnLocked(ctx); err != nil {
		return nil, err
	}
	return t.conn, nil
}

func (t *StdioTransport) ensureStarted() error {
	if !t.started {
		return fmt.Errorf("%w: transport not started", apperr.ErrNotReady)
	}
	return nil
}

// ListTools returns the catalog cached at Start.
func (t *StdioTransport) ListTools(_ context.Context) ([]ToolInfo, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.ensureStarted(); err != nil {
		return nil, err
	}
	out := make([]ToolInfo, len(t.tools))
	copy(out, t.tools)
	return out, nil
}

func (t *StdioTransport) ListResources(ctx context.Context) ([]ResourceInfo, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.ensureStarted(); err != nil {
		return nil, err
	}
	return withListRetry(ctx, func(ctx context.Context) ([]ResourceInfo, error) {
		raw, err := t.roundTripLocked(ctx, MethodListResources, nil)
		if err != nil {
			return nil, err
		}
		return decodeResources(raw)
	})
}

func (t *StdioTransport) ReadResource(ctx context.Context, uri string) (map[string]any, error) {
	if uri == "" {
		return nil, fmt.Errorf("%w: uri is required", apperr.ErrInvalidRequest)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.ensureStarted(); err != nil {
		return nil, err
	}
	raw, err := t.roundTripLocked(ctx, MethodReadResource, map[string]any{"uri": uri})
	if err != nil {
		return nil, err
	}
	return decodeObject(raw)
}

// CallTool executes one tool. Failures are folded into the CallResult;
// the error return fires only on misuse.
func (t *StdioTransport) CallTool(ctx context.Context, name string, args map[string]any) (CallResult, error) {
	if name == "" {
		return CallResult{}, fmt.Errorf("%w: tool name is required", apperr.ErrInvalidRequest)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.ensureStarted(); err != nil {
		return CallResult{}, err
	}
	start := time.Now()
	raw, err := t.roundTripLocked(ctx, MethodCallTool, map[string]any{
		"name":      name,
		"arguments": args,
	})
	return callResult(raw, err, time.Since(start)), nil
}

// roundTripLocked performs one exchange under the transport lock with the
// configured per-call timeout. A poisoned conn is torn down so the next
// caller gets a fresh child.
func (t *StdioTransport) roundTripLocked(ctx context.Context, method string, params map[string]any) (json.RawMessage, error) {
	conn, err := t.connLocked(ctx)
	if err != nil {
		return nil, err
	}
	callCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	raw, err := conn.roundTrip(callCtx, method, params)
	if err != nil && conn.Broken() {
		t.recycleLocked()
	}
	return raw, err
}
