package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"github.com/sohailahmedkhan/agents/config"
	"github.com/sohailahmedkhan/agents/internal/apperr"
)

// TCPTransport speaks the protocol to a long-lived server over a small
// pool of persistent connections. Each connection carries one request at
// a time; a failed connection is dropped and redialed on next use.
type TCPTransport struct {
	addr     string
	timeout  time.Duration
	poolSize int
	logger   *log.Logger

	mu      sync.Mutex
	started bool
	tools   []ToolInfo

	// slots holds pool permits; a nil entry means dial lazily.
	slots chan *rpcConn
	// stopC unblocks callers waiting for a slot during shutdown.
	stopC chan struct{}
}

// NewTCPTransport builds the transport without dialing.
func NewTCPTransport(cfg config.TransportConfig, logger *log.Logger) *TCPTransport {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	size := cfg.PoolSize
	if size < 1 {
		size = 2
	}
	return &TCPTransport{
		addr:     cfg.Addr(),
		timeout:  timeout,
		poolSize: size,
		logger:   logger,
	}
}

// Start verifies connectivity with one eager dial and caches the tool
// catalog. Remaining pool slots dial lazily.
func (t *TCPTransport) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return nil
	}
	slots := make(chan *rpcConn, t.poolSize)
	for i := 0; i < t.poolSize; i++ {
		slots <- nil
	}
	t.slots = slots
	t.stopC = make(chan struct{})
	t.mu.Unlock()

	tools, err := withListRetry(ctx, func(ctx context.Context) ([]ToolInfo, error) {
		raw, err := t.roundTrip(ctx, MethodListTools, nil)
		if err != nil {
			return nil, err
		}
		return decodeTools(raw)
	})
	if err != nil {
		t.mu.Lock()
		t.drainLocked()
		t.mu.Unlock()
		return fmt.Errorf("fetching tool catalog from %s: %w", t.addr, err)
	}

	t.mu.Lock()
	t.tools = tools
	t.started = true
	t.mu.Unlock()
	t.logger.Printf("[MCP] tcp transport ready at %s, %d tools", t.addr, len(tools))
	return nil
}

// Stop closes every parked connection and retires the pool. Borrowed
// connections are closed by release when their call returns, so Stop
// never blocks on in-flight work.
func (t *TCPTransport) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.started = false
	t.drainLocked()
	return nil
}

func (t *TCPTransport) drainLocked() {
	if t.slots == nil {
		return
	}
	for {
		select {
		case conn := <-t.slots:
			if conn != nil {
				_ = conn.Close()
			}
			continue
		default:
		}
		break
	}
	t.slots = nil
	close(t.stopC)
	t.stopC = nil
}

// release parks a borrowed slot. Once the pool is retired the permit is
// worthless, so any live conn is closed instead of leaked into the
// orphaned channel. The send cannot block: every send matches an
// earlier receive on the same buffered channel.
func (t *TCPTransport) release(slots chan *rpcConn, conn *rpcConn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.slots != slots {
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	slots <- conn
}

func (t *TCPTransport) ensureStarted() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.started {
		return fmt.Errorf("%w: transport not started", apperr.ErrNotReady)
	}
	return nil
}

// dial opens one connection and completes the handshake.
func (t *TCPTransport) dial(ctx context.Context) (*rpcConn, error) {
	var d net.Dialer
	dialCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	netConn, err := d.DialContext(dialCtx, "tcp", t.addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dialing %s: %v", apperr.ErrUpstream, t.addr, err)
	}
	conn := newRPCConn(netConn, netConn, netConn)
	initCtx, cancel2 := context.WithTimeout(ctx, t.timeout)
	defer cancel2()
	if _, err := conn.initialize(initCtx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

// roundTrip borrows a pool slot, dialing if the slot is empty, and
// returns the slot with the conn dropped on failure.
func (t *TCPTransport) roundTrip(ctx context.Context, method string, params map[string]any) (json.RawMessage, error) {
	t.mu.Lock()
	slots, stopC := t.slots, t.stopC
	t.mu.Unlock()
	if slots == nil {
		return nil, fmt.Errorf("%w: transport not started", apperr.ErrNotReady)
	}

	var conn *rpcConn
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: waiting for connection slot: %v", apperr.ErrTimeout, ctx.Err())
	case <-stopC:
		return nil, fmt.Errorf("%w: transport stopped", apperr.ErrNotReady)
	case conn = <-slots:
	}

	if conn == nil || conn.Broken() {
		if conn != nil {
			_ = conn.Close()
		}
		fresh, err := t.dial(ctx)
		if err != nil {
			t.release(slots, nil)
			return nil, err
		}
		conn = fresh
	}

	callCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	raw, err := conn.roundTrip(callCtx, method, params)
	if err != nil && conn.Broken() {
		_ = conn.Close()
		t.release(slots, nil)
		return raw, err
	}
	t.release(slots, conn)
	return raw, err
}

// ListTools returns the catalog cached at Start.
func (t *TCPTransport) ListTools(_ context.Context) ([]ToolInfo, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.started {
		return nil, fmt.Errorf("%w: transport not started", apperr.ErrNotReady)
	}
	out := make([]ToolInfo, len(t.tools))
	copy(out, t.tools)
	return out, nil
}

func (t *TCPTransport) ListResources(ctx context.Context) ([]ResourceInfo, error) {
	if err := t.ensureStarted(); err != nil {
		return nil, err
	}
	return withListRetry(ctx, func(ctx context.Context) ([]ResourceInfo, error) {
		raw, err := t.roundTrip(ctx, MethodListResources, nil)
		if err != nil {
			return nil, err
		}
		return decodeResources(raw)
	})
}

func (t *TCPTransport) ReadResource(ctx context.Context, uri string) (map[string]any, error) {
	if uri == "" {
		return nil, fmt.Errorf("%w: uri is required", apperr.ErrInvalidRequest)
	}
	if err := t.ensureStarted(); err != nil {
		return nil, err
	}
	raw, err := t.roundTrip(ctx, MethodReadResource, map[string]any{"uri": uri})
	if err != nil {
		return nil, err
	}
	return decodeObject(raw)
}

// CallTool executes one tool. Failures are folded into the CallResult;
// the error return fires only on misuse.
func (t *TCPTransport) CallTool(ctx context.Context, name string, args map[string]any) (CallResult, error) {
	if name == "" {
		return CallResult{}, fmt.Errorf("%w: tool name is required", apperr.ErrInvalidRequest)
	}
	if err := t.ensureStarted(); err != nil {
		return CallResult{}, err
	}
	start := time.Now()
	raw, err := t.roundTrip(ctx, MethodCallTool, map[string]any{
		"name":      name,
		"arguments": args,
	})
	return callResult(raw, err, time.Since(start)), nil
}
