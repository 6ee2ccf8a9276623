package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/sohailahmedkhan/agents/internal/apperr"
)

// rpcConn frames JSON-RPC over one stream. One request is in flight at a
// time; a call abandoned mid-flight poisons the conn because its response
// would desynchronize the next exchange.
type rpcConn struct {
	mu     sync.Mutex
	enc    *json.Encoder
	dec    *json.Decoder
	closer io.Closer
	nextID atomic.Int64
	broken bool
}

func newRPCConn(r io.Reader, w io.Writer, closer io.Closer) *rpcConn {
	return &rpcConn{
		enc:    json.NewEncoder(w),
		dec:    json.NewDecoder(r),
		closer: closer,
	}
}

func (c *rpcConn) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}

// Broken reports whether the conn can still be reused.
func (c *rpcConn) Broken() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.broken
}

// roundTrip sends one request and waits for the matching response.
func (c *rpcConn) roundTrip(ctx context.Context, method string, params map[string]any) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broken {
		return nil, fmt.Errorf("%w: connection is poisoned", apperr.ErrUpstream)
	}

	id := c.nextID.Add(1)
	req := Request{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	if err := c.enc.Encode(req); err != nil {
		c.broken = true
		return nil, fmt.Errorf("%w: writing %s: %v", apperr.ErrUpstream, method, err)
	}

	type readOut struct {
		resp Response
		err  error
	}
	done := make(chan readOut, 1)
	go func() {
		var resp Response
		err := c.dec.Decode(&resp)
		done <- readOut{resp: resp, err: err}
	}()

	select {
	case <-ctx.Done():
		// The response may still arrive later; this conn cannot be reused.
		c.broken = true
		return nil, fmt.Errorf("%w: %s: %v", apperr.ErrTimeout, method, ctx.Err())
	case out := <-done:
		if out.err != nil {
			c.broken = true
			return nil, fmt.Errorf("%w: reading %s response: %v", apperr.ErrUpstream, method, out.err)
		}
		if out.resp.ID != id {
			c.broken = true
			return nil, fmt.Errorf("%w: response id %d does not match request id %d", apperr.ErrUpstream, out.resp.ID, id)
		}
		if out.resp.Error != nil {
			return nil, rpcToErr(out.resp.Error)
		}
		return out.resp.Result, nil
	}
}

// initialize performs the handshake and validates the protocol version.
func (c *rpcConn) initialize(ctx context.Context) (InitializeResult, error) {
	raw, err := c.roundTrip(ctx, MethodInitialize, nil)
	if err != nil {
		return InitializeResult{}, err
	}
	var res InitializeResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return InitializeResult{}, fmt.Errorf("%w: decoding initialize result: %v", apperr.ErrUpstream, err)
	}
	if res.ProtocolVersion != ProtocolVersion {
		return InitializeResult{}, fmt.Errorf("%w: protocol version mismatch: server %s, client %s",
			apperr.ErrUpstream, res.ProtocolVersion, ProtocolVersion)
	}
	return res, nil
}

// rpcToErr maps wire error codes back onto local sentinels.
func rpcToErr(e *RPCError) error {
	switch e.Code {
	case -32001:
		return fmt.Errorf("%w: %s", apperr.ErrPermissionDenied, e.Message)
	case -32002:
		return fmt.Errorf("%w: %s", apperr.ErrNotFound, e.Message)
	case -32602:
		return fmt.Errorf("%w: %s", apperr.ErrInvalidRequest, e.Message)
	default:
		return fmt.Errorf("%w: %s", apperr.ErrUpstream, e.Message)
	}
}
