package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sohailahmedkhan/agents/config"
	"github.com/sohailahmedkhan/agents/internal/apperr"
)

// Client talks to one tool server. Implementations are safe for
// concurrent use; requests are serialized internally per connection.
//
// CallTool folds execution failures (timeouts, transport drops, tool
// errors) into the CallResult so callers can degrade per section. The
// returned error is reserved for misuse: calling before Start or with
// an empty name.
type Client interface {
	Start(ctx context.Context) error
	Stop() error
	ListTools(ctx context.Context) ([]ToolInfo, error)
	ListResources(ctx context.Context) ([]ResourceInfo, error)
	ReadResource(ctx context.Context, uri string) (map[string]any, error)
	CallTool(ctx context.Context, name string, args map[string]any) (CallResult, error)
}

// NewClient builds the transport selected by configuration.
func NewClient(cfg config.TransportConfig, logger *log.Logger) (Client, error) {
	switch cfg.Mode {
	case "stdio":
		return NewStdioTransport(cfg, logger), nil
	case "tcp":
		return NewTCPTransport(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unsupported transport mode %q", cfg.Mode)
	}
}

// listRetries bounds catalog fetch attempts. Tool calls never retry.
const listRetries = 2

const retryBackoff = 200 * time.Millisecond

// withListRetry retries catalog reads once on transient failure.
func withListRetry[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 0; attempt <= listRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return zero, fmt.Errorf("%w: %v", apperr.ErrTimeout, ctx.Err())
			case <-time.After(retryBackoff * time.Duration(attempt)):
			}
		}
		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !errors.Is(err, apperr.ErrUpstream) && !errors.Is(err, apperr.ErrTimeout) {
			break
		}
	}
	return zero, lastErr
}

func decodeTools(raw json.RawMessage) ([]ToolInfo, error) {
	var payload struct {
		Tools []ToolInfo `json:"tools"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: decoding tools: %v", apperr.ErrUpstream, err)
	}
	return payload.Tools, nil
}

func decodeResources(raw json.RawMessage) ([]ResourceInfo, error) {
	var payload struct {
		Resources []ResourceInfo `json:"resources"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: decoding resources: %v", apperr.ErrUpstream, err)
	}
	return payload.Resources, nil
}

func decodeObject(raw json.RawMessage) (map[string]any, error) {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: decoding result: %v", apperr.ErrUpstream, err)
	}
	return payload, nil
}

// callResult converts one tools/call outcome into a CallResult.
func callResult(raw json.RawMessage, err error, elapsed time.Duration) CallResult {
	if err != nil {
		return errResult(err.Error(), elapsed)
	}
	data, derr := decodeObject(raw)
	if derr != nil {
		return errResult(derr.Error(), elapsed)
	}
	return okResult(data, elapsed)
}
