package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"time"

	"github.com/sohailahmedkhan/agents/internal/apperr"
	"github.com/sohailahmedkhan/agents/internal/duckdb"
	"github.com/sohailahmedkhan/agents/internal/registry"
)

// ServerName identifies this tool server in the handshake.
const ServerName = "agents-duckdb"

// DefaultCallTimeout bounds one tools/call handler.
const DefaultCallTimeout = 60 * time.Second

type handlerFunc func(ctx context.Context, args map[string]any) (map[string]any, error)

// Server executes the tool catalog against the query safety gateway.
// It is transport-agnostic: Serve handles one stdio-style stream and
// ServeTCP accepts persistent connections, one request in flight each.
type Server struct {
	gateway     *duckdb.Service
	registry    *registry.Registry
	logger      *log.Logger
	callTimeout time.Duration
	handlers    map[string]handlerFunc
	tools       []ToolInfo
}

// NewServer wires the tool handlers once.
func NewServer(gateway *duckdb.Service, reg *registry.Registry, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	s := &Server{
		gateway:     gateway,
		registry:    reg,
		logger:      logger,
		callTimeout: DefaultCallTimeout,
	}
	s.handlers = map[string]handlerFunc{
		"duckdb_health":                         s.tHealth,
		"duckdb_list_tables":                    s.tListTables,
		"duckdb_describe_table":                 s.tDescribeTable,
		"duckdb_query":                          s.tQuery,
		"duckdb_kommune_occupancy_distribution": s.tOccupancyDistribution,
		"duckdb_kommune_largest_occupancy_area": s.tLargestOccupancyArea,
		"duckdb_kommune_exposure_dashboard":     s.tExposureDashboard,
		"duckdb_kommune_occupancy_risk_mix":     s.tOccupancyRiskMix,
		"duckdb_kommune_age_standard_proxy":     s.tAgeStandardProxy,
		"duckdb_kommune_status_underwriting":    s.tStatusUnderwriting,
		"duckdb_kommune_large_risk_schedule":    s.tLargeRiskSchedule,
		"duckdb_kommune_heritage_flags":         s.tHeritageFlags,
		"duckdb_kommune_tenant_activity_proxy":  s.tTenantActivityProxy,
		"duckdb_kommune_data_quality_score":     s.tDataQualityScore,
		"duckdb_kommune_underwriting_analytics": s.tUnderwritingAnalytics,
		"duckdb_kommune_claims_summary":         s.tClaimsSummary,
		"duckdb_kommune_claims_trends":          s.tClaimsTrends,
	}
	for _, tc := range reg.List() {
		s.tools = append(s.tools, ToolInfo{
			Name:        tc.Name,
			Description: tc.Description,
			InputSchema: tc.InputSchema,
		})
	}
	return s
}

// Serve runs the JSON-RPC loop over one stream until EOF.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	dec := json.NewDecoder(in)
	enc := json.NewEncoder(out)
	for {
		var req Request
		if err := dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("decoding request: %w", err)
		}
		resp := s.handle(ctx, req)
		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("encoding response: %w", err)
		}
	}
}

// ServeTCP accepts persistent connections until the context is cancelled.
func (s *Server) ServeTCP(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		go func(c net.Conn) {
			defer c.Close()
			if err := s.Serve(ctx, c, c); err != nil {
				s.logger.Printf("connection closed: %v", err)
			}
		}(conn)
	}
}

func (s *Server) handle(ctx context.Context, req Request) Response {
	resp := Response{JSONRPC: "2.0", ID: req.ID}
	result, rpcErr := s.dispatch(ctx, req)
	if rpcErr != nil {
		resp.Error = rpcErr
		return resp
	}
	raw, err := json.Marshal(result)
	if err != nil {
		resp.Error = &RPCError{Code: -32000, Message: err.Error()}
		return resp
	}
	resp.Result = raw
	return resp
}

func (s *Server) dispatch(ctx context.Context, req Request) (any, *RPCError) {
	switch req.Method {
	case MethodInitialize:
		return InitializeResult{
			ProtocolVersion: ProtocolVersion,
			ServerName:      ServerName,
			ToolCount:       len(s.tools),
		}, nil
	case MethodListTools:
		return map[string]any{"tools": s.tools}, nil
	case MethodListResources:
		return map[string]any{"resources": s.registry.Resources()}, nil
	case MethodReadResource:
		uri, _ := req.Params["uri"].(string)
		data, err := s.readResource(ctx, uri)
		if err != nil {
			return nil, toRPCError(err)
		}
		return data, nil
	case MethodCallTool:
		name, _ := req.Params["name"].(string)
		args, _ := req.Params["arguments"].(map[string]any)
		data, err := s.callTool(ctx, name, args)
		if err != nil {
			return nil, toRPCError(err)
		}
		return data, nil
	default:
		return nil, &RPCError{Code: -32601, Message: fmt.Sprintf("unknown method: %s", req.Method)}
	}
}

func (s *Server) callTool(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	if _, err := s.registry.Resolve(name); err != nil {
		return nil, err
	}
	handler, ok := s.handlers[name]
	if !ok {
		return nil, fmt.Errorf("%w: no handler for tool %q", apperr.ErrNotFound, name)
	}
	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	start := time.Now()
	out, err := handler(callCtx, args)
	if err != nil {
		s.logger.Printf("tool %s failed after %v: %v", name, time.Since(start), err)
		return nil, err
	}
	s.logger.Printf("tool %s completed in %v", name, time.Since(start))
	return out, nil
}

func (s *Server) readResource(ctx context.Context, uri string) (map[string]any, error) {
	switch uri {
	case "duckdb://health":
		h, err := s.gateway.Health(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"uri": uri, "contents": h}, nil
	case "duckdb://tables":
		tables, err := s.gateway.ListTables(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"uri": uri, "contents": tables}, nil
	case "duckdb://tools":
		return map[string]any{"uri": uri, "contents": s.tools}, nil
	case "duckdb://tool-targets":
		return map[string]any{"uri": uri, "contents": s.registry.List()}, nil
	default:
		return nil, fmt.Errorf("%w: unknown resource %q", apperr.ErrNotFound, uri)
	}
}

func toRPCError(err error) *RPCError {
	code := -32000
	switch {
	case errors.Is(err, apperr.ErrPermissionDenied):
		code = -32001
	case errors.Is(err, apperr.ErrNotFound):
		code = -32002
	case errors.Is(err, apperr.ErrInvalidRequest):
		code = -32602
	}
	return &RPCError{Code: code, Message: err.Error()}
}

// ---------- argument helpers ----------

func str(v any) string { s, _ := v.(string); return s }

func asInt(v any) int {
	switch x := v.(type) {
	case float64:
		return int(x)
	case int:
		return x
	case int64:
		return int(x)
	case json.Number:
		i, _ := x.Int64()
		return int(i)
	default:
		return 0
	}
}

func intArg(args map[string]any, key string, def, lo, hi int) (int, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return def, nil
	}
	n := asInt(raw)
	if n < lo || n > hi {
		return 0, fmt.Errorf("%w: %s must be in range [%d, %d]", apperr.ErrInvalidRequest, key, lo, hi)
	}
	return n, nil
}

func kommuneArg(args map[string]any) (string, error) {
	name := str(args["kommune_name"])
	if name == "" {
		return "", fmt.Errorf("%w: kommune_name is required", apperr.ErrInvalidRequest)
	}
	return name, nil
}
