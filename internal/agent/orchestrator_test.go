package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sohailahmedkhan/agents/internal/apperr"
	"github.com/sohailahmedkhan/agents/internal/mcp"
	"github.com/sohailahmedkhan/agents/internal/registry"
)

// fakeClient scripts tool call outcomes per tool name.
type fakeClient struct {
	mu      sync.Mutex
	calls   []string
	handler func(name string, args map[string]any) mcp.CallResult
}

func (f *fakeClient) Start(context.Context) error { return nil }
func (f *fakeClient) Stop() error                 { return nil }

func (f *fakeClient) ListTools(context.Context) ([]mcp.ToolInfo, error) { return nil, nil }

func (f *fakeClient) ListResources(context.Context) ([]mcp.ResourceInfo, error) {
	return []mcp.ResourceInfo{{URI: "duckdb://health", Name: "Health"}}, nil
}

func (f *fakeClient) ReadResource(context.Context, string) (map[string]any, error) {
	return map[string]any{}, nil
}

func (f *fakeClient) CallTool(_ context.Context, name string, args map[string]any) (mcp.CallResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
	if f.handler != nil {
		return f.handler(name, args), nil
	}
	return mcp.CallResult{Status: "ok", Data: map[string]any{"tool": name}}, nil
}

type fakeSummarizer struct {
	text string
	err  error
}

func (f fakeSummarizer) Enabled() bool { return true }

func (f fakeSummarizer) Complete(context.Context, string, string) (string, error) {
	return f.text, f.err
}

func newTestOrchestrator(client mcp.Client, summarizer Summarizer) *Orchestrator {
	return NewOrchestrator(client, registry.NewCatalog(), NewClassifier(0.1), summarizer, 4, nil)
}

func TestRunPreservesRequestedOrder(t *testing.T) {
	client := &fakeClient{handler: func(name string, _ map[string]any) mcp.CallResult {
		// Stagger completion so order cannot come from completion time.
		if strings.Contains(name, "claims") {
			time.Sleep(30 * time.Millisecond)
		}
		return mcp.CallResult{Status: "ok", Data: map[string]any{"tool": name}}
	}}
	o := newTestOrchestrator(client, nil)

	keys := []string{"claims_summary", "data_quality", "portfolio_overview"}
	resp, err := o.Run(context.Background(), ChatRequest{
		Message:           "anything",
		KommuneName:       "Bergen",
		RequestedAnalyses: keys,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(resp.Sections) != len(keys) {
		t.Fatalf("sections = %d, want %d", len(resp.Sections), len(keys))
	}
	for i, key := range keys {
		if resp.Sections[i].Key != key {
			t.Fatalf("section %d = %s, want %s", i, resp.Sections[i].Key, key)
		}
	}
}

func TestRunUnknownKeyFailsOnlyThatSection(t *testing.T) {
	o := newTestOrchestrator(&fakeClient{}, nil)
	resp, err := o.Run(context.Background(), ChatRequest{
		Message:           "anything",
		KommuneName:       "Bergen",
		RequestedAnalyses: []string{"portfolio_overview", "not_a_key"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp.Sections[0].Status != "ok" {
		t.Fatalf("valid section status = %s", resp.Sections[0].Status)
	}
	if resp.Sections[1].Status != "error" {
		t.Fatalf("unknown section status = %s", resp.Sections[1].Status)
	}
	if !strings.Contains(resp.Sections[1].Summary, "unknown analysis key") {
		t.Fatalf("unexpected error summary: %s", resp.Sections[1].Summary)
	}
}

func TestRunPartialToolFailure(t *testing.T) {
	client := &fakeClient{handler: func(name string, _ map[string]any) mcp.CallResult {
		if strings.Contains(name, "claims") {
			return mcp.CallResult{Status: "error", ErrorMessage: "timeout waiting for tool"}
		}
		return mcp.CallResult{Status: "ok", Data: map[string]any{"tool": name}}
	}}
	o := newTestOrchestrator(client, nil)
	resp, err := o.Run(context.Background(), ChatRequest{
		Message:           "anything",
		KommuneName:       "Bergen",
		RequestedAnalyses: []string{"claims_summary", "portfolio_overview"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp.Sections[0].Status != "error" || !strings.Contains(resp.Sections[0].Summary, "timeout") {
		t.Fatalf("claims section = %+v", resp.Sections[0])
	}
	if resp.Sections[1].Status != "ok" {
		t.Fatalf("sibling section should succeed, got %+v", resp.Sections[1])
	}
	if !strings.Contains(resp.Summary, "1/2") {
		t.Fatalf("fallback summary should count successes: %s", resp.Summary)
	}
}

func TestRunMergesMultiToolPlan(t *testing.T) {
	o := newTestOrchestrator(&fakeClient{}, nil)
	resp, err := o.Run(context.Background(), ChatRequest{
		Message:           "anything",
		KommuneName:       "Bergen",
		RequestedAnalyses: []string{"risk_score"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	section := resp.Sections[0]
	if section.Status != "ok" {
		t.Fatalf("section status = %s (%s)", section.Status, section.Summary)
	}
	for _, key := range []string{"occupancy_risk_mix", "age_standard_proxy", "status_underwriting"} {
		if _, ok := section.Data[key]; !ok {
			t.Errorf("merged data missing %s (have %v)", key, section.Data)
		}
	}
}

func TestRunLLMSummaryDegrades(t *testing.T) {
	o := newTestOrchestrator(&fakeClient{}, fakeSummarizer{err: errors.New("model unavailable")})
	resp, err := o.Run(context.Background(), ChatRequest{
		Message:           "anything",
		KommuneName:       "Bergen",
		RequestedAnalyses: []string{"portfolio_overview"},
		UseLLM:            true,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp.LLMSummary == nil || resp.LLMSummary.Error == "" {
		t.Fatalf("expected degraded llm summary, got %+v", resp.LLMSummary)
	}
	if resp.Summary == "" {
		t.Fatal("fallback summary must always be present")
	}
	if resp.Sections[0].Status != "ok" {
		t.Fatal("summarization failure must not affect sections")
	}
}

func TestRunCancelledContextMarksSections(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := newTestOrchestrator(&fakeClient{}, nil)
	resp, err := o.Run(ctx, ChatRequest{
		Message:           "anything",
		KommuneName:       "Bergen",
		RequestedAnalyses: []string{"portfolio_overview", "data_quality"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(resp.Sections) != 2 {
		t.Fatalf("cancelled sections must not be dropped, got %d", len(resp.Sections))
	}
	for _, section := range resp.Sections {
		if section.Status != "error" || section.Summary != "cancelled" {
			t.Fatalf("section = %+v, want cancelled error", section)
		}
	}
}

func TestRunClassificationRoutesClaims(t *testing.T) {
	client := &fakeClient{}
	o := newTestOrchestrator(client, nil)
	resp, err := o.Run(context.Background(), ChatRequest{
		Message:     "What are the claims trends in Bergen?",
		KommuneName: "Bergen",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	catalog := registry.NewCatalog()
	for _, section := range resp.Sections {
		opt, err := catalog.Resolve(section.Key)
		if err != nil {
			t.Fatalf("unexpected key %s", section.Key)
		}
		if opt.Domain != registry.DomainClaims {
			t.Errorf("claims question routed to %s analysis %s", opt.Domain, section.Key)
		}
	}
	if len(resp.Sections) == 0 {
		t.Fatal("expected claims sections")
	}
}

func TestRunRejectsStructurallyInvalid(t *testing.T) {
	o := newTestOrchestrator(&fakeClient{}, nil)

	_, err := o.Run(context.Background(), ChatRequest{Message: "hi"})
	if !errors.Is(err, apperr.ErrInvalidRequest) {
		t.Fatalf("missing kommune error = %v, want ErrInvalidRequest", err)
	}
	_, err = o.Run(context.Background(), ChatRequest{KommuneName: "Bergen"})
	if !errors.Is(err, apperr.ErrInvalidRequest) {
		t.Fatalf("missing message error = %v, want ErrInvalidRequest", err)
	}
}

func TestRunBindsKommuneArgument(t *testing.T) {
	var got string
	client := &fakeClient{handler: func(name string, args map[string]any) mcp.CallResult {
		got, _ = args["kommune_name"].(string)
		return mcp.CallResult{Status: "ok", Data: map[string]any{}}
	}}
	o := newTestOrchestrator(client, nil)
	_, err := o.Run(context.Background(), ChatRequest{
		Message:           "anything",
		KommuneName:       "Voss",
		RequestedAnalyses: []string{"portfolio_overview"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got != "Voss" {
		t.Fatalf("kommune_name = %q, want Voss", got)
	}
}

func TestFallbackSummaryFormat(t *testing.T) {
	sections := []Section{
		{Key: "a", Title: "A", Status: "ok"},
		{Key: "b", Title: "B", Status: "error"},
	}
	got := fallbackSummary("Bergen", sections)
	want := "Analysis for Bergen: 1/2 sections succeeded.\nA: ok\nB: error"
	if got != want {
		t.Fatalf("fallbackSummary = %q, want %q", got, want)
	}
}
