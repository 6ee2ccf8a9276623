package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sohailahmedkhan/agents/internal/apperr"
	"github.com/sohailahmedkhan/agents/internal/mcp"
	"github.com/sohailahmedkhan/agents/internal/registry"
	"github.com/sohailahmedkhan/agents/internal/telemetry"
)

// Orchestrator executes requested analyses concurrently and aggregates
// their sections. One response is owned by exactly one request; nothing
// here is shared across calls except the tool client and catalog.
type Orchestrator struct {
	client     mcp.Client
	catalog    *registry.Catalog
	classifier *Classifier
	agents     map[registry.Domain]Agent
	summarizer Summarizer
	logger     *log.Logger
	maxWorkers int
}

// NewOrchestrator wires the workflow executor. summarizer may be nil.
func NewOrchestrator(client mcp.Client, catalog *registry.Catalog, classifier *Classifier, summarizer Summarizer, maxWorkers int, logger *log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if maxWorkers < 1 {
		maxWorkers = 4
	}
	return &Orchestrator{
		client:     client,
		catalog:    catalog,
		classifier: classifier,
		agents:     defaultAgents(),
		summarizer: summarizer,
		logger:     logger,
		maxWorkers: maxWorkers,
	}
}

// Run executes one chat request end to end. Per-section failures are
// captured inside the sections; only structurally invalid requests fail
// here before any dispatch.
func (o *Orchestrator) Run(ctx context.Context, req ChatRequest) (*WorkflowResponse, error) {
	start := time.Now()
	if strings.TrimSpace(req.Message) == "" && req.Workflow == "" && len(req.RequestedAnalyses) == 0 {
		return nil, fmt.Errorf("%w: message is required", apperr.ErrInvalidRequest)
	}
	kommune := strings.TrimSpace(req.KommuneName)
	if kommune == "" {
		return nil, fmt.Errorf("%w: kommune_name is required", apperr.ErrInvalidRequest)
	}

	requestID := uuid.NewString()
	keys := o.resolveKeys(req, requestID)
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: no analyses requested", apperr.ErrInvalidRequest)
	}

	o.logger.Printf("[ORCH] %s: running %d analyses for %s", requestID, len(keys), kommune)

	// Results are indexed by position so the response preserves the
	// caller's key order regardless of completion order.
	sections := make([]Section, len(keys))
	sem := make(chan struct{}, o.maxWorkers)
	var wg sync.WaitGroup
	for i, key := range keys {
		wg.Add(1)
		go func(idx int, key string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				sections[idx] = cancelledSection(key)
				return
			}
			sections[idx] = o.runSection(ctx, key, kommune)
		}(i, key)
	}
	wg.Wait()

	for _, section := range sections {
		telemetry.ObserveSection(section.Key, section.Status)
	}

	resp := &WorkflowResponse{
		RequestID: requestID,
		Kommune:   kommune,
		Sections:  sections,
		Summary:   fallbackSummary(kommune, sections),
	}
	if req.UseLLM {
		resp.LLMSummary = o.summarize(ctx, req.Message, sections)
	}
	if req.IncludeMCPResources {
		if resources, err := o.client.ListResources(ctx); err == nil {
			for _, r := range resources {
				resp.Resources = append(resp.Resources, r)
			}
		} else {
			o.logger.Printf("[ORCH] %s: listing resources: %v", requestID, err)
		}
	}
	telemetry.ObserveWorkflow(time.Since(start))
	o.logger.Printf("[ORCH] %s: completed in %v", requestID, time.Since(start))
	return resp, nil
}

// resolveKeys picks the analyses to run: the caller's explicit list, an
// explicit workflow key, or the classified domains' defaults.
func (o *Orchestrator) resolveKeys(req ChatRequest, requestID string) []string {
	if len(req.RequestedAnalyses) > 0 {
		return req.RequestedAnalyses
	}
	if req.Workflow != "" {
		return []string{req.Workflow}
	}
	intent := o.classifier.Classify(req.Message)
	if intent.Ambiguous {
		o.logger.Printf("[ORCH] %s: classification ambiguous, broad routing (scores %v)", requestID, intent.Scores)
	} else {
		o.logger.Printf("[ORCH] %s: classified domains %v (matched %v)", requestID, intent.Domains, intent.MatchedKeywords)
	}
	return o.catalog.DefaultKeys(intent.Domains)
}

// runSection resolves one analysis key and executes its tool plan. The
// first failed call fails the whole section with that call's message.
func (o *Orchestrator) runSection(ctx context.Context, key, kommune string) Section {
	if ctx.Err() != nil {
		return cancelledSection(key)
	}
	option, err := o.catalog.Resolve(key)
	if err != nil {
		return errorSection(key, titleKey(key), err.Error())
	}
	ag, ok := o.agents[option.Domain]
	if !ok {
		return errorSection(key, option.Label, fmt.Sprintf("no agent for domain %s", option.Domain))
	}

	plan := ag.Plan(option, kommune)
	data := make(map[string]any, len(plan))
	for _, call := range plan {
		if ctx.Err() != nil {
			return cancelledSection(key)
		}
		result, err := o.client.CallTool(ctx, call.ToolName, call.Arguments)
		if err != nil {
			// Misuse (transport not started); surface as a section error.
			telemetry.ObserveToolCall(call.ToolName, "error", 0)
			return errorSection(key, option.Label, err.Error())
		}
		telemetry.ObserveToolCall(call.ToolName, result.Status, result.Elapsed)
		if !result.OK() {
			if ctx.Err() != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return cancelledSection(key)
			}
			return errorSection(key, option.Label, result.ErrorMessage)
		}
		if len(plan) == 1 {
			data = result.Data
		} else {
			data[shortToolName(call.ToolName)] = result.Data
		}
	}
	return Section{
		Key:     key,
		Title:   option.Label,
		Summary: fmt.Sprintf("%s completed (%d tool calls)", option.Label, len(plan)),
		Status:  "ok",
		Data:    data,
	}
}

// summarize issues one summarization call over the section set and
// degrades to the fallback summary on any failure.
func (o *Orchestrator) summarize(ctx context.Context, message string, sections []Section) *LLMSummary {
	if o.summarizer == nil || !o.summarizer.Enabled() {
		return &LLMSummary{Error: "llm summarization is not configured"}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\nSections:\n", message)
	for _, section := range sections {
		fmt.Fprintf(&b, "- %s [%s]: %s\n", section.Title, section.Status, section.Summary)
	}
	const systemPrompt = "You are an insurance underwriting analyst. Summarize the analysis sections " +
		"for the operator in a few short paragraphs. Mention failed sections briefly and do not invent numbers."
	text, err := o.summarizer.Complete(ctx, systemPrompt, b.String())
	if err != nil {
		o.logger.Printf("[ORCH] llm summary degraded: %v", err)
		return &LLMSummary{Error: err.Error()}
	}
	return &LLMSummary{Text: text}
}

// fallbackSummary is the deterministic aggregate built from section
// titles and statuses.
func fallbackSummary(kommune string, sections []Section) string {
	var ok int
	lines := make([]string, 0, len(sections)+1)
	for _, section := range sections {
		if section.Status == "ok" {
			ok++
		}
		lines = append(lines, fmt.Sprintf("%s: %s", section.Title, section.Status))
	}
	header := fmt.Sprintf("Analysis for %s: %d/%d sections succeeded.", kommune, ok, len(sections))
	return header + "\n" + strings.Join(lines, "\n")
}

func errorSection(key, title, message string) Section {
	return Section{
		Key:     key,
		Title:   title,
		Summary: message,
		Status:  "error",
	}
}

func cancelledSection(key string) Section {
	return Section{
		Key:     key,
		Title:   titleKey(key),
		Summary: "cancelled",
		Status:  "error",
	}
}

func titleKey(key string) string {
	words := strings.Split(key, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

func shortToolName(name string) string {
	return strings.TrimPrefix(name, "duckdb_kommune_")
}
