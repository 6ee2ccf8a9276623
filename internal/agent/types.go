// Package agent contains the intent classifier, the per-domain planners,
// and the workflow orchestrator that turns a chat request into an ordered
// set of analysis sections.
package agent

import (
	"context"

	"github.com/sohailahmedkhan/agents/internal/registry"
)

// ChatRequest is the inbound orchestration request.
type ChatRequest struct {
	Message             string   `json:"message"`
	Workflow            string   `json:"workflow,omitempty"`
	KommuneName         string   `json:"kommune_name"`
	DataSource          string   `json:"data_source,omitempty"`
	RequestedAnalyses   []string `json:"requested_analyses,omitempty"`
	UseLLM              bool     `json:"use_llm"`
	IncludeMCPResources bool     `json:"include_mcp_resources,omitempty"`
}

// Section is one named slice of the aggregate response. Sections fail
// independently; one error never invalidates its siblings.
type Section struct {
	Key     string         `json:"key"`
	Title   string         `json:"title"`
	Summary string         `json:"summary"`
	Status  string         `json:"status"` // ok or error
	Data    map[string]any `json:"data,omitempty"`
}

// LLMSummary carries the optional model-written summary. Error is set
// when the summarization call failed and the fallback text was used.
type LLMSummary struct {
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

// WorkflowResponse is the aggregate answer for one chat request.
type WorkflowResponse struct {
	RequestID  string      `json:"request_id"`
	Kommune    string      `json:"kommune"`
	Sections   []Section   `json:"analysis_sections"`
	Summary    string      `json:"summary"`
	LLMSummary *LLMSummary `json:"llm_summary,omitempty"`
	Resources  []any       `json:"mcp_resources,omitempty"`
}

// ToolCallRequest is one planned tool invocation.
type ToolCallRequest struct {
	ToolName  string
	Arguments map[string]any
}

// Agent plans the tool calls behind one analysis in its domain.
type Agent interface {
	Domain() registry.Domain
	Plan(option registry.AnalysisOption, kommune string) []ToolCallRequest
}

// Summarizer writes a natural-language summary over the section set.
type Summarizer interface {
	Enabled() bool
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
