package agent

import (
	"github.com/sohailahmedkhan/agents/internal/registry"
)

// planFromOption binds the catalog's tool list to concrete call
// requests. Both domain agents share this; they differ only in their
// routing domain and any extra argument bindings.
func planFromOption(option registry.AnalysisOption, kommune string, extra map[string]any) []ToolCallRequest {
	plan := make([]ToolCallRequest, 0, len(option.Tools))
	for _, tool := range option.Tools {
		args := map[string]any{"kommune_name": kommune}
		for k, v := range extra {
			args[k] = v
		}
		plan = append(plan, ToolCallRequest{ToolName: tool, Arguments: args})
	}
	return plan
}

// PropertyAgent plans property-domain analyses.
type PropertyAgent struct{}

func (PropertyAgent) Domain() registry.Domain { return registry.DomainProperty }

func (PropertyAgent) Plan(option registry.AnalysisOption, kommune string) []ToolCallRequest {
	return planFromOption(option, kommune, nil)
}

// ClaimsAgent plans claims-domain analyses.
type ClaimsAgent struct{}

func (ClaimsAgent) Domain() registry.Domain { return registry.DomainClaims }

func (ClaimsAgent) Plan(option registry.AnalysisOption, kommune string) []ToolCallRequest {
	return planFromOption(option, kommune, nil)
}

// defaultAgents wires one agent per domain.
func defaultAgents() map[registry.Domain]Agent {
	return map[registry.Domain]Agent{
		registry.DomainProperty: PropertyAgent{},
		registry.DomainClaims:   ClaimsAgent{},
	}
}
