// Package registry holds the static tool contracts, analysis catalog, and
// resource catalog. Everything here is loaded once at startup and read-only
// afterwards.
package registry

import (
	"fmt"

	"github.com/sohailahmedkhan/agents/internal/apperr"
)

// Kind selects the execution strategy behind a tool contract.
type Kind string

const (
	// KindDirect executes a single gateway call.
	KindDirect Kind = "direct"
	// KindComposite calls the gateway multiple times and merges results.
	KindComposite Kind = "composite"
)

// ToolContract describes one callable tool exposed by the execution layer.
type ToolContract struct {
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	InputSchema  map[string]any `json:"input_schema"`
	Target       string         `json:"target"`
	Kind         Kind           `json:"kind"`
	Composes     []string       `json:"composes,omitempty"`
	ResourceURIs []string       `json:"resource_uris,omitempty"`
}

// Resource describes one readable resource in the catalog.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Registry maps logical tool names to contracts with O(1) lookup.
type Registry struct {
	ordered []ToolContract
	byName  map[string]ToolContract
}

// New builds the static registry.
func New() *Registry {
	ordered := contracts()
	byName := make(map[string]ToolContract, len(ordered))
	for _, tc := range ordered {
		byName[tc.Name] = tc
	}
	return &Registry{ordered: ordered, byName: byName}
}

// Resolve returns the contract for name.
func (r *Registry) Resolve(name string) (ToolContract, error) {
	tc, ok := r.byName[name]
	if !ok {
		return ToolContract{}, fmt.Errorf("%w: unknown tool %q", apperr.ErrNotFound, name)
	}
	return tc, nil
}

// List returns the contracts in declaration order.
func (r *Registry) List() []ToolContract {
	out := make([]ToolContract, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Resources returns the static resource catalog.
func (r *Registry) Resources() []Resource {
	return []Resource{
		{URI: "duckdb://health", Name: "DuckDB Health", Description: "Connection status and version metadata for DuckDB."},
		{URI: "duckdb://tables", Name: "DuckDB Tables", Description: "List of user-visible schema/table pairs."},
		{URI: "duckdb://tools", Name: "DuckDB MCP Tools", Description: "Catalog of available MCP tools."},
		{URI: "duckdb://tool-targets", Name: "DuckDB Callable Targets", Description: "Targets available for tools/call."},
	}
}

func kommuneSchema(extra map[string]any) map[string]any {
	props := map[string]any{
		"kommune_name": map[string]any{"type": "string"},
	}
	for k, v := range extra {
		props[k] = v
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   []string{"kommune_name"},
	}
}

var limitProp = map[string]any{"type": "integer", "minimum": 1, "maximum": 500}

func contracts() []ToolContract {
	return []ToolContract{
		{
			Name:         "duckdb_health",
			Description:  "Return DuckDB connection status and version metadata.",
			InputSchema:  map[string]any{"type": "object", "properties": map[string]any{}},
			Target:       "duckdb_health",
			Kind:         KindDirect,
			ResourceURIs: []string{"duckdb://health"},
		},
		{
			Name:         "duckdb_list_tables",
			Description:  "List user-visible schema/table pairs.",
			InputSchema:  map[string]any{"type": "object", "properties": map[string]any{}},
			Target:       "duckdb_list_tables",
			Kind:         KindDirect,
			ResourceURIs: []string{"duckdb://tables"},
		},
		{
			Name:        "duckdb_describe_table",
			Description: "Describe the columns of one table.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"schema": map[string]any{"type": "string"},
					"table":  map[string]any{"type": "string"},
				},
				"required": []string{"table"},
			},
			Target: "duckdb_describe_table",
			Kind:   KindDirect,
		},
		{
			Name:        "duckdb_query",
			Description: "Execute a SQL query with bounded output under store policy.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"sql":    map[string]any{"type": "string"},
					"params": map[string]any{"type": "array"},
					"limit":  map[string]any{"type": "integer", "minimum": 1, "maximum": 2000},
				},
				"required": []string{"sql"},
			},
			Target: "duckdb_query",
			Kind:   KindDirect,
		},
		{
			Name:        "duckdb_kommune_occupancy_distribution",
			Description: "Occupancy/building category distribution for one kommune.",
			InputSchema: kommuneSchema(map[string]any{"limit": limitProp}),
			Target:      "duckdb_kommune_occupancy_distribution",
			Kind:        KindDirect,
		},
		{
			Name:        "duckdb_kommune_largest_occupancy_area",
			Description: "Category with the largest summed floor area for one kommune.",
			InputSchema: kommuneSchema(nil),
			Target:      "duckdb_kommune_largest_occupancy_area",
			Kind:        KindDirect,
		},
		{
			Name:        "duckdb_kommune_exposure_dashboard",
			Description: "Core exposure metrics, kommune split, and concentration by area.",
			InputSchema: kommuneSchema(map[string]any{"top_n": limitProp}),
			Target:      "duckdb_kommune_exposure_dashboard",
			Kind:        KindComposite,
		},
		{
			Name:        "duckdb_kommune_occupancy_risk_mix",
			Description: "Occupancy mix by both count share and area share.",
			InputSchema: kommuneSchema(map[string]any{"limit": limitProp}),
			Target:      "duckdb_kommune_occupancy_risk_mix",
			Kind:        KindDirect,
		},
		{
			Name:        "duckdb_kommune_age_standard_proxy",
			Description: "TEK-standard distribution and grouped age-band mix.",
			InputSchema: kommuneSchema(nil),
			Target:      "duckdb_kommune_age_standard_proxy",
			Kind:        KindComposite,
		},
		{
			Name:        "duckdb_kommune_status_underwriting",
			Description: "Building status distribution plus problematic properties.",
			InputSchema: kommuneSchema(map[string]any{"limit": limitProp}),
			Target:      "duckdb_kommune_status_underwriting",
			Kind:        KindComposite,
		},
		{
			Name:        "duckdb_kommune_large_risk_schedule",
			Description: "Top-N largest properties with underwriting fields.",
			InputSchema: kommuneSchema(map[string]any{"limit": limitProp}),
			Target:      "duckdb_kommune_large_risk_schedule",
			Kind:        KindDirect,
		},
		{
			Name:        "duckdb_kommune_heritage_flags",
			Description: "Heritage/special-handling flags and affected properties.",
			InputSchema: kommuneSchema(map[string]any{"limit": limitProp}),
			Target:      "duckdb_kommune_heritage_flags",
			Kind:        KindComposite,
		},
		{
			Name:        "duckdb_kommune_tenant_activity_proxy",
			Description: "Tenant and underenheter activity proxies.",
			InputSchema: kommuneSchema(map[string]any{"limit": limitProp}),
			Target:      "duckdb_kommune_tenant_activity_proxy",
			Kind:        KindComposite,
		},
		{
			Name:        "duckdb_kommune_data_quality_score",
			Description: "Field completeness and a composite data-quality score.",
			InputSchema: kommuneSchema(nil),
			Target:      "duckdb_kommune_data_quality_score",
			Kind:        KindDirect,
		},
		{
			Name:        "duckdb_kommune_underwriting_analytics",
			Description: "Full underwriting analytics package for one kommune.",
			InputSchema: kommuneSchema(nil),
			Target:      "duckdb_kommune_underwriting_analytics",
			Kind:        KindComposite,
			Composes: []string{
				"duckdb_kommune_exposure_dashboard",
				"duckdb_kommune_occupancy_risk_mix",
				"duckdb_kommune_age_standard_proxy",
				"duckdb_kommune_status_underwriting",
				"duckdb_kommune_large_risk_schedule",
				"duckdb_kommune_heritage_flags",
				"duckdb_kommune_tenant_activity_proxy",
				"duckdb_kommune_data_quality_score",
			},
		},
		{
			Name:        "duckdb_kommune_claims_summary",
			Description: "Claims counts, paid totals, and per-peril split for one kommune.",
			InputSchema: kommuneSchema(map[string]any{"limit": limitProp}),
			Target:      "duckdb_kommune_claims_summary",
			Kind:        KindComposite,
		},
		{
			Name:        "duckdb_kommune_claims_trends",
			Description: "Claim frequency and severity by year for one kommune.",
			InputSchema: kommuneSchema(nil),
			Target:      "duckdb_kommune_claims_trends",
			Kind:        KindDirect,
		},
	}
}
