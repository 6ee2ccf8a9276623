package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/sohailahmedkhan/agents/internal/cache"
	"github.com/sohailahmedkhan/agents/internal/telemetry"
)

// insightTools are the calls behind one kommune insight payload, in
// execution order.
var insightTools = []string{
	"duckdb_kommune_occupancy_distribution",
	"duckdb_kommune_largest_occupancy_area",
	"duckdb_kommune_underwriting_analytics",
}

// InsightsService builds the municipality dashboard payload, with an
// optional Redis cache in front of the tool calls.
type InsightsService struct {
	orchestrator *Orchestrator
	cache        *cache.Cache
}

// NewInsightsService wires the insights facade. cache may be nil.
func NewInsightsService(orchestrator *Orchestrator, c *cache.Cache) *InsightsService {
	return &InsightsService{orchestrator: orchestrator, cache: c}
}

// KommuneInsights fetches the full insight payload for one kommune.
// Unlike Run, any failed tool call fails the whole payload; the caller
// asked for one dashboard, not independent sections.
func (s *InsightsService) KommuneInsights(ctx context.Context, kommune string) (map[string]any, error) {
	kommune = strings.TrimSpace(kommune)
	if kommune == "" {
		return nil, fmt.Errorf("kommune name is required")
	}

	cacheKey := "agents:insights:" + strings.ToLower(kommune)
	var cached map[string]any
	if s.cache.Get(ctx, cacheKey, &cached) {
		return cached, nil
	}

	out := map[string]any{"kommune": kommune}
	toolRuns := make([]map[string]any, 0, len(insightTools))
	for _, tool := range insightTools {
		result, err := s.orchestrator.client.CallTool(ctx, tool, map[string]any{"kommune_name": kommune})
		if err != nil {
			return nil, err
		}
		telemetry.ObserveToolCall(tool, result.Status, result.Elapsed)
		if !result.OK() {
			return nil, fmt.Errorf("tool %s failed: %s", tool, result.ErrorMessage)
		}
		out[shortToolName(tool)] = result.Data
		toolRuns = append(toolRuns, map[string]any{"tool": tool, "status": "ok", "source": "duckdb"})
	}
	out["tool_runs"] = toolRuns

	s.cache.Set(ctx, cacheKey, out)
	return out, nil
}
