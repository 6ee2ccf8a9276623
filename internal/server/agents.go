package server

import (
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sohailahmedkhan/agents/internal/agent"
	"github.com/sohailahmedkhan/agents/internal/apperr"
	"github.com/sohailahmedkhan/agents/internal/duckdb"
	"github.com/sohailahmedkhan/agents/internal/mcp"
	"github.com/sohailahmedkhan/agents/internal/registry"
)

// AgentsHandler exposes the orchestration and tool-invocation endpoints.
type AgentsHandler struct {
	Orchestrator *agent.Orchestrator
	Insights     *agent.InsightsService
	Client       mcp.Client
	Gateway      *duckdb.Service
	Catalog      *registry.Catalog
	Logger       *log.Logger
}

func (h *AgentsHandler) Register(g *echo.Group) {
	g.GET("/health", h.health)
	g.GET("/analysis-options", h.analysisOptions)
	g.POST("/chat", h.chat)
	g.GET("/kommuner", h.kommuner)
	g.GET("/kommune-insights", h.kommuneInsights)
	g.GET("/tools", h.tools)
	g.POST("/tools/invoke", h.invokeTool)
	g.GET("/mcp/tools", h.tools)
	g.GET("/mcp/resources", h.mcpResources)
	g.GET("/mcp/resource", h.mcpResource)
	g.GET("/duckdb/health", h.duckdbHealth)
	g.GET("/duckdb/tables", h.duckdbTables)
	g.POST("/duckdb/query", h.duckdbQuery)
}

func httpError(err error) *echo.HTTPError {
	return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
}

func (h *AgentsHandler) health(c echo.Context) error {
	dbHealth, err := h.Gateway.Health(c.Request().Context())
	status := "ok"
	report := map[string]any{"status": status, "duckdb": dbHealth}
	if err != nil {
		report["status"] = "degraded"
		report["duckdb_error"] = err.Error()
	}
	if _, terr := h.Client.ListTools(c.Request().Context()); terr != nil {
		report["status"] = "degraded"
		report["transport_error"] = terr.Error()
	}
	return c.JSON(http.StatusOK, report)
}

func (h *AgentsHandler) analysisOptions(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"options": h.Catalog.Options()})
}

func (h *AgentsHandler) chat(c echo.Context) error {
	var req agent.ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	resp, err := h.Orchestrator.Run(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

// kommuner lists the distinct kommune names present in the store,
// through the same tool path the agents use.
func (h *AgentsHandler) kommuner(c echo.Context) error {
	result, err := h.Client.CallTool(c.Request().Context(), "duckdb_query", map[string]any{
		"sql":   "SELECT DISTINCT kommune FROM main.properties ORDER BY kommune",
		"limit": 500,
	})
	if err != nil {
		return httpError(err)
	}
	if !result.OK() {
		return echo.NewHTTPError(http.StatusBadGateway, result.ErrorMessage)
	}
	names := make([]string, 0)
	if rows, ok := result.Data["rows"].([]any); ok {
		for _, row := range rows {
			if cells, ok := row.([]any); ok && len(cells) > 0 {
				if name, ok := cells[0].(string); ok {
					names = append(names, name)
				}
			}
		}
	}
	return c.JSON(http.StatusOK, map[string]any{"kommuner": names})
}

func (h *AgentsHandler) kommuneInsights(c echo.Context) error {
	kommune := c.QueryParam("kommune")
	if kommune == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "kommune query parameter is required")
	}
	out, err := h.Insights.KommuneInsights(c.Request().Context(), kommune)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AgentsHandler) tools(c echo.Context) error {
	tools, err := h.Client.ListTools(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"tools": tools})
}

type invokeRequest struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

func (h *AgentsHandler) invokeTool(c echo.Context) error {
	var req invokeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name is required")
	}
	result, err := h.Client.CallTool(c.Request().Context(), req.Name, req.Args)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *AgentsHandler) mcpResources(c echo.Context) error {
	resources, err := h.Client.ListResources(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"resources": resources})
}

func (h *AgentsHandler) mcpResource(c echo.Context) error {
	uri := c.QueryParam("uri")
	if uri == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "uri query parameter is required")
	}
	out, err := h.Client.ReadResource(c.Request().Context(), uri)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AgentsHandler) duckdbHealth(c echo.Context) error {
	health, err := h.Gateway.Health(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, health)
}

func (h *AgentsHandler) duckdbTables(c echo.Context) error {
	tables, err := h.Gateway.ListTables(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"tables": tables})
}

type queryRequest struct {
	SQL    string `json:"sql"`
	Params []any  `json:"params"`
	Limit  int    `json:"limit"`
}

func (h *AgentsHandler) duckdbQuery(c echo.Context) error {
	var req queryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	result, err := h.Gateway.Query(c.Request().Context(), req.SQL, req.Params, req.Limit)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, result)
}
