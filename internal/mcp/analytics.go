package mcp

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/sohailahmedkhan/agents/internal/apperr"
	"github.com/sohailahmedkhan/agents/internal/duckdb"
)

// kommuneExpr normalizes a kommune column or placeholder so that
// "Bergen", "Bergen Kommune", and "bergen kommune" all compare equal.
func kommuneExpr(ref string) string {
	return fmt.Sprintf("lower(trim(replace(replace(%s, ' Kommune', ''), ' kommune', '')))", ref)
}

var (
	kommuneCol   = kommuneExpr("kommune")
	kommuneParam = kommuneExpr("?")
)

// queryObjects runs a query and zips columns onto each row.
func (s *Server) queryObjects(ctx context.Context, sqlText string, params []any, limit int) ([]map[string]any, error) {
	res, err := s.gateway.Query(ctx, sqlText, params, limit)
	if err != nil {
		return nil, err
	}
	return rowsToObjects(res), nil
}

func rowsToObjects(res *duckdb.Result) []map[string]any {
	out := make([]map[string]any, 0, len(res.Rows))
	for _, row := range res.Rows {
		obj := make(map[string]any, len(res.Columns))
		for i, col := range res.Columns {
			if i < len(row) {
				obj[col] = row[i]
			}
		}
		out = append(out, obj)
	}
	return out
}

func toFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case float32:
		return float64(x)
	case int:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case uint64:
		return float64(x)
	case string:
		f, _ := strconv.ParseFloat(x, 64)
		return f
	default:
		return 0
	}
}

func toInt(v any) int { return int(math.Round(toFloat(v))) }

func round2(v any) float64 { return math.Round(toFloat(v)*100) / 100 }

func round1(v any) float64 { return math.Round(toFloat(v)*10) / 10 }

func normalizeKommuneValue(v string) string {
	base := strings.ToLower(strings.Join(strings.Fields(v), " "))
	return strings.TrimSuffix(base, " kommune")
}

// ---------- base tools ----------

func (s *Server) tHealth(ctx context.Context, _ map[string]any) (map[string]any, error) {
	h, err := s.gateway.Health(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"connected":   h.Connected,
		"db_path":     h.Path,
		"read_only":   h.ReadOnly,
		"allow_write": h.AllowWrite,
		"version":     h.Version,
	}, nil
}

func (s *Server) tListTables(ctx context.Context, _ map[string]any) (map[string]any, error) {
	tables, err := s.gateway.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"tables": tables}, nil
}

func (s *Server) tDescribeTable(ctx context.Context, args map[string]any) (map[string]any, error) {
	table := str(args["table"])
	if table == "" {
		return nil, fmt.Errorf("%w: table is required", apperr.ErrInvalidRequest)
	}
	schema := str(args["schema"])
	cols, err := s.gateway.DescribeTable(ctx, schema, table)
	if err != nil {
		return nil, err
	}
	if schema == "" {
		schema = "main"
	}
	return map[string]any{"schema": schema, "table": table, "columns": cols}, nil
}

func (s *Server) tQuery(ctx context.Context, args map[string]any) (map[string]any, error) {
	sqlText := str(args["sql"])
	var params []any
	if raw, ok := args["params"].([]any); ok {
		params = raw
	}
	limit, err := intArg(args, "limit", s.gateway.RowLimit(), 1, duckdb.MaxResultRows)
	if err != nil {
		return nil, err
	}
	res, err := s.gateway.Query(ctx, sqlText, params, limit)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"columns":   res.Columns,
		"rows":      res.Rows,
		"row_count": res.RowCount,
		"truncated": res.Truncated,
	}, nil
}

// ---------- kommune analytics ----------

func (s *Server) tOccupancyDistribution(ctx context.Context, args map[string]any) (map[string]any, error) {
	kommune, err := kommuneArg(args)
	if err != nil {
		return nil, err
	}
	limit, err := intArg(args, "limit", 30, 1, 500)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`
		WITH grouped AS (
		  SELECT
		    "Forenklet Bygningskategori" AS occupancy_category,
		    COUNT(*) AS building_count,
		    SUM(COALESCE("BruksarealTotalt", 0)) AS total_bruksareal
		  FROM main.properties
		  WHERE %s = %s
		    AND "Forenklet Bygningskategori" IS NOT NULL
		    AND trim("Forenklet Bygningskategori") <> ''
		  GROUP BY 1
		)
		SELECT
		  occupancy_category,
		  building_count,
		  total_bruksareal,
		  ROUND(100.0 * total_bruksareal / NULLIF(SUM(total_bruksareal) OVER (), 0), 2) AS share_percent
		FROM grouped
		ORDER BY total_bruksareal DESC, occupancy_category
		LIMIT ?`, kommuneCol, kommuneParam)
	rows, err := s.queryObjects(ctx, q, []any{kommune, limit}, limit)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"kommune":       kommune,
		"source_column": "Forenklet Bygningskategori",
		"rows":          rows,
	}, nil
}

func (s *Server) tLargestOccupancyArea(ctx context.Context, args map[string]any) (map[string]any, error) {
	kommune, err := kommuneArg(args)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`
		SELECT
		  "Forenklet Bygningskategori" AS occupancy_category,
		  SUM(COALESCE("BruksarealTotalt", 0)) AS total_bruksareal,
		  COUNT(*) AS building_count
		FROM main.properties
		WHERE %s = %s
		  AND "Forenklet Bygningskategori" IS NOT NULL
		  AND trim("Forenklet Bygningskategori") <> ''
		GROUP BY 1
		ORDER BY total_bruksareal DESC, building_count DESC, occupancy_category
		LIMIT 1`, kommuneCol, kommuneParam)
	rows, err := s.queryObjects(ctx, q, []any{kommune}, 1)
	if err != nil {
		return nil, err
	}
	out := map[string]any{
		"kommune":       kommune,
		"source_column": "Forenklet Bygningskategori",
		"metric_column": "BruksarealTotalt",
	}
	if len(rows) > 0 {
		out["row"] = rows[0]
	} else {
		out["row"] = nil
	}
	return out, nil
}

func (s *Server) tExposureDashboard(ctx context.Context, args map[string]any) (map[string]any, error) {
	kommune, err := kommuneArg(args)
	if err != nil {
		return nil, err
	}
	params := []any{kommune}

	portfolioRows, err := s.queryObjects(ctx, `
		SELECT
		  COUNT(*) AS total_properties,
		  SUM(COALESCE("BruksarealTotalt", 0)) AS total_bruksareal
		FROM main.properties`, nil, 1)
	if err != nil {
		return nil, err
	}
	selectedRows, err := s.queryObjects(ctx, fmt.Sprintf(`
		SELECT
		  COUNT(*) AS total_properties,
		  SUM(COALESCE("BruksarealTotalt", 0)) AS total_bruksareal
		FROM main.properties
		WHERE %s = %s`, kommuneCol, kommuneParam), params, 1)
	if err != nil {
		return nil, err
	}
	byKommuneRows, err := s.queryObjects(ctx, fmt.Sprintf(`
		WITH grouped AS (
		  SELECT
		    kommune,
		    COUNT(*) AS property_count,
		    SUM(COALESCE("BruksarealTotalt", 0)) AS total_bruksareal
		  FROM main.properties
		  WHERE %s = %s
		  GROUP BY 1
		),
		totals AS (
		  SELECT
		    COUNT(*) AS portfolio_property_count,
		    SUM(COALESCE("BruksarealTotalt", 0)) AS portfolio_total_bruksareal
		  FROM main.properties
		)
		SELECT
		  kommune,
		  property_count,
		  total_bruksareal,
		  ROUND(100.0 * property_count / NULLIF(portfolio_property_count, 0), 2) AS property_share_percent,
		  ROUND(100.0 * total_bruksareal / NULLIF(portfolio_total_bruksareal, 0), 2) AS area_share_percent
		FROM grouped, totals
		ORDER BY total_bruksareal DESC, property_count DESC, kommune`, kommuneCol, kommuneParam), params, 200)
	if err != nil {
		return nil, err
	}
	normalized := normalizeKommuneValue(kommune)
	for _, row := range byKommuneRows {
		name, _ := row["kommune"].(string)
		row["is_selected"] = normalizeKommuneValue(name) == normalized
	}

	concentrationRows, err := s.queryObjects(ctx, fmt.Sprintf(`
		WITH ranked AS (
		  SELECT
		    COALESCE("BruksarealTotalt", 0) AS area,
		    ROW_NUMBER() OVER (ORDER BY COALESCE("BruksarealTotalt", 0) DESC) AS rn
		  FROM main.properties
		  WHERE %s = %s
		),
		totals AS (SELECT SUM(area) AS total_area FROM ranked)
		SELECT
		  SUM(CASE WHEN rn <= 5 THEN area ELSE 0 END) AS top5_area,
		  ROUND(100.0 * SUM(CASE WHEN rn <= 5 THEN area ELSE 0 END) / NULLIF(MAX(total_area), 0), 2) AS top5_share_percent,
		  SUM(CASE WHEN rn <= 10 THEN area ELSE 0 END) AS top10_area,
		  ROUND(100.0 * SUM(CASE WHEN rn <= 10 THEN area ELSE 0 END) / NULLIF(MAX(total_area), 0), 2) AS top10_share_percent
		FROM ranked, totals`, kommuneCol, kommuneParam), params, 1)
	if err != nil {
		return nil, err
	}
	topRows, err := s.queryObjects(ctx, fmt.Sprintf(`
		WITH ranked AS (
		  SELECT
		    kommune,
		    COALESCE("Adresse", "Adressenavn", '-') AS address_label,
		    "Forenklet Bygningskategori" AS occupancy_category,
		    COALESCE("Bygningsstatus", 'MISSING') AS bygningsstatus,
		    COALESCE("TEK-standard", 'MISSING') AS tek_standard,
		    COALESCE("BruksarealTotalt", 0) AS total_bruksareal,
		    ROW_NUMBER() OVER (ORDER BY COALESCE("BruksarealTotalt", 0) DESC, COALESCE("Adresse", "Adressenavn", '-')) AS rn,
		    SUM(COALESCE("BruksarealTotalt", 0)) OVER () AS portfolio_area
		  FROM main.properties
		  WHERE %s = %s
		)
		SELECT
		  rn AS rank,
		  kommune,
		  address_label,
		  occupancy_category,
		  bygningsstatus,
		  tek_standard,
		  total_bruksareal,
		  ROUND(100.0 * total_bruksareal / NULLIF(portfolio_area, 0), 2) AS area_share_percent
		FROM ranked
		WHERE rn <= 10
		ORDER BY rn`, kommuneCol, kommuneParam), params, 10)
	if err != nil {
		return nil, err
	}

	portfolio := first(portfolioRows)
	selected := first(selectedRows)
	concentration := first(concentrationRows)
	portfolioProps := toInt(portfolio["total_properties"])
	selectedProps := toInt(selected["total_properties"])
	portfolioArea := toFloat(portfolio["total_bruksareal"])
	selectedArea := toFloat(selected["total_bruksareal"])

	return map[string]any{
		"kommune":                        kommune,
		"portfolio_total_properties":     portfolioProps,
		"portfolio_total_bruksareal":     round1(portfolioArea),
		"selected_kommune_properties":    selectedProps,
		"selected_kommune_bruksareal":    round1(selectedArea),
		"selected_property_share_percent": round2(100.0 * float64(selectedProps) / math.Max(float64(portfolioProps), 1)),
		"selected_area_share_percent":    round2(100.0 * selectedArea / math.Max(portfolioArea, 1)),
		"by_kommune":                     byKommuneRows,
		"concentration": map[string]any{
			"top5_area":           round1(concentration["top5_area"]),
			"top5_share_percent":  round2(concentration["top5_share_percent"]),
			"top10_area":          round1(concentration["top10_area"]),
			"top10_share_percent": round2(concentration["top10_share_percent"]),
		},
		"top_properties_by_area": topRows,
	}, nil
}

func (s *Server) occupancyMixRows(ctx context.Context, kommune string) ([]map[string]any, error) {
	return s.queryObjects(ctx, fmt.Sprintf(`
		WITH grouped AS (
		  SELECT
		    "Forenklet Bygningskategori" AS occupancy_category,
		    COUNT(*) AS building_count,
		    SUM(COALESCE("BruksarealTotalt", 0)) AS total_bruksareal
		  FROM main.properties
		  WHERE %s = %s
		    AND "Forenklet Bygningskategori" IS NOT NULL
		    AND TRIM("Forenklet Bygningskategori") <> ''
		  GROUP BY 1
		)
		SELECT
		  occupancy_category,
		  building_count,
		  total_bruksareal,
		  ROUND(100.0 * building_count / NULLIF(SUM(building_count) OVER (), 0), 2) AS count_share_percent,
		  ROUND(100.0 * total_bruksareal / NULLIF(SUM(total_bruksareal) OVER (), 0), 2) AS area_share_percent
		FROM grouped
		ORDER BY total_bruksareal DESC, occupancy_category`, kommuneCol, kommuneParam), []any{kommune}, 200)
}

func (s *Server) tOccupancyRiskMix(ctx context.Context, args map[string]any) (map[string]any, error) {
	kommune, err := kommuneArg(args)
	if err != nil {
		return nil, err
	}
	rows, err := s.occupancyMixRows(ctx, kommune)
	if err != nil {
		return nil, err
	}
	byCount := make([]map[string]any, len(rows))
	copy(byCount, rows)
	sort.SliceStable(byCount, func(i, j int) bool {
		ci, cj := toFloat(byCount[i]["building_count"]), toFloat(byCount[j]["building_count"])
		if ci != cj {
			return ci > cj
		}
		return toFloat(byCount[i]["total_bruksareal"]) > toFloat(byCount[j]["total_bruksareal"])
	})
	return map[string]any{
		"kommune":                 kommune,
		"by_category":             rows,
		"top_categories_by_area":  head(rows, 10),
		"top_categories_by_count": head(byCount, 10),
	}, nil
}

func (s *Server) tAgeStandardProxy(ctx context.Context, args map[string]any) (map[string]any, error) {
	kommune, err := kommuneArg(args)
	if err != nil {
		return nil, err
	}
	params := []any{kommune}
	tekRows, err := s.queryObjects(ctx, fmt.Sprintf(`
		WITH grouped AS (
		  SELECT
		    COALESCE("TEK-standard", 'MISSING') AS tek_standard,
		    COUNT(*) AS property_count,
		    SUM(COALESCE("BruksarealTotalt", 0)) AS total_bruksareal
		  FROM main.properties
		  WHERE %s = %s
		  GROUP BY 1
		)
		SELECT
		  tek_standard,
		  property_count,
		  total_bruksareal,
		  ROUND(100.0 * property_count / NULLIF(SUM(property_count) OVER (), 0), 2) AS property_share_percent,
		  ROUND(100.0 * total_bruksareal / NULLIF(SUM(total_bruksareal) OVER (), 0), 2) AS area_share_percent
		FROM grouped
		ORDER BY total_bruksareal DESC, tek_standard`, kommuneCol, kommuneParam), params, 200)
	if err != nil {
		return nil, err
	}
	ageRows, err := s.queryObjects(ctx, fmt.Sprintf(`
		WITH grouped AS (
		  SELECT
		    CASE
		      WHEN "TEK-standard" IN ('TEK17', 'TEK10') THEN '2010+'
		      WHEN "TEK-standard" IN ('TEK07', 'TEK97') THEN '1997-2009'
		      WHEN "TEK-standard" LIKE 'BF%%' THEN 'Pre-1997'
		      ELSE 'Unknown'
		    END AS age_band,
		    COUNT(*) AS property_count,
		    SUM(COALESCE("BruksarealTotalt", 0)) AS total_bruksareal
		  FROM main.properties
		  WHERE %s = %s
		  GROUP BY 1
		)
		SELECT
		  age_band,
		  property_count,
		  total_bruksareal,
		  ROUND(100.0 * total_bruksareal / NULLIF(SUM(total_bruksareal) OVER (), 0), 2) AS area_share_percent
		FROM grouped
		ORDER BY
		  CASE age_band
		    WHEN 'Pre-1997' THEN 1
		    WHEN '1997-2009' THEN 2
		    WHEN '2010+' THEN 3
		    ELSE 4
		  END`, kommuneCol, kommuneParam), params, 50)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"kommune":               kommune,
		"tek_distribution":      tekRows,
		"age_band_distribution": ageRows,
	}, nil
}

func (s *Server) tStatusUnderwriting(ctx context.Context, args map[string]any) (map[string]any, error) {
	kommune, err := kommuneArg(args)
	if err != nil {
		return nil, err
	}
	params := []any{kommune}
	distRows, err := s.queryObjects(ctx, fmt.Sprintf(`
		WITH grouped AS (
		  SELECT
		    COALESCE("Bygningsstatus", 'MISSING') AS bygningsstatus,
		    COUNT(*) AS property_count,
		    SUM(COALESCE("BruksarealTotalt", 0)) AS total_bruksareal
		  FROM main.properties
		  WHERE %s = %s
		  GROUP BY 1
		)
		SELECT
		  bygningsstatus,
		  property_count,
		  total_bruksareal,
		  ROUND(100.0 * property_count / NULLIF(SUM(property_count) OVER (), 0), 2) AS property_share_percent,
		  ROUND(100.0 * total_bruksareal / NULLIF(SUM(total_bruksareal) OVER (), 0), 2) AS area_share_percent
		FROM grouped
		ORDER BY total_bruksareal DESC, bygningsstatus`, kommuneCol, kommuneParam), params, 100)
	if err != nil {
		return nil, err
	}
	problematicRows, err := s.queryObjects(ctx, fmt.Sprintf(`
		SELECT
		  kommune,
		  COALESCE("Adresse", "Adressenavn", '-') AS address_label,
		  "Forenklet Bygningskategori" AS occupancy_category,
		  "Bygningsstatus" AS bygningsstatus,
		  "TEK-standard" AS tek_standard,
		  COALESCE("BruksarealTotalt", 0) AS total_bruksareal
		FROM main.properties
		WHERE %s = %s
		  AND (
		    LOWER(COALESCE("Bygningsstatus", '')) LIKE '%%riving%%'
		    OR LOWER(COALESCE("Bygningsstatus", '')) LIKE '%%brenning%%'
		    OR LOWER(COALESCE("Bygningsstatus", '')) LIKE '%%kondemn%%'
		    OR LOWER(COALESCE("Bygningsstatus", '')) LIKE '%%ikke godkjent%%'
		  )
		ORDER BY total_bruksareal DESC, address_label
		LIMIT 50`, kommuneCol, kommuneParam), params, 50)
	if err != nil {
		return nil, err
	}

	statusSet := map[string]struct{}{}
	for _, row := range distRows {
		status, _ := row["bygningsstatus"].(string)
		lower := strings.ToLower(status)
		for _, token := range []string{"riving", "brenning", "kondemn", "ikke godkjent"} {
			if strings.Contains(lower, token) {
				statusSet[strings.TrimSpace(status)] = struct{}{}
				break
			}
		}
	}
	problematic := make([]string, 0, len(statusSet))
	for status := range statusSet {
		problematic = append(problematic, status)
	}
	sort.Strings(problematic)

	return map[string]any{
		"kommune":                kommune,
		"distribution":           distRows,
		"problematic_statuses":   problematic,
		"problematic_properties": problematicRows,
	}, nil
}

func (s *Server) tLargeRiskSchedule(ctx context.Context, args map[string]any) (map[string]any, error) {
	kommune, err := kommuneArg(args)
	if err != nil {
		return nil, err
	}
	limit, err := intArg(args, "limit", 20, 1, 500)
	if err != nil {
		return nil, err
	}
	rows, err := s.queryObjects(ctx, fmt.Sprintf(`
		SELECT
		  kommune,
		  COALESCE("Adresse", "Adressenavn", '-') AS address_label,
		  "Forenklet Bygningskategori" AS occupancy_category,
		  "Bygningsstatus" AS bygningsstatus,
		  "TEK-standard" AS tek_standard,
		  COALESCE("BruksarealTotalt", 0) AS total_bruksareal
		FROM main.properties
		WHERE %s = %s
		ORDER BY total_bruksareal DESC, occupancy_category, address_label
		LIMIT ?`, kommuneCol, kommuneParam), []any{kommune, limit}, limit)
	if err != nil {
		return nil, err
	}
	for i, row := range rows {
		row["rank"] = i + 1
	}
	return map[string]any{"kommune": kommune, "rows": rows}, nil
}

func (s *Server) tHeritageFlags(ctx context.Context, args map[string]any) (map[string]any, error) {
	kommune, err := kommuneArg(args)
	if err != nil {
		return nil, err
	}
	params := []any{kommune}
	rows, err := s.queryObjects(ctx, fmt.Sprintf(`
		SELECT
		  kommune,
		  COALESCE("Adresse", "Adressenavn", '-') AS address_label,
		  "Forenklet Bygningskategori" AS occupancy_category,
		  COALESCE("BruksarealTotalt", 0) AS total_bruksareal,
		  COALESCE("HarSefrakminne", 0) AS har_sefrakminne,
		  COALESCE("HarKulturminne", 0) AS har_kulturminne,
		  COALESCE("Skjermingsverdig", 0) AS skjermingsverdig
		FROM main.properties
		WHERE %s = %s
		  AND (
		    COALESCE("HarSefrakminne", 0) = 1
		    OR COALESCE("HarKulturminne", 0) = 1
		    OR COALESCE("Skjermingsverdig", 0) = 1
		  )
		ORDER BY total_bruksareal DESC, address_label
		LIMIT 50`, kommuneCol, kommuneParam), params, 50)
	if err != nil {
		return nil, err
	}
	summaryRows, err := s.queryObjects(ctx, fmt.Sprintf(`
		SELECT
		  SUM(CASE WHEN COALESCE("HarSefrakminne", 0) = 1 THEN 1 ELSE 0 END) AS sefrak_count,
		  SUM(CASE WHEN COALESCE("HarKulturminne", 0) = 1 THEN 1 ELSE 0 END) AS kulturminne_count,
		  SUM(CASE WHEN COALESCE("Skjermingsverdig", 0) = 1 THEN 1 ELSE 0 END) AS skjermingsverdig_count
		FROM main.properties
		WHERE %s = %s`, kommuneCol, kommuneParam), params, 1)
	if err != nil {
		return nil, err
	}
	summary := first(summaryRows)
	return map[string]any{
		"kommune": kommune,
		"summary": map[string]any{
			"sefrak_count":           toInt(summary["sefrak_count"]),
			"kulturminne_count":      toInt(summary["kulturminne_count"]),
			"skjermingsverdig_count": toInt(summary["skjermingsverdig_count"]),
			"any_flag_count":         len(rows),
		},
		"rows": rows,
	}, nil
}

func (s *Server) tTenantActivityProxy(ctx context.Context, args map[string]any) (map[string]any, error) {
	kommune, err := kommuneArg(args)
	if err != nil {
		return nil, err
	}
	params := []any{kommune}
	summaryRows, err := s.queryObjects(ctx, fmt.Sprintf(`
		SELECT
		  COUNT(*) AS total_properties,
		  SUM(CASE WHEN COALESCE("Antall Underenheter", 0) > 0 THEN 1 ELSE 0 END) AS with_tenants_count,
		  SUM(CASE WHEN COALESCE("Antall Underenheter", 0) > 0 THEN COALESCE("BruksarealTotalt", 0) ELSE 0 END) AS with_tenants_area,
		  MAX(COALESCE("Antall Underenheter", 0)) AS max_underenheter,
		  SUM(CASE WHEN COALESCE("AntallEiere", 0) > 1 THEN 1 ELSE 0 END) AS multi_owner_count
		FROM main.properties
		WHERE %s = %s`, kommuneCol, kommuneParam), params, 1)
	if err != nil {
		return nil, err
	}
	topRows, err := s.queryObjects(ctx, fmt.Sprintf(`
		SELECT
		  kommune,
		  COALESCE("Adresse", "Adressenavn", '-') AS address_label,
		  "Forenklet Bygningskategori" AS occupancy_category,
		  COALESCE("Antall Underenheter", 0) AS antall_underenheter,
		  COALESCE("BruksarealTotalt", 0) AS total_bruksareal,
		  COALESCE("AntallEiere", 0) AS antall_eiere,
		  COALESCE("Underenheter", '') AS underenheter
		FROM main.properties
		WHERE %s = %s
		  AND COALESCE("Antall Underenheter", 0) > 0
		ORDER BY antall_underenheter DESC, total_bruksareal DESC, address_label
		LIMIT 20`, kommuneCol, kommuneParam), params, 20)
	if err != nil {
		return nil, err
	}
	summary := first(summaryRows)
	total := math.Max(float64(toInt(summary["total_properties"])), 1)
	withTenants := toInt(summary["with_tenants_count"])
	return map[string]any{
		"kommune": kommune,
		"summary": map[string]any{
			"total_properties":           toInt(summary["total_properties"]),
			"with_tenants_count":         withTenants,
			"with_tenants_share_percent": round2(100.0 * float64(withTenants) / total),
			"with_tenants_area":          round1(summary["with_tenants_area"]),
			"max_underenheter":           toInt(summary["max_underenheter"]),
			"multi_owner_count":          toInt(summary["multi_owner_count"]),
		},
		"top_rows": topRows,
	}, nil
}

// qualityField is one completeness check over the properties table.
type qualityField struct {
	field string
	label string
	col   string
}

var qualityFields = []qualityField{
	{"area_valid", "Valid Area (>0)", "area_valid_count"},
	{"address_present", "Address", "address_present_count"},
	{"geo_present", "Lat/Lon", "geo_present_count"},
	{"utilities_present", "Water + Sewage", "utilities_present_count"},
	{"heating_energy_present", "Heating/Energy", "heating_energy_present_count"},
	{"status_present", "Building Status", "status_present_count"},
	{"tek_present", "TEK Standard", "tek_present_count"},
}

// scoreFields are the checks that feed the composite score.
var scoreFields = map[string]bool{
	"area_valid":             true,
	"address_present":        true,
	"geo_present":            true,
	"utilities_present":      true,
	"heating_energy_present": true,
}

func (s *Server) tDataQualityScore(ctx context.Context, args map[string]any) (map[string]any, error) {
	kommune, err := kommuneArg(args)
	if err != nil {
		return nil, err
	}
	rows, err := s.queryObjects(ctx, fmt.Sprintf(`
		SELECT
		  COUNT(*) AS total_properties,
		  SUM(CASE WHEN COALESCE("BruksarealTotalt", 0) > 0 THEN 1 ELSE 0 END) AS area_valid_count,
		  SUM(CASE WHEN "Adresse" IS NOT NULL AND TRIM("Adresse") <> '' THEN 1 ELSE 0 END) AS address_present_count,
		  SUM(CASE WHEN "Lat" IS NOT NULL AND "Lon" IS NOT NULL THEN 1 ELSE 0 END) AS geo_present_count,
		  SUM(CASE WHEN "VannforsyningsKodeId" IS NOT NULL AND "AvlopsKodeId" IS NOT NULL THEN 1 ELSE 0 END) AS utilities_present_count,
		  SUM(CASE WHEN "OppvarmingsKodeIds" IS NOT NULL OR "EnergikildeKodeIds" IS NOT NULL THEN 1 ELSE 0 END) AS heating_energy_present_count,
		  SUM(CASE WHEN "Bygningsstatus" IS NOT NULL AND TRIM("Bygningsstatus") <> '' THEN 1 ELSE 0 END) AS status_present_count,
		  SUM(CASE WHEN "TEK-standard" IS NOT NULL AND TRIM("TEK-standard") <> '' THEN 1 ELSE 0 END) AS tek_present_count
		FROM main.properties
		WHERE %s = %s`, kommuneCol, kommuneParam), []any{kommune}, 1)
	if err != nil {
		return nil, err
	}
	row := first(rows)
	total := toInt(row["total_properties"])
	denom := float64(total)
	if denom < 1 {
		denom = 1
	}

	fields := make([]map[string]any, 0, len(qualityFields))
	gaps := make([]map[string]any, 0)
	var scoreSum float64
	var scoreN int
	for _, qf := range qualityFields {
		present := toInt(row[qf.col])
		completeness := round2(100.0 * float64(present) / denom)
		entry := map[string]any{
			"field":                qf.field,
			"label":                qf.label,
			"present_count":        present,
			"completeness_percent": completeness,
			"missing_count":        int(denom) - present,
		}
		fields = append(fields, entry)
		if completeness < 90.0 {
			gaps = append(gaps, entry)
		}
		if scoreFields[qf.field] {
			scoreSum += completeness
			scoreN++
		}
	}
	score := 0.0
	if scoreN > 0 {
		score = round2(scoreSum / float64(scoreN))
	}

	return map[string]any{
		"kommune":          kommune,
		"score_percent":    score,
		"total_properties": total,
		"fields":           fields,
		"gaps":             gaps,
	}, nil
}

// tUnderwritingAnalytics composes the full analytics package section by
// section. One failed section fails the whole call.
func (s *Server) tUnderwritingAnalytics(ctx context.Context, args map[string]any) (map[string]any, error) {
	if _, err := kommuneArg(args); err != nil {
		return nil, err
	}
	sections := []struct {
		key string
		fn  handlerFunc
	}{
		{"exposure_dashboard", s.tExposureDashboard},
		{"occupancy_risk_mix", s.tOccupancyRiskMix},
		{"age_standard_proxy", s.tAgeStandardProxy},
		{"status_underwriting", s.tStatusUnderwriting},
		{"large_risk_schedule", s.tLargeRiskSchedule},
		{"heritage_flags", s.tHeritageFlags},
		{"tenant_activity_proxy", s.tTenantActivityProxy},
		{"data_quality", s.tDataQualityScore},
	}
	out := make(map[string]any, len(sections))
	for _, section := range sections {
		data, err := section.fn(ctx, args)
		if err != nil {
			return nil, fmt.Errorf("building %s: %w", section.key, err)
		}
		out[section.key] = data
	}
	return out, nil
}

func first(rows []map[string]any) map[string]any {
	if len(rows) > 0 {
		return rows[0]
	}
	return map[string]any{}
}

func head(rows []map[string]any, n int) []map[string]any {
	if len(rows) <= n {
		return rows
	}
	return rows[:n]
}
