package mcp

import (
	"context"
	"fmt"
	"math"
)

// Claims tools read main.claims, which mirrors the properties table's
// kommune naming so the same normalization applies.

func (s *Server) tClaimsSummary(ctx context.Context, args map[string]any) (map[string]any, error) {
	kommune, err := kommuneArg(args)
	if err != nil {
		return nil, err
	}
	limit, err := intArg(args, "limit", 20, 1, 500)
	if err != nil {
		return nil, err
	}
	params := []any{kommune}

	totalRows, err := s.queryObjects(ctx, fmt.Sprintf(`
		SELECT
		  COUNT(*) AS claim_count,
		  SUM(COALESCE(paid_amount, 0)) AS total_paid,
		  SUM(COALESCE(reserved_amount, 0)) AS total_reserved,
		  SUM(CASE WHEN LOWER(COALESCE(status, '')) = 'open' THEN 1 ELSE 0 END) AS open_count,
		  SUM(CASE WHEN LOWER(COALESCE(status, '')) = 'closed' THEN 1 ELSE 0 END) AS closed_count
		FROM main.claims
		WHERE %s = %s`, kommuneCol, kommuneParam), params, 1)
	if err != nil {
		return nil, err
	}
	perilRows, err := s.queryObjects(ctx, fmt.Sprintf(`
		WITH grouped AS (
		  SELECT
		    COALESCE(peril, 'UNKNOWN') AS peril,
		    COUNT(*) AS claim_count,
		    SUM(COALESCE(paid_amount, 0)) AS total_paid,
		    SUM(COALESCE(reserved_amount, 0)) AS total_reserved
		  FROM main.claims
		  WHERE %s = %s
		  GROUP BY 1
		)
		SELECT
		  peril,
		  claim_count,
		  total_paid,
		  total_reserved,
		  ROUND(100.0 * claim_count / NULLIF(SUM(claim_count) OVER (), 0), 2) AS claim_share_percent,
		  ROUND(100.0 * total_paid / NULLIF(SUM(total_paid) OVER (), 0), 2) AS paid_share_percent
		FROM grouped
		ORDER BY total_paid DESC, peril
		LIMIT ?`, kommuneCol, kommuneParam), []any{kommune, limit}, limit)
	if err != nil {
		return nil, err
	}
	largestRows, err := s.queryObjects(ctx, fmt.Sprintf(`
		SELECT
		  kommune,
		  claim_year,
		  COALESCE(peril, 'UNKNOWN') AS peril,
		  COALESCE(status, 'UNKNOWN') AS status,
		  COALESCE(paid_amount, 0) AS paid_amount,
		  COALESCE(reserved_amount, 0) AS reserved_amount
		FROM main.claims
		WHERE %s = %s
		ORDER BY paid_amount DESC, claim_year DESC
		LIMIT 10`, kommuneCol, kommuneParam), params, 10)
	if err != nil {
		return nil, err
	}

	total := first(totalRows)
	claimCount := toInt(total["claim_count"])
	totalPaid := toFloat(total["total_paid"])
	avgPaid := 0.0
	if claimCount > 0 {
		avgPaid = round2(totalPaid / float64(claimCount))
	}
	return map[string]any{
		"kommune": kommune,
		"summary": map[string]any{
			"claim_count":    claimCount,
			"total_paid":     round1(totalPaid),
			"total_reserved": round1(total["total_reserved"]),
			"open_count":     toInt(total["open_count"]),
			"closed_count":   toInt(total["closed_count"]),
			"average_paid":   avgPaid,
		},
		"by_peril":       perilRows,
		"largest_claims": largestRows,
	}, nil
}

func (s *Server) tClaimsTrends(ctx context.Context, args map[string]any) (map[string]any, error) {
	kommune, err := kommuneArg(args)
	if err != nil {
		return nil, err
	}
	rows, err := s.queryObjects(ctx, fmt.Sprintf(`
		WITH grouped AS (
		  SELECT
		    claim_year,
		    COUNT(*) AS claim_count,
		    SUM(COALESCE(paid_amount, 0)) AS total_paid,
		    SUM(COALESCE(reserved_amount, 0)) AS total_reserved
		  FROM main.claims
		  WHERE %s = %s
		  GROUP BY 1
		)
		SELECT
		  claim_year,
		  claim_count,
		  total_paid,
		  total_reserved,
		  ROUND(total_paid / NULLIF(claim_count, 0), 2) AS average_paid
		FROM grouped
		ORDER BY claim_year`, kommuneCol, kommuneParam), []any{kommune}, 100)
	if err != nil {
		return nil, err
	}

	// Simple year-over-year deltas on claim counts.
	var prev float64
	for i, row := range rows {
		count := toFloat(row["claim_count"])
		if i == 0 {
			row["count_change_percent"] = nil
		} else {
			row["count_change_percent"] = round2(100.0 * (count - prev) / math.Max(prev, 1))
		}
		prev = count
	}
	return map[string]any{"kommune": kommune, "by_year": rows}, nil
}
