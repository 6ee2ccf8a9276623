package registry

import (
	"fmt"

	"github.com/sohailahmedkhan/agents/internal/apperr"
)

// Domain is a subject area an analysis belongs to.
type Domain string

const (
	DomainProperty Domain = "property"
	DomainClaims   Domain = "claims"
)

// AnalysisOption is one selectable analysis with its resolved tool plan.
type AnalysisOption struct {
	Key         string   `json:"key"`
	Label       string   `json:"label"`
	Description string   `json:"description"`
	Domain      Domain   `json:"-"`
	Tools       []string `json:"-"`
}

// Catalog enumerates the selectable analyses.
type Catalog struct {
	ordered []AnalysisOption
	byKey   map[string]AnalysisOption
}

// NewCatalog builds the static analysis catalog.
func NewCatalog() *Catalog {
	ordered := []AnalysisOption{
		{
			Key:         "portfolio_overview",
			Label:       "Portfolio Overview",
			Description: "High-level overview of municipality portfolio composition.",
			Domain:      DomainProperty,
			Tools:       []string{"duckdb_kommune_exposure_dashboard"},
		},
		{
			Key:         "risk_score",
			Label:       "Risk Score",
			Description: "Occupancy risk score and key contributors.",
			Domain:      DomainProperty,
			Tools: []string{
				"duckdb_kommune_occupancy_risk_mix",
				"duckdb_kommune_age_standard_proxy",
				"duckdb_kommune_status_underwriting",
			},
		},
		{
			Key:         "largest_properties",
			Label:       "Largest Properties",
			Description: "Largest buildings by floor area.",
			Domain:      DomainProperty,
			Tools:       []string{"duckdb_kommune_large_risk_schedule"},
		},
		{
			Key:         "data_quality",
			Label:       "Data Quality",
			Description: "Completeness and quality checks for key columns.",
			Domain:      DomainProperty,
			Tools:       []string{"duckdb_kommune_data_quality_score"},
		},
		{
			Key:         "claims_summary",
			Label:       "Claims Summary",
			Description: "Claim counts, paid totals, and peril mix for the kommune.",
			Domain:      DomainClaims,
			Tools:       []string{"duckdb_kommune_claims_summary"},
		},
		{
			Key:         "claims_trends",
			Label:       "Claims Trends",
			Description: "Claim frequency and severity development by year.",
			Domain:      DomainClaims,
			Tools:       []string{"duckdb_kommune_claims_trends"},
		},
	}
	byKey := make(map[string]AnalysisOption, len(ordered))
	for _, opt := range ordered {
		byKey[opt.Key] = opt
	}
	return &Catalog{ordered: ordered, byKey: byKey}
}

// Options returns analyses in declaration order.
func (c *Catalog) Options() []AnalysisOption {
	out := make([]AnalysisOption, len(c.ordered))
	copy(out, c.ordered)
	return out
}

// Resolve returns the analysis for key.
func (c *Catalog) Resolve(key string) (AnalysisOption, error) {
	opt, ok := c.byKey[key]
	if !ok {
		return AnalysisOption{}, fmt.Errorf("%w: unknown analysis key %q", apperr.ErrNotFound, key)
	}
	return opt, nil
}

// DefaultKeys returns the analyses run when the caller selects none,
// filtered by the classified domains.
func (c *Catalog) DefaultKeys(domains []Domain) []string {
	want := make(map[Domain]bool, len(domains))
	for _, d := range domains {
		want[d] = true
	}
	var keys []string
	for _, opt := range c.ordered {
		if want[opt.Domain] {
			keys = append(keys, opt.Key)
		}
	}
	return keys
}
