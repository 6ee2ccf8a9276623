package agent

import (
	"strings"

	"github.com/sohailahmedkhan/agents/internal/registry"
)

// propertyKeywords and claimsKeywords are the static vocabularies the
// classifier scores against. Scores are normalized by set size, so the
// threshold is comparable even when the sets grow.
var propertyKeywords = []string{
	"building", "buildings", "property", "properties", "exposure",
	"occupancy", "area", "bruksareal", "heritage", "portfolio",
}

var claimsKeywords = []string{
	"claim", "claims", "peril", "perils", "paid",
	"reserved", "loss", "losses", "trends", "severity",
}

// Intent is the classification outcome for one question.
type Intent struct {
	Domains         []registry.Domain
	Scores          map[registry.Domain]float64
	MatchedKeywords []string
	// Ambiguous is set when no domain cleared the threshold and the
	// broad default was applied. Non-fatal; callers just log it.
	Ambiguous bool
}

// Has reports whether the intent includes the given domain.
func (in Intent) Has(d registry.Domain) bool {
	for _, got := range in.Domains {
		if got == d {
			return true
		}
	}
	return false
}

// Classifier scores a free-text question against the domain vocabularies.
// Deterministic and side-effect-free.
type Classifier struct {
	threshold float64
	property  map[string]struct{}
	claims    map[string]struct{}
}

// NewClassifier builds a classifier with the given score threshold.
func NewClassifier(threshold float64) *Classifier {
	toSet := func(words []string) map[string]struct{} {
		set := make(map[string]struct{}, len(words))
		for _, w := range words {
			set[w] = struct{}{}
		}
		return set
	}
	return &Classifier{
		threshold: threshold,
		property:  toSet(propertyKeywords),
		claims:    toSet(claimsKeywords),
	}
}

// Classify maps the question onto one or both domains. When neither
// vocabulary clears the threshold the broad default (both domains)
// applies, so classification never blocks a request.
func (c *Classifier) Classify(question string) Intent {
	tokens := tokenize(question)

	var matched []string
	var propertyHits, claimsHits int
	for _, token := range tokens {
		_, inProperty := c.property[token]
		_, inClaims := c.claims[token]
		if inProperty {
			propertyHits++
		}
		if inClaims {
			claimsHits++
		}
		if inProperty || inClaims {
			matched = append(matched, token)
		}
	}

	scores := map[registry.Domain]float64{
		registry.DomainProperty: float64(propertyHits) / float64(len(c.property)),
		registry.DomainClaims:   float64(claimsHits) / float64(len(c.claims)),
	}

	var domains []registry.Domain
	if scores[registry.DomainProperty] >= c.threshold {
		domains = append(domains, registry.DomainProperty)
	}
	if scores[registry.DomainClaims] >= c.threshold {
		domains = append(domains, registry.DomainClaims)
	}
	ambiguous := len(domains) == 0
	if ambiguous {
		domains = []registry.Domain{registry.DomainProperty, registry.DomainClaims}
	}
	return Intent{
		Domains:         domains,
		Scores:          scores,
		MatchedKeywords: matched,
		Ambiguous:       ambiguous,
	}
}

// tokenize lowercases and splits on anything that is not a letter or
// digit, keeping Norwegian letters intact.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		switch {
		case r >= 'a' && r <= 'z':
			return false
		case r >= '0' && r <= '9':
			return false
		case r == 'æ' || r == 'ø' || r == 'å':
			return false
		default:
			return true
		}
	})
}
