package agent

import (
	"testing"

	"github.com/sohailahmedkhan/agents/internal/registry"
)

func TestClassifyClaimsOnly(t *testing.T) {
	c := NewClassifier(0.1)
	intent := c.Classify("What are the claims trends in Bergen?")
	if !intent.Has(registry.DomainClaims) {
		t.Fatal("expected claims domain")
	}
	if intent.Has(registry.DomainProperty) {
		t.Fatal("did not expect property domain")
	}
	if intent.Ambiguous {
		t.Fatal("classification should not be ambiguous")
	}
	if len(intent.MatchedKeywords) == 0 {
		t.Fatal("expected matched keywords")
	}
}

func TestClassifyBothDomains(t *testing.T) {
	c := NewClassifier(0.1)
	intent := c.Classify("Show me building exposure and claims status for Bergen")
	if !intent.Has(registry.DomainProperty) || !intent.Has(registry.DomainClaims) {
		t.Fatalf("expected both domains, got %v", intent.Domains)
	}
	if intent.Ambiguous {
		t.Fatal("classification should not be ambiguous")
	}
}

func TestClassifyDefaultsToBroadRouting(t *testing.T) {
	c := NewClassifier(0.1)
	intent := c.Classify("Bergen")
	if !intent.Has(registry.DomainProperty) || !intent.Has(registry.DomainClaims) {
		t.Fatalf("expected broad default, got %v", intent.Domains)
	}
	if !intent.Ambiguous {
		t.Fatal("expected ambiguous flag on default routing")
	}
}

func TestClassifyDeterministic(t *testing.T) {
	c := NewClassifier(0.1)
	question := "building exposure and claim severity in Oslo"
	a := c.Classify(question)
	b := c.Classify(question)
	if len(a.Domains) != len(b.Domains) {
		t.Fatal("classification is not deterministic")
	}
	for i := range a.Domains {
		if a.Domains[i] != b.Domains[i] {
			t.Fatal("classification is not deterministic")
		}
	}
}

func TestClassifyThresholdBoundary(t *testing.T) {
	// A single property keyword scores 1/len(set). With the threshold
	// right at that score the domain is selected; just above it falls
	// back to broad routing.
	perKeyword := 1.0 / float64(len(propertyKeywords))

	at := NewClassifier(perKeyword).Classify("building")
	if at.Ambiguous {
		t.Fatal("score equal to threshold should select the domain")
	}
	if !at.Has(registry.DomainProperty) || at.Has(registry.DomainClaims) {
		t.Fatalf("expected property only, got %v", at.Domains)
	}

	above := NewClassifier(perKeyword * 1.01).Classify("building")
	if !above.Ambiguous {
		t.Fatal("score below threshold should fall back to broad routing")
	}
}

func TestClassifyCaseInsensitive(t *testing.T) {
	c := NewClassifier(0.1)
	intent := c.Classify("CLAIMS in Bergen")
	if !intent.Has(registry.DomainClaims) || intent.Has(registry.DomainProperty) {
		t.Fatalf("expected claims only, got %v", intent.Domains)
	}
}
