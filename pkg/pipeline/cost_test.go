package pipeline

import (
	"math"
	"testing"

	"github.com/zen-systems/switchboard/pkg/adapter"
	"github.com/zen-systems/switchboard/pkg/config"
)

func TestEstimateCostAndTotals(t *testing.T) {
	pricing := config.PricingConfig{
		"fallback": {PromptPer1K: 0.15, CompletionPer1K: 0.60},
	}

	usage := adapter.Usage{PromptTokens: 1000, CompletionTokens: 500}
	cost, ok := estimateCost(pricing, "fallback", usage)
	if !ok {
		t.Fatalf("expected pricing match")
	}
	want := 0.15 + 0.30
	if math.Abs(cost.Amount-want) > 1e-6 {
		t.Fatalf("cost amount mismatch: got %.4f want %.4f", cost.Amount, want)
	}

	tracker := newCostTracker(pricing)
	tracker.record("fallback", usage)
	tracker.record("fallback", usage)
	tracker.record("unpriced", adapter.Usage{PromptTokens: 10})

	total := tracker.usage()
	if total.PromptTokens != 2010 {
		t.Fatalf("expected prompt tokens to sum to 2010, got %d", total.PromptTokens)
	}
	if total.TotalTokens != 3010 {
		t.Fatalf("expected normalized total tokens 3010, got %d", total.TotalTokens)
	}
	if math.Abs(tracker.totalAmount-(want*2)) > 1e-6 {
		t.Fatalf("expected total cost %.4f, got %.4f", want*2, tracker.totalAmount)
	}
}

func TestEstimateCostDefaultEntry(t *testing.T) {
	pricing := config.PricingConfig{"default": {PromptPer1K: 1}}
	cost, ok := estimateCost(pricing, "anything", adapter.Usage{PromptTokens: 500})
	if !ok || math.Abs(cost.Amount-0.5) > 1e-9 {
		t.Fatalf("expected default pricing, got %+v ok=%v", cost, ok)
	}

	if _, ok := estimateCost(nil, "coder", adapter.Usage{PromptTokens: 1}); ok {
		t.Fatalf("nil pricing should not match")
	}
}
