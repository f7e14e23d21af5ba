package pipeline

import (
	"github.com/zen-systems/switchboard/pkg/adapter"
	"github.com/zen-systems/switchboard/pkg/config"
	"github.com/zen-systems/switchboard/pkg/schema"
)

// Cost is a pricing-table estimate for one backend call.
type Cost struct {
	Currency     string  `json:"currency"`
	Amount       float64 `json:"amount"`
	IsEstimate   bool    `json:"is_estimate"`
	PricingModel string  `json:"pricing_model"`
}

type costTracker struct {
	pricing     config.PricingConfig
	totalUsage  adapter.Usage
	totalAmount float64
	priced      bool
}

func newCostTracker(pricing config.PricingConfig) *costTracker {
	return &costTracker{pricing: pricing}
}

// record adds a call's usage and returns its estimated cost, if priced.
func (t *costTracker) record(backendID string, usage adapter.Usage) (Cost, bool) {
	usage = normalizeUsage(usage)
	t.totalUsage = t.totalUsage.Add(usage)

	cost, ok := estimateCost(t.pricing, backendID, usage)
	if ok {
		t.totalAmount += cost.Amount
		t.priced = true
	}
	return cost, ok
}

// total returns the summed estimate over every priced call.
func (t *costTracker) total() (float64, bool) {
	return t.totalAmount, t.priced
}

func (t *costTracker) usage() schema.Usage {
	return schema.Usage{
		PromptTokens:     t.totalUsage.PromptTokens,
		CompletionTokens: t.totalUsage.CompletionTokens,
		TotalTokens:      t.totalUsage.TotalTokens,
	}
}

func normalizeUsage(usage adapter.Usage) adapter.Usage {
	if usage.TotalTokens == 0 && (usage.PromptTokens > 0 || usage.CompletionTokens > 0) {
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}
	return usage
}

func estimateCost(pricing config.PricingConfig, backendID string, usage adapter.Usage) (Cost, bool) {
	entry, ok := pricingFor(pricing, backendID)
	if !ok {
		return Cost{Currency: "USD"}, false
	}

	promptCost := (float64(usage.PromptTokens) / 1000.0) * entry.PromptPer1K
	completionCost := (float64(usage.CompletionTokens) / 1000.0) * entry.CompletionPer1K
	return Cost{
		Currency:     "USD",
		Amount:       promptCost + completionCost,
		IsEstimate:   true,
		PricingModel: "per_1k_tokens",
	}, true
}

func pricingFor(pricing config.PricingConfig, backendID string) (config.ModelPricing, bool) {
	if pricing == nil {
		return config.ModelPricing{}, false
	}
	if entry, ok := pricing[backendID]; ok {
		return entry, true
	}
	entry, ok := pricing["default"]
	return entry, ok
}
