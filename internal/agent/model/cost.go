package model

import (
	"github.com/cloudwego/eino/schema"
)

// Pricing defines USD cost per 1M tokens for input/output.
type Pricing struct {
	InputPerM  float64
	OutputPerM float64
}

// defaultPricing is the Gemini text pricing (standard tier) per 1M tokens.
var defaultPricing = map[string]Pricing{
	"gemini-2.5-pro":        {InputPerM: 1.25, OutputPerM: 10.00},
	"gemini-2.5-flash":      {InputPerM: 0.30, OutputPerM: 2.50},
	"gemini-2.5-flash-lite": {InputPerM: 0.10, OutputPerM: 0.40},
}

// ResolvePricing returns the pricing for a model, zero when unknown.
func ResolvePricing(model string) Pricing {
	return defaultPricing[model]
}

// UsageCost is the priced token usage of one model call.
type UsageCost struct {
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	InputCost        float64
	OutputCost       float64
	TotalCost        float64
}

// ComputeCost prices the usage reported on a model response. ok is false when the
// provider did not report usage.
func ComputeCost(model string, msg *schema.Message) (cost UsageCost, ok bool) {
	if msg == nil || msg.ResponseMeta == nil || msg.ResponseMeta.Usage == nil {
		return UsageCost{}, false
	}
	usage := msg.ResponseMeta.Usage
	p := ResolvePricing(model)
	cost = UsageCost{
		Model:            model,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      usage.TotalTokens,
		InputCost:        p.InputPerM * float64(usage.PromptTokens) / 1_000_000.0,
		OutputCost:       p.OutputPerM * float64(usage.CompletionTokens) / 1_000_000.0,
	}
	cost.TotalCost = cost.InputCost + cost.OutputCost
	return cost, true
}
