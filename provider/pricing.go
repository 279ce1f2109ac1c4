package provider

import "strings"

// Price is the cost in USD per 1K input and output tokens.
type Price struct {
	InputPer1K  float64
	OutputPer1K float64
}

// defaultPrice is the fallback for unknown models.
var defaultPrice = Price{InputPer1K: 0.001, OutputPer1K: 0.002}

// priceTable maps model name prefixes to prices. Longest-prefix match.
var priceTable = map[string]Price{
	"gpt-4o-mini":       {InputPer1K: 0.00015, OutputPer1K: 0.0006},
	"gpt-4o":            {InputPer1K: 0.0025, OutputPer1K: 0.01},
	"gpt-4-turbo":       {InputPer1K: 0.01, OutputPer1K: 0.03},
	"gpt-4":             {InputPer1K: 0.03, OutputPer1K: 0.06},
	"gpt-3.5-turbo":     {InputPer1K: 0.0005, OutputPer1K: 0.0015},
	"o1":                {InputPer1K: 0.015, OutputPer1K: 0.06},
	"claude-3-5-sonnet": {InputPer1K: 0.003, OutputPer1K: 0.015},
	"claude-3-5-haiku":  {InputPer1K: 0.0008, OutputPer1K: 0.004},
	"claude-3-opus":     {InputPer1K: 0.015, OutputPer1K: 0.075},
	"claude-3-haiku":    {InputPer1K: 0.00025, OutputPer1K: 0.00125},
}

// PriceFor returns the price for a model, falling back to a conservative
// default for unknown models.
func PriceFor(model string) Price {
	bestLen := -1
	best := defaultPrice
	for prefix, price := range priceTable {
		if strings.HasPrefix(model, prefix) && len(prefix) > bestLen {
			bestLen = len(prefix)
			best = price
		}
	}
	return best
}

// Cost computes the USD cost of a call.
func Cost(model string, inputTokens, outputTokens int) float64 {
	p := PriceFor(model)
	return float64(inputTokens)/1000*p.InputPer1K + float64(outputTokens)/1000*p.OutputPer1K
}
