// Package metrics derives cost and throughput figures from raw stream
// counters. All functions are pure; unknown inputs yield nil outputs, and
// unknown is a valid terminal value for every derived metric.
package metrics

import (
	"ripple/internal/catalog"
)

// Usage is the raw accounting collected over one generation.
type Usage struct {
	InputTokens    int
	OutputTokens   int
	ThinkingTokens int
}

// CostUSD computes the dollar cost of a generation from catalog pricing.
// Returns nil when the entry has no pricing; a missing price is never
// reported as zero cost. Thinking tokens bill as output tokens.
func CostUSD(entry *catalog.Entry, usage Usage) *float64 {
	if entry == nil || entry.InputCostPerMTok == nil || entry.OutputCostPerMTok == nil {
		return nil
	}

	const mtok = 1_000_000.0
	cost := float64(usage.InputTokens)*(*entry.InputCostPerMTok)/mtok +
		float64(usage.OutputTokens+usage.ThinkingTokens)*(*entry.OutputCostPerMTok)/mtok
	return &cost
}

// TokensPerSecond computes generation throughput over the streaming window,
// from first token to completion. Returns nil when the window is empty or
// unmeasured.
func TokensPerSecond(outputTokens int, totalMs, ttftMs *int64) *float64 {
	if totalMs == nil || outputTokens <= 0 {
		return nil
	}

	window := *totalMs
	if ttftMs != nil {
		window -= *ttftMs
	}
	if window <= 0 {
		return nil
	}

	tps := float64(outputTokens) / (float64(window) / 1000.0)
	return &tps
}
