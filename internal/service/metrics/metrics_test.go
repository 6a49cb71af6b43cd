package metrics

import (
	"math"
	"testing"

	"ripple/internal/catalog"
)

func f64(v float64) *float64 { return &v }
func i64(v int64) *int64     { return &v }

func TestCostUSD(t *testing.T) {
	priced := &catalog.Entry{
		ID:                "priced",
		InputCostPerMTok:  f64(3.0),
		OutputCostPerMTok: f64(15.0),
	}
	unpriced := &catalog.Entry{ID: "unpriced"}

	tests := []struct {
		name  string
		entry *catalog.Entry
		usage Usage
		want  *float64
	}{
		{
			name:  "known pricing",
			entry: priced,
			usage: Usage{InputTokens: 1_000_000, OutputTokens: 100_000},
			want:  f64(3.0 + 1.5),
		},
		{
			name:  "thinking tokens bill as output",
			entry: priced,
			usage: Usage{InputTokens: 0, OutputTokens: 100_000, ThinkingTokens: 100_000},
			want:  f64(3.0),
		},
		{
			name:  "no pricing yields unknown",
			entry: unpriced,
			usage: Usage{InputTokens: 1000, OutputTokens: 1000},
			want:  nil,
		},
		{
			name:  "nil entry yields unknown",
			entry: nil,
			usage: Usage{InputTokens: 1000},
			want:  nil,
		},
		{
			name:  "zero usage with pricing is zero, not unknown",
			entry: priced,
			usage: Usage{},
			want:  f64(0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CostUSD(tt.entry, tt.usage)
			if (got == nil) != (tt.want == nil) {
				t.Fatalf("CostUSD() = %v, want %v", got, tt.want)
			}
			if got != nil && math.Abs(*got-*tt.want) > 1e-9 {
				t.Errorf("CostUSD() = %f, want %f", *got, *tt.want)
			}
		})
	}
}

func TestTokensPerSecond(t *testing.T) {
	tests := []struct {
		name         string
		outputTokens int
		totalMs      *int64
		ttftMs       *int64
		want         *float64
	}{
		{
			name:         "full window",
			outputTokens: 100,
			totalMs:      i64(2500),
			ttftMs:       i64(500),
			want:         f64(50),
		},
		{
			name:         "no ttft measured",
			outputTokens: 100,
			totalMs:      i64(2000),
			want:         f64(50),
		},
		{
			name:         "unmeasured duration",
			outputTokens: 100,
			want:         nil,
		},
		{
			name:    "no output tokens",
			totalMs: i64(1000),
			want:    nil,
		},
		{
			name:         "window collapses to zero",
			outputTokens: 10,
			totalMs:      i64(500),
			ttftMs:       i64(500),
			want:         nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TokensPerSecond(tt.outputTokens, tt.totalMs, tt.ttftMs)
			if (got == nil) != (tt.want == nil) {
				t.Fatalf("TokensPerSecond() = %v, want %v", got, tt.want)
			}
			if got != nil && math.Abs(*got-*tt.want) > 1e-9 {
				t.Errorf("TokensPerSecond() = %f, want %f", *got, *tt.want)
			}
		})
	}
}
