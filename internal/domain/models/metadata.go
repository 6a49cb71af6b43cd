package models

// MessageMetadata is the metadata accumulated over an assistant generation
// and persisted with the message. Individual fields are filled in as the
// stream reaches the corresponding checkpoint: TimeToFirstTokenMs on the
// first content delta, ThinkingDurationMs when a thinking part closes,
// token totals and cost on finish, Error on failure. Pointer fields are nil
// when the value is unknown, and unknown is a valid terminal state (a model
// without pricing yields nil CostUSD, never zero).
type MessageMetadata struct {
	Model              string   `json:"model,omitempty"`
	StopReason         string   `json:"stop_reason,omitempty"`
	TimeToFirstTokenMs *int64   `json:"time_to_first_token_ms,omitempty"`
	ThinkingDurationMs *int64   `json:"thinking_duration_ms,omitempty"`
	TotalDurationMs    *int64   `json:"total_duration_ms,omitempty"`
	InputTokens        *int     `json:"input_tokens,omitempty"`
	OutputTokens       *int     `json:"output_tokens,omitempty"`
	ThinkingTokens     *int     `json:"thinking_tokens,omitempty"`
	CostUSD            *float64 `json:"cost_usd,omitempty"`
	TokensPerSecond    *float64 `json:"tokens_per_second,omitempty"`
	Error              string   `json:"error,omitempty"`
}
