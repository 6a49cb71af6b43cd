package models

// GenerationParams are the per-request knobs forwarded to the provider.
// Zero/nil fields fall back to provider defaults.
type GenerationParams struct {
	Model           string   `json:"model"`
	MaxTokens       int      `json:"max_tokens,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"top_p,omitempty"`
	System          string   `json:"system,omitempty"`
	ThinkingEnabled bool     `json:"thinking_enabled,omitempty"`
	ThinkingLevel   string   `json:"thinking_level,omitempty"`
}
