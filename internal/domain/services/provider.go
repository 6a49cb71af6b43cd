package services

import (
	"context"

	"ripple/internal/domain/models"
)

// ModelProvider is the provider-neutral surface the session controller
// streams against. Adapters translate between domain parts and each
// backend's wire types.
type ModelProvider interface {
	// Name returns the provider name (e.g. "anthropic", "openrouter").
	Name() string

	// SupportsModel reports whether the provider serves the given
	// provider-native model id.
	SupportsModel(model string) bool

	// StreamResponse starts a generation and returns its event channel.
	// The channel closes when the generation finishes or ctx is cancelled.
	StreamResponse(ctx context.Context, req *GenerateRequest) (<-chan ProviderEvent, error)
}

// GenerateRequest carries the assembled conversation and parameters for one
// generation.
type GenerateRequest struct {
	Messages []ProviderMessage
	Model    string
	Params   *models.GenerationParams
}

// ProviderMessage is one history entry handed to the provider.
type ProviderMessage struct {
	Role  string
	Parts []models.Part
}

// ProviderEvent is one streaming frame from a provider, already converted
// to domain terms. Exactly one of Delta, Part, Usage, Err is set.
type ProviderEvent struct {
	// Delta is an incremental fragment of the part at Delta.PartIndex.
	Delta *ProviderDelta

	// Part is a completed part, emitted when the provider closes a block.
	Part *models.Part

	// Usage closes the stream with final token counts and stop reason.
	Usage *ProviderUsage

	// Err terminates the stream with a provider failure.
	Err error
}

// Delta types emitted by providers.
const (
	DeltaTypeText          = "text_delta"
	DeltaTypeThinking      = "thinking_delta"
	DeltaTypeSignature     = "signature_delta"
	DeltaTypeToolCallStart = "tool_call_start"
	DeltaTypeInputJSON     = "input_json_delta"
	DeltaTypeUsage         = "usage_delta"
)

// ProviderDelta is an incremental content fragment. PartType is set only on
// the first delta of a part and doubles as the part-start signal. String
// pointers are nil when the delta does not carry that payload.
type ProviderDelta struct {
	PartIndex      int
	PartType       string
	DeltaType      string
	TextDelta      *string
	SignatureDelta *string
	InputJSONDelta *string
	ToolCallID     *string
	ToolCallName   *string
}

// ProviderUsage is the end-of-stream accounting frame.
type ProviderUsage struct {
	Model          string
	StopReason     string
	InputTokens    int
	OutputTokens   int
	ThinkingTokens int
}
