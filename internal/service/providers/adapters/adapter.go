// Package adapters bridges the meridian-llm-go provider library to the
// provider-neutral streaming interface the session controller consumes.
package adapters

import (
	"context"

	llmprovider "github.com/haowjy/meridian-llm-go"

	"ripple/internal/domain"
	"ripple/internal/domain/services"
)

// Adapter wraps a library provider and converts its wire types to domain
// types. The same conversion applies to every backend the library serves,
// so one adapter covers anthropic, openrouter and lorem.
type Adapter struct {
	provider llmprovider.Provider
}

// NewAdapter wraps an existing library provider.
func NewAdapter(provider llmprovider.Provider) *Adapter {
	return &Adapter{provider: provider}
}

// Name returns the provider name.
func (a *Adapter) Name() string {
	return a.provider.Name().String()
}

// SupportsModel reports whether the provider serves the model.
func (a *Adapter) SupportsModel(model string) bool {
	return a.provider.SupportsModel(model)
}

// StreamResponse starts a library stream and converts its events. Thinking
// tokens arrive on usage deltas mid-stream, not on the final metadata
// frame, so they are accumulated here and folded into the usage event.
func (a *Adapter) StreamResponse(ctx context.Context, req *services.GenerateRequest) (<-chan services.ProviderEvent, error) {
	libReq := toLibraryRequest(req)

	libEvents, err := a.provider.StreamResponse(ctx, libReq)
	if err != nil {
		return nil, &domain.ProviderError{Provider: a.Name(), Err: err}
	}

	events := make(chan services.ProviderEvent)

	go func() {
		defer close(events)

		thinkingTokens := 0
		for libEvent := range libEvents {
			if libEvent.Error != nil {
				events <- services.ProviderEvent{
					Err: &domain.ProviderError{Provider: a.Name(), Err: libEvent.Error},
				}
				continue
			}

			if d := libEvent.Delta; d != nil {
				if d.ThinkingTokens != nil {
					thinkingTokens += *d.ThinkingTokens
				}

				delta := &services.ProviderDelta{
					PartIndex:      d.BlockIndex,
					DeltaType:      d.DeltaType,
					TextDelta:      d.TextDelta,
					SignatureDelta: d.SignatureDelta,
					InputJSONDelta: d.JSONDelta,
					ToolCallID:     d.ToolCallID,
					ToolCallName:   d.ToolCallName,
				}
				if d.BlockType != nil {
					delta.PartType = fromLibraryBlockType(*d.BlockType)
				}
				events <- services.ProviderEvent{Delta: delta}
			}

			if libEvent.Block != nil {
				events <- services.ProviderEvent{Part: fromLibraryBlock(libEvent.Block)}
			}

			if md := libEvent.Metadata; md != nil {
				events <- services.ProviderEvent{Usage: &services.ProviderUsage{
					Model:          md.Model,
					StopReason:     md.StopReason,
					InputTokens:    md.InputTokens,
					OutputTokens:   md.OutputTokens,
					ThinkingTokens: thinkingTokens,
				}}
			}
		}
	}()

	return events, nil
}
