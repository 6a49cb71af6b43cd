package session

import (
	"context"

	"ripple/internal/domain/services"
)

// scriptedProvider plays back a fixed event sequence. An optional hold
// point blocks playback so tests can abort a stream mid-flight
// deterministically.
type scriptedProvider struct {
	events []services.ProviderEvent

	// hold, when set, blocks playback until closed.
	hold chan struct{}

	// holdAfter is how many events play before blocking on hold.
	holdAfter int
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) SupportsModel(model string) bool { return true }

func (p *scriptedProvider) StreamResponse(ctx context.Context, req *services.GenerateRequest) (<-chan services.ProviderEvent, error) {
	out := make(chan services.ProviderEvent)
	go func() {
		defer close(out)
		for i, ev := range p.events {
			if p.hold != nil && i == p.holdAfter {
				select {
				case <-p.hold:
				case <-ctx.Done():
					return
				}
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func strPtr(s string) *string { return &s }
