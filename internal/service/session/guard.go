package session

import (
	"context"
	"log/slog"
	"time"

	"ripple/internal/domain"
	"ripple/internal/domain/models"
	"ripple/internal/domain/repositories"
)

// Guard enforces the one-live-stream rule for operations that mutate a
// chat's history. ClaimActiveStream stays the authoritative arbiter for
// writers; the guard resolves what to do about an existing marker first:
// abort a session this process owns, clear a stale lease, or refuse.
type Guard struct {
	ChatRepo   repositories.ChatRepository
	Registry   *Registry
	LeaseGrace time.Duration
	Logger     *slog.Logger
}

// EnsureIdle returns once the chat has no live stream. With abortActive
// the in-flight session is cancelled and its terminal persistence awaited;
// without it a live stream yields *domain.StreamInProgressError.
func (g *Guard) EnsureIdle(ctx context.Context, chat *models.Chat, abortActive bool) error {
	if chat.ActiveStreamID == nil {
		return nil
	}
	streamID := *chat.ActiveStreamID

	if s := g.Registry.Get(streamID); s != nil {
		if s.Status() != models.StatusStreaming && s.Status() != models.StatusPending {
			// Finished session; the marker clear may still be in flight.
			select {
			case <-s.Done():
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		}

		if !abortActive {
			return &domain.StreamInProgressError{ChatID: chat.ID, StreamID: streamID}
		}

		s.Abort()
		select {
		case <-s.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	}

	// Marker without a local session: a crashed writer or another
	// process. A stale lease is reclaimed; a fresh one is respected.
	if chat.StreamStartedAt != nil && time.Since(*chat.StreamStartedAt) > g.LeaseGrace {
		g.Logger.Warn("clearing stale stream marker",
			"chat_id", chat.ID, "stream_id", streamID, "started_at", chat.StreamStartedAt)
		return g.ChatRepo.ClearActiveStream(ctx, chat.ID, streamID)
	}

	return &domain.StreamInProgressError{ChatID: chat.ID, StreamID: streamID}
}
