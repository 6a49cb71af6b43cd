package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ripple/internal/catalog"
	"ripple/internal/domain/models"
	"ripple/internal/domain/repositories"
	"ripple/internal/domain/services"
)

// ModelRouter resolves a logical model id to a provider and its catalog
// entry.
type ModelRouter interface {
	Resolve(model string) (services.ModelProvider, *catalog.Entry, error)
}

// Launcher assembles and starts sessions. Submit and the history
// mutations share it: both end by launching a generation for a freshly
// appended assistant message.
type Launcher struct {
	Router      ModelRouter
	MessageRepo repositories.MessageRepository
	ChatRepo    repositories.ChatRepository
	Registry    *Registry
	IdleTimeout time.Duration
	Logger      *slog.Logger
}

// Launch starts a session generating assistantMsg from the given history.
// The assistant message must already be persisted in the streaming state
// and the chat's active-stream marker claimed for streamID.
func (l *Launcher) Launch(ctx context.Context, streamID string, chat *models.Chat, assistantMsg *models.Message, history []models.Message, params *models.GenerationParams) (*Session, error) {
	provider, entry, err := l.Router.Resolve(params.Model)
	if err != nil {
		return nil, err
	}

	s := New(context.WithoutCancel(ctx), Config{
		StreamID:    streamID,
		ChatID:      chat.ID,
		MessageID:   assistantMsg.ID,
		Seq:         assistantMsg.Seq,
		Provider:    provider,
		Entry:       entry,
		MessageRepo: l.MessageRepo,
		ChatRepo:    l.ChatRepo,
		IdleTimeout: l.IdleTimeout,
		Logger:      l.Logger,
	})

	if !l.Registry.Register(s) {
		return nil, fmt.Errorf("stream %s already registered", streamID)
	}

	req := &services.GenerateRequest{
		Messages: buildProviderHistory(history, assistantMsg.ID),
		Model:    entry.NativeModel(),
		Params:   params,
	}

	s.Run(req)
	return s, nil
}

// buildProviderHistory converts the persisted log into provider messages.
// The in-flight assistant message is excluded; so are messages without
// content (an errored generation that produced nothing) and system
// messages, which travel in the params.
func buildProviderHistory(history []models.Message, excludeID string) []services.ProviderMessage {
	out := make([]services.ProviderMessage, 0, len(history))
	for i := range history {
		msg := &history[i]
		if msg.ID == excludeID || msg.Role == models.RoleSystem {
			continue
		}
		if len(msg.Parts) == 0 {
			continue
		}
		out = append(out, services.ProviderMessage{
			Role:  msg.Role,
			Parts: msg.Parts,
		})
	}
	return out
}
