package chat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"ripple/internal/domain"
	"ripple/internal/domain/models"
	"ripple/internal/service/attachments"
	"ripple/internal/service/session"
)

// StreamingDeps are the collaborators behind submit, resume and abort.
type StreamingDeps struct {
	Resolver     *attachments.Resolver
	Launcher     *session.Launcher
	Registry     *session.Registry
	Guard        *session.Guard
	LeaseGrace   time.Duration
	DefaultModel string
	Logger       *slog.Logger
}

func (d *StreamingDeps) abortIfLive(ctx context.Context, streamID string) {
	s := d.Registry.Get(streamID)
	if s == nil {
		return
	}
	s.Abort()
	select {
	case <-s.Done():
	case <-ctx.Done():
	}
}

// PartInput is the DTO for one content part of a submitted message.
type PartInput struct {
	PartType    string         `json:"part_type"`
	TextContent *string        `json:"text_content,omitempty"`
	Content     map[string]any `json:"content,omitempty"`
}

func (p PartInput) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.PartType,
			validation.Required,
			validation.In(
				models.PartTypeText,
				models.PartTypeFile,
				models.PartTypeToolResult,
			),
		),
	)
}

// SubmitMessageRequest is the DTO for submitting a user message.
type SubmitMessageRequest struct {
	UserID string      `json:"-"`
	Parts  []PartInput `json:"parts"`
	Model  string      `json:"model,omitempty"`
	System string      `json:"system,omitempty"`

	MaxTokens       int      `json:"max_tokens,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"top_p,omitempty"`
	ThinkingEnabled bool     `json:"thinking_enabled,omitempty"`
	ThinkingLevel   string   `json:"thinking_level,omitempty"`

	// AbortActive cancels a live stream instead of failing with a
	// conflict.
	AbortActive bool `json:"abort_active,omitempty"`
}

func (req *SubmitMessageRequest) Validate() error {
	return validation.ValidateStruct(req,
		validation.Field(&req.UserID, validation.Required),
		validation.Field(&req.Parts, validation.Required, validation.Length(1, 0)),
	)
}

func (req *SubmitMessageRequest) params(defaultModel string) *models.GenerationParams {
	model := req.Model
	if model == "" {
		model = defaultModel
	}
	return &models.GenerationParams{
		Model:           model,
		MaxTokens:       req.MaxTokens,
		Temperature:     req.Temperature,
		TopP:            req.TopP,
		System:          req.System,
		ThinkingEnabled: req.ThinkingEnabled,
		ThinkingLevel:   req.ThinkingLevel,
	}
}

// SubmitMessage runs the full submit pipeline: resolve attachments, append
// the user message and a streaming assistant placeholder, claim the
// chat's stream slot, and launch the generation. The returned session is
// ready to subscribe.
func (s *Service) SubmitMessage(ctx context.Context, chatID string, req *SubmitMessageRequest) (*session.Session, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	for i, p := range req.Parts {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("%w: parts[%d]: %v", domain.ErrValidation, i, err)
		}
	}

	chat, err := s.chatRepo.GetChat(ctx, chatID, req.UserID)
	if err != nil {
		return nil, err
	}

	params := req.params(s.streaming.DefaultModel)

	// Resolve the model before any write so an unknown id costs nothing.
	if _, _, err := s.streaming.Launcher.Router.Resolve(params.Model); err != nil {
		return nil, err
	}

	parts := make([]models.Part, len(req.Parts))
	for i, p := range req.Parts {
		parts[i] = models.Part{
			Sequence:    i,
			PartType:    p.PartType,
			TextContent: p.TextContent,
			Content:     p.Content,
		}
	}

	// Attachments resolve before any history write: a failed upload
	// leaves the log untouched.
	parts, err = s.streaming.Resolver.Resolve(ctx, req.UserID, parts)
	if err != nil {
		return nil, err
	}

	if err := s.streaming.Guard.EnsureIdle(ctx, chat, req.AbortActive); err != nil {
		return nil, err
	}

	streamID := uuid.NewString()
	now := time.Now()

	userMsg := &models.Message{
		ChatID:      chatID,
		Role:        models.RoleUser,
		Status:      models.StatusComplete,
		CompletedAt: &now,
		Parts:       parts,
	}
	assistantMsg := &models.Message{
		ChatID: chatID,
		Role:   models.RoleAssistant,
		Status: models.StatusStreaming,
		Model:  &params.Model,
	}

	err = s.txm.ExecTx(ctx, func(txCtx context.Context) error {
		if err := s.chatRepo.ClaimActiveStream(txCtx, chatID, streamID, s.streaming.LeaseGrace); err != nil {
			return err
		}
		if err := s.messageRepo.AppendMessage(txCtx, userMsg); err != nil {
			return err
		}
		return s.messageRepo.AppendMessage(txCtx, assistantMsg)
	})
	if err != nil {
		return nil, err
	}

	history, err := s.messageRepo.GetMessages(ctx, chatID)
	if err != nil {
		return nil, err
	}

	sess, err := s.streaming.Launcher.Launch(ctx, streamID, chat, assistantMsg, history, params)
	if err != nil {
		// The placeholder stays errored rather than half-streaming.
		s.failPlaceholder(ctx, chat, assistantMsg, streamID, err)
		return nil, err
	}

	s.logger.Info("message submitted",
		"chat_id", chatID, "stream_id", streamID, "model", params.Model)

	return sess, nil
}

// Resume reattaches to the chat's active stream. Returns nil when there is
// nothing to resume; a stale marker from a dead writer is cleared on the
// way out.
func (s *Service) Resume(ctx context.Context, chatID, userID string) (*session.Session, error) {
	chat, err := s.chatRepo.GetChat(ctx, chatID, userID)
	if err != nil {
		return nil, err
	}

	if chat.ActiveStreamID == nil {
		return nil, nil
	}
	streamID := *chat.ActiveStreamID

	if sess := s.streaming.Registry.Get(streamID); sess != nil {
		return sess, nil
	}

	if chat.StreamStartedAt != nil && time.Since(*chat.StreamStartedAt) > s.streaming.LeaseGrace {
		s.logger.Warn("clearing stale stream marker on resume",
			"chat_id", chatID, "stream_id", streamID)
		if err := s.chatRepo.ClearActiveStream(ctx, chatID, streamID); err != nil {
			return nil, err
		}
	}

	return nil, nil
}

// Abort cancels the chat's live stream and waits for its terminal
// persistence. Returns ErrNotFound when nothing is streaming.
func (s *Service) Abort(ctx context.Context, chatID, userID string) error {
	chat, err := s.chatRepo.GetChat(ctx, chatID, userID)
	if err != nil {
		return err
	}

	if chat.ActiveStreamID == nil {
		return &domain.NotFoundError{Resource: "active stream"}
	}
	streamID := *chat.ActiveStreamID

	sess := s.streaming.Registry.Get(streamID)
	if sess == nil {
		// Not ours; only a stale lease can be cleaned up.
		if chat.StreamStartedAt != nil && time.Since(*chat.StreamStartedAt) > s.streaming.LeaseGrace {
			return s.chatRepo.ClearActiveStream(ctx, chatID, streamID)
		}
		return &domain.NotFoundError{Resource: "active stream", ID: streamID}
	}

	sess.Abort()
	select {
	case <-sess.Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	s.logger.Info("stream aborted", "chat_id", chatID, "stream_id", streamID)

	return nil
}

// failPlaceholder finalizes the assistant placeholder and frees the
// stream slot when a launch dies before the session takes ownership.
func (s *Service) failPlaceholder(ctx context.Context, chat *models.Chat, msg *models.Message, streamID string, cause error) {
	errMsg := cause.Error()
	md := &models.MessageMetadata{Error: errMsg}
	if _, err := s.messageRepo.FinalizeMessage(ctx, msg.ID, models.StatusError, &errMsg, md); err != nil {
		s.logger.Error("finalize failed placeholder", "message_id", msg.ID, "error", err)
	}
	if err := s.chatRepo.ClearActiveStream(ctx, chat.ID, streamID); err != nil {
		s.logger.Error("clear stream slot after failed launch", "chat_id", chat.ID, "error", err)
	}
}
