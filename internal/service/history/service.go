// Package history implements the suffix mutations of a chat's message
// log: regenerate, delete-and-after, and branch.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"ripple/internal/domain"
	"ripple/internal/domain/models"
	"ripple/internal/domain/repositories"
	"ripple/internal/service/session"
)

// Service applies history mutations. Every operation is guarded against a
// live stream: callers either get a conflict or ask for the stream to be
// aborted first.
type Service struct {
	chatRepo    repositories.ChatRepository
	messageRepo repositories.MessageRepository
	txm         repositories.TransactionManager
	guard       *session.Guard
	launcher    *session.Launcher

	leaseGrace   time.Duration
	defaultModel string
	logger       *slog.Logger
}

// NewService creates the history mutation service.
func NewService(
	chatRepo repositories.ChatRepository,
	messageRepo repositories.MessageRepository,
	txm repositories.TransactionManager,
	guard *session.Guard,
	launcher *session.Launcher,
	leaseGrace time.Duration,
	defaultModel string,
	logger *slog.Logger,
) *Service {
	return &Service{
		chatRepo:     chatRepo,
		messageRepo:  messageRepo,
		txm:          txm,
		guard:        guard,
		launcher:     launcher,
		leaseGrace:   leaseGrace,
		defaultModel: defaultModel,
		logger:       logger,
	}
}

// RegenerateRequest is the DTO for regenerating an assistant message.
type RegenerateRequest struct {
	UserID string `json:"-"`
	Model  string `json:"model,omitempty"`
	System string `json:"system,omitempty"`

	MaxTokens       int      `json:"max_tokens,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"top_p,omitempty"`
	ThinkingEnabled bool     `json:"thinking_enabled,omitempty"`
	ThinkingLevel   string   `json:"thinking_level,omitempty"`

	AbortActive bool `json:"abort_active,omitempty"`
}

func (req *RegenerateRequest) params(defaultModel string) *models.GenerationParams {
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

// Regenerate discards the target assistant message and everything after
// it, then launches a fresh generation from the surviving prefix. The
// target must be an assistant message.
func (s *Service) Regenerate(ctx context.Context, chatID, messageID string, req *RegenerateRequest) (*session.Session, error) {
	chat, err := s.chatRepo.GetChat(ctx, chatID, req.UserID)
	if err != nil {
		return nil, err
	}

	target, err := s.messageRepo.GetMessage(ctx, chatID, messageID)
	if err != nil {
		return nil, err
	}
	if target.Role != models.RoleAssistant {
		return nil, &domain.ValidationError{
			Field:   "message_id",
			Message: "only assistant messages can be regenerated",
		}
	}

	params := req.params(s.defaultModel)
	if _, _, err := s.launcher.Router.Resolve(params.Model); err != nil {
		return nil, err
	}

	if err := s.guard.EnsureIdle(ctx, chat, req.AbortActive); err != nil {
		return nil, err
	}

	streamID := uuid.NewString()
	assistantMsg := &models.Message{
		ChatID: chatID,
		Role:   models.RoleAssistant,
		Status: models.StatusStreaming,
		Model:  &params.Model,
	}

	err = s.txm.ExecTx(ctx, func(txCtx context.Context) error {
		if err := s.chatRepo.ClaimActiveStream(txCtx, chatID, streamID, s.leaseGrace); err != nil {
			return err
		}
		_, err := s.messageRepo.ReplaceSuffix(txCtx, chatID, target.Seq, []*models.Message{assistantMsg})
		return err
	})
	if err != nil {
		return nil, err
	}

	history, err := s.messageRepo.GetMessages(ctx, chatID)
	if err != nil {
		return nil, err
	}

	sess, err := s.launcher.Launch(ctx, streamID, chat, assistantMsg, history, params)
	if err != nil {
		s.failPlaceholder(ctx, chatID, assistantMsg.ID, streamID, err)
		return nil, err
	}

	s.logger.Info("regeneration started",
		"chat_id", chatID, "from_seq", target.Seq, "stream_id", streamID, "model", params.Model)

	return sess, nil
}

// DeleteAfterResult reports what a delete-and-after removed.
type DeleteAfterResult struct {
	DeletedFromIndex      int `json:"deleted_from_index"`
	RemainingMessageCount int `json:"remaining_message_count"`
}

// DeleteAfter removes the target message and everything after it.
func (s *Service) DeleteAfter(ctx context.Context, chatID, messageID, userID string, abortActive bool) (*DeleteAfterResult, error) {
	chat, err := s.chatRepo.GetChat(ctx, chatID, userID)
	if err != nil {
		return nil, err
	}

	target, err := s.messageRepo.GetMessage(ctx, chatID, messageID)
	if err != nil {
		return nil, err
	}

	if err := s.guard.EnsureIdle(ctx, chat, abortActive); err != nil {
		return nil, err
	}

	err = s.txm.ExecTx(ctx, func(txCtx context.Context) error {
		_, err := s.messageRepo.ReplaceSuffix(txCtx, chatID, target.Seq, nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("messages deleted",
		"chat_id", chatID, "from_seq", target.Seq, "user_id", userID)

	return &DeleteAfterResult{
		DeletedFromIndex:      target.Seq,
		RemainingMessageCount: target.Seq,
	}, nil
}

// BranchRequest is the DTO for branching a chat.
type BranchRequest struct {
	UserID string `json:"-"`

	// Index is the inclusive end of the copied prefix; messages with
	// seq <= Index are copied. Nil means the full log.
	Index *int    `json:"index,omitempty"`
	Name  *string `json:"name,omitempty"`
}

func (req *BranchRequest) Validate() error {
	return validation.ValidateStruct(req,
		validation.Field(&req.UserID, validation.Required),
	)
}

// Branch copies the source chat's prefix into a new chat carrying a
// back-reference to where it split off. Branching off the prefix of a
// live stream is allowed: the streaming message is always the last entry,
// so any cut below the log length leaves it untouched.
func (s *Service) Branch(ctx context.Context, chatID string, req *BranchRequest) (*models.Chat, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	src, err := s.chatRepo.GetChat(ctx, chatID, req.UserID)
	if err != nil {
		return nil, err
	}

	count, err := s.messageRepo.CountMessages(ctx, chatID)
	if err != nil {
		return nil, err
	}

	copyCount := count
	if req.Index != nil {
		idx := *req.Index
		if idx < 0 || idx >= count {
			return nil, &domain.ValidationError{
				Field:   "index",
				Message: fmt.Sprintf("branch index %d outside log of %d messages", idx, count),
			}
		}
		copyCount = idx + 1
	}

	// A full-log branch would copy the in-flight message; require the
	// stream to finish or the cut to exclude it.
	if src.ActiveStreamID != nil && copyCount == count {
		return nil, &domain.StreamInProgressError{ChatID: chatID, StreamID: *src.ActiveStreamID}
	}

	name := src.Title + " (Branch)"
	if req.Name != nil && strings.TrimSpace(*req.Name) != "" {
		name = strings.TrimSpace(*req.Name)
	}

	var fromIndex *int
	if copyCount > 0 {
		last := copyCount - 1
		fromIndex = &last
	}

	branch := &models.Chat{
		ID:              uuid.NewString(),
		UserID:          req.UserID,
		Title:           name,
		ParentChatID:    &src.ID,
		BranchFromIndex: fromIndex,
	}

	err = s.txm.ExecTx(ctx, func(txCtx context.Context) error {
		if err := s.chatRepo.CreateChat(txCtx, branch); err != nil {
			return err
		}
		return s.messageRepo.CopyPrefix(txCtx, chatID, branch.ID, copyCount)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("chat branched",
		"source_chat_id", chatID, "branch_chat_id", branch.ID, "copied_messages", copyCount)

	return branch, nil
}

func (s *Service) failPlaceholder(ctx context.Context, chatID, messageID, streamID string, cause error) {
	errMsg := cause.Error()
	md := &models.MessageMetadata{Error: errMsg}
	if _, err := s.messageRepo.FinalizeMessage(ctx, messageID, models.StatusError, &errMsg, md); err != nil {
		s.logger.Error("finalize failed placeholder", "message_id", messageID, "error", err)
	}
	if err := s.chatRepo.ClearActiveStream(ctx, chatID, streamID); err != nil {
		s.logger.Error("clear stream slot after failed launch", "chat_id", chatID, "error", err)
	}
}
