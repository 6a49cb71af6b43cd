// Package chat implements chat CRUD and the streaming entry points:
// submit, resume and abort.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"ripple/internal/domain"
	"ripple/internal/domain/models"
	"ripple/internal/domain/repositories"
)

// MaxChatTitleLength bounds chat titles.
const MaxChatTitleLength = 255

// CreateChatRequest is the DTO for creating a chat.
type CreateChatRequest struct {
	UserID string `json:"-"`
	Title  string `json:"title"`
}

func (req *CreateChatRequest) Validate() error {
	return validation.ValidateStruct(req,
		validation.Field(&req.UserID, validation.Required),
		validation.Field(&req.Title,
			validation.Required,
			validation.Length(1, MaxChatTitleLength),
		),
	)
}

// UpdateChatRequest is the DTO for renaming a chat.
type UpdateChatRequest struct {
	Title string `json:"title"`
}

func (req *UpdateChatRequest) Validate() error {
	return validation.ValidateStruct(req,
		validation.Field(&req.Title,
			validation.Required,
			validation.Length(1, MaxChatTitleLength),
		),
	)
}

// Service handles chat lifecycle and owns the streaming entry points.
type Service struct {
	chatRepo    repositories.ChatRepository
	messageRepo repositories.MessageRepository
	txm         repositories.TransactionManager
	streaming   *StreamingDeps
	logger      *slog.Logger
}

// NewService creates the chat service.
func NewService(
	chatRepo repositories.ChatRepository,
	messageRepo repositories.MessageRepository,
	txm repositories.TransactionManager,
	streaming *StreamingDeps,
	logger *slog.Logger,
) *Service {
	return &Service{
		chatRepo:    chatRepo,
		messageRepo: messageRepo,
		txm:         txm,
		streaming:   streaming,
		logger:      logger,
	}
}

// CreateChat creates a new chat.
func (s *Service) CreateChat(ctx context.Context, req *CreateChatRequest) (*models.Chat, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	chat := &models.Chat{
		ID:     uuid.NewString(),
		UserID: req.UserID,
		Title:  strings.TrimSpace(req.Title),
	}

	if err := s.chatRepo.CreateChat(ctx, chat); err != nil {
		return nil, err
	}

	s.logger.Info("chat created", "id", chat.ID, "title", chat.Title, "user_id", req.UserID)

	return chat, nil
}

// GetChat retrieves a chat.
func (s *Service) GetChat(ctx context.Context, chatID, userID string) (*models.Chat, error) {
	return s.chatRepo.GetChat(ctx, chatID, userID)
}

// ListChats retrieves all of a user's chats.
func (s *Service) ListChats(ctx context.Context, userID string) ([]models.Chat, error) {
	return s.chatRepo.ListChats(ctx, userID)
}

// GetMessages retrieves a chat's message log.
func (s *Service) GetMessages(ctx context.Context, chatID, userID string) ([]models.Message, error) {
	if _, err := s.chatRepo.GetChat(ctx, chatID, userID); err != nil {
		return nil, err
	}
	return s.messageRepo.GetMessages(ctx, chatID)
}

// UpdateChat renames a chat.
func (s *Service) UpdateChat(ctx context.Context, chatID, userID string, req *UpdateChatRequest) (*models.Chat, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	title := strings.TrimSpace(req.Title)
	if err := s.chatRepo.UpdateChatTitle(ctx, chatID, userID, title); err != nil {
		return nil, err
	}

	return s.chatRepo.GetChat(ctx, chatID, userID)
}

// DeleteChat soft-deletes a chat. A live stream is aborted first so its
// terminal cleanup does not write to a deleted chat.
func (s *Service) DeleteChat(ctx context.Context, chatID, userID string) (*models.Chat, error) {
	chat, err := s.chatRepo.GetChat(ctx, chatID, userID)
	if err != nil {
		return nil, err
	}

	if chat.ActiveStreamID != nil {
		s.streaming.abortIfLive(ctx, *chat.ActiveStreamID)
	}

	deleted, err := s.chatRepo.DeleteChat(ctx, chatID, userID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("chat deleted", "id", chatID, "user_id", userID)

	return deleted, nil
}
