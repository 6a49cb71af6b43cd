package repositories

import (
	"context"
	"time"

	"ripple/internal/domain/models"
)

// ChatRepository defines chat data access. All reads and writes are scoped
// to the owning user unless noted.
type ChatRepository interface {
	// CreateChat inserts a new chat.
	// Returns domain.ErrConflict when the user already has a chat with the
	// same title.
	CreateChat(ctx context.Context, chat *models.Chat) error

	// GetChat retrieves a chat by ID, scoped to user.
	// Returns domain.ErrNotFound if absent or soft-deleted.
	GetChat(ctx context.Context, chatID, userID string) (*models.Chat, error)

	// GetChatByTitle retrieves a chat by exact title, scoped to user.
	// Returns domain.ErrNotFound if absent.
	GetChatByTitle(ctx context.Context, userID, title string) (*models.Chat, error)

	// ListChats retrieves all live chats for a user, newest first.
	ListChats(ctx context.Context, userID string) ([]models.Chat, error)

	// UpdateChatTitle renames a chat.
	// Returns domain.ErrNotFound if absent.
	UpdateChatTitle(ctx context.Context, chatID, userID, title string) error

	// DeleteChat soft-deletes a chat and returns it.
	// Returns domain.ErrNotFound if absent or already deleted.
	DeleteChat(ctx context.Context, chatID, userID string) (*models.Chat, error)

	// ClaimActiveStream sets the chat's active-stream marker to streamID if
	// no stream is active, or if the existing marker's lease is older than
	// staleAfter. Returns *domain.StreamInProgressError when a live marker
	// holds the claim.
	ClaimActiveStream(ctx context.Context, chatID, streamID string, staleAfter time.Duration) error

	// ClearActiveStream clears the marker only when it still equals
	// streamID. Clearing a marker someone else re-claimed is a no-op.
	ClearActiveStream(ctx context.Context, chatID, streamID string) error
}
