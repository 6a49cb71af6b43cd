package repositories

import (
	"context"

	"ripple/internal/domain/models"
)

// MessageRepository defines access to a chat's ordered message log and the
// parts hanging off each message.
type MessageRepository interface {
	// AppendMessage inserts the message at the next sequence position of
	// its chat and fills in msg.Seq. Parts on the message are inserted too.
	AppendMessage(ctx context.Context, msg *models.Message) error

	// GetMessage retrieves one message with its parts.
	// Returns domain.ErrNotFound if absent.
	GetMessage(ctx context.Context, chatID, messageID string) (*models.Message, error)

	// GetMessages retrieves the full log in sequence order, parts included.
	GetMessages(ctx context.Context, chatID string) ([]models.Message, error)

	// CountMessages returns the log length.
	CountMessages(ctx context.Context, chatID string) (int, error)

	// ReplaceSuffix atomically deletes every message with seq >= fromIndex
	// and appends newMessages starting at fromIndex. newMessages may be
	// empty (pure truncation). Returns the number of deleted messages.
	ReplaceSuffix(ctx context.Context, chatID string, fromIndex int, newMessages []*models.Message) (int, error)

	// CopyPrefix copies the first count messages of srcChatID into
	// dstChatID, preserving order, statuses, parts and metadata.
	CopyPrefix(ctx context.Context, srcChatID, dstChatID string, count int) error

	// CreatePart appends a part to a message.
	CreatePart(ctx context.Context, part *models.Part) error

	// FinalizeMessage moves a streaming message to a terminal status,
	// recording metadata and error. The update is guarded on the current
	// status being "streaming": the boolean result reports whether this
	// call performed the transition, so a terminal write happens once even
	// under racing finalizers.
	FinalizeMessage(ctx context.Context, messageID, status string, errMsg *string, metadata *models.MessageMetadata) (bool, error)
}
