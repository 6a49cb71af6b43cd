package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"ripple/internal/domain"
	"ripple/internal/domain/models"
	"ripple/internal/domain/repositories"
)

// PostgresChatRepository implements repositories.ChatRepository.
type PostgresChatRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewChatRepository creates a new PostgresChatRepository.
func NewChatRepository(config *RepositoryConfig) repositories.ChatRepository {
	return &PostgresChatRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

const chatColumns = `id, user_id, title, active_stream_id, stream_started_at,
	parent_chat_id, branch_from_index, created_at, updated_at, deleted_at`

func scanChat(row interface{ Scan(dest ...any) error }, chat *models.Chat) error {
	return row.Scan(
		&chat.ID,
		&chat.UserID,
		&chat.Title,
		&chat.ActiveStreamID,
		&chat.StreamStartedAt,
		&chat.ParentChatID,
		&chat.BranchFromIndex,
		&chat.CreatedAt,
		&chat.UpdatedAt,
		&chat.DeletedAt,
	)
}

// CreateChat inserts a new chat.
func (r *PostgresChatRepository) CreateChat(ctx context.Context, chat *models.Chat) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, user_id, title, parent_chat_id, branch_from_index, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING created_at, updated_at
	`, r.tables.Chats)

	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		chat.ID,
		chat.UserID,
		chat.Title,
		chat.ParentChatID,
		chat.BranchFromIndex,
	).Scan(&chat.CreatedAt, &chat.UpdatedAt)

	if err != nil {
		if IsPgDuplicateError(err) {
			existing, queryErr := r.GetChatByTitle(ctx, chat.UserID, chat.Title)
			if queryErr != nil {
				return fmt.Errorf("chat '%s' already exists: %w", chat.Title, domain.ErrConflict)
			}
			return &domain.ConflictError{
				Message:  fmt.Sprintf("chat '%s' already exists", chat.Title),
				Existing: existing,
			}
		}
		return fmt.Errorf("create chat: %w", err)
	}

	return nil
}

// GetChat retrieves a chat by ID, scoped to user.
func (r *PostgresChatRepository) GetChat(ctx context.Context, chatID, userID string) (*models.Chat, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL
	`, chatColumns, r.tables.Chats)

	var chat models.Chat
	executor := GetExecutor(ctx, r.pool)
	if err := scanChat(executor.QueryRow(ctx, query, chatID, userID), &chat); err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("chat %s: %w", chatID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get chat: %w", err)
	}

	return &chat, nil
}

// GetChatByTitle retrieves a chat by exact title, scoped to user.
func (r *PostgresChatRepository) GetChatByTitle(ctx context.Context, userID, title string) (*models.Chat, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE user_id = $1 AND title = $2 AND deleted_at IS NULL
	`, chatColumns, r.tables.Chats)

	var chat models.Chat
	executor := GetExecutor(ctx, r.pool)
	if err := scanChat(executor.QueryRow(ctx, query, userID, title), &chat); err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("chat '%s': %w", title, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get chat by title: %w", err)
	}

	return &chat, nil
}

// ListChats retrieves all live chats for a user, newest activity first.
func (r *PostgresChatRepository) ListChats(ctx context.Context, userID string) ([]models.Chat, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE user_id = $1 AND deleted_at IS NULL
		ORDER BY updated_at DESC
	`, chatColumns, r.tables.Chats)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	var chats []models.Chat
	for rows.Next() {
		var chat models.Chat
		if err := scanChat(rows, &chat); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		chats = append(chats, chat)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chats: %w", err)
	}

	if chats == nil {
		chats = []models.Chat{}
	}

	return chats, nil
}

// UpdateChatTitle renames a chat.
func (r *PostgresChatRepository) UpdateChatTitle(ctx context.Context, chatID, userID, title string) error {
	query := fmt.Sprintf(`
		UPDATE %s SET title = $3, updated_at = NOW()
		WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL
	`, r.tables.Chats)

	executor := GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query, chatID, userID, title)
	if err != nil {
		if IsPgDuplicateError(err) {
			return &domain.ConflictError{Message: fmt.Sprintf("chat '%s' already exists", title)}
		}
		return fmt.Errorf("update chat title: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("chat %s: %w", chatID, domain.ErrNotFound)
	}

	return nil
}

// DeleteChat soft-deletes a chat and returns it.
func (r *PostgresChatRepository) DeleteChat(ctx context.Context, chatID, userID string) (*models.Chat, error) {
	query := fmt.Sprintf(`
		UPDATE %s SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL
		RETURNING %s
	`, r.tables.Chats, chatColumns)

	var chat models.Chat
	executor := GetExecutor(ctx, r.pool)
	if err := scanChat(executor.QueryRow(ctx, query, chatID, userID), &chat); err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("chat %s: %w", chatID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("delete chat: %w", err)
	}

	return &chat, nil
}

// ClaimActiveStream takes the chat's active-stream marker for streamID.
// The claim succeeds when no marker is set, or when the existing marker's
// lease is older than staleAfter (a crashed writer never cleared it). A
// single UPDATE with the guard in the WHERE clause makes concurrent
// claimers serialize on the row: exactly one wins.
func (r *PostgresChatRepository) ClaimActiveStream(ctx context.Context, chatID, streamID string, staleAfter time.Duration) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET active_stream_id = $2, stream_started_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		  AND (active_stream_id IS NULL OR stream_started_at < NOW() - $3::interval)
	`, r.tables.Chats)

	interval := fmt.Sprintf("%d milliseconds", staleAfter.Milliseconds())

	executor := GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query, chatID, streamID, interval)
	if err != nil {
		return fmt.Errorf("claim active stream: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// Claim lost: either the chat is gone or another stream holds it.
	holder := fmt.Sprintf(`
		SELECT active_stream_id FROM %s
		WHERE id = $1 AND deleted_at IS NULL
	`, r.tables.Chats)

	var activeStreamID *string
	if err := executor.QueryRow(ctx, holder, chatID).Scan(&activeStreamID); err != nil {
		if IsPgNoRowsError(err) {
			return fmt.Errorf("chat %s: %w", chatID, domain.ErrNotFound)
		}
		return fmt.Errorf("claim active stream: %w", err)
	}

	holderID := ""
	if activeStreamID != nil {
		holderID = *activeStreamID
	}
	return &domain.StreamInProgressError{ChatID: chatID, StreamID: holderID}
}

// ClearActiveStream clears the marker only while it still equals streamID.
func (r *PostgresChatRepository) ClearActiveStream(ctx context.Context, chatID, streamID string) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET active_stream_id = NULL, stream_started_at = NULL, updated_at = NOW()
		WHERE id = $1 AND active_stream_id = $2
	`, r.tables.Chats)

	executor := GetExecutor(ctx, r.pool)
	if _, err := executor.Exec(ctx, query, chatID, streamID); err != nil {
		return fmt.Errorf("clear active stream: %w", err)
	}

	return nil
}
