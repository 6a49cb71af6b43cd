package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"ripple/internal/domain"
	"ripple/internal/domain/models"
	"ripple/internal/domain/repositories"
)

// PostgresMessageRepository implements repositories.MessageRepository.
type PostgresMessageRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewMessageRepository creates a new PostgresMessageRepository.
func NewMessageRepository(config *RepositoryConfig) repositories.MessageRepository {
	return &PostgresMessageRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

func marshalMetadata(md *models.MessageMetadata) ([]byte, error) {
	if md == nil {
		return nil, nil
	}
	data, err := json.Marshal(md)
	if err != nil {
		return nil, fmt.Errorf("marshal message metadata: %w", err)
	}
	return data, nil
}

func unmarshalMetadata(data []byte) (*models.MessageMetadata, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var md models.MessageMetadata
	if err := json.Unmarshal(data, &md); err != nil {
		return nil, fmt.Errorf("unmarshal message metadata: %w", err)
	}
	return &md, nil
}

// AppendMessage inserts the message at the next sequence position of its
// chat. The seq subquery and the insert run in one statement, so concurrent
// appends inside a transaction serialize on the chat's unique (chat_id, seq)
// index rather than racing.
func (r *PostgresMessageRepository) AppendMessage(ctx context.Context, msg *models.Message) error {
	metadata, err := marshalMetadata(msg.Metadata)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (chat_id, seq, role, status, error, model, metadata, created_at, completed_at)
		SELECT $1, COALESCE(MAX(seq) + 1, 0), $2, $3, $4, $5, $6, NOW(), $7
		FROM %s WHERE chat_id = $1
		RETURNING id, seq, created_at
	`, r.tables.Messages, r.tables.Messages)

	executor := GetExecutor(ctx, r.pool)
	err = executor.QueryRow(ctx, query,
		msg.ChatID,
		msg.Role,
		msg.Status,
		msg.Error,
		msg.Model,
		metadata,
		msg.CompletedAt,
	).Scan(&msg.ID, &msg.Seq, &msg.CreatedAt)

	if err != nil {
		if IsPgForeignKeyError(err) {
			return fmt.Errorf("chat %s: %w", msg.ChatID, domain.ErrNotFound)
		}
		return fmt.Errorf("append message: %w", err)
	}

	for i := range msg.Parts {
		msg.Parts[i].MessageID = msg.ID
		msg.Parts[i].Sequence = i
		if err := r.CreatePart(ctx, &msg.Parts[i]); err != nil {
			return err
		}
	}

	return nil
}

// GetMessage retrieves one message with its parts.
func (r *PostgresMessageRepository) GetMessage(ctx context.Context, chatID, messageID string) (*models.Message, error) {
	query := fmt.Sprintf(`
		SELECT id, chat_id, seq, role, status, error, model, metadata, created_at, completed_at
		FROM %s
		WHERE id = $1 AND chat_id = $2
	`, r.tables.Messages)

	executor := GetExecutor(ctx, r.pool)

	var msg models.Message
	var metadata []byte
	err := executor.QueryRow(ctx, query, messageID, chatID).Scan(
		&msg.ID,
		&msg.ChatID,
		&msg.Seq,
		&msg.Role,
		&msg.Status,
		&msg.Error,
		&msg.Model,
		&metadata,
		&msg.CreatedAt,
		&msg.CompletedAt,
	)
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("message %s: %w", messageID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get message: %w", err)
	}

	if msg.Metadata, err = unmarshalMetadata(metadata); err != nil {
		return nil, err
	}

	parts, err := r.getParts(ctx, []string{msg.ID})
	if err != nil {
		return nil, err
	}
	msg.Parts = parts[msg.ID]

	return &msg, nil
}

// GetMessages retrieves the full log in sequence order, parts included.
func (r *PostgresMessageRepository) GetMessages(ctx context.Context, chatID string) ([]models.Message, error) {
	query := fmt.Sprintf(`
		SELECT id, chat_id, seq, role, status, error, model, metadata, created_at, completed_at
		FROM %s
		WHERE chat_id = $1
		ORDER BY seq ASC
	`, r.tables.Messages)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, chatID)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	defer rows.Close()

	var messages []models.Message
	var ids []string
	for rows.Next() {
		var msg models.Message
		var metadata []byte
		err := rows.Scan(
			&msg.ID,
			&msg.ChatID,
			&msg.Seq,
			&msg.Role,
			&msg.Status,
			&msg.Error,
			&msg.Model,
			&metadata,
			&msg.CreatedAt,
			&msg.CompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if msg.Metadata, err = unmarshalMetadata(metadata); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
		ids = append(ids, msg.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	if len(ids) > 0 {
		parts, err := r.getParts(ctx, ids)
		if err != nil {
			return nil, err
		}
		for i := range messages {
			messages[i].Parts = parts[messages[i].ID]
		}
	}

	if messages == nil {
		messages = []models.Message{}
	}

	return messages, nil
}

// CountMessages returns the log length.
func (r *PostgresMessageRepository) CountMessages(ctx context.Context, chatID string) (int, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE chat_id = $1`, r.tables.Messages)

	var count int
	executor := GetExecutor(ctx, r.pool)
	if err := executor.QueryRow(ctx, query, chatID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}

	return count, nil
}

// ReplaceSuffix deletes every message with seq >= fromIndex and appends
// newMessages starting at fromIndex. Parts go with their messages via the
// cascade. Callers run this inside a transaction.
func (r *PostgresMessageRepository) ReplaceSuffix(ctx context.Context, chatID string, fromIndex int, newMessages []*models.Message) (int, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE chat_id = $1 AND seq >= $2`, r.tables.Messages)

	executor := GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query, chatID, fromIndex)
	if err != nil {
		return 0, fmt.Errorf("truncate messages: %w", err)
	}
	deleted := int(tag.RowsAffected())

	for _, msg := range newMessages {
		msg.ChatID = chatID
		if err := r.AppendMessage(ctx, msg); err != nil {
			return 0, err
		}
	}

	return deleted, nil
}

// CopyPrefix copies the first count messages of srcChatID into dstChatID.
// Fresh ids are generated for the copies; parts are copied with an
// insert-select keyed on the new message id.
func (r *PostgresMessageRepository) CopyPrefix(ctx context.Context, srcChatID, dstChatID string, count int) error {
	listQuery := fmt.Sprintf(`
		SELECT id FROM %s
		WHERE chat_id = $1 AND seq < $2
		ORDER BY seq ASC
	`, r.tables.Messages)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, listQuery, srcChatID, count)
	if err != nil {
		return fmt.Errorf("list prefix messages: %w", err)
	}

	var srcIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scan prefix message: %w", err)
		}
		srcIDs = append(srcIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate prefix messages: %w", err)
	}

	copyMsg := fmt.Sprintf(`
		INSERT INTO %s (chat_id, seq, role, status, error, model, metadata, created_at, completed_at)
		SELECT $1, seq, role, status, error, model, metadata, created_at, completed_at
		FROM %s WHERE id = $2
		RETURNING id
	`, r.tables.Messages, r.tables.Messages)

	copyParts := fmt.Sprintf(`
		INSERT INTO %s (message_id, sequence, part_type, text_content, content, created_at)
		SELECT $1, sequence, part_type, text_content, content, created_at
		FROM %s WHERE message_id = $2
	`, r.tables.Parts, r.tables.Parts)

	for _, srcID := range srcIDs {
		var newID string
		if err := executor.QueryRow(ctx, copyMsg, dstChatID, srcID).Scan(&newID); err != nil {
			return fmt.Errorf("copy message: %w", err)
		}
		if _, err := executor.Exec(ctx, copyParts, newID, srcID); err != nil {
			return fmt.Errorf("copy parts: %w", err)
		}
	}

	return nil
}

// CreatePart appends a part to a message.
func (r *PostgresMessageRepository) CreatePart(ctx context.Context, part *models.Part) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (message_id, sequence, part_type, text_content, content, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id, created_at
	`, r.tables.Parts)

	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		part.MessageID,
		part.Sequence,
		part.PartType,
		part.TextContent,
		part.Content,
	).Scan(&part.ID, &part.CreatedAt)

	if err != nil {
		if IsPgForeignKeyError(err) {
			return fmt.Errorf("message %s: %w", part.MessageID, domain.ErrNotFound)
		}
		return fmt.Errorf("create part: %w", err)
	}

	return nil
}

// FinalizeMessage moves a streaming message to a terminal status. The
// status guard in the WHERE clause means only the first finalizer wins;
// the boolean result reports whether this call performed the transition.
func (r *PostgresMessageRepository) FinalizeMessage(ctx context.Context, messageID, status string, errMsg *string, metadata *models.MessageMetadata) (bool, error) {
	md, err := marshalMetadata(metadata)
	if err != nil {
		return false, err
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET status = $2, error = $3, metadata = $4, completed_at = NOW()
		WHERE id = $1 AND status = $5
	`, r.tables.Messages)

	executor := GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query, messageID, status, errMsg, md, models.StatusStreaming)
	if err != nil {
		return false, fmt.Errorf("finalize message: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// getParts loads the parts for a set of messages, keyed by message id.
func (r *PostgresMessageRepository) getParts(ctx context.Context, messageIDs []string) (map[string][]models.Part, error) {
	query := fmt.Sprintf(`
		SELECT id, message_id, sequence, part_type, text_content, content, created_at
		FROM %s
		WHERE message_id = ANY($1)
		ORDER BY message_id, sequence ASC
	`, r.tables.Parts)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, messageIDs)
	if err != nil {
		return nil, fmt.Errorf("get parts: %w", err)
	}
	defer rows.Close()

	parts := make(map[string][]models.Part)
	for rows.Next() {
		var part models.Part
		err := rows.Scan(
			&part.ID,
			&part.MessageID,
			&part.Sequence,
			&part.PartType,
			&part.TextContent,
			&part.Content,
			&part.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan part: %w", err)
		}
		parts[part.MessageID] = append(parts[part.MessageID], part)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate parts: %w", err)
	}

	return parts, nil
}
