// Package testutil provides in-memory repository implementations for
// service tests. They honor the same contracts as the postgres
// repositories: sequence assignment, the streaming status guard on
// finalize, and the active-stream lease semantics.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"ripple/internal/domain"
	"ripple/internal/domain/models"
	"ripple/internal/domain/repositories"
)

// MemChatRepo is an in-memory ChatRepository.
type MemChatRepo struct {
	mu    sync.Mutex
	chats map[string]*models.Chat
}

// NewMemChatRepo creates an empty chat repository.
func NewMemChatRepo() *MemChatRepo {
	return &MemChatRepo{chats: make(map[string]*models.Chat)}
}

func (r *MemChatRepo) CreateChat(ctx context.Context, chat *models.Chat) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.chats {
		if existing.UserID == chat.UserID && existing.Title == chat.Title && existing.DeletedAt == nil {
			return &domain.ConflictError{Message: "chat title already exists", Existing: existing}
		}
	}
	chat.CreatedAt = time.Now()
	chat.UpdatedAt = chat.CreatedAt
	stored := *chat
	r.chats[chat.ID] = &stored
	return nil
}

func (r *MemChatRepo) GetChat(ctx context.Context, chatID, userID string) (*models.Chat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	chat, ok := r.chats[chatID]
	if !ok || chat.UserID != userID || chat.DeletedAt != nil {
		return nil, &domain.NotFoundError{Resource: "chat", ID: chatID}
	}
	out := *chat
	return &out, nil
}

func (r *MemChatRepo) GetChatByTitle(ctx context.Context, userID, title string) (*models.Chat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, chat := range r.chats {
		if chat.UserID == userID && chat.Title == title && chat.DeletedAt == nil {
			out := *chat
			return &out, nil
		}
	}
	return nil, &domain.NotFoundError{Resource: "chat"}
}

func (r *MemChatRepo) ListChats(ctx context.Context, userID string) ([]models.Chat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := []models.Chat{}
	for _, chat := range r.chats {
		if chat.UserID == userID && chat.DeletedAt == nil {
			out = append(out, *chat)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (r *MemChatRepo) UpdateChatTitle(ctx context.Context, chatID, userID, title string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	chat, ok := r.chats[chatID]
	if !ok || chat.UserID != userID || chat.DeletedAt != nil {
		return &domain.NotFoundError{Resource: "chat", ID: chatID}
	}
	chat.Title = title
	chat.UpdatedAt = time.Now()
	return nil
}

func (r *MemChatRepo) DeleteChat(ctx context.Context, chatID, userID string) (*models.Chat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	chat, ok := r.chats[chatID]
	if !ok || chat.UserID != userID || chat.DeletedAt != nil {
		return nil, &domain.NotFoundError{Resource: "chat", ID: chatID}
	}
	now := time.Now()
	chat.DeletedAt = &now
	out := *chat
	return &out, nil
}

func (r *MemChatRepo) ClaimActiveStream(ctx context.Context, chatID, streamID string, staleAfter time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	chat, ok := r.chats[chatID]
	if !ok {
		return &domain.NotFoundError{Resource: "chat", ID: chatID}
	}
	if chat.ActiveStreamID != nil {
		stale := chat.StreamStartedAt != nil && time.Since(*chat.StreamStartedAt) > staleAfter
		if !stale {
			return &domain.StreamInProgressError{ChatID: chatID, StreamID: *chat.ActiveStreamID}
		}
	}
	now := time.Now()
	chat.ActiveStreamID = &streamID
	chat.StreamStartedAt = &now
	return nil
}

func (r *MemChatRepo) ClearActiveStream(ctx context.Context, chatID, streamID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	chat, ok := r.chats[chatID]
	if !ok {
		return &domain.NotFoundError{Resource: "chat", ID: chatID}
	}
	if chat.ActiveStreamID != nil && *chat.ActiveStreamID == streamID {
		chat.ActiveStreamID = nil
		chat.StreamStartedAt = nil
	}
	return nil
}

// ActiveStream returns the chat's current stream marker, nil when idle.
func (r *MemChatRepo) ActiveStream(chatID string) *string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if chat, ok := r.chats[chatID]; ok {
		return chat.ActiveStreamID
	}
	return nil
}

// SetActiveStream force-sets a stream marker, bypassing the claim guard.
// Tests use it to simulate another process or a crashed writer.
func (r *MemChatRepo) SetActiveStream(chatID, streamID string, startedAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if chat, ok := r.chats[chatID]; ok {
		chat.ActiveStreamID = &streamID
		chat.StreamStartedAt = &startedAt
	}
}

// MemMessageRepo is an in-memory MessageRepository.
type MemMessageRepo struct {
	mu       sync.Mutex
	nextID   int
	messages map[string]*models.Message
	parts    map[string][]models.Part
	order    map[string][]string
}

// NewMemMessageRepo creates an empty message repository.
func NewMemMessageRepo() *MemMessageRepo {
	return &MemMessageRepo{
		messages: make(map[string]*models.Message),
		parts:    make(map[string][]models.Part),
		order:    make(map[string][]string),
	}
}

func (r *MemMessageRepo) AppendMessage(ctx context.Context, msg *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if msg.ID == "" {
		r.nextID++
		msg.ID = fmt.Sprintf("%s-msg-%d", msg.ChatID, r.nextID)
	}
	msg.Seq = len(r.order[msg.ChatID])
	msg.CreatedAt = time.Now()

	stored := *msg
	r.messages[msg.ID] = &stored
	r.order[msg.ChatID] = append(r.order[msg.ChatID], msg.ID)

	for i := range msg.Parts {
		p := msg.Parts[i]
		p.MessageID = msg.ID
		r.parts[msg.ID] = append(r.parts[msg.ID], p)
	}
	return nil
}

func (r *MemMessageRepo) GetMessage(ctx context.Context, chatID, messageID string) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg, ok := r.messages[messageID]
	if !ok || msg.ChatID != chatID {
		return nil, &domain.NotFoundError{Resource: "message", ID: messageID}
	}
	out := *msg
	out.Parts = append([]models.Part(nil), r.parts[messageID]...)
	return &out, nil
}

func (r *MemMessageRepo) GetMessages(ctx context.Context, chatID string) ([]models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.Message, 0, len(r.order[chatID]))
	for _, id := range r.order[chatID] {
		msg := *r.messages[id]
		msg.Parts = append([]models.Part(nil), r.parts[id]...)
		out = append(out, msg)
	}
	return out, nil
}

func (r *MemMessageRepo) CountMessages(ctx context.Context, chatID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order[chatID]), nil
}

func (r *MemMessageRepo) ReplaceSuffix(ctx context.Context, chatID string, fromIndex int, newMessages []*models.Message) (int, error) {
	r.mu.Lock()
	ids := r.order[chatID]
	deleted := 0
	if fromIndex < len(ids) {
		for _, id := range ids[fromIndex:] {
			delete(r.messages, id)
			delete(r.parts, id)
			deleted++
		}
		r.order[chatID] = ids[:fromIndex]
	}
	r.mu.Unlock()

	for _, msg := range newMessages {
		if err := r.AppendMessage(ctx, msg); err != nil {
			return deleted, err
		}
	}
	return deleted, nil
}

func (r *MemMessageRepo) CopyPrefix(ctx context.Context, srcChatID, dstChatID string, count int) error {
	msgs, err := r.GetMessages(ctx, srcChatID)
	if err != nil {
		return err
	}
	for i := range msgs {
		if i >= count {
			break
		}
		clone := msgs[i]
		clone.ID = ""
		clone.ChatID = dstChatID
		if err := r.AppendMessage(ctx, &clone); err != nil {
			return err
		}
	}
	return nil
}

func (r *MemMessageRepo) CreatePart(ctx context.Context, part *models.Part) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.parts[part.MessageID] = append(r.parts[part.MessageID], *part)
	sort.SliceStable(r.parts[part.MessageID], func(i, j int) bool {
		return r.parts[part.MessageID][i].Sequence < r.parts[part.MessageID][j].Sequence
	})
	return nil
}

func (r *MemMessageRepo) FinalizeMessage(ctx context.Context, messageID, status string, errMsg *string, metadata *models.MessageMetadata) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg, ok := r.messages[messageID]
	if !ok {
		return false, &domain.NotFoundError{Resource: "message", ID: messageID}
	}
	if msg.Status != models.StatusStreaming {
		return false, nil
	}

	now := time.Now()
	msg.Status = status
	msg.Error = errMsg
	msg.Metadata = metadata
	msg.CompletedAt = &now
	return true, nil
}

// PartsOf returns the persisted parts of a message in sequence order.
func (r *MemMessageRepo) PartsOf(messageID string) []models.Part {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Part(nil), r.parts[messageID]...)
}

// PassthroughTxm runs transaction functions directly; atomicity is the
// real database's concern.
type PassthroughTxm struct{}

func (PassthroughTxm) ExecTx(ctx context.Context, fn repositories.TxFn) error {
	return fn(ctx)
}
