package history

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"ripple/internal/catalog"
	"ripple/internal/domain"
	"ripple/internal/domain/models"
	"ripple/internal/domain/services"
	"ripple/internal/service/session"
	"ripple/internal/testutil"
)

// fixedProvider streams one text part and a usage frame.
type fixedProvider struct {
	text string
}

func (p *fixedProvider) Name() string                { return "fixed" }
func (p *fixedProvider) SupportsModel(m string) bool { return true }

func (p *fixedProvider) StreamResponse(ctx context.Context, req *services.GenerateRequest) (<-chan services.ProviderEvent, error) {
	out := make(chan services.ProviderEvent)
	go func() {
		defer close(out)
		text := p.text
		events := []services.ProviderEvent{
			{Delta: &services.ProviderDelta{PartIndex: 0, PartType: models.PartTypeText, DeltaType: services.DeltaTypeText, TextDelta: &text}},
			{Usage: &services.ProviderUsage{Model: req.Model, StopReason: "end_turn", InputTokens: 5, OutputTokens: 3}},
		}
		for _, ev := range events {
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

type fixedRouter struct {
	provider services.ModelProvider
	entry    *catalog.Entry
}

func (r *fixedRouter) Resolve(model string) (services.ModelProvider, *catalog.Entry, error) {
	if model != r.entry.ID {
		return nil, nil, &domain.ModelNotFoundError{Model: model}
	}
	return r.provider, r.entry, nil
}

type fixture struct {
	svc      *Service
	chatRepo *testutil.MemChatRepo
	msgRepo  *testutil.MemMessageRepo
	chat     *models.Chat
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	chatRepo := testutil.NewMemChatRepo()
	msgRepo := testutil.NewMemMessageRepo()
	registry := session.NewRegistry(time.Minute, time.Minute, logger)

	entry := &catalog.Entry{ID: "lorem-fast", Provider: "lorem"}
	router := &fixedRouter{provider: &fixedProvider{text: "regenerated"}, entry: entry}

	guard := &session.Guard{
		ChatRepo:   chatRepo,
		Registry:   registry,
		LeaseGrace: time.Minute,
		Logger:     logger,
	}
	launcher := &session.Launcher{
		Router:      router,
		MessageRepo: msgRepo,
		ChatRepo:    chatRepo,
		Registry:    registry,
		Logger:      logger,
	}

	svc := NewService(chatRepo, msgRepo, testutil.PassthroughTxm{}, guard, launcher, time.Minute, "lorem-fast", logger)

	chat := &models.Chat{ID: "chat-1", UserID: "user-1", Title: "history test"}
	if err := chatRepo.CreateChat(context.Background(), chat); err != nil {
		t.Fatalf("create chat: %v", err)
	}

	return &fixture{svc: svc, chatRepo: chatRepo, msgRepo: msgRepo, chat: chat}
}

// seedConversation appends alternating user/assistant messages and returns
// them in order.
func (f *fixture) seedConversation(t *testing.T, rounds int) []models.Message {
	t.Helper()
	ctx := context.Background()

	for i := 0; i < rounds; i++ {
		userText := "question"
		if err := f.msgRepo.AppendMessage(ctx, &models.Message{
			ChatID: f.chat.ID,
			Role:   models.RoleUser,
			Status: models.StatusComplete,
			Parts:  []models.Part{{Sequence: 0, PartType: models.PartTypeText, TextContent: &userText}},
		}); err != nil {
			t.Fatalf("seed user message: %v", err)
		}

		answer := "answer"
		if err := f.msgRepo.AppendMessage(ctx, &models.Message{
			ChatID: f.chat.ID,
			Role:   models.RoleAssistant,
			Status: models.StatusComplete,
			Parts:  []models.Part{{Sequence: 0, PartType: models.PartTypeText, TextContent: &answer}},
		}); err != nil {
			t.Fatalf("seed assistant message: %v", err)
		}
	}

	msgs, err := f.msgRepo.GetMessages(ctx, f.chat.ID)
	if err != nil {
		t.Fatalf("get messages: %v", err)
	}
	return msgs
}

func TestRegenerateReplacesSuffix(t *testing.T) {
	f := newFixture(t)
	msgs := f.seedConversation(t, 2) // seq 0..3

	// Regenerate the first assistant message (seq 1); seq 2 and 3 go too.
	sess, err := f.svc.Regenerate(context.Background(), f.chat.ID, msgs[1].ID, &RegenerateRequest{UserID: "user-1"})
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}

	select {
	case <-sess.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("regeneration did not finish")
	}

	log, err := f.msgRepo.GetMessages(context.Background(), f.chat.ID)
	if err != nil {
		t.Fatalf("get messages: %v", err)
	}
	if len(log) != 2 {
		t.Fatalf("log length = %d, want 2", len(log))
	}
	if log[1].Role != models.RoleAssistant || log[1].Status != models.StatusComplete {
		t.Errorf("replacement message = %s/%s, want assistant/complete", log[1].Role, log[1].Status)
	}
	if got := log[1].Parts[0].Text(); got != "regenerated" {
		t.Errorf("regenerated text = %q, want %q", got, "regenerated")
	}
}

func TestRegenerateRejectsUserMessage(t *testing.T) {
	f := newFixture(t)
	msgs := f.seedConversation(t, 1)

	_, err := f.svc.Regenerate(context.Background(), f.chat.ID, msgs[0].ID, &RegenerateRequest{UserID: "user-1"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("regenerate user message = %v, want validation error", err)
	}
}

func TestRegenerateUnknownModelLeavesLogUntouched(t *testing.T) {
	f := newFixture(t)
	msgs := f.seedConversation(t, 1)

	_, err := f.svc.Regenerate(context.Background(), f.chat.ID, msgs[1].ID, &RegenerateRequest{
		UserID: "user-1",
		Model:  "no-such-model",
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("regenerate with unknown model = %v, want not found", err)
	}

	log, _ := f.msgRepo.GetMessages(context.Background(), f.chat.ID)
	if len(log) != 2 {
		t.Errorf("log length = %d, want 2 (untouched)", len(log))
	}
}

func TestDeleteAfterTruncates(t *testing.T) {
	f := newFixture(t)
	msgs := f.seedConversation(t, 2) // seq 0..3

	result, err := f.svc.DeleteAfter(context.Background(), f.chat.ID, msgs[2].ID, "user-1", false)
	if err != nil {
		t.Fatalf("delete after: %v", err)
	}
	if result.DeletedFromIndex != 2 || result.RemainingMessageCount != 2 {
		t.Errorf("result = %+v, want deleted_from_index=2 remaining=2", result)
	}

	log, _ := f.msgRepo.GetMessages(context.Background(), f.chat.ID)
	if len(log) != 2 {
		t.Errorf("log length = %d, want 2", len(log))
	}
}

func TestDeleteAfterConflictsWithLiveStream(t *testing.T) {
	f := newFixture(t)
	msgs := f.seedConversation(t, 1)

	f.chatRepo.SetActiveStream(f.chat.ID, "live-stream", time.Now())

	_, err := f.svc.DeleteAfter(context.Background(), f.chat.ID, msgs[0].ID, "user-1", false)
	var inProgress *domain.StreamInProgressError
	if !errors.As(err, &inProgress) {
		t.Errorf("delete during live stream = %v, want StreamInProgressError", err)
	}
}

func TestBranchCopiesPrefix(t *testing.T) {
	f := newFixture(t)
	f.seedConversation(t, 2) // 4 messages

	// Index is inclusive: branching at 1 keeps messages 0 and 1.
	idx := 1
	branch, err := f.svc.Branch(context.Background(), f.chat.ID, &BranchRequest{UserID: "user-1", Index: &idx})
	if err != nil {
		t.Fatalf("branch: %v", err)
	}

	if branch.ParentChatID == nil || *branch.ParentChatID != f.chat.ID {
		t.Errorf("parent chat = %v, want %s", branch.ParentChatID, f.chat.ID)
	}
	if branch.BranchFromIndex == nil || *branch.BranchFromIndex != 1 {
		t.Errorf("branch index = %v, want 1", branch.BranchFromIndex)
	}
	if branch.Title != "history test (Branch)" {
		t.Errorf("branch title = %q, want default suffix", branch.Title)
	}

	srcLog, _ := f.msgRepo.GetMessages(context.Background(), f.chat.ID)
	branchLog, _ := f.msgRepo.GetMessages(context.Background(), branch.ID)
	if len(branchLog) != 2 {
		t.Fatalf("branch log length = %d, want 2", len(branchLog))
	}
	for i := range branchLog {
		if branchLog[i].Role != srcLog[i].Role {
			t.Errorf("branch[%d] role = %s, want %s", i, branchLog[i].Role, srcLog[i].Role)
		}
		if branchLog[i].Parts[0].Text() != srcLog[i].Parts[0].Text() {
			t.Errorf("branch[%d] text diverged from source", i)
		}
	}
	if len(srcLog) != 4 {
		t.Errorf("source log length = %d, want 4 (untouched)", len(srcLog))
	}
}

func TestBranchDefaultsToFullLog(t *testing.T) {
	f := newFixture(t)
	f.seedConversation(t, 1)

	branch, err := f.svc.Branch(context.Background(), f.chat.ID, &BranchRequest{UserID: "user-1"})
	if err != nil {
		t.Fatalf("branch: %v", err)
	}

	branchLog, _ := f.msgRepo.GetMessages(context.Background(), branch.ID)
	if len(branchLog) != 2 {
		t.Errorf("branch log length = %d, want 2", len(branchLog))
	}
}

func TestBranchIndexOutOfBounds(t *testing.T) {
	f := newFixture(t)
	f.seedConversation(t, 1) // 2 messages, valid indices 0 and 1

	for _, idx := range []int{-1, 2, 3} {
		i := idx
		_, err := f.svc.Branch(context.Background(), f.chat.ID, &BranchRequest{UserID: "user-1", Index: &i})
		if !errors.Is(err, domain.ErrValidation) {
			t.Errorf("branch index %d = %v, want validation error", idx, err)
		}
	}
}

func TestBranchFullLogDuringLiveStreamConflicts(t *testing.T) {
	f := newFixture(t)
	f.seedConversation(t, 1)

	f.chatRepo.SetActiveStream(f.chat.ID, "live-stream", time.Now())

	_, err := f.svc.Branch(context.Background(), f.chat.ID, &BranchRequest{UserID: "user-1"})
	var inProgress *domain.StreamInProgressError
	if !errors.As(err, &inProgress) {
		t.Fatalf("full-log branch during stream = %v, want StreamInProgressError", err)
	}

	// An inclusive cut at the last message still covers the in-flight one.
	idx := 1
	_, err = f.svc.Branch(context.Background(), f.chat.ID, &BranchRequest{UserID: "user-1", Index: &idx})
	if !errors.As(err, &inProgress) {
		t.Fatalf("last-index branch during stream = %v, want StreamInProgressError", err)
	}

	// Cutting below the streaming message is fine.
	idx = 0
	if _, err := f.svc.Branch(context.Background(), f.chat.ID, &BranchRequest{UserID: "user-1", Index: &idx}); err != nil {
		t.Errorf("prefix branch during stream = %v, want nil", err)
	}
}
