package chat

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"testing"
	"time"

	"ripple/internal/catalog"
	"ripple/internal/domain"
	"ripple/internal/domain/models"
	"ripple/internal/domain/services"
	"ripple/internal/service/attachments"
	"ripple/internal/service/session"
	"ripple/internal/storage"
	"ripple/internal/testutil"
)

// quickProvider streams one text part and finishes.
type quickProvider struct {
	text string
}

func (p *quickProvider) Name() string                { return "quick" }
func (p *quickProvider) SupportsModel(m string) bool { return true }

func (p *quickProvider) StreamResponse(ctx context.Context, req *services.GenerateRequest) (<-chan services.ProviderEvent, error) {
	out := make(chan services.ProviderEvent)
	go func() {
		defer close(out)
		text := p.text
		events := []services.ProviderEvent{
			{Delta: &services.ProviderDelta{PartIndex: 0, PartType: models.PartTypeText, DeltaType: services.DeltaTypeText, TextDelta: &text}},
			{Usage: &services.ProviderUsage{Model: req.Model, StopReason: "end_turn", InputTokens: 4, OutputTokens: 2}},
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

// stuckProvider emits one delta then stalls until cancelled.
type stuckProvider struct{}

func (p *stuckProvider) Name() string                { return "stuck" }
func (p *stuckProvider) SupportsModel(m string) bool { return true }

func (p *stuckProvider) StreamResponse(ctx context.Context, req *services.GenerateRequest) (<-chan services.ProviderEvent, error) {
	out := make(chan services.ProviderEvent)
	go func() {
		defer close(out)
		text := "stuck"
		ev := services.ProviderEvent{Delta: &services.ProviderDelta{
			PartIndex: 0, PartType: models.PartTypeText, DeltaType: services.DeltaTypeText, TextDelta: &text,
		}}
		select {
		case out <- ev:
		case <-ctx.Done():
			return
		}
		<-ctx.Done()
	}()
	return out, nil
}

// queueRouter hands out providers in order, one per Resolve call.
type queueRouter struct {
	providers []services.ModelProvider
	entry     *catalog.Entry
	calls     int
}

func (r *queueRouter) Resolve(model string) (services.ModelProvider, *catalog.Entry, error) {
	if model != r.entry.ID {
		return nil, nil, &domain.ModelNotFoundError{Model: model}
	}
	p := r.providers[r.calls%len(r.providers)]
	r.calls++
	return p, r.entry, nil
}

type fixture struct {
	svc      *Service
	chatRepo *testutil.MemChatRepo
	msgRepo  *testutil.MemMessageRepo
	store    *storage.MemoryStore
	chat     *models.Chat
}

func newFixture(t *testing.T, providers ...services.ModelProvider) *fixture {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	chatRepo := testutil.NewMemChatRepo()
	msgRepo := testutil.NewMemMessageRepo()
	registry := session.NewRegistry(time.Minute, time.Minute, logger)
	store := storage.NewMemoryStore()

	if len(providers) == 0 {
		providers = []services.ModelProvider{&quickProvider{text: "hello there"}}
	}
	router := &queueRouter{
		providers: providers,
		entry:     &catalog.Entry{ID: "lorem-fast", Provider: "lorem"},
	}

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

	svc := NewService(chatRepo, msgRepo, testutil.PassthroughTxm{}, &StreamingDeps{
		Resolver:     attachments.NewResolver(store, logger),
		Launcher:     launcher,
		Registry:     registry,
		Guard:        guard,
		LeaseGrace:   time.Minute,
		DefaultModel: "lorem-fast",
		Logger:       logger,
	}, logger)

	chat, err := svc.CreateChat(context.Background(), &CreateChatRequest{UserID: "user-1", Title: "stream test"})
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}

	return &fixture{svc: svc, chatRepo: chatRepo, msgRepo: msgRepo, store: store, chat: chat}
}

func textPart(text string) PartInput {
	return PartInput{PartType: models.PartTypeText, TextContent: &text}
}

func waitDone(t *testing.T, s *session.Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not finish")
	}
}

func TestSubmitMessageFullPipeline(t *testing.T) {
	f := newFixture(t)

	sess, err := f.svc.SubmitMessage(context.Background(), f.chat.ID, &SubmitMessageRequest{
		UserID: "user-1",
		Parts:  []PartInput{textPart("hi")},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitDone(t, sess)

	log, err := f.msgRepo.GetMessages(context.Background(), f.chat.ID)
	if err != nil {
		t.Fatalf("get messages: %v", err)
	}
	if len(log) != 2 {
		t.Fatalf("log length = %d, want 2", len(log))
	}
	if log[0].Role != models.RoleUser || log[0].Status != models.StatusComplete {
		t.Errorf("message[0] = %s/%s, want user/complete", log[0].Role, log[0].Status)
	}
	if log[1].Role != models.RoleAssistant || log[1].Status != models.StatusComplete {
		t.Errorf("message[1] = %s/%s, want assistant/complete", log[1].Role, log[1].Status)
	}
	if got := log[1].Parts[0].Text(); got != "hello there" {
		t.Errorf("assistant text = %q, want %q", got, "hello there")
	}

	if marker := f.chatRepo.ActiveStream(f.chat.ID); marker != nil {
		t.Errorf("active stream marker not cleared: %s", *marker)
	}
}

func TestSubmitMessageRequiresParts(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.SubmitMessage(context.Background(), f.chat.ID, &SubmitMessageRequest{UserID: "user-1"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("submit without parts = %v, want validation error", err)
	}
}

func TestSubmitMessageUnknownModelWritesNothing(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.SubmitMessage(context.Background(), f.chat.ID, &SubmitMessageRequest{
		UserID: "user-1",
		Parts:  []PartInput{textPart("hi")},
		Model:  "no-such-model",
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("submit unknown model = %v, want not found", err)
	}

	count, _ := f.msgRepo.CountMessages(context.Background(), f.chat.ID)
	if count != 0 {
		t.Errorf("log length = %d, want 0 (nothing written)", count)
	}
}

func TestSubmitMessageUploadsInlineFiles(t *testing.T) {
	f := newFixture(t)

	data := base64.StdEncoding.EncodeToString([]byte("file bytes"))
	filePart := PartInput{
		PartType: models.PartTypeFile,
		Content: map[string]any{
			models.ContentKeyData:     data,
			models.ContentKeyMimeType: "text/plain",
			models.ContentKeyFilename: "notes.txt",
		},
	}

	sess, err := f.svc.SubmitMessage(context.Background(), f.chat.ID, &SubmitMessageRequest{
		UserID: "user-1",
		Parts:  []PartInput{textPart("see attachment"), filePart},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitDone(t, sess)

	if f.store.Len() != 1 {
		t.Fatalf("stored objects = %d, want 1", f.store.Len())
	}

	log, _ := f.msgRepo.GetMessages(context.Background(), f.chat.ID)
	stored := log[0].Parts[1]
	if _, hasData := stored.Content[models.ContentKeyData]; hasData {
		t.Error("inline payload survived persistence")
	}
	if _, hasKey := stored.Content[models.ContentKeyKey]; !hasKey {
		t.Error("persisted part carries no storage key")
	}
}

func TestSubmitMessageConflictsWithForeignStream(t *testing.T) {
	f := newFixture(t)
	f.chatRepo.SetActiveStream(f.chat.ID, "other-process", time.Now())

	_, err := f.svc.SubmitMessage(context.Background(), f.chat.ID, &SubmitMessageRequest{
		UserID: "user-1",
		Parts:  []PartInput{textPart("hi")},
	})
	var inProgress *domain.StreamInProgressError
	if !errors.As(err, &inProgress) {
		t.Fatalf("submit during foreign stream = %v, want StreamInProgressError", err)
	}
	if inProgress.StreamID != "other-process" {
		t.Errorf("conflicting stream = %s, want other-process", inProgress.StreamID)
	}
}

func TestSubmitMessageAbortActiveTakesOver(t *testing.T) {
	f := newFixture(t, &stuckProvider{}, &quickProvider{text: "takeover"})

	first, err := f.svc.SubmitMessage(context.Background(), f.chat.ID, &SubmitMessageRequest{
		UserID: "user-1",
		Parts:  []PartInput{textPart("one")},
	})
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}

	second, err := f.svc.SubmitMessage(context.Background(), f.chat.ID, &SubmitMessageRequest{
		UserID:      "user-1",
		Parts:       []PartInput{textPart("two")},
		AbortActive: true,
	})
	if err != nil {
		t.Fatalf("second submit with abort: %v", err)
	}
	waitDone(t, second)

	if first.Status() != models.StatusCancelled {
		t.Errorf("first session = %s, want %s", first.Status(), models.StatusCancelled)
	}
	if second.Status() != models.StatusComplete {
		t.Errorf("second session = %s, want %s", second.Status(), models.StatusComplete)
	}

	log, _ := f.msgRepo.GetMessages(context.Background(), f.chat.ID)
	if len(log) != 4 {
		t.Fatalf("log length = %d, want 4", len(log))
	}
	if log[1].Status != models.StatusCancelled {
		t.Errorf("aborted message status = %s, want %s", log[1].Status, models.StatusCancelled)
	}
	if log[3].Parts[0].Text() != "takeover" {
		t.Errorf("final text = %q, want takeover", log[3].Parts[0].Text())
	}
}

func TestResumeReturnsLiveSession(t *testing.T) {
	f := newFixture(t, &stuckProvider{})

	sess, err := f.svc.SubmitMessage(context.Background(), f.chat.ID, &SubmitMessageRequest{
		UserID: "user-1",
		Parts:  []PartInput{textPart("hi")},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	defer func() {
		sess.Abort()
		waitDone(t, sess)
	}()

	resumed, err := f.svc.Resume(context.Background(), f.chat.ID, "user-1")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed != sess {
		t.Error("resume did not return the live session")
	}
}

func TestResumeIdleChatReturnsNothing(t *testing.T) {
	f := newFixture(t)

	resumed, err := f.svc.Resume(context.Background(), f.chat.ID, "user-1")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed != nil {
		t.Error("resume on idle chat returned a session")
	}
}

func TestResumeClearsStaleMarker(t *testing.T) {
	f := newFixture(t)
	f.chatRepo.SetActiveStream(f.chat.ID, "dead-stream", time.Now().Add(-time.Hour))

	resumed, err := f.svc.Resume(context.Background(), f.chat.ID, "user-1")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed != nil {
		t.Error("resume returned a session for a dead stream")
	}
	if marker := f.chatRepo.ActiveStream(f.chat.ID); marker != nil {
		t.Errorf("stale marker not cleared: %s", *marker)
	}
}

func TestAbortCancelsLiveStream(t *testing.T) {
	f := newFixture(t, &stuckProvider{})

	sess, err := f.svc.SubmitMessage(context.Background(), f.chat.ID, &SubmitMessageRequest{
		UserID: "user-1",
		Parts:  []PartInput{textPart("hi")},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if err := f.svc.Abort(context.Background(), f.chat.ID, "user-1"); err != nil {
		t.Fatalf("abort: %v", err)
	}
	waitDone(t, sess)

	if sess.Status() != models.StatusCancelled {
		t.Errorf("session status = %s, want %s", sess.Status(), models.StatusCancelled)
	}

	log, _ := f.msgRepo.GetMessages(context.Background(), f.chat.ID)
	if log[1].Status != models.StatusCancelled {
		t.Errorf("message status = %s, want %s", log[1].Status, models.StatusCancelled)
	}
}

func TestAbortIdleChatNotFound(t *testing.T) {
	f := newFixture(t)

	err := f.svc.Abort(context.Background(), f.chat.ID, "user-1")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("abort idle chat = %v, want not found", err)
	}
}
