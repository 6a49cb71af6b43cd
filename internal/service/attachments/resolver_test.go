package attachments

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"testing"

	"ripple/internal/domain"
	"ripple/internal/domain/models"
	"ripple/internal/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func strPtr(s string) *string { return &s }

func inlineFilePart(data []byte, mimeType, filename string) models.Part {
	return models.Part{
		PartType: models.PartTypeFile,
		Content: map[string]any{
			models.ContentKeyData:     base64.StdEncoding.EncodeToString(data),
			models.ContentKeyMimeType: mimeType,
			models.ContentKeyFilename: filename,
		},
	}
}

func TestResolveUploadsInlineFiles(t *testing.T) {
	store := storage.NewMemoryStore()
	resolver := NewResolver(store, testLogger())

	payload := []byte("fake png bytes")
	parts := []models.Part{
		{PartType: models.PartTypeText, TextContent: strPtr("look at this")},
		inlineFilePart(payload, "image/png", "a.png"),
	}

	resolved, err := resolver.Resolve(context.Background(), "user-1", parts)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if resolved[0].PartType != models.PartTypeText {
		t.Errorf("text part should pass through, got type %q", resolved[0].PartType)
	}

	filePart := resolved[1]
	key, _ := filePart.Content[models.ContentKeyKey].(string)
	if key == "" {
		t.Fatal("resolved file part has no storage key")
	}
	if _, hasData := filePart.Content[models.ContentKeyData]; hasData {
		t.Error("resolved file part still carries inline data")
	}
	if size := filePart.Content[models.ContentKeySize]; size != len(payload) {
		t.Errorf("size = %v, want %d", size, len(payload))
	}
	if name := filePart.Content[models.ContentKeyFilename]; name != "a.png" {
		t.Errorf("filename = %v, want a.png", name)
	}

	stored, err := store.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("stored object missing: %v", err)
	}
	if string(stored) != string(payload) {
		t.Error("stored bytes differ from uploaded payload")
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	store := storage.NewMemoryStore()
	resolver := NewResolver(store, testLogger())

	parts := []models.Part{inlineFilePart([]byte("data"), "text/plain", "f.txt")}

	first, err := resolver.Resolve(context.Background(), "user-1", parts)
	if err != nil {
		t.Fatalf("first Resolve() error = %v", err)
	}

	second, err := resolver.Resolve(context.Background(), "user-1", first)
	if err != nil {
		t.Fatalf("second Resolve() error = %v", err)
	}

	if store.Len() != 1 {
		t.Errorf("store has %d objects, want 1 (re-resolution must not re-upload)", store.Len())
	}
	if second[0].Content[models.ContentKeyKey] != first[0].Content[models.ContentKeyKey] {
		t.Error("re-resolution changed the storage key")
	}
}

func TestResolveInvalidBase64(t *testing.T) {
	resolver := NewResolver(storage.NewMemoryStore(), testLogger())

	parts := []models.Part{{
		PartType: models.PartTypeFile,
		Content: map[string]any{
			models.ContentKeyData:     "not-base64!!!",
			models.ContentKeyMimeType: "image/png",
		},
	}}

	_, err := resolver.Resolve(context.Background(), "user-1", parts)
	if err == nil {
		t.Fatal("Resolve() should fail on invalid base64")
	}

	var attErr *domain.AttachmentError
	if !errors.As(err, &attErr) {
		t.Errorf("error should be AttachmentError, got %T", err)
	}
	if !errors.Is(err, domain.ErrValidation) {
		t.Error("attachment errors should classify as validation failures")
	}
}

type failingStore struct{ storage.MemoryStore }

func (f *failingStore) Put(context.Context, string, []byte, string) (string, error) {
	return "", errors.New("bucket unavailable")
}

func TestResolveUploadFailureAbortsBatch(t *testing.T) {
	resolver := NewResolver(&failingStore{}, testLogger())

	parts := []models.Part{inlineFilePart([]byte("x"), "text/plain", "f.txt")}

	_, err := resolver.Resolve(context.Background(), "user-1", parts)
	if err == nil {
		t.Fatal("Resolve() should propagate upload failure")
	}
	var attErr *domain.AttachmentError
	if !errors.As(err, &attErr) {
		t.Errorf("error should be AttachmentError, got %T", err)
	}
}
