// Package attachments resolves inline file payloads into object-storage
// references before messages enter history or reach a provider.
package attachments

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"ripple/internal/domain"
	"ripple/internal/domain/models"
	"ripple/internal/storage"
)

// Resolver uploads inline file parts and rewrites them to storage keys.
type Resolver struct {
	store  storage.ObjectStore
	logger *slog.Logger
}

// NewResolver creates a resolver over the given object store.
func NewResolver(store storage.ObjectStore, logger *slog.Logger) *Resolver {
	return &Resolver{store: store, logger: logger}
}

// Resolve walks the parts and replaces every inline file payload with an
// object-storage reference. Already-resolved file parts and non-file parts
// pass through untouched, so resolving twice is a no-op. Any upload
// failure aborts the whole batch with *domain.AttachmentError; callers run
// this before history writes, so a failed upload leaves no trace.
func (r *Resolver) Resolve(ctx context.Context, userID string, parts []models.Part) ([]models.Part, error) {
	resolved := make([]models.Part, len(parts))
	copy(resolved, parts)

	for i := range resolved {
		if !models.IsInlineFile(resolved[i]) {
			continue
		}

		part, err := r.resolvePart(ctx, userID, resolved[i])
		if err != nil {
			return nil, err
		}
		resolved[i] = part
	}

	return resolved, nil
}

func (r *Resolver) resolvePart(ctx context.Context, userID string, part models.Part) (models.Part, error) {
	filename, _ := part.Content[models.ContentKeyFilename].(string)

	encoded, ok := part.Content[models.ContentKeyData].(string)
	if !ok {
		return part, &domain.AttachmentError{
			Filename: filename,
			Err:      fmt.Errorf("file data must be a base64 string"),
		}
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return part, &domain.AttachmentError{
			Filename: filename,
			Err:      fmt.Errorf("decode base64: %w", err),
		}
	}

	mimeType, _ := part.Content[models.ContentKeyMimeType].(string)
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	key := fmt.Sprintf("attachments/%s/%s", userID, uuid.NewString())
	storedKey, err := r.store.Put(ctx, key, data, mimeType)
	if err != nil {
		return part, &domain.AttachmentError{Filename: filename, Err: err}
	}

	r.logger.Debug("attachment uploaded",
		"key", storedKey,
		"size", len(data),
		"mime_type", mimeType,
	)

	content := map[string]any{
		models.ContentKeyKey:      storedKey,
		models.ContentKeyMimeType: mimeType,
		models.ContentKeySize:     len(data),
	}
	if filename != "" {
		content[models.ContentKeyFilename] = filename
	}
	part.Content = content

	return part, nil
}
