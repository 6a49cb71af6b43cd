package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for cross-layer classification. Repositories and services
// wrap these with context; handlers map them to HTTP status codes.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// NotFoundError identifies a missing resource by kind and id.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ValidationError carries a field-level validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ConflictError reports a state conflict, optionally carrying the existing
// resource so handlers can return it in the 409 body.
type ConflictError struct {
	Message  string
	Existing any
}

func (e *ConflictError) Error() string { return e.Message }

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// StreamInProgressError rejects an operation because the chat has a live
// generation. StreamID lets the caller abort it and retry.
type StreamInProgressError struct {
	ChatID   string
	StreamID string
}

func (e *StreamInProgressError) Error() string {
	return fmt.Sprintf("chat %s has an active stream", e.ChatID)
}

func (e *StreamInProgressError) Is(target error) bool { return target == ErrConflict }

// ModelNotFoundError reports a logical model id absent from the catalog.
type ModelNotFoundError struct {
	Model string
}

func (e *ModelNotFoundError) Error() string {
	return fmt.Sprintf("model %s not found", e.Model)
}

func (e *ModelNotFoundError) Is(target error) bool { return target == ErrNotFound }

// ProviderError wraps an upstream model provider failure.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// AttachmentError reports a failed attachment resolution; the submit
// pipeline stops before any history write.
type AttachmentError struct {
	Filename string
	Err      error
}

func (e *AttachmentError) Error() string {
	if e.Filename == "" {
		return fmt.Sprintf("attachment upload failed: %v", e.Err)
	}
	return fmt.Sprintf("attachment %s upload failed: %v", e.Filename, e.Err)
}

func (e *AttachmentError) Unwrap() error { return e.Err }

func (e *AttachmentError) Is(target error) bool { return target == ErrValidation }
