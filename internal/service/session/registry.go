package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"ripple/internal/domain/models"
)

// Registry tracks live and recently finished sessions by stream id.
// Finished sessions stay registered for the retention period so
// reconnecting clients can still replay the terminal frames; a background
// sweep removes them afterwards.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	cleanupInterval time.Duration
	retention       time.Duration
	logger          *slog.Logger
}

// NewRegistry creates a registry. Call StartCleanup to begin the sweep.
func NewRegistry(cleanupInterval, retention time.Duration, logger *slog.Logger) *Registry {
	return &Registry{
		sessions:        make(map[string]*Session),
		cleanupInterval: cleanupInterval,
		retention:       retention,
		logger:          logger,
	}
}

// Register adds a session. Returns false when the stream id is already
// registered.
func (r *Registry) Register(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[s.ID()]; exists {
		return false
	}

	r.sessions[s.ID()] = s
	return true
}

// Get returns the session for a stream id, nil when unknown.
func (r *Registry) Get(streamID string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[streamID]
}

// Remove drops a session. Safe when absent.
func (r *Registry) Remove(streamID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, streamID)
}

// StartCleanup runs the retention sweep until ctx is cancelled.
func (r *Registry) StartCleanup(ctx context.Context) {
	ticker := time.NewTicker(r.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.cleanup()
		}
	}
}

func (r *Registry) cleanup() {
	cutoff := time.Now().Add(-r.retention)

	var toRemove []string
	r.mu.RLock()
	for streamID, s := range r.sessions {
		if s.Status() == models.StatusStreaming || s.Status() == models.StatusPending {
			continue
		}
		if doneAt := s.CompletedAt(); !doneAt.IsZero() && doneAt.Before(cutoff) {
			toRemove = append(toRemove, streamID)
		}
	}
	r.mu.RUnlock()

	if len(toRemove) == 0 {
		return
	}

	r.mu.Lock()
	for _, streamID := range toRemove {
		delete(r.sessions, streamID)
	}
	r.mu.Unlock()

	r.logger.Debug("cleaned up finished sessions", "count", len(toRemove))
}
