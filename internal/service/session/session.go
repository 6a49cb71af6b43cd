// Package session runs streaming generations: one Session per stream, a
// single writer goroutine consuming provider events, N SSE subscribers fed
// through a broadcast hub, and exactly-once persistence of the outcome.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ripple/internal/catalog"
	"ripple/internal/domain/models"
	"ripple/internal/domain/repositories"
	"ripple/internal/domain/services"
	"ripple/internal/service/metrics"
)

// Config carries the collaborators and knobs for one session.
type Config struct {
	StreamID  string
	ChatID    string
	MessageID string
	Seq       int

	Provider services.ModelProvider
	Entry    *catalog.Entry

	MessageRepo repositories.MessageRepository
	ChatRepo    repositories.ChatRepository

	// IdleTimeout ends the stream with an error when the provider goes
	// silent for this long. Zero disables the timeout.
	IdleTimeout time.Duration

	Logger *slog.Logger
}

// Session drives one assistant generation from provider stream to
// persisted message. States: pending until the provider's first content
// event, streaming while consuming the rest, then exactly one of complete,
// error or cancelled.
type Session struct {
	cfg Config
	hub *Hub
	acc *PartAccumulator

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	status   string
	errMsg   string
	metadata models.MessageMetadata

	doneAt   time.Time
	terminal sync.Once
	done     chan struct{}

	startedAt    time.Time
	firstTokenAt time.Time
	thinkingFrom time.Time

	usage *services.ProviderUsage
}

// New creates a session in the pending state.
func New(parentCtx context.Context, cfg Config) *Session {
	ctx, cancel := context.WithCancel(parentCtx)

	return &Session{
		cfg:    cfg,
		hub:    NewHub(),
		acc:    NewPartAccumulator(cfg.MessageID, cfg.MessageRepo),
		ctx:    ctx,
		cancel: cancel,
		status: models.StatusPending,
		done:   make(chan struct{}),
		metadata: models.MessageMetadata{
			Model: cfg.Entry.ID,
		},
	}
}

// ID returns the stream id.
func (s *Session) ID() string { return s.cfg.StreamID }

// ChatID returns the owning chat id.
func (s *Session) ChatID() string { return s.cfg.ChatID }

// MessageID returns the assistant message being generated.
func (s *Session) MessageID() string { return s.cfg.MessageID }

// Status returns the current state.
func (s *Session) Status() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// CompletedAt returns when the session reached a terminal state, zero
// while live.
func (s *Session) CompletedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doneAt
}

// Done closes when the session reaches a terminal state.
func (s *Session) Done() <-chan struct{} { return s.done }

// Subscribe attaches an SSE client: full replay of the session so far,
// then the live tail.
func (s *Session) Subscribe(clientID string) <-chan string {
	return s.hub.Subscribe(clientID)
}

// Unsubscribe detaches an SSE client.
func (s *Session) Unsubscribe(clientID string) {
	s.hub.Unsubscribe(clientID)
}

// Abort cancels the generation. The run loop persists partial output and
// finishes with the cancelled status. Safe to call multiple times and
// after completion.
func (s *Session) Abort() {
	s.cancel()
}

// Run starts the generation. Non-blocking; the run loop owns all stream
// state from here. The session stays pending until the provider delivers
// its first content event.
func (s *Session) Run(req *services.GenerateRequest) {
	s.startedAt = time.Now()

	go s.run(req)
}

func (s *Session) run(req *services.GenerateRequest) {
	s.emit(models.EventMessageStart, models.MessageStartData{
		StreamID:  s.cfg.StreamID,
		ChatID:    s.cfg.ChatID,
		MessageID: s.cfg.MessageID,
		Seq:       s.cfg.Seq,
		Model:     s.cfg.Entry.ID,
	})

	events, err := s.cfg.Provider.StreamResponse(s.ctx, req)
	if err != nil {
		s.finish(models.StatusError, err)
		return
	}

	idle := s.cfg.IdleTimeout
	var timer *time.Timer
	var timeout <-chan time.Time
	if idle > 0 {
		timer = time.NewTimer(idle)
		defer timer.Stop()
		timeout = timer.C
	}

	currentIndex := -1

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				// Channel closed without a usage frame: either an abort
				// unwound the provider or the stream died silently.
				if s.ctx.Err() != nil {
					s.finish(models.StatusCancelled, nil)
				} else {
					s.finish(models.StatusError, fmt.Errorf("stream closed without usage"))
				}
				return
			}

			if timer != nil {
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(idle)
			}

			switch {
			case ev.Err != nil:
				s.finish(models.StatusError, ev.Err)
				return

			case ev.Delta != nil:
				s.markActive()
				if err := s.processDelta(ev.Delta, &currentIndex); err != nil {
					s.finish(models.StatusError, err)
					return
				}

			case ev.Part != nil:
				s.markActive()
				if err := s.processCompletePart(ev.Part); err != nil {
					s.finish(models.StatusError, err)
					return
				}

			case ev.Usage != nil:
				s.usage = ev.Usage
				s.finish(models.StatusComplete, nil)
				return
			}

		case <-timeout:
			s.finish(models.StatusError, fmt.Errorf("stream idle for %s", idle))
			return

		case <-s.ctx.Done():
			s.finish(models.StatusCancelled, nil)
			return
		}
	}
}

// markActive moves pending to streaming on the first content event.
func (s *Session) markActive() {
	s.mu.Lock()
	if s.status == models.StatusPending {
		s.status = models.StatusStreaming
	}
	s.mu.Unlock()
}

func (s *Session) processDelta(delta *services.ProviderDelta, currentIndex *int) error {
	if delta.PartIndex != *currentIndex {
		partType := delta.PartType
		if partType == "" {
			partType = models.PartTypeText
		}
		s.emit(models.EventPartStart, models.PartStartData{
			MessageID: s.cfg.MessageID,
			PartIndex: delta.PartIndex,
			PartType:  partType,
		})
		*currentIndex = delta.PartIndex

		if partType == models.PartTypeThinking {
			s.thinkingFrom = time.Now()
		}
	}

	// First content of the stream: time-to-first-token checkpoint.
	if s.firstTokenAt.IsZero() && (delta.TextDelta != nil || delta.InputJSONDelta != nil) {
		s.firstTokenAt = time.Now()
		ttft := s.firstTokenAt.Sub(s.startedAt).Milliseconds()

		s.mu.Lock()
		s.metadata.TimeToFirstTokenMs = &ttft
		s.mu.Unlock()

		s.emit(models.EventMetadata, models.MetadataData{
			MessageID: s.cfg.MessageID,
			Metadata:  models.MessageMetadata{TimeToFirstTokenMs: &ttft},
		})
	}

	deltaData := models.PartDeltaData{
		MessageID: s.cfg.MessageID,
		PartIndex: delta.PartIndex,
		PartType:  delta.PartType,
	}
	if delta.TextDelta != nil {
		deltaData.TextDelta = *delta.TextDelta
	}
	if delta.InputJSONDelta != nil {
		deltaData.InputJSONDelta = *delta.InputJSONDelta
	}
	s.emit(models.EventPartDelta, deltaData)

	flushed, err := s.acc.ProcessDelta(s.persistCtx(), delta)
	if err != nil {
		return err
	}
	if flushed != nil {
		s.closePart(flushed)
	}

	return nil
}

func (s *Session) processCompletePart(part *models.Part) error {
	adopted, err := s.acc.AdoptComplete(s.persistCtx(), part)
	if err != nil {
		return err
	}
	if adopted != nil {
		s.closePart(adopted)
	}
	return nil
}

// closePart broadcasts part_stop and, for reasoning parts, the reasoning
// duration checkpoint.
func (s *Session) closePart(part *models.Part) {
	s.emit(models.EventPartStop, models.PartStopData{
		MessageID: s.cfg.MessageID,
		PartIndex: part.Sequence,
	})

	if part.PartType == models.PartTypeThinking && !s.thinkingFrom.IsZero() {
		thinkingMs := time.Since(s.thinkingFrom).Milliseconds()
		s.thinkingFrom = time.Time{}

		s.mu.Lock()
		if s.metadata.ThinkingDurationMs != nil {
			thinkingMs += *s.metadata.ThinkingDurationMs
		}
		s.metadata.ThinkingDurationMs = &thinkingMs
		s.mu.Unlock()

		s.emit(models.EventMetadata, models.MetadataData{
			MessageID: s.cfg.MessageID,
			Metadata:  models.MessageMetadata{ThinkingDurationMs: &thinkingMs},
		})
	}
}

// finish is the single terminal path. The sync.Once plus the status guard
// inside FinalizeMessage give exactly-once persistence even when abort,
// idle timeout and provider completion race.
func (s *Session) finish(status string, cause error) {
	s.terminal.Do(func() {
		ctx := s.persistCtx()

		if flushed, err := s.acc.Finalize(ctx); err != nil {
			s.cfg.Logger.Error("finalize partial output failed",
				"stream_id", s.cfg.StreamID, "error", err)
		} else if flushed != nil {
			s.closePart(flushed)
		}

		md := s.buildMetadata(status, cause)

		var errMsg *string
		if cause != nil {
			msg := cause.Error()
			errMsg = &msg
		}

		updated, err := s.cfg.MessageRepo.FinalizeMessage(ctx, s.cfg.MessageID, status, errMsg, &md)
		if err != nil {
			s.cfg.Logger.Error("finalize message failed",
				"stream_id", s.cfg.StreamID, "message_id", s.cfg.MessageID, "error", err)
		} else if !updated {
			s.cfg.Logger.Warn("message already finalized",
				"stream_id", s.cfg.StreamID, "message_id", s.cfg.MessageID)
		}

		if err := s.cfg.ChatRepo.ClearActiveStream(ctx, s.cfg.ChatID, s.cfg.StreamID); err != nil {
			s.cfg.Logger.Error("clear active stream failed",
				"stream_id", s.cfg.StreamID, "chat_id", s.cfg.ChatID, "error", err)
		}

		s.mu.Lock()
		s.status = status
		if cause != nil {
			s.errMsg = cause.Error()
		}
		s.metadata = md
		s.doneAt = time.Now()
		s.mu.Unlock()

		s.emitTerminal(status, cause, &md)
		s.hub.Close()
		s.cancel()
		close(s.done)

		s.cfg.Logger.Info("stream finished",
			"stream_id", s.cfg.StreamID,
			"chat_id", s.cfg.ChatID,
			"status", status,
			"duration_ms", md.TotalDurationMs,
		)
	})
}

// buildMetadata assembles the final checkpoint: totals, token counts and
// derived cost/throughput. Unknown values stay nil.
func (s *Session) buildMetadata(status string, cause error) models.MessageMetadata {
	s.mu.RLock()
	md := s.metadata
	s.mu.RUnlock()

	total := time.Since(s.startedAt).Milliseconds()
	md.TotalDurationMs = &total

	if cause != nil {
		md.Error = cause.Error()
	}
	if status == models.StatusCancelled {
		md.StopReason = "aborted"
	}

	if s.usage != nil {
		md.StopReason = s.usage.StopReason
		in, out, think := s.usage.InputTokens, s.usage.OutputTokens, s.usage.ThinkingTokens
		md.InputTokens = &in
		md.OutputTokens = &out
		if think > 0 {
			md.ThinkingTokens = &think
		}

		md.CostUSD = metrics.CostUSD(s.cfg.Entry, metrics.Usage{
			InputTokens:    in,
			OutputTokens:   out,
			ThinkingTokens: think,
		})
		md.TokensPerSecond = metrics.TokensPerSecond(out, md.TotalDurationMs, md.TimeToFirstTokenMs)
	}

	return md
}

func (s *Session) emitTerminal(status string, cause error, md *models.MessageMetadata) {
	data := models.TerminalData{
		MessageID: s.cfg.MessageID,
		Status:    status,
		Metadata:  md,
	}

	switch status {
	case models.StatusComplete:
		s.emit(models.EventMessageDone, data)
	case models.StatusCancelled:
		s.emit(models.EventMessageAborted, data)
	default:
		if cause != nil {
			data.Error = cause.Error()
		}
		s.emit(models.EventMessageError, data)
	}
}

func (s *Session) emit(eventType string, data any) {
	frame, err := (models.StreamEvent{Type: eventType, Data: data}).FormatSSE()
	if err != nil {
		s.cfg.Logger.Error("format stream event failed", "type", eventType, "error", err)
		return
	}
	s.hub.Broadcast(frame)
}

// persistCtx survives an aborted stream: persistence and marker cleanup
// must run even after s.ctx is cancelled.
func (s *Session) persistCtx() context.Context {
	return context.WithoutCancel(s.ctx)
}
