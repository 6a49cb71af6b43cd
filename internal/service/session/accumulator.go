package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"ripple/internal/domain/models"
	"ripple/internal/domain/repositories"
	"ripple/internal/domain/services"
)

// PartAccumulator folds streaming deltas into complete message parts and
// persists each part as it closes. Deltas for part N accumulate in memory;
// when the provider moves to part N+1 (or the stream ends) the finished
// part is written.
//
// Not thread-safe: owned by the single session run loop.
type PartAccumulator struct {
	messageID string
	repo      repositories.MessageRepository

	currentIndex int
	currentType  string
	text         strings.Builder
	inputJSON    strings.Builder

	toolCallID *string
	toolName   *string
	signature  *string

	lastWritten int
}

// NewPartAccumulator creates an accumulator persisting parts of messageID.
func NewPartAccumulator(messageID string, repo repositories.MessageRepository) *PartAccumulator {
	return &PartAccumulator{
		messageID:    messageID,
		repo:         repo,
		currentIndex: -1,
		lastWritten:  -1,
	}
}

// ProcessDelta accumulates one delta. When the delta opens a new part, the
// previous one is flushed and returned for broadcast; otherwise returns nil.
func (acc *PartAccumulator) ProcessDelta(ctx context.Context, delta *services.ProviderDelta) (*models.Part, error) {
	if delta.PartIndex != acc.currentIndex {
		flushed, err := acc.flush(ctx)
		if err != nil {
			return nil, fmt.Errorf("flush part %d: %w", acc.currentIndex, err)
		}

		acc.startPart(delta)
		return flushed, nil
	}

	acc.accumulate(delta)
	return nil, nil
}

// AdoptComplete persists a whole part the provider emitted in one piece.
// Parts already written through delta accumulation are skipped, so a
// provider sending both deltas and the closing block does not double-write.
func (acc *PartAccumulator) AdoptComplete(ctx context.Context, part *models.Part) (*models.Part, error) {
	if part.Sequence <= acc.lastWritten {
		return nil, nil
	}

	part.MessageID = acc.messageID
	if err := acc.repo.CreatePart(ctx, part); err != nil {
		return nil, fmt.Errorf("persist part %d: %w", part.Sequence, err)
	}

	acc.lastWritten = part.Sequence
	if acc.currentIndex == part.Sequence {
		acc.currentIndex = -1
	}

	return part, nil
}

// Finalize flushes the in-progress part, if any. Called on every terminal
// path so partial output from an aborted or failed stream still persists.
func (acc *PartAccumulator) Finalize(ctx context.Context) (*models.Part, error) {
	return acc.flush(ctx)
}

// LastWritten returns the sequence of the last persisted part, -1 when
// none.
func (acc *PartAccumulator) LastWritten() int {
	return acc.lastWritten
}

func (acc *PartAccumulator) startPart(delta *services.ProviderDelta) {
	acc.currentIndex = delta.PartIndex
	acc.currentType = delta.PartType
	if acc.currentType == "" {
		acc.currentType = models.PartTypeText
	}

	acc.text.Reset()
	acc.inputJSON.Reset()
	acc.toolCallID = nil
	acc.toolName = nil
	acc.signature = nil

	acc.accumulate(delta)
}

func (acc *PartAccumulator) accumulate(delta *services.ProviderDelta) {
	if delta.TextDelta != nil {
		acc.text.WriteString(*delta.TextDelta)
	}
	if delta.InputJSONDelta != nil {
		acc.inputJSON.WriteString(*delta.InputJSONDelta)
	}
	if delta.SignatureDelta != nil {
		sig := ""
		if acc.signature != nil {
			sig = *acc.signature
		}
		sig += *delta.SignatureDelta
		acc.signature = &sig
	}
	if delta.ToolCallID != nil {
		acc.toolCallID = delta.ToolCallID
	}
	if delta.ToolCallName != nil {
		acc.toolName = delta.ToolCallName
	}
}

func (acc *PartAccumulator) flush(ctx context.Context) (*models.Part, error) {
	if acc.currentIndex == -1 {
		return nil, nil
	}
	if acc.currentIndex <= acc.lastWritten {
		acc.currentIndex = -1
		return nil, nil
	}

	part, err := acc.build()
	if err != nil {
		return nil, err
	}

	if err := acc.repo.CreatePart(ctx, part); err != nil {
		return nil, fmt.Errorf("persist part %d: %w", part.Sequence, err)
	}

	acc.lastWritten = acc.currentIndex
	acc.currentIndex = -1

	return part, nil
}

func (acc *PartAccumulator) build() (*models.Part, error) {
	part := &models.Part{
		MessageID: acc.messageID,
		Sequence:  acc.currentIndex,
		PartType:  acc.currentType,
	}

	if text := acc.text.String(); text != "" {
		part.TextContent = &text
	}

	switch acc.currentType {
	case models.PartTypeThinking:
		if acc.signature != nil {
			part.Content = map[string]any{models.ContentKeySignature: *acc.signature}
		}

	case models.PartTypeToolUse:
		content := make(map[string]any)
		if acc.toolCallID != nil {
			content[models.ContentKeyToolID] = *acc.toolCallID
		}
		if acc.toolName != nil {
			content[models.ContentKeyToolName] = *acc.toolName
		}
		if jsonStr := acc.inputJSON.String(); jsonStr != "" {
			var input map[string]any
			if err := json.Unmarshal([]byte(jsonStr), &input); err != nil {
				// Partial JSON from an interrupted stream; keep the raw
				// fragment rather than losing it.
				content[models.ContentKeyInput] = jsonStr
			} else {
				content[models.ContentKeyInput] = input
			}
		}
		part.Content = content
	}

	return part, nil
}
