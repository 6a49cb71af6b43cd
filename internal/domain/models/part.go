package models

import (
	"time"
)

// Part types. Text and thinking parts stream as text deltas; tool_use parts
// stream their input as JSON fragments; file parts arrive whole.
const (
	PartTypeText       = "text"
	PartTypeThinking   = "thinking"
	PartTypeToolUse    = "tool_use"
	PartTypeToolResult = "tool_result"
	PartTypeFile       = "file"
)

// Part is one typed content block of a message. Sequence orders parts within
// the message. TextContent carries the flat payload for text and thinking
// parts; Content carries the structured payload for everything else (tool
// input, file reference, signatures).
type Part struct {
	ID          string         `json:"id" db:"id"`
	MessageID   string         `json:"message_id" db:"message_id"`
	Sequence    int            `json:"sequence" db:"sequence"`
	PartType    string         `json:"part_type" db:"part_type"`
	TextContent *string        `json:"text_content,omitempty" db:"text_content"`
	Content     map[string]any `json:"content,omitempty" db:"content"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
}

// Text returns the flat text payload, empty when absent.
func (p *Part) Text() string {
	if p.TextContent == nil {
		return ""
	}
	return *p.TextContent
}
