package models

import (
	"encoding/json"
	"fmt"
)

// SSE event types emitted over a streaming generation. One message_start,
// then part_start/part_delta/part_stop cycles interleaved with metadata
// checkpoints, then exactly one terminal event.
const (
	EventMessageStart   = "message_start"
	EventPartStart      = "part_start"
	EventPartDelta      = "part_delta"
	EventPartStop       = "part_stop"
	EventMetadata       = "metadata"
	EventMessageDone    = "message_complete"
	EventMessageError   = "message_error"
	EventMessageAborted = "message_aborted"
)

// StreamEvent is one frame of a generation stream, broadcast to all
// subscribers of the session and written to the wire as an SSE event.
type StreamEvent struct {
	Type string `json:"-"`
	Data any    `json:"-"`
}

// MessageStartData opens the stream: the assistant message being generated.
type MessageStartData struct {
	StreamID  string `json:"stream_id"`
	ChatID    string `json:"chat_id"`
	MessageID string `json:"message_id"`
	Seq       int    `json:"seq"`
	Model     string `json:"model"`
}

// PartStartData announces a new part at PartIndex.
type PartStartData struct {
	MessageID string `json:"message_id"`
	PartIndex int    `json:"part_index"`
	PartType  string `json:"part_type"`
}

// PartDeltaData is an incremental fragment of the part at PartIndex.
// TextDelta for text/thinking parts, InputJSONDelta for tool_use input.
type PartDeltaData struct {
	MessageID      string `json:"message_id"`
	PartIndex      int    `json:"part_index"`
	PartType       string `json:"part_type"`
	TextDelta      string `json:"text_delta,omitempty"`
	InputJSONDelta string `json:"input_json_delta,omitempty"`
}

// PartStopData closes the part at PartIndex.
type PartStopData struct {
	MessageID string `json:"message_id"`
	PartIndex int    `json:"part_index"`
}

// MetadataData is a mid-stream checkpoint. Only the fields known at the
// checkpoint are set; the client merges successive checkpoints.
type MetadataData struct {
	MessageID string          `json:"message_id"`
	Metadata  MessageMetadata `json:"metadata"`
}

// TerminalData closes the stream. Status is complete, error or cancelled;
// Error is set only for error terminals.
type TerminalData struct {
	MessageID string           `json:"message_id"`
	Status    string           `json:"status"`
	Error     string           `json:"error,omitempty"`
	Metadata  *MessageMetadata `json:"metadata,omitempty"`
}

// FormatSSE renders the event as a wire-ready SSE frame.
func (e StreamEvent) FormatSSE() (string, error) {
	payload, err := json.Marshal(e.Data)
	if err != nil {
		return "", fmt.Errorf("marshal %s event: %w", e.Type, err)
	}
	return fmt.Sprintf("event: %s\ndata: %s\n\n", e.Type, payload), nil
}
