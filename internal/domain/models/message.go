package models

import (
	"time"
)

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message statuses. User and system messages are "complete" on insert;
// assistant messages move pending -> streaming -> {complete, error, cancelled}.
const (
	StatusPending   = "pending"
	StatusStreaming = "streaming"
	StatusComplete  = "complete"
	StatusError     = "error"
	StatusCancelled = "cancelled"
)

// Message is one entry in a chat's ordered message log.
//
// Seq is the position in the log, assigned on insert and dense per chat.
// Once a message reaches a terminal status its parts are immutable; the only
// way to supersede it is a suffix operation (regenerate, delete-and-after,
// branch) that acts on the log from some index onward.
type Message struct {
	ID          string           `json:"id" db:"id"`
	ChatID      string           `json:"chat_id" db:"chat_id"`
	Seq         int              `json:"seq" db:"seq"`
	Role        string           `json:"role" db:"role"`
	Status      string           `json:"status" db:"status"`
	Error       *string          `json:"error,omitempty" db:"error"`
	Model       *string          `json:"model,omitempty" db:"model"`
	Metadata    *MessageMetadata `json:"metadata,omitempty" db:"metadata"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty" db:"completed_at"`

	// Loaded separately, not a column
	Parts []Part `json:"parts,omitempty"`
}

// IsTerminal returns true once the message can no longer change.
func (m *Message) IsTerminal() bool {
	return m.Status == StatusComplete || m.Status == StatusError || m.Status == StatusCancelled
}
