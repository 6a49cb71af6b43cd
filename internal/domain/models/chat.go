package models

import (
	"time"
)

// Chat is a named, ordered conversation between a user and a model.
//
// ActiveStreamID marks an in-flight assistant generation. At most one stream
// may be active per chat; the marker is claimed before a generation starts
// and cleared on any terminal state. StreamStartedAt is the lease timestamp
// for the marker: a marker older than the configured grace period belongs to
// a crashed writer and is treated as stale.
//
// ParentChatID/BranchFromIndex record where a branched chat was split off;
// BranchFromIndex is the seq of the last message copied from the parent.
// The branch's message prefix is copied at branch time and never re-derived.
type Chat struct {
	ID              string     `json:"id" db:"id"`
	UserID          string     `json:"user_id" db:"user_id"`
	Title           string     `json:"title" db:"title"`
	ActiveStreamID  *string    `json:"active_stream_id,omitempty" db:"active_stream_id"`
	StreamStartedAt *time.Time `json:"stream_started_at,omitempty" db:"stream_started_at"`
	ParentChatID    *string    `json:"parent_chat_id,omitempty" db:"parent_chat_id"`
	BranchFromIndex *int       `json:"branch_from_index,omitempty" db:"branch_from_index"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt       *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}
