// Package models contains domain models for tabletalk.
package models

import (
	"database/sql"
	"time"
)

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser  Sender = "user"
	SenderAgent Sender = "agent"
)

// Session represents a multi-turn conversation thread bound to one owner.
// Sessions are deactivated on close, never physically deleted.
type Session struct {
	ID             int64         `db:"id" json:"id"`
	SessionID      string        `db:"session_id" json:"session_id"`
	OwnerID        string        `db:"owner_id" json:"owner_id"`
	Title          string        `db:"title" json:"title"`
	TableID        sql.NullInt64 `db:"table_id" json:"table_id,omitempty"`
	IsActive       bool          `db:"is_active" json:"is_active"`
	CreatedAt      string        `db:"created_at" json:"created_at"`
	CreatedAtEpoch int64         `db:"created_at_epoch" json:"created_at_epoch"`
	UpdatedAt      string        `db:"updated_at" json:"updated_at"`
	UpdatedAtEpoch int64         `db:"updated_at_epoch" json:"updated_at_epoch"`
}

// Message represents one utterance within a session. Immutable once created.
// AgentData carries structured agent output (tool results, intent snapshot).
type Message struct {
	ID             int64   `db:"id" json:"id"`
	MessageID      string  `db:"message_id" json:"message_id"`
	SessionID      string  `db:"session_id" json:"session_id"`
	Sender         Sender  `db:"sender" json:"sender"`
	Text           string  `db:"text" json:"text"`
	AgentData      JSONMap `db:"agent_data" json:"agent_data,omitempty"`
	CreatedAt      string  `db:"created_at" json:"created_at"`
	CreatedAtEpoch int64   `db:"created_at_epoch" json:"created_at_epoch"`
}

// ContextSnapshot is one entry in a session's rolling context window:
// the intent and entities derived from a single user message.
type ContextSnapshot struct {
	IntentType  IntentType        `json:"intent_type"`
	Categories  []string          `json:"categories,omitempty"`
	Description string            `json:"description,omitempty"`
	Entities    map[string]string `json:"entities,omitempty"`
	HourOfDay   int               `json:"hour_of_day"`
	Confidence  float64           `json:"confidence"`
	CreatedAt   time.Time         `json:"created_at"`
}
