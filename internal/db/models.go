package db

import (
	"database/sql"
	"time"

	"gorm.io/gorm"

	"github.com/thebtf/tabletalk/pkg/models"
)

// GORM Models

// Session represents a conversation session row.
type Session struct {
	ID             int64  `gorm:"primaryKey;autoIncrement"`
	SessionID      string `gorm:"uniqueIndex;not null"`
	OwnerID        string `gorm:"index;index:idx_sessions_owner_active,priority:1;not null"`
	Title          string `gorm:"not null;default:'New Chat'"`
	TableID        sql.NullInt64
	IsActive       bool   `gorm:"index:idx_sessions_owner_active,priority:2;default:true"`
	CreatedAt      string `gorm:"not null"`
	CreatedAtEpoch int64  `gorm:"not null"`
	UpdatedAt      string `gorm:"not null"`
	UpdatedAtEpoch int64  `gorm:"index:idx_sessions_updated,sort:desc;not null"`
}

func (Session) TableName() string { return "sessions" }

// BeforeCreate hook to ensure timestamps are set.
func (s *Session) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if s.CreatedAtEpoch == 0 {
		s.CreatedAtEpoch = now.UnixMilli()
	}
	if s.CreatedAt == "" {
		s.CreatedAt = now.Format(time.RFC3339)
	}
	if s.UpdatedAtEpoch == 0 {
		s.UpdatedAtEpoch = s.CreatedAtEpoch
	}
	if s.UpdatedAt == "" {
		s.UpdatedAt = s.CreatedAt
	}
	return nil
}

// Message represents one stored utterance. Rows are never updated.
type Message struct {
	ID             int64          `gorm:"primaryKey;autoIncrement"`
	MessageID      string         `gorm:"uniqueIndex;not null"`
	SessionID      string         `gorm:"index:idx_messages_session_created,priority:1;not null"`
	Sender         string         `gorm:"type:text;check:sender IN ('user', 'agent');not null"`
	Text           string         `gorm:"type:text;not null"`
	AgentData      models.JSONMap `gorm:"type:text"`
	CreatedAt      string         `gorm:"not null"`
	CreatedAtEpoch int64          `gorm:"index:idx_messages_session_created,priority:2;not null"`
}

func (Message) TableName() string { return "messages" }

// BeforeCreate hook to ensure timestamps are set.
func (m *Message) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if m.CreatedAtEpoch == 0 {
		m.CreatedAtEpoch = now.UnixMilli()
	}
	if m.CreatedAt == "" {
		m.CreatedAt = now.Format(time.RFC3339)
	}
	return nil
}

// DataTable is the metadata row for one dynamic user table. Column
// headers live here as a JSON array; row payloads are free-form JSON
// validated against the headers on write.
type DataTable struct {
	ID             int64                  `gorm:"primaryKey;autoIncrement"`
	OwnerID        string                 `gorm:"index;not null"`
	TableName      string                 `gorm:"not null"`
	Description    string                 `gorm:"type:text"`
	Headers        models.JSONStringArray `gorm:"type:text;not null"`
	CreatedAt      string                 `gorm:"not null"`
	CreatedAtEpoch int64                  `gorm:"not null"`
	UpdatedAt      string                 `gorm:"not null"`
	UpdatedAtEpoch int64                  `gorm:"not null"`
}

// Note: no TableName() method here — it would collide with the TableName
// field. GORM's default naming already maps DataTable to "data_tables".

// BeforeCreate hook to ensure timestamps are set.
func (t *DataTable) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if t.CreatedAtEpoch == 0 {
		t.CreatedAtEpoch = now.UnixMilli()
	}
	if t.CreatedAt == "" {
		t.CreatedAt = now.Format(time.RFC3339)
	}
	if t.UpdatedAtEpoch == 0 {
		t.UpdatedAtEpoch = t.CreatedAtEpoch
	}
	if t.UpdatedAt == "" {
		t.UpdatedAt = t.CreatedAt
	}
	return nil
}

// DataRow is one JSON row belonging to a dynamic table. The row's
// stable identifier lives inside Data under the "id" key.
type DataRow struct {
	ID             int64          `gorm:"primaryKey;autoIncrement"`
	TableID        int64          `gorm:"index;not null"`
	RowID          string         `gorm:"index;not null"`
	Data           models.JSONMap `gorm:"type:text;not null"`
	CreatedAt      string         `gorm:"not null"`
	CreatedAtEpoch int64          `gorm:"not null"`
}

func (DataRow) TableName() string { return "data_rows" }

// BeforeCreate hook to ensure timestamps are set.
func (r *DataRow) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if r.CreatedAtEpoch == 0 {
		r.CreatedAtEpoch = now.UnixMilli()
	}
	if r.CreatedAt == "" {
		r.CreatedAt = now.Format(time.RFC3339)
	}
	return nil
}

// ToolCallLog is one entry in the append-only operation log. Every
// attempted tool call lands here regardless of outcome; entries are
// never mutated or deleted.
type ToolCallLog struct {
	ID             int64          `gorm:"primaryKey;autoIncrement"`
	RunID          string         `gorm:"index;not null"`
	SessionID      string         `gorm:"index:idx_toolcalls_session_created,priority:1;not null"`
	Tool           string         `gorm:"index;not null"`
	Arguments      models.JSONMap `gorm:"type:text"`
	Status         string         `gorm:"type:text;check:status IN ('validated', 'executed', 'failed', 'deferred', 'expired');not null"`
	Result         models.JSONMap `gorm:"type:text"`
	Error          sql.NullString `gorm:"type:text"`
	LatencyMs      int64          `gorm:"default:0"`
	CreatedAt      string         `gorm:"not null"`
	CreatedAtEpoch int64          `gorm:"index:idx_toolcalls_session_created,priority:2;not null"`
}

func (ToolCallLog) TableName() string { return "tool_call_log" }

// BeforeCreate hook to ensure timestamps are set.
func (l *ToolCallLog) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if l.CreatedAtEpoch == 0 {
		l.CreatedAtEpoch = now.UnixMilli()
	}
	if l.CreatedAt == "" {
		l.CreatedAt = now.Format(time.RFC3339)
	}
	return nil
}
