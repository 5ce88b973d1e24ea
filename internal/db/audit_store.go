package db

import (
	"context"
	"database/sql"
	"time"

	"gorm.io/gorm"

	"github.com/thebtf/tabletalk/pkg/models"
)

// AuditStore appends to and reads the tool call operation log. The log
// is the source of truth for what actually happened under partial
// failure: entries are only ever inserted, never updated or deleted.
type AuditStore struct {
	db *gorm.DB
}

// NewAuditStore creates a new audit store.
func NewAuditStore(store *Store) *AuditStore {
	return &AuditStore{db: store.DB}
}

// Entry is one recorded tool call attempt.
type Entry struct {
	RunID     string
	SessionID string
	Tool      string
	Arguments models.JSONMap
	Status    models.ToolCallStatus
	Result    models.JSONMap
	Error     string
	Latency   time.Duration
}

// Append records one tool call attempt.
func (s *AuditStore) Append(ctx context.Context, e Entry) error {
	row := &ToolCallLog{
		RunID:     e.RunID,
		SessionID: e.SessionID,
		Tool:      e.Tool,
		Arguments: e.Arguments,
		Status:    string(e.Status),
		Result:    e.Result,
		LatencyMs: e.Latency.Milliseconds(),
	}
	if e.Error != "" {
		row.Error = sql.NullString{String: e.Error, Valid: true}
	}
	return s.db.WithContext(ctx).Create(row).Error
}

// LogEntry is a read-side view of one operation log row.
type LogEntry struct {
	ID        int64                 `json:"id"`
	RunID     string                `json:"run_id"`
	SessionID string                `json:"session_id"`
	Tool      string                `json:"tool"`
	Arguments models.JSONMap        `json:"arguments,omitempty"`
	Status    models.ToolCallStatus `json:"status"`
	Result    models.JSONMap        `json:"result,omitempty"`
	Error     string                `json:"error,omitempty"`
	LatencyMs int64                 `json:"latency_ms"`
	CreatedAt string                `json:"created_at"`
}

// ForRun returns all entries recorded under one run id, oldest first.
func (s *AuditStore) ForRun(ctx context.Context, runID string) ([]LogEntry, error) {
	var rows []ToolCallLog
	err := s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toLogEntries(rows), nil
}

// Recent returns the newest limit entries for a session, oldest first.
func (s *AuditStore) Recent(ctx context.Context, sessionID string, limit int) ([]LogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []ToolCallLog
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	// Reverse into insertion order.
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return toLogEntries(rows), nil
}

func toLogEntries(rows []ToolCallLog) []LogEntry {
	out := make([]LogEntry, len(rows))
	for i, row := range rows {
		out[i] = LogEntry{
			ID:        row.ID,
			RunID:     row.RunID,
			SessionID: row.SessionID,
			Tool:      row.Tool,
			Arguments: row.Arguments,
			Status:    models.ToolCallStatus(row.Status),
			Result:    row.Result,
			Error:     row.Error.String,
			LatencyMs: row.LatencyMs,
			CreatedAt: row.CreatedAt,
		}
	}
	return out
}
