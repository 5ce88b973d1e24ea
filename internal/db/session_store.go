package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/thebtf/tabletalk/pkg/models"
)

// SessionStore provides session and message persistence.
type SessionStore struct {
	db *gorm.DB
}

// NewSessionStore creates a new session store.
func NewSessionStore(store *Store) *SessionStore {
	return &SessionStore{db: store.DB}
}

// GetSession retrieves a session by its public session id.
// Returns models.ErrSessionNotFound when missing.
func (s *SessionStore) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	var row Session
	err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, models.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return toModelSession(&row), nil
}

// GetActiveSession returns the most recently updated active session for
// an owner, or nil when the owner has none.
func (s *SessionStore) GetActiveSession(ctx context.Context, ownerID string) (*models.Session, error) {
	var row Session
	err := s.db.WithContext(ctx).
		Where("owner_id = ? AND is_active = ?", ownerID, true).
		Order("updated_at_epoch DESC").
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toModelSession(&row), nil
}

// CreateSession creates a new active session for an owner.
func (s *SessionStore) CreateSession(ctx context.Context, ownerID, title string) (*models.Session, error) {
	if title == "" {
		title = "New Chat"
	}
	row := &Session{
		SessionID: fmt.Sprintf("chat_%s_%d_%s", ownerID, time.Now().UnixMilli(), uuid.NewString()[:6]),
		OwnerID:   ownerID,
		Title:     title,
		IsActive:  true,
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return toModelSession(row), nil
}

// ListSessions returns an owner's sessions ordered by last update.
func (s *SessionStore) ListSessions(ctx context.Context, ownerID string, activeOnly bool) ([]*models.Session, error) {
	q := s.db.WithContext(ctx).Where("owner_id = ?", ownerID)
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var rows []Session
	if err := q.Order("updated_at_epoch DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*models.Session, len(rows))
	for i := range rows {
		out[i] = toModelSession(&rows[i])
	}
	return out, nil
}

// CloseSession deactivates a session. Sessions are never physically deleted.
func (s *SessionStore) CloseSession(ctx context.Context, sessionID string) error {
	now := time.Now()
	res := s.db.WithContext(ctx).Model(&Session{}).
		Where("session_id = ?", sessionID).
		Updates(map[string]any{
			"is_active":        false,
			"updated_at":       now.Format(time.RFC3339),
			"updated_at_epoch": now.UnixMilli(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.ErrSessionNotFound
	}
	return nil
}

// TouchSession bumps a session's update timestamp.
func (s *SessionStore) TouchSession(ctx context.Context, sessionID string) error {
	now := time.Now()
	return s.db.WithContext(ctx).Model(&Session{}).
		Where("session_id = ?", sessionID).
		Updates(map[string]any{
			"updated_at":       now.Format(time.RFC3339),
			"updated_at_epoch": now.UnixMilli(),
		}).Error
}

// BindTable records the table a session is operating on.
func (s *SessionStore) BindTable(ctx context.Context, sessionID string, tableID int64) error {
	return s.db.WithContext(ctx).Model(&Session{}).
		Where("session_id = ?", sessionID).
		Update("table_id", tableID).Error
}

// AppendMessage stores one immutable message and touches the session.
func (s *SessionStore) AppendMessage(ctx context.Context, sessionID string, sender models.Sender, text string, agentData models.JSONMap) (*models.Message, error) {
	row := &Message{
		MessageID: fmt.Sprintf("msg_%s", uuid.NewString()[:12]),
		SessionID: sessionID,
		Sender:    string(sender),
		Text:      text,
		AgentData: agentData,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(row).Error; err != nil {
			return err
		}
		now := time.Now()
		return tx.Model(&Session{}).
			Where("session_id = ?", sessionID).
			Updates(map[string]any{
				"updated_at":       now.Format(time.RFC3339),
				"updated_at_epoch": now.UnixMilli(),
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return toModelMessage(row), nil
}

// ListMessages returns a session's messages in non-decreasing timestamp
// order, capped at limit (0 means no cap).
func (s *SessionStore) ListMessages(ctx context.Context, sessionID string, limit int) ([]*models.Message, error) {
	q := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at_epoch ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []Message
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*models.Message, len(rows))
	for i := range rows {
		out[i] = toModelMessage(&rows[i])
	}
	return out, nil
}

// RecentMessages returns the newest limit messages, oldest first.
func (s *SessionStore) RecentMessages(ctx context.Context, sessionID string, limit int) ([]*models.Message, error) {
	var rows []Message
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at_epoch DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	// Reverse into chronological order.
	out := make([]*models.Message, len(rows))
	for i := range rows {
		out[len(rows)-1-i] = toModelMessage(&rows[i])
	}
	return out, nil
}

func toModelSession(row *Session) *models.Session {
	return &models.Session{
		ID:             row.ID,
		SessionID:      row.SessionID,
		OwnerID:        row.OwnerID,
		Title:          row.Title,
		TableID:        row.TableID,
		IsActive:       row.IsActive,
		CreatedAt:      row.CreatedAt,
		CreatedAtEpoch: row.CreatedAtEpoch,
		UpdatedAt:      row.UpdatedAt,
		UpdatedAtEpoch: row.UpdatedAtEpoch,
	}
}

func toModelMessage(row *Message) *models.Message {
	return &models.Message{
		ID:             row.ID,
		MessageID:      row.MessageID,
		SessionID:      row.SessionID,
		Sender:         models.Sender(row.Sender),
		Text:           row.Text,
		AgentData:      row.AgentData,
		CreatedAt:      row.CreatedAt,
		CreatedAtEpoch: row.CreatedAtEpoch,
	}
}
