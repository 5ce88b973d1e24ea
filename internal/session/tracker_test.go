package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"gorm.io/gorm/logger"

	"github.com/thebtf/tabletalk/internal/db"
	"github.com/thebtf/tabletalk/pkg/models"
)

type TrackerSuite struct {
	suite.Suite
	store   *db.Store
	tracker *Tracker
}

func (s *TrackerSuite) SetupTest() {
	store, err := db.NewStore(db.Config{
		Path:     filepath.Join(s.T().TempDir(), "test.db"),
		LogLevel: logger.Silent,
	})
	s.Require().NoError(err)
	s.store = store
	s.tracker = NewTracker(db.NewSessionStore(store), 5)
}

func (s *TrackerSuite) TearDownTest() {
	s.Require().NoError(s.store.Close())
}

func TestTrackerSuite(t *testing.T) {
	suite.Run(t, new(TrackerSuite))
}

func snapshotData(intentType models.IntentType, categories []string, description string, hour int) models.JSONMap {
	return models.JSONMap{
		"snapshot": models.ContextSnapshot{
			IntentType:  intentType,
			Categories:  categories,
			Description: description,
			HourOfDay:   hour,
			Confidence:  0.8,
		},
	}
}

func (s *TrackerSuite) TestGetOrCreateSession_CreatesAndReuses() {
	ctx := context.Background()

	first, err := s.tracker.GetOrCreateSession(ctx, "alice", "", "hello")
	s.Require().NoError(err)
	s.True(first.IsActive)
	s.Equal("alice", first.OwnerID)

	// Empty session id reuses the active session.
	second, err := s.tracker.GetOrCreateSession(ctx, "alice", "", "hello again")
	s.Require().NoError(err)
	s.Equal(first.SessionID, second.SessionID)

	// Explicit id resolves the same session.
	third, err := s.tracker.GetOrCreateSession(ctx, "alice", first.SessionID, "")
	s.Require().NoError(err)
	s.Equal(first.SessionID, third.SessionID)
}

func (s *TrackerSuite) TestGetOrCreateSession_WrongOwner() {
	ctx := context.Background()

	sess, err := s.tracker.GetOrCreateSession(ctx, "alice", "", "hello")
	s.Require().NoError(err)

	_, err = s.tracker.GetOrCreateSession(ctx, "bob", sess.SessionID, "")
	s.Require().ErrorIs(err, models.ErrSessionNotFound)
}

func (s *TrackerSuite) TestGetOrCreateSession_UnknownID() {
	_, err := s.tracker.GetOrCreateSession(context.Background(), "alice", "chat_alice_0", "")
	s.Require().ErrorIs(err, models.ErrSessionNotFound)
}

func (s *TrackerSuite) TestAcquireSerializesWriters() {
	ctx := context.Background()
	sess, err := s.tracker.GetOrCreateSession(ctx, "alice", "", "hello")
	s.Require().NoError(err)

	release, err := s.tracker.Acquire(ctx, sess.SessionID)
	s.Require().NoError(err)

	// A second writer times out while the slot is held.
	busyCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = s.tracker.Acquire(busyCtx, sess.SessionID)
	s.Require().ErrorIs(err, models.ErrSessionConflict)

	release()

	release2, err := s.tracker.Acquire(ctx, sess.SessionID)
	s.Require().NoError(err)
	release2()
}

func (s *TrackerSuite) TestAcquireDistinctSessionsIndependent() {
	ctx := context.Background()
	a, err := s.tracker.GetOrCreateSession(ctx, "alice", "", "a")
	s.Require().NoError(err)
	b, err := s.tracker.GetOrCreateSession(ctx, "bob", "", "b")
	s.Require().NoError(err)

	releaseA, err := s.tracker.Acquire(ctx, a.SessionID)
	s.Require().NoError(err)
	defer releaseA()

	releaseB, err := s.tracker.Acquire(ctx, b.SessionID)
	s.Require().NoError(err)
	releaseB()
}

func (s *TrackerSuite) TestWindowAdvancesAndEvicts() {
	ctx := context.Background()
	sess, err := s.tracker.GetOrCreateSession(ctx, "alice", "", "hello")
	s.Require().NoError(err)

	for i := 0; i < 8; i++ {
		_, err := s.tracker.AppendMessage(ctx, sess.SessionID, models.SenderUser, "msg",
			snapshotData(models.IntentAdd, []string{"expenses"}, "", 10))
		s.Require().NoError(err)
	}

	// Window size is 5; the oldest three snapshots were evicted.
	window := s.tracker.Window(ctx, sess.SessionID)
	s.Len(window, 5)
}

func (s *TrackerSuite) TestWindowRebuildsFromStoredMessages() {
	ctx := context.Background()
	sess, err := s.tracker.GetOrCreateSession(ctx, "alice", "", "hello")
	s.Require().NoError(err)

	for i := 0; i < 3; i++ {
		_, err := s.tracker.AppendMessage(ctx, sess.SessionID, models.SenderUser, "msg",
			snapshotData(models.IntentAdd, []string{"expenses"}, "groceries", 9))
		s.Require().NoError(err)
	}
	// Messages without snapshots do not advance the window.
	_, err = s.tracker.AppendMessage(ctx, sess.SessionID, models.SenderAgent, "ok", nil)
	s.Require().NoError(err)

	// A fresh tracker over the same database rebuilds the window lazily.
	fresh := NewTracker(db.NewSessionStore(s.store), 5)
	window := fresh.Window(ctx, sess.SessionID)
	s.Require().Len(window, 3)
	s.Equal(models.IntentAdd, window[0].IntentType)
	s.Equal("groceries", window[0].Description)
}

func (s *TrackerSuite) TestInferDefaults_EmptyHistory() {
	ctx := context.Background()
	sess, err := s.tracker.GetOrCreateSession(ctx, "alice", "", "hello")
	s.Require().NoError(err)

	defaults := s.tracker.InferDefaults(ctx, sess.SessionID)
	s.Empty(defaults)
}

func (s *TrackerSuite) TestInferDefaults_MajorityVote() {
	ctx := context.Background()
	sess, err := s.tracker.GetOrCreateSession(ctx, "alice", "", "hello")
	s.Require().NoError(err)

	for i := 0; i < 3; i++ {
		_, err := s.tracker.AppendMessage(ctx, sess.SessionID, models.SenderUser, "msg",
			snapshotData(models.IntentAdd, []string{"expenses"}, "", 9))
		s.Require().NoError(err)
	}
	_, err = s.tracker.AppendMessage(ctx, sess.SessionID, models.SenderUser, "msg",
		snapshotData(models.IntentAdd, []string{"health"}, "lunch", 10))
	s.Require().NoError(err)

	defaults := s.tracker.InferDefaults(ctx, sess.SessionID)

	s.Require().Contains(defaults, "category")
	s.Equal("expenses", defaults["category"].Value)
	s.Equal(models.SourceHistory, defaults["category"].Source)
	s.InDelta(0.75, defaults["category"].Confidence, 0.001)

	// The most recent description wins.
	s.Require().Contains(defaults, "description")
	s.Equal("lunch", defaults["description"].Value)

	s.Require().Contains(defaults, "time_of_day")
	s.Equal("morning", defaults["time_of_day"].Value)
}

func (s *TrackerSuite) TestTakePending() {
	sess := "chat_alice_1"
	now := time.Now()

	// Nothing pending.
	action, expired := s.tracker.TakePending(sess, now)
	s.Nil(action)
	s.False(expired)

	s.tracker.SetPending(sess, &models.PendingAction{
		SessionID: sess,
		Call:      models.ToolCall{Name: "add-row"},
		CreatedAt: now,
		ExpiresAt: now.Add(10 * time.Minute),
	})

	action, expired = s.tracker.TakePending(sess, now)
	s.Require().NotNil(action)
	s.False(expired)
	s.Equal("add-row", action.Call.Name)

	// Taking is destructive.
	action, _ = s.tracker.TakePending(sess, now)
	s.Nil(action)
}

func (s *TrackerSuite) TestTakePending_ExpiredStillReturned() {
	sess := "chat_alice_2"
	now := time.Now()

	s.tracker.SetPending(sess, &models.PendingAction{
		SessionID: sess,
		Call:      models.ToolCall{Name: "delete-row"},
		CreatedAt: now.Add(-20 * time.Minute),
		ExpiresAt: now.Add(-10 * time.Minute),
	})

	action, expired := s.tracker.TakePending(sess, now)
	s.Require().NotNil(action)
	s.True(expired)
}

func TestTimeOfDay(t *testing.T) {
	tests := []struct {
		hour int
		want string
	}{
		{5, "morning"},
		{11, "morning"},
		{12, "afternoon"},
		{16, "afternoon"},
		{17, "evening"},
		{20, "evening"},
		{21, "night"},
		{3, "night"},
	}
	for _, tt := range tests {
		if got := TimeOfDay(tt.hour); got != tt.want {
			t.Errorf("TimeOfDay(%d) = %q, want %q", tt.hour, got, tt.want)
		}
	}
}
