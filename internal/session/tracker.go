// Package session owns per-session conversation state: message
// history, the bounded rolling context window, default inference, and
// the single-writer discipline for one session at a time.
package session

import (
	"context"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/tabletalk/internal/db"
	"github.com/thebtf/tabletalk/pkg/models"
)

// Tracker manages sessions and their rolling context windows. Mutations
// to one session are serialized; distinct sessions proceed independently.
type Tracker struct {
	store      *db.SessionStore
	windowSize int

	mu     sync.Mutex
	states map[string]*state
}

// state is the in-memory slice of one session: a writer slot, the
// rolling window, and the at-most-one pending action.
type state struct {
	writer  chan struct{} // capacity 1, held while a run owns the session
	window  []models.ContextSnapshot
	loaded  bool
	pending *models.PendingAction
}

// NewTracker creates a tracker with the given rolling window size.
func NewTracker(store *db.SessionStore, windowSize int) *Tracker {
	if windowSize <= 0 {
		windowSize = 10
	}
	return &Tracker{
		store:      store,
		windowSize: windowSize,
		states:     make(map[string]*state),
	}
}

// GetOrCreateSession resolves the target session for a query. With a
// session id it must exist and belong to the owner; otherwise the
// owner's most recent active session is reused, or a new one created.
func (t *Tracker) GetOrCreateSession(ctx context.Context, ownerID, sessionID, title string) (*models.Session, error) {
	if sessionID != "" {
		sess, err := t.store.GetSession(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if sess.OwnerID != ownerID {
			return nil, models.ErrSessionNotFound
		}
		return sess, nil
	}

	sess, err := t.store.GetActiveSession(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if sess != nil {
		return sess, nil
	}
	return t.store.CreateSession(ctx, ownerID, title)
}

// Acquire takes the session's writer slot, blocking until it is free or
// ctx expires. Returns models.ErrSessionConflict on timeout. The
// returned release function must be called on every exit path.
func (t *Tracker) Acquire(ctx context.Context, sessionID string) (func(), error) {
	st := t.state(sessionID)
	select {
	case st.writer <- struct{}{}:
		return func() { <-st.writer }, nil
	case <-ctx.Done():
		return nil, models.ErrSessionConflict
	}
}

// AppendMessage persists one message. When the message carries an
// intent snapshot the rolling window advances too.
func (t *Tracker) AppendMessage(ctx context.Context, sessionID string, sender models.Sender, text string, agentData models.JSONMap) (*models.Message, error) {
	msg, err := t.store.AppendMessage(ctx, sessionID, sender, text, agentData)
	if err != nil {
		return nil, err
	}
	if snap, ok := snapshotFromAgentData(agentData); ok {
		t.pushSnapshot(ctx, sessionID, snap)
	}
	return msg, nil
}

// RecentMessages returns the newest limit messages, oldest first.
func (t *Tracker) RecentMessages(ctx context.Context, sessionID string, limit int) ([]*models.Message, error) {
	return t.store.RecentMessages(ctx, sessionID, limit)
}

// InferDefaults majority-votes over the rolling window: most frequent
// category, most recent description, most common time-of-day pattern.
// Empty history yields an empty map.
func (t *Tracker) InferDefaults(ctx context.Context, sessionID string) map[string]models.FieldProvenance {
	window := t.Window(ctx, sessionID)
	defaults := make(map[string]models.FieldProvenance)
	if len(window) == 0 {
		return defaults
	}

	total := float64(len(window))

	if category, votes := majorityCategory(window); category != "" {
		defaults["category"] = models.FieldProvenance{
			Field:      "category",
			Value:      category,
			Source:     models.SourceHistory,
			Confidence: float64(votes) / total,
		}
	}

	// Most recently used description wins outright.
	for i := len(window) - 1; i >= 0; i-- {
		if window[i].Description != "" {
			defaults["description"] = models.FieldProvenance{
				Field:      "description",
				Value:      window[i].Description,
				Source:     models.SourceHistory,
				Confidence: 0.5,
			}
			break
		}
	}

	if tod, votes := majorityTimeOfDay(window); tod != "" {
		defaults["time_of_day"] = models.FieldProvenance{
			Field:      "time_of_day",
			Value:      tod,
			Source:     models.SourceHistory,
			Confidence: float64(votes) / total,
		}
	}

	return defaults
}

// Window returns a copy of the session's rolling context window,
// loading it from stored messages on first access.
func (t *Tracker) Window(ctx context.Context, sessionID string) []models.ContextSnapshot {
	st := t.state(sessionID)

	t.mu.Lock()
	loaded := st.loaded
	t.mu.Unlock()

	if !loaded {
		t.loadWindow(ctx, sessionID, st)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]models.ContextSnapshot, len(st.window))
	copy(out, st.window)
	return out
}

// SetPending installs the session's pending action, replacing any
// previous one.
func (t *Tracker) SetPending(sessionID string, p *models.PendingAction) {
	st := t.state(sessionID)
	t.mu.Lock()
	st.pending = p
	t.mu.Unlock()
}

// TakePending removes and returns the session's pending action. An
// action past its abandonment deadline is still returned, flagged
// expired, so the caller can log the abandonment.
func (t *Tracker) TakePending(sessionID string, now time.Time) (action *models.PendingAction, expired bool) {
	st := t.state(sessionID)
	t.mu.Lock()
	defer t.mu.Unlock()
	p := st.pending
	if p == nil {
		return nil, false
	}
	st.pending = nil
	return p, p.Expired(now)
}

// pushSnapshot appends to the rolling window, evicting oldest entries
// beyond the configured size.
func (t *Tracker) pushSnapshot(ctx context.Context, sessionID string, snap models.ContextSnapshot) {
	st := t.state(sessionID)
	t.mu.Lock()
	loaded := st.loaded
	t.mu.Unlock()
	if !loaded {
		t.loadWindow(ctx, sessionID, st)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	st.window = append(st.window, snap)
	if len(st.window) > t.windowSize {
		st.window = st.window[len(st.window)-t.windowSize:]
	}
}

// loadWindow rebuilds the rolling window from stored message snapshots.
func (t *Tracker) loadWindow(ctx context.Context, sessionID string, st *state) {
	msgs, err := t.store.RecentMessages(ctx, sessionID, t.windowSize*2)
	if err != nil {
		log.Warn().Err(err).Str("sessionId", sessionID).Msg("Failed to load context window")
		return
	}

	var window []models.ContextSnapshot
	for _, msg := range msgs {
		if snap, ok := snapshotFromAgentData(msg.AgentData); ok {
			window = append(window, snap)
		}
	}
	if len(window) > t.windowSize {
		window = window[len(window)-t.windowSize:]
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if !st.loaded {
		st.window = window
		st.loaded = true
	}
}

func (t *Tracker) state(sessionID string) *state {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.states[sessionID]
	if !ok {
		st = &state{writer: make(chan struct{}, 1)}
		t.states[sessionID] = st
	}
	return st
}

// snapshotFromAgentData decodes the "snapshot" key of structured agent
// data back into a context window entry.
func snapshotFromAgentData(agentData models.JSONMap) (models.ContextSnapshot, bool) {
	raw, ok := agentData["snapshot"]
	if !ok {
		return models.ContextSnapshot{}, false
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return models.ContextSnapshot{}, false
	}
	var snap models.ContextSnapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return models.ContextSnapshot{}, false
	}
	return snap, true
}

func majorityCategory(window []models.ContextSnapshot) (string, int) {
	votes := make(map[string]int)
	for _, snap := range window {
		for _, c := range snap.Categories {
			votes[c]++
		}
	}
	return topVote(votes)
}

func majorityTimeOfDay(window []models.ContextSnapshot) (string, int) {
	votes := make(map[string]int)
	for _, snap := range window {
		votes[TimeOfDay(snap.HourOfDay)]++
	}
	return topVote(votes)
}

func topVote(votes map[string]int) (string, int) {
	best := ""
	bestCount := 0
	for k, n := range votes {
		if n > bestCount || (n == bestCount && k < best) {
			best = k
			bestCount = n
		}
	}
	return best, bestCount
}

// TimeOfDay buckets an hour into a coarse daypart label.
func TimeOfDay(hour int) string {
	switch {
	case hour >= 5 && hour < 12:
		return "morning"
	case hour >= 12 && hour < 17:
		return "afternoon"
	case hour >= 17 && hour < 21:
		return "evening"
	default:
		return "night"
	}
}
