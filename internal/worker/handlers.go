package worker

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/tabletalk/internal/agent"
	"github.com/thebtf/tabletalk/internal/datastore"
	"github.com/thebtf/tabletalk/pkg/models"
)

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if err := s.store.Ping(); err != nil {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      status,
		"version":     s.version,
		"ready":       s.ready.Load(),
		"uptime":      time.Since(s.startTime).String(),
		"sse_clients": s.sseBroadcaster.ClientCount(),
	})
}

type queryRequest struct {
	OwnerID   string `json:"owner_id"`
	SessionID string `json:"session_id,omitempty"`
	Text      string `json:"text"`
}

// handleQuery runs one orchestration turn. Runs that reach a terminal
// status return 200 with that status in the body; only failures before
// the run starts map to HTTP errors.
func (s *Service) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OwnerID == "" || req.Text == "" {
		writeError(w, http.StatusBadRequest, "owner_id and text are required")
		return
	}

	result, err := s.client.ProcessQuery(r.Context(), agent.QueryInput{
		OwnerID:   req.OwnerID,
		SessionID: req.SessionID,
		Text:      req.Text,
	})
	if result != nil {
		if err != nil {
			log.Warn().Err(err).Str("runId", result.RunID).Str("status", string(result.Status)).Msg("Run ended with error")
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	switch {
	case errors.Is(err, models.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrSessionConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		log.Error().Err(err).Msg("Query processing failed")
		writeError(w, http.StatusInternalServerError, "query processing failed")
	}
}

func (s *Service) handleListSessions(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		writeError(w, http.StatusBadRequest, "owner is required")
		return
	}
	activeOnly := r.URL.Query().Get("active") == "true"

	sessions, err := s.sessionStore.ListSessions(r.Context(), owner, activeOnly)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list sessions")
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Service) handleListMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	limit := queryInt(r, "limit", 0)

	if _, err := s.sessionStore.GetSession(r.Context(), sessionID); err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	messages, err := s.sessionStore.ListMessages(r.Context(), sessionID, limit)
	if err != nil {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("Failed to list messages")
		writeError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

func (s *Service) handleSessionOperations(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	limit := queryInt(r, "limit", 100)

	entries, err := s.auditStore.Recent(r.Context(), sessionID, limit)
	if err != nil {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("Failed to read operation log")
		writeError(w, http.StatusInternalServerError, "failed to read operation log")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"operations": entries})
}

func (s *Service) handleRunOperations(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	entries, err := s.auditStore.ForRun(r.Context(), runID)
	if err != nil {
		log.Error().Err(err).Str("runId", runID).Msg("Failed to read operation log")
		writeError(w, http.StatusInternalServerError, "failed to read operation log")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"operations": entries})
}

// handleCloseSession deactivates a session. History is retained.
func (s *Service) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if err := s.sessionStore.CloseSession(r.Context(), sessionID); err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		log.Error().Err(err).Str("sessionId", sessionID).Msg("Failed to close session")
		writeError(w, http.StatusInternalServerError, "failed to close session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"closed": sessionID})
}

func (s *Service) handleListTables(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		writeError(w, http.StatusBadRequest, "owner is required")
		return
	}

	tables, err := s.dataStore.ListTables(r.Context(), owner)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list tables")
		writeError(w, http.StatusInternalServerError, "failed to list tables")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": tables})
}

func (s *Service) handleGetTable(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		writeError(w, http.StatusBadRequest, "owner is required")
		return
	}
	tableID, err := strconv.ParseInt(chi.URLParam(r, "tableID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid table id")
		return
	}

	table, rows, err := s.dataStore.GetTable(r.Context(), owner, tableID)
	if err != nil {
		if errors.Is(err, datastore.ErrTableNotFound) {
			writeError(w, http.StatusNotFound, "table not found")
			return
		}
		log.Error().Err(err).Int64("tableId", tableID).Msg("Failed to get table")
		writeError(w, http.StatusInternalServerError, "failed to get table")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"table": table, "rows": rows})
}

func queryInt(r *http.Request, name string, fallback int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
