// Package agent runs the orchestration loop: intent analysis, prompt
// assembly, the provider round trips, tool dispatch, and the
// confirmation gate for low-confidence mutations.
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/tabletalk/internal/config"
	"github.com/thebtf/tabletalk/internal/intent"
	"github.com/thebtf/tabletalk/internal/provider"
	"github.com/thebtf/tabletalk/internal/session"
	"github.com/thebtf/tabletalk/internal/tools"
	"github.com/thebtf/tabletalk/pkg/models"
)

// Broadcaster receives a change event after each committed mutation.
type Broadcaster interface {
	Broadcast(event models.ChangeEvent)
}

// Client ties the collaborators together and drives one query at a
// time per session from analysis to final response.
type Client struct {
	cfg         *config.Config
	provider    provider.Provider
	analyzer    *intent.Analyzer
	tracker     *session.Tracker
	dispatcher  *tools.Dispatcher
	broadcaster Broadcaster

	now func() time.Time
}

// NewClient creates the orchestration client. broadcaster may be nil
// when no live listeners exist.
func NewClient(cfg *config.Config, p provider.Provider, analyzer *intent.Analyzer, tracker *session.Tracker, dispatcher *tools.Dispatcher, broadcaster Broadcaster) *Client {
	return &Client{
		cfg:         cfg,
		provider:    p,
		analyzer:    analyzer,
		tracker:     tracker,
		dispatcher:  dispatcher,
		broadcaster: broadcaster,
		now:         time.Now,
	}
}

// QueryInput is one user turn. SessionID is optional; empty means
// "the owner's active session, or a new one".
type QueryInput struct {
	OwnerID   string
	SessionID string
	Text      string
}

// ProcessQuery runs one full orchestration turn. The returned result
// always lists every tool call committed during the run, even when the
// run itself ended in failure or timeout.
func (c *Client) ProcessQuery(ctx context.Context, in QueryInput) (*models.RunResult, error) {
	runID := uuid.NewString()

	sess, err := c.tracker.GetOrCreateSession(ctx, in.OwnerID, in.SessionID, deriveTitle(in.Text))
	if err != nil {
		return nil, err
	}

	acquireCtx, cancel := context.WithTimeout(ctx, time.Duration(c.cfg.TimeoutSeconds)*time.Second)
	defer cancel()
	release, err := c.tracker.Acquire(acquireCtx, sess.SessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	result := &models.RunResult{SessionID: sess.SessionID, RunID: runID}

	// A pending action, if any, is consumed first. Anything but a clear
	// yes or no discards it and processes the query normally.
	if pending, expired := c.tracker.TakePending(sess.SessionID, c.now()); pending != nil {
		if expired {
			c.dispatcher.RecordExpired(ctx, pending.RunID, sess.SessionID, pending.Call)
			log.Info().Str("sessionId", sess.SessionID).Str("tool", pending.Call.Name).Msg("Pending action expired")
		} else {
			switch classifyReply(in.Text) {
			case replyAffirmative:
				return c.resumePending(ctx, sess, runID, in, pending)
			case replyNegative:
				c.dispatcher.RecordExpired(ctx, pending.RunID, sess.SessionID, pending.Call)
				c.appendUserMessage(ctx, sess.SessionID, in.Text, nil)
				reply := fmt.Sprintf("Okay, I won't run %s.", pending.Call.Name)
				c.appendAgentMessage(ctx, sess.SessionID, runID, reply, models.RunAborted)
				result.Response = reply
				result.Status = models.RunAborted
				return result, nil
			default:
				c.dispatcher.RecordExpired(ctx, pending.RunID, sess.SessionID, pending.Call)
			}
		}
	}

	analyzed := c.analyzer.ExtractIntent(in.Text)
	defaults := c.tracker.InferDefaults(ctx, sess.SessionID)
	analyzed.Provenance = buildProvenance(analyzed, defaults)
	result.Intent = analyzed

	// History is fetched before the new user message lands so the
	// prompt does not carry the query twice.
	recent, err := c.tracker.RecentMessages(ctx, sess.SessionID, c.cfg.RecentHistoryWindow)
	if err != nil {
		log.Warn().Err(err).Str("sessionId", sess.SessionID).Msg("Failed to load recent history")
	}
	history := buildHistory(recent, c.cfg.PromptTokenBudget)

	snapshot := analyzed.Snapshot(c.now().Hour(), analyzed.Entities["description"])
	c.appendUserMessage(ctx, sess.SessionID, in.Text, models.JSONMap{
		"intent":   analyzed,
		"snapshot": snapshot,
	})

	prompt := buildPrompt(in.OwnerID, in.Text, analyzed, defaults)
	schemas := tools.Schemas()

	for iteration := 0; iteration < c.cfg.MaxOrchestrationIterations; iteration++ {
		resp, genErr := c.generate(ctx, provider.Request{
			System:  systemPrompt,
			Prompt:  prompt,
			History: history,
			Tools:   schemas,
		})
		if genErr != nil {
			return c.finishWithError(ctx, sess.SessionID, runID, result, genErr)
		}

		if len(resp.ToolCalls) == 0 {
			result.Response = cleanResponse(resp.Text)
			result.Status = models.RunCompleted
			c.appendAgentMessage(ctx, sess.SessionID, runID, result.Response, result.Status)
			return result, nil
		}

		var iterationResults []models.ToolResult
		for _, call := range resp.ToolCalls {
			if gate := c.gateCall(analyzed, call); gate != nil {
				c.dispatcher.RecordDeferred(ctx, runID, sess.SessionID, call)
				c.tracker.SetPending(sess.SessionID, &models.PendingAction{
					SessionID: sess.SessionID,
					RunID:     runID,
					Call:      call,
					Inferred:  gate,
					CreatedAt: c.now(),
					ExpiresAt: c.now().Add(time.Duration(c.cfg.PendingActionTTLMinutes) * time.Minute),
				})
				result.Response = confirmationQuestion(call, gate)
				result.Status = models.RunAwaitingConfirmation
				c.appendAgentMessage(ctx, sess.SessionID, runID, result.Response, result.Status)
				return result, nil
			}

			toolResult, event := c.dispatcher.Execute(ctx, runID, sess.SessionID, in.OwnerID, call)
			result.ToolResults = append(result.ToolResults, toolResult)
			iterationResults = append(iterationResults, toolResult)

			if !toolResult.Success && isValidationFailure(toolResult) {
				result.Response = fmt.Sprintf("I couldn't complete that request: %s", toolResult.Error)
				result.Status = models.RunFailed
				c.appendAgentMessage(ctx, sess.SessionID, runID, result.Response, result.Status)
				return result, errors.New(toolResult.Error)
			}
			if event != nil {
				c.broadcast(*event)
			}
		}

		// Fold this round's results and let the model continue. The
		// first prompt already moved into history on the provider side.
		history = append(history,
			provider.Message{Role: provider.RoleUser, Content: prompt},
			provider.Message{Role: provider.RoleAssistant, Content: resp.Text})
		prompt = buildFollowUp(iterationResults)
	}

	result.Response = "I couldn't finish this request within the allowed number of steps."
	result.Status = models.RunFailed
	c.appendAgentMessage(ctx, sess.SessionID, runID, result.Response, result.Status)
	return result, models.ErrOrchestrationLimit
}

// resumePending executes a confirmed pending action and finishes the
// run without another provider round trip.
func (c *Client) resumePending(ctx context.Context, sess *models.Session, runID string, in QueryInput, pending *models.PendingAction) (*models.RunResult, error) {
	result := &models.RunResult{SessionID: sess.SessionID, RunID: runID}
	c.appendUserMessage(ctx, sess.SessionID, in.Text, nil)

	toolResult, event := c.dispatcher.Execute(ctx, pending.RunID, sess.SessionID, in.OwnerID, pending.Call)
	result.ToolResults = append(result.ToolResults, toolResult)

	if !toolResult.Success {
		result.Response = fmt.Sprintf("The confirmed action failed: %s", toolResult.Error)
		result.Status = models.RunFailed
		c.appendAgentMessage(ctx, sess.SessionID, runID, result.Response, result.Status)
		return result, errors.New(toolResult.Error)
	}
	if event != nil {
		c.broadcast(*event)
	}

	result.Response = fmt.Sprintf("Done, %s completed.", pending.Call.Name)
	result.Status = models.RunCompleted
	c.appendAgentMessage(ctx, sess.SessionID, runID, result.Response, result.Status)
	return result, nil
}

// gateCall returns the inferred low-confidence fields that require
// confirmation before the call may run, or nil when it may proceed.
func (c *Client) gateCall(analyzed models.Intent, call models.ToolCall) []models.FieldProvenance {
	if !c.dispatcher.IsMutating(call.Name) {
		return nil
	}
	return lowConfidenceFields(analyzed.Provenance, c.cfg.ConfirmationConfidenceThreshold)
}

// generate runs one provider round trip under the configured timeout.
func (c *Client) generate(ctx context.Context, req provider.Request) (*provider.Response, error) {
	genCtx, cancel := context.WithTimeout(ctx, time.Duration(c.cfg.TimeoutSeconds)*time.Second)
	defer cancel()
	return c.provider.Generate(genCtx, req)
}

// finishWithError maps a provider failure to the terminal run status:
// deadline expiry becomes a timeout, anything else a failure. Committed
// tool results stay on the result either way.
func (c *Client) finishWithError(ctx context.Context, sessionID, runID string, result *models.RunResult, err error) (*models.RunResult, error) {
	if errors.Is(err, context.DeadlineExceeded) {
		result.Status = models.RunTimeout
		result.Response = "The request timed out before I could answer."
	} else {
		result.Status = models.RunFailed
		result.Response = "I hit an error talking to the language model."
	}
	log.Error().Err(err).Str("runId", runID).Str("status", string(result.Status)).Msg("Run terminated on provider error")
	c.appendAgentMessage(ctx, sessionID, runID, result.Response, result.Status)
	return result, err
}

func (c *Client) appendUserMessage(ctx context.Context, sessionID, text string, agentData models.JSONMap) {
	if _, err := c.tracker.AppendMessage(ctx, sessionID, models.SenderUser, text, agentData); err != nil {
		log.Warn().Err(err).Str("sessionId", sessionID).Msg("Failed to persist user message")
	}
}

func (c *Client) appendAgentMessage(ctx context.Context, sessionID, runID, text string, status models.RunStatus) {
	data := models.JSONMap{"run_id": runID, "status": string(status)}
	if _, err := c.tracker.AppendMessage(ctx, sessionID, models.SenderAgent, text, data); err != nil {
		log.Warn().Err(err).Str("sessionId", sessionID).Msg("Failed to persist agent message")
	}
}

func (c *Client) broadcast(event models.ChangeEvent) {
	if c.broadcaster != nil {
		c.broadcaster.Broadcast(event)
	}
}

// isValidationFailure reports whether a failed result came from the
// validation layer rather than the data store. Validation failures end
// the run; store failures are folded back for the model to recover.
func isValidationFailure(r models.ToolResult) bool {
	return r.ErrorCode == string(models.CodeUnsupportedTool) ||
		r.ErrorCode == string(models.CodeInvalidArguments)
}

// deriveTitle builds a short session title from the opening query.
func deriveTitle(text string) string {
	const maxTitle = 48
	runes := []rune(text)
	if len(runes) <= maxTitle {
		return text
	}
	return string(runes[:maxTitle])
}
