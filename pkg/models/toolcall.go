package models

import "time"

// ToolCall is a single tool invocation emitted by the model.
type ToolCall struct {
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolCallStatus is the execution status recorded in the operation log.
type ToolCallStatus string

const (
	ToolCallValidated ToolCallStatus = "validated"
	ToolCallExecuted  ToolCallStatus = "executed"
	ToolCallFailed    ToolCallStatus = "failed"
	ToolCallDeferred  ToolCallStatus = "deferred" // held for confirmation
	ToolCallExpired   ToolCallStatus = "expired"  // pending action abandoned
)

// ToolResult is the standard envelope returned by the dispatcher.
type ToolResult struct {
	Tool      string        `json:"tool"`
	Success   bool          `json:"success"`
	Data      any           `json:"data,omitempty"`
	Error     string        `json:"error,omitempty"`
	ErrorCode string        `json:"error_code,omitempty"`
	Latency   time.Duration `json:"latency"`
}

// ChangeEvent is emitted to the broadcast collaborator after each
// committed mutating tool call.
type ChangeEvent struct {
	TableID   int64  `json:"table_id"`
	Operation string `json:"operation"`
	RowID     string `json:"row_id,omitempty"`
	Actor     string `json:"actor"`
}

// PendingAction is a deferred mutating tool call awaiting explicit user
// confirmation. At most one exists per session at a time.
type PendingAction struct {
	SessionID string            `json:"session_id"`
	RunID     string            `json:"run_id"`
	Call      ToolCall          `json:"call"`
	Inferred  []FieldProvenance `json:"inferred"`
	CreatedAt time.Time         `json:"created_at"`
	ExpiresAt time.Time         `json:"expires_at"`
}

// Expired reports whether the pending action passed its abandonment deadline.
func (p *PendingAction) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// RunStatus is the terminal status of one orchestration run.
type RunStatus string

const (
	RunCompleted            RunStatus = "completed"
	RunAwaitingConfirmation RunStatus = "awaiting_confirmation"
	RunAborted              RunStatus = "aborted"
	RunTimeout              RunStatus = "timeout"
	RunFailed               RunStatus = "failed"
)

// RunResult is the caller-visible outcome of process_query. ToolResults
// lists everything committed during the run, even when the run itself
// terminated with a failure.
type RunResult struct {
	SessionID   string       `json:"session_id"`
	RunID       string       `json:"run_id"`
	Response    string       `json:"response"`
	Intent      Intent       `json:"intent"`
	ToolResults []ToolResult `json:"tool_results,omitempty"`
	Status      RunStatus    `json:"status"`
}
