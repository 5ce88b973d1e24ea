package models

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the core.
var (
	// ErrSessionConflict indicates a concurrent mutation attempt on one session.
	ErrSessionConflict = errors.New("session busy with another run")

	// ErrOrchestrationLimit indicates the analyze/model/execute cycle exceeded
	// the configured maximum iteration count.
	ErrOrchestrationLimit = errors.New("orchestration iteration limit exceeded")

	// ErrSessionNotFound indicates the referenced session does not exist.
	ErrSessionNotFound = errors.New("session not found")
)

// ProviderErrorKind classifies provider failures for retry policy.
type ProviderErrorKind string

const (
	ProviderTransient   ProviderErrorKind = "transient"
	ProviderAuth        ProviderErrorKind = "auth"
	ProviderRateLimited ProviderErrorKind = "rate_limited"
	ProviderQuota       ProviderErrorKind = "quota"
)

// ProviderError wraps a failure from a language-model backend. Transient and
// rate-limited failures are retried per policy; auth and quota failures are
// surfaced immediately.
type ProviderError struct {
	Kind     ProviderErrorKind
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Retryable reports whether the failure qualifies for retry.
func (e *ProviderError) Retryable() bool {
	return e.Kind == ProviderTransient || e.Kind == ProviderRateLimited
}

// ToolErrorCode classifies dispatcher failures.
type ToolErrorCode string

const (
	CodeUnsupportedTool  ToolErrorCode = "UnsupportedTool"
	CodeInvalidArguments ToolErrorCode = "InvalidArguments"
	CodeDataStoreError   ToolErrorCode = "DataStoreError"
)

// ToolError is a validation or execution failure for one tool call.
// UnsupportedTool and InvalidArguments never reach the data store;
// DataStoreError wraps a collaborator failure verbatim, never retried.
type ToolError struct {
	Code ToolErrorCode
	Tool string
	Err  error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s: tool %q: %v", e.Code, e.Tool, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

// NewToolError builds a ToolError with a formatted message.
func NewToolError(code ToolErrorCode, tool, format string, args ...any) *ToolError {
	return &ToolError{Code: code, Tool: tool, Err: fmt.Errorf(format, args...)}
}
