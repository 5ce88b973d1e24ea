package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/tabletalk/internal/datastore"
	"github.com/thebtf/tabletalk/internal/db"
	"github.com/thebtf/tabletalk/pkg/models"
)

// Dispatcher validates and executes tool calls against the data store.
// Every attempted call lands in the append-only operation log,
// including calls that never reach the store.
type Dispatcher struct {
	store datastore.Store
	audit *db.AuditStore
	defs  map[string]Definition
}

// NewDispatcher creates a dispatcher over the data store collaborator.
func NewDispatcher(store datastore.Store, audit *db.AuditStore) *Dispatcher {
	defs := make(map[string]Definition)
	for _, def := range Catalog() {
		defs[def.Name] = def
	}
	return &Dispatcher{store: store, audit: audit, defs: defs}
}

// IsMutating reports whether the named tool mutates the data store.
// Unknown names count as mutating so they can never bypass gating.
func (d *Dispatcher) IsMutating(name string) bool {
	def, ok := d.defs[name]
	if !ok {
		return true
	}
	return def.Mutating
}

// Validate checks the tool name against the catalog and verifies
// required-argument presence and types. It never touches the data
// store regardless of call validity.
func (d *Dispatcher) Validate(call models.ToolCall) error {
	def, ok := d.defs[call.Name]
	if !ok {
		return models.NewToolError(models.CodeUnsupportedTool, call.Name, "not in the tool catalog")
	}
	for _, param := range def.Params {
		value, present := call.Arguments[param.Name]
		if !present {
			if param.Required {
				return models.NewToolError(models.CodeInvalidArguments, call.Name, "missing required argument %q", param.Name)
			}
			continue
		}
		if !typeMatches(param.Type, value) {
			return models.NewToolError(models.CodeInvalidArguments, call.Name, "argument %q must be of type %s", param.Name, param.Type)
		}
	}
	return nil
}

// Execute validates then runs one call, logging the attempt. The
// returned envelope always carries the tool name and latency; the
// change event is non-nil only for committed mutations.
func (d *Dispatcher) Execute(ctx context.Context, runID, sessionID, ownerID string, call models.ToolCall) (models.ToolResult, *models.ChangeEvent) {
	start := time.Now()

	if err := d.Validate(call); err != nil {
		result := failureResult(call.Name, err, time.Since(start))
		d.logAttempt(ctx, runID, sessionID, call, models.ToolCallFailed, nil, result.Error, result.Latency)
		return result, nil
	}

	data, event, err := d.run(ctx, ownerID, call)
	latency := time.Since(start)

	if err != nil {
		wrapped := wrapStoreError(call, err)
		result := failureResult(call.Name, wrapped, latency)
		d.logAttempt(ctx, runID, sessionID, call, models.ToolCallFailed, nil, result.Error, latency)
		return result, nil
	}

	result := models.ToolResult{
		Tool:    call.Name,
		Success: true,
		Data:    data,
		Latency: latency,
	}
	d.logAttempt(ctx, runID, sessionID, call, models.ToolCallExecuted, data, "", latency)
	if event != nil {
		event.Actor = ownerID
	}
	return result, event
}

// RecordDeferred logs a mutating call held back for confirmation.
func (d *Dispatcher) RecordDeferred(ctx context.Context, runID, sessionID string, call models.ToolCall) {
	d.logAttempt(ctx, runID, sessionID, call, models.ToolCallDeferred, nil, "", 0)
}

// RecordExpired logs a pending action that was abandoned.
func (d *Dispatcher) RecordExpired(ctx context.Context, runID, sessionID string, call models.ToolCall) {
	d.logAttempt(ctx, runID, sessionID, call, models.ToolCallExpired, nil, "", 0)
}

// run dispatches to the data store. Arguments were already validated
// for presence and shape.
func (d *Dispatcher) run(ctx context.Context, ownerID string, call models.ToolCall) (any, *models.ChangeEvent, error) {
	args := call.Arguments
	switch call.Name {
	case "create-table":
		table, err := d.store.CreateTable(ctx, ownerID, argString(args, "table_name"), argString(args, "description"), argStringSlice(args, "headers"))
		if err != nil {
			return nil, nil, err
		}
		return table, &models.ChangeEvent{TableID: table.ID, Operation: call.Name}, nil

	case "list-tables":
		tables, err := d.store.ListTables(ctx, ownerID)
		return tables, nil, err

	case "get-table":
		table, rows, err := d.store.GetTable(ctx, ownerID, argInt64(args, "table_id"))
		if err != nil {
			return nil, nil, err
		}
		return map[string]any{"table": table, "rows": rows}, nil, nil

	case "update-table-metadata":
		table, err := d.store.UpdateTableMetadata(ctx, ownerID, argInt64(args, "table_id"),
			argStringPtr(args, "table_name"), argStringPtr(args, "description"))
		if err != nil {
			return nil, nil, err
		}
		return table, &models.ChangeEvent{TableID: table.ID, Operation: call.Name}, nil

	case "delete-table":
		tableID := argInt64(args, "table_id")
		if err := d.store.DeleteTable(ctx, ownerID, tableID); err != nil {
			return nil, nil, err
		}
		return map[string]any{"deleted": tableID}, &models.ChangeEvent{TableID: tableID, Operation: call.Name}, nil

	case "add-column":
		table, err := d.store.AddColumn(ctx, argInt64(args, "table_id"), argString(args, "header"))
		if err != nil {
			return nil, nil, err
		}
		return table, &models.ChangeEvent{TableID: table.ID, Operation: call.Name}, nil

	case "delete-column":
		table, err := d.store.DeleteColumn(ctx, argInt64(args, "table_id"), argString(args, "header"))
		if err != nil {
			return nil, nil, err
		}
		return table, &models.ChangeEvent{TableID: table.ID, Operation: call.Name}, nil

	case "add-row":
		tableID := argInt64(args, "table_id")
		row, err := d.store.AddRow(ctx, tableID, argMap(args, "row"))
		if err != nil {
			return nil, nil, err
		}
		return row, &models.ChangeEvent{TableID: tableID, Operation: call.Name, RowID: row.RowID}, nil

	case "update-row":
		tableID := argInt64(args, "table_id")
		rowID := argString(args, "row_id")
		row, err := d.store.UpdateRow(ctx, tableID, rowID, argMap(args, "row"))
		if err != nil {
			return nil, nil, err
		}
		return row, &models.ChangeEvent{TableID: tableID, Operation: call.Name, RowID: rowID}, nil

	case "delete-row":
		tableID := argInt64(args, "table_id")
		rowID := argString(args, "row_id")
		if err := d.store.DeleteRow(ctx, tableID, rowID); err != nil {
			return nil, nil, err
		}
		return map[string]any{"deleted": rowID}, &models.ChangeEvent{TableID: tableID, Operation: call.Name, RowID: rowID}, nil

	case "bulk-add-rows":
		tableID := argInt64(args, "table_id")
		rows, err := d.store.BulkAddRows(ctx, tableID, argMapSlice(args, "rows"))
		if err != nil {
			return nil, nil, err
		}
		return rows, &models.ChangeEvent{TableID: tableID, Operation: call.Name}, nil
	}

	// Unreachable: Validate rejected unknown names already.
	return nil, nil, models.NewToolError(models.CodeUnsupportedTool, call.Name, "not in the tool catalog")
}

func (d *Dispatcher) logAttempt(ctx context.Context, runID, sessionID string, call models.ToolCall, status models.ToolCallStatus, data any, errMsg string, latency time.Duration) {
	entry := db.Entry{
		RunID:     runID,
		SessionID: sessionID,
		Tool:      call.Name,
		Arguments: models.JSONMap(call.Arguments),
		Status:    status,
		Error:     errMsg,
		Latency:   latency,
	}
	if data != nil {
		entry.Result = toJSONMap(data)
	}
	if err := d.audit.Append(ctx, entry); err != nil {
		log.Error().Err(err).Str("tool", call.Name).Str("runId", runID).Msg("Failed to append operation log entry")
	}
}

func failureResult(tool string, err error, latency time.Duration) models.ToolResult {
	result := models.ToolResult{
		Tool:    tool,
		Success: false,
		Error:   err.Error(),
		Latency: latency,
	}
	var te *models.ToolError
	if errors.As(err, &te) {
		result.ErrorCode = string(te.Code)
	}
	return result
}

// wrapStoreError wraps a data store failure with the offending tool and
// arguments for diagnosis. Store errors are never retried here.
func wrapStoreError(call models.ToolCall, err error) error {
	args, _ := json.Marshal(call.Arguments)
	return &models.ToolError{
		Code: models.CodeDataStoreError,
		Tool: call.Name,
		Err:  fmt.Errorf("args %s: %w", args, err),
	}
}

func toJSONMap(data any) models.JSONMap {
	b, err := json.Marshal(data)
	if err != nil {
		return models.JSONMap{"value": fmt.Sprintf("%v", data)}
	}
	var m models.JSONMap
	if err := json.Unmarshal(b, &m); err != nil {
		// Non-object results (lists, scalars) wrap under a single key.
		var v any
		if json.Unmarshal(b, &v) == nil {
			return models.JSONMap{"value": v}
		}
		return models.JSONMap{"value": string(b)}
	}
	return m
}

// Argument accessors. Model-emitted JSON numbers arrive as float64.

func argString(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func argStringPtr(args map[string]any, key string) *string {
	if s, ok := args[key].(string); ok {
		return &s
	}
	return nil
}

func argInt64(args map[string]any, key string) int64 {
	switch v := args[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	}
	return 0
}

func argStringSlice(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		if typed, ok := args[key].([]string); ok {
			return typed
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func argMap(args map[string]any, key string) map[string]any {
	m, _ := args[key].(map[string]any)
	return m
}

func argMapSlice(args map[string]any, key string) []map[string]any {
	raw, ok := args[key].([]any)
	if !ok {
		if typed, ok := args[key].([]map[string]any); ok {
			return typed
		}
		return nil
	}
	out := make([]map[string]any, 0, len(raw))
	for _, v := range raw {
		if m, ok := v.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// typeMatches checks one argument value against its declared type.
func typeMatches(declared string, value any) bool {
	switch declared {
	case "string":
		_, ok := value.(string)
		return ok
	case "integer", "number":
		switch value.(type) {
		case float64, int, int64, json.Number:
			return true
		}
		return false
	case "object":
		_, ok := value.(map[string]any)
		return ok
	case "array":
		switch value.(type) {
		case []any, []string, []map[string]any:
			return true
		}
		return false
	case "boolean":
		_, ok := value.(bool)
		return ok
	}
	return true
}
