// Package datastore implements the dynamic table data store consumed
// by the tool dispatcher. Tables are metadata plus a JSON header list;
// rows are free-form JSON validated against the headers on write.
package datastore

import (
	"context"
	"errors"
	"fmt"

	"github.com/thebtf/tabletalk/pkg/models"
)

// Typed failures returned by Store implementations.
var (
	ErrTableNotFound = errors.New("table not found")
	ErrRowNotFound   = errors.New("row not found")
	ErrInvalidTable  = errors.New("invalid table definition")
	ErrInvalidRow    = errors.New("invalid row data")
)

// Table is the caller-visible view of one dynamic table.
type Table struct {
	ID          int64    `json:"id"`
	OwnerID     string   `json:"owner_id"`
	TableName   string   `json:"table_name"`
	Description string   `json:"description,omitempty"`
	Headers     []string `json:"headers"`
	RowCount    int64    `json:"row_count"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at"`
}

// Row is one table row with its stable identifier.
type Row struct {
	RowID     string         `json:"row_id"`
	Data      models.JSONMap `json:"data"`
	CreatedAt string         `json:"created_at"`
}

// Store is the data store collaborator capability set. Schema and row
// storage format are owned entirely by the implementation.
type Store interface {
	CreateTable(ctx context.Context, ownerID, name, description string, headers []string) (*Table, error)
	ListTables(ctx context.Context, ownerID string) ([]*Table, error)
	GetTable(ctx context.Context, ownerID string, tableID int64) (*Table, []*Row, error)
	UpdateTableMetadata(ctx context.Context, ownerID string, tableID int64, name, description *string) (*Table, error)
	DeleteTable(ctx context.Context, ownerID string, tableID int64) error
	AddColumn(ctx context.Context, tableID int64, header string) (*Table, error)
	DeleteColumn(ctx context.Context, tableID int64, header string) (*Table, error)
	AddRow(ctx context.Context, tableID int64, data map[string]any) (*Row, error)
	UpdateRow(ctx context.Context, tableID int64, rowID string, data map[string]any) (*Row, error)
	DeleteRow(ctx context.Context, tableID int64, rowID string) error
	BulkAddRows(ctx context.Context, tableID int64, rows []map[string]any) ([]*Row, error)
}

// validateTable checks a table definition before any write.
func validateTable(name string, headers []string) error {
	if name == "" {
		return fmt.Errorf("%w: table name cannot be empty", ErrInvalidTable)
	}
	if len(headers) == 0 {
		return fmt.Errorf("%w: headers must be a non-empty list", ErrInvalidTable)
	}
	seen := make(map[string]bool, len(headers))
	for _, h := range headers {
		if h == "" {
			return fmt.Errorf("%w: headers cannot contain empty strings", ErrInvalidTable)
		}
		if seen[h] {
			return fmt.Errorf("%w: duplicate header %q", ErrInvalidTable, h)
		}
		seen[h] = true
	}
	return nil
}

// validateRow checks that row keys are a subset of the table headers.
// The generated "id" key is always allowed.
func validateRow(data map[string]any, headers []string) error {
	allowed := make(map[string]bool, len(headers)+1)
	allowed["id"] = true
	for _, h := range headers {
		allowed[h] = true
	}
	for k := range data {
		if !allowed[k] {
			return fmt.Errorf("%w: key %q does not match any header", ErrInvalidRow, k)
		}
	}
	return nil
}
