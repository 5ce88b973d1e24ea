// Package tools exposes the fixed catalog of data operations to the
// model and dispatches emitted tool calls against the data store.
package tools

import "github.com/thebtf/tabletalk/internal/provider"

// Definition describes one catalog entry.
type Definition struct {
	Name        string
	Description string
	Mutating    bool
	Params      []provider.ToolParam
}

// Catalog returns the fixed tool catalog in presentation order. The
// catalog is the only surface the model can reach; anything else fails
// validation as UnsupportedTool.
func Catalog() []Definition {
	return []Definition{
		{
			Name:        "create-table",
			Description: "Create a new data tracking table with the given column headers.",
			Mutating:    true,
			Params: []provider.ToolParam{
				{Name: "table_name", Type: "string", Description: "Name of the new table", Required: true},
				{Name: "description", Type: "string", Description: "What the table tracks"},
				{Name: "headers", Type: "array", Description: "Column header names", Required: true},
			},
		},
		{
			Name:        "list-tables",
			Description: "List all tables belonging to the current user.",
		},
		{
			Name:        "get-table",
			Description: "Get one table's metadata and rows for analysis.",
			Params: []provider.ToolParam{
				{Name: "table_id", Type: "integer", Description: "Table identifier", Required: true},
			},
		},
		{
			Name:        "update-table-metadata",
			Description: "Rename a table or update its description.",
			Mutating:    true,
			Params: []provider.ToolParam{
				{Name: "table_id", Type: "integer", Description: "Table identifier", Required: true},
				{Name: "table_name", Type: "string", Description: "New table name"},
				{Name: "description", Type: "string", Description: "New description"},
			},
		},
		{
			Name:        "delete-table",
			Description: "Delete an entire table and all of its rows.",
			Mutating:    true,
			Params: []provider.ToolParam{
				{Name: "table_id", Type: "integer", Description: "Table identifier", Required: true},
			},
		},
		{
			Name:        "add-column",
			Description: "Add a new column header to a table.",
			Mutating:    true,
			Params: []provider.ToolParam{
				{Name: "table_id", Type: "integer", Description: "Table identifier", Required: true},
				{Name: "header", Type: "string", Description: "New column header", Required: true},
			},
		},
		{
			Name:        "delete-column",
			Description: "Remove a column header from a table, stripping the key from every row.",
			Mutating:    true,
			Params: []provider.ToolParam{
				{Name: "table_id", Type: "integer", Description: "Table identifier", Required: true},
				{Name: "header", Type: "string", Description: "Column header to remove", Required: true},
			},
		},
		{
			Name:        "add-row",
			Description: "Add one data entry to a table. Keys must match the table headers.",
			Mutating:    true,
			Params: []provider.ToolParam{
				{Name: "table_id", Type: "integer", Description: "Table identifier", Required: true},
				{Name: "row", Type: "object", Description: "Row data keyed by header", Required: true},
			},
		},
		{
			Name:        "update-row",
			Description: "Merge new values into an existing row.",
			Mutating:    true,
			Params: []provider.ToolParam{
				{Name: "table_id", Type: "integer", Description: "Table identifier", Required: true},
				{Name: "row_id", Type: "string", Description: "Stable row identifier", Required: true},
				{Name: "row", Type: "object", Description: "Values to merge", Required: true},
			},
		},
		{
			Name:        "delete-row",
			Description: "Delete one row from a table.",
			Mutating:    true,
			Params: []provider.ToolParam{
				{Name: "table_id", Type: "integer", Description: "Table identifier", Required: true},
				{Name: "row_id", Type: "string", Description: "Stable row identifier", Required: true},
			},
		},
		{
			Name:        "bulk-add-rows",
			Description: "Add several rows to a table in one transaction.",
			Mutating:    true,
			Params: []provider.ToolParam{
				{Name: "table_id", Type: "integer", Description: "Table identifier", Required: true},
				{Name: "rows", Type: "array", Description: "List of row objects keyed by header", Required: true},
			},
		},
	}
}

// Schemas converts the catalog into the provider tool schema shape.
func Schemas() []provider.ToolSchema {
	defs := Catalog()
	out := make([]provider.ToolSchema, len(defs))
	for i, def := range defs {
		out[i] = provider.ToolSchema{
			Name:        def.Name,
			Description: def.Description,
			Params:      def.Params,
		}
	}
	return out
}
