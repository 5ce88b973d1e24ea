package datastore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"
	"gorm.io/gorm/logger"

	"github.com/thebtf/tabletalk/internal/db"
)

type GormStoreSuite struct {
	suite.Suite
	store *db.Store
	data  *GormStore
	ctx   context.Context
}

func (s *GormStoreSuite) SetupTest() {
	store, err := db.NewStore(db.Config{
		Path:     filepath.Join(s.T().TempDir(), "test.db"),
		LogLevel: logger.Silent,
	})
	s.Require().NoError(err)
	s.store = store
	s.data = NewGormStore(store)
	s.ctx = context.Background()
}

func (s *GormStoreSuite) TearDownTest() {
	s.Require().NoError(s.store.Close())
}

func TestGormStoreSuite(t *testing.T) {
	suite.Run(t, new(GormStoreSuite))
}

func (s *GormStoreSuite) seedTable() *Table {
	table, err := s.data.CreateTable(s.ctx, "alice", "expenses", "spending",
		[]string{"amount", "category", "date"})
	s.Require().NoError(err)
	return table
}

func (s *GormStoreSuite) TestCreateTable() {
	table := s.seedTable()
	s.Equal("expenses", table.TableName)
	s.Equal([]string{"amount", "category", "date"}, table.Headers)
	s.Zero(table.RowCount)
}

func (s *GormStoreSuite) TestCreateTable_Invalid() {
	_, err := s.data.CreateTable(s.ctx, "alice", "", "", []string{"a"})
	s.Require().ErrorIs(err, ErrInvalidTable)

	_, err = s.data.CreateTable(s.ctx, "alice", "t", "", nil)
	s.Require().ErrorIs(err, ErrInvalidTable)

	_, err = s.data.CreateTable(s.ctx, "alice", "t", "", []string{"a", "a"})
	s.Require().ErrorIs(err, ErrInvalidTable)
}

func (s *GormStoreSuite) TestListTablesScopedToOwner() {
	s.seedTable()
	_, err := s.data.CreateTable(s.ctx, "bob", "notes", "", []string{"text"})
	s.Require().NoError(err)

	tables, err := s.data.ListTables(s.ctx, "alice")
	s.Require().NoError(err)
	s.Require().Len(tables, 1)
	s.Equal("expenses", tables[0].TableName)
}

func (s *GormStoreSuite) TestGetTable_OwnershipEnforced() {
	table := s.seedTable()

	_, _, err := s.data.GetTable(s.ctx, "bob", table.ID)
	s.Require().ErrorIs(err, ErrTableNotFound)

	_, _, err = s.data.GetTable(s.ctx, "alice", 999)
	s.Require().ErrorIs(err, ErrTableNotFound)
}

func (s *GormStoreSuite) TestUpdateTableMetadata() {
	table := s.seedTable()

	name := "spending log"
	updated, err := s.data.UpdateTableMetadata(s.ctx, "alice", table.ID, &name, nil)
	s.Require().NoError(err)
	s.Equal("spending log", updated.TableName)
	s.Equal("spending", updated.Description)

	empty := "  "
	_, err = s.data.UpdateTableMetadata(s.ctx, "alice", table.ID, &empty, nil)
	s.Require().ErrorIs(err, ErrInvalidTable)
}

func (s *GormStoreSuite) TestAddRow_GeneratesShortID() {
	table := s.seedTable()

	row, err := s.data.AddRow(s.ctx, table.ID, map[string]any{"amount": "250", "category": "food"})
	s.Require().NoError(err)
	s.Len(row.RowID, 8)
	s.Equal(row.RowID, row.Data["id"])
	s.Equal("250", row.Data["amount"])
}

func (s *GormStoreSuite) TestAddRow_RejectsUnknownKeys() {
	table := s.seedTable()

	_, err := s.data.AddRow(s.ctx, table.ID, map[string]any{"nope": "x"})
	s.Require().ErrorIs(err, ErrInvalidRow)

	_, err = s.data.AddRow(s.ctx, table.ID, map[string]any{})
	s.Require().ErrorIs(err, ErrInvalidRow)
}

func (s *GormStoreSuite) TestUpdateRow_MergesAndKeepsIdentity() {
	table := s.seedTable()
	row, err := s.data.AddRow(s.ctx, table.ID, map[string]any{"amount": "250", "category": "food"})
	s.Require().NoError(err)

	updated, err := s.data.UpdateRow(s.ctx, table.ID, row.RowID, map[string]any{
		"amount": "300",
		"id":     "hijacked",
	})
	s.Require().NoError(err)
	s.Equal("300", updated.Data["amount"])
	s.Equal("food", updated.Data["category"])
	s.Equal(row.RowID, updated.Data["id"])

	_, err = s.data.UpdateRow(s.ctx, table.ID, "missing", map[string]any{"amount": "1"})
	s.Require().ErrorIs(err, ErrRowNotFound)
}

func (s *GormStoreSuite) TestDeleteRow() {
	table := s.seedTable()
	row, err := s.data.AddRow(s.ctx, table.ID, map[string]any{"amount": "10"})
	s.Require().NoError(err)

	s.Require().NoError(s.data.DeleteRow(s.ctx, table.ID, row.RowID))
	s.Require().ErrorIs(s.data.DeleteRow(s.ctx, table.ID, row.RowID), ErrRowNotFound)
}

func (s *GormStoreSuite) TestAddAndDeleteColumn() {
	table := s.seedTable()
	row, err := s.data.AddRow(s.ctx, table.ID, map[string]any{"amount": "10", "category": "food"})
	s.Require().NoError(err)

	updated, err := s.data.AddColumn(s.ctx, table.ID, "note")
	s.Require().NoError(err)
	s.Contains(updated.Headers, "note")

	_, err = s.data.AddColumn(s.ctx, table.ID, "note")
	s.Require().ErrorIs(err, ErrInvalidTable)

	// Deleting a column strips the key from existing rows.
	updated, err = s.data.DeleteColumn(s.ctx, table.ID, "category")
	s.Require().NoError(err)
	s.NotContains(updated.Headers, "category")

	_, rows, err := s.data.GetTable(s.ctx, "alice", table.ID)
	s.Require().NoError(err)
	s.Require().Len(rows, 1)
	s.Equal(row.RowID, rows[0].RowID)
	s.NotContains(rows[0].Data, "category")
}

func (s *GormStoreSuite) TestDeleteColumn_RefusesLastColumn() {
	table, err := s.data.CreateTable(s.ctx, "alice", "single", "", []string{"only"})
	s.Require().NoError(err)

	_, err = s.data.DeleteColumn(s.ctx, table.ID, "only")
	s.Require().ErrorIs(err, ErrInvalidTable)

	_, err = s.data.DeleteColumn(s.ctx, table.ID, "missing")
	s.Require().ErrorIs(err, ErrInvalidTable)
}

func (s *GormStoreSuite) TestBulkAddRows_AllOrNothing() {
	table := s.seedTable()

	_, err := s.data.BulkAddRows(s.ctx, table.ID, []map[string]any{
		{"amount": "1"},
		{"bogus": "x"},
	})
	s.Require().ErrorIs(err, ErrInvalidRow)

	_, rows, err := s.data.GetTable(s.ctx, "alice", table.ID)
	s.Require().NoError(err)
	s.Empty(rows)

	added, err := s.data.BulkAddRows(s.ctx, table.ID, []map[string]any{
		{"amount": "1"},
		{"amount": "2"},
	})
	s.Require().NoError(err)
	s.Len(added, 2)

	reloaded, rows, err := s.data.GetTable(s.ctx, "alice", table.ID)
	s.Require().NoError(err)
	s.Len(rows, 2)
	s.EqualValues(2, reloaded.RowCount)
}

func (s *GormStoreSuite) TestDeleteTable_RemovesRows() {
	table := s.seedTable()
	_, err := s.data.AddRow(s.ctx, table.ID, map[string]any{"amount": "1"})
	s.Require().NoError(err)

	s.Require().NoError(s.data.DeleteTable(s.ctx, "alice", table.ID))

	_, _, err = s.data.GetTable(s.ctx, "alice", table.ID)
	s.Require().ErrorIs(err, ErrTableNotFound)

	// Row lookups against the deleted table fail too.
	_, err = s.data.AddRow(s.ctx, table.ID, map[string]any{"amount": "1"})
	s.Require().ErrorIs(err, ErrTableNotFound)
}
