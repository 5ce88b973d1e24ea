package datastore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/thebtf/tabletalk/internal/db"
	"github.com/thebtf/tabletalk/pkg/models"
)

// GormStore is the GORM-backed Store implementation.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a data store backed by the shared database.
func NewGormStore(store *db.Store) *GormStore {
	return &GormStore{db: store.DB}
}

var _ Store = (*GormStore)(nil)

// CreateTable creates a table with the given headers.
func (s *GormStore) CreateTable(ctx context.Context, ownerID, name, description string, headers []string) (*Table, error) {
	name = strings.TrimSpace(name)
	if err := validateTable(name, headers); err != nil {
		return nil, err
	}
	row := &db.DataTable{
		OwnerID:     ownerID,
		TableName:   name,
		Description: strings.TrimSpace(description),
		Headers:     models.JSONStringArray(headers),
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return toTable(row, 0), nil
}

// ListTables returns all tables belonging to an owner.
func (s *GormStore) ListTables(ctx context.Context, ownerID string) ([]*Table, error) {
	var rows []db.DataTable
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("updated_at_epoch DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]*Table, len(rows))
	for i := range rows {
		var count int64
		if err := s.db.WithContext(ctx).Model(&db.DataRow{}).Where("table_id = ?", rows[i].ID).Count(&count).Error; err != nil {
			return nil, err
		}
		out[i] = toTable(&rows[i], count)
	}
	return out, nil
}

// GetTable returns a table and its rows.
func (s *GormStore) GetTable(ctx context.Context, ownerID string, tableID int64) (*Table, []*Row, error) {
	tbl, err := s.ownedTable(ctx, ownerID, tableID)
	if err != nil {
		return nil, nil, err
	}
	var rows []db.DataRow
	err = s.db.WithContext(ctx).
		Where("table_id = ?", tableID).
		Order("created_at_epoch ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, nil, err
	}
	out := make([]*Row, len(rows))
	for i := range rows {
		out[i] = toRow(&rows[i])
	}
	return toTable(tbl, int64(len(rows))), out, nil
}

// UpdateTableMetadata updates table name and/or description.
func (s *GormStore) UpdateTableMetadata(ctx context.Context, ownerID string, tableID int64, name, description *string) (*Table, error) {
	tbl, err := s.ownedTable(ctx, ownerID, tableID)
	if err != nil {
		return nil, err
	}
	updates := touchUpdates()
	if name != nil {
		trimmed := strings.TrimSpace(*name)
		if trimmed == "" {
			return nil, fmt.Errorf("%w: table name cannot be empty", ErrInvalidTable)
		}
		updates["table_name"] = trimmed
	}
	if description != nil {
		updates["description"] = strings.TrimSpace(*description)
	}
	if err := s.db.WithContext(ctx).Model(tbl).Updates(updates).Error; err != nil {
		return nil, err
	}
	return s.reload(ctx, tableID)
}

// DeleteTable deletes a table and all of its rows.
func (s *GormStore) DeleteTable(ctx context.Context, ownerID string, tableID int64) error {
	tbl, err := s.ownedTable(ctx, ownerID, tableID)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("table_id = ?", tbl.ID).Delete(&db.DataRow{}).Error; err != nil {
			return err
		}
		return tx.Delete(tbl).Error
	})
}

// AddColumn appends a header to the table schema.
func (s *GormStore) AddColumn(ctx context.Context, tableID int64, header string) (*Table, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, fmt.Errorf("%w: header cannot be empty", ErrInvalidTable)
	}
	tbl, err := s.anyTable(ctx, tableID)
	if err != nil {
		return nil, err
	}
	for _, h := range tbl.Headers {
		if h == header {
			return nil, fmt.Errorf("%w: duplicate header %q", ErrInvalidTable, header)
		}
	}
	headers := append(models.JSONStringArray{}, tbl.Headers...)
	headers = append(headers, header)
	updates := touchUpdates()
	updates["headers"] = headers
	if err := s.db.WithContext(ctx).Model(tbl).Updates(updates).Error; err != nil {
		return nil, err
	}
	return s.reload(ctx, tableID)
}

// DeleteColumn removes a header from the schema and strips the key from
// every row.
func (s *GormStore) DeleteColumn(ctx context.Context, tableID int64, header string) (*Table, error) {
	tbl, err := s.anyTable(ctx, tableID)
	if err != nil {
		return nil, err
	}
	kept := make(models.JSONStringArray, 0, len(tbl.Headers))
	found := false
	for _, h := range tbl.Headers {
		if h == header {
			found = true
			continue
		}
		kept = append(kept, h)
	}
	if !found {
		return nil, fmt.Errorf("%w: no header %q", ErrInvalidTable, header)
	}
	if len(kept) == 0 {
		return nil, fmt.Errorf("%w: cannot delete the last column", ErrInvalidTable)
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := touchUpdates()
		updates["headers"] = kept
		if err := tx.Model(tbl).Updates(updates).Error; err != nil {
			return err
		}
		var rows []db.DataRow
		if err := tx.Where("table_id = ?", tableID).Find(&rows).Error; err != nil {
			return err
		}
		for i := range rows {
			if _, ok := rows[i].Data[header]; !ok {
				continue
			}
			delete(rows[i].Data, header)
			if err := tx.Model(&rows[i]).Update("data", rows[i].Data).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.reload(ctx, tableID)
}

// AddRow inserts one row. A short uuid is assigned when the row carries
// no "id" key.
func (s *GormStore) AddRow(ctx context.Context, tableID int64, data map[string]any) (*Row, error) {
	tbl, err := s.anyTable(ctx, tableID)
	if err != nil {
		return nil, err
	}
	row, err := buildRow(tableID, data, tbl.Headers)
	if err != nil {
		return nil, err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(row).Error; err != nil {
			return err
		}
		return tx.Model(tbl).Updates(touchUpdates()).Error
	})
	if err != nil {
		return nil, err
	}
	return toRow(row), nil
}

// UpdateRow merges new data into an existing row.
func (s *GormStore) UpdateRow(ctx context.Context, tableID int64, rowID string, data map[string]any) (*Row, error) {
	tbl, err := s.anyTable(ctx, tableID)
	if err != nil {
		return nil, err
	}
	if err := validateRow(data, tbl.Headers); err != nil {
		return nil, err
	}
	var row db.DataRow
	err = s.db.WithContext(ctx).
		Where("table_id = ? AND row_id = ?", tableID, rowID).
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, ErrRowNotFound
	}
	if err != nil {
		return nil, err
	}
	if row.Data == nil {
		row.Data = models.JSONMap{}
	}
	for k, v := range data {
		if k == "id" {
			continue // row identity is immutable
		}
		row.Data[k] = v
	}
	if err := s.db.WithContext(ctx).Model(&row).Update("data", row.Data).Error; err != nil {
		return nil, err
	}
	return toRow(&row), nil
}

// DeleteRow removes one row by its stable id.
func (s *GormStore) DeleteRow(ctx context.Context, tableID int64, rowID string) error {
	if _, err := s.anyTable(ctx, tableID); err != nil {
		return err
	}
	res := s.db.WithContext(ctx).
		Where("table_id = ? AND row_id = ?", tableID, rowID).
		Delete(&db.DataRow{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRowNotFound
	}
	return nil
}

// BulkAddRows inserts several rows in one transaction. All-or-nothing:
// a single invalid row rejects the whole batch.
func (s *GormStore) BulkAddRows(ctx context.Context, tableID int64, rows []map[string]any) ([]*Row, error) {
	tbl, err := s.anyTable(ctx, tableID)
	if err != nil {
		return nil, err
	}
	built := make([]*db.DataRow, 0, len(rows))
	for _, data := range rows {
		row, err := buildRow(tableID, data, tbl.Headers)
		if err != nil {
			return nil, err
		}
		built = append(built, row)
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, row := range built {
			if err := tx.Create(row).Error; err != nil {
				return err
			}
		}
		return tx.Model(tbl).Updates(touchUpdates()).Error
	})
	if err != nil {
		return nil, err
	}
	out := make([]*Row, len(built))
	for i := range built {
		out[i] = toRow(built[i])
	}
	return out, nil
}

func (s *GormStore) ownedTable(ctx context.Context, ownerID string, tableID int64) (*db.DataTable, error) {
	var row db.DataTable
	err := s.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", tableID, ownerID).
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, ErrTableNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *GormStore) anyTable(ctx context.Context, tableID int64) (*db.DataTable, error) {
	var row db.DataTable
	err := s.db.WithContext(ctx).First(&row, tableID).Error
	if err == gorm.ErrRecordNotFound {
		return nil, ErrTableNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *GormStore) reload(ctx context.Context, tableID int64) (*Table, error) {
	tbl, err := s.anyTable(ctx, tableID)
	if err != nil {
		return nil, err
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&db.DataRow{}).Where("table_id = ?", tableID).Count(&count).Error; err != nil {
		return nil, err
	}
	return toTable(tbl, count), nil
}

func buildRow(tableID int64, data map[string]any, headers []string) (*db.DataRow, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: row data cannot be empty", ErrInvalidRow)
	}
	if err := validateRow(data, headers); err != nil {
		return nil, err
	}
	payload := models.JSONMap{}
	for k, v := range data {
		payload[k] = v
	}
	rowID, _ := payload["id"].(string)
	if rowID == "" {
		rowID = uuid.NewString()[:8]
		payload["id"] = rowID
	}
	return &db.DataRow{TableID: tableID, RowID: rowID, Data: payload}, nil
}

func touchUpdates() map[string]any {
	now := time.Now()
	return map[string]any{
		"updated_at":       now.Format(time.RFC3339),
		"updated_at_epoch": now.UnixMilli(),
	}
}

func toTable(row *db.DataTable, rowCount int64) *Table {
	return &Table{
		ID:          row.ID,
		OwnerID:     row.OwnerID,
		TableName:   row.TableName,
		Description: row.Description,
		Headers:     append([]string{}, row.Headers...),
		RowCount:    rowCount,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
}

func toRow(row *db.DataRow) *Row {
	return &Row{
		RowID:     row.RowID,
		Data:      row.Data,
		CreatedAt: row.CreatedAt,
	}
}
