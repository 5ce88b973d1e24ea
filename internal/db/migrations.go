package db

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// runMigrations runs all database migrations using gormigrate.
func runMigrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		// Migration 001: Conversation tables (Session, Message)
		{
			ID: "001_conversation_tables",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&Session{}); err != nil {
					return err
				}
				return tx.AutoMigrate(&Message{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("sessions", "messages")
			},
		},

		// Migration 002: Dynamic data tables
		{
			ID: "002_data_tables",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&DataTable{}); err != nil {
					return err
				}
				return tx.AutoMigrate(&DataRow{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("data_tables", "data_rows")
			},
		},

		// Migration 003: Append-only tool call log
		{
			ID: "003_tool_call_log",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&ToolCallLog{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("tool_call_log")
			},
		},
	})

	return m.Migrate()
}
