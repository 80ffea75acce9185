package repository

import (
	"database/sql"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/jengzang/trackmap/internal/database"
)

func openTestDB(t *testing.T, set string) *sql.DB {
	t.Helper()

	db, err := database.Open(database.Config{Path: filepath.Join(t.TempDir(), "test.db")}, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := database.NewMigrationManager(db, set, zap.NewNop()).RunMigrations(); err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}
	return db
}

func i64(v int64) *int64 { return &v }

func f64(v float64) *float64 { return &v }
