package testutil

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/straye-as/pipeline-api/internal/database"
	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewTestDB opens a fresh sqlite database in the test's temp dir and migrates
// every model. Write transactions take the database lock on BEGIN so
// concurrent tests serialize instead of failing with SQLITE_BUSY.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "pipeline.db")
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=10000&_txlock=immediate", path)

	db, err := gorm.Open(sqlite.Open(dsn), database.Config())
	require.NoError(t, err, "failed to open test database")
	require.NoError(t, database.AutoMigrate(db), "failed to migrate test database")

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// Actor returns an actor with a fresh id in the given role
func Actor(role domain.ActorRole) domain.Actor {
	return domain.Actor{
		ID:   uuid.New(),
		Name: "Test " + string(role),
		Role: role,
	}
}

// SeedUser stores a directory entry for the actor with the given role claims
func SeedUser(t *testing.T, db *gorm.DB, actor domain.Actor, roles ...string) *domain.User {
	t.Helper()
	if len(roles) == 0 {
		roles = []string{string(actor.Role)}
	}
	user := &domain.User{
		ID:          actor.ID,
		Email:       fmt.Sprintf("%s@example.com", actor.ID.String()[:8]),
		DisplayName: actor.Name,
		Roles:       roles,
		IsActive:    true,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}
