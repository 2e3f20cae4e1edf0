package database

import (
	"testing"

	"opsconsole/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
)

func TestMigrate(t *testing.T) {
	db, err := Open(sqlite.Open("file:" + uuid.NewString() + "?mode=memory&cache=shared"))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, Migrate(db, zaptest.NewLogger(t)))
	assert.True(t, db.Migrator().HasIndex(&model.PermissionEntry{}, "idx_permission_cell"))
	assert.True(t, db.Migrator().HasIndex(&model.PermissionEntry{}, "idx_permission_producer"))

	require.NoError(t, sqlDB.Close())
	assert.Error(t, Migrate(db, zaptest.NewLogger(t)), "a closed database cannot be migrated")
}
