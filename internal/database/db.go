package database

import (
	"fmt"

	"opsconsole/internal/model"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Models lists every table owned by the console, in migration order
var Models = []interface{}{
	&model.Role{},
	&model.Operation{},
	&model.Template{},
	&model.PermissionEntry{},
	&model.AuditLog{},
}

// NewConnection initializes a new connection pool using GORM
func NewConnection(dsn string, log *zap.Logger) (*gorm.DB, error) {
	db, err := Open(postgres.Open(dsn))
	if err != nil {
		return nil, err
	}

	if err := Migrate(db, log); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate auto-migrates the core models. The matrix relies on the unique indexes it
// creates, so a failure is returned rather than logged.
func Migrate(db *gorm.DB, log *zap.Logger) error {
	if err := db.AutoMigrate(Models...); err != nil {
		log.Error("failed to auto-migrate models", zap.Error(err))
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	log.Info("database schema migrated", zap.Int("tables", len(Models)))
	return nil
}

// Open wraps gorm.Open with the settings every store relies on.
// TranslateError lets repositories see gorm.ErrDuplicatedKey instead of driver specific errors.
func Open(dialector gorm.Dialector) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}
