package repository

import (
	"context"

	"opsconsole/internal/model"
	"opsconsole/pkg/pagination"

	"gorm.io/gorm"
)

// AuditFilter narrows the trail. Empty fields match everything.
type AuditFilter struct {
	Action   string
	Actor    string
	EntityID string
}

// Matches reports whether entry passes the filter; stores without a query engine use it directly
func (f AuditFilter) Matches(entry model.AuditLog) bool {
	return (f.Action == "" || entry.Action == f.Action) &&
		(f.Actor == "" || entry.Actor == f.Actor) &&
		(f.EntityID == "" || entry.EntityID == f.EntityID)
}

type AuditRepository interface {
	Log(ctx context.Context, entry *model.AuditLog) error
	// List returns one page, newest first, with the filtered total
	List(ctx context.Context, filter AuditFilter, page, limit int) ([]model.AuditLog, int64, error)
}

type auditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Log(ctx context.Context, entry *model.AuditLog) error {
	return GetDB(ctx, r.db).Create(entry).Error
}

func (r *auditRepository) List(ctx context.Context, filter AuditFilter, page, limit int) ([]model.AuditLog, int64, error) {
	query := GetDB(ctx, r.db).Model(&model.AuditLog{})
	if filter.Action != "" {
		query = query.Where("action = ?", filter.Action)
	}
	if filter.Actor != "" {
		query = query.Where("actor = ?", filter.Actor)
	}
	if filter.EntityID != "" {
		query = query.Where("entity_id = ?", filter.EntityID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var logs []model.AuditLog
	p := pagination.New(page, limit)
	if err := query.Order("created_at desc").Offset(p.Offset).Limit(p.Limit).Find(&logs).Error; err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}
