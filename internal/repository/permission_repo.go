package repository

import (
	"context"
	"time"

	"opsconsole/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PermissionFlags carries a partial update of a matrix cell. Nil fields are left untouched.
type PermissionFlags struct {
	Enabled      *bool
	Configurable *bool
}

// PermissionFilter narrows ListEntries. Zero-valued fields do not filter.
type PermissionFilter struct {
	ProducingRoleID *uuid.UUID
	OperationID     *uuid.UUID
	// ProducerOnly selects rows without receiving role, ReceiversOnly the opposite
	ProducerOnly  bool
	ReceiversOnly bool
}

type PermissionRepository interface {
	Find(ctx context.Context, key model.PermissionKey) (*model.PermissionEntry, error)
	CreateBatch(ctx context.Context, entries []model.PermissionEntry) error
	UpdateFlags(ctx context.Context, id uuid.UUID, flags PermissionFlags) error
	ListEntries(ctx context.Context, filter PermissionFilter) ([]model.PermissionEntry, error)
}

type permissionRepository struct {
	db *gorm.DB
}

func NewPermissionRepository(db *gorm.DB) PermissionRepository {
	return &permissionRepository{db: db}
}

func (r *permissionRepository) Find(ctx context.Context, key model.PermissionKey) (*model.PermissionEntry, error) {
	var entry model.PermissionEntry
	query := GetDB(ctx, r.db).Where("producing_role_id = ? AND operation_id = ?", key.ProducingRoleID, key.OperationID)
	if key.ReceivingRoleID == nil {
		query = query.Where("receiving_role_id IS NULL")
	} else {
		query = query.Where("receiving_role_id = ?", *key.ReceivingRoleID)
	}
	if err := query.First(&entry).Error; err != nil {
		return nil, translate(err)
	}
	return &entry, nil
}

func (r *permissionRepository) CreateBatch(ctx context.Context, entries []model.PermissionEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return translate(GetDB(ctx, r.db).CreateInBatches(entries, 200).Error)
}

func (r *permissionRepository) UpdateFlags(ctx context.Context, id uuid.UUID, flags PermissionFlags) error {
	updates := map[string]interface{}{"updated_at": time.Now()}
	if flags.Enabled != nil {
		updates["enabled"] = *flags.Enabled
	}
	if flags.Configurable != nil {
		updates["configurable"] = *flags.Configurable
	}

	res := GetDB(ctx, r.db).Model(&model.PermissionEntry{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *permissionRepository) ListEntries(ctx context.Context, filter PermissionFilter) ([]model.PermissionEntry, error) {
	query := GetDB(ctx, r.db).Model(&model.PermissionEntry{})
	if filter.ProducingRoleID != nil {
		query = query.Where("producing_role_id = ?", *filter.ProducingRoleID)
	}
	if filter.OperationID != nil {
		query = query.Where("operation_id = ?", *filter.OperationID)
	}
	if filter.ProducerOnly {
		query = query.Where("receiving_role_id IS NULL")
	}
	if filter.ReceiversOnly {
		query = query.Where("receiving_role_id IS NOT NULL")
	}

	var entries []model.PermissionEntry
	if err := query.Order("created_at asc").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
