package repository

import (
	"context"

	"opsconsole/internal/model"
	"opsconsole/pkg/pagination"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type OperationRepository interface {
	Create(ctx context.Context, op *model.Operation) error
	Update(ctx context.Context, op *model.Operation) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Operation, error)
	// LockByID reads the operation and holds its row until the surrounding transaction ends
	LockByID(ctx context.Context, id uuid.UUID) (*model.Operation, error)
	ListAll(ctx context.Context) ([]model.Operation, error)
	List(ctx context.Context, page, limit int) ([]model.Operation, int64, error)
	DisableOthersByName(ctx context.Context, name string, exceptID uuid.UUID) (int64, error)
}

type operationRepository struct {
	db *gorm.DB
}

func NewOperationRepository(db *gorm.DB) OperationRepository {
	return &operationRepository{db: db}
}

func (r *operationRepository) Create(ctx context.Context, op *model.Operation) error {
	return translate(GetDB(ctx, r.db).Create(op).Error)
}

func (r *operationRepository) Update(ctx context.Context, op *model.Operation) error {
	return translate(GetDB(ctx, r.db).Save(op).Error)
}

func (r *operationRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Operation, error) {
	var op model.Operation
	if err := GetDB(ctx, r.db).First(&op, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &op, nil
}

func (r *operationRepository) LockByID(ctx context.Context, id uuid.UUID) (*model.Operation, error) {
	var op model.Operation
	err := GetDB(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}).First(&op, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &op, nil
}

func (r *operationRepository) ListAll(ctx context.Context) ([]model.Operation, error) {
	var ops []model.Operation
	if err := GetDB(ctx, r.db).Order("created_at asc, name asc").Find(&ops).Error; err != nil {
		return nil, err
	}
	return ops, nil
}

func (r *operationRepository) List(ctx context.Context, page, limit int) ([]model.Operation, int64, error) {
	var ops []model.Operation
	var total int64

	db := GetDB(ctx, r.db)
	if err := db.Model(&model.Operation{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	p := pagination.New(page, limit)
	if err := db.Order("last_updated desc").Offset(p.Offset).Limit(p.Limit).Find(&ops).Error; err != nil {
		return nil, 0, err
	}

	return ops, total, nil
}

func (r *operationRepository) DisableOthersByName(ctx context.Context, name string, exceptID uuid.UUID) (int64, error) {
	res := GetDB(ctx, r.db).Model(&model.Operation{}).
		Where("name = ? AND id != ? AND status = ?", name, exceptID, model.StatusEnabled).
		Update("status", model.StatusDisabled)
	return res.RowsAffected, res.Error
}
