package repository

import (
	"context"

	"opsconsole/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TemplateRepository interface {
	Create(ctx context.Context, tpl *model.Template) error
	Update(ctx context.Context, tpl *model.Template) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Template, error)
	ListByOperation(ctx context.Context, operationID uuid.UUID) ([]model.Template, error)
	DisableSiblings(ctx context.Context, operationID, exceptID uuid.UUID) (int64, error)
}

type templateRepository struct {
	db *gorm.DB
}

func NewTemplateRepository(db *gorm.DB) TemplateRepository {
	return &templateRepository{db: db}
}

func (r *templateRepository) Create(ctx context.Context, tpl *model.Template) error {
	return translate(GetDB(ctx, r.db).Create(tpl).Error)
}

func (r *templateRepository) Update(ctx context.Context, tpl *model.Template) error {
	return translate(GetDB(ctx, r.db).Save(tpl).Error)
}

func (r *templateRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res := GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.Template{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *templateRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Template, error) {
	var tpl model.Template
	if err := GetDB(ctx, r.db).First(&tpl, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &tpl, nil
}

func (r *templateRepository) ListByOperation(ctx context.Context, operationID uuid.UUID) ([]model.Template, error) {
	var tpls []model.Template
	if err := GetDB(ctx, r.db).Where("operation_id = ?", operationID).Order("created_at asc").Find(&tpls).Error; err != nil {
		return nil, err
	}
	return tpls, nil
}

func (r *templateRepository) DisableSiblings(ctx context.Context, operationID, exceptID uuid.UUID) (int64, error) {
	res := GetDB(ctx, r.db).Model(&model.Template{}).
		Where("operation_id = ? AND id != ? AND status = ?", operationID, exceptID, model.StatusEnabled).
		Update("status", model.StatusDisabled)
	return res.RowsAffected, res.Error
}
