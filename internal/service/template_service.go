package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"opsconsole/internal/metrics"
	"opsconsole/internal/model"
	"opsconsole/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// --- DTOs ---

type TemplateResponse struct {
	ID           string   `json:"id"`
	OperationID  string   `json:"operation_id"`
	TemplateType string   `json:"template_type"`
	Status       string   `json:"status"`
	Name         string   `json:"name"`
	Subject      string   `json:"subject"`
	Content      string   `json:"content"`
	Variables    []string `json:"variables"`
	Creator      string   `json:"creator"`
	LastUpdated  string   `json:"last_updated"`
}

// --- Interface ---

type TemplateService interface {
	ListTemplates(ctx context.Context, operationID uuid.UUID) ([]TemplateResponse, error)
	GetTemplate(ctx context.Context, id uuid.UUID) (*TemplateResponse, error)
	CreateTemplate(ctx context.Context, operationID uuid.UUID, draft TemplateDraft) (*TemplateResponse, error)
	UpdateTemplate(ctx context.Context, id uuid.UUID, draft TemplateDraft) (*TemplateResponse, error)
	SetTemplateStatus(ctx context.Context, id uuid.UUID, enabled bool) (*TemplateResponse, error)
	DeleteTemplate(ctx context.Context, id uuid.UUID) error
}

type templateService struct {
	base
}

func NewTemplateService(store *repository.Store, log *zap.Logger, opts ...Option) TemplateService {
	return &templateService{base: newBase(store, log, opts)}
}

// --- Implementation ---

func (s *templateService) ListTemplates(ctx context.Context, operationID uuid.UUID) ([]TemplateResponse, error) {
	if _, err := loadOperation(ctx, s.store, operationID); err != nil {
		return nil, err
	}

	tpls, err := s.store.Templates.ListByOperation(ctx, operationID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch templates: %w", err)
	}

	res := make([]TemplateResponse, 0, len(tpls))
	for _, t := range tpls {
		res = append(res, toTemplateResponse(t))
	}
	return res, nil
}

func (s *templateService) GetTemplate(ctx context.Context, id uuid.UUID) (*TemplateResponse, error) {
	tpl, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := toTemplateResponse(*tpl)
	return &resp, nil
}

// CreateTemplate adds a template to an operation. The first template of an operation
// is always enabled; an enabled one disables its siblings.
func (s *templateService) CreateTemplate(ctx context.Context, operationID uuid.UUID, draft TemplateDraft) (*TemplateResponse, error) {
	op, err := loadOperation(ctx, s.store, operationID)
	if err != nil {
		return nil, err
	}
	if errs := ValidateTemplateDraft(draft, *op); len(errs) > 0 {
		metrics.CatalogRejected.WithLabelValues("validation").Inc()
		return nil, errs
	}

	now := s.now()
	tpl := model.Template{
		ID:           uuid.New(),
		OperationID:  op.ID,
		TemplateType: draft.TemplateType,
		Status:       draft.Status,
		Name:         draft.Name,
		Subject:      draft.Subject,
		Content:      draft.Content,
		Variables:    datatypes.NewJSONType(templateVariables(draft)),
		Creator:      ActorFrom(ctx),
		CreatedAt:    now,
		LastUpdated:  now,
	}
	if tpl.Status == "" {
		tpl.Status = model.StatusDisabled
	}

	err = s.store.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		// concurrent creates for one operation queue on its row
		if _, err := s.store.Operations.LockByID(txCtx, op.ID); err != nil {
			return fmt.Errorf("failed to lock operation: %w", err)
		}
		siblings, err := s.store.Templates.ListByOperation(txCtx, op.ID)
		if err != nil {
			return fmt.Errorf("failed to fetch templates: %w", err)
		}
		if len(siblings) == 0 {
			tpl.Status = model.StatusEnabled
		}

		if err := s.store.Templates.Create(txCtx, &tpl); err != nil {
			return fmt.Errorf("failed to create template: %w", err)
		}
		if tpl.Enabled() {
			return s.enforceExclusive(txCtx, tpl)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.writeAuditLog(ctx, model.ActionCreateTemplate, tpl.ID.String(), tpl.Name, map[string]interface{}{
		"operation_id":  op.ID,
		"template_type": tpl.TemplateType,
		"status":        tpl.Status,
	})
	s.publish(tpl)

	resp := toTemplateResponse(tpl)
	return &resp, nil
}

// UpdateTemplate rewrites the editable fields. Status is left alone.
func (s *templateService) UpdateTemplate(ctx context.Context, id uuid.UUID, draft TemplateDraft) (*TemplateResponse, error) {
	tpl, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	op, err := loadOperation(ctx, s.store, tpl.OperationID)
	if err != nil {
		return nil, err
	}

	draft.Status = ""
	if errs := ValidateTemplateDraft(draft, *op); len(errs) > 0 {
		metrics.CatalogRejected.WithLabelValues("validation").Inc()
		return nil, errs
	}

	tpl.TemplateType = draft.TemplateType
	tpl.Name = draft.Name
	tpl.Subject = draft.Subject
	tpl.Content = draft.Content
	tpl.Variables = datatypes.NewJSONType(templateVariables(draft))
	tpl.LastUpdated = s.now()

	if err := s.store.Templates.Update(ctx, tpl); err != nil {
		return nil, fmt.Errorf("failed to update template: %w", err)
	}

	s.writeAuditLog(ctx, model.ActionUpdateTemplate, tpl.ID.String(), tpl.Name, draft)
	s.publish(*tpl)

	resp := toTemplateResponse(*tpl)
	return &resp, nil
}

func (s *templateService) SetTemplateStatus(ctx context.Context, id uuid.UUID, enabled bool) (*TemplateResponse, error) {
	tpl, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if !enabled && tpl.Enabled() {
		metrics.CatalogRejected.WithLabelValues("last_active").Inc()
		return nil, fmt.Errorf("%w: template %s is the enabled template of its operation", ErrLastActive, tpl.Name)
	}

	tpl.Status = statusOf(enabled)
	tpl.LastUpdated = s.now()

	err = s.store.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.store.Templates.Update(txCtx, tpl); err != nil {
			return fmt.Errorf("failed to update template status: %w", err)
		}
		if enabled {
			return s.enforceExclusive(txCtx, *tpl)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.writeAuditLog(ctx, model.ActionSetTemplateStatus, tpl.ID.String(), tpl.Name, map[string]string{"status": tpl.Status})
	s.publish(*tpl)

	resp := toTemplateResponse(*tpl)
	return &resp, nil
}

// DeleteTemplate refuses to remove the enabled template, or the only template, of an operation.
func (s *templateService) DeleteTemplate(ctx context.Context, id uuid.UUID) error {
	tpl, err := s.load(ctx, id)
	if err != nil {
		return err
	}

	siblings, err := s.store.Templates.ListByOperation(ctx, tpl.OperationID)
	if err != nil {
		return fmt.Errorf("failed to fetch templates: %w", err)
	}
	if tpl.Enabled() || len(siblings) <= 1 {
		metrics.CatalogRejected.WithLabelValues("last_active").Inc()
		return fmt.Errorf("%w: template %s", ErrLastActive, tpl.Name)
	}

	if err := s.store.Templates.Delete(ctx, id); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%w: template %s", ErrNotFound, id)
		}
		return fmt.Errorf("failed to delete template: %w", err)
	}

	s.writeAuditLog(ctx, model.ActionDeleteTemplate, tpl.ID.String(), tpl.Name, map[string]string{"operation_id": tpl.OperationID.String()})
	s.publish(*tpl)
	return nil
}

// --- Helpers ---

func (s *templateService) load(ctx context.Context, id uuid.UUID) (*model.Template, error) {
	tpl, err := s.store.Templates.FindByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: template %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to fetch template: %w", err)
	}
	return tpl, nil
}

func (s *templateService) enforceExclusive(ctx context.Context, tpl model.Template) error {
	return exclusive(func() (int64, error) {
		return s.store.Templates.DisableSiblings(ctx, tpl.OperationID, tpl.ID)
	}, s.log.With(zap.String("operation_id", tpl.OperationID.String())))
}

func (s *templateService) publish(tpl model.Template) {
	s.events.Publish(model.ChangeEvent{
		Type:        model.EventTemplateChanged,
		EntityID:    tpl.ID.String(),
		OperationID: tpl.OperationID.String(),
	})
}

// templateVariables lists the placeholders used by subject and content.
// Fields are scanned one at a time so a placeholder never spans both.
func templateVariables(draft TemplateDraft) []string {
	seen := make(map[string]bool)
	var names []string
	for _, text := range []string{draft.Subject, draft.Content} {
		for _, name := range ExtractPlaceholders(text) {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names
}

func toTemplateResponse(t model.Template) TemplateResponse {
	vars := t.Variables.Data()
	if vars == nil {
		vars = []string{}
	}
	return TemplateResponse{
		ID:           t.ID.String(),
		OperationID:  t.OperationID.String(),
		TemplateType: t.TemplateType,
		Status:       t.Status,
		Name:         t.Name,
		Subject:      t.Subject,
		Content:      t.Content,
		Variables:    vars,
		Creator:      t.Creator,
		LastUpdated:  t.LastUpdated.Format(time.RFC3339),
	}
}
