package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"opsconsole/internal/metrics"
	"opsconsole/internal/model"
	"opsconsole/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// --- DTOs ---

type OperationResponse struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Source      string            `json:"source"`
	Status      string            `json:"status"`
	Creator     string            `json:"creator"`
	Remark      string            `json:"remark"`
	Variables   map[string]string `json:"variables"`
	LastUpdated string            `json:"last_updated"`
}

// --- Interface ---

type OperationService interface {
	ListOperations(ctx context.Context, page, limit int) ([]OperationResponse, int64, error)
	GetOperation(ctx context.Context, id uuid.UUID) (*OperationResponse, error)
	CreateOperation(ctx context.Context, draft OperationDraft) (*OperationResponse, error)
	UpdateOperation(ctx context.Context, id uuid.UUID, draft OperationDraft) (*OperationResponse, error)
	SetOperationStatus(ctx context.Context, id uuid.UUID, enabled bool) (*OperationResponse, error)
}

type operationService struct {
	base
	matrix MatrixService
}

func NewOperationService(store *repository.Store, matrix MatrixService, log *zap.Logger, opts ...Option) OperationService {
	return &operationService{base: newBase(store, log, opts), matrix: matrix}
}

// --- Implementation ---

func (s *operationService) ListOperations(ctx context.Context, page, limit int) ([]OperationResponse, int64, error) {
	ops, total, err := s.store.Operations.List(ctx, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch operations: %w", err)
	}

	res := make([]OperationResponse, 0, len(ops))
	for _, op := range ops {
		res = append(res, toOperationResponse(op))
	}
	return res, total, nil
}

func (s *operationService) GetOperation(ctx context.Context, id uuid.UUID) (*OperationResponse, error) {
	op, err := loadOperation(ctx, s.store, id)
	if err != nil {
		return nil, err
	}
	resp := toOperationResponse(*op)
	return &resp, nil
}

func (s *operationService) CreateOperation(ctx context.Context, draft OperationDraft) (*OperationResponse, error) {
	if err := s.validate(ctx, draft, nil); err != nil {
		return nil, err
	}
	draft.normalize()

	now := s.now()
	op := model.Operation{
		ID:          uuid.New(),
		Name:        draft.Name,
		Source:      draft.Source,
		Status:      draft.Status,
		Creator:     ActorFrom(ctx),
		Remark:      draft.Remark,
		Variables:   datatypes.NewJSONType(copyVariables(draft.Variables)),
		CreatedAt:   now,
		LastUpdated: now,
	}

	seeded := 0
	err := s.store.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.store.Operations.Create(txCtx, &op); err != nil {
			return s.mapWriteError(err, op.Name)
		}

		var err error
		if seeded, err = s.matrix.SeedOperation(txCtx, op.ID); err != nil {
			return err
		}

		if op.Enabled() {
			return s.enforceExclusive(txCtx, op)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("operation created", zap.String("operation", op.Name), zap.Int("matrix_entries", seeded))
	s.writeAuditLog(ctx, model.ActionCreateOperation, op.ID.String(), op.Name, draft)
	s.events.Publish(model.ChangeEvent{Type: model.EventOperationChanged, EntityID: op.ID.String()})

	resp := toOperationResponse(op)
	return &resp, nil
}

func (s *operationService) UpdateOperation(ctx context.Context, id uuid.UUID, draft OperationDraft) (*OperationResponse, error) {
	op, err := loadOperation(ctx, s.store, id)
	if err != nil {
		return nil, err
	}

	if err := s.validate(ctx, draft, &id); err != nil {
		return nil, err
	}
	draft.normalize()

	// id and creator are preserved
	op.Name = draft.Name
	op.Source = draft.Source
	op.Status = draft.Status
	op.Remark = draft.Remark
	op.Variables = datatypes.NewJSONType(copyVariables(draft.Variables))
	op.LastUpdated = s.now()

	err = s.store.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.store.Operations.Update(txCtx, op); err != nil {
			return s.mapWriteError(err, op.Name)
		}
		if op.Enabled() {
			return s.enforceExclusive(txCtx, *op)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.writeAuditLog(ctx, model.ActionUpdateOperation, op.ID.String(), op.Name, draft)
	s.events.Publish(model.ChangeEvent{Type: model.EventOperationChanged, EntityID: op.ID.String()})

	resp := toOperationResponse(*op)
	return &resp, nil
}

func (s *operationService) SetOperationStatus(ctx context.Context, id uuid.UUID, enabled bool) (*OperationResponse, error) {
	op, err := loadOperation(ctx, s.store, id)
	if err != nil {
		return nil, err
	}

	op.Status = statusOf(enabled)
	op.LastUpdated = s.now()

	err = s.store.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.store.Operations.Update(txCtx, op); err != nil {
			return fmt.Errorf("failed to update operation status: %w", err)
		}
		if enabled {
			return s.enforceExclusive(txCtx, *op)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.writeAuditLog(ctx, model.ActionSetOperationStatus, op.ID.String(), op.Name, map[string]string{"status": op.Status})
	s.events.Publish(model.ChangeEvent{Type: model.EventOperationChanged, EntityID: op.ID.String()})

	resp := toOperationResponse(*op)
	return &resp, nil
}

// --- Helpers ---

func (s *operationService) validate(ctx context.Context, draft OperationDraft, editingID *uuid.UUID) error {
	existing, err := s.store.Operations.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch operations: %w", err)
	}
	if errs := ValidateOperationDraft(draft, existing, editingID); len(errs) > 0 {
		metrics.CatalogRejected.WithLabelValues("validation").Inc()
		return errs
	}
	return nil
}

// enforceExclusive disables every other operation sharing op's name. With names unique
// this finds nothing; it keeps operations on the same exclusivity rule as templates.
func (s *operationService) enforceExclusive(ctx context.Context, op model.Operation) error {
	return exclusive(func() (int64, error) {
		return s.store.Operations.DisableOthersByName(ctx, op.Name, op.ID)
	}, s.log.With(zap.String("operation", op.Name)))
}

// mapWriteError turns a unique index violation (two sessions racing on one name)
// into the same field error validation reports.
func (s *operationService) mapWriteError(err error, name string) error {
	if errors.Is(err, repository.ErrDuplicate) {
		return FieldErrors{{Field: "name", Message: fmt.Sprintf("an operation named %q already exists", name)}}
	}
	return fmt.Errorf("failed to save operation: %w", err)
}

// exclusive runs a "disable the rest of the group" statement. Shared by operations
// (grouped by name) and templates (grouped by operation).
func exclusive(disableOthers func() (int64, error), log *zap.Logger) error {
	n, err := disableOthers()
	if err != nil {
		return fmt.Errorf("failed to disable sibling configurations: %w", err)
	}
	if n > 0 {
		log.Info("disabled sibling configurations", zap.Int64("count", n))
	}
	return nil
}

func loadOperation(ctx context.Context, store *repository.Store, id uuid.UUID) (*model.Operation, error) {
	op, err := store.Operations.FindByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: operation %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to fetch operation: %w", err)
	}
	return op, nil
}

func statusOf(enabled bool) string {
	if enabled {
		return model.StatusEnabled
	}
	return model.StatusDisabled
}

func copyVariables(vars map[string]string) map[string]string {
	out := make(map[string]string, len(vars))
	for k, v := range vars {
		out[k] = v
	}
	return out
}

func toOperationResponse(op model.Operation) OperationResponse {
	return OperationResponse{
		ID:          op.ID.String(),
		Name:        op.Name,
		Source:      op.Source,
		Status:      op.Status,
		Creator:     op.Creator,
		Remark:      op.Remark,
		Variables:   op.VariableMap(),
		LastUpdated: op.LastUpdated.Format(time.RFC3339),
	}
}
