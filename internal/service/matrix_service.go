package service

import (
	"context"
	"fmt"

	"opsconsole/internal/metrics"
	"opsconsole/internal/model"
	"opsconsole/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// --- DTOs ---

// ColumnLevel names the matrix column currently displayed by the console
type ColumnLevel string

const (
	// LevelRoles: producer cells of every role (optionally for one operation)
	LevelRoles ColumnLevel = "roles"
	// LevelOperations: producer cells of one role across operations
	LevelOperations ColumnLevel = "operations"
	// LevelReceivers: delivery cells under one role and operation
	LevelReceivers ColumnLevel = "receivers"
)

// MatrixField selects which flag of a cell a bulk write targets
type MatrixField string

const (
	FieldEnabled      MatrixField = "enabled"
	FieldConfigurable MatrixField = "configurable"
)

// ColumnSelector describes a select-all / clear over the displayed column.
// Only narrows the displayed rows by subject id (role ids for roles and receivers,
// operation ids for operations); empty means every row of the column.
type ColumnSelector struct {
	Level           ColumnLevel `json:"level"`
	ProducingRoleID *uuid.UUID  `json:"producing_role_id"`
	OperationID     *uuid.UUID  `json:"operation_id"`
	Only            []uuid.UUID `json:"only"`
	Field           MatrixField `json:"field"`
	Value           bool        `json:"value"`
}

// RowFailure records one cell a bulk call could not write
type RowFailure struct {
	Key   model.PermissionKey `json:"key"`
	Error string              `json:"error"`
}

// BulkResult summarises a non-atomic bulk write
type BulkResult struct {
	Matched int          `json:"matched"`
	Updated int          `json:"updated"`
	Failed  []RowFailure `json:"failed,omitempty"`
}

type EntryResponse struct {
	ID              string  `json:"id"`
	ProducingRoleID string  `json:"producing_role_id"`
	OperationID     string  `json:"operation_id"`
	ReceivingRoleID *string `json:"receiving_role_id"`
	Enabled         bool    `json:"enabled"`
	Configurable    bool    `json:"configurable"`
}

// RoleNode is the first list of the matrix tree
type RoleNode struct {
	RoleID     string          `json:"role_id"`
	Code       string          `json:"code"`
	Name       string          `json:"name"`
	Operations []OperationNode `json:"operations"`
}

// OperationNode is a producer cell. Receivers is empty while the cell is disabled.
type OperationNode struct {
	OperationID  string         `json:"operation_id"`
	Name         string         `json:"name"`
	Status       string         `json:"status"`
	Enabled      bool           `json:"enabled"`
	Configurable bool           `json:"configurable"`
	Receivers    []ReceiverNode `json:"receivers"`
}

// ReceiverNode is a delivery cell
type ReceiverNode struct {
	RoleID       string `json:"role_id"`
	Code         string `json:"code"`
	Name         string `json:"name"`
	Enabled      bool   `json:"enabled"`
	Configurable bool   `json:"configurable"`
}

// --- Interface ---

type MatrixService interface {
	Get(ctx context.Context, key model.PermissionKey) (*EntryResponse, error)
	SetEnabled(ctx context.Context, key model.PermissionKey, value bool) (*EntryResponse, error)
	SetConfigurable(ctx context.Context, key model.PermissionKey, value bool) (*EntryResponse, error)
	SelectColumn(ctx context.Context, sel ColumnSelector) (BulkResult, error)
	Tree(ctx context.Context) ([]RoleNode, error)
	SeedOperation(ctx context.Context, operationID uuid.UUID) (int, error)
	SeedAll(ctx context.Context) (int, error)
}

type matrixService struct {
	base
}

func NewMatrixService(store *repository.Store, log *zap.Logger, opts ...Option) MatrixService {
	return &matrixService{base: newBase(store, log, opts)}
}

// --- Implementation ---

func (s *matrixService) Get(ctx context.Context, key model.PermissionKey) (*EntryResponse, error) {
	entry, err := s.find(ctx, key)
	if err != nil {
		return nil, err
	}
	resp := toEntryResponse(*entry)
	return &resp, nil
}

// find loads a cell. A missing cell means the catalog and matrix are out of sync,
// which is logged rather than swallowed.
func (s *matrixService) find(ctx context.Context, key model.PermissionKey) (*model.PermissionEntry, error) {
	return findEntry(ctx, &s.base, key)
}

func findEntry(ctx context.Context, b *base, key model.PermissionKey) (*model.PermissionEntry, error) {
	entry, err := b.store.Permissions.Find(ctx, key)
	if err != nil {
		if isNotFound(err) {
			metrics.MatrixDesync.Inc()
			b.log.Error("permission entry missing from matrix", zap.String("key", key.String()))
			return nil, fmt.Errorf("%w: permission entry %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to fetch permission entry: %w", err)
	}
	return entry, nil
}

func (s *matrixService) SetEnabled(ctx context.Context, key model.PermissionKey, value bool) (*EntryResponse, error) {
	return s.setFlag(ctx, key, FieldEnabled, value)
}

func (s *matrixService) SetConfigurable(ctx context.Context, key model.PermissionKey, value bool) (*EntryResponse, error) {
	return s.setFlag(ctx, key, FieldConfigurable, value)
}

func (s *matrixService) setFlag(ctx context.Context, key model.PermissionKey, field MatrixField, value bool) (*EntryResponse, error) {
	entry, err := s.find(ctx, key)
	if err != nil {
		return nil, err
	}

	if err := s.store.Permissions.UpdateFlags(ctx, entry.ID, flagsFor(field, value)); err != nil {
		return nil, fmt.Errorf("failed to update permission entry: %w", err)
	}
	applyFlag(entry, field, value)
	metrics.MatrixMutations.WithLabelValues("set_" + string(field)).Inc()

	s.writeAuditLog(ctx, model.ActionSetPermission, key.String(), string(field), map[string]interface{}{
		"field": field,
		"value": value,
	})
	s.events.Publish(model.ChangeEvent{
		Type:        model.EventMatrixChanged,
		RoleID:      key.ProducingRoleID.String(),
		OperationID: key.OperationID.String(),
	})

	resp := toEntryResponse(*entry)
	return &resp, nil
}

func (s *matrixService) SelectColumn(ctx context.Context, sel ColumnSelector) (BulkResult, error) {
	if errs := validateSelector(sel); len(errs) > 0 {
		return BulkResult{}, errs
	}

	filter := repository.PermissionFilter{}
	switch sel.Level {
	case LevelRoles:
		filter.ProducerOnly = true
		filter.OperationID = sel.OperationID
	case LevelOperations:
		filter.ProducerOnly = true
		filter.ProducingRoleID = sel.ProducingRoleID
	case LevelReceivers:
		filter.ReceiversOnly = true
		filter.ProducingRoleID = sel.ProducingRoleID
		filter.OperationID = sel.OperationID
	}

	entries, err := s.store.Permissions.ListEntries(ctx, filter)
	if err != nil {
		return BulkResult{}, fmt.Errorf("failed to list permission entries: %w", err)
	}

	only := make(map[uuid.UUID]bool, len(sel.Only))
	for _, id := range sel.Only {
		only[id] = true
	}

	// Blanket set: every matched row gets sel.Value, whatever it held before.
	var result BulkResult
	flags := flagsFor(sel.Field, sel.Value)
	for _, e := range entries {
		if len(only) > 0 && !only[columnSubject(sel.Level, e)] {
			continue
		}
		result.Matched++
		if err := s.store.Permissions.UpdateFlags(ctx, e.ID, flags); err != nil {
			s.log.Warn("select column: failed to update row", zap.String("key", e.Key().String()), zap.Error(err))
			result.Failed = append(result.Failed, RowFailure{Key: e.Key(), Error: err.Error()})
			continue
		}
		result.Updated++
	}
	metrics.MatrixMutations.WithLabelValues("select_column").Add(float64(result.Updated))

	s.writeAuditLog(ctx, model.ActionSelectColumn, string(sel.Level), string(sel.Field), map[string]interface{}{
		"selector": sel,
		"matched":  result.Matched,
		"updated":  result.Updated,
	})
	event := model.ChangeEvent{Type: model.EventMatrixChanged}
	if sel.ProducingRoleID != nil {
		event.RoleID = sel.ProducingRoleID.String()
	}
	s.events.Publish(event)

	return result, nil
}

func validateSelector(sel ColumnSelector) FieldErrors {
	var errs FieldErrors
	switch sel.Level {
	case LevelRoles:
	case LevelOperations:
		if sel.ProducingRoleID == nil {
			errs = append(errs, FieldError{Field: "producing_role_id", Message: "producing_role_id is required for the operations column"})
		}
	case LevelReceivers:
		if sel.ProducingRoleID == nil {
			errs = append(errs, FieldError{Field: "producing_role_id", Message: "producing_role_id is required for the receivers column"})
		}
		if sel.OperationID == nil {
			errs = append(errs, FieldError{Field: "operation_id", Message: "operation_id is required for the receivers column"})
		}
	default:
		errs = append(errs, FieldError{Field: "level", Message: "level must be one of: roles, operations, receivers"})
	}
	if sel.Field != FieldEnabled && sel.Field != FieldConfigurable {
		errs = append(errs, FieldError{Field: "field", Message: "field must be one of: enabled, configurable"})
	}
	return errs
}

// columnSubject is the id shown in the row of the displayed column
func columnSubject(level ColumnLevel, e model.PermissionEntry) uuid.UUID {
	switch level {
	case LevelOperations:
		return e.OperationID
	case LevelReceivers:
		if e.ReceivingRoleID != nil {
			return *e.ReceivingRoleID
		}
	}
	return e.ProducingRoleID
}

func (s *matrixService) Tree(ctx context.Context) ([]RoleNode, error) {
	roles, err := s.store.Roles.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch roles: %w", err)
	}
	ops, err := s.store.Operations.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch operations: %w", err)
	}
	entries, err := s.store.Permissions.ListEntries(ctx, repository.PermissionFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch permission entries: %w", err)
	}

	cells := make(map[model.Cell]model.PermissionEntry, len(entries))
	for _, e := range entries {
		cells[e.Key().Cell()] = e
	}

	tree := make([]RoleNode, 0, len(roles))
	for _, role := range roles {
		node := RoleNode{
			RoleID:     role.ID.String(),
			Code:       role.Code,
			Name:       role.Name,
			Operations: make([]OperationNode, 0, len(ops)),
		}
		for _, op := range ops {
			producer, ok := cells[model.ProducerKey(role.ID, op.ID).Cell()]
			if !ok {
				s.log.Error("producer entry missing from matrix", zap.String("role", role.Code), zap.String("operation", op.Name))
				continue
			}
			opNode := OperationNode{
				OperationID:  op.ID.String(),
				Name:         op.Name,
				Status:       op.Status,
				Enabled:      producer.Enabled,
				Configurable: producer.Configurable,
				Receivers:    []ReceiverNode{},
			}
			// A disabled producer hides its receivers; the stored rows stay as they are.
			if producer.Enabled {
				for _, recv := range roles {
					cell, ok := cells[model.ReceiverKey(role.ID, op.ID, recv.ID).Cell()]
					if !ok {
						continue
					}
					opNode.Receivers = append(opNode.Receivers, ReceiverNode{
						RoleID:       recv.ID.String(),
						Code:         recv.Code,
						Name:         recv.Name,
						Enabled:      cell.Enabled,
						Configurable: cell.Configurable,
					})
				}
			}
			node.Operations = append(node.Operations, opNode)
		}
		tree = append(tree, node)
	}
	return tree, nil
}

func (s *matrixService) SeedOperation(ctx context.Context, operationID uuid.UUID) (int, error) {
	roles, err := s.store.Roles.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch roles: %w", err)
	}
	return seedOperation(ctx, s.store, roles, operationID)
}

func (s *matrixService) SeedAll(ctx context.Context) (int, error) {
	roles, err := s.store.Roles.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch roles: %w", err)
	}
	ops, err := s.store.Operations.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch operations: %w", err)
	}

	total := 0
	for _, op := range ops {
		n, err := seedOperation(ctx, s.store, roles, op.ID)
		if err != nil {
			return total, err
		}
		total += n
	}
	if total > 0 {
		s.log.Info("seeded permission matrix", zap.Int("entries", total))
	}
	return total, nil
}

// seedOperation creates the missing cells of one operation: a producer cell per role and a
// delivery cell per (role, receiving role), all enabled=false and configurable=true.
// Existing cells are left untouched, so seeding is idempotent.
func seedOperation(ctx context.Context, store *repository.Store, roles []model.Role, operationID uuid.UUID) (int, error) {
	existing, err := store.Permissions.ListEntries(ctx, repository.PermissionFilter{OperationID: &operationID})
	if err != nil {
		return 0, fmt.Errorf("failed to list permission entries: %w", err)
	}
	have := make(map[model.Cell]bool, len(existing))
	for _, e := range existing {
		have[e.Key().Cell()] = true
	}

	var missing []model.PermissionEntry
	add := func(key model.PermissionKey) {
		if have[key.Cell()] {
			return
		}
		missing = append(missing, model.PermissionEntry{
			ProducingRoleID: key.ProducingRoleID,
			OperationID:     key.OperationID,
			ReceivingRoleID: key.ReceivingRoleID,
			Enabled:         false,
			Configurable:    true,
		})
	}
	for _, role := range roles {
		add(model.ProducerKey(role.ID, operationID))
		for _, recv := range roles {
			add(model.ReceiverKey(role.ID, operationID, recv.ID))
		}
	}

	if err := store.Permissions.CreateBatch(ctx, missing); err != nil {
		return 0, fmt.Errorf("failed to seed permission entries: %w", err)
	}
	return len(missing), nil
}

// --- Helpers ---

func flagsFor(field MatrixField, value bool) repository.PermissionFlags {
	v := value
	if field == FieldConfigurable {
		return repository.PermissionFlags{Configurable: &v}
	}
	return repository.PermissionFlags{Enabled: &v}
}

func applyFlag(entry *model.PermissionEntry, field MatrixField, value bool) {
	if field == FieldConfigurable {
		entry.Configurable = value
		return
	}
	entry.Enabled = value
}

func toEntryResponse(e model.PermissionEntry) EntryResponse {
	resp := EntryResponse{
		ID:              e.ID.String(),
		ProducingRoleID: e.ProducingRoleID.String(),
		OperationID:     e.OperationID.String(),
		Enabled:         e.Enabled,
		Configurable:    e.Configurable,
	}
	if e.ReceivingRoleID != nil {
		r := e.ReceivingRoleID.String()
		resp.ReceivingRoleID = &r
	}
	return resp
}
