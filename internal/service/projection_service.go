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

// NotificationEntry is a row of the notification settings page: may the producing role
// notify the receiving role about the operation, and may the user change that.
type NotificationEntry struct {
	OperationID     string `json:"operation_id"`
	OperationName   string `json:"operation_name"`
	ProducingRoleID string `json:"producing_role_id"`
	ReceivingRoleID string `json:"receiving_role_id"`
	ReceivingRole   string `json:"receiving_role"`
	Enabled         bool   `json:"enabled"`
	Editable        bool   `json:"editable"`
}

// SubscriptionEntry is a row of the subscription page: does the acting role receive
// notifications about the operation it produces.
type SubscriptionEntry struct {
	OperationID   string `json:"operation_id"`
	OperationName string `json:"operation_name"`
	RoleID        string `json:"role_id"`
	Enabled       bool   `json:"enabled"`
	Editable      bool   `json:"editable"`
}

// --- Interfaces ---

type NotificationService interface {
	List(ctx context.Context, producingRoleID uuid.UUID) ([]NotificationEntry, error)
	Toggle(ctx context.Context, operationID, producingRoleID, receivingRoleID uuid.UUID, value bool) (*NotificationEntry, error)
}

type SubscriptionService interface {
	List(ctx context.Context, actingRoleID uuid.UUID) ([]SubscriptionEntry, error)
	Toggle(ctx context.Context, operationID, actingRoleID uuid.UUID, value bool) (*SubscriptionEntry, error)
}

// projection derives end-user rows from the matrix on every read; nothing is stored.
type projection struct {
	base
	name string
}

func NewNotificationService(store *repository.Store, log *zap.Logger, opts ...Option) NotificationService {
	return &notificationService{projection{base: newBase(store, log, opts), name: "notification"}}
}

func NewSubscriptionService(store *repository.Store, log *zap.Logger, opts ...Option) SubscriptionService {
	return &subscriptionService{projection{base: newBase(store, log, opts), name: "subscription"}}
}

// cells loads every delivery cell produced by roleID, keyed by cell
func (p *projection) cells(ctx context.Context, roleID uuid.UUID) (map[model.Cell]model.PermissionEntry, error) {
	entries, err := p.store.Permissions.ListEntries(ctx, repository.PermissionFilter{
		ProducingRoleID: &roleID,
		ReceiversOnly:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch permission entries: %w", err)
	}
	out := make(map[model.Cell]model.PermissionEntry, len(entries))
	for _, e := range entries {
		out[e.Key().Cell()] = e
	}
	return out, nil
}

// toggle re-reads the governing cell and sets enabled when it is configurable at this moment.
func (p *projection) toggle(ctx context.Context, action string, key model.PermissionKey, value bool) (*model.PermissionEntry, error) {
	entry, err := findEntry(ctx, &p.base, key)
	if err != nil {
		return nil, err
	}
	if !entry.Configurable {
		metrics.ToggleRejected.WithLabelValues(p.name).Inc()
		return nil, fmt.Errorf("%w: %s entry %s is locked by the administrator", ErrNotEditable, p.name, key)
	}

	if err := p.store.Permissions.UpdateFlags(ctx, entry.ID, flagsFor(FieldEnabled, value)); err != nil {
		return nil, fmt.Errorf("failed to update %s: %w", p.name, err)
	}
	entry.Enabled = value
	metrics.MatrixMutations.WithLabelValues("toggle_" + p.name).Inc()

	p.writeAuditLog(ctx, action, key.String(), p.name, map[string]bool{"enabled": value})
	p.events.Publish(model.ChangeEvent{
		Type:        model.EventMatrixChanged,
		RoleID:      key.ProducingRoleID.String(),
		OperationID: key.OperationID.String(),
	})
	return entry, nil
}

// --- Notifications ---

type notificationService struct {
	projection
}

func (s *notificationService) List(ctx context.Context, producingRoleID uuid.UUID) ([]NotificationEntry, error) {
	if _, err := loadRole(ctx, s.store, producingRoleID); err != nil {
		return nil, err
	}
	roles, err := s.store.Roles.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch roles: %w", err)
	}
	ops, err := s.store.Operations.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch operations: %w", err)
	}
	cells, err := s.cells(ctx, producingRoleID)
	if err != nil {
		return nil, err
	}

	res := make([]NotificationEntry, 0, len(ops)*len(roles))
	for _, op := range ops {
		for _, recv := range roles {
			// absent cell reads as disabled and locked
			cell := cells[model.ReceiverKey(producingRoleID, op.ID, recv.ID).Cell()]
			res = append(res, NotificationEntry{
				OperationID:     op.ID.String(),
				OperationName:   op.Name,
				ProducingRoleID: producingRoleID.String(),
				ReceivingRoleID: recv.ID.String(),
				ReceivingRole:   recv.Code,
				Enabled:         cell.Enabled,
				Editable:        cell.Configurable,
			})
		}
	}
	return res, nil
}

func (s *notificationService) Toggle(ctx context.Context, operationID, producingRoleID, receivingRoleID uuid.UUID, value bool) (*NotificationEntry, error) {
	op, err := loadOperation(ctx, s.store, operationID)
	if err != nil {
		return nil, err
	}
	recv, err := loadRole(ctx, s.store, receivingRoleID)
	if err != nil {
		return nil, err
	}

	entry, err := s.toggle(ctx, model.ActionToggleNotification, model.ReceiverKey(producingRoleID, operationID, receivingRoleID), value)
	if err != nil {
		return nil, err
	}
	return &NotificationEntry{
		OperationID:     op.ID.String(),
		OperationName:   op.Name,
		ProducingRoleID: producingRoleID.String(),
		ReceivingRoleID: recv.ID.String(),
		ReceivingRole:   recv.Code,
		Enabled:         entry.Enabled,
		Editable:        entry.Configurable,
	}, nil
}

// --- Subscriptions ---

type subscriptionService struct {
	projection
}

func (s *subscriptionService) List(ctx context.Context, actingRoleID uuid.UUID) ([]SubscriptionEntry, error) {
	if _, err := loadRole(ctx, s.store, actingRoleID); err != nil {
		return nil, err
	}
	ops, err := s.store.Operations.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch operations: %w", err)
	}
	cells, err := s.cells(ctx, actingRoleID)
	if err != nil {
		return nil, err
	}

	res := make([]SubscriptionEntry, 0, len(ops))
	for _, op := range ops {
		cell := cells[model.ReceiverKey(actingRoleID, op.ID, actingRoleID).Cell()]
		res = append(res, SubscriptionEntry{
			OperationID:   op.ID.String(),
			OperationName: op.Name,
			RoleID:        actingRoleID.String(),
			Enabled:       cell.Enabled,
			Editable:      cell.Configurable,
		})
	}
	return res, nil
}

func (s *subscriptionService) Toggle(ctx context.Context, operationID, actingRoleID uuid.UUID, value bool) (*SubscriptionEntry, error) {
	op, err := loadOperation(ctx, s.store, operationID)
	if err != nil {
		return nil, err
	}

	entry, err := s.toggle(ctx, model.ActionToggleSubscription, model.ReceiverKey(actingRoleID, operationID, actingRoleID), value)
	if err != nil {
		return nil, err
	}
	return &SubscriptionEntry{
		OperationID:   op.ID.String(),
		OperationName: op.Name,
		RoleID:        actingRoleID.String(),
		Enabled:       entry.Enabled,
		Editable:      entry.Configurable,
	}, nil
}
