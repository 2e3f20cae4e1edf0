package service

import (
	"context"
	"fmt"

	"opsconsole/internal/model"
	"opsconsole/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// --- DTOs ---

type RoleResponse struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
	IsSystem    bool   `json:"is_system"`
	CreatedAt   string `json:"created_at"`
}

// DefaultRoles is the fixed enumeration of organizational actors known to the console
var DefaultRoles = []model.Role{
	{Code: model.RoleAdmin, Name: "Administrator", Description: "Console administrators", SortOrder: 0},
	{Code: model.RoleSales, Name: "Sales", Description: "Quotes and customer contracts", SortOrder: 10},
	{Code: model.RoleOps, Name: "Ops", Description: "Warehouse and transport operations", SortOrder: 20},
	{Code: model.RoleFinance, Name: "Finance", Description: "Invoicing and settlement", SortOrder: 30},
	{Code: model.RoleDispatcher, Name: "Dispatcher", Description: "Vehicle and driver dispatch", SortOrder: 40},
	{Code: model.RoleCustomerService, Name: "Customer Service", Description: "Shipper and consignee support", SortOrder: 50},
}

// --- Interface ---

type RoleService interface {
	ListRoles(ctx context.Context) ([]RoleResponse, error)
	GetRole(ctx context.Context, id string) (*RoleResponse, error)
	GetRoleByCode(ctx context.Context, code string) (*RoleResponse, error)
	SeedDefaultRoles(ctx context.Context) error
}

type roleService struct {
	base
	matrix MatrixService
}

func NewRoleService(store *repository.Store, matrix MatrixService, log *zap.Logger, opts ...Option) RoleService {
	return &roleService{base: newBase(store, log, opts), matrix: matrix}
}

// --- Implementation ---

func (s *roleService) ListRoles(ctx context.Context) ([]RoleResponse, error) {
	roles, err := s.store.Roles.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch roles: %w", err)
	}

	res := make([]RoleResponse, 0, len(roles))
	for _, r := range roles {
		res = append(res, toRoleResponse(r))
	}
	return res, nil
}

func (s *roleService) GetRole(ctx context.Context, id string) (*RoleResponse, error) {
	roleID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid role id: %w", err)
	}

	role, err := loadRole(ctx, s.store, roleID)
	if err != nil {
		return nil, err
	}

	resp := toRoleResponse(*role)
	return &resp, nil
}

// GetRoleByCode resolves the role claim of a token
func (s *roleService) GetRoleByCode(ctx context.Context, code string) (*RoleResponse, error) {
	role, err := s.store.Roles.FindByCode(ctx, code)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: role %s", ErrNotFound, code)
		}
		return nil, fmt.Errorf("failed to fetch role: %w", err)
	}

	resp := toRoleResponse(*role)
	return &resp, nil
}

// SeedDefaultRoles creates the built-in roles if not already present, then fills the
// matrix cells any new role is missing for existing operations.
func (s *roleService) SeedDefaultRoles(ctx context.Context) error {
	created := 0
	for _, def := range DefaultRoles {
		existing, err := s.store.Roles.FindByCode(ctx, def.Code)
		if err == nil {
			// Update name/description if changed
			if existing.Name != def.Name || existing.Description != def.Description || existing.SortOrder != def.SortOrder {
				existing.Name = def.Name
				existing.Description = def.Description
				existing.SortOrder = def.SortOrder
				if err := s.store.Roles.Update(ctx, existing); err != nil {
					return fmt.Errorf("failed to update role '%s': %w", def.Code, err)
				}
			}
			continue
		}
		if !isNotFound(err) {
			return fmt.Errorf("failed to look up role '%s': %w", def.Code, err)
		}

		role := def
		role.IsSystem = true
		if err := s.store.Roles.Create(ctx, &role); err != nil {
			return fmt.Errorf("failed to seed role '%s': %w", def.Code, err)
		}
		created++
	}

	seeded, err := s.matrix.SeedAll(ctx)
	if err != nil {
		return err
	}

	if created > 0 || seeded > 0 {
		s.log.Info("seeded roles", zap.Int("roles_created", created), zap.Int("matrix_entries_created", seeded))
		s.events.Publish(model.ChangeEvent{Type: model.EventRolesSeeded})
	}
	return nil
}

// --- Helpers ---

func loadRole(ctx context.Context, store *repository.Store, id uuid.UUID) (*model.Role, error) {
	role, err := store.Roles.FindByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: role %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to fetch role: %w", err)
	}
	return role, nil
}

func toRoleResponse(r model.Role) RoleResponse {
	return RoleResponse{
		ID:          r.ID.String(),
		Code:        r.Code,
		Name:        r.Name,
		Description: r.Description,
		IsSystem:    r.IsSystem,
		CreatedAt:   r.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}
