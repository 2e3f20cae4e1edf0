package repository

import "gorm.io/gorm"

// Store bundles the repositories the console engine is wired against.
// Any implementation (gorm, in-memory) can be injected as long as it fills every field.
type Store struct {
	Operations  OperationRepository
	Templates   TemplateRepository
	Roles       RoleRepository
	Permissions PermissionRepository
	Audit       AuditRepository
	Tx          TransactionManager
}

// NewStore builds a gorm backed Store
func NewStore(db *gorm.DB) *Store {
	return &Store{
		Operations:  NewOperationRepository(db),
		Templates:   NewTemplateRepository(db),
		Roles:       NewRoleRepository(db),
		Permissions: NewPermissionRepository(db),
		Audit:       NewAuditRepository(db),
		Tx:          NewTransactionManager(db),
	}
}
