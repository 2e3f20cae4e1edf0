package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PermissionEntry is one governance cell of the notification matrix.
// Without a receiving role it decides whether the producing role may trigger notifications
// for the operation at all; with one it decides delivery to that receiving role.
// NULLs never collide in idx_permission_cell, so idx_permission_producer keeps
// producer-level cells unique.
type PermissionEntry struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ProducingRoleID uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_permission_cell,priority:1;uniqueIndex:idx_permission_producer,priority:1,where:receiving_role_id IS NULL" json:"producing_role_id"`
	OperationID     uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_permission_cell,priority:2;uniqueIndex:idx_permission_producer,priority:2,where:receiving_role_id IS NULL;index" json:"operation_id"`
	ReceivingRoleID *uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_permission_cell,priority:3" json:"receiving_role_id"` // nil = producer level
	Enabled         bool       `gorm:"not null;default:false" json:"enabled"`
	Configurable    bool       `gorm:"not null;default:true" json:"configurable"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (p *PermissionEntry) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// Key returns the natural key of the cell
func (p PermissionEntry) Key() PermissionKey {
	return PermissionKey{
		ProducingRoleID: p.ProducingRoleID,
		OperationID:     p.OperationID,
		ReceivingRoleID: p.ReceivingRoleID,
	}
}

// PermissionKey addresses a matrix cell. ReceivingRoleID nil addresses the producer-level cell.
type PermissionKey struct {
	ProducingRoleID uuid.UUID  `json:"producing_role_id"`
	OperationID     uuid.UUID  `json:"operation_id"`
	ReceivingRoleID *uuid.UUID `json:"receiving_role_id,omitempty"`
}

// ProducerKey builds the producer-level key for (role, operation)
func ProducerKey(roleID, operationID uuid.UUID) PermissionKey {
	return PermissionKey{ProducingRoleID: roleID, OperationID: operationID}
}

// ReceiverKey builds the delivery key for (producing role, operation, receiving role)
func ReceiverKey(roleID, operationID, receivingRoleID uuid.UUID) PermissionKey {
	r := receivingRoleID
	return PermissionKey{ProducingRoleID: roleID, OperationID: operationID, ReceivingRoleID: &r}
}

// IsProducer reports whether the key addresses a producer-level cell
func (k PermissionKey) IsProducer() bool {
	return k.ReceivingRoleID == nil
}

// String renders the key for logs
func (k PermissionKey) String() string {
	recv := "-"
	if k.ReceivingRoleID != nil {
		recv = k.ReceivingRoleID.String()
	}
	return k.ProducingRoleID.String() + "/" + k.OperationID.String() + "/" + recv
}

// Cell is the comparable form of a PermissionKey, usable as a map key.
// ReceivingRoleID is uuid.Nil for producer-level cells.
type Cell struct {
	ProducingRoleID uuid.UUID
	OperationID     uuid.UUID
	ReceivingRoleID uuid.UUID
}

// Cell returns the comparable form of k
func (k PermissionKey) Cell() Cell {
	c := Cell{ProducingRoleID: k.ProducingRoleID, OperationID: k.OperationID}
	if k.ReceivingRoleID != nil {
		c.ReceivingRoleID = *k.ReceivingRoleID
	}
	return c
}
