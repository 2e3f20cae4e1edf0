package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	ActionCreateOperation    = "CREATE_OPERATION"
	ActionUpdateOperation    = "UPDATE_OPERATION"
	ActionSetOperationStatus = "SET_OPERATION_STATUS"

	ActionCreateTemplate    = "CREATE_TEMPLATE"
	ActionUpdateTemplate    = "UPDATE_TEMPLATE"
	ActionSetTemplateStatus = "SET_TEMPLATE_STATUS"
	ActionDeleteTemplate    = "DELETE_TEMPLATE"

	// Matrix actions
	ActionSetPermission      = "SET_PERMISSION"
	ActionSelectColumn       = "SELECT_COLUMN"
	ActionToggleNotification = "TOGGLE_NOTIFICATION"
	ActionToggleSubscription = "TOGGLE_SUBSCRIPTION"
	ActionPasteSnapshot      = "PASTE_SNAPSHOT"
)

// AuditLog tracks Who, What, and When for console changes
type AuditLog struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Actor      string         `gorm:"type:varchar(255);index" json:"actor"` // Empty for automated seeding
	Action     string         `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string         `gorm:"type:varchar(120);index" json:"entity_id"`       // Reference string (uuid or matrix key)
	EntityName string         `gorm:"type:varchar(255)" json:"entity_name,omitempty"` // Human readable name
	Details    datatypes.JSON `json:"details"`                                        // Serialized JSON payload of the action
	CreatedAt  time.Time      `gorm:"index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
