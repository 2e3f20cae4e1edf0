package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TemplateType enum constants
const (
	TemplateTypeEmail = "email"
	TemplateTypeChat  = "chat"
)

// Template is a notification body attached to an operation.
// At most one template per operation is enabled at any time.
type Template struct {
	ID           uuid.UUID                    `gorm:"type:uuid;primaryKey" json:"id"`
	OperationID  uuid.UUID                    `gorm:"type:uuid;not null;index" json:"operation_id"`
	TemplateType string                       `gorm:"type:varchar(10);not null" json:"template_type"` // email, chat
	Status       string                       `gorm:"type:varchar(10);not null;default:'disabled';index" json:"status"`
	Name         string                       `gorm:"type:varchar(100);not null" json:"name"`
	Subject      string                       `gorm:"type:varchar(255)" json:"subject"` // Email subject or chat card title
	Content      string                       `gorm:"type:text;not null" json:"content"`
	Variables    datatypes.JSONType[[]string] `json:"variables"` // Placeholder names found in subject/content
	Creator      string                       `gorm:"type:varchar(255);not null" json:"creator"`
	CreatedAt    time.Time                    `json:"created_at"`
	LastUpdated  time.Time                    `json:"last_updated"`
}

func (t *Template) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// Enabled reports whether this template is the active one for its operation
func (t Template) Enabled() bool {
	return t.Status == StatusEnabled
}
