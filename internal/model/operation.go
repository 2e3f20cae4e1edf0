package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Status constants shared by operations and templates
const (
	StatusEnabled  = "enabled"
	StatusDisabled = "disabled"
)

// Variable type constants accepted in Operation.Variables
const (
	VarTypeString   = "string"
	VarTypeNumber   = "number"
	VarTypeBoolean  = "boolean"
	VarTypeDate     = "date"
	VarTypeDatetime = "datetime"
)

// Operation is a named business action (submit quote, confirm order...) that can trigger a notification
type Operation struct {
	ID          uuid.UUID                             `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string                                `gorm:"type:varchar(50);uniqueIndex;not null" json:"name"`
	Source      string                                `gorm:"type:varchar(500);not null" json:"source"` // Free-text trigger descriptor
	Status      string                                `gorm:"type:varchar(10);not null;default:'disabled';index" json:"status"`
	Creator     string                                `gorm:"type:varchar(255);not null" json:"creator"`
	Remark      string                                `gorm:"type:varchar(200)" json:"remark"`
	Variables   datatypes.JSONType[map[string]string] `json:"variables"` // name -> type
	CreatedAt   time.Time                             `json:"created_at"`
	LastUpdated time.Time                             `json:"last_updated"`
}

// BeforeCreate assigns the primary key so the model works on stores without gen_random_uuid()
func (o *Operation) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// Enabled reports whether the operation is the active definition of its group
func (o Operation) Enabled() bool {
	return o.Status == StatusEnabled
}

// VariableMap returns the declared variables, never nil
func (o Operation) VariableMap() map[string]string {
	vars := o.Variables.Data()
	if vars == nil {
		return map[string]string{}
	}
	return vars
}
