package model

// Change event types pushed to connected consoles
const (
	EventOperationChanged = "operation.changed"
	EventTemplateChanged  = "template.changed"
	EventMatrixChanged    = "matrix.changed"
	EventRolesSeeded      = "roles.seeded"
)

// ChangeEvent tells open consoles which projection to re-read. It carries no state.
type ChangeEvent struct {
	Type        string `json:"type"`
	EntityID    string `json:"entity_id,omitempty"`
	RoleID      string `json:"role_id,omitempty"`
	OperationID string `json:"operation_id,omitempty"`
}
