package entity

import "time"

// Entity names used in audit records.
const (
	EntityActivity = "activity"
	EntityCategory = "category"
	EntityUser     = "user"
)

// Action labels used in audit records.
const (
	ActionCreate         = "create"
	ActionUpdate         = "update"
	ActionStatusChange   = "status_change"
	ActionSoftDelete     = "soft_delete"
	ActionHardDelete     = "hard_delete"
	ActionPasswordChange = "password_change"
	ActionRegister       = "register"
)

// Record is a row of the `audit_records` table.
type Record struct {
	ID            string    `db:"id" json:"id"`
	Entity        string    `db:"entity" json:"entity"`
	EntityID      int64     `db:"entity_id" json:"entity_id"`
	Action        string    `db:"action" json:"action"`
	Field         *string   `db:"field" json:"field,omitempty"`
	PreviousValue *string   `db:"previous_value" json:"previous_value,omitempty"`
	NewValue      *string   `db:"new_value" json:"new_value,omitempty"`
	ActorID       int64     `db:"actor_id" json:"actor_id"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// Change is one modified field of an audited write.
type Change struct {
	Field    string
	Previous *string
	New      *string
}

// Event is an audited write before it is split into records, one per change.
type Event struct {
	Entity   string
	EntityID int64
	Action   string
	ActorID  int64
	Changes  []Change
}

type Filter struct {
	Entity   string
	EntityID *int64
	Skip     int
	Limit    int
}

type Page struct {
	Records []*Record `json:"records"`
	Total   int       `json:"total"`
	Page    int       `json:"page"`
	PerPage int       `json:"per_page"`
}
