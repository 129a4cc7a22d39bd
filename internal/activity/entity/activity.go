package entity

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ovaphlow/pitchfork/service-activity-go/pkg/optional"
)

// Status is the lifecycle state of an activity.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusBlocked    Status = "blocked"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Statuses lists every status in declaration order.
var Statuses = []Status{StatusPending, StatusInProgress, StatusBlocked, StatusCompleted, StatusCancelled}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusBlocked, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}

// Rank orders priorities; higher is more urgent. Unknown values rank 0.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityMedium:
		return 2
	case PriorityHigh:
		return 3
	case PriorityUrgent:
		return 4
	default:
		return 0
	}
}

func (p Priority) Valid() bool { return p.Rank() > 0 }

// DateLayout is the wire and storage format of due dates.
const DateLayout = "2006-01-02"

// Date is a calendar day, serialized as YYYY-MM-DD.
type Date struct{ time.Time }

func NewDate(y int, m time.Month, d int) Date {
	return Date{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, err
	}
	return Date{t}, nil
}

func (d Date) String() string { return d.Format(DateLayout) }

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return fmt.Errorf("due_date must be YYYY-MM-DD: %w", err)
	}
	*d = parsed
	return nil
}

// Scan implements sql.Scanner for DATE columns.
func (d *Date) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		d.Time = time.Date(v.Year(), v.Month(), v.Day(), 0, 0, 0, 0, time.UTC)
		return nil
	case []byte:
		return d.scanString(string(v))
	case string:
		return d.scanString(v)
	default:
		return fmt.Errorf("cannot scan %T into Date", src)
	}
}

func (d *Date) scanString(s string) error {
	if len(s) > len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Value implements driver.Valuer.
func (d Date) Value() (driver.Value, error) {
	return d.String(), nil
}

// Activity is a row of the `activities` table.
type Activity struct {
	ID          int64     `db:"id" json:"id"`
	Title       string    `db:"title" json:"title"`
	Description *string   `db:"description" json:"description"`
	Status      Status    `db:"status" json:"status"`
	Priority    Priority  `db:"priority" json:"priority"`
	DueDate     *Date     `db:"due_date" json:"due_date"`
	AssigneeID  *int64    `db:"assignee_id" json:"assignee_id"`
	CategoryID  *int64    `db:"category_id" json:"category_id"`
	CreatorID   int64     `db:"creator_id" json:"creator_id"`
	Active      bool      `db:"is_active" json:"is_active"`
	Version     int64     `db:"version" json:"version"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Patch is a partial update; only Set fields are applied. Null clears a
// nullable column.
type Patch struct {
	Title       optional.Value[string]   `json:"title"`
	Description optional.Value[string]   `json:"description"`
	Priority    optional.Value[Priority] `json:"priority"`
	DueDate     optional.Value[Date]     `json:"due_date"`
	AssigneeID  optional.Value[int64]    `json:"assignee_id"`
	CategoryID  optional.Value[int64]    `json:"category_id"`
	Active      optional.Value[bool]     `json:"is_active"`
}

func (p Patch) Empty() bool {
	return !p.Title.Set && !p.Description.Set && !p.Priority.Set && !p.DueDate.Set &&
		!p.AssigneeID.Set && !p.CategoryID.Set && !p.Active.Set
}

// Filter selects activities for listing. VisibleTo, when set, restricts the
// result to rows the principal created or is assigned to.
type Filter struct {
	Status          *Status
	Priority        *Priority
	CategoryID      *int64
	AssigneeID      *int64
	DueFrom         *Date
	DueTo           *Date
	Search          string
	IncludeInactive bool
	VisibleTo       *int64
	Skip            int
	Limit           int
}

type Page struct {
	Activities []*Activity `json:"activities"`
	Total      int         `json:"total"`
	Page       int         `json:"page"`
	PerPage    int         `json:"per_page"`
}
