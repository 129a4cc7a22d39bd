package entity

import (
	"regexp"
	"time"

	"github.com/ovaphlow/pitchfork/service-activity-go/pkg/optional"
)

// DefaultColor is used when a category is created without one.
const DefaultColor = "#3498db"

// ColorPattern matches a #RRGGBB color.
var ColorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// Category is a row of the `categories` table.
type Category struct {
	ID          int64     `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description *string   `db:"description" json:"description"`
	Color       string    `db:"color" json:"color"`
	Active      bool      `db:"is_active" json:"is_active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

type Patch struct {
	Name        optional.Value[string] `json:"name"`
	Description optional.Value[string] `json:"description"`
	Color       optional.Value[string] `json:"color"`
	Active      optional.Value[bool]   `json:"is_active"`
}

type ListParams struct {
	Skip            int
	Limit           int
	IncludeInactive bool
}

type Page struct {
	Categories []*Category `json:"categories"`
	Total      int         `json:"total"`
}
