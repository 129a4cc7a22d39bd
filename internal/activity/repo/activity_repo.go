package repo

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/ovaphlow/pitchfork/service-activity-go/internal/activity/entity"
	"github.com/ovaphlow/pitchfork/service-activity-go/pkg/database"
)

const columns = `id, title, description, status, priority, due_date, assignee_id, category_id,
	creator_id, is_active, version, created_at, updated_at`

// priorityRank mirrors entity.Priority.Rank for ORDER BY.
const priorityRank = `CASE priority WHEN 'urgent' THEN 4 WHEN 'high' THEN 3 WHEN 'medium' THEN 2 WHEN 'low' THEN 1 ELSE 0 END`

// ActivityRepo provides data access for the activities table using sqlx.
type ActivityRepo struct {
	db *sqlx.DB
}

func NewActivityRepo(db *sqlx.DB) *ActivityRepo { return &ActivityRepo{db: db} }

// EnsureTable creates the activities table if not exists. Requires users and categories.
func (r *ActivityRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS activities (
  id BIGINT PRIMARY KEY,
  title TEXT NOT NULL,
  description TEXT,
  status TEXT NOT NULL DEFAULT 'pending'
    CHECK (status IN ('pending','in_progress','blocked','completed','cancelled')),
  priority TEXT NOT NULL DEFAULT 'medium'
    CHECK (priority IN ('low','medium','high','urgent')),
  due_date DATE,
  assignee_id BIGINT REFERENCES users(id) ON DELETE SET NULL,
  category_id BIGINT REFERENCES categories(id) ON DELETE SET NULL,
  creator_id BIGINT NOT NULL REFERENCES users(id) ON DELETE RESTRICT,
  is_active BOOLEAN NOT NULL DEFAULT true,
  version BIGINT NOT NULL DEFAULT 1,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_activities_creator ON activities(creator_id);
CREATE INDEX IF NOT EXISTS idx_activities_assignee ON activities(assignee_id);
CREATE INDEX IF NOT EXISTS idx_activities_category ON activities(category_id);
CREATE INDEX IF NOT EXISTS idx_activities_due_date ON activities(due_date);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return errors.Wrap(err, "activity: ensure table")
}

// Create inserts a; ID, timestamps and version must already be set.
func (r *ActivityRepo) Create(ctx context.Context, a *entity.Activity) error {
	const q = `INSERT INTO activities (id, title, description, status, priority, due_date, assignee_id,
		category_id, creator_id, is_active, version, created_at, updated_at)
		VALUES (:id, :title, :description, :status, :priority, :due_date, :assignee_id,
		:category_id, :creator_id, :is_active, :version, :created_at, :updated_at)`
	_, err := r.db.NamedExecContext(ctx, q, a)
	return errors.Wrap(err, "activity: insert")
}

// GetByID returns the activity or an error wrapping sql.ErrNoRows.
func (r *ActivityRepo) GetByID(ctx context.Context, id int64) (*entity.Activity, error) {
	var a entity.Activity
	if err := r.db.GetContext(ctx, &a, `SELECT `+columns+` FROM activities WHERE id = $1`, id); err != nil {
		return nil, errors.Wrapf(err, "activity: get %d", id)
	}
	return &a, nil
}

// Update writes every mutable column of a if the stored version still
// equals a.Version, then bumps the version. A lost race yields
// database.ErrStaleVersion.
func (r *ActivityRepo) Update(ctx context.Context, a *entity.Activity) (*entity.Activity, error) {
	const q = `UPDATE activities SET title = :title, description = :description, priority = :priority,
		due_date = :due_date, assignee_id = :assignee_id, category_id = :category_id,
		is_active = :is_active, version = version + 1, updated_at = :updated_at
		WHERE id = :id AND version = :version
		RETURNING ` + columns
	return r.returning(ctx, q, a)
}

// UpdateStatus moves the row from `from` to `to` only if neither status nor
// version changed since it was read.
func (r *ActivityRepo) UpdateStatus(ctx context.Context, id, version int64, from, to entity.Status, at time.Time) (*entity.Activity, error) {
	q := `UPDATE activities SET status = $1, version = version + 1, updated_at = $2
		WHERE id = $3 AND version = $4 AND status = $5
		RETURNING ` + columns
	var out entity.Activity
	err := r.db.GetContext(ctx, &out, q, to, at, id, version, from)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrStaleVersion
	}
	if err != nil {
		return nil, errors.Wrap(err, "activity: update status")
	}
	return &out, nil
}

func (r *ActivityRepo) returning(ctx context.Context, q string, a *entity.Activity) (*entity.Activity, error) {
	rows, err := r.db.NamedQueryContext(ctx, q, a)
	if err != nil {
		return nil, errors.Wrap(err, "activity: update")
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, errors.Wrap(err, "activity: update")
		}
		return nil, database.ErrStaleVersion
	}
	var out entity.Activity
	if err := rows.StructScan(&out); err != nil {
		return nil, errors.Wrap(err, "activity: scan")
	}
	return &out, nil
}

// Delete removes the row.
func (r *ActivityRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM activities WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "activity: delete")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrapf(sql.ErrNoRows, "activity: delete %d", id)
	}
	return nil
}

// List applies f and returns the requested page plus the total match count.
// Rows are ordered by due date (nulls last), then priority, most urgent first.
func (r *ActivityRepo) List(ctx context.Context, f entity.Filter) ([]*entity.Activity, int, error) {
	where, args := whereClause(f)

	var total int
	if err := r.db.GetContext(ctx, &total, r.db.Rebind(`SELECT COUNT(*) FROM activities`+where), args...); err != nil {
		return nil, 0, errors.Wrap(err, "activity: count")
	}

	q := r.db.Rebind(`SELECT ` + columns + ` FROM activities` + where +
		` ORDER BY due_date ASC NULLS LAST, ` + priorityRank + ` DESC, id ASC LIMIT ? OFFSET ?`)
	out := []*entity.Activity{}
	if err := r.db.SelectContext(ctx, &out, q, append(args, f.Limit, f.Skip)...); err != nil {
		return nil, 0, errors.Wrap(err, "activity: list")
	}
	return out, total, nil
}

func whereClause(f entity.Filter) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, vals ...any) {
		conds = append(conds, cond)
		args = append(args, vals...)
	}
	if !f.IncludeInactive {
		add("is_active = true")
	}
	if f.VisibleTo != nil {
		add("(creator_id = ? OR assignee_id = ?)", *f.VisibleTo, *f.VisibleTo)
	}
	if f.Status != nil {
		add("status = ?", *f.Status)
	}
	if f.Priority != nil {
		add("priority = ?", *f.Priority)
	}
	if f.CategoryID != nil {
		add("category_id = ?", *f.CategoryID)
	}
	if f.AssigneeID != nil {
		add("assignee_id = ?", *f.AssigneeID)
	}
	if f.DueFrom != nil {
		add("due_date >= ?", *f.DueFrom)
	}
	if f.DueTo != nil {
		add("due_date <= ?", *f.DueTo)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		pattern := "%" + database.EscapeLike(s) + "%"
		add("(title ILIKE ? OR description ILIKE ?)", pattern, pattern)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
