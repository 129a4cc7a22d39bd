package repo

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/ovaphlow/pitchfork/service-activity-go/internal/audit/entity"
)

// AuditRepo provides data access for the audit_records table.
type AuditRepo struct {
	db *sqlx.DB
}

func NewAuditRepo(db *sqlx.DB) *AuditRepo { return &AuditRepo{db: db} }

// EnsureTable creates audit_records if not exists. actor_id is not a foreign
// key: records outlive the accounts they name.
func (r *AuditRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS audit_records (
  id TEXT PRIMARY KEY,
  entity TEXT NOT NULL,
  entity_id BIGINT NOT NULL,
  action TEXT NOT NULL,
  field TEXT,
  previous_value TEXT,
  new_value TEXT,
  actor_id BIGINT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_records(entity, entity_id);
CREATE INDEX IF NOT EXISTS idx_audit_created_at ON audit_records(created_at);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return errors.Wrap(err, "audit: ensure table")
}

// Insert writes all records in one transaction.
func (r *AuditRepo) Insert(ctx context.Context, recs []*entity.Record) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "audit: begin")
	}
	defer tx.Rollback()
	const q = `INSERT INTO audit_records (id, entity, entity_id, action, field, previous_value, new_value, actor_id, created_at)
		VALUES (:id, :entity, :entity_id, :action, :field, :previous_value, :new_value, :actor_id, :created_at)`
	for _, rec := range recs {
		if _, err := tx.NamedExecContext(ctx, q, rec); err != nil {
			return errors.Wrap(err, "audit: insert")
		}
	}
	return errors.Wrap(tx.Commit(), "audit: commit")
}

// List returns records newest first and the total matching count.
func (r *AuditRepo) List(ctx context.Context, f entity.Filter) ([]*entity.Record, int, error) {
	var where []string
	var args []any
	if f.Entity != "" {
		where = append(where, "entity = ?")
		args = append(args, f.Entity)
	}
	if f.EntityID != nil {
		where = append(where, "entity_id = ?")
		args = append(args, *f.EntityID)
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, r.db.Rebind("SELECT COUNT(*) FROM audit_records"+cond), args...); err != nil {
		return nil, 0, errors.Wrap(err, "audit: count")
	}

	q := r.db.Rebind(`SELECT id, entity, entity_id, action, field, previous_value, new_value, actor_id, created_at
		FROM audit_records` + cond + ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`)
	rows := []*entity.Record{}
	if err := r.db.SelectContext(ctx, &rows, q, append(args, f.Limit, f.Skip)...); err != nil {
		return nil, 0, errors.Wrap(err, "audit: list")
	}
	return rows, total, nil
}
