// Package activity orchestrates access policy, the status lifecycle and
// storage for activities.
package activity

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-activity-go/internal/activity/entity"
	"github.com/ovaphlow/pitchfork/service-activity-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-activity-go/internal/audit"
	auditentity "github.com/ovaphlow/pitchfork/service-activity-go/internal/audit/entity"
	catentity "github.com/ovaphlow/pitchfork/service-activity-go/internal/category/entity"
	"github.com/ovaphlow/pitchfork/service-activity-go/internal/policy"
	userentity "github.com/ovaphlow/pitchfork/service-activity-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-activity-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-activity-go/pkg/utilities"
)

// Store is the persistence the activity service needs. Lookups of missing
// rows return an error wrapping sql.ErrNoRows; version-checked writes that
// lose a race return database.ErrStaleVersion.
type Store interface {
	Create(ctx context.Context, a *entity.Activity) error
	GetByID(ctx context.Context, id int64) (*entity.Activity, error)
	Update(ctx context.Context, a *entity.Activity) (*entity.Activity, error)
	UpdateStatus(ctx context.Context, id, version int64, from, to entity.Status, at time.Time) (*entity.Activity, error)
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, f entity.Filter) ([]*entity.Activity, int, error)
}

// UserLookup resolves assignee references.
type UserLookup interface {
	GetByID(ctx context.Context, id int64) (*userentity.User, error)
}

// CategoryLookup resolves category references.
type CategoryLookup interface {
	GetByID(ctx context.Context, id int64) (*catentity.Category, error)
}

type Service struct {
	store      Store
	users      UserLookup
	categories CategoryLookup
	ids        utilities.IDSource
	clock      clockwork.Clock
	audit      *audit.Emitter
	logger     *zap.SugaredLogger
}

func NewService(store Store, users UserLookup, categories CategoryLookup, ids utilities.IDSource,
	clock clockwork.Clock, emitter *audit.Emitter, logger *zap.SugaredLogger) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{store: store, users: users, categories: categories, ids: ids, clock: clock, audit: emitter, logger: logger}
}

// CreateInput is the payload of a new activity. Status is always pending
// and the creator is the caller.
type CreateInput struct {
	Title       string          `json:"title"`
	Description *string         `json:"description"`
	Priority    entity.Priority `json:"priority"`
	DueDate     *entity.Date    `json:"due_date"`
	AssigneeID  *int64          `json:"assignee_id"`
	CategoryID  *int64          `json:"category_id"`
}

func priorityRule() validation.Rule {
	vals := make([]interface{}, len(entity.Priorities))
	for i, p := range entity.Priorities {
		vals[i] = p
	}
	return validation.In(vals...)
}

// Validate will run validation rules
func (in CreateInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Title, validation.Required, validation.RuneLength(2, 200)),
		validation.Field(&in.Priority, priorityRule()),
	)
}

func validatePatch(p entity.Patch) error {
	errs := validation.Errors{}
	if p.Title.Set {
		errs["title"] = validation.Validate(p.Title.V, validation.Required, validation.RuneLength(2, 200))
	}
	if p.Priority.Set {
		errs["priority"] = validation.Validate(p.Priority.V, validation.Required, priorityRule())
	}
	if p.Active.Set && p.Active.Null {
		errs["is_active"] = errors.New("cannot be null")
	}
	return errs.Filter()
}

func (s *Service) Create(ctx context.Context, p *userentity.User, in CreateInput) (*entity.Activity, error) {
	if _, err := policy.Authorize(p, policy.Request{Action: policy.ActionCreate, Resource: policy.ResourceActivity, CreatorID: p.ID}); err != nil {
		return nil, err
	}
	in.Title = strings.TrimSpace(in.Title)
	if err := in.Validate(); err != nil {
		return nil, apperr.FromValidation(err)
	}
	if in.Priority == "" {
		in.Priority = entity.PriorityMedium
	}
	assignee := in.AssigneeID
	if assignee == nil {
		id := p.ID
		assignee = &id
	}
	if err := s.checkAssignee(ctx, assignee); err != nil {
		return nil, err
	}
	if err := s.checkCategory(ctx, in.CategoryID); err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	a := &entity.Activity{
		ID:          s.ids.Next(),
		Title:       in.Title,
		Description: in.Description,
		Status:      entity.StatusPending,
		Priority:    in.Priority,
		DueDate:     in.DueDate,
		AssigneeID:  assignee,
		CategoryID:  in.CategoryID,
		CreatorID:   p.ID,
		Active:      true,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Create(ctx, a); err != nil {
		return nil, apperr.FromStorage(err, "activity: create")
	}
	s.logger.Debugw("activity created", "activity_id", a.ID, "creator_id", p.ID)
	s.audit.Emit(ctx, auditentity.Event{
		Entity: auditentity.EntityActivity, EntityID: a.ID, Action: auditentity.ActionCreate, ActorID: p.ID,
	})
	return a, nil
}

// Get returns the activity when p created it, is assigned to it or is an admin.
func (s *Service) Get(ctx context.Context, p *userentity.User, id int64) (*entity.Activity, error) {
	a, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := policy.Authorize(p, targetRequest(policy.ActionRead, a)); err != nil {
		return nil, err
	}
	return a, nil
}

// List narrows f to the rows p may see; it never fails for visibility.
func (s *Service) List(ctx context.Context, p *userentity.User, f entity.Filter) (*entity.Page, error) {
	if f.Status != nil && !f.Status.Valid() {
		return nil, apperr.ValidationFailed("invalid status", map[string]any{"status": *f.Status})
	}
	if f.Priority != nil && !f.Priority.Valid() {
		return nil, apperr.ValidationFailed("invalid priority", map[string]any{"priority": *f.Priority})
	}
	f.VisibleTo = policy.ActivityScope(p)
	rows, total, err := s.store.List(ctx, f)
	if err != nil {
		return nil, apperr.FromStorage(err, "activity: list")
	}
	return &entity.Page{
		Activities: rows,
		Total:      total,
		Page:       utilities.PageNumber(f.Skip, f.Limit),
		PerPage:    f.Limit,
	}, nil
}

func (s *Service) Update(ctx context.Context, p *userentity.User, id int64, patch entity.Patch) (*entity.Activity, error) {
	a, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := policy.Authorize(p, targetRequest(policy.ActionUpdate, a)); err != nil {
		return nil, err
	}
	if patch.Title.Set {
		patch.Title.V = strings.TrimSpace(patch.Title.V)
	}
	if err := validatePatch(patch); err != nil {
		return nil, apperr.FromValidation(err)
	}
	if patch.AssigneeID.Set {
		if err := s.checkAssignee(ctx, patch.AssigneeID.Ptr()); err != nil {
			return nil, err
		}
	}
	if patch.CategoryID.Set {
		if err := s.checkCategory(ctx, patch.CategoryID.Ptr()); err != nil {
			return nil, err
		}
	}

	changes := applyPatch(a, patch)
	if len(changes) == 0 {
		return a, nil
	}
	a.UpdatedAt = s.clock.Now().UTC()
	updated, err := s.store.Update(ctx, a)
	if err != nil {
		return nil, s.writeErr(err, "activity: update")
	}
	s.audit.Emit(ctx, auditentity.Event{
		Entity: auditentity.EntityActivity, EntityID: a.ID, Action: auditentity.ActionUpdate, ActorID: p.ID, Changes: changes,
	})
	return updated, nil
}

// ChangeStatus moves the activity to `to` if the lifecycle permits it from
// the stored status. The write only succeeds if nobody changed the row since
// it was read.
func (s *Service) ChangeStatus(ctx context.Context, p *userentity.User, id int64, to entity.Status) (*entity.Activity, error) {
	a, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := policy.Authorize(p, targetRequest(policy.ActionChangeStatus, a)); err != nil {
		return nil, err
	}
	if !to.Valid() {
		return nil, apperr.ValidationFailed("invalid status", map[string]any{"status": to})
	}
	if err := ValidateTransition(a.Status, to); err != nil {
		return nil, err
	}
	updated, err := s.store.UpdateStatus(ctx, a.ID, a.Version, a.Status, to, s.clock.Now().UTC())
	if err != nil {
		return nil, s.writeErr(err, "activity: change status")
	}
	s.logger.Debugw("activity status changed", "activity_id", a.ID, "from", a.Status, "to", to, "actor_id", p.ID)
	s.audit.Emit(ctx, auditentity.Event{
		Entity: auditentity.EntityActivity, EntityID: a.ID, Action: auditentity.ActionStatusChange, ActorID: p.ID,
		Changes: []auditentity.Change{{Field: "status", Previous: audit.Str(string(a.Status)), New: audit.Str(string(to))}},
	})
	return updated, nil
}

// Delete deactivates the activity, or removes it when hard is set. Both are
// reserved to the creator and admins.
func (s *Service) Delete(ctx context.Context, p *userentity.User, id int64, hard bool) error {
	a, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if _, err := policy.Authorize(p, targetRequest(policy.ActionDelete, a)); err != nil {
		return err
	}
	action := auditentity.ActionSoftDelete
	if hard {
		action = auditentity.ActionHardDelete
		if err := s.store.Delete(ctx, a.ID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperr.NotFound("activity", id)
			}
			return apperr.FromStorageDelete(err, "activity: delete")
		}
	} else {
		if !a.Active {
			return nil
		}
		a.Active = false
		a.UpdatedAt = s.clock.Now().UTC()
		if _, err := s.store.Update(ctx, a); err != nil {
			return s.writeErr(err, "activity: deactivate")
		}
	}
	s.audit.Emit(ctx, auditentity.Event{
		Entity: auditentity.EntityActivity, EntityID: a.ID, Action: action, ActorID: p.ID,
	})
	return nil
}

func targetRequest(action policy.Action, a *entity.Activity) policy.Request {
	return policy.Request{
		Action:     action,
		Resource:   policy.ResourceActivity,
		CreatorID:  a.CreatorID,
		AssigneeID: a.AssigneeID,
	}
}

func (s *Service) load(ctx context.Context, id int64) (*entity.Activity, error) {
	a, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("activity", id)
		}
		return nil, apperr.FromStorage(err, "activity: get")
	}
	return a, nil
}

func (s *Service) writeErr(err error, op string) error {
	if errors.Is(err, database.ErrStaleVersion) {
		return apperr.Conflict("activity was modified concurrently, reload and retry")
	}
	return apperr.FromStorage(err, op)
}

// checkAssignee requires a referenced assignee to exist and be active.
func (s *Service) checkAssignee(ctx context.Context, id *int64) error {
	if id == nil {
		return nil
	}
	u, err := s.users.GetByID(ctx, *id)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return apperr.FromStorage(err, "activity: load assignee")
	}
	if err != nil || !u.Active {
		return apperr.ValidationFailed("assigned user not found or inactive", map[string]any{"assignee_id": *id})
	}
	return nil
}

// checkCategory requires a referenced category to exist and be active.
func (s *Service) checkCategory(ctx context.Context, id *int64) error {
	if id == nil {
		return nil
	}
	c, err := s.categories.GetByID(ctx, *id)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return apperr.FromStorage(err, "activity: load category")
	}
	if err != nil || !c.Active {
		return apperr.ValidationFailed("category not found or inactive", map[string]any{"category_id": *id})
	}
	return nil
}

// applyPatch writes the set fields of patch into a and reports what changed.
func applyPatch(a *entity.Activity, patch entity.Patch) []auditentity.Change {
	var changes []auditentity.Change
	if prev := a.Title; patch.Title.Apply(&a.Title) && prev != a.Title {
		changes = append(changes, auditentity.Change{Field: "title", Previous: audit.Str(prev), New: audit.Str(a.Title)})
	}
	if prev := a.Description; patch.Description.ApplyPtr(&a.Description) && !equalPtr(prev, a.Description) {
		changes = append(changes, auditentity.Change{Field: "description", Previous: prev, New: a.Description})
	}
	if prev := a.Priority; patch.Priority.Apply(&a.Priority) && prev != a.Priority {
		changes = append(changes, auditentity.Change{Field: "priority", Previous: audit.Str(string(prev)), New: audit.Str(string(a.Priority))})
	}
	if prev := a.DueDate; patch.DueDate.ApplyPtr(&a.DueDate) && !equalDate(prev, a.DueDate) {
		changes = append(changes, auditentity.Change{Field: "due_date", Previous: dateStr(prev), New: dateStr(a.DueDate)})
	}
	if prev := a.AssigneeID; patch.AssigneeID.ApplyPtr(&a.AssigneeID) && !equalPtr(prev, a.AssigneeID) {
		changes = append(changes, auditentity.Change{Field: "assignee_id", Previous: idStr(prev), New: idStr(a.AssigneeID)})
	}
	if prev := a.CategoryID; patch.CategoryID.ApplyPtr(&a.CategoryID) && !equalPtr(prev, a.CategoryID) {
		changes = append(changes, auditentity.Change{Field: "category_id", Previous: idStr(prev), New: idStr(a.CategoryID)})
	}
	if prev := a.Active; patch.Active.Apply(&a.Active) && prev != a.Active {
		changes = append(changes, audit.BoolChange("is_active", prev, a.Active))
	}
	return changes
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalDate(a, b *entity.Date) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(b.Time)
}

func dateStr(d *entity.Date) *string {
	if d == nil {
		return nil
	}
	return audit.Str(d.String())
}

func idStr(id *int64) *string {
	if id == nil {
		return nil
	}
	return audit.Str(strconv.FormatInt(*id, 10))
}
