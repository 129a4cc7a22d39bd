package category

import (
	"context"
	"database/sql"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-activity-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-activity-go/internal/audit"
	auditentity "github.com/ovaphlow/pitchfork/service-activity-go/internal/audit/entity"
	"github.com/ovaphlow/pitchfork/service-activity-go/internal/category/entity"
	"github.com/ovaphlow/pitchfork/service-activity-go/internal/policy"
	userentity "github.com/ovaphlow/pitchfork/service-activity-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-activity-go/pkg/utilities"
)

// Store is the persistence the category service needs.
type Store interface {
	Create(ctx context.Context, c *entity.Category) error
	GetByID(ctx context.Context, id int64) (*entity.Category, error)
	GetByName(ctx context.Context, name string) (*entity.Category, error)
	Update(ctx context.Context, c *entity.Category) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, p entity.ListParams) ([]*entity.Category, int, error)
}

type Service struct {
	store  Store
	ids    utilities.IDSource
	clock  clockwork.Clock
	audit  *audit.Emitter
	logger *zap.SugaredLogger
}

func NewService(store Store, ids utilities.IDSource, clock clockwork.Clock, emitter *audit.Emitter, logger *zap.SugaredLogger) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{store: store, ids: ids, clock: clock, audit: emitter, logger: logger}
}

// CreateInput is the payload of a new category.
type CreateInput struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Color       string  `json:"color"`
}

// Validate will run validation rules
func (in CreateInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Name, validation.Required, validation.RuneLength(2, 100)),
		validation.Field(&in.Color, validation.Match(entity.ColorPattern)),
	)
}

func validatePatch(p entity.Patch) error {
	errs := validation.Errors{}
	if p.Name.Set {
		errs["name"] = validation.Validate(p.Name.V, validation.Required, validation.RuneLength(2, 100))
	}
	if p.Color.Set {
		errs["color"] = validation.Validate(p.Color.V, validation.Required, validation.Match(entity.ColorPattern))
	}
	if p.Active.Set && p.Active.Null {
		errs["is_active"] = errors.New("cannot be null")
	}
	return errs.Filter()
}

// List returns active categories; admins may include inactive ones.
func (s *Service) List(ctx context.Context, p *userentity.User, params entity.ListParams) (*entity.Page, error) {
	if _, err := policy.Authorize(p, policy.Request{Action: policy.ActionList, Resource: policy.ResourceCategory}); err != nil {
		return nil, err
	}
	params.IncludeInactive = params.IncludeInactive && p.IsAdmin()
	rows, total, err := s.store.List(ctx, params)
	if err != nil {
		return nil, apperr.FromStorage(err, "category: list")
	}
	return &entity.Page{Categories: rows, Total: total}, nil
}

// Get hides inactive categories from non-admins.
func (s *Service) Get(ctx context.Context, p *userentity.User, id int64) (*entity.Category, error) {
	if _, err := policy.Authorize(p, policy.Request{Action: policy.ActionRead, Resource: policy.ResourceCategory}); err != nil {
		return nil, err
	}
	c, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.Active && !p.IsAdmin() {
		return nil, apperr.NotFound("category", id)
	}
	return c, nil
}

func (s *Service) Create(ctx context.Context, p *userentity.User, in CreateInput) (*entity.Category, error) {
	if _, err := policy.Authorize(p, policy.Request{Action: policy.ActionCreate, Resource: policy.ResourceCategory}); err != nil {
		return nil, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if err := in.Validate(); err != nil {
		return nil, apperr.FromValidation(err)
	}
	if err := s.ensureNameFree(ctx, in.Name, 0); err != nil {
		return nil, err
	}
	c := &entity.Category{
		ID:          s.ids.Next(),
		Name:        in.Name,
		Description: in.Description,
		Color:       in.Color,
		Active:      true,
		CreatedAt:   s.clock.Now().UTC(),
	}
	if c.Color == "" {
		c.Color = entity.DefaultColor
	}
	if err := s.store.Create(ctx, c); err != nil {
		return nil, apperr.FromStorage(err, "category: create")
	}
	s.audit.Emit(ctx, auditentity.Event{
		Entity: auditentity.EntityCategory, EntityID: c.ID, Action: auditentity.ActionCreate, ActorID: p.ID,
	})
	return c, nil
}

func (s *Service) Update(ctx context.Context, p *userentity.User, id int64, patch entity.Patch) (*entity.Category, error) {
	c, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := policy.Authorize(p, policy.Request{Action: policy.ActionUpdate, Resource: policy.ResourceCategory}); err != nil {
		return nil, err
	}
	if patch.Name.Set {
		patch.Name.V = strings.TrimSpace(patch.Name.V)
	}
	if err := validatePatch(patch); err != nil {
		return nil, apperr.FromValidation(err)
	}
	if patch.Name.Set && patch.Name.V != c.Name {
		if err := s.ensureNameFree(ctx, patch.Name.V, c.ID); err != nil {
			return nil, err
		}
	}

	var changes []auditentity.Change
	if prev := c.Name; patch.Name.Apply(&c.Name) && prev != c.Name {
		changes = append(changes, auditentity.Change{Field: "name", Previous: audit.Str(prev), New: audit.Str(c.Name)})
	}
	if prev := c.Description; patch.Description.ApplyPtr(&c.Description) && !sameText(prev, c.Description) {
		changes = append(changes, auditentity.Change{Field: "description", Previous: prev, New: c.Description})
	}
	if prev := c.Color; patch.Color.Apply(&c.Color) && prev != c.Color {
		changes = append(changes, auditentity.Change{Field: "color", Previous: audit.Str(prev), New: audit.Str(c.Color)})
	}
	if prev := c.Active; patch.Active.Apply(&c.Active) && prev != c.Active {
		changes = append(changes, audit.BoolChange("is_active", prev, c.Active))
	}

	if len(changes) == 0 {
		return c, nil
	}
	if err := s.store.Update(ctx, c); err != nil {
		return nil, apperr.FromStorage(err, "category: update")
	}
	s.audit.Emit(ctx, auditentity.Event{
		Entity: auditentity.EntityCategory, EntityID: c.ID, Action: auditentity.ActionUpdate, ActorID: p.ID, Changes: changes,
	})
	return c, nil
}

// Delete deactivates the category, or removes it when hard is set.
func (s *Service) Delete(ctx context.Context, p *userentity.User, id int64, hard bool) error {
	c, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if _, err := policy.Authorize(p, policy.Request{Action: policy.ActionDelete, Resource: policy.ResourceCategory}); err != nil {
		return err
	}
	action := auditentity.ActionSoftDelete
	if hard {
		action = auditentity.ActionHardDelete
		if err := s.store.Delete(ctx, c.ID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperr.NotFound("category", id)
			}
			return apperr.FromStorageDelete(err, "category: delete")
		}
	} else {
		if !c.Active {
			return nil
		}
		c.Active = false
		if err := s.store.Update(ctx, c); err != nil {
			return apperr.FromStorage(err, "category: deactivate")
		}
	}
	s.logger.Infow("category deleted", "category_id", c.ID, "hard", hard, "actor_id", p.ID)
	s.audit.Emit(ctx, auditentity.Event{
		Entity: auditentity.EntityCategory, EntityID: c.ID, Action: action, ActorID: p.ID,
	})
	return nil
}

func (s *Service) load(ctx context.Context, id int64) (*entity.Category, error) {
	c, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("category", id)
		}
		return nil, apperr.FromStorage(err, "category: get")
	}
	return c, nil
}

func (s *Service) ensureNameFree(ctx context.Context, name string, self int64) error {
	existing, err := s.store.GetByName(ctx, name)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil
	case err != nil:
		return apperr.FromStorage(err, "category: get by name")
	case existing.ID != self:
		return apperr.Conflict("a category named " + name + " already exists")
	default:
		return nil
	}
}

func sameText(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
