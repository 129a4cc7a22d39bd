package user

import (
	"context"
	"database/sql"
	"regexp"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-activity-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-activity-go/internal/audit"
	auditentity "github.com/ovaphlow/pitchfork/service-activity-go/internal/audit/entity"
	"github.com/ovaphlow/pitchfork/service-activity-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-activity-go/internal/policy"
	"github.com/ovaphlow/pitchfork/service-activity-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-activity-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-activity-go/pkg/utilities"
)

// Store is the persistence the user service needs.
type Store interface {
	Create(ctx context.Context, u *entity.User) error
	GetByID(ctx context.Context, id int64) (*entity.User, error)
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
	GetByUsername(ctx context.Context, username string) (*entity.User, error)
	Update(ctx context.Context, u *entity.User) (*entity.User, error)
	UpdatePassword(ctx context.Context, id int64, hash string, at time.Time) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, p entity.ListParams) ([]*entity.User, int, error)
}

// UserService orchestrates registration and user lifecycle flows.
type UserService struct {
	store  Store
	hasher auth.PasswordHasher
	ids    utilities.IDSource
	clock  clockwork.Clock
	audit  *audit.Emitter
	logger *zap.SugaredLogger
}

func NewUserService(store Store, hasher auth.PasswordHasher, ids utilities.IDSource, clock clockwork.Clock, emitter *audit.Emitter, logger *zap.SugaredLogger) *UserService {
	if hasher == nil {
		hasher = auth.BcryptHasher{}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &UserService{store: store, hasher: hasher, ids: ids, clock: clock, audit: emitter, logger: logger}
}

// RegisterInput is the payload of self registration and admin creation.
// Role is ignored for self registration.
type RegisterInput struct {
	Username string      `json:"username"`
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Role     entity.Role `json:"role"`
}

// usernamePattern keeps usernames distinguishable from email handles at login.
var usernamePattern = regexp.MustCompile(`^[^@]+$`)

func usernameRules() []validation.Rule {
	return []validation.Rule{
		validation.Required,
		validation.RuneLength(2, 50),
		validation.Match(usernamePattern).Error("must not contain '@'"),
	}
}

// Validate will run validation rules
func (in RegisterInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Username, usernameRules()...),
		validation.Field(&in.Email, validation.Required, is.Email),
		validation.Field(&in.Password, validation.Required, validation.Length(6, 72)),
		validation.Field(&in.Role, validation.In(entity.RoleAdmin, entity.RoleOperator)),
	)
}

// PasswordInput changes a secret. Current is required when changing one's own.
type PasswordInput struct {
	Current string `json:"current_password"`
	New     string `json:"new_password"`
}

// Validate will run validation rules
func (in PasswordInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.New, validation.Required, validation.Length(6, 72)),
	)
}

func validatePatch(p entity.Patch) error {
	errs := validation.Errors{}
	if p.Username.Set {
		errs["username"] = validation.Validate(p.Username.V, usernameRules()...)
	}
	if p.Email.Set {
		errs["email"] = validation.Validate(p.Email.V, validation.Required, is.Email)
	}
	if p.Role.Set {
		errs["role"] = validation.Validate(p.Role.V, validation.Required, validation.In(entity.RoleAdmin, entity.RoleOperator))
	}
	if p.Active.Set && p.Active.Null {
		errs["is_active"] = errors.New("cannot be null")
	}
	return errs.Filter()
}

// Register creates an active operator account.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*entity.User, error) {
	in.Role = entity.RoleOperator
	u, err := s.create(ctx, in)
	if err != nil {
		return nil, err
	}
	s.audit.Emit(ctx, auditentity.Event{
		Entity: auditentity.EntityUser, EntityID: u.ID, Action: auditentity.ActionRegister, ActorID: u.ID,
	})
	return u, nil
}

// Create is the admin path; role defaults to operator.
func (s *UserService) Create(ctx context.Context, p *entity.User, in RegisterInput) (*entity.User, error) {
	if _, err := policy.Authorize(p, policy.Request{Action: policy.ActionCreate, Resource: policy.ResourceUser}); err != nil {
		return nil, err
	}
	if in.Role == "" {
		in.Role = entity.RoleOperator
	}
	u, err := s.create(ctx, in)
	if err != nil {
		return nil, err
	}
	s.audit.Emit(ctx, auditentity.Event{
		Entity: auditentity.EntityUser, EntityID: u.ID, Action: auditentity.ActionCreate, ActorID: p.ID,
	})
	return u, nil
}

func (s *UserService) create(ctx context.Context, in RegisterInput) (*entity.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = normalizeEmail(in.Email)
	if err := in.Validate(); err != nil {
		return nil, apperr.FromValidation(err)
	}
	if err := s.ensureHandlesFree(ctx, in.Username, in.Email, 0); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	now := s.clock.Now().UTC()
	u := &entity.User{
		ID:           s.ids.Next(),
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         in.Role,
		Active:       true,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Create(ctx, u); err != nil {
		return nil, apperr.FromStorage(err, "user: create")
	}
	s.logger.Infow("user created", "user_id", u.ID, "role", u.Role)
	return u, nil
}

func (s *UserService) Get(ctx context.Context, p *entity.User, id int64) (*entity.User, error) {
	u, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := policy.Authorize(p, policy.Request{Action: policy.ActionRead, Resource: policy.ResourceUser, TargetID: u.ID}); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *UserService) List(ctx context.Context, p *entity.User, params entity.ListParams) (*entity.Page, error) {
	if _, err := policy.Authorize(p, policy.Request{Action: policy.ActionList, Resource: policy.ResourceUser}); err != nil {
		return nil, err
	}
	rows, total, err := s.store.List(ctx, params)
	if err != nil {
		return nil, apperr.FromStorage(err, "user: list")
	}
	return &entity.Page{
		Users:   rows,
		Total:   total,
		Page:    utilities.PageNumber(params.Skip, params.Limit),
		PerPage: params.Limit,
	}, nil
}

// Update applies the set fields of patch. Principals may change their own
// handles; only admins change roles and active flags, never their own.
func (s *UserService) Update(ctx context.Context, p *entity.User, id int64, patch entity.Patch) (*entity.User, error) {
	u, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := policy.Authorize(p, policy.Request{
		Action: policy.ActionUpdate, Resource: policy.ResourceUser, TargetID: u.ID, Fields: patch.Fields(),
	}); err != nil {
		return nil, err
	}
	if patch.Username.Set {
		patch.Username.V = strings.TrimSpace(patch.Username.V)
	}
	if patch.Email.Set {
		patch.Email.V = normalizeEmail(patch.Email.V)
	}
	if err := validatePatch(patch); err != nil {
		return nil, apperr.FromValidation(err)
	}
	username, email := "", ""
	if patch.Username.Set && patch.Username.V != u.Username {
		username = patch.Username.V
	}
	if patch.Email.Set && patch.Email.V != u.Email {
		email = patch.Email.V
	}
	if err := s.ensureHandlesFree(ctx, username, email, u.ID); err != nil {
		return nil, err
	}

	var changes []auditentity.Change
	if prev := u.Username; patch.Username.Apply(&u.Username) && prev != u.Username {
		changes = append(changes, auditentity.Change{Field: "username", Previous: audit.Str(prev), New: audit.Str(u.Username)})
	}
	if prev := u.Email; patch.Email.Apply(&u.Email) && prev != u.Email {
		changes = append(changes, auditentity.Change{Field: "email", Previous: audit.Str(prev), New: audit.Str(u.Email)})
	}
	if prev := u.Role; patch.Role.Apply(&u.Role) && prev != u.Role {
		changes = append(changes, auditentity.Change{Field: "role", Previous: audit.Str(string(prev)), New: audit.Str(string(u.Role))})
	}
	if prev := u.Active; patch.Active.Apply(&u.Active) && prev != u.Active {
		changes = append(changes, audit.BoolChange("is_active", prev, u.Active))
	}
	if len(changes) == 0 {
		return u, nil
	}

	u.UpdatedAt = s.clock.Now().UTC()
	updated, err := s.store.Update(ctx, u)
	if err != nil {
		return nil, s.writeErr(err, "user: update")
	}
	s.audit.Emit(ctx, auditentity.Event{
		Entity: auditentity.EntityUser, EntityID: u.ID, Action: auditentity.ActionUpdate, ActorID: p.ID, Changes: changes,
	})
	return updated, nil
}

// ChangePassword replaces the secret of id. A principal changing its own
// secret must prove the current one.
func (s *UserService) ChangePassword(ctx context.Context, p *entity.User, id int64, in PasswordInput) error {
	u, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	d, err := policy.Authorize(p, policy.Request{Action: policy.ActionChangePassword, Resource: policy.ResourceUser, TargetID: u.ID})
	if err != nil {
		return err
	}
	if err := in.Validate(); err != nil {
		return apperr.FromValidation(err)
	}
	if d.RequireCurrentSecret && !s.hasher.Verify(in.Current, u.PasswordHash) {
		return apperr.ValidationFailed("current password is incorrect", map[string]any{"current_password": "does not match"})
	}
	hash, err := s.hasher.Hash(in.New)
	if err != nil {
		return apperr.Internal(err)
	}
	if err := s.store.UpdatePassword(ctx, u.ID, hash, s.clock.Now().UTC()); err != nil {
		return apperr.FromStorage(err, "user: update password")
	}
	s.audit.Emit(ctx, auditentity.Event{
		Entity: auditentity.EntityUser, EntityID: u.ID, Action: auditentity.ActionPasswordChange, ActorID: p.ID,
	})
	return nil
}

// Delete deactivates the account, or removes it when hard is set. Removal
// of a user that still owns activities is a Conflict.
func (s *UserService) Delete(ctx context.Context, p *entity.User, id int64, hard bool) error {
	u, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if _, err := policy.Authorize(p, policy.Request{Action: policy.ActionDelete, Resource: policy.ResourceUser, TargetID: u.ID}); err != nil {
		return err
	}
	action := auditentity.ActionSoftDelete
	if hard {
		action = auditentity.ActionHardDelete
		if err := s.store.Delete(ctx, u.ID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperr.NotFound("user", id)
			}
			return apperr.FromStorageDelete(err, "user: delete")
		}
	} else {
		if !u.Active {
			return nil
		}
		u.Active = false
		u.UpdatedAt = s.clock.Now().UTC()
		if _, err := s.store.Update(ctx, u); err != nil {
			return s.writeErr(err, "user: deactivate")
		}
	}
	s.logger.Infow("user deleted", "user_id", u.ID, "hard", hard, "actor_id", p.ID)
	s.audit.Emit(ctx, auditentity.Event{
		Entity: auditentity.EntityUser, EntityID: u.ID, Action: action, ActorID: p.ID,
	})
	return nil
}

func (s *UserService) load(ctx context.Context, id int64) (*entity.User, error) {
	u, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("user", id)
		}
		return nil, apperr.FromStorage(err, "user: get")
	}
	return u, nil
}

// ensureHandlesFree checks non-empty handles against other accounts.
func (s *UserService) ensureHandlesFree(ctx context.Context, username, email string, self int64) error {
	if username != "" {
		u, err := s.store.GetByUsername(ctx, username)
		if err := handleFree(u, err, self, "username already registered"); err != nil {
			return err
		}
	}
	if email != "" {
		u, err := s.store.GetByEmail(ctx, email)
		if err := handleFree(u, err, self, "email already registered"); err != nil {
			return err
		}
	}
	return nil
}

func handleFree(owner *entity.User, err error, self int64, msg string) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil
	case err != nil:
		return apperr.FromStorage(err, "user: check handle")
	case owner.ID != self:
		return apperr.Conflict(msg)
	default:
		return nil
	}
}

func (s *UserService) writeErr(err error, op string) error {
	if errors.Is(err, database.ErrStaleVersion) {
		return apperr.Conflict("user was modified concurrently, reload and retry")
	}
	return apperr.FromStorage(err, op)
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
