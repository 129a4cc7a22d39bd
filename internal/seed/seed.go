// Package seed creates the bootstrap admin account and default categories.
// Existing rows are left untouched, so running it on every start is safe.
package seed

import (
	"context"
	"database/sql"
	"os"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-activity-go/internal/auth"
	catentity "github.com/ovaphlow/pitchfork/service-activity-go/internal/category/entity"
	userentity "github.com/ovaphlow/pitchfork/service-activity-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-activity-go/pkg/utilities"
)

type Config struct {
	AdminUsername     string
	AdminEmail        string
	AdminPassword     string
	DefaultCategories bool
}

// ConfigFromEnv reads SEED_ADMIN_* and SEED_DEFAULT_CATEGORIES.
func ConfigFromEnv() Config {
	username := os.Getenv("SEED_ADMIN_USERNAME")
	if username == "" {
		username = "admin"
	}
	return Config{
		AdminUsername:     username,
		AdminEmail:        strings.ToLower(strings.TrimSpace(os.Getenv("SEED_ADMIN_EMAIL"))),
		AdminPassword:     os.Getenv("SEED_ADMIN_PASSWORD"),
		DefaultCategories: os.Getenv("SEED_DEFAULT_CATEGORIES") == "1",
	}
}

// DefaultCategories are created when Config.DefaultCategories is set.
var DefaultCategories = []catentity.Category{
	{Name: "Development", Description: strPtr("Development tasks"), Color: "#3498db"},
	{Name: "Design", Description: strPtr("UI/UX design tasks"), Color: "#9b59b6"},
	{Name: "Testing", Description: strPtr("Testing and QA"), Color: "#27ae60"},
	{Name: "Documentation", Description: strPtr("Technical documentation"), Color: "#f39c12"},
}

type UserStore interface {
	GetByEmail(ctx context.Context, email string) (*userentity.User, error)
	GetByUsername(ctx context.Context, username string) (*userentity.User, error)
	Create(ctx context.Context, u *userentity.User) error
}

type CategoryStore interface {
	GetByName(ctx context.Context, name string) (*catentity.Category, error)
	Create(ctx context.Context, c *catentity.Category) error
}

type Seeder struct {
	users      UserStore
	categories CategoryStore
	hasher     auth.PasswordHasher
	ids        utilities.IDSource
	clock      clockwork.Clock
	logger     *zap.SugaredLogger
}

func NewSeeder(users UserStore, categories CategoryStore, hasher auth.PasswordHasher, ids utilities.IDSource, clock clockwork.Clock, logger *zap.SugaredLogger) *Seeder {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Seeder{users: users, categories: categories, hasher: hasher, ids: ids, clock: clock, logger: logger}
}

// Run seeds what cfg asks for. The admin is skipped unless both email and
// password are configured.
func (s *Seeder) Run(ctx context.Context, cfg Config) error {
	var err error
	if cfg.AdminEmail != "" && cfg.AdminPassword != "" {
		err = multierr.Append(err, s.admin(ctx, cfg))
	}
	if cfg.DefaultCategories {
		for _, c := range DefaultCategories {
			err = multierr.Append(err, s.category(ctx, c))
		}
	}
	return err
}

func (s *Seeder) admin(ctx context.Context, cfg Config) error {
	_, err := s.users.GetByEmail(ctx, cfg.AdminEmail)
	if exists, err := found(err); err != nil || exists {
		return err
	}
	_, err = s.users.GetByUsername(ctx, cfg.AdminUsername)
	if exists, err := found(err); err != nil || exists {
		return err
	}
	hash, err := s.hasher.Hash(cfg.AdminPassword)
	if err != nil {
		return errors.Wrap(err, "seed: hash admin password")
	}
	now := s.clock.Now().UTC()
	u := &userentity.User{
		ID:           s.ids.Next(),
		Username:     cfg.AdminUsername,
		Email:        cfg.AdminEmail,
		PasswordHash: hash,
		Role:         userentity.RoleAdmin,
		Active:       true,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return errors.Wrap(err, "seed: create admin")
	}
	s.logger.Infow("seeded admin", "user_id", u.ID, "username", u.Username)
	return nil
}

func (s *Seeder) category(ctx context.Context, tmpl catentity.Category) error {
	_, err := s.categories.GetByName(ctx, tmpl.Name)
	if exists, err := found(err); err != nil || exists {
		return err
	}
	c := tmpl
	c.ID = s.ids.Next()
	c.Active = true
	c.CreatedAt = s.clock.Now().UTC()
	if err := s.categories.Create(ctx, &c); err != nil {
		return errors.Wrapf(err, "seed: create category %s", c.Name)
	}
	s.logger.Infow("seeded category", "category_id", c.ID, "name", c.Name)
	return nil
}

// found turns a lookup result into (exists, err), treating sql.ErrNoRows as absent.
func found(err error) (bool, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func strPtr(s string) *string { return &s }
