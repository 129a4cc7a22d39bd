package category_test

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-activity-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-activity-go/internal/audit"
	auditentity "github.com/ovaphlow/pitchfork/service-activity-go/internal/audit/entity"
	"github.com/ovaphlow/pitchfork/service-activity-go/internal/category"
	"github.com/ovaphlow/pitchfork/service-activity-go/internal/category/entity"
	userentity "github.com/ovaphlow/pitchfork/service-activity-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-activity-go/pkg/optional"
)

type memStore struct {
	mu        sync.Mutex
	rows      map[int64]*entity.Category
	deleteErr error
	writes    int
}

func (m *memStore) Create(_ context.Context, c *entity.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.rows[c.ID] = &cp
	m.writes++
	return nil
}

func (m *memStore) GetByID(_ context.Context, id int64) (*entity.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[id]
	if !ok {
		return nil, errors.Wrap(sql.ErrNoRows, "category")
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) GetByName(_ context.Context, name string) (*entity.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.rows {
		if strings.EqualFold(c.Name, name) {
			cp := *c
			return &cp, nil
		}
	}
	return nil, errors.Wrap(sql.ErrNoRows, "category")
}

func (m *memStore) Update(_ context.Context, c *entity.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.rows[c.ID] = &cp
	m.writes++
	return nil
}

func (m *memStore) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.rows, id)
	return nil
}

func (m *memStore) List(_ context.Context, p entity.ListParams) ([]*entity.Category, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.Category
	for _, c := range m.rows {
		if c.Active || p.IncludeInactive {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, len(out), nil
}

type seqIDs struct{ n int64 }

func (s *seqIDs) Next() int64 { s.n++; return s.n }

var (
	admin    = &userentity.User{ID: 1, Role: userentity.RoleAdmin, Active: true}
	operator = &userentity.User{ID: 2, Role: userentity.RoleOperator, Active: true}
)

type fixture struct {
	store  *memStore
	events []auditentity.Event
	svc    *category.Service
}

func newFixture() *fixture {
	f := &fixture{store: &memStore{rows: map[int64]*entity.Category{}}}
	sink := audit.SinkFunc(func(_ context.Context, ev auditentity.Event) error {
		f.events = append(f.events, ev)
		return nil
	})
	clock := clockwork.NewFakeClockAt(time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC))
	f.svc = category.NewService(f.store, &seqIDs{}, clock, audit.NewEmitter(sink, nil), zap.NewNop().Sugar())
	return f
}

func TestCreateCategory(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	c, err := f.svc.Create(ctx, admin, category.CreateInput{Name: "  Design "})
	require.NoError(t, err)
	assert.Equal(t, "Design", c.Name)
	assert.Equal(t, entity.DefaultColor, c.Color)
	assert.True(t, c.Active)

	_, err = f.svc.Create(ctx, admin, category.CreateInput{Name: "design"})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = f.svc.Create(ctx, admin, category.CreateInput{Name: "Ops", Color: "red"})
	assert.ErrorIs(t, err, apperr.ErrValidationFailed)

	_, err = f.svc.Create(ctx, admin, category.CreateInput{Name: "Q"})
	assert.ErrorIs(t, err, apperr.ErrValidationFailed)

	long, err := f.svc.Create(ctx, admin, category.CreateInput{Name: strings.Repeat("ó", 100)})
	require.NoError(t, err)
	assert.Len(t, []rune(long.Name), 100)

	_, err = f.svc.Create(ctx, admin, category.CreateInput{Name: strings.Repeat("ó", 101)})
	assert.ErrorIs(t, err, apperr.ErrValidationFailed)

	_, err = f.svc.Create(ctx, operator, category.CreateInput{Name: "Mine"})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	require.Len(t, f.events, 2)
	assert.Equal(t, auditentity.ActionCreate, f.events[0].Action)
}

func TestOperatorsSeeOnlyActiveCategories(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	live, err := f.svc.Create(ctx, admin, category.CreateInput{Name: "Live"})
	require.NoError(t, err)
	old, err := f.svc.Create(ctx, admin, category.CreateInput{Name: "Old", Color: "#AABBCC"})
	require.NoError(t, err)
	require.NoError(t, f.svc.Delete(ctx, admin, old.ID, false))

	page, err := f.svc.List(ctx, operator, entity.ListParams{Limit: 100, IncludeInactive: true})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	page, err = f.svc.List(ctx, admin, entity.ListParams{Limit: 100, IncludeInactive: true})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)

	_, err = f.svc.Get(ctx, operator, live.ID)
	assert.NoError(t, err)
	_, err = f.svc.Get(ctx, operator, old.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	got, err := f.svc.Get(ctx, admin, old.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)
}

func TestUpdateCategory(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a, err := f.svc.Create(ctx, admin, category.CreateInput{Name: "Alpha"})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, admin, category.CreateInput{Name: "Beta"})
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, admin, a.ID, entity.Patch{Name: optional.Some("Beta")})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = f.svc.Update(ctx, operator, a.ID, entity.Patch{Color: optional.Some("#000000")})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.svc.Update(ctx, admin, a.ID, entity.Patch{Color: optional.Null[string]()})
	assert.ErrorIs(t, err, apperr.ErrValidationFailed)

	writes := f.store.writes
	same, err := f.svc.Update(ctx, admin, a.ID, entity.Patch{Name: optional.Some("Alpha")})
	require.NoError(t, err)
	assert.Equal(t, "Alpha", same.Name)
	assert.Equal(t, writes, f.store.writes)

	updated, err := f.svc.Update(ctx, admin, a.ID, entity.Patch{Name: optional.Some("Gamma"), Color: optional.Some("#112233")})
	require.NoError(t, err)
	assert.Equal(t, "Gamma", updated.Name)
	assert.Equal(t, "#112233", updated.Color)

	last := f.events[len(f.events)-1]
	assert.Equal(t, auditentity.ActionUpdate, last.Action)
	require.Len(t, last.Changes, 2)
	assert.Equal(t, "name", last.Changes[0].Field)
	assert.Equal(t, "color", last.Changes[1].Field)
}

func TestDeleteCategory(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c, err := f.svc.Create(ctx, admin, category.CreateInput{Name: "Temp"})
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.Delete(ctx, operator, c.ID, true), apperr.ErrForbidden)
	assert.ErrorIs(t, f.svc.Delete(ctx, admin, 404, true), apperr.ErrNotFound)

	f.store.deleteErr = &pq.Error{Code: "23503", Constraint: "activities_category_id_fkey"}
	assert.ErrorIs(t, f.svc.Delete(ctx, admin, c.ID, true), apperr.ErrConflict)

	f.store.deleteErr = errors.Wrap(sql.ErrNoRows, "category")
	assert.ErrorIs(t, f.svc.Delete(ctx, admin, c.ID, true), apperr.ErrNotFound, "row removed between load and delete")

	f.store.deleteErr = nil
	require.NoError(t, f.svc.Delete(ctx, admin, c.ID, true))
	_, err = f.svc.Get(ctx, admin, c.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, auditentity.ActionHardDelete, f.events[len(f.events)-1].Action)
}
