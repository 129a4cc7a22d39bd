package activity_test

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-activity-go/internal/activity"
	"github.com/ovaphlow/pitchfork/service-activity-go/internal/activity/entity"
	"github.com/ovaphlow/pitchfork/service-activity-go/internal/audit"
	auditentity "github.com/ovaphlow/pitchfork/service-activity-go/internal/audit/entity"
	catentity "github.com/ovaphlow/pitchfork/service-activity-go/internal/category/entity"
	userentity "github.com/ovaphlow/pitchfork/service-activity-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-activity-go/pkg/database"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type seqIDs struct{ n atomic.Int64 }

func (s *seqIDs) Next() int64 { return 1000 + s.n.Add(1) }

// memStore keeps activities in memory with the same version semantics as
// the SQL repository.
type memStore struct {
	mu   sync.Mutex
	rows map[int64]*entity.Activity
	// bumpBeforeWrite simulates a concurrent writer.
	bumpBeforeWrite bool
	// dropBeforeDelete simulates a concurrent hard delete.
	dropBeforeDelete bool
	lastFilter       entity.Filter
}

func newMemStore() *memStore { return &memStore{rows: map[int64]*entity.Activity{}} }

func clone(a *entity.Activity) *entity.Activity {
	cp := *a
	return &cp
}

func (m *memStore) Create(_ context.Context, a *entity.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[a.ID] = clone(a)
	return nil
}

func (m *memStore) GetByID(_ context.Context, id int64) (*entity.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[id]
	if !ok {
		return nil, errors.Wrap(sql.ErrNoRows, "activity")
	}
	return clone(a), nil
}

func (m *memStore) race(id int64) {
	if m.bumpBeforeWrite {
		m.rows[id].Version++
	}
}

func (m *memStore) Update(_ context.Context, a *entity.Activity) (*entity.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.race(a.ID)
	cur, ok := m.rows[a.ID]
	if !ok || cur.Version != a.Version {
		return nil, database.ErrStaleVersion
	}
	next := clone(a)
	next.Version++
	m.rows[a.ID] = next
	return clone(next), nil
}

func (m *memStore) UpdateStatus(_ context.Context, id, version int64, from, to entity.Status, at time.Time) (*entity.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.race(id)
	cur, ok := m.rows[id]
	if !ok || cur.Version != version || cur.Status != from {
		return nil, database.ErrStaleVersion
	}
	cur.Status = to
	cur.Version++
	cur.UpdatedAt = at
	return clone(cur), nil
}

func (m *memStore) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dropBeforeDelete {
		delete(m.rows, id)
	}
	if _, ok := m.rows[id]; !ok {
		return errors.Wrap(sql.ErrNoRows, "activity")
	}
	delete(m.rows, id)
	return nil
}

func (m *memStore) List(_ context.Context, f entity.Filter) ([]*entity.Activity, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastFilter = f
	var out []*entity.Activity
	for _, a := range m.rows {
		if !a.Active && !f.IncludeInactive {
			continue
		}
		if f.VisibleTo != nil && a.CreatorID != *f.VisibleTo && (a.AssigneeID == nil || *a.AssigneeID != *f.VisibleTo) {
			continue
		}
		if f.Status != nil && a.Status != *f.Status {
			continue
		}
		out = append(out, clone(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	total := len(out)
	if f.Skip < len(out) {
		out = out[f.Skip:]
	} else {
		out = nil
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, total, nil
}

type userDir map[int64]*userentity.User

func (d userDir) GetByID(_ context.Context, id int64) (*userentity.User, error) {
	if u, ok := d[id]; ok {
		return u, nil
	}
	return nil, errors.Wrap(sql.ErrNoRows, "user")
}

type categoryDir map[int64]*catentity.Category

func (d categoryDir) GetByID(_ context.Context, id int64) (*catentity.Category, error) {
	if c, ok := d[id]; ok {
		return c, nil
	}
	return nil, errors.Wrap(sql.ErrNoRows, "category")
}

type eventLog struct {
	mu     sync.Mutex
	events []auditentity.Event
}

func (l *eventLog) sink() audit.Sink {
	return audit.SinkFunc(func(_ context.Context, ev auditentity.Event) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.events = append(l.events, ev)
		return nil
	})
}

func (l *eventLog) actions() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.Action
	}
	return out
}

func (l *eventLog) last() auditentity.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.events[len(l.events)-1]
}

var (
	admin    = &userentity.User{ID: 1, Username: "root", Role: userentity.RoleAdmin, Active: true}
	ana      = &userentity.User{ID: 2, Username: "ana", Role: userentity.RoleOperator, Active: true}
	bruno    = &userentity.User{ID: 3, Username: "bruno", Role: userentity.RoleOperator, Active: true}
	carla    = &userentity.User{ID: 4, Username: "carla", Role: userentity.RoleOperator, Active: true}
	inactive = &userentity.User{ID: 5, Username: "gone", Role: userentity.RoleOperator, Active: false}
)

type fixture struct {
	store *memStore
	clock *clockwork.FakeClock
	log   *eventLog
	svc   *activity.Service
}

func newFixture() *fixture {
	store := newMemStore()
	clock := clockwork.NewFakeClockAt(epoch)
	log := &eventLog{}
	users := userDir{1: admin, 2: ana, 3: bruno, 4: carla, 5: inactive}
	cats := categoryDir{
		10: {ID: 10, Name: "Development", Color: "#3498db", Active: true},
		11: {ID: 11, Name: "Archived", Color: "#000000", Active: false},
	}
	svc := activity.NewService(store, users, cats, &seqIDs{}, clock,
		audit.NewEmitter(log.sink(), zap.NewNop().Sugar()), zap.NewNop().Sugar())
	return &fixture{store: store, clock: clock, log: log, svc: svc}
}
