package audit_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ovaphlow/pitchfork/service-activity-go/internal/audit"
	"github.com/ovaphlow/pitchfork/service-activity-go/internal/audit/entity"
	"github.com/ovaphlow/pitchfork/service-activity-go/internal/auth"
	userentity "github.com/ovaphlow/pitchfork/service-activity-go/internal/user/entity"
)

var at = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

func TestRecordsOnePerChange(t *testing.T) {
	ev := entity.Event{
		Entity: entity.EntityActivity, EntityID: 9, Action: entity.ActionUpdate, ActorID: 2,
		Changes: []entity.Change{
			{Field: "title", Previous: audit.Str("a"), New: audit.Str("b")},
			audit.BoolChange("is_active", true, false),
		},
	}
	recs := audit.Records(ev, at)
	require.Len(t, recs, 2)
	assert.NotEqual(t, recs[0].ID, recs[1].ID)
	assert.Equal(t, "title", *recs[0].Field)
	assert.Equal(t, "a", *recs[0].PreviousValue)
	assert.Equal(t, "b", *recs[0].NewValue)
	assert.Equal(t, "is_active", *recs[1].Field)
	assert.Equal(t, "true", *recs[1].PreviousValue)
	assert.Equal(t, "false", *recs[1].NewValue)
	for _, r := range recs {
		assert.Equal(t, int64(9), r.EntityID)
		assert.Equal(t, int64(2), r.ActorID)
		assert.Equal(t, at, r.CreatedAt)
	}
}

func TestRecordsWithoutChanges(t *testing.T) {
	recs := audit.Records(entity.Event{Entity: entity.EntityUser, EntityID: 1, Action: entity.ActionHardDelete, ActorID: 1}, at)
	require.Len(t, recs, 1)
	assert.Nil(t, recs[0].Field)
	assert.Equal(t, entity.ActionHardDelete, recs[0].Action)
}

type mockWriter struct{ mock.Mock }

func (m *mockWriter) Insert(ctx context.Context, recs []*entity.Record) error {
	return m.Called(ctx, recs).Error(0)
}

func TestStoreSinkUsesClock(t *testing.T) {
	w := &mockWriter{}
	w.On("Insert", mock.Anything, mock.MatchedBy(func(recs []*entity.Record) bool {
		return len(recs) == 1 && recs[0].CreatedAt.Equal(at)
	})).Return(nil)

	sink := audit.NewStoreSink(w, clockwork.NewFakeClockAt(at))
	require.NoError(t, sink.Record(context.Background(), entity.Event{Entity: entity.EntityCategory, EntityID: 3, Action: entity.ActionCreate}))
	w.AssertExpectations(t)
}

func TestEmitterLogsFailures(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	failing := audit.SinkFunc(func(context.Context, entity.Event) error { return errors.New("disk full") })
	e := audit.NewEmitter(failing, zap.New(core).Sugar())

	e.Emit(context.Background(), entity.Event{Entity: entity.EntityActivity, EntityID: 4, Action: entity.ActionCreate})
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "audit record failed", logs.All()[0].Message)

	var nilEmitter *audit.Emitter
	assert.NotPanics(t, func() { nilEmitter.Emit(context.Background(), entity.Event{}) })
	assert.NotPanics(t, func() { audit.NewEmitter(nil, nil).Emit(context.Background(), entity.Event{}) })
	assert.NoError(t, audit.Nop().Record(context.Background(), entity.Event{}))
}

type mockLister struct{ mock.Mock }

func (m *mockLister) List(ctx context.Context, f entity.Filter) ([]*entity.Record, int, error) {
	args := m.Called(ctx, f)
	recs, _ := args.Get(0).([]*entity.Record)
	return recs, args.Int(1), args.Error(2)
}

func TestHandlerIsAdminOnly(t *testing.T) {
	store := &mockLister{}
	id := int64(9)
	store.On("List", mock.Anything, entity.Filter{Entity: "activity", EntityID: &id, Skip: 0, Limit: 50}).
		Return(audit.Records(entity.Event{Entity: "activity", EntityID: 9, Action: entity.ActionCreate, ActorID: 1}, at), 1, nil)
	h := audit.NewHandler(store, zap.NewNop().Sugar())

	get := func(p *userentity.User) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/audit?entity=activity&entity_id=9", nil)
		req = req.WithContext(auth.WithPrincipal(req.Context(), p))
		rec := httptest.NewRecorder()
		h.List(rec, req)
		return rec
	}

	rec := get(&userentity.User{ID: 2, Role: userentity.RoleOperator, Active: true})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = get(&userentity.User{ID: 1, Role: userentity.RoleAdmin, Active: true})
	require.Equal(t, http.StatusOK, rec.Code)
	var page entity.Page
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 1, page.Total)
	require.Len(t, page.Records, 1)
	assert.Equal(t, "create", page.Records[0].Action)
	store.AssertExpectations(t)
}
