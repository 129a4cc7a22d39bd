// Package audit records who changed what. Emission is best-effort: a
// failing sink is logged and never fails the write it describes.
package audit

import (
	"context"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-activity-go/internal/audit/entity"
	"github.com/ovaphlow/pitchfork/service-activity-go/pkg/utilities"
)

// Sink consumes audit events.
type Sink interface {
	Record(ctx context.Context, ev entity.Event) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, ev entity.Event) error

// Record implements Sink.
func (f SinkFunc) Record(ctx context.Context, ev entity.Event) error {
	if f == nil {
		return nil
	}
	return f(ctx, ev)
}

type nopSink struct{}

func (nopSink) Record(context.Context, entity.Event) error { return nil }

// Nop discards every event.
func Nop() Sink { return nopSink{} }

func normalize(s Sink) Sink {
	if s == nil {
		return nopSink{}
	}
	return s
}

// Writer is the storage side of a StoreSink.
type Writer interface {
	Insert(ctx context.Context, recs []*entity.Record) error
}

// StoreSink turns events into audit records, one per change.
type StoreSink struct {
	w     Writer
	clock clockwork.Clock
}

func NewStoreSink(w Writer, clock clockwork.Clock) *StoreSink {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &StoreSink{w: w, clock: clock}
}

func (s *StoreSink) Record(ctx context.Context, ev entity.Event) error {
	return s.w.Insert(ctx, Records(ev, s.clock.Now()))
}

// Records expands ev. An event without changes yields a single record with
// no field.
func Records(ev entity.Event, at time.Time) []*entity.Record {
	base := func() *entity.Record {
		return &entity.Record{
			ID:        utilities.NewKSUID(),
			Entity:    ev.Entity,
			EntityID:  ev.EntityID,
			Action:    ev.Action,
			ActorID:   ev.ActorID,
			CreatedAt: at,
		}
	}
	if len(ev.Changes) == 0 {
		return []*entity.Record{base()}
	}
	out := make([]*entity.Record, 0, len(ev.Changes))
	for _, c := range ev.Changes {
		rec := base()
		field := c.Field
		rec.Field = &field
		rec.PreviousValue = c.Previous
		rec.NewValue = c.New
		out = append(out, rec)
	}
	return out
}

// Emitter sends events to a sink and logs failures.
type Emitter struct {
	sink   Sink
	logger *zap.SugaredLogger
}

func NewEmitter(sink Sink, logger *zap.SugaredLogger) *Emitter {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Emitter{sink: normalize(sink), logger: logger}
}

// Emit records ev. A nil Emitter is a no-op.
func (e *Emitter) Emit(ctx context.Context, ev entity.Event) {
	if e == nil {
		return
	}
	if err := e.sink.Record(ctx, ev); err != nil {
		e.logger.Warnw("audit record failed",
			"entity", ev.Entity, "entity_id", ev.EntityID, "action", ev.Action, "err", err)
	}
}

// Str is a helper for Change values.
func Str(s string) *string { return &s }

func BoolChange(field string, prev, next bool) entity.Change {
	return entity.Change{Field: field, Previous: Str(strconv.FormatBool(prev)), New: Str(strconv.FormatBool(next))}
}
