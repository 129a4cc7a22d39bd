package activity

import (
	"github.com/ovaphlow/pitchfork/service-activity-go/internal/activity/entity"
	"github.com/ovaphlow/pitchfork/service-activity-go/internal/apperr"
)

// transitions lists the permitted targets of each status, in the order they
// are reported to clients. A status absent from the map is terminal.
var transitions = map[entity.Status][]entity.Status{
	entity.StatusPending:    {entity.StatusInProgress, entity.StatusCancelled},
	entity.StatusInProgress: {entity.StatusBlocked, entity.StatusCompleted, entity.StatusCancelled},
	entity.StatusBlocked:    {entity.StatusInProgress, entity.StatusCancelled},
	entity.StatusCompleted:  {entity.StatusInProgress},
}

// Allowed returns the statuses reachable from `from` in one step.
func Allowed(from entity.Status) []entity.Status {
	return append([]entity.Status(nil), transitions[from]...)
}

// CanTransition reports whether from -> to is a legal single step.
// Self-transitions are not.
func CanTransition(from, to entity.Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns InvalidTransition naming the pair and the
// targets `from` permits.
func ValidateTransition(from, to entity.Status) error {
	if CanTransition(from, to) {
		return nil
	}
	allowed := transitions[from]
	names := make([]string, len(allowed))
	for i, s := range allowed {
		names[i] = string(s)
	}
	return apperr.InvalidTransition(string(from), string(to), names)
}
