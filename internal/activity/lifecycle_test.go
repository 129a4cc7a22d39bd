package activity_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-activity-go/internal/activity"
	"github.com/ovaphlow/pitchfork/service-activity-go/internal/activity/entity"
	"github.com/ovaphlow/pitchfork/service-activity-go/internal/apperr"
)

func TestTransitionMatrix(t *testing.T) {
	permitted := map[entity.Status][]entity.Status{
		entity.StatusPending:    {entity.StatusInProgress, entity.StatusCancelled},
		entity.StatusInProgress: {entity.StatusBlocked, entity.StatusCompleted, entity.StatusCancelled},
		entity.StatusBlocked:    {entity.StatusInProgress, entity.StatusCancelled},
		entity.StatusCompleted:  {entity.StatusInProgress},
		entity.StatusCancelled:  nil,
	}

	for _, from := range entity.Statuses {
		for _, to := range entity.Statuses {
			want := false
			for _, p := range permitted[from] {
				if p == to {
					want = true
				}
			}
			assert.Equal(t, want, activity.CanTransition(from, to), "%s -> %s", from, to)

			err := activity.ValidateTransition(from, to)
			if want {
				assert.NoError(t, err, "%s -> %s", from, to)
			} else {
				assert.ErrorIs(t, err, apperr.ErrInvalidTransition, "%s -> %s", from, to)
			}
		}
	}
}

func TestCancelledIsTerminal(t *testing.T) {
	assert.Empty(t, activity.Allowed(entity.StatusCancelled))
	for _, to := range entity.Statuses {
		assert.False(t, activity.CanTransition(entity.StatusCancelled, to))
	}
}

func TestValidateTransitionReportsPermittedTargets(t *testing.T) {
	err := activity.ValidateTransition(entity.StatusPending, entity.StatusCompleted)
	require.Error(t, err)

	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apperr.KindInvalidTransition, ae.Kind)
	assert.Equal(t, "pending", ae.Details["from"])
	assert.Equal(t, "completed", ae.Details["to"])
	assert.Equal(t, []string{"in_progress", "cancelled"}, ae.Details["allowed"])
}

func TestAllowedReturnsCopy(t *testing.T) {
	got := activity.Allowed(entity.StatusPending)
	got[0] = entity.StatusCompleted
	assert.Equal(t, []entity.Status{entity.StatusInProgress, entity.StatusCancelled}, activity.Allowed(entity.StatusPending))
}

func TestUnknownStatusHasNoTransitions(t *testing.T) {
	assert.False(t, activity.CanTransition(entity.Status("archived"), entity.StatusPending))
	err := activity.ValidateTransition(entity.Status("archived"), entity.StatusPending)
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, []string{}, ae.Details["allowed"])
}
