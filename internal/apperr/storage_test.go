package apperr_test

import (
	"database/sql"
	"testing"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/ovaphlow/pitchfork/service-activity-go/internal/apperr"
)

func TestFromStorage(t *testing.T) {
	assert.NoError(t, apperr.FromStorage(nil, "op"))

	cases := []struct {
		code pq.ErrorCode
		want apperr.Kind
	}{
		{"23505", apperr.KindConflict},
		{"23503", apperr.KindValidationFailed},
		{"23514", apperr.KindValidationFailed},
		{"23502", apperr.KindValidationFailed},
		{"40001", apperr.KindInternal},
	}
	for _, c := range cases {
		err := apperr.FromStorage(errors.Wrap(&pq.Error{Code: c.code, Constraint: "c"}, "insert"), "op")
		assert.Equal(t, c.want, apperr.KindOf(err), string(c.code))
	}

	err := apperr.FromStorage(sql.ErrConnDone, "user: get")
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.Contains(t, err.Error(), "user: get")

	passthrough := apperr.NotFound("user", 1)
	assert.Same(t, passthrough, apperr.FromStorage(passthrough, "op"))
}

func TestFromStorageDelete(t *testing.T) {
	err := apperr.FromStorageDelete(&pq.Error{Code: "23503", Constraint: "activities_creator_id_fkey"}, "op")
	assert.ErrorIs(t, err, apperr.ErrConflict)

	err = apperr.FromStorageDelete(&pq.Error{Code: "23505"}, "op")
	assert.ErrorIs(t, err, apperr.ErrConflict)

	err = apperr.FromStorageDelete(errors.New("boom"), "op")
	assert.ErrorIs(t, err, apperr.ErrInternal)
}

func TestFromValidation(t *testing.T) {
	assert.NoError(t, apperr.FromValidation(nil))

	err := apperr.FromValidation(validation.Errors{"title": errors.New("is required")})
	assert.ErrorIs(t, err, apperr.ErrValidationFailed)
	var ae *apperr.Error
	assert.True(t, errors.As(err, &ae))
	assert.Equal(t, "is required", ae.Details["title"])

	err = apperr.FromValidation(errors.New("plain"))
	assert.Equal(t, apperr.KindValidationFailed, apperr.KindOf(err))
}

func TestErrorKinds(t *testing.T) {
	assert.ErrorIs(t, apperr.Forbidden("no"), apperr.ErrForbidden)
	assert.NotErrorIs(t, apperr.Forbidden("no"), apperr.ErrNotFound)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(errors.New("x")))
	assert.Equal(t, "invalid_transition", apperr.KindInvalidTransition.String())

	it := apperr.InvalidTransition("cancelled", "pending", nil)
	assert.Equal(t, []string{}, it.Details["allowed"])
	assert.Contains(t, it.Error(), "cancelled -> pending")
}
