package apperr

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/lib/pq"
	pkgerrors "github.com/pkg/errors"
)

// SQLSTATE codes translated by FromStorage.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"
	codeNotNullViolation    = "23502"
)

// FromStorage translates a repository error. Constraint violations become
// Conflict or ValidationFailed; anything else is wrapped as Internal with op
// as context. Already classified errors pass through.
func FromStorage(err error, op string) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case codeUniqueViolation:
			return &Error{
				Kind:    KindConflict,
				Message: "duplicate value violates a uniqueness rule",
				Details: map[string]any{"constraint": pqErr.Constraint},
				Err:     err,
			}
		case codeForeignKeyViolation:
			return &Error{
				Kind:    KindValidationFailed,
				Message: "referenced record does not exist",
				Details: map[string]any{"constraint": pqErr.Constraint},
				Err:     err,
			}
		case codeCheckViolation, codeNotNullViolation:
			return &Error{
				Kind:    KindValidationFailed,
				Message: "value rejected by storage constraint",
				Details: map[string]any{"constraint": pqErr.Constraint, "column": pqErr.Column},
				Err:     err,
			}
		}
	}
	return Internal(pkgerrors.Wrap(err, op))
}

// FromStorageDelete is FromStorage for removals: a foreign key violation
// means the row is still referenced, which is a Conflict.
func FromStorageDelete(err error, op string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == codeForeignKeyViolation {
		return &Error{
			Kind:    KindConflict,
			Message: "record is still referenced",
			Details: map[string]any{"constraint": pqErr.Constraint},
			Err:     err,
		}
	}
	return FromStorage(err, op)
}

// FromValidation converts ozzo-validation output into ValidationFailed with
// one detail per offending field.
func FromValidation(err error) error {
	if err == nil {
		return nil
	}
	details := map[string]any{}
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			details[field] = ferr.Error()
		}
		return ValidationFailed("invalid input", details)
	}
	return ValidationFailed(err.Error(), nil)
}
