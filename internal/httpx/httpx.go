// Package httpx holds the JSON request/response helpers shared by handlers.
package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-activity-go/internal/apperr"
)

// DateLayout is the wire format of due dates.
const DateLayout = "2006-01-02"

// ErrorBody is the JSON shape of every failed response.
type ErrorBody struct {
	Error   string         `json:"error"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindUnauthenticated:
		return http.StatusUnauthorized
	case apperr.KindAccountInactive, apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindInvalidTransition:
		return http.StatusBadRequest
	case apperr.KindValidationFailed:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// WriteError renders err. Internal causes are logged and hidden from the client.
func WriteError(w http.ResponseWriter, logger *zap.SugaredLogger, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		ae = apperr.Internal(err)
	}
	status := StatusFor(ae.Kind)
	if ae.Kind == apperr.KindInternal {
		logger.Errorw("request failed", "err", err)
		WriteJSON(w, status, ErrorBody{Error: ae.Kind.String(), Message: "internal error"})
		return
	}
	if ae.Kind == apperr.KindUnauthenticated {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	logger.Debugw("request rejected", "kind", ae.Kind.String(), "err", err)
	WriteJSON(w, status, ErrorBody{Error: ae.Kind.String(), Message: ae.Message, Details: ae.Details})
}

// DecodeJSON decodes a request body, rejecting unknown fields.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.ValidationFailed("invalid payload", map[string]any{"body": err.Error()})
	}
	return nil
}

// PathID parses the {id} path segment.
func PathID(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.ValidationFailed("invalid id", map[string]any{"id": raw})
	}
	return id, nil
}

// Paging reads skip/limit with the given default and ceiling for limit.
func Paging(q url.Values, defLimit, maxLimit int) (skip, limit int, err error) {
	skip, err = intParam(q, "skip", 0)
	if err != nil {
		return 0, 0, err
	}
	limit, err = intParam(q, "limit", defLimit)
	if err != nil {
		return 0, 0, err
	}
	if skip < 0 {
		return 0, 0, apperr.ValidationFailed("skip must be >= 0", map[string]any{"skip": skip})
	}
	if limit < 1 || limit > maxLimit {
		return 0, 0, apperr.ValidationFailed("limit out of range", map[string]any{"limit": limit, "max": maxLimit})
	}
	return skip, limit, nil
}

func intParam(q url.Values, key string, def int) (int, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.ValidationFailed("invalid "+key, map[string]any{key: raw})
	}
	return v, nil
}

// Bool reads a boolean query flag; absent means false.
func Bool(q url.Values, key string) (bool, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, apperr.ValidationFailed("invalid "+key, map[string]any{key: raw})
	}
	return v, nil
}

// Int64 reads an optional numeric query parameter.
func Int64(q url.Values, key string) (*int64, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, apperr.ValidationFailed("invalid "+key, map[string]any{key: raw})
	}
	return &v, nil
}

// Date reads an optional YYYY-MM-DD query parameter.
func Date(q url.Values, key string) (*time.Time, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(DateLayout, raw)
	if err != nil {
		return nil, apperr.ValidationFailed("invalid "+key+", expected YYYY-MM-DD", map[string]any{key: raw})
	}
	return &t, nil
}
