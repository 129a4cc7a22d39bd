package activity

import (
	"net/http"
	"net/url"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-activity-go/internal/activity/entity"
	"github.com/ovaphlow/pitchfork/service-activity-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-activity-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-activity-go/internal/httpx"
)

// Handler exposes HTTP endpoints for activities.
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// StatusRequest is the body of a status change.
type StatusRequest struct {
	Status entity.Status `json:"status"`
}

// Validate will run validation rules
func (r StatusRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Status, validation.Required),
	)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	p, err := auth.MustPrincipal(r.Context())
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	f, err := parseFilter(r.URL.Query())
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	page, err := h.svc.List(r.Context(), p, f)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, page)
}

func parseFilter(q url.Values) (entity.Filter, error) {
	var f entity.Filter
	var err error
	if f.Skip, f.Limit, err = httpx.Paging(q, 20, 100); err != nil {
		return f, err
	}
	if v := strings.TrimSpace(q.Get("status")); v != "" {
		st := entity.Status(v)
		f.Status = &st
	}
	if v := strings.TrimSpace(q.Get("priority")); v != "" {
		pr := entity.Priority(v)
		f.Priority = &pr
	}
	if f.CategoryID, err = httpx.Int64(q, "category_id"); err != nil {
		return f, err
	}
	if f.AssigneeID, err = httpx.Int64(q, "assignee_id"); err != nil {
		return f, err
	}
	if f.DueFrom, err = date(q, "due_date_from"); err != nil {
		return f, err
	}
	if f.DueTo, err = date(q, "due_date_to"); err != nil {
		return f, err
	}
	if f.IncludeInactive, err = httpx.Bool(q, "include_inactive"); err != nil {
		return f, err
	}
	f.Search = q.Get("search")
	return f, nil
}

func date(q url.Values, key string) (*entity.Date, error) {
	t, err := httpx.Date(q, key)
	if err != nil || t == nil {
		return nil, err
	}
	return &entity.Date{Time: *t}, nil
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := auth.MustPrincipal(r.Context())
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	id, err := httpx.PathID(r)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	a, err := h.svc.Get(r.Context(), p, id)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, a)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	p, err := auth.MustPrincipal(r.Context())
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	var in CreateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	a, err := h.svc.Create(r.Context(), p, in)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, a)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	p, err := auth.MustPrincipal(r.Context())
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	id, err := httpx.PathID(r)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	var patch entity.Patch
	if err := httpx.DecodeJSON(r, &patch); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	a, err := h.svc.Update(r.Context(), p, id, patch)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, a)
}

func (h *Handler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	p, err := auth.MustPrincipal(r.Context())
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	id, err := httpx.PathID(r)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	var req StatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	if err := req.Validate(); err != nil {
		httpx.WriteError(w, h.logger, apperr.FromValidation(err))
		return
	}
	a, err := h.svc.ChangeStatus(r.Context(), p, id, req.Status)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, a)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	p, err := auth.MustPrincipal(r.Context())
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	id, err := httpx.PathID(r)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	hard, err := httpx.Bool(r.URL.Query(), "hard_delete")
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	if err := h.svc.Delete(r.Context(), p, id, hard); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
