package user

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-activity-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-activity-go/internal/httpx"
	"github.com/ovaphlow/pitchfork/service-activity-go/internal/user/entity"
)

// Handler exposes HTTP endpoints for registration and user management.
type Handler struct {
	svc    *UserService
	logger *zap.SugaredLogger
}

func NewHandler(svc *UserService, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Register is public; it always creates an operator.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var in RegisterInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		h.logger.Debugw("invalid register payload", "err", err)
		httpx.WriteError(w, h.logger, err)
		return
	}
	u, err := h.svc.Register(r.Context(), in)
	if err != nil {
		h.logger.Debugw("register failed", "err", err)
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, u)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	p, err := auth.MustPrincipal(r.Context())
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	q := r.URL.Query()
	skip, limit, err := httpx.Paging(q, 20, 100)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	inactive, err := httpx.Bool(q, "include_inactive")
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	page, err := h.svc.List(r.Context(), p, entity.ListParams{Skip: skip, Limit: limit, IncludeInactive: inactive})
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	p, err := auth.MustPrincipal(r.Context())
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	var in RegisterInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	u, err := h.svc.Create(r.Context(), p, in)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, u)
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
	u, err := h.svc.Get(r.Context(), p, id)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, u)
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
	u, err := h.svc.Update(r.Context(), p, id, patch)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, u)
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
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
	var in PasswordInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	if err := h.svc.ChangePassword(r.Context(), p, id, in); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
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
