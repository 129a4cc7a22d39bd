package audit

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-activity-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-activity-go/internal/audit/entity"
	"github.com/ovaphlow/pitchfork/service-activity-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-activity-go/internal/httpx"
	"github.com/ovaphlow/pitchfork/service-activity-go/internal/policy"
	"github.com/ovaphlow/pitchfork/service-activity-go/pkg/utilities"
)

// Lister reads stored audit records.
type Lister interface {
	List(ctx context.Context, f entity.Filter) ([]*entity.Record, int, error)
}

// Handler serves the admin audit trail.
type Handler struct {
	store  Lister
	logger *zap.SugaredLogger
}

func NewHandler(store Lister, logger *zap.SugaredLogger) *Handler {
	return &Handler{store: store, logger: logger}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	p, err := auth.MustPrincipal(r.Context())
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	if _, err := policy.Authorize(p, policy.Request{Action: policy.ActionList, Resource: policy.ResourceAudit}); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}

	q := r.URL.Query()
	skip, limit, err := httpx.Paging(q, 50, 100)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	entityID, err := httpx.Int64(q, "entity_id")
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	f := entity.Filter{Entity: q.Get("entity"), EntityID: entityID, Skip: skip, Limit: limit}

	recs, total, err := h.store.List(r.Context(), f)
	if err != nil {
		httpx.WriteError(w, h.logger, apperr.FromStorage(err, "audit: list"))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, entity.Page{
		Records: recs,
		Total:   total,
		Page:    utilities.PageNumber(skip, limit),
		PerPage: limit,
	})
}
