package provisioning

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-core/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-core/internal/rbac"
	"github.com/odyssey-erp/odyssey-core/internal/shared"
)

// Handler exposes provisioning submission and status endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	chain   *rbac.Chain
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, chain *rbac.Chain) *Handler {
	return &Handler{logger: logger, service: service, chain: chain}
}

// MountRoutes registers provisioning routes. Authentication is expected
// upstream; authorization of submissions happens when they are processed.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/requests", h.submit)
	r.Get("/requests/{id}", h.get)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	claims := rbac.ClaimsFromContext(r.Context())
	if claims == nil {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	var payload Payload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err))
		return
	}
	req, err := h.service.Submit(r.Context(), Requester{Subject: claims.Subject, Claims: claims.Raw()}, payload)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	status := http.StatusAccepted
	if req.State.Terminal() {
		status = http.StatusOK
	}
	httpx.JSON(w, status, req)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	claims := rbac.ClaimsFromContext(r.Context())
	if claims == nil {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	req, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if req.RequestedBy.Subject != claims.Subject {
		err := h.chain.Authorize(r.Context(), rbac.Request{
			Subject: claims.Subject,
			Claims:  claims,
			Module:  rbac.ModuleUsers,
			Action:  rbac.ActionView,
		})
		if err != nil {
			if !errors.Is(err, shared.ErrPermissionDenied) {
				h.logger.Error("provisioning status authz", slog.Any("error", err))
			}
			// other requesters' requests are indistinguishable from missing ones
			httpx.RespondError(w, ErrRequestNotFound)
			return
		}
	}
	httpx.JSON(w, http.StatusOK, req)
}
