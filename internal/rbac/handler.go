package rbac

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-core/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-core/internal/shared"
)

// Handler exposes catalog and profile endpoints.
type Handler struct {
	logger *slog.Logger
	engine *Engine
	rbac   Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, engine *Engine, rbac Middleware) *Handler {
	return &Handler{logger: logger, engine: engine, rbac: rbac}
}

// MountRoutes registers rbac routes. Authentication is expected upstream.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/catalog", h.catalog)
	r.Get("/me", h.me)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(ModuleUsers, ActionView))
		r.Post("/profile", h.previewProfile)
		r.Post("/check", h.check)
	})
}

type catalogResponse struct {
	Roles       []Role       `json:"roles"`
	Departments []Department `json:"departments"`
	Modules     []Module     `json:"modules"`
	Actions     []Action     `json:"actions"`
}

func (h *Handler) catalog(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, catalogResponse{
		Roles:       h.engine.Roles().All(),
		Departments: h.engine.Departments().All(),
		Modules:     Modules(),
		Actions:     Actions(),
	})
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	profile, err := h.engine.BuildProfile(claims.Assignments(), Options{Overrides: claims.Modules})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"subject": claims.Subject, "profile": profile})
}

type profileRequest struct {
	Assignments []Assignment        `json:"assignments"`
	Role        RoleID              `json:"role,omitempty"`
	Department  DepartmentID        `json:"department,omitempty"`
	Overrides   map[string][]string `json:"overrides,omitempty"`
}

func (p profileRequest) options() (Options, error) {
	overrides, err := ParseOverrides(p.Overrides)
	if err != nil {
		return Options{}, err
	}
	return Options{Role: p.Role, Department: p.Department, Overrides: overrides}, nil
}

func (h *Handler) previewProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err))
		return
	}
	opts, err := req.options()
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	profile, err := h.engine.BuildProfile(req.Assignments, opts)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, profile)
}

type checkRequest struct {
	profileRequest
	Module string `json:"module"`
	Action string `json:"action"`
}

func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err))
		return
	}
	opts, err := req.options()
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	allowed, err := h.engine.CanPerform(req.Assignments, Module(req.Module), Action(req.Action), opts)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"allowed": allowed})
}
