package sequence

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/odyssey-erp/odyssey-core/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-core/internal/rbac"
	"github.com/odyssey-erp/odyssey-core/internal/shared"
)

const (
	issueRateLimit  = 120
	issueRateWindow = time.Minute
)

// Handler exposes sequence previews and issuance over HTTP.
type Handler struct {
	logger *slog.Logger
	issuer *Issuer
	rbac   rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, issuer *Issuer, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, issuer: issuer, rbac: rbac}
}

// MountRoutes registers sequence routes. Authentication is expected upstream.
func (h *Handler) MountRoutes(r chi.Router) {
	limiter := httprate.Limit(issueRateLimit, issueRateWindow,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, http.StatusText(http.StatusTooManyRequests), "issuance rate exceeded")
		}),
	)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ModuleSequences, rbac.ActionView))
		r.Get("/", h.list)
		r.Get("/{key}", h.peek)
		r.Get("/{key}/current", h.current)
		r.Get("/{key}/format", h.format)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ModuleSequences, rbac.ActionCreate))
		r.Use(limiter)
		r.Post("/{key}/issue", h.issue)
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	if claims := rbac.ClaimsFromContext(r.Context()); claims != nil {
		if sub := strings.TrimSpace(claims.Subject); sub != "" {
			return "sub:" + sub, nil
		}
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, h.issuer.List())
}

func (h *Handler) peek(w http.ResponseWriter, r *http.Request) {
	p, err := h.issuer.Peek(chi.URLParam(r, "key"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) current(w http.ResponseWriter, r *http.Request) {
	p, err := h.issuer.Current(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		h.logger.Warn("sequence current", slog.String("key", chi.URLParam(r, "key")), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) format(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	value, err := strconv.ParseInt(r.URL.Query().Get("value"), 10, 64)
	if err != nil || value < 0 {
		httpx.RespondError(w, fmt.Errorf("%w: value must be a non-negative integer", shared.ErrInvalidArgument))
		return
	}
	formatted, err := h.issuer.Format(key, value)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"key": key, "value": value, "formatted": formatted})
}

func (h *Handler) issue(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	issued, err := h.issuer.Issue(r.Context(), key)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	subject := ""
	if claims := rbac.ClaimsFromContext(r.Context()); claims != nil {
		subject = claims.Subject
	}
	h.logger.Info("sequence issued",
		slog.String("key", key),
		slog.String("value", issued.Value),
		slog.String("subject", subject))
	httpx.JSON(w, http.StatusCreated, issued)
}
