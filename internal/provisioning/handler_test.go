package provisioning

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-core/internal/rbac"
)

func newTestRouter(t *testing.T) (http.Handler, *rbac.TokenParser, *stubRepo) {
	t.Helper()
	engine := rbac.DefaultEngine()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	chain := rbac.DefaultChain(logger, nil, engine, nil, nil)
	tokens := rbac.NewTokenParser([]byte("test-secret"), "odyssey", engine)
	repo := newStubRepo()
	svc := NewService(Config{Repository: repo, Engine: engine, Chain: chain, Logger: logger})
	mw := rbac.Middleware{Chain: chain, Tokens: tokens, Logger: logger}

	r := chi.NewRouter()
	r.Route("/provisioning", func(r chi.Router) {
		r.Use(mw.Authenticate)
		NewHandler(logger, svc, chain).MountRoutes(r)
	})
	return r, tokens, repo
}

func call(t *testing.T, h http.Handler, tokens *rbac.TokenParser, subject string, roles []string, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	token, err := tokens.Issue(subject, rbac.RawClaims{Roles: roles}, time.Minute)
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

const payloadJSON = `{"id":"u-200","name":"Dewi","email":"dewi@example.com","primaryRole":"planner","departments":["sales"]}`

func TestHandlerSubmitAndGet(t *testing.T) {
	router, tokens, repo := newTestRouter(t)

	rr := call(t, router, tokens, "boss", []string{"admin"}, http.MethodPost, "/provisioning/requests", payloadJSON)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var req Request
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &req))
	assert.Equal(t, StateCompleted, req.State)
	assert.Equal(t, "boss", req.RequestedBy.Subject)
	assert.Contains(t, repo.accounts, "u-200")

	rr = call(t, router, tokens, "boss", []string{"admin"}, http.MethodGet, "/provisioning/requests/"+req.ID, "")
	require.Equal(t, http.StatusOK, rr.Code)

	// a manager may view others' requests; an operator may not
	rr = call(t, router, tokens, "mgr", []string{"manager"}, http.MethodGet, "/provisioning/requests/"+req.ID, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	rr = call(t, router, tokens, "op", []string{"operator"}, http.MethodGet, "/provisioning/requests/"+req.ID, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandlerSubmitRejectedRequestIsRecorded(t *testing.T) {
	router, tokens, repo := newTestRouter(t)

	rr := call(t, router, tokens, "op", []string{"operator"}, http.MethodPost, "/provisioning/requests", payloadJSON)
	require.Equal(t, http.StatusOK, rr.Code)
	var req Request
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &req))
	assert.Equal(t, StateRejected, req.State)
	assert.Equal(t, CodePermissionDenied, req.Error)
	assert.Empty(t, repo.accounts)

	rr = call(t, router, tokens, "op", []string{"operator"}, http.MethodGet, "/provisioning/requests/"+req.ID, "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestHandlerSubmitMalformedBody(t *testing.T) {
	router, tokens, _ := newTestRouter(t)

	rr := call(t, router, tokens, "boss", []string{"admin"}, http.MethodPost, "/provisioning/requests", `{"id":1}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = call(t, router, tokens, "boss", []string{"admin"}, http.MethodPost, "/provisioning/requests", `{"bogus":true}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = call(t, router, tokens, "boss", []string{"admin"}, http.MethodGet, "/provisioning/requests/nope", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
