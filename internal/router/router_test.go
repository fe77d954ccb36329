package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cardfolio-api/internal/handler"
	"cardfolio-api/internal/metrics"
	"cardfolio-api/internal/middleware"
	"cardfolio-api/internal/repository"
	"cardfolio-api/internal/service"
	"cardfolio-api/internal/session"
)

const testSecret = "router-test-secret"

type testServer struct {
	t       *testing.T
	mux     http.Handler
	session *session.Manager
	token   string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := zap.NewNop()
	m := metrics.NewCollector("test")
	store := repository.NewMemoryStore()
	sess := session.NewManager(log)
	t.Cleanup(sess.Close)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	tokens := session.NewTokenStore(client, time.Hour)
	verifier, err := session.NewVerifier(testSecret, "", "")
	require.NoError(t, err)

	deps := service.Deps{Store: store, Session: sess, Logger: log, Metrics: m}
	profile := service.NewProfileCache(deps)
	valuation := service.NewValuationHistoryCache(deps)
	actions := service.NewActionLogCache(deps)
	inventory := service.NewInventoryCache(deps, profile, valuation, actions)
	directory := service.NewFriendDirectory(deps, profile, service.DefaultDirectoryConfig())
	migrations := service.NewMigrations(deps, profile)

	mux := New(Config{
		Handler:          handler.New(store, "test"),
		AuthHandler:      handler.NewAuthHandler(verifier, tokens, sess, log),
		ProfileHandler:   handler.NewProfileHandler(profile, directory),
		InventoryHandler: handler.NewInventoryHandler(inventory),
		HistoryHandler:   handler.NewHistoryHandler(valuation, actions),
		DirectoryHandler: handler.NewDirectoryHandler(directory),
		AdminHandler:     handler.NewAdminHandler(profile, migrations, nil, store, "memory"),
		StreamHandler: handler.NewStreamHandler(handler.StreamSources{
			Session: sess, Profile: profile, Inventory: inventory, Valuation: valuation, Actions: actions,
		}),
		AuthMiddleware: middleware.NewAuthMiddleware(middleware.AuthConfig{Tokens: tokens, Session: sess, Logger: log}),
		Logger:         log,
		Metrics:        m,
	})
	return &testServer{t: t, mux: mux, session: sess}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Meta    *struct {
		Total  int    `json:"total"`
		Period string `json:"period"`
	} `json:"meta"`
	Error *struct {
		Code string `json:"code"`
		Kind string `json:"kind"`
	} `json:"error"`
}

func (s *testServer) do(method, path, body string) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set(middleware.TokenHeader, s.token)
	}
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func (s *testServer) signIn(sub, name string) {
	s.t.Helper()
	idToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   sub,
		"email": sub + "@example.com",
		"name":  name,
		"exp":   time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(s.t, err)

	rec, env := s.do(http.MethodPost, "/api/v1/auth/session", `{"id_token":"`+idToken+`"}`)
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp handler.SessionResponse
	require.NoError(s.t, json.Unmarshal(env.Data, &resp))
	s.token = resp.Token
}

func TestRouter_HealthIsPublic(t *testing.T) {
	s := newTestServer(t)

	rec, env := s.do(http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)

	rec, _ = s.do(http.MethodGet, "/api/v1/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = s.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_RequiresSession(t *testing.T) {
	s := newTestServer(t)

	rec, env := s.do(http.MethodGet, "/api/v1/inventory", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "AUTHENTICATION", env.Error.Kind)
}

func TestRouter_CollectionFlow(t *testing.T) {
	s := newTestServer(t)
	s.signIn("alice", "Alice")
	assert.Equal(t, "alice", s.session.CurrentUserID())

	rec, env := s.do(http.MethodGet, "/api/v1/profile", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var profile struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &profile))
	assert.Equal(t, "Alice", profile.Username)

	rec, env = s.do(http.MethodPost, "/api/v1/inventory", `{"name":"Mew","price":"12.5","purchasePrice":"10"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var item struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &item))
	require.NotEmpty(t, item.ID)

	rec, env = s.do(http.MethodGet, "/api/v1/inventory/total", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"totalCards":1,"totalValue":"12.5"}`, string(env.Data))

	rec, env = s.do(http.MethodPost, "/api/v1/inventory/"+item.ID+"/sell", `{"salePrice":20}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"id":"`+item.ID+`","profit":"10"}`, string(env.Data))

	rec, env = s.do(http.MethodGet, "/api/v1/history/actions?period=1week", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, env.Meta)
	assert.Equal(t, 2, env.Meta.Total)
	assert.Equal(t, "1week", env.Meta.Period)

	rec, env = s.do(http.MethodGet, "/api/v1/inventory", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, env.Meta.Total)

	rec, _ = s.do(http.MethodPost, "/api/v1/inventory/missing/sell", `{"salePrice":1}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_ValidationErrors(t *testing.T) {
	s := newTestServer(t)
	s.signIn("alice", "Alice")

	rec, env := s.do(http.MethodPost, "/api/v1/inventory", `{"name":"","price":-1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION", env.Error.Kind)

	rec, _ = s.do(http.MethodPost, "/api/v1/inventory", `{"name":"Mew","bogus":true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = s.do(http.MethodPut, "/api/v1/profile/avatar", `{"avatarUrl":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_AdminIsForbiddenForUsers(t *testing.T) {
	s := newTestServer(t)
	s.signIn("alice", "Alice")

	rec, _ := s.do(http.MethodPost, "/api/v1/admin/migrations/total-profit", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = s.do(http.MethodGet, "/api/v1/admin/stats", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRouter_SignOut(t *testing.T) {
	s := newTestServer(t)
	s.signIn("alice", "Alice")

	rec, _ := s.do(http.MethodDelete, "/api/v1/auth/session", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, s.session.CurrentUserID())

	rec, _ = s.do(http.MethodGet, "/api/v1/profile", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "revoked token")
}

func TestRouter_UnknownStream(t *testing.T) {
	s := newTestServer(t)
	s.signIn("alice", "Alice")

	rec, _ := s.do(http.MethodGet, "/api/v1/streams/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, env := s.do(http.MethodGet, "/api/v1/streams", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), `"inventory-total"`)
}
