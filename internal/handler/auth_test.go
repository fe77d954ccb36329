package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"cardfolio-api/internal/middleware"
	"cardfolio-api/internal/model"
	"cardfolio-api/pkg/apierror"
)

type mockVerifier struct{ mock.Mock }

func (m *mockVerifier) Verify(idToken string) (model.Identity, error) {
	args := m.Called(idToken)
	return args.Get(0).(model.Identity), args.Error(1)
}

type mockTokens struct{ mock.Mock }

func (m *mockTokens) Generate(ctx context.Context, identity model.Identity) (string, *model.TokenData, error) {
	args := m.Called(ctx, identity)
	data, _ := args.Get(1).(*model.TokenData)
	return args.String(0), data, args.Error(2)
}

func (m *mockTokens) Revoke(ctx context.Context, token string) error {
	return m.Called(ctx, token).Error(0)
}

func (m *mockTokens) Refresh(ctx context.Context, token string) (*model.TokenData, error) {
	args := m.Called(ctx, token)
	data, _ := args.Get(0).(*model.TokenData)
	return data, args.Error(1)
}

type mockSession struct{ mock.Mock }

func (m *mockSession) SignIn(id model.Identity) { m.Called(id) }

func (m *mockSession) SignOut(ctx context.Context) { m.Called(ctx) }

func TestAuthHandler_CreateSession(t *testing.T) {
	alice := model.Identity{UserID: "alice", Email: "alice@example.com"}
	expires := time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

	verifier := new(mockVerifier)
	verifier.On("Verify", "good").Return(alice, nil)
	tokens := new(mockTokens)
	tokens.On("Generate", mock.Anything, alice).
		Return("cfs_abc", &model.TokenData{Identity: alice, ExpiresAt: expires}, nil)
	sess := new(mockSession)
	sess.On("SignIn", alice).Return()

	h := NewAuthHandler(verifier, tokens, sess, zap.NewNop())
	rec := httptest.NewRecorder()
	h.CreateSession(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/session", strings.NewReader(`{"id_token":"good"}`)))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"token":"cfs_abc"`)
	verifier.AssertExpectations(t)
	tokens.AssertExpectations(t)
	sess.AssertExpectations(t)
}

func TestAuthHandler_CreateSessionRejectsBadToken(t *testing.T) {
	verifier := new(mockVerifier)
	verifier.On("Verify", "forged").Return(model.Identity{}, apierror.Unauthorized("invalid identity token"))
	tokens := new(mockTokens)
	sess := new(mockSession)

	h := NewAuthHandler(verifier, tokens, sess, zap.NewNop())
	rec := httptest.NewRecorder()
	h.CreateSession(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/session", strings.NewReader(`{"id_token":"forged"}`)))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	tokens.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
	sess.AssertNotCalled(t, "SignIn", mock.Anything)
}

func TestAuthHandler_CreateSessionRequiresToken(t *testing.T) {
	verifier := new(mockVerifier)
	h := NewAuthHandler(verifier, new(mockTokens), new(mockSession), zap.NewNop())

	rec := httptest.NewRecorder()
	h.CreateSession(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/session", strings.NewReader(`{}`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	verifier.AssertNotCalled(t, "Verify", mock.Anything)
}

func TestAuthHandler_DeleteSessionSignsOutWhenRevokeFails(t *testing.T) {
	tokens := new(mockTokens)
	tokens.On("Revoke", mock.Anything, "cfs_abc").Return(errors.New("redis down"))
	sess := new(mockSession)
	sess.On("SignOut", mock.Anything).Return()

	h := NewAuthHandler(new(mockVerifier), tokens, sess, zap.NewNop())
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/auth/session", nil)
	req.Header.Set(middleware.TokenHeader, "cfs_abc")
	rec := httptest.NewRecorder()
	h.DeleteSession(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	tokens.AssertExpectations(t)
	sess.AssertExpectations(t)
}

func TestAuthHandler_RefreshSession(t *testing.T) {
	expires := time.Date(2025, 3, 16, 12, 0, 0, 0, time.UTC)
	tokens := new(mockTokens)
	tokens.On("Refresh", mock.Anything, "cfs_abc").Return(&model.TokenData{ExpiresAt: expires}, nil)
	tokens.On("Refresh", mock.Anything, "cfs_gone").Return(nil, apierror.Unauthorized("session expired"))

	h := NewAuthHandler(new(mockVerifier), tokens, new(mockSession), zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", nil)
	req.Header.Set(middleware.TokenHeader, "cfs_abc")
	rec := httptest.NewRecorder()
	h.RefreshSession(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"refreshed"`)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", nil)
	req.Header.Set(middleware.TokenHeader, "cfs_gone")
	rec = httptest.NewRecorder()
	h.RefreshSession(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthHandler_MeWithoutTokenData(t *testing.T) {
	h := NewAuthHandler(new(mockVerifier), new(mockTokens), new(mockSession), zap.NewNop())
	rec := httptest.NewRecorder()
	h.Me(rec, httptest.NewRequest(http.MethodGet, "/api/v1/auth/session", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
