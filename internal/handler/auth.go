package handler

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"cardfolio-api/internal/logger"
	"cardfolio-api/internal/middleware"
	"cardfolio-api/internal/model"
	"cardfolio-api/pkg/apierror"
	"cardfolio-api/pkg/response"
)

// IdentityVerifier turns an identity provider token into an identity.
type IdentityVerifier interface {
	Verify(idToken string) (model.Identity, error)
}

// SessionTokens issues and revokes session tokens.
type SessionTokens interface {
	Generate(ctx context.Context, identity model.Identity) (string, *model.TokenData, error)
	Revoke(ctx context.Context, token string) error
	Refresh(ctx context.Context, token string) (*model.TokenData, error)
}

// SessionControl signs the process-wide session in and out.
type SessionControl interface {
	SignIn(id model.Identity)
	SignOut(ctx context.Context)
}

// AuthHandler handles session creation and teardown.
type AuthHandler struct {
	verifier IdentityVerifier
	tokens   SessionTokens
	session  SessionControl
	log      *zap.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(verifier IdentityVerifier, tokens SessionTokens, session SessionControl, log *zap.Logger) *AuthHandler {
	return &AuthHandler{
		verifier: verifier,
		tokens:   tokens,
		session:  session,
		log:      logger.Named(log, "auth"),
	}
}

// SessionRequest represents the request body for session creation.
type SessionRequest struct {
	IDToken string `json:"id_token"`
}

// SessionResponse represents the response for session creation.
type SessionResponse struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expires_at"`
	Identity  model.Identity `json:"identity"`
}

// CreateSession handles POST /api/v1/auth/session
func (h *AuthHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req SessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.Error(w, r, err)
		return
	}
	if req.IDToken == "" {
		response.Error(w, r, apierror.BadRequest("id_token is required"))
		return
	}

	identity, err := h.verifier.Verify(req.IDToken)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	token, data, err := h.tokens.Generate(r.Context(), identity)
	if err != nil {
		h.log.Error("failed to generate session token", zap.String("user_id", identity.UserID), zap.Error(err))
		response.Error(w, r, err)
		return
	}

	h.session.SignIn(identity)
	response.Created(w, SessionResponse{
		Token:     token,
		ExpiresAt: data.ExpiresAt,
		Identity:  identity,
	})
}

// DeleteSession handles DELETE /api/v1/auth/session
func (h *AuthHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	token := middleware.TokenFromRequest(r)
	if err := h.tokens.Revoke(r.Context(), token); err != nil {
		h.log.Warn("failed to revoke session token", zap.Error(err))
	}

	h.session.SignOut(r.Context())
	response.NoContent(w)
}

// RefreshSession handles POST /api/v1/auth/refresh
func (h *AuthHandler) RefreshSession(w http.ResponseWriter, r *http.Request) {
	data, err := h.tokens.Refresh(r.Context(), middleware.TokenFromRequest(r))
	if err != nil {
		response.Error(w, r, err)
		return
	}

	response.OK(w, map[string]interface{}{
		"status":     "refreshed",
		"expires_at": data.ExpiresAt,
	})
}

// Me handles GET /api/v1/auth/session
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	data := middleware.GetTokenDataFromContext(r.Context())
	if data == nil {
		response.Error(w, r, apierror.NotSignedIn())
		return
	}
	response.OK(w, data)
}
