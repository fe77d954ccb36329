package middleware

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"cardfolio-api/internal/logger"
	"cardfolio-api/internal/model"
	"cardfolio-api/pkg/apierror"
	"cardfolio-api/pkg/response"
)

// TokenDataKey is the key for storing token data in request context.
const TokenDataKey contextKey = "token_data"

// TokenHeader carries the session token.
const TokenHeader = "X-Token"

// TokenValidator resolves a session token.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (*model.TokenData, error)
}

// SessionRestorer is the process-wide session the token must belong to.
type SessionRestorer interface {
	CurrentUserID() string
	SignIn(id model.Identity)
}

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	Tokens  TokenValidator
	Session SessionRestorer
	Logger  *zap.Logger
}

// NewAuthMiddleware requires a valid session token. A token presented while
// nobody is signed in restores its session; a token of another user than
// the signed-in one is refused.
func NewAuthMiddleware(cfg AuthConfig) func(http.Handler) http.Handler {
	log := logger.Named(cfg.Logger, "auth")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r)
			if token == "" {
				response.Error(w, r, apierror.Unauthorized("Authentication required. Use the X-Token header."))
				return
			}
			if cfg.Tokens == nil {
				response.Error(w, r, apierror.ServiceUnavailable("session store unavailable"))
				return
			}

			data, err := cfg.Tokens.Validate(r.Context(), token)
			if err != nil {
				response.Error(w, r, err)
				return
			}

			if cfg.Session != nil {
				switch current := cfg.Session.CurrentUserID(); current {
				case data.UserID:
				case "":
					log.Info("restoring session from token", requestField(r.Context()), zap.String("user_id", data.UserID))
					cfg.Session.SignIn(data.Identity)
				default:
					response.Error(w, r, apierror.Unauthorized("another user is signed in"))
					return
				}
			}

			ctx := context.WithValue(r.Context(), TokenDataKey, data)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TokenFromRequest reads the session token from X-Token or a bearer
// Authorization header.
func TokenFromRequest(r *http.Request) string {
	if token := r.Header.Get(TokenHeader); token != "" {
		return token
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	// EventSource cannot set headers.
	return r.URL.Query().Get("token")
}

// GetTokenDataFromContext retrieves token data from request context.
func GetTokenDataFromContext(ctx context.Context) *model.TokenData {
	if data, ok := ctx.Value(TokenDataKey).(*model.TokenData); ok {
		return data
	}
	return nil
}
