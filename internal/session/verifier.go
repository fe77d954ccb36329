package session

import (
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"cardfolio-api/internal/model"
	"cardfolio-api/pkg/apierror"
)

// idClaims is the claim set of an identity provider ID token.
type idClaims struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 ID tokens issued by the identity provider.
type Verifier struct {
	secret   []byte
	issuer   string
	audience string
}

// NewVerifier creates a verifier. Empty issuer or audience skip that check.
func NewVerifier(secret, issuer, audience string) (*Verifier, error) {
	if secret == "" {
		return nil, errors.New("secret key required for HS256")
	}
	return &Verifier{secret: []byte(secret), issuer: issuer, audience: audience}, nil
}

// Verify validates tokenString and returns the identity it carries.
func (v *Verifier) Verify(tokenString string) (model.Identity, error) {
	tokenString = strings.TrimSpace(strings.TrimPrefix(tokenString, "Bearer "))
	if tokenString == "" {
		return model.Identity{}, apierror.Unauthorized("missing identity token")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	var claims idClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		msg := "invalid identity token"
		if errors.Is(err, jwt.ErrTokenExpired) {
			msg = "identity token has expired"
		}
		return model.Identity{}, apierror.Unauthorized(msg).WithCause(err)
	}

	if claims.Subject == "" {
		return model.Identity{}, apierror.Unauthorized("invalid identity token: missing subject")
	}

	return model.Identity{
		UserID:      claims.Subject,
		Email:       claims.Email,
		DisplayName: claims.Name,
		PhotoURL:    claims.Picture,
	}, nil
}
