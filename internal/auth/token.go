// Package auth verifies the opaque signed identity tokens issued by the
// external credential service. A connection presents one token at handshake;
// nothing here issues credentials beyond test helpers.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"formroom/internal/realtime/models"
	dErrors "formroom/pkg/domain-errors"
)

// Claims carries the identity attributes the realtime layer consumes.
type Claims struct {
	UserID     string `json:"user_id"`
	Role       string `json:"role"`
	Department string `json:"department"`
	jwt.RegisteredClaims
}

// Verifier validates identity tokens presented at connection handshake.
type Verifier struct {
	signingKey []byte
	issuer     string
	audience   string
}

// NewVerifier constructs a token verifier. Issuer and audience are matched
// against the registered claims when non-empty.
func NewVerifier(signingKey, issuer, audience string) *Verifier {
	return &Verifier{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
	}
}

// Verify parses and validates the token, returning the embedded identity.
// All failures map to CodeAuthRejected; the connection must be refused.
func (v *Verifier) Verify(tokenString string) (models.Identity, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return v.signingKey, nil
	}, opts...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return models.Identity{}, dErrors.New(dErrors.CodeAuthRejected, "token has expired")
		}
		return models.Identity{}, dErrors.New(dErrors.CodeAuthRejected, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return models.Identity{}, dErrors.New(dErrors.CodeAuthRejected, "invalid token claims")
	}
	if claims.UserID == "" {
		return models.Identity{}, dErrors.New(dErrors.CodeAuthRejected, "token missing user id")
	}

	return models.Identity{
		UserID:     claims.UserID,
		Role:       claims.Role,
		Department: claims.Department,
	}, nil
}

// Issue signs a token for the given identity. Used by tests and local
// development; production tokens come from the external credential service.
func (v *Verifier) Issue(identity models.Identity, expiresIn time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:     identity.UserID,
		Role:       identity.Role,
		Department: identity.Department,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    v.issuer,
			Audience:  []string{v.audience},
			ID:        uuid.NewString(),
		},
	})
	return token.SignedString(v.signingKey)
}
