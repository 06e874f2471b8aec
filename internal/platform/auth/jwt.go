package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// AccessClaims mirrors the payload of storefront access tokens.
type AccessClaims struct {
	UserID   string `json:"_id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// JWTVerifier validates HS256-signed access tokens.
type JWTVerifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// JWTOption customises JWTVerifier instances.
type JWTOption func(*JWTVerifier)

// WithIssuer requires the iss claim to match.
func WithIssuer(issuer string) JWTOption {
	return func(v *JWTVerifier) {
		v.issuer = strings.TrimSpace(issuer)
	}
}

// WithJWTClock overrides the time source used for expiry checks.
func WithJWTClock(now func() time.Time) JWTOption {
	return func(v *JWTVerifier) {
		if now != nil {
			v.now = now
		}
	}
}

// NewJWTVerifier constructs a verifier for tokens signed with secret.
func NewJWTVerifier(secret string, opts ...JWTOption) (*JWTVerifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: jwt secret is required")
	}
	v := &JWTVerifier{secret: []byte(secret), now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v, nil
}

// Verify parses and validates the token, returning the identity it carries.
func (v *JWTVerifier) Verify(_ context.Context, token string) (*Identity, error) {
	claims := &AccessClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !parsed.Valid {
		return nil, ErrTokenInvalid
	}

	now := v.now()
	if !claims.VerifyExpiresAt(now, true) {
		return nil, ErrTokenExpired
	}
	if !claims.VerifyNotBefore(now, false) {
		return nil, fmt.Errorf("%w: token not yet valid", ErrTokenInvalid)
	}
	if v.issuer != "" && !claims.VerifyIssuer(v.issuer, true) {
		return nil, fmt.Errorf("%w: unexpected issuer", ErrTokenInvalid)
	}

	uid := strings.TrimSpace(claims.UserID)
	if uid == "" {
		uid = strings.TrimSpace(claims.Subject)
	}
	if uid == "" {
		return nil, fmt.Errorf("%w: subject missing", ErrTokenInvalid)
	}

	identity := &Identity{
		UID:      uid,
		Email:    strings.TrimSpace(claims.Email),
		Username: strings.TrimSpace(claims.Username),
	}
	if role := normaliseRole(claims.Role); role != "" {
		identity.Roles = []string{role}
	}
	return identity, nil
}
