package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vibek01/ECOM-D1/internal/platform/httpx"
	"github.com/vibek01/ECOM-D1/internal/platform/requestctx"
)

const (
	defaultCookieName    = "accessToken"
	defaultVerifyTimeout = 5 * time.Second
)

var (
	// ErrTokenExpired signals that the presented token has expired.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrTokenInvalid signals that the presented token failed verification for any other reason.
	ErrTokenInvalid = errors.New("auth: token invalid")
)

// TokenVerifier turns a raw bearer token into a verified identity.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// TokenVerifierFunc adapts ordinary functions to TokenVerifier.
type TokenVerifierFunc func(ctx context.Context, token string) (*Identity, error)

// Verify calls the wrapped function.
func (f TokenVerifierFunc) Verify(ctx context.Context, token string) (*Identity, error) {
	return f(ctx, token)
}

// Authenticator wires token verification into HTTP middleware.
type Authenticator struct {
	verifier     TokenVerifier
	cookieName   string
	fallbackRole string
	timeout      time.Duration
}

// Option customises Authenticator behaviour.
type Option func(*Authenticator)

// WithCookieName overrides the cookie consulted when no Authorization header is present.
// An empty name disables cookie lookup.
func WithCookieName(name string) Option {
	return func(a *Authenticator) {
		a.cookieName = strings.TrimSpace(name)
	}
}

// WithFallbackRole sets the default role when the token carries none.
func WithFallbackRole(role string) Option {
	return func(a *Authenticator) {
		if role = normaliseRole(role); role != "" {
			a.fallbackRole = role
		}
	}
}

// WithVerificationTimeout sets the timeout used when verifying tokens.
func WithVerificationTimeout(d time.Duration) Option {
	return func(a *Authenticator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// NewAuthenticator constructs an Authenticator for middleware composition.
func NewAuthenticator(verifier TokenVerifier, opts ...Option) *Authenticator {
	a := &Authenticator{
		verifier:     verifier,
		cookieName:   defaultCookieName,
		fallbackRole: RoleUser,
		timeout:      defaultVerifyTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// RequireAuth verifies the bearer token (or the access token cookie) and, when roles are given,
// requires the identity to hold at least one of them. Missing or invalid credentials yield 401,
// a valid identity without the required role yields 403.
func (a *Authenticator) RequireAuth(allowedRoles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(allowedRoles))
	for _, role := range allowedRoles {
		if role = normaliseRole(role); role != "" {
			allowed[role] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := a.extractToken(r)
			if !ok {
				httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authorization token missing or invalid", http.StatusUnauthorized))
				return
			}
			if a == nil || a.verifier == nil {
				httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authorization service unavailable", http.StatusUnauthorized))
				return
			}

			ctx, cancel := context.WithTimeout(r.Context(), a.timeout)
			identity, err := a.verifier.Verify(ctx, token)
			cancel()
			if err != nil {
				respondVerificationError(w, r, err)
				return
			}
			if identity == nil || strings.TrimSpace(identity.UID) == "" {
				httpx.WriteError(r.Context(), w, httpx.NewError("invalid_token", "token subject missing", http.StatusUnauthorized))
				return
			}
			if len(identity.Roles) == 0 {
				identity.Roles = []string{a.fallbackRole}
			}

			if len(allowed) > 0 && !hasAllowedRole(identity.Roles, allowed) {
				httpx.WriteError(r.Context(), w, httpx.NewError("insufficient_role", "identity does not have required role", http.StatusForbidden))
				return
			}

			ctx = WithIdentity(r.Context(), identity)
			ctx = requestctx.WithLogger(ctx, requestctx.Logger(ctx).With(zap.String("user_id", identity.UID)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (a *Authenticator) extractToken(r *http.Request) (string, bool) {
	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		return extractBearerToken(header)
	}
	if a == nil || a.cookieName == "" {
		return "", false
	}
	cookie, err := r.Cookie(a.cookieName)
	if err != nil {
		return "", false
	}
	value := strings.TrimSpace(cookie.Value)
	return value, value != ""
}

func hasAllowedRole(identityRoles []string, allowed map[string]struct{}) bool {
	for _, role := range identityRoles {
		if _, ok := allowed[normaliseRole(role)]; ok {
			return true
		}
	}
	return false
}

func extractBearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func respondVerificationError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrTokenExpired):
		httpx.WriteError(r.Context(), w, httpx.NewError("token_expired", "access token expired", http.StatusUnauthorized))
	default:
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_token", "access token invalid", http.StatusUnauthorized))
	}
}
