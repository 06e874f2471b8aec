package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/vibek01/ECOM-D1/internal/platform/config"
)

const (
	firebaseRoleClaim     = "role"
	firebaseUsernameClaim = "name"
)

// IDTokenVerifier is the subset of the Firebase Admin auth client used for verification.
type IDTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// FirebaseVerifier verifies Firebase ID tokens and maps their claims onto an Identity.
type FirebaseVerifier struct {
	client IDTokenVerifier
}

// NewFirebaseVerifier initialises the Admin SDK for the configured project.
func NewFirebaseVerifier(ctx context.Context, cfg config.FirebaseConfig) (*FirebaseVerifier, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("firebase project id is required")
	}

	var clientOpts []option.ClientOption
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase auth client: %w", err)
	}
	return NewFirebaseVerifierWithClient(client), nil
}

// NewFirebaseVerifierWithClient wraps an existing ID token verifier.
func NewFirebaseVerifierWithClient(client IDTokenVerifier) *FirebaseVerifier {
	return &FirebaseVerifier{client: client}
}

// Verify checks the ID token. The role custom claim may be a string, a list, or a map of role to bool.
func (v *FirebaseVerifier) Verify(ctx context.Context, idToken string) (*Identity, error) {
	if v == nil || v.client == nil {
		return nil, errors.New("firebase verifier not initialised")
	}

	token, err := v.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		if firebaseauth.IsIDTokenExpired(err) {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	return &Identity{
		UID:      token.UID,
		Email:    claimAsString(token.Claims, "email"),
		Username: claimAsString(token.Claims, firebaseUsernameClaim),
		Roles:    rolesFromClaims(token.Claims, firebaseRoleClaim),
	}, nil
}

func rolesFromClaims(claims map[string]any, key string) []string {
	var candidates []string
	switch v := claims[key].(type) {
	case string:
		candidates = []string{v}
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				candidates = append(candidates, s)
			}
		}
	case []string:
		candidates = v
	case map[string]any:
		for role, enabled := range v {
			if on, ok := enabled.(bool); ok && on {
				candidates = append(candidates, role)
			}
		}
	}

	out := make([]string, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, candidate := range candidates {
		role := normaliseRole(candidate)
		if role == "" {
			continue
		}
		if _, dup := seen[role]; dup {
			continue
		}
		seen[role] = struct{}{}
		out = append(out, role)
	}
	return out
}

func claimAsString(claims map[string]any, key string) string {
	if v, ok := claims[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}
