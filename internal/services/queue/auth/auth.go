// Package auth verifies bearer tokens and resolves caller identities.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"

	apperrors "github.com/louisbranch/handraise/internal/errors"
	"github.com/louisbranch/handraise/internal/services/queue/domain"
)

// TokenVerifier turns a bearer token into a verified identity.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (domain.Identity, error)
}

// FirebaseVerifier validates Firebase ID tokens.
type FirebaseVerifier struct {
	client *firebaseauth.Client
}

// NewFirebaseVerifier builds a verifier from an initialized Firebase app.
func NewFirebaseVerifier(ctx context.Context, app *firebase.App) (*FirebaseVerifier, error) {
	if app == nil {
		return nil, errors.New("firebase app is required")
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("auth client: %w", err)
	}
	return &FirebaseVerifier{client: client}, nil
}

// VerifyToken checks the ID token signature and expiry and maps its claims to
// an identity. Any verification failure surfaces as forbidden.
func (v *FirebaseVerifier) VerifyToken(ctx context.Context, token string) (domain.Identity, error) {
	if v == nil || v.client == nil {
		return domain.Identity{}, errors.New("auth client is not configured")
	}
	decoded, err := v.client.VerifyIDToken(ctx, token)
	if err != nil {
		return domain.Identity{}, apperrors.Wrap(apperrors.CodeForbidden, "invalid credentials", err)
	}
	identity := domain.Identity{ProfileID: decoded.UID}
	if name, ok := decoded.Claims["name"].(string); ok {
		identity.DisplayName = name
	}
	if email, ok := decoded.Claims["email"].(string); ok {
		identity.Email = email
	}
	return identity, nil
}

// StaticVerifier accepts tokens of the form "uid" or "uid:email" without any
// signature check. Development only.
type StaticVerifier struct{}

// VerifyToken derives the identity from the raw token text.
func (StaticVerifier) VerifyToken(_ context.Context, token string) (domain.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Identity{}, apperrors.New(apperrors.CodeForbidden, "invalid credentials")
	}
	uid, email, _ := strings.Cut(token, ":")
	return domain.Identity{ProfileID: uid, Email: email}, nil
}
