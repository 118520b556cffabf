// Package appcheck verifies Firebase App Check tokens presented by callers.
package appcheck

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	firebase "firebase.google.com/go/v4"
	fbappcheck "firebase.google.com/go/v4/appcheck"

	"github.com/cruxstack/form-mail-relay-go/internal/config"
	"github.com/cruxstack/form-mail-relay-go/internal/types"
)

// Header carries the App Check token on callable requests.
const Header = "X-Firebase-AppCheck"

var ErrMissingToken = errors.New("app check token missing")

type Verifier interface {
	Verify(ctx context.Context, token string) (*types.AppContext, error)
}

// TokenVerifier is satisfied by *appcheck.Client from the Firebase Admin SDK.
type TokenVerifier interface {
	VerifyToken(token string) (*fbappcheck.DecodedAppCheckToken, error)
}

type FirebaseVerifier struct {
	Client TokenVerifier
}

// NewFirebaseVerifier initialises a Firebase app with application default
// credentials. projectID may be empty to use the ambient project.
func NewFirebaseVerifier(ctx context.Context, projectID string) (*FirebaseVerifier, error) {
	var fbcfg *firebase.Config
	if projectID != "" {
		fbcfg = &firebase.Config{ProjectID: projectID}
	}

	app, err := firebase.NewApp(ctx, fbcfg)
	if err != nil {
		return nil, fmt.Errorf("firebase app init failed: %w", err)
	}

	client, err := app.AppCheck(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase app check init failed: %w", err)
	}

	return &FirebaseVerifier{Client: client}, nil
}

func (v *FirebaseVerifier) Verify(ctx context.Context, token string) (*types.AppContext, error) {
	if token == "" {
		return nil, ErrMissingToken
	}

	decoded, err := v.Client.VerifyToken(token)
	if err != nil {
		return nil, fmt.Errorf("app check token rejected: %w", err)
	}

	return &types.AppContext{
		AppID:     decoded.AppID,
		Token:     token,
		IssuedAt:  decoded.IssuedAt,
		ExpiresAt: decoded.ExpiresAt,
	}, nil
}

// StaticVerifier accepts any non-empty token. It is only wired in debug mode.
type StaticVerifier struct {
	AppID string
}

func (v *StaticVerifier) Verify(ctx context.Context, token string) (*types.AppContext, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	appID := v.AppID
	if appID == "" {
		appID = "debug"
	}
	return &types.AppContext{AppID: appID, Token: token}, nil
}

// TokenFromHeader extracts the App Check token from h.
func TokenFromHeader(h http.Header) string {
	return strings.TrimSpace(h.Get(Header))
}

// NewVerifier returns the Firebase verifier, or a StaticVerifier when
// enforcement is disabled (debug mode only, checked by config.Validate).
func NewVerifier(ctx context.Context, cfg *config.Config) (Verifier, error) {
	if !cfg.AppAppCheckEnforce {
		slog.WarnContext(ctx, "app check enforcement disabled, accepting any token")
		return &StaticVerifier{}, nil
	}
	return NewFirebaseVerifier(ctx, cfg.AppFirebaseProjectID)
}
