package middleware

import (
	"context"
	"errors"
	"fmt"
	"os"

	firebase "firebase.google.com/go/v4"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

// ErrNoCredentials means the Firebase service account file is missing, so
// admin routes stay closed.
var ErrNoCredentials = errors.New("firebase credentials not found")

// NewFirebaseVerifier builds the admin token verifier from a service account
// file. On failure the returned verifier is a nil interface, which makes
// RequireAdmin reject every request.
func NewFirebaseVerifier(ctx context.Context, credPath string, log *logrus.Logger) (TokenVerifier, error) {
	if credPath == "" {
		return nil, ErrNoCredentials
	}
	if _, err := os.Stat(credPath); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNoCredentials, credPath, err)
	}

	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credPath))
	if err != nil {
		return nil, fmt.Errorf("firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase auth client: %w", err)
	}
	log.WithField("credentials", credPath).Info("Firebase token verifier ready")
	return client, nil
}
