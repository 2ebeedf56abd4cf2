package middleware

import (
	"context"
	"net/http"
	"strings"

	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"
)

// TokenVerifier is satisfied by *auth.Client.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// RequireAdmin verifies a Firebase ID token from the Authorization header and
// only lets through the configured admin emails. An empty allow list admits
// any verified user.
func RequireAdmin(verifier TokenVerifier, adminEmails []string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(adminEmails))
	for _, e := range adminEmails {
		allowed[strings.ToLower(e)] = true
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if verifier == nil {
				return echo.NewHTTPError(http.StatusServiceUnavailable, "authentication not configured")
			}

			header := c.Request().Header.Get(echo.HeaderAuthorization)
			token, found := strings.CutPrefix(header, "Bearer ")
			if !found || strings.TrimSpace(token) == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}

			decoded, err := verifier.VerifyIDToken(c.Request().Context(), strings.TrimSpace(token))
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token").SetInternal(err)
			}

			email, _ := decoded.Claims["email"].(string)
			if len(allowed) > 0 && !allowed[strings.ToLower(email)] {
				return echo.NewHTTPError(http.StatusForbidden, "admin access required")
			}

			c.Set("userUID", decoded.UID)
			c.Set("userEmail", email)
			return next(c)
		}
	}
}
