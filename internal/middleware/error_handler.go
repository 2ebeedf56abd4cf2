package middleware

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// ErrorResponse is the body of every error the API returns.
type ErrorResponse struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

// JSONErrorHandler renders errors as ErrorResponse. Validation errors become
// 400s listing the failing fields; anything unexpected is logged and hidden
// behind a generic 500.
func JSONErrorHandler(log *logrus.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		resp := ErrorResponse{Message: "Something went wrong. Please try again later."}

		var he *echo.HTTPError
		var ve validator.ValidationErrors
		switch {
		case errors.As(err, &ve):
			code = http.StatusBadRequest
			resp.Message = "Invalid request"
			for _, fe := range ve {
				resp.Details = append(resp.Details, fe.Field()+" failed "+fe.Tag())
			}
		case errors.As(err, &he):
			code = he.Code
			if msg, ok := he.Message.(string); ok && msg != "" {
				resp.Message = msg
			} else {
				resp.Message = http.StatusText(code)
			}
		}

		entry := log.WithFields(logrus.Fields{
			"method": c.Request().Method,
			"path":   c.Request().URL.Path,
			"status": code,
		})
		if code >= 500 {
			entry.WithError(err).Error("request failed")
		} else {
			entry.WithError(err).Debug("request rejected")
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			err = c.JSON(code, resp)
		}
		if err != nil {
			log.WithError(err).Warn("failed to write error response")
		}
	}
}
