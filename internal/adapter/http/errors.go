package http

import (
	"errors"
	"net/http"

	"cryptoloans-backend/internal/apperr"
	bindingDomain "cryptoloans-backend/internal/domain/binding"
	loanDomain "cryptoloans-backend/internal/domain/loan"

	"github.com/labstack/echo/v4"
)

// writeError maps the error taxonomy onto HTTP statuses. Every surfaced error
// carries a stable kind, a human message, and optional structured details.
func writeError(c echo.Context, err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return c.JSON(statusFor(ae.Kind), map[string]any{
			"error":   ae.Message,
			"kind":    string(ae.Kind),
			"details": ae.Details,
		})
	}
	if errors.Is(err, loanDomain.ErrNotFound) || errors.Is(err, bindingDomain.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]any{
			"error": err.Error(),
			"kind":  string(apperr.KindNotFound),
		})
	}
	return c.JSON(http.StatusInternalServerError, map[string]any{"error": "internal error"})
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindPrecondition:
		return http.StatusPreconditionRequired
	case apperr.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
