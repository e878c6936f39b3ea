package http

import (
	"net/http"

	"cryptoloans-backend/internal/terms"

	"github.com/labstack/echo/v4"
)

type linkWalletReq struct {
	Wallet     string         `json:"wallet"`
	IBAN       string         `json:"iban" validate:"required,iban"`
	RailUserID string         `json:"moneriumUserId" validate:"required"`
	Signature  string         `json:"signature" validate:"required"`
	Message    string         `json:"message" validate:"required"`
	Metadata   map[string]any `json:"metadata"`
}

// LinkWallet proves wallet ownership via a personal-sign message, checks the
// IBAN against the rail account when a rail is configured, then upserts the
// binding.
func (h *Handler) LinkWallet(c echo.Context) error {
	var req linkWalletReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "validation failed", Details: ToFieldErrors(err)})
	}

	wallet, err := terms.RecoverPersonalSign(req.Message, req.Signature, req.Wallet)
	if err != nil {
		return writeError(c, err)
	}

	if h.rail != nil && h.rail.Available() {
		if _, err := h.rail.VerifyUserIBAN(c.Request().Context(), req.RailUserID, req.IBAN); err != nil {
			return writeError(c, err)
		}
	}

	b, err := h.store.LinkWallet(c.Request().Context(), wallet, req.IBAN, req.RailUserID, req.Signature, req.Message, req.Metadata)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]any{"data": b})
}

func (h *Handler) GetBinding(c echo.Context) error {
	b, err := h.store.GetBinding(c.Request().Context(), c.Param("wallet"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"data": b})
}
