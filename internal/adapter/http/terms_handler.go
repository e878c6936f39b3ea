package http

import (
	"net/http"
	"time"

	"cryptoloans-backend/internal/terms"

	"github.com/labstack/echo/v4"
)

// AcceptTerms verifies a signed acceptance and persists it for the wallet.
func (h *Handler) AcceptTerms(c echo.Context) error {
	var acc terms.Acceptance
	if err := c.Bind(&acc); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	wallet, err := h.verifier.VerifyAcceptance(acc)
	if err != nil {
		return writeError(c, err)
	}

	record, err := h.store.RecordTermsAcceptance(c.Request().Context(), wallet, h.verifier.Hash(), acc.Signature, map[string]any{
		"termsVersion": acc.TermsVersion,
	}, time.Unix(acc.Timestamp, 0).UTC())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]any{"data": record})
}

func (h *Handler) GetTermsAcceptance(c echo.Context) error {
	record, err := h.store.GetTermsAcceptance(c.Request().Context(), c.Param("wallet"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"data": record})
}

// TermsDocument publishes what clients need to build a valid acceptance
// signature: text, canonical hash, active version, and the typed-data domain.
func (h *Handler) TermsDocument(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"text":    h.verifier.Text(),
		"hash":    h.verifier.Hash(),
		"version": h.verifier.Version(),
		"domain":  h.verifier.Domain(),
	})
}
