package http

import (
	"net/http"
	"time"

	"cryptoloans-backend/internal/rail"
	"cryptoloans-backend/internal/terms"
	"cryptoloans-backend/internal/usecase/loan"
	"cryptoloans-backend/internal/usecase/store"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	loans    *loan.Usecase
	store    *store.Store
	verifier *terms.Verifier
	rail     rail.Client
}

func NewHandler(loans *loan.Usecase, st *store.Store, verifier *terms.Verifier, railClient rail.Client) *Handler {
	return &Handler{loans: loans, store: st, verifier: verifier, rail: railClient}
}

func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// RegisterRoutes mounts the whole surface on e.
func RegisterRoutes(e *echo.Echo, h *Handler, idempotency echo.MiddlewareFunc) {
	e.GET("/health", h.Health)

	loans := e.Group("/loans")
	if idempotency != nil {
		loans.Use(idempotency)
	}
	loans.POST("", h.CreateLoan)
	loans.GET("", h.ListLoans)
	loans.GET("/:loan_id", h.GetLoan)
	loans.GET("/:loan_id/history", h.LoanHistory)
	loans.POST("/:loan_id/repay", h.RepayLoan)
	loans.POST("/:loan_id/default", h.DefaultLoan)
	loans.POST("/:loan_id/health", h.UpdateLoanHealth)

	e.POST("/monerium/link", h.LinkWallet, middlewareOrNoop(idempotency))
	e.GET("/monerium/link/:wallet", h.GetBinding)

	e.POST("/terms/accept", h.AcceptTerms)
	e.GET("/terms/accept/:wallet", h.GetTermsAcceptance)
	e.GET("/terms", h.TermsDocument)
}

func middlewareOrNoop(mw echo.MiddlewareFunc) echo.MiddlewareFunc {
	if mw != nil {
		return mw
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
}
