package http

import (
	"net/http"

	"cryptoloans-backend/internal/terms"
	"cryptoloans-backend/internal/usecase/loan"

	"github.com/labstack/echo/v4"
)

type createLoanReq struct {
	Borrower string `json:"borrower"`
	Wallet   string `json:"wallet"`
	Address  string `json:"address"`

	Principal      float64 `json:"principal" validate:"required,gt=0,dec2"`
	CollateralBTCb float64 `json:"collateralBTCb" validate:"required,gt=0"`
	LTV            float64 `json:"ltv" validate:"required,gt=0,lte=100"`
	Duration       int64   `json:"duration" validate:"required,gt=0"`

	DisburseFiat bool   `json:"disburseFiat"`
	IBAN         string `json:"iban" validate:"omitempty,iban"`

	TermsAcceptance *terms.Acceptance `json:"termsAcceptance"`
}

func (h *Handler) CreateLoan(c echo.Context) error {
	var req createLoanReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "validation failed", Details: ToFieldErrors(err)})
	}

	created, err := h.loans.Create(c.Request().Context(), loan.CreateLoanInput{
		Borrower:        req.Borrower,
		Wallet:          req.Wallet,
		Address:         req.Address,
		PrincipalEUR:    req.Principal,
		CollateralBTCb:  req.CollateralBTCb,
		LTVPercent:      req.LTV,
		DurationSeconds: req.Duration,
		DisburseFiat:    req.DisburseFiat,
		IBAN:            req.IBAN,
		TermsAcceptance: req.TermsAcceptance,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]any{"data": created})
}

func (h *Handler) ListLoans(c echo.Context) error {
	loans, err := h.loans.List(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"data": loans})
}

func (h *Handler) GetLoan(c echo.Context) error {
	l, history, err := h.loans.Get(c.Request().Context(), c.Param("loan_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"data": l, "history": history})
}

func (h *Handler) LoanHistory(c echo.Context) error {
	history, err := h.loans.History(c.Request().Context(), c.Param("loan_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"data": history})
}

type repayReq struct {
	Amount float64 `json:"amount" validate:"required,gt=0"`
}

func (h *Handler) RepayLoan(c echo.Context) error {
	var req repayReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "validation failed", Details: ToFieldErrors(err)})
	}
	l, err := h.loans.Repay(c.Request().Context(), c.Param("loan_id"), req.Amount)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"data": l})
}

type defaultReq struct {
	Reason string   `json:"reason"`
	LTV    *float64 `json:"ltv"`
}

func (h *Handler) DefaultLoan(c echo.Context) error {
	var req defaultReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	l, err := h.loans.Default(c.Request().Context(), c.Param("loan_id"), req.Reason, req.LTV)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"data": l})
}

type healthReq struct {
	PriceEUR float64 `json:"priceEur" validate:"required,gt=0"`
	LTV      float64 `json:"ltv" validate:"required,gt=0"`
}

func (h *Handler) UpdateLoanHealth(c echo.Context) error {
	var req healthReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "validation failed", Details: ToFieldErrors(err)})
	}
	l, err := h.loans.UpdateHealth(c.Request().Context(), c.Param("loan_id"), req.PriceEUR, req.LTV)
	if err != nil {
		return writeError(c, err)
	}
	if l == nil {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "loan not found"})
	}
	return c.JSON(http.StatusOK, map[string]any{"data": l})
}
