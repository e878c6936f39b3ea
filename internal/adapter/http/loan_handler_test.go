package http

import (
	"context"
	stdhttp "net/http"
	"testing"

	loanDomain "cryptoloans-backend/internal/domain/loan"
)

func seedLoan(t *testing.T, env *env) *loanDomain.Loan {
	t.Helper()
	l, err := env.store.Create(context.Background(), loanDomain.Loan{
		Borrower:        "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		PrincipalEUR:    1000,
		CollateralBTCb:  0.05,
		LTVPercent:      50,
		DurationSeconds: 86400,
	})
	if err != nil {
		t.Fatalf("seed loan: %v", err)
	}
	return l
}

func TestHealthEndpoint(t *testing.T) {
	env := newEnv(t)
	rec := env.do(t, stdhttp.MethodGet, "/health", nil)
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if decodeJSON(t, rec)["status"] != "ok" {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestCreateLoanValidatesBody(t *testing.T) {
	env := newEnv(t)

	cases := []struct {
		name string
		body map[string]any
	}{
		{"empty body", map[string]any{}},
		{"negative principal", map[string]any{
			"principal": -5, "collateralBTCb": 0.1, "ltv": 50, "duration": 3600,
		}},
		{"too many decimals", map[string]any{
			"principal": 10.123, "collateralBTCb": 0.1, "ltv": 50, "duration": 3600,
		}},
		{"ltv above 100", map[string]any{
			"principal": 10, "collateralBTCb": 0.1, "ltv": 150, "duration": 3600,
		}},
		{"malformed iban", map[string]any{
			"principal": 10, "collateralBTCb": 0.1, "ltv": 50, "duration": 3600, "iban": "xx",
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(t, stdhttp.MethodPost, "/loans", tc.body)
			if rec.Code != stdhttp.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestCreateLoanWithoutTermsIs428(t *testing.T) {
	env := newEnv(t)
	rec := env.do(t, stdhttp.MethodPost, "/loans", map[string]any{
		"borrower":       "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		"principal":      1000,
		"collateralBTCb": 0.05,
		"ltv":            50,
		"duration":       86400,
	})
	if rec.Code != stdhttp.StatusPreconditionRequired {
		t.Fatalf("expected 428, got %d: %s", rec.Code, rec.Body.String())
	}
	if decodeJSON(t, rec)["kind"] != "precondition" {
		t.Fatalf("unexpected error shape: %s", rec.Body.String())
	}
}

func TestGetLoanAndHistory(t *testing.T) {
	env := newEnv(t)
	l := seedLoan(t, env)

	rec := env.do(t, stdhttp.MethodGet, "/loans/"+l.LoanID, nil)
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeJSON(t, rec)
	if body["data"].(map[string]any)["loan_id"] != l.LoanID {
		t.Fatalf("wrong loan returned: %s", rec.Body.String())
	}
	if hist, ok := body["history"].([]any); !ok || len(hist) != 1 {
		t.Fatalf("expected inline history, got %s", rec.Body.String())
	}

	rec = env.do(t, stdhttp.MethodGet, "/loans/"+l.LoanID+"/history", nil)
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("history expected 200, got %d", rec.Code)
	}
}

func TestGetLoanUnknownIs404(t *testing.T) {
	env := newEnv(t)
	rec := env.do(t, stdhttp.MethodGet, "/loans/loan-missing", nil)
	if rec.Code != stdhttp.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
	if decodeJSON(t, rec)["kind"] != "not_found" {
		t.Fatalf("unexpected error shape: %s", rec.Body.String())
	}
}

func TestListLoans(t *testing.T) {
	env := newEnv(t)
	seedLoan(t, env)
	seedLoan(t, env)

	rec := env.do(t, stdhttp.MethodGet, "/loans", nil)
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if data, ok := decodeJSON(t, rec)["data"].([]any); !ok || len(data) != 2 {
		t.Fatalf("expected 2 loans, got %s", rec.Body.String())
	}
}

func TestRepayLoan(t *testing.T) {
	env := newEnv(t)
	l := seedLoan(t, env)

	rec := env.do(t, stdhttp.MethodPost, "/loans/"+l.LoanID+"/repay", map[string]any{"amount": 1000})
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if decodeJSON(t, rec)["data"].(map[string]any)["status"] != "repaid" {
		t.Fatalf("loan not repaid: %s", rec.Body.String())
	}

	// zero amount is rejected before the store sees it
	rec = env.do(t, stdhttp.MethodPost, "/loans/"+l.LoanID+"/repay", map[string]any{"amount": 0})
	if rec.Code != stdhttp.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestDefaultLoan(t *testing.T) {
	env := newEnv(t)
	l := seedLoan(t, env)

	rec := env.do(t, stdhttp.MethodPost, "/loans/"+l.LoanID+"/default", map[string]any{"reason": "court order"})
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	data := decodeJSON(t, rec)["data"].(map[string]any)
	if data["status"] != "defaulted" || data["default_reason"] != "court order" {
		t.Fatalf("unexpected loan: %s", rec.Body.String())
	}
}

func TestUpdateLoanHealth(t *testing.T) {
	env := newEnv(t)
	l := seedLoan(t, env)

	rec := env.do(t, stdhttp.MethodPost, "/loans/"+l.LoanID+"/health", map[string]any{"priceEur": 48000, "ltv": 0.42})
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	// unknown loan is a 404, not a silent success
	rec = env.do(t, stdhttp.MethodPost, "/loans/loan-missing/health", map[string]any{"priceEur": 48000, "ltv": 0.42})
	if rec.Code != stdhttp.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}
