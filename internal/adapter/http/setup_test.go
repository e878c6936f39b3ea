package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	sqliterepo "cryptoloans-backend/internal/adapter/repository/sqlite"
	"cryptoloans-backend/internal/chain"
	"cryptoloans-backend/internal/domain/uow"
	"cryptoloans-backend/internal/infrastructure/db"
	"cryptoloans-backend/internal/rail"
	"cryptoloans-backend/internal/terms"
	"cryptoloans-backend/internal/usecase/loan"
	"cryptoloans-backend/internal/usecase/store"

	"github.com/labstack/echo/v4"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	testChainID  = 43114
	testContract = "0x1111111111111111111111111111111111111111"
)

type env struct {
	e        *echo.Echo
	store    *store.Store
	verifier *terms.Verifier
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	st := store.New(sqliterepo.NewGormUoW(gdb), uow.Repos{
		Loans:    sqliterepo.NewLoanRepository(gdb),
		Events:   sqliterepo.NewEventRepository(gdb),
		Bindings: sqliterepo.NewBindingRepository(gdb),
		Terms:    sqliterepo.NewTermsRepository(gdb),
	})
	verifier := terms.NewVerifier("Loan terms v1", "1", testChainID, testContract)
	uc := loan.NewUsecase(st, verifier, chain.NewUnconfigured("testnet"), rail.Unconfigured{}, nil)
	h := NewHandler(uc, st, verifier, rail.Unconfigured{})

	e := echo.New()
	e.HideBanner = true
	e.Validator = NewValidator()
	RegisterRoutes(e, h, nil)
	return &env{e: e, store: st, verifier: verifier}
}

func (env *env) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}
