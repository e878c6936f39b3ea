// Package loan orchestrates the synchronous loan-creation pipeline and the
// read/ops surface the router exposes. Each creation stage fails fast; audit
// events already recorded are never rolled back.
package loan

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"cryptoloans-backend/internal/apperr"
	"cryptoloans-backend/internal/chain"
	loanDomain "cryptoloans-backend/internal/domain/loan"
	"cryptoloans-backend/internal/rail"
	"cryptoloans-backend/internal/terms"
	"cryptoloans-backend/internal/usecase/store"

	"github.com/ethereum/go-ethereum/common"
	"gorm.io/datatypes"
)

type Usecase struct {
	store    *store.Store
	verifier *terms.Verifier
	chain    chain.Client
	rail     rail.Client
	logger   *slog.Logger
}

func NewUsecase(st *store.Store, verifier *terms.Verifier, chainClient chain.Client, railClient rail.Client, logger *slog.Logger) *Usecase {
	if logger == nil {
		logger = slog.Default()
	}
	return &Usecase{store: st, verifier: verifier, chain: chainClient, rail: railClient, logger: logger}
}

type CreateLoanInput struct {
	// Borrower aliases; the first non-empty wins.
	Borrower string `json:"borrower"`
	Wallet   string `json:"wallet"`
	Address  string `json:"address"`

	PrincipalEUR    float64 `json:"principal"`
	CollateralBTCb  float64 `json:"collateralBTCb"`
	LTVPercent      float64 `json:"ltv"`
	DurationSeconds int64   `json:"duration"`

	DisburseFiat bool   `json:"disburseFiat"`
	IBAN         string `json:"iban"`

	TermsAcceptance *terms.Acceptance `json:"termsAcceptance"`
}

type pendingEvent struct {
	kind string
	meta map[string]any
}

// Create runs the fail-fast creation pipeline: validate → resolve borrower →
// verify terms → require binding for fiat → chain deposit+funding when
// configured → persist → synchronous fiat payout.
func (u *Usecase) Create(ctx context.Context, in CreateLoanInput) (*loanDomain.Loan, error) {
	if err := validateBounds(in); err != nil {
		return nil, err
	}

	borrower, err := resolveBorrower(in)
	if err != nil {
		return nil, err
	}

	var pending []pendingEvent

	// Terms acceptance is a hard requirement: no loan without it.
	if in.TermsAcceptance == nil {
		return nil, apperr.Precondition("terms acceptance is required")
	}
	acc := *in.TermsAcceptance
	if acc.Wallet == "" {
		acc.Wallet = borrower
	}
	wallet, err := u.verifier.VerifyAcceptance(acc)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(wallet, borrower) {
		return nil, apperr.Validation("terms acceptance wallet does not match borrower").
			WithDetail("field", "termsAcceptance.wallet")
	}
	acceptedAt := time.Unix(acc.Timestamp, 0).UTC()
	if _, err := u.store.RecordTermsAcceptance(ctx, wallet, u.verifier.Hash(), acc.Signature, map[string]any{
		"termsVersion": acc.TermsVersion,
	}, acceptedAt); err != nil {
		return nil, err
	}
	pending = append(pending, pendingEvent{"terms-accepted", map[string]any{
		"termsHash":    u.verifier.Hash(),
		"termsVersion": acc.TermsVersion,
	}})

	// Fiat disbursement needs a verified bank link before any money moves.
	var payoutIBAN string
	if in.DisburseFiat {
		b, err := u.store.RequireBinding(ctx, borrower, in.IBAN, "")
		if err != nil {
			return nil, err
		}
		payoutIBAN = b.IBAN
	}

	l := loanDomain.Loan{
		Borrower:          borrower,
		PrincipalEUR:      in.PrincipalEUR,
		CollateralBTCb:    in.CollateralBTCb,
		LTVPercent:        in.LTVPercent,
		LTVBps:            int64(in.LTVPercent * 100),
		DurationSeconds:   in.DurationSeconds,
		DisburseFiat:      in.DisburseFiat,
		PayoutIBAN:        payoutIBAN,
		TermsAcceptedHash: u.verifier.Hash(),
		TermsAcceptedAt:   &acceptedAt,
		TermsSignature:    acc.Signature,
	}

	// On-chain deposit and funding, when a coordinator is wired. Failure
	// here is a gateway error and nothing is persisted.
	if u.chain != nil && u.chain.Available() {
		if err := u.depositAndFund(ctx, &l, &pending); err != nil {
			return nil, err
		}
	}

	created, err := u.store.Create(ctx, l)
	if err != nil {
		return nil, err
	}
	for _, ev := range pending {
		if _, err := u.store.RecordEvent(ctx, created.LoanID, ev.kind, ev.meta); err != nil {
			u.logger.Error("pending audit event not recorded", "loan", created.LoanID, "kind", ev.kind, "error", err)
		}
	}

	if in.DisburseFiat {
		return u.payout(ctx, created)
	}
	return created, nil
}

func (u *Usecase) depositAndFund(ctx context.Context, l *loanDomain.Loan, pending *[]pendingEvent) error {
	res, err := u.chain.SendTransaction(ctx, "depositCollateral", []any{l.Borrower, l.CollateralBTCb, l.PrincipalEUR, l.LTVBps, l.DurationSeconds}, nil)
	if err != nil {
		return err
	}
	l.DepositTxHash = res.TxHash

	decoded, err := u.chain.DecodeEvents("CollateralDeposited", res.Receipt)
	if err != nil {
		return err
	}
	if len(decoded) == 0 {
		return apperr.Upstream(nil, "deposit transaction %s emitted no CollateralDeposited event", res.TxHash)
	}
	chainLoanID := chain.ArgString(decoded[0].Args, "loanId", "loan_id")
	l.ChainLoanID = chainLoanID
	*pending = append(*pending, pendingEvent{"collateral-deposit-confirmed", map[string]any{
		"txHash":      res.TxHash,
		"chainLoanId": chainLoanID,
	}})

	if chainLoanID == "" {
		return nil
	}
	fund, err := u.chain.SendTransaction(ctx, "fundLoan", []any{chainLoanID}, nil)
	if err != nil {
		return err
	}
	l.FundTxHash = fund.TxHash
	*pending = append(*pending, pendingEvent{"loan-funded", map[string]any{"txHash": fund.TxHash}})
	return nil
}

func (u *Usecase) payout(ctx context.Context, l *loanDomain.Loan) (*loanDomain.Loan, error) {
	reference := l.LoanID + ":payout"
	result, err := u.rail.Redeem(ctx, l.PayoutIBAN, l.PrincipalEUR, reference)
	if err != nil {
		// The loan exists; the failed payout is audited and the error
		// surfaces to the caller.
		if _, rerr := u.store.RecordEvent(ctx, l.LoanID, "fiat-payout-failed", map[string]any{
			"error": err.Error(),
		}); rerr != nil {
			u.logger.Error("payout failure not audited", "loan", l.LoanID, "error", rerr)
		}
		return nil, err
	}

	updated, err := u.store.Update(ctx, l.LoanID, store.Patch{PayoutResult: datatypes.JSON(result)})
	if err != nil {
		return nil, err
	}
	if _, err := u.store.RecordEvent(ctx, l.LoanID, "fiat-payout", map[string]any{
		"iban":      l.PayoutIBAN,
		"amount":    l.PrincipalEUR,
		"reference": reference,
	}); err != nil {
		u.logger.Error("payout event not recorded", "loan", l.LoanID, "error", err)
	}
	return updated, nil
}

func validateBounds(in CreateLoanInput) error {
	switch {
	case in.PrincipalEUR <= 0:
		return apperr.Validation("principal must be positive").WithDetail("field", "principal")
	case in.CollateralBTCb <= 0:
		return apperr.Validation("collateral must be positive").WithDetail("field", "collateralBTCb")
	case in.LTVPercent <= 0 || in.LTVPercent > 100:
		return apperr.Validation("ltv must be in (0, 100]").WithDetail("field", "ltv")
	case in.DurationSeconds <= 0:
		return apperr.Validation("duration must be positive").WithDetail("field", "duration")
	}
	return nil
}

func resolveBorrower(in CreateLoanInput) (string, error) {
	for _, candidate := range []string{in.Borrower, in.Wallet, in.Address} {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		if !common.IsHexAddress(candidate) {
			return "", apperr.Validation("borrower is not a valid address").WithDetail("field", "borrower")
		}
		return strings.ToLower(candidate), nil
	}
	return "", apperr.Validation("borrower address is required").WithDetail("field", "borrower")
}

// --- read/ops pass-throughs consumed by the router ---

func (u *Usecase) Get(ctx context.Context, loanID string) (*loanDomain.Loan, []loanDomain.Event, error) {
	l, events, err := u.store.Get(ctx, loanID)
	if err != nil {
		if err == loanDomain.ErrNotFound {
			return nil, nil, apperr.NotFound("loan %s not found", loanID)
		}
		return nil, nil, err
	}
	return l, events, nil
}

func (u *Usecase) List(ctx context.Context) ([]loanDomain.Loan, error) {
	return u.store.List(ctx)
}

func (u *Usecase) History(ctx context.Context, loanID string) ([]loanDomain.Event, error) {
	return u.store.History(ctx, loanID)
}

func (u *Usecase) Repay(ctx context.Context, loanID string, amount float64) (*loanDomain.Loan, error) {
	if amount <= 0 {
		return nil, apperr.Validation("amount must be positive").WithDetail("field", "amount")
	}
	return u.store.MarkRepaid(ctx, loanID, amount)
}

func (u *Usecase) Default(ctx context.Context, loanID, reason string, ltv *float64) (*loanDomain.Loan, error) {
	if strings.TrimSpace(reason) == "" {
		reason = "manual"
	}
	return u.store.MarkDefault(ctx, loanID, reason, ltv)
}

func (u *Usecase) UpdateHealth(ctx context.Context, loanID string, priceEUR, ltv float64) (*loanDomain.Loan, error) {
	return u.store.UpdateHealth(ctx, loanID, priceEUR, ltv)
}
