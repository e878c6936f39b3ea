package chain

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	bindingDomain "cryptoloans-backend/internal/domain/binding"
	loanDomain "cryptoloans-backend/internal/domain/loan"
	"cryptoloans-backend/internal/rail"
	"cryptoloans-backend/internal/usecase/store"
)

// memStore is an in-memory LoanStore capturing every mutation.
type memStore struct {
	loans      map[string]*loanDomain.Loan
	bindings   map[string]*bindingDomain.WalletBinding
	bindingErr error
	events     []string // "loanID/kind"
}

func newMemStore() *memStore {
	return &memStore{
		loans:    map[string]*loanDomain.Loan{},
		bindings: map[string]*bindingDomain.WalletBinding{},
	}
}

func (m *memStore) loan(id string) *loanDomain.Loan {
	if l, ok := m.loans[id]; ok {
		return l
	}
	l := &loanDomain.Loan{LoanID: id, Status: loanDomain.StatusActive}
	m.loans[id] = l
	return l
}

func (m *memStore) Update(_ context.Context, loanID string, patch store.Patch) (*loanDomain.Loan, error) {
	l := m.loan(loanID)
	if patch.Borrower != nil {
		l.Borrower = *patch.Borrower
	}
	if patch.ChainLoanID != nil {
		l.ChainLoanID = *patch.ChainLoanID
	}
	if patch.CollateralBTCb != nil {
		l.CollateralBTCb = *patch.CollateralBTCb
	}
	if patch.PayoutResult != nil {
		l.PayoutResult = patch.PayoutResult
	}
	if patch.BridgeResult != nil {
		l.BridgeResult = patch.BridgeResult
	}
	return l, nil
}

func (m *memStore) MarkRepaid(_ context.Context, loanID string, amount float64) (*loanDomain.Loan, error) {
	l := m.loan(loanID)
	if !l.Status.Terminal() {
		l.Status = loanDomain.StatusRepaid
		l.RepaidAmount = amount
	}
	m.events = append(m.events, loanID+"/repayment-recorded")
	return l, nil
}

func (m *memStore) MarkDefault(_ context.Context, loanID, reason string, _ *float64) (*loanDomain.Loan, error) {
	l := m.loan(loanID)
	if !l.Status.Terminal() {
		l.Status = loanDomain.StatusDefaulted
		l.DefaultReason = reason
	}
	m.events = append(m.events, loanID+"/loan-defaulted")
	return l, nil
}

func (m *memStore) RecordEvent(_ context.Context, loanID, kind string, _ map[string]any) (*loanDomain.Event, error) {
	m.events = append(m.events, loanID+"/"+kind)
	return &loanDomain.Event{LoanID: loanID, Kind: kind}, nil
}

func (m *memStore) GetBinding(_ context.Context, wallet string) (*bindingDomain.WalletBinding, error) {
	if m.bindingErr != nil {
		return nil, m.bindingErr
	}
	b, ok := m.bindings[wallet]
	if !ok {
		return nil, bindingDomain.ErrNotFound
	}
	return b, nil
}

func (m *memStore) hasEvent(key string) bool {
	for _, e := range m.events {
		if e == key {
			return true
		}
	}
	return false
}

// inlineQueue runs submitted tasks synchronously.
type inlineQueue struct {
	names []string
	errs  []error
}

func (q *inlineQueue) Submit(name string, run func(ctx context.Context) error) {
	q.names = append(q.names, name)
	q.errs = append(q.errs, run(context.Background()))
}

type redeemRail struct {
	rail.Unconfigured
	refs []string
	err  error
}

func (r *redeemRail) Available() bool { return true }

func (r *redeemRail) Redeem(_ context.Context, iban string, amount float64, reference string) (json.RawMessage, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.refs = append(r.refs, reference)
	return json.RawMessage(`{"id":"r1","status":"processed"}`), nil
}

type unwrapBridge struct {
	dests []string
}

func (b *unwrapBridge) Available() bool { return true }

func (b *unwrapBridge) InitiateWrap(context.Context, string, string, string) (json.RawMessage, error) {
	return nil, errors.New("not scripted")
}

func (b *unwrapBridge) InitiateUnwrap(_ context.Context, amount float64, destination, source, network string) (json.RawMessage, error) {
	b.dests = append(b.dests, destination)
	return json.RawMessage(`{"id":"b1","status":"pending"}`), nil
}

func (b *unwrapBridge) Status(context.Context, string) (json.RawMessage, error) {
	return nil, errors.New("not scripted")
}

func depositLog(loanID string) Log {
	return Log{
		Args: map[string]any{
			"loanId":     loanID,
			"borrower":   "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
			"collateral": 0.5,
		},
		BlockNumber: 101,
		TxHash:      "0xdep",
	}
}

func TestForEventDispatchTable(t *testing.T) {
	h := NewHandlers(newMemStore(), &inlineQueue{}, &redeemRail{}, &unwrapBridge{}, "testnet", nil)
	for _, ev := range []string{
		EventCollateralDepositRequested,
		EventRepaymentRecorded,
		EventLoanLiquidated,
		EventCollateralReleaseRequested,
	} {
		if h.ForEvent(ev) == nil {
			t.Errorf("no handler for %s", ev)
		}
	}
	if h.ForEvent("SomethingElse") != nil {
		t.Error("unknown event got a handler")
	}
}

func TestCollateralDepositUpsertsAndAudits(t *testing.T) {
	st := newMemStore()
	h := NewHandlers(st, &inlineQueue{}, &redeemRail{}, &unwrapBridge{}, "testnet", nil)

	if err := h.CollateralDeposit(context.Background(), depositLog("0xloan1")); err != nil {
		t.Fatalf("CollateralDeposit: %v", err)
	}
	l := st.loans["0xloan1"]
	if l == nil || l.CollateralBTCb != 0.5 || l.Borrower == "" {
		t.Fatalf("loan not upserted: %+v", l)
	}
	if !st.hasEvent("0xloan1/collateral-deposit-confirmed") {
		t.Fatalf("deposit not audited: %v", st.events)
	}

	// re-delivery of the same log converges to the same state
	if err := h.CollateralDeposit(context.Background(), depositLog("0xloan1")); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if len(st.loans) != 1 {
		t.Fatalf("redelivery created a second loan")
	}
}

func TestCollateralDepositIgnoresLogWithoutID(t *testing.T) {
	st := newMemStore()
	h := NewHandlers(st, &inlineQueue{}, &redeemRail{}, &unwrapBridge{}, "testnet", nil)

	if err := h.CollateralDeposit(context.Background(), Log{Args: map[string]any{}}); err != nil {
		t.Fatalf("CollateralDeposit: %v", err)
	}
	if len(st.loans) != 0 || len(st.events) != 0 {
		t.Fatalf("malformed log caused writes: loans=%v events=%v", st.loans, st.events)
	}
}

func TestRepaymentWithoutFiatFlagStops(t *testing.T) {
	st := newMemStore()
	q := &inlineQueue{}
	h := NewHandlers(st, q, &redeemRail{}, &unwrapBridge{}, "testnet", nil)

	lg := Log{Args: map[string]any{"loanId": "0xloan1", "amount": 900.0}}
	if err := h.Repayment(context.Background(), lg); err != nil {
		t.Fatalf("Repayment: %v", err)
	}
	if st.loans["0xloan1"].Status != loanDomain.StatusRepaid {
		t.Fatalf("loan not repaid: %+v", st.loans["0xloan1"])
	}
	if len(q.names) != 0 {
		t.Fatalf("redemption queued without fiat flag: %v", q.names)
	}
}

func TestRepaymentQueuesFiatRedemption(t *testing.T) {
	st := newMemStore()
	st.loans["0xloan1"] = &loanDomain.Loan{
		LoanID:       "0xloan1",
		Status:       loanDomain.StatusActive,
		DisburseFiat: true,
		PayoutIBAN:   "DE89370400440532013000",
	}
	q := &inlineQueue{}
	r := &redeemRail{}
	h := NewHandlers(st, q, r, &unwrapBridge{}, "testnet", nil)

	lg := Log{Args: map[string]any{"loanId": "0xloan1", "amount": 900.0}}
	if err := h.Repayment(context.Background(), lg); err != nil {
		t.Fatalf("Repayment: %v", err)
	}
	if len(q.names) != 1 || q.names[0] != "fiat-redemption" {
		t.Fatalf("redemption not queued: %v", q.names)
	}
	if q.errs[0] != nil {
		t.Fatalf("redemption task failed: %v", q.errs[0])
	}
	if len(r.refs) != 1 || r.refs[0] != "0xloan1:repayment" {
		t.Fatalf("redemption reference wrong: %v", r.refs)
	}
	if len(st.loans["0xloan1"].PayoutResult) == 0 {
		t.Fatalf("redemption result not stored")
	}
	if !st.hasEvent("0xloan1/fiat-redemption-completed") {
		t.Fatalf("redemption not audited: %v", st.events)
	}
}

func TestRepaymentFallsBackToBindingIBAN(t *testing.T) {
	st := newMemStore()
	st.loans["0xloan1"] = &loanDomain.Loan{
		LoanID:       "0xloan1",
		Status:       loanDomain.StatusActive,
		DisburseFiat: true,
		Borrower:     "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
	}
	st.bindings["0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"] = &bindingDomain.WalletBinding{
		Wallet: "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		IBAN:   "NL91ABNA0417164300",
	}
	q := &inlineQueue{}
	r := &redeemRail{}
	h := NewHandlers(st, q, r, &unwrapBridge{}, "testnet", nil)

	lg := Log{Args: map[string]any{"loanId": "0xloan1", "amount": 900.0}}
	if err := h.Repayment(context.Background(), lg); err != nil {
		t.Fatalf("Repayment: %v", err)
	}
	if len(r.refs) != 1 {
		t.Fatalf("redemption did not run: %v", q.names)
	}
}

func TestRepaymentWithFiatButNoBindingSkipsQuietly(t *testing.T) {
	st := newMemStore()
	st.loans["0xloan1"] = &loanDomain.Loan{
		LoanID:       "0xloan1",
		Status:       loanDomain.StatusActive,
		DisburseFiat: true,
		Borrower:     "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
	}
	q := &inlineQueue{}
	h := NewHandlers(st, q, &redeemRail{}, &unwrapBridge{}, "testnet", nil)

	lg := Log{Args: map[string]any{"loanId": "0xloan1", "amount": 900.0}}
	if err := h.Repayment(context.Background(), lg); err != nil {
		t.Fatalf("Repayment: %v", err)
	}
	if len(q.names) != 0 {
		t.Fatalf("redemption queued without binding: %v", q.names)
	}
	if st.loans["0xloan1"].Status != loanDomain.StatusRepaid {
		t.Fatalf("repayment not recorded: %+v", st.loans["0xloan1"])
	}
}

func TestRepaymentSurfacesBindingLookupFailure(t *testing.T) {
	st := newMemStore()
	st.loans["0xloan1"] = &loanDomain.Loan{
		LoanID:       "0xloan1",
		Status:       loanDomain.StatusActive,
		DisburseFiat: true,
		Borrower:     "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
	}
	st.bindingErr = errors.New("connection reset")
	q := &inlineQueue{}
	h := NewHandlers(st, q, &redeemRail{}, &unwrapBridge{}, "testnet", nil)

	lg := Log{Args: map[string]any{"loanId": "0xloan1", "amount": 900.0}}
	err := h.Repayment(context.Background(), lg)
	if !errors.Is(err, st.bindingErr) {
		t.Fatalf("transient lookup failure swallowed: %v", err)
	}
	// only a missing binding is skippable; a failed lookup must not drop the
	// payout, redelivery retries it
	if len(q.names) != 0 {
		t.Fatalf("redemption queued despite lookup failure: %v", q.names)
	}
	if st.loans["0xloan1"].Status != loanDomain.StatusRepaid {
		t.Fatalf("repayment itself should stick: %+v", st.loans["0xloan1"])
	}
}

func TestLiquidationDefaultsLoan(t *testing.T) {
	st := newMemStore()
	h := NewHandlers(st, &inlineQueue{}, &redeemRail{}, &unwrapBridge{}, "testnet", nil)

	lg := Log{Args: map[string]any{"loanId": "0xloan1", "ltv": 0.72}}
	if err := h.Liquidation(context.Background(), lg); err != nil {
		t.Fatalf("Liquidation: %v", err)
	}
	l := st.loans["0xloan1"]
	if l.Status != loanDomain.StatusDefaulted || l.DefaultReason != "liquidation" {
		t.Fatalf("loan not defaulted: %+v", l)
	}
}

func TestCollateralReleaseQueuesUnwrap(t *testing.T) {
	st := newMemStore()
	q := &inlineQueue{}
	b := &unwrapBridge{}
	h := NewHandlers(st, q, &redeemRail{}, b, "testnet", nil)

	lg := Log{Args: map[string]any{
		"loanId":      "0xloan1",
		"amount":      0.5,
		"destination": "bc1qdestination",
	}}
	if err := h.CollateralRelease(context.Background(), lg); err != nil {
		t.Fatalf("CollateralRelease: %v", err)
	}
	if len(q.names) != 1 || q.names[0] != "collateral-release" {
		t.Fatalf("unwrap not queued: %v", q.names)
	}
	if len(b.dests) != 1 || b.dests[0] != "bc1qdestination" {
		t.Fatalf("unwrap destination wrong: %v", b.dests)
	}
	if !st.hasEvent("0xloan1/collateral-release-requested") {
		t.Fatalf("release not audited: %v", st.events)
	}
	if !st.hasEvent("0xloan1/collateral-released") {
		t.Fatalf("completion not audited: %v", st.events)
	}
	if len(st.loans["0xloan1"].BridgeResult) == 0 {
		t.Fatalf("bridge result not stored")
	}
}
