// Package store is the system of record. All loan state and the append-only
// audit trail live behind it; every other component reads and writes through
// its operations. Mutations are serialized by one store-level mutex (held for
// the read-modify-write only, never across a network call) so list/aggregate
// reads observe a consistent snapshot.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	loanDomain "cryptoloans-backend/internal/domain/loan"
	"cryptoloans-backend/internal/domain/uow"
	"cryptoloans-backend/pkg/id"

	"gorm.io/datatypes"
)

type Store struct {
	mu  sync.Mutex
	uow uow.UnitOfWork
	r   uow.Repos
	now func() time.Time
}

func New(u uow.UnitOfWork, r uow.Repos) *Store {
	return &Store{uow: u, r: r, now: func() time.Time { return time.Now().UTC() }}
}

func metaJSON(metadata map[string]any) datatypes.JSON {
	if len(metadata) == 0 {
		return nil
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}

// Create persists a new loan, assigning an identifier when absent and seeding
// defaults, and appends the "loan-created" audit event in the same
// transaction.
func (s *Store) Create(ctx context.Context, l loanDomain.Loan) (*loanDomain.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l.LoanID == "" {
		if l.ChainLoanID != "" {
			l.LoanID = l.ChainLoanID
		} else {
			l.LoanID = id.NewLoanID()
		}
	}
	if l.Status == "" {
		l.Status = loanDomain.StatusActive
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = s.now()
	}

	err := s.uow.WithinTx(ctx, func(r uow.Repos) error {
		if err := r.Loans.Create(ctx, &l); err != nil {
			return err
		}
		return r.Events.Append(ctx, &loanDomain.Event{
			LoanID: l.LoanID,
			Kind:   "loan-created",
			Metadata: metaJSON(map[string]any{
				"principal": l.PrincipalEUR,
				"ltv":       l.LTVPercent,
			}),
			Timestamp: s.now(),
		})
	})
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// Get resolves a loan by its local or on-chain identifier together with its
// full ordered event history.
func (s *Store) Get(ctx context.Context, loanID string) (*loanDomain.Loan, []loanDomain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, err := s.r.Loans.GetByAnyID(ctx, loanID)
	if err != nil {
		return nil, nil, err
	}
	events, err := s.historyFor(ctx, l)
	if err != nil {
		return nil, nil, err
	}
	return l, events, nil
}

func (s *Store) List(ctx context.Context) ([]loanDomain.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Loans.List(ctx)
}

func (s *Store) ListActive(ctx context.Context) ([]loanDomain.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Loans.ListByStatus(ctx, loanDomain.StatusActive)
}

// Patch carries partial loan fields for Update. nil pointers are left alone.
// Update performs no semantic validation; callers own that.
type Patch struct {
	Borrower        *string
	ChainLoanID     *string
	PrincipalEUR    *float64
	CollateralBTCb  *float64
	LTVPercent      *float64
	LTVBps          *int64
	DurationSeconds *int64
	Status          *loanDomain.Status
	DepositTxHash   *string
	FundTxHash      *string
	DisburseFiat    *bool
	PayoutIBAN      *string
	PayoutResult    datatypes.JSON
	BridgeResult    datatypes.JSON
}

func (p Patch) apply(l *loanDomain.Loan) {
	if p.Borrower != nil {
		l.Borrower = *p.Borrower
	}
	if p.ChainLoanID != nil {
		l.ChainLoanID = *p.ChainLoanID
	}
	if p.PrincipalEUR != nil {
		l.PrincipalEUR = *p.PrincipalEUR
	}
	if p.CollateralBTCb != nil {
		l.CollateralBTCb = *p.CollateralBTCb
	}
	if p.LTVPercent != nil {
		l.LTVPercent = *p.LTVPercent
	}
	if p.LTVBps != nil {
		l.LTVBps = *p.LTVBps
	}
	if p.DurationSeconds != nil {
		l.DurationSeconds = *p.DurationSeconds
	}
	if p.Status != nil {
		l.Status = *p.Status
	}
	if p.DepositTxHash != nil {
		l.DepositTxHash = *p.DepositTxHash
	}
	if p.FundTxHash != nil {
		l.FundTxHash = *p.FundTxHash
	}
	if p.DisburseFiat != nil {
		l.DisburseFiat = *p.DisburseFiat
	}
	if p.PayoutIBAN != nil {
		l.PayoutIBAN = *p.PayoutIBAN
	}
	if p.PayoutResult != nil {
		l.PayoutResult = p.PayoutResult
	}
	if p.BridgeResult != nil {
		l.BridgeResult = p.BridgeResult
	}
}

// Update merges patch fields into an existing record, scaffolding one when the
// identifier is unknown (out-of-order chain observation).
func (s *Store) Update(ctx context.Context, loanID string, patch Patch) (*loanDomain.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out *loanDomain.Loan
	err := s.uow.WithinTx(ctx, func(r uow.Repos) error {
		l, created, err := s.fetchOrScaffold(ctx, r, loanID)
		if err != nil {
			return err
		}
		patch.apply(l)
		out = l
		if created {
			return r.Loans.Create(ctx, l)
		}
		return r.Loans.Save(ctx, l)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MarkRepaid transitions a loan to repaid and appends "repayment-recorded".
// Re-applying is idempotent: the loan stays repaid with the latest amount. A
// defaulted loan keeps its status; the observation is still audited.
func (s *Store) MarkRepaid(ctx context.Context, loanID string, amount float64) (*loanDomain.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out *loanDomain.Loan
	err := s.uow.WithinTx(ctx, func(r uow.Repos) error {
		l, created, err := s.fetchOrScaffold(ctx, r, loanID)
		if err != nil {
			return err
		}
		if !l.Status.Terminal() || l.Status == loanDomain.StatusRepaid {
			now := s.now()
			l.Status = loanDomain.StatusRepaid
			l.RepaidAmount = amount
			l.RepaidAt = &now
		}
		if err := s.persist(ctx, r, l, created); err != nil {
			return err
		}
		out = l
		return r.Events.Append(ctx, &loanDomain.Event{
			LoanID:    l.LoanID,
			Kind:      "repayment-recorded",
			Metadata:  metaJSON(map[string]any{"amount": amount}),
			Timestamp: s.now(),
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MarkDefault transitions a loan to defaulted and appends "loan-defaulted".
// A repaid loan keeps its status.
func (s *Store) MarkDefault(ctx context.Context, loanID, reason string, ltv *float64) (*loanDomain.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out *loanDomain.Loan
	err := s.uow.WithinTx(ctx, func(r uow.Repos) error {
		l, created, err := s.fetchOrScaffold(ctx, r, loanID)
		if err != nil {
			return err
		}
		if !l.Status.Terminal() || l.Status == loanDomain.StatusDefaulted {
			l.Status = loanDomain.StatusDefaulted
			l.DefaultReason = reason
			if ltv != nil {
				l.CurrentLTV = *ltv
			}
		}
		if err := s.persist(ctx, r, l, created); err != nil {
			return err
		}
		out = l
		meta := map[string]any{"reason": reason}
		if ltv != nil {
			meta["ltv"] = *ltv
		}
		return r.Events.Append(ctx, &loanDomain.Event{
			LoanID:    l.LoanID,
			Kind:      "loan-defaulted",
			Metadata:  metaJSON(meta),
			Timestamp: s.now(),
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateHealth writes a health snapshot and appends "health-check". Unknown
// identifiers are a no-op: health means nothing for a loan we never saw.
func (s *Store) UpdateHealth(ctx context.Context, loanID string, priceEUR, ltv float64) (*loanDomain.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out *loanDomain.Loan
	err := s.uow.WithinTx(ctx, func(r uow.Repos) error {
		l, err := r.Loans.GetByAnyID(ctx, loanID)
		if errors.Is(err, loanDomain.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		now := s.now()
		l.LastPriceEUR = priceEUR
		l.CurrentLTV = ltv
		l.HealthUpdatedAt = &now
		if err := r.Loans.Save(ctx, l); err != nil {
			return err
		}
		out = l
		return r.Events.Append(ctx, &loanDomain.Event{
			LoanID:    l.LoanID,
			Kind:      "health-check",
			Metadata:  metaJSON(map[string]any{"priceEur": priceEUR, "ltv": ltv}),
			Timestamp: now,
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RecordEvent appends to the audit trail unconditionally, tolerating
// identifiers that have no loan row yet.
func (s *Store) RecordEvent(ctx context.Context, loanID, kind string, metadata map[string]any) (*loanDomain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := &loanDomain.Event{
		LoanID:    s.resolveEventKey(ctx, loanID),
		Kind:      kind,
		Metadata:  metaJSON(metadata),
		Timestamp: s.now(),
	}
	if err := s.r.Events.Append(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// History returns the ordered audit trail for an identifier, known loan or
// not.
func (s *Store) History(ctx context.Context, loanID string) ([]loanDomain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, err := s.r.Loans.GetByAnyID(ctx, loanID)
	if errors.Is(err, loanDomain.ErrNotFound) {
		return s.r.Events.ListByLoanIDs(ctx, loanID)
	}
	if err != nil {
		return nil, err
	}
	return s.historyFor(ctx, l)
}

func (s *Store) historyFor(ctx context.Context, l *loanDomain.Loan) ([]loanDomain.Event, error) {
	ids := []string{l.LoanID}
	if l.ChainLoanID != "" && l.ChainLoanID != l.LoanID {
		ids = append(ids, l.ChainLoanID)
	}
	return s.r.Events.ListByLoanIDs(ctx, ids...)
}

// resolveEventKey maps an identifier onto the canonical loan id when the loan
// is already known, so histories do not fragment across aliases.
func (s *Store) resolveEventKey(ctx context.Context, loanID string) string {
	l, err := s.r.Loans.GetByAnyID(ctx, loanID)
	if err != nil {
		return loanID
	}
	return l.LoanID
}

func (s *Store) fetchOrScaffold(ctx context.Context, r uow.Repos, loanID string) (*loanDomain.Loan, bool, error) {
	l, err := r.Loans.GetByAnyID(ctx, loanID)
	if errors.Is(err, loanDomain.ErrNotFound) {
		scaffold := &loanDomain.Loan{
			LoanID:    loanID,
			Status:    loanDomain.StatusActive,
			CreatedAt: s.now(),
		}
		return scaffold, true, nil
	}
	if err != nil {
		return nil, false, err
	}
	return l, false, nil
}

func (s *Store) persist(ctx context.Context, r uow.Repos, l *loanDomain.Loan, created bool) error {
	if created {
		return r.Loans.Create(ctx, l)
	}
	return r.Loans.Save(ctx, l)
}
