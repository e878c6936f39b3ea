package loanmock

import (
	"context"

	domain "cryptoloans-backend/internal/domain/loan"
)

// Repo is a function-backed mock that satisfies domain.Repository.
// Fill in the fields a test needs; nil writes are no-ops, nil reads fail.
type Repo struct {
	CreateFn       func(ctx context.Context, l *domain.Loan) error
	SaveFn         func(ctx context.Context, l *domain.Loan) error
	GetByAnyIDFn   func(ctx context.Context, id string) (*domain.Loan, error)
	ListFn         func(ctx context.Context) ([]domain.Loan, error)
	ListByStatusFn func(ctx context.Context, status domain.Status) ([]domain.Loan, error)
}

var _ domain.Repository = (*Repo)(nil)

func (m *Repo) Create(ctx context.Context, l *domain.Loan) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, l)
	}
	return nil
}

func (m *Repo) Save(ctx context.Context, l *domain.Loan) error {
	if m.SaveFn != nil {
		return m.SaveFn(ctx, l)
	}
	return nil
}

func (m *Repo) GetByAnyID(ctx context.Context, id string) (*domain.Loan, error) {
	if m.GetByAnyIDFn != nil {
		return m.GetByAnyIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (m *Repo) List(ctx context.Context) ([]domain.Loan, error) {
	if m.ListFn != nil {
		return m.ListFn(ctx)
	}
	return nil, nil
}

func (m *Repo) ListByStatus(ctx context.Context, status domain.Status) ([]domain.Loan, error) {
	if m.ListByStatusFn != nil {
		return m.ListByStatusFn(ctx, status)
	}
	return nil, nil
}

// EventRepo is a function-backed mock that satisfies domain.EventRepository.
type EventRepo struct {
	AppendFn        func(ctx context.Context, e *domain.Event) error
	ListByLoanIDsFn func(ctx context.Context, ids ...string) ([]domain.Event, error)
}

var _ domain.EventRepository = (*EventRepo)(nil)

func (m *EventRepo) Append(ctx context.Context, e *domain.Event) error {
	if m.AppendFn != nil {
		return m.AppendFn(ctx, e)
	}
	return nil
}

func (m *EventRepo) ListByLoanIDs(ctx context.Context, ids ...string) ([]domain.Event, error) {
	if m.ListByLoanIDsFn != nil {
		return m.ListByLoanIDsFn(ctx, ids...)
	}
	return nil, nil
}
