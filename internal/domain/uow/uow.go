package uow

import (
	"context"

	"cryptoloans-backend/internal/domain/binding"
	"cryptoloans-backend/internal/domain/loan"
)

type Repos struct {
	Loans    loan.Repository
	Events   loan.EventRepository
	Bindings binding.Repository
	Terms    binding.TermsRepository
}

// UnitOfWork runs fn with all repositories bound to one transaction so a loan
// mutation and its audit event commit or roll back together.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(r Repos) error) error
}
