package loan

import "context"

type Repository interface {
	Create(ctx context.Context, l *Loan) error
	Save(ctx context.Context, l *Loan) error
	// GetByAnyID resolves a canonical id: loan_id first, then chain_loan_id.
	GetByAnyID(ctx context.Context, id string) (*Loan, error)
	List(ctx context.Context) ([]Loan, error)
	ListByStatus(ctx context.Context, status Status) ([]Loan, error)
}

type EventRepository interface {
	Append(ctx context.Context, e *Event) error
	// ListByLoanIDs returns the merged, insertion-ordered history for any of
	// the given identifiers. A loan known both by its local id and its
	// on-chain id owns events recorded under either.
	ListByLoanIDs(ctx context.Context, ids ...string) ([]Event, error)
}
