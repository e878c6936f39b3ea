package binding

import "context"

type Repository interface {
	// Upsert keyed by normalized wallet. created_at of an existing row wins.
	Upsert(ctx context.Context, b *WalletBinding) error
	GetByWallet(ctx context.Context, wallet string) (*WalletBinding, error)
}

type TermsRepository interface {
	Upsert(ctx context.Context, t *TermsAcceptance) error
	GetByWallet(ctx context.Context, wallet string) (*TermsAcceptance, error)
}
