package bindingmock

import (
	"context"

	domain "cryptoloans-backend/internal/domain/binding"
)

// Repo is a function-backed mock that satisfies domain.Repository.
type Repo struct {
	UpsertFn      func(ctx context.Context, b *domain.WalletBinding) error
	GetByWalletFn func(ctx context.Context, wallet string) (*domain.WalletBinding, error)
}

var _ domain.Repository = (*Repo)(nil)

func (m *Repo) Upsert(ctx context.Context, b *domain.WalletBinding) error {
	if m.UpsertFn != nil {
		return m.UpsertFn(ctx, b)
	}
	return nil
}

func (m *Repo) GetByWallet(ctx context.Context, wallet string) (*domain.WalletBinding, error) {
	if m.GetByWalletFn != nil {
		return m.GetByWalletFn(ctx, wallet)
	}
	return nil, domain.ErrNotFound
}

// TermsRepo is a function-backed mock that satisfies domain.TermsRepository.
type TermsRepo struct {
	UpsertFn      func(ctx context.Context, t *domain.TermsAcceptance) error
	GetByWalletFn func(ctx context.Context, wallet string) (*domain.TermsAcceptance, error)
}

var _ domain.TermsRepository = (*TermsRepo)(nil)

func (m *TermsRepo) Upsert(ctx context.Context, t *domain.TermsAcceptance) error {
	if m.UpsertFn != nil {
		return m.UpsertFn(ctx, t)
	}
	return nil
}

func (m *TermsRepo) GetByWallet(ctx context.Context, wallet string) (*domain.TermsAcceptance, error) {
	if m.GetByWalletFn != nil {
		return m.GetByWalletFn(ctx, wallet)
	}
	return nil, domain.ErrNotFound
}
