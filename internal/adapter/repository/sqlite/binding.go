package sqlite

import (
	"context"
	"errors"

	bindingDomain "cryptoloans-backend/internal/domain/binding"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type BindingRepository struct{ db *gorm.DB }

func NewBindingRepository(db *gorm.DB) *BindingRepository { return &BindingRepository{db: db} }

func (r *BindingRepository) Upsert(ctx context.Context, b *bindingDomain.WalletBinding) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "wallet"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"iban", "rail_user_id", "binding_hash", "signature", "message", "metadata", "updated_at",
		}),
	}).Create(b).Error
}

func (r *BindingRepository) GetByWallet(ctx context.Context, wallet string) (*bindingDomain.WalletBinding, error) {
	var out bindingDomain.WalletBinding
	res := r.db.WithContext(ctx).Where("wallet = ?", wallet).First(&out)
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return nil, bindingDomain.ErrNotFound
	}
	if res.Error != nil {
		return nil, res.Error
	}
	return &out, nil
}

type TermsRepository struct{ db *gorm.DB }

func NewTermsRepository(db *gorm.DB) *TermsRepository { return &TermsRepository{db: db} }

func (r *TermsRepository) Upsert(ctx context.Context, t *bindingDomain.TermsAcceptance) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "wallet"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"terms_hash", "signature", "message", "accepted_at", "updated_at",
		}),
	}).Create(t).Error
}

func (r *TermsRepository) GetByWallet(ctx context.Context, wallet string) (*bindingDomain.TermsAcceptance, error) {
	var out bindingDomain.TermsAcceptance
	res := r.db.WithContext(ctx).Where("wallet = ?", wallet).First(&out)
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return nil, bindingDomain.ErrNotFound
	}
	if res.Error != nil {
		return nil, res.Error
	}
	return &out, nil
}
