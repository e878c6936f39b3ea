package store

import (
	"context"
	"strings"
	"time"

	"cryptoloans-backend/internal/apperr"
	bindingDomain "cryptoloans-backend/internal/domain/binding"
)

// LinkWallet upserts the wallet↔IBAN↔rail-account binding, recomputing the
// deterministic binding hash from normalized inputs. This is the record
// RequireBinding later gates fiat payouts on.
func (s *Store) LinkWallet(ctx context.Context, wallet, iban, railUserID, signature, message string, metadata map[string]any) (*bindingDomain.WalletBinding, error) {
	walletNorm := bindingDomain.NormalizeWallet(wallet)
	ibanNorm := bindingDomain.NormalizeIBAN(iban)
	userNorm := strings.TrimSpace(railUserID)
	if walletNorm == "" {
		return nil, apperr.Validation("wallet is required").WithDetail("field", "wallet")
	}
	if ibanNorm == "" {
		return nil, apperr.Validation("iban is required").WithDetail("field", "iban")
	}
	if userNorm == "" {
		return nil, apperr.Validation("rail user id is required").WithDetail("field", "railUserId")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	b := &bindingDomain.WalletBinding{
		Wallet:      walletNorm,
		IBAN:        ibanNorm,
		RailUserID:  userNorm,
		BindingHash: bindingDomain.Hash(walletNorm, ibanNorm, userNorm),
		Signature:   signature,
		Message:     message,
		Metadata:    metaJSON(metadata),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.r.Bindings.Upsert(ctx, b); err != nil {
		return nil, err
	}
	return s.r.Bindings.GetByWallet(ctx, walletNorm)
}

func (s *Store) GetBinding(ctx context.Context, wallet string) (*bindingDomain.WalletBinding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Bindings.GetByWallet(ctx, bindingDomain.NormalizeWallet(wallet))
}

// RequireBinding fails unless a binding exists for wallet and any supplied
// IBAN / rail user id normalizes to the stored value. The gate that keeps
// fiat from moving to an unverified account.
func (s *Store) RequireBinding(ctx context.Context, wallet, iban, railUserID string) (*bindingDomain.WalletBinding, error) {
	b, err := s.GetBinding(ctx, wallet)
	if err != nil {
		if err == bindingDomain.ErrNotFound {
			return nil, apperr.Precondition("wallet %s has no linked bank account", bindingDomain.NormalizeWallet(wallet))
		}
		return nil, err
	}
	if iban != "" && bindingDomain.NormalizeIBAN(iban) != b.IBAN {
		return nil, apperr.Validation("iban does not match linked account").WithDetail("field", "iban")
	}
	if railUserID != "" && strings.TrimSpace(railUserID) != b.RailUserID {
		return nil, apperr.Validation("rail user id does not match linked account").WithDetail("field", "railUserId")
	}
	return b, nil
}

// RecordTermsAcceptance upserts the signed acceptance for a wallet. The hash
// is stored 0x-prefixed lower-case so comparisons are canonical.
func (s *Store) RecordTermsAcceptance(ctx context.Context, wallet, termsHash, signature string, message map[string]any, acceptedAt time.Time) (*bindingDomain.TermsAcceptance, error) {
	walletNorm := bindingDomain.NormalizeWallet(wallet)
	if walletNorm == "" {
		return nil, apperr.Validation("wallet is required").WithDetail("field", "wallet")
	}
	hashNorm := strings.ToLower(strings.TrimSpace(termsHash))
	if hashNorm == "" {
		return nil, apperr.Validation("terms hash is required").WithDetail("field", "termsHash")
	}
	if !strings.HasPrefix(hashNorm, "0x") {
		hashNorm = "0x" + hashNorm
	}
	if acceptedAt.IsZero() {
		acceptedAt = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	payload := map[string]any{
		"wallet":    walletNorm,
		"termsHash": hashNorm,
		"timestamp": acceptedAt.Unix(),
	}
	for k, v := range message {
		payload[k] = v
	}
	t := &bindingDomain.TermsAcceptance{
		Wallet:     walletNorm,
		TermsHash:  hashNorm,
		Signature:  signature,
		Message:    metaJSON(payload),
		AcceptedAt: acceptedAt,
		UpdatedAt:  s.now(),
	}
	if err := s.r.Terms.Upsert(ctx, t); err != nil {
		return nil, err
	}
	return s.r.Terms.GetByWallet(ctx, walletNorm)
}

func (s *Store) GetTermsAcceptance(ctx context.Context, wallet string) (*bindingDomain.TermsAcceptance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Terms.GetByWallet(ctx, bindingDomain.NormalizeWallet(wallet))
}
