package binding

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"gorm.io/datatypes"
)

var ErrNotFound = errors.New("binding not found")

// WalletBinding is a verified wallet-to-bank-account link. At most one per
// wallet; re-linking overwrites in place (created_at survives, the hash does
// not; it is recomputed from current inputs).
type WalletBinding struct {
	Wallet      string         `gorm:"primaryKey;size:42" json:"wallet"`
	IBAN        string         `gorm:"size:42;not null" json:"iban"`
	RailUserID  string         `gorm:"size:64;not null" json:"railUserId"`
	BindingHash string         `gorm:"size:64;not null;index:idx_wallet_bindings_hash" json:"bindingHash"`
	Signature   string         `gorm:"type:text;not null" json:"signature"`
	Message     string         `gorm:"type:text" json:"message,omitempty"`
	Metadata    datatypes.JSON `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

func (WalletBinding) TableName() string { return "wallet_bindings" }

// TermsAcceptance records a signed acceptance of the active terms document.
// One per wallet; re-acceptance overwrites.
type TermsAcceptance struct {
	Wallet     string         `gorm:"primaryKey;size:42" json:"wallet"`
	TermsHash  string         `gorm:"size:66;not null;index:idx_terms_acceptances_hash" json:"termsHash"`
	Signature  string         `gorm:"type:text;not null" json:"signature"`
	Message    datatypes.JSON `json:"message,omitempty"`
	AcceptedAt time.Time      `json:"acceptedAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

func (TermsAcceptance) TableName() string { return "terms_acceptances" }

// NormalizeWallet lower-cases and trims a wallet address.
func NormalizeWallet(wallet string) string {
	return strings.ToLower(strings.TrimSpace(wallet))
}

// NormalizeIBAN strips all whitespace and upper-cases.
func NormalizeIBAN(iban string) string {
	return strings.ToUpper(strings.Join(strings.Fields(iban), ""))
}

// Hash computes the deterministic binding fingerprint over already-normalized
// inputs: hex(sha256(wallet || iban || railUserID)).
func Hash(wallet, iban, railUserID string) string {
	h := sha256.New()
	h.Write([]byte(wallet))
	h.Write([]byte(iban))
	h.Write([]byte(railUserID))
	return hex.EncodeToString(h.Sum(nil))
}
