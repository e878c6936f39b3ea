package loan

import (
	"errors"
	"time"

	"gorm.io/datatypes"
)

var ErrNotFound = errors.New("loan not found")

type Status string

const (
	StatusActive    Status = "active"
	StatusRepaid    Status = "repaid"
	StatusDefaulted Status = "defaulted"
)

// Terminal reports whether s is an end state. Terminal loans never return to
// active and never move to the other terminal state.
func (s Status) Terminal() bool { return s == StatusRepaid || s == StatusDefaulted }

// Loan is the mutable projection of a loan's lifecycle. The append-only Event
// stream is the authoritative record of what happened; this row is derived
// from it and from synchronous orchestration.
type Loan struct {
	ID uint64 `gorm:"primaryKey;column:id" json:"-"`
	// Canonical identifier: locally generated ("loan-<hex>") or the
	// 0x-prefixed on-chain loan id when the chain spoke first.
	LoanID string `gorm:"size:80;uniqueIndex:ux_loans_loan_id" json:"loan_id"`
	// 32-byte on-chain id once known; reconciliation key for chain events.
	ChainLoanID string `gorm:"size:66;index:idx_loans_chain_loan_id" json:"chain_loan_id,omitempty"`

	Borrower        string  `gorm:"size:42;index:idx_loans_borrower" json:"borrower"`
	PrincipalEUR    float64 `gorm:"type:decimal(18,2)" json:"principal_eur"`
	CollateralBTCb  float64 `gorm:"type:decimal(18,8)" json:"collateral_btcb"`
	LTVPercent      float64 `gorm:"type:decimal(6,2)" json:"ltv_percent"`
	LTVBps          int64   `json:"ltv_bps"`
	DurationSeconds int64   `json:"duration_seconds"`

	Status    Status    `gorm:"size:16;default:'active';index:idx_loans_status" json:"status"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	// Health snapshot written by the risk monitor.
	LastPriceEUR    float64    `json:"last_price_eur,omitempty"`
	CurrentLTV      float64    `json:"current_ltv,omitempty"`
	HealthUpdatedAt *time.Time `json:"health_updated_at,omitempty"`

	RepaidAmount  float64    `gorm:"type:decimal(18,2)" json:"repaid_amount,omitempty"`
	RepaidAt      *time.Time `json:"repaid_at,omitempty"`
	DefaultReason string     `gorm:"size:64" json:"default_reason,omitempty"`

	DepositTxHash string `gorm:"size:66" json:"deposit_tx_hash,omitempty"`
	FundTxHash    string `gorm:"size:66" json:"fund_tx_hash,omitempty"`

	DisburseFiat bool   `json:"disburse_fiat"`
	PayoutIBAN   string `gorm:"size:42" json:"payout_iban,omitempty"`

	PayoutResult datatypes.JSON `json:"payout_result,omitempty"`
	BridgeResult datatypes.JSON `json:"bridge_result,omitempty"`

	TermsAcceptedHash string     `gorm:"size:66" json:"terms_accepted_hash,omitempty"`
	TermsAcceptedAt   *time.Time `json:"terms_accepted_at,omitempty"`
	TermsSignature    string     `gorm:"type:text" json:"terms_signature,omitempty"`
}

func (Loan) TableName() string { return "loans" }

// Event is one append-only audit entry. LoanID is deliberately not a foreign
// key: chain events may arrive before the loan row exists.
type Event struct {
	ID        uint64         `gorm:"primaryKey;column:id" json:"-"`
	LoanID    string         `gorm:"size:80;index:idx_loan_events_loan" json:"loan_id"`
	Kind      string         `gorm:"size:64" json:"event"`
	Metadata  datatypes.JSON `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

func (Event) TableName() string { return "loan_events" }
