package chain

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	bindingDomain "cryptoloans-backend/internal/domain/binding"
	loanDomain "cryptoloans-backend/internal/domain/loan"
	"cryptoloans-backend/internal/bridge"
	"cryptoloans-backend/internal/rail"
	"cryptoloans-backend/internal/usecase/store"

	"gorm.io/datatypes"
)

// Coordinator event names the workers subscribe to.
const (
	EventCollateralDepositRequested = "CollateralDepositRequested"
	EventRepaymentRecorded          = "RepaymentRecorded"
	EventLoanLiquidated             = "LoanLiquidated"
	EventCollateralReleaseRequested = "CollateralReleaseRequested"
)

// LoanStore is the slice of the store the handlers mutate through.
type LoanStore interface {
	Update(ctx context.Context, loanID string, patch store.Patch) (*loanDomain.Loan, error)
	MarkRepaid(ctx context.Context, loanID string, amount float64) (*loanDomain.Loan, error)
	MarkDefault(ctx context.Context, loanID, reason string, ltv *float64) (*loanDomain.Loan, error)
	RecordEvent(ctx context.Context, loanID, kind string, metadata map[string]any) (*loanDomain.Event, error)
	GetBinding(ctx context.Context, wallet string) (*bindingDomain.WalletBinding, error)
}

// Submitter is what the handlers need from the task queue.
type Submitter interface {
	Submit(name string, run func(ctx context.Context) error)
}

// Handlers bridges decoded coordinator events into store mutations and
// background side effects. Each handler is idempotent under re-delivery of
// the same log.
type Handlers struct {
	store   LoanStore
	queue   Submitter
	rail    rail.Client
	bridge  bridge.Client
	network string
	logger  *slog.Logger

	// Bound on external calls made from queued tasks.
	callTimeout time.Duration
}

func NewHandlers(st LoanStore, queue Submitter, railClient rail.Client, bridgeClient bridge.Client, network string, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		store:       st,
		queue:       queue,
		rail:        railClient,
		bridge:      bridgeClient,
		network:     network,
		logger:      logger,
		callTimeout: 30 * time.Second,
	}
}

// ForEvent returns the handler registered for a coordinator event name, or
// nil when the event is unknown.
func (h *Handlers) ForEvent(eventName string) Handler {
	switch eventName {
	case EventCollateralDepositRequested:
		return h.CollateralDeposit
	case EventRepaymentRecorded:
		return h.Repayment
	case EventLoanLiquidated:
		return h.Liquidation
	case EventCollateralReleaseRequested:
		return h.CollateralRelease
	default:
		return nil
	}
}

// CollateralDeposit upserts the loan observed on-chain. First writer wins on
// the canonical identifier: an existing loan is reconciled by id, not
// overwritten field-by-field.
func (h *Handlers) CollateralDeposit(ctx context.Context, lg Log) error {
	chainID := ArgString(lg.Args, "loanId", "loan_id")
	if chainID == "" {
		return nil
	}
	patch := store.Patch{ChainLoanID: &chainID}
	if borrower := ArgString(lg.Args, "borrower", "wallet"); borrower != "" {
		patch.Borrower = &borrower
	}
	if amount, ok := ArgFloat(lg.Args, "collateral", "amount"); ok {
		patch.CollateralBTCb = &amount
	}
	if _, err := h.store.Update(ctx, chainID, patch); err != nil {
		return err
	}
	_, err := h.store.RecordEvent(ctx, chainID, "collateral-deposit-confirmed", map[string]any{
		"txHash":  lg.TxHash,
		"block":   lg.BlockNumber,
		"network": h.network,
	})
	return err
}

// Repayment marks the loan repaid and, when the loan is flagged for fiat
// disbursement to a linked account, submits the redemption to the task queue.
func (h *Handlers) Repayment(ctx context.Context, lg Log) error {
	loanID := ArgString(lg.Args, "loanId", "loan_id")
	if loanID == "" {
		return nil
	}
	amount, _ := ArgFloat(lg.Args, "amount", "repaidAmount")

	l, err := h.store.MarkRepaid(ctx, loanID, amount)
	if err != nil {
		return err
	}
	if !l.DisburseFiat {
		return nil
	}

	iban := l.PayoutIBAN
	if iban == "" {
		b, err := h.store.GetBinding(ctx, l.Borrower)
		if errors.Is(err, bindingDomain.ErrNotFound) {
			h.logger.Warn("repayment flagged for fiat but no binding", "loan", l.LoanID, "borrower", l.Borrower)
			return nil
		}
		if err != nil {
			return err
		}
		iban = b.IBAN
	}

	canonical := l.LoanID
	reference := canonical + ":repayment"
	h.queue.Submit("fiat-redemption", func(tctx context.Context) error {
		cctx, cancel := context.WithTimeout(tctx, h.callTimeout)
		defer cancel()
		result, err := h.rail.Redeem(cctx, iban, amount, reference)
		if err != nil {
			return err
		}
		return h.recordResult(canonical, "fiat-redemption-completed", result, func(p *store.Patch) {
			p.PayoutResult = datatypes.JSON(result)
		})
	})
	return nil
}

// Liquidation marks the loan defaulted. MarkDefault is naturally idempotent,
// which is what makes re-delivery safe without dedup keys.
func (h *Handlers) Liquidation(ctx context.Context, lg Log) error {
	loanID := ArgString(lg.Args, "loanId", "loan_id")
	if loanID == "" {
		return nil
	}
	var ltv *float64
	if v, ok := ArgFloat(lg.Args, "ltv", "currentLtv"); ok {
		ltv = &v
	}
	_, err := h.store.MarkDefault(ctx, loanID, "liquidation", ltv)
	return err
}

// CollateralRelease submits the cross-chain unwrap back to the borrower's
// destination address.
func (h *Handlers) CollateralRelease(ctx context.Context, lg Log) error {
	loanID := ArgString(lg.Args, "loanId", "loan_id")
	if loanID == "" {
		return nil
	}
	amount, _ := ArgFloat(lg.Args, "amount", "collateral")
	destination := ArgString(lg.Args, "destination", "btcAddress")
	source := ArgString(lg.Args, "source", "wallet", "borrower")

	h.queue.Submit("collateral-release", func(tctx context.Context) error {
		cctx, cancel := context.WithTimeout(tctx, h.callTimeout)
		defer cancel()
		result, err := h.bridge.InitiateUnwrap(cctx, amount, destination, source, h.network)
		if err != nil {
			return err
		}
		return h.recordResult(loanID, "collateral-released", result, func(p *store.Patch) {
			p.BridgeResult = datatypes.JSON(result)
		})
	})
	_, err := h.store.RecordEvent(ctx, loanID, "collateral-release-requested", map[string]any{
		"txHash": lg.TxHash,
		"amount": amount,
	})
	return err
}

func (h *Handlers) recordResult(loanID, kind string, result json.RawMessage, set func(*store.Patch)) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var patch store.Patch
	set(&patch)
	if _, err := h.store.Update(ctx, loanID, patch); err != nil {
		return err
	}
	var meta map[string]any
	_ = json.Unmarshal(result, &meta)
	_, err := h.store.RecordEvent(ctx, loanID, kind, meta)
	return err
}
