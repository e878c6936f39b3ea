// Package risk recomputes loan health on a timer, independent of request
// traffic and chain ingestion, and is the only component allowed to default a
// loan unilaterally.
package risk

import (
	"context"
	"log/slog"
	"sync"
	"time"

	loanDomain "cryptoloans-backend/internal/domain/loan"
)

type Store interface {
	ListActive(ctx context.Context) ([]loanDomain.Loan, error)
	UpdateHealth(ctx context.Context, loanID string, priceEUR, ltv float64) (*loanDomain.Loan, error)
	MarkDefault(ctx context.Context, loanID, reason string, ltv *float64) (*loanDomain.Loan, error)
	RecordEvent(ctx context.Context, loanID, kind string, metadata map[string]any) (*loanDomain.Event, error)
}

type PriceSource interface {
	CurrentPrice(ctx context.Context) (float64, error)
}

type Monitor struct {
	store     Store
	oracle    PriceSource
	warn      float64
	liquidate float64
	interval  time.Duration
	logger    *slog.Logger

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func NewMonitor(store Store, oracle PriceSource, warnThreshold, liquidateThreshold float64, interval time.Duration, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		store:     store,
		oracle:    oracle,
		warn:      warnThreshold,
		liquidate: liquidateThreshold,
		interval:  interval,
		logger:    logger.With("worker", "risk-monitor"),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (m *Monitor) Start() {
	go m.loop()
}

func (m *Monitor) loop() {
	defer close(m.done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			if err := m.CheckOnce(context.Background()); err != nil {
				// The loop never dies on errors, only on Stop.
				m.logger.Error("risk cycle failed", "error", err)
			}
		}
	}
}

// CheckOnce runs one full health pass over all active loans.
func (m *Monitor) CheckOnce(ctx context.Context) error {
	price, err := m.oracle.CurrentPrice(ctx)
	if err != nil {
		return err
	}

	loans, err := m.store.ListActive(ctx)
	if err != nil {
		return err
	}

	for _, l := range loans {
		if l.CollateralBTCb <= 0 {
			continue
		}
		if err := m.checkLoan(ctx, l, price); err != nil {
			m.logger.Error("loan health check failed", "loan", l.LoanID, "error", err)
		}
	}
	return nil
}

func (m *Monitor) checkLoan(ctx context.Context, l loanDomain.Loan, price float64) error {
	ltv := l.PrincipalEUR / (l.CollateralBTCb * price)

	if _, err := m.store.UpdateHealth(ctx, l.LoanID, price, ltv); err != nil {
		return err
	}

	// Liquidate strictly before warn: a loan crossing both thresholds in
	// one cycle defaults, it is not merely warned.
	switch {
	case ltv >= m.liquidate:
		m.logger.Warn("ltv breached liquidation threshold", "loan", l.LoanID, "ltv", ltv, "threshold", m.liquidate)
		_, err := m.store.MarkDefault(ctx, l.LoanID, "ltv-threshold", &ltv)
		return err
	case ltv >= m.warn:
		m.logger.Warn("ltv breached warning threshold", "loan", l.LoanID, "ltv", ltv, "threshold", m.warn)
		_, err := m.store.RecordEvent(ctx, l.LoanID, "ltv-warning", map[string]any{
			"ltv":      ltv,
			"priceEur": price,
		})
		return err
	}
	return nil
}

// Stop signals the loop; Wait joins it with a bound.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *Monitor) Wait(timeout time.Duration) bool {
	select {
	case <-m.done:
		return true
	case <-time.After(timeout):
		return false
	}
}
