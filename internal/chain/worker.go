package chain

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Handler receives one decoded log. Errors and panics are contained per log;
// a bad log never stops the worker or corrupts its cursor.
type Handler func(ctx context.Context, lg Log) error

type workerState int32

const (
	stateIdle workerState = iota
	statePolling
	stateDispatching
	stateBackoff
)

func (s workerState) String() string {
	switch s {
	case statePolling:
		return "polling"
	case stateDispatching:
		return "dispatching"
	case stateBackoff:
		return "backoff"
	default:
		return "idle"
	}
}

// EventWorker polls one (client, event type) pair for new logs and dispatches
// them. The cursor advances to the latest fetched height only after a full
// fetch+dispatch pass, whether or not individual handlers failed: delivery is
// at-least-once in spirit but a transiently failing handler is not retried
// here. Dedup happens downstream against the audit trail.
type EventWorker struct {
	client    Client
	eventName string
	handler   Handler
	interval  time.Duration
	rpcTO     time.Duration
	logger    *slog.Logger

	lastSeen uint64
	state    atomic.Int32

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func NewEventWorker(client Client, eventName string, startBlock uint64, interval time.Duration, handler Handler, logger *slog.Logger) *EventWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventWorker{
		client:    client,
		eventName: eventName,
		handler:   handler,
		interval:  interval,
		rpcTO:     15 * time.Second,
		logger:    logger.With("worker", "chain-events", "event", eventName, "network", client.Name()),
		lastSeen:  startBlock,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (w *EventWorker) State() string    { return workerState(w.state.Load()).String() }
func (w *EventWorker) LastSeen() uint64 { return w.lastSeen }

func (w *EventWorker) Start() {
	go w.loop()
}

func (w *EventWorker) loop() {
	defer close(w.done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			w.state.Store(int32(stateIdle))
			return
		case <-ticker.C:
			if err := w.PollOnce(context.Background()); err != nil {
				w.state.Store(int32(stateBackoff))
				w.logger.Error("poll cycle failed", "error", err, "last_seen", w.lastSeen)
			}
		}
	}
}

// PollOnce runs a single cycle: read the latest height, fetch the pending
// range, dispatch each log, then advance the cursor.
func (w *EventWorker) PollOnce(ctx context.Context) error {
	w.state.Store(int32(statePolling))
	defer w.state.Store(int32(stateIdle))

	hctx, cancel := context.WithTimeout(ctx, w.rpcTO)
	latest, err := w.client.LatestBlockHeight(hctx)
	cancel()
	if err != nil {
		return fmt.Errorf("latest block height: %w", err)
	}

	if latest < w.lastSeen {
		// RPC rollback or a misbehaving provider; never process a
		// decreasing range.
		w.logger.Warn("chain height decreased, waiting", "latest", latest, "last_seen", w.lastSeen)
		return nil
	}
	if latest == w.lastSeen {
		return nil
	}

	from := w.lastSeen + 1
	lctx, cancel := context.WithTimeout(ctx, w.rpcTO)
	logs, err := w.client.GetLogs(lctx, w.eventName, from, latest)
	cancel()
	if err != nil {
		return fmt.Errorf("get logs %d..%d: %w", from, latest, err)
	}

	w.state.Store(int32(stateDispatching))
	for _, lg := range logs {
		w.dispatch(ctx, lg)
	}

	w.lastSeen = latest
	return nil
}

func (w *EventWorker) dispatch(ctx context.Context, lg Log) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("handler panicked", "panic", r, "tx", lg.TxHash, "block", lg.BlockNumber)
		}
	}()
	if err := w.handler(ctx, lg); err != nil {
		w.logger.Error("handler failed", "error", err, "tx", lg.TxHash, "block", lg.BlockNumber)
	}
}

// Stop signals the loop to exit. Wait joins it with a bound.
func (w *EventWorker) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
}

func (w *EventWorker) Wait(timeout time.Duration) bool {
	select {
	case <-w.done:
		return true
	case <-time.After(timeout):
		return false
	}
}
