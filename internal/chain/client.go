// Package chain holds the on-chain coordinator boundary: the capability
// interface the core consumes, the polling event workers, and the handlers
// that translate decoded logs into store mutations and background tasks.
package chain

import (
	"context"
	"encoding/json"
	"math/big"

	"cryptoloans-backend/internal/apperr"
)

// Log is one decoded contract event: the structured arguments plus enough of
// the raw log for auditing.
type Log struct {
	Args        map[string]any
	BlockNumber uint64
	TxHash      string
	Index       uint
}

// Receipt is the confirmation record of a mined transaction.
type Receipt struct {
	TxHash      string
	BlockNumber uint64
	Status      uint64
	Raw         json.RawMessage
}

type TxResult struct {
	TxHash  string
	Receipt *Receipt
}

// Client is the coordinator-contract capability. Implementations estimate
// gas, sign, broadcast and await the receipt inside SendTransaction, failing
// with an upstream error on any step. The raw RPC transport lives outside the
// core; the core only ever sees this interface.
type Client interface {
	// Name identifies the network ("avalanche", "ethereum") in logs.
	Name() string
	// Available reports whether the client is configured. Unconfigured
	// clients fail every call with a precondition error instead of being
	// probed for existence.
	Available() bool
	LatestBlockHeight(ctx context.Context) (uint64, error)
	GetLogs(ctx context.Context, eventName string, fromBlock, toBlock uint64) ([]Log, error)
	SendTransaction(ctx context.Context, functionName string, args []any, value *big.Int) (*TxResult, error)
	DecodeEvents(eventName string, receipt *Receipt) ([]Log, error)
}

// Unconfigured is the explicit "not configured" variant of Client.
type Unconfigured struct{ Network string }

func NewUnconfigured(network string) *Unconfigured { return &Unconfigured{Network: network} }

var _ Client = (*Unconfigured)(nil)

func (u *Unconfigured) Name() string    { return u.Network }
func (u *Unconfigured) Available() bool { return false }

func (u *Unconfigured) err() error {
	return apperr.Precondition("chain client %q is not configured", u.Network)
}

func (u *Unconfigured) LatestBlockHeight(context.Context) (uint64, error) { return 0, u.err() }

func (u *Unconfigured) GetLogs(context.Context, string, uint64, uint64) ([]Log, error) {
	return nil, u.err()
}

func (u *Unconfigured) SendTransaction(context.Context, string, []any, *big.Int) (*TxResult, error) {
	return nil, u.err()
}

func (u *Unconfigured) DecodeEvents(string, *Receipt) ([]Log, error) { return nil, u.err() }

// ArgString pulls the first present string argument under any of the given
// keys, normalizing []byte and fmt-able values produced by log decoders.
func ArgString(args map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := args[k]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case string:
			return t
		case []byte:
			return string(t)
		}
	}
	return ""
}

// ArgFloat pulls the first present numeric argument under any of the given
// keys.
func ArgFloat(args map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		v, ok := args[k]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case float64:
			return t, true
		case float32:
			return float64(t), true
		case int:
			return float64(t), true
		case int64:
			return float64(t), true
		case uint64:
			return float64(t), true
		case *big.Int:
			f, _ := new(big.Float).SetInt(t).Float64()
			return f, true
		}
	}
	return 0, false
}
