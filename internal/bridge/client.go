// Package bridge is the cross-chain collateral boundary (BTC ↔ BTC.b style
// wrap/unwrap). Shapes only; callers own retries.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"cryptoloans-backend/internal/apperr"

	"github.com/shopspring/decimal"
)

type Client interface {
	Available() bool
	InitiateWrap(ctx context.Context, sourceTxID, targetAddress, network string) (json.RawMessage, error)
	InitiateUnwrap(ctx context.Context, amount float64, destinationAddress, sourceAddress, network string) (json.RawMessage, error)
	Status(ctx context.Context, transactionID string) (json.RawMessage, error)
}

type HTTPClient struct {
	base  string
	token string
	http  *http.Client
}

func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{base: baseURL, token: token, http: &http.Client{Timeout: 20 * time.Second}}
}

var _ Client = (*HTTPClient)(nil)

func (c *HTTPClient) Available() bool { return c.base != "" }

func (c *HTTPClient) InitiateWrap(ctx context.Context, sourceTxID, targetAddress, network string) (json.RawMessage, error) {
	return c.post(ctx, "/wrap", map[string]any{
		"sourceTxId":    sourceTxID,
		"targetAddress": targetAddress,
		"network":       network,
	})
}

func (c *HTTPClient) InitiateUnwrap(ctx context.Context, amount float64, destinationAddress, sourceAddress, network string) (json.RawMessage, error) {
	return c.post(ctx, "/unwrap", map[string]any{
		"amount":             decimal.NewFromFloat(amount).StringFixed(8),
		"destinationAddress": destinationAddress,
		"sourceAddress":      sourceAddress,
		"network":            network,
	})
}

func (c *HTTPClient) Status(ctx context.Context, transactionID string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/transactions/"+transactionID, nil)
	if err != nil {
		return nil, err
	}
	return c.send(req)
}

func (c *HTTPClient) post(ctx context.Context, path string, payload map[string]any) (json.RawMessage, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.send(req)
}

func (c *HTTPClient) send(req *http.Request) (json.RawMessage, error) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperr.Upstream(err, "bridge request %s %s failed", req.Method, req.URL.Path)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperr.Upstream(nil, "bridge responded %d on %s %s", resp.StatusCode, req.Method, req.URL.Path).
			WithDetail("status", resp.StatusCode).
			WithDetail("body", string(raw))
	}
	return json.RawMessage(raw), nil
}

type Unconfigured struct{}

var _ Client = (*Unconfigured)(nil)

func (Unconfigured) Available() bool { return false }

func (Unconfigured) err() error { return apperr.Precondition("bridge is not configured") }

func (u Unconfigured) InitiateWrap(context.Context, string, string, string) (json.RawMessage, error) {
	return nil, u.err()
}

func (u Unconfigured) InitiateUnwrap(context.Context, float64, string, string, string) (json.RawMessage, error) {
	return nil, u.err()
}

func (u Unconfigured) Status(context.Context, string) (json.RawMessage, error) {
	return nil, u.err()
}
