// Package rail is the fiat payment boundary (a Monerium-style EUR rail).
// Only request/response shapes live here; retries belong to the task queue
// and errors surface with provider status and body preserved.
package rail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"cryptoloans-backend/internal/apperr"

	"github.com/shopspring/decimal"
)

type Client interface {
	Available() bool
	// Redeem moves EUR to an IBAN. reference is the stable idempotency key
	// the provider deduplicates on.
	Redeem(ctx context.Context, iban string, amount float64, reference string) (json.RawMessage, error)
	// Issue mints e-money to an on-chain address.
	Issue(ctx context.Context, address string, amount float64) (json.RawMessage, error)
	// VerifyUserIBAN checks that the IBAN belongs to the rail account.
	VerifyUserIBAN(ctx context.Context, userID, iban string) (json.RawMessage, error)
}

type HTTPClient struct {
	base  string
	token string
	http  *http.Client
}

func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		base:  baseURL,
		token: token,
		http:  &http.Client{Timeout: 15 * time.Second},
	}
}

var _ Client = (*HTTPClient)(nil)

func (c *HTTPClient) Available() bool { return c.base != "" }

func (c *HTTPClient) Redeem(ctx context.Context, iban string, amount float64, reference string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, "/orders/redeem", map[string]any{
		"iban":      iban,
		"amount":    decimal.NewFromFloat(amount).StringFixed(2),
		"currency":  "eur",
		"reference": reference,
	})
}

func (c *HTTPClient) Issue(ctx context.Context, address string, amount float64) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, "/orders/issue", map[string]any{
		"address":  address,
		"amount":   decimal.NewFromFloat(amount).StringFixed(2),
		"currency": "eur",
	})
}

func (c *HTTPClient) VerifyUserIBAN(ctx context.Context, userID, iban string) (json.RawMessage, error) {
	out, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/users/%s/ibans?iban=%s", userID, iban), nil)
	if err != nil {
		if e, ok := err.(*apperr.Error); ok {
			if status, _ := e.Details["status"].(int); status == http.StatusNotFound {
				return nil, apperr.NotFound("iban not found for rail user %s", userID)
			}
		}
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, payload map[string]any) (json.RawMessage, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperr.Upstream(err, "rail request %s %s failed", method, path)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperr.Upstream(nil, "rail responded %d on %s %s", resp.StatusCode, method, path).
			WithDetail("status", resp.StatusCode).
			WithDetail("body", string(raw))
	}
	return json.RawMessage(raw), nil
}

// Unconfigured fails every call with a precondition error instead of being
// probed for existence.
type Unconfigured struct{}

var _ Client = (*Unconfigured)(nil)

func (Unconfigured) Available() bool { return false }

func (Unconfigured) err() error { return apperr.Precondition("fiat rail is not configured") }

func (u Unconfigured) Redeem(context.Context, string, float64, string) (json.RawMessage, error) {
	return nil, u.err()
}

func (u Unconfigured) Issue(context.Context, string, float64) (json.RawMessage, error) {
	return nil, u.err()
}

func (u Unconfigured) VerifyUserIBAN(context.Context, string, string) (json.RawMessage, error) {
	return nil, u.err()
}
