// Package oracle supplies the BTC/EUR reference price the risk monitor prices
// collateral with: TTL-cached, with last-known fallback so a flaky feed
// degrades to stale data instead of halting risk checks.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"cryptoloans-backend/internal/apperr"

	"github.com/redis/go-redis/v9"
)

// Source fetches a fresh price from the feed.
type Source interface {
	FetchPrice(ctx context.Context) (float64, error)
}

// HTTPSource reads a CoinGecko-style simple-price payload:
// {"bitcoin":{"eur":12345.6}}.
type HTTPSource struct {
	URL      string
	Asset    string
	Currency string
	http     *http.Client
}

func NewHTTPSource(url string) *HTTPSource {
	return &HTTPSource{
		URL:      url,
		Asset:    "bitcoin",
		Currency: "eur",
		http:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *HTTPSource) FetchPrice(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return 0, err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return 0, apperr.Upstream(err, "price feed fetch failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, apperr.Upstream(nil, "price feed responded %d", resp.StatusCode).
			WithDetail("status", resp.StatusCode)
	}
	var payload map[string]map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, apperr.Upstream(err, "price feed payload undecodable")
	}
	price, ok := payload[s.Asset][s.Currency]
	if !ok || price <= 0 {
		return 0, apperr.Upstream(nil, "price feed missing %s/%s", s.Asset, s.Currency)
	}
	return price, nil
}

const redisKey = "price:btc-eur"

// Oracle caches the reference price in memory for ttl and mirrors the
// last-known value to redis so it survives restarts. Redis is optional.
type Oracle struct {
	source Source
	redis  *redis.Client
	ttl    time.Duration
	logger *slog.Logger

	mu     sync.Mutex
	last   float64
	lastAt time.Time
}

func New(source Source, rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *Oracle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Oracle{source: source, redis: rdb, ttl: ttl, logger: logger}
}

// CurrentPrice returns a fresh-enough price: the in-memory value within ttl,
// else a new fetch. On fetch failure it falls back to the stale in-memory
// value, then redis; it fails hard only when no cache exists at all.
func (o *Oracle) CurrentPrice(ctx context.Context) (float64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := time.Now()
	if o.last > 0 && now.Sub(o.lastAt) < o.ttl {
		return o.last, nil
	}

	price, err := o.source.FetchPrice(ctx)
	if err == nil {
		o.last = price
		o.lastAt = now
		o.mirror(ctx, price)
		return price, nil
	}

	if o.last > 0 {
		o.logger.Warn("price fetch failed, serving stale value", "error", err, "age", now.Sub(o.lastAt))
		return o.last, nil
	}
	if cached, ok := o.fromRedis(ctx); ok {
		o.logger.Warn("price fetch failed, serving redis value", "error", err)
		o.last = cached
		o.lastAt = now.Add(-o.ttl) // stale: retry the feed next call
		return cached, nil
	}
	return 0, apperr.Upstream(err, "no reference price available")
}

func (o *Oracle) mirror(ctx context.Context, price float64) {
	if o.redis == nil {
		return
	}
	if err := o.redis.Set(ctx, redisKey, fmt.Sprintf("%f", price), 0).Err(); err != nil {
		o.logger.Warn("price mirror to redis failed", "error", err)
	}
}

func (o *Oracle) fromRedis(ctx context.Context) (float64, bool) {
	if o.redis == nil {
		return 0, false
	}
	raw, err := o.redis.Get(ctx, redisKey).Result()
	if err != nil {
		return 0, false
	}
	price, err := strconv.ParseFloat(raw, 64)
	if err != nil || price <= 0 {
		return 0, false
	}
	return price, true
}
