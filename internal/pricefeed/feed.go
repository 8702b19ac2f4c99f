// internal/pricefeed/feed.go
package pricefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

const (
	requestTimeout = 5 * time.Second
	cacheTTL       = 30 * time.Second
	retryElapsed   = 4 * time.Second
)

// ErrNoRate means neither the feed nor the fallback can supply a
// usable rate. Pricing must fail closed on it.
var ErrNoRate = errors.New("no exchange rate available")

// Feed supplies the USD-per-SOL rate from an external market-data API,
// degrading to a configured fallback when the feed is unreachable. It
// never reports zero without an error.
type Feed struct {
	url      string
	fallback float64
	client   *http.Client
	logger   *zap.Logger

	mu        sync.Mutex
	lastRate  float64
	fetchedAt time.Time
}

func New(url string, fallback float64, logger *zap.Logger) *Feed {
	return &Feed{
		url:      url,
		fallback: fallback,
		client:   &http.Client{Timeout: requestTimeout},
		logger:   logger.Named("pricefeed"),
	}
}

type feedResponse struct {
	Solana struct {
		USD float64 `json:"usd"`
	} `json:"solana"`
}

// SOLPrice returns the current USD-per-SOL rate. Recently fetched rates
// are served from cache; feed failures fall back to the last good rate,
// then to the configured fallback.
func (f *Feed) SOLPrice(ctx context.Context) (float64, error) {
	f.mu.Lock()
	if f.lastRate > 0 && time.Since(f.fetchedAt) < cacheTTL {
		rate := f.lastRate
		f.mu.Unlock()
		return rate, nil
	}
	f.mu.Unlock()

	rate, err := f.fetch(ctx)
	if err == nil && rate > 0 {
		f.mu.Lock()
		f.lastRate = rate
		f.fetchedAt = time.Now()
		f.mu.Unlock()
		return rate, nil
	}

	f.logger.Warn("Price feed unavailable, degrading",
		zap.Error(err))

	f.mu.Lock()
	last := f.lastRate
	f.mu.Unlock()
	if last > 0 {
		return last, nil
	}
	if f.fallback > 0 {
		return f.fallback, nil
	}
	return 0, ErrNoRate
}

func (f *Feed) fetch(ctx context.Context) (float64, error) {
	if f.url == "" {
		return 0, errors.New("no price feed URL configured")
	}

	return backoff.Retry(ctx,
		func() (float64, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
			if err != nil {
				return 0, backoff.Permanent(err)
			}

			resp, err := f.client.Do(req)
			if err != nil {
				return 0, err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return 0, fmt.Errorf("price feed returned status %d", resp.StatusCode)
			}

			var payload feedResponse
			if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
				return 0, fmt.Errorf("failed to decode price feed response: %w", err)
			}
			if payload.Solana.USD <= 0 {
				return 0, fmt.Errorf("price feed returned non-positive rate %f", payload.Solana.USD)
			}
			return payload.Solana.USD, nil
		},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(retryElapsed),
	)
}
