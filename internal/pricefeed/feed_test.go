package pricefeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSOLPriceFromFeed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"solana":{"usd":164.25}}`))
	}))
	defer server.Close()

	feed := New(server.URL, 150, zap.NewNop())

	rate, err := feed.SOLPrice(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 164.25, rate, 1e-9)
}

func TestSOLPriceUsesCache(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.Write([]byte(`{"solana":{"usd":164.25}}`))
	}))
	defer server.Close()

	feed := New(server.URL, 0, zap.NewNop())

	_, err := feed.SOLPrice(context.Background())
	require.NoError(t, err)
	_, err = feed.SOLPrice(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, calls, "second call within the cache TTL must not hit the feed")
}

func TestSOLPriceFallsBack(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	feed := New(server.URL, 164, zap.NewNop())

	rate, err := feed.SOLPrice(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 164.0, rate, 1e-9)
}

func TestSOLPriceNeverReturnsZeroSilently(t *testing.T) {
	feed := New("", 0, zap.NewNop())

	rate, err := feed.SOLPrice(context.Background())
	assert.ErrorIs(t, err, ErrNoRate)
	assert.Zero(t, rate)
}
