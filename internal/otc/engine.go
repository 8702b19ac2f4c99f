// ==============================================
// File: internal/otc/engine.go
// ==============================================
package otc

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-otc/internal/otc/pricing"
	"github.com/rovshanmuradov/solana-otc/internal/storage"
	"github.com/rovshanmuradov/solana-otc/internal/storage/models"
)

// Engine is the OTC desk facade: it owns the pricer, resolver, rate
// limiter, builder and confirmer and exposes the operations the
// transport layer calls. Each call is independent; concurrency comes
// only from concurrent buyers.
type Engine struct {
	curve     pricing.Curve
	resolver  *Resolver
	builder   *Builder
	confirmer *Confirmer
	limiter   *RateLimiter
	ledger    storage.Ledger
	rates     RateSource
	client    ChainClient
	logger    *zap.Logger

	mint          solana.PublicKey
	tokenDecimals uint8
	minAmount     uint64
	maxAmount     uint64
}

type EngineParams struct {
	Curve         pricing.Curve
	Mint          solana.PublicKey
	TokenDecimals uint8
	MinAmount     uint64
	MaxAmount     uint64
}

func NewEngine(
	client ChainClient,
	resolver *Resolver,
	builder *Builder,
	confirmer *Confirmer,
	limiter *RateLimiter,
	ledger storage.Ledger,
	rates RateSource,
	params EngineParams,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		curve:         params.Curve,
		resolver:      resolver,
		builder:       builder,
		confirmer:     confirmer,
		limiter:       limiter,
		ledger:        ledger,
		rates:         rates,
		client:        client,
		logger:        logger.Named("engine"),
		mint:          params.Mint,
		tokenDecimals: params.TokenDecimals,
		minAmount:     params.MinAmount,
		maxAmount:     params.MaxAmount,
	}
}

// quoteNow prices the next unit off the current curve position. The
// cumulative volume is always recomputed from completed swaps; there is
// no mutable current-price state anywhere.
func (e *Engine) quoteNow(ctx context.Context) (pricing.Quote, uint64, error) {
	cumulative, err := e.ledger.CumulativeCompletedVolume(ctx)
	if err != nil {
		return pricing.Quote{}, 0, fmt.Errorf("failed to read cumulative volume: %w", err)
	}

	rate, err := e.rates.SOLPrice(ctx)
	if err != nil {
		return pricing.Quote{}, 0, fmt.Errorf("exchange rate unavailable: %w", err)
	}

	quote, err := e.curve.PriceAt(cumulative, rate)
	if err != nil {
		return pricing.Quote{}, 0, err
	}
	return quote, cumulative, nil
}

// Status reports the desk's public configuration and curve position.
func (e *Engine) Status(ctx context.Context) (*DeskStatus, error) {
	quote, cumulative, err := e.quoteNow(ctx)
	if err != nil {
		return nil, err
	}

	status := &DeskStatus{
		Mint:             e.mint.String(),
		Tier:             quote.Tier,
		UnitPriceSOL:     quote.UnitPrice,
		UnitPriceRef:     quote.UnitPriceRef,
		UnitsLeftInTier:  quote.UnitsLeftInTier,
		NextUnitPriceRef: quote.NextUnitPriceRef,
		CumulativeSold:   cumulative,
		MinSwapAmount:    e.minAmount,
		MaxSwapAmount:    e.maxAmount,
	}

	// Remaining supply is best-effort; the desk status stays useful
	// even when the balance probe transiently fails.
	if res, err := e.resolver.ResolveTreasury(ctx); err == nil {
		if raw, err := e.client.GetTokenBalance(ctx, res.Address); err == nil {
			status.TreasurySupply = raw / pow10(e.tokenDecimals)
		}
	}

	return status, nil
}

// History lists a buyer's swaps, most recent first.
func (e *Engine) History(ctx context.Context, buyerAddress string, limit int) ([]*models.Swap, error) {
	if _, err := solana.PublicKeyFromBase58(buyerAddress); err != nil {
		return nil, fmt.Errorf("invalid buyer address: %w", err)
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return e.ledger.ListSwapsByBuyer(ctx, buyerAddress, limit)
}

// CreateSwap runs the full quote flow: rate limit, price lock, half-
// signed transaction, pending row. Validation failures happen before
// any network call.
func (e *Engine) CreateSwap(ctx context.Context, buyerAddress string, tokenAmount uint64) (*SwapQuote, error) {
	buyer, err := solana.PublicKeyFromBase58(buyerAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid buyer address: %w", err)
	}
	if tokenAmount < e.minAmount || tokenAmount > e.maxAmount {
		return nil, fmt.Errorf("%w: %d not in [%d, %d]",
			ErrAmountOutOfRange, tokenAmount, e.minAmount, e.maxAmount)
	}
	if !e.limiter.Allow(buyerAddress) {
		return nil, ErrRateLimited
	}

	quote, _, err := e.quoteNow(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	swapQuote, err := e.builder.Build(ctx, buyer, tokenAmount, quote)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("Quote served",
		zap.String("swap_id", swapQuote.SwapID),
		zap.Duration("elapsed", time.Since(start)))

	return swapQuote, nil
}

// SubmitSwap forwards the buyer-signed transaction to the confirmer.
func (e *Engine) SubmitSwap(ctx context.Context, swapID, signedTxBase64 string) (*SubmitResult, error) {
	if swapID == "" {
		return nil, storage.ErrSwapNotFound
	}
	return e.confirmer.Submit(ctx, swapID, signedTxBase64)
}

func pow10(exp uint8) uint64 {
	result := uint64(1)
	for i := uint8(0); i < exp; i++ {
		result *= 10
	}
	return result
}
