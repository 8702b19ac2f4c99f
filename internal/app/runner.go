// internal/app/runner.go
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/solana-otc/internal/chain"
	"github.com/rovshanmuradov/solana-otc/internal/config"
	"github.com/rovshanmuradov/solana-otc/internal/history"
	"github.com/rovshanmuradov/solana-otc/internal/logger"
	"github.com/rovshanmuradov/solana-otc/internal/metrics"
	"github.com/rovshanmuradov/solana-otc/internal/otc"
	"github.com/rovshanmuradov/solana-otc/internal/otc/pricing"
	"github.com/rovshanmuradov/solana-otc/internal/pricefeed"
	"github.com/rovshanmuradov/solana-otc/internal/server"
	"github.com/rovshanmuradov/solana-otc/internal/storage/postgres"
	"github.com/rovshanmuradov/solana-otc/internal/treasury"
)

// Runner wires the OTC desk together and runs it until a shutdown
// signal arrives.
type Runner struct {
	cfg     *config.Config
	log     *logger.Logger
	server  *server.Server
	sweep   *otc.Reconciler
	limiter *otc.RateLimiter
	trades  *history.TradeHistory
}

// NewRunner builds every component from configuration. Treasury key
// problems are fatal here: the desk must not come up half-configured.
func NewRunner(cfg *config.Config) (*Runner, error) {
	log, err := logger.New(&logger.Config{
		LogFile:     filepath.Join(cfg.LogDir, "otcd.log"),
		MaxSize:     100,
		MaxAge:      7,
		MaxBackups:  3,
		Compress:    true,
		Development: cfg.DebugLogging,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	signer, err := treasury.Load(cfg.TreasuryPrivateKey, cfg.TreasuryAddress)
	if err != nil {
		return nil, fmt.Errorf("treasury signer unavailable, swaps disabled: %w", err)
	}
	log.Info("Treasury signer loaded", zap.String("treasury", signer.String()))

	mint, err := solana.PublicKeyFromBase58(cfg.TokenMint)
	if err != nil {
		return nil, fmt.Errorf("invalid token mint: %w", err)
	}

	client, err := chain.NewClient(cfg.RPCList, log.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create chain client: %w", err)
	}

	ledger, err := postgres.NewLedger(cfg.PostgresURL, log.WithComponent("storage"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ledger: %w", err)
	}
	if err := ledger.RunMigrations(); err != nil {
		return nil, fmt.Errorf("failed to migrate ledger: %w", err)
	}

	trades, err := history.NewTradeHistory(cfg.LogDir, 1000, log.WithComponent("history"))
	if err != nil {
		return nil, fmt.Errorf("failed to open trade history: %w", err)
	}

	curve := pricing.Curve{
		TierSize:        cfg.CurveTierSize,
		BasePrice:       cfg.CurveBasePrice,
		Increment:       cfg.CurveIncrement,
		SettlementScale: cfg.SettlementScale,
	}

	feed := pricefeed.New(cfg.PriceFeedURL, cfg.FallbackSOLPrice, log.Logger)
	resolver := otc.NewResolver(client, mint, signer.PublicKey(), log.Logger)
	limiter := otc.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute)

	quoteTTL := time.Duration(cfg.QuoteTTL) * time.Second

	builder := otc.NewBuilder(client, resolver, signer, ledger, curve, otc.BuilderParams{
		Mint:          mint,
		TokenDecimals: cfg.TokenDecimals,
		MinAmount:     cfg.MinSwapAmount,
		MaxAmount:     cfg.MaxSwapAmount,
		QuoteTTL:      quoteTTL,
	}, log.Logger)

	collector := metrics.NewCollector()
	confirmer := otc.NewConfirmer(client, ledger, trades, collector, log.Logger)

	engine := otc.NewEngine(client, resolver, builder, confirmer, limiter, ledger, feed, otc.EngineParams{
		Curve:         curve,
		Mint:          mint,
		TokenDecimals: cfg.TokenDecimals,
		MinAmount:     cfg.MinSwapAmount,
		MaxAmount:     cfg.MaxSwapAmount,
	}, log.Logger)

	sweep := otc.NewReconciler(client, ledger, confirmer,
		time.Duration(cfg.ReconcileInterval)*time.Second, quoteTTL, log.Logger)

	return &Runner{
		cfg:     cfg,
		log:     log,
		server:  server.New(engine, collector, cfg.ListenAddr, log.Logger),
		sweep:   sweep,
		limiter: limiter,
		trades:  trades,
	}, nil
}

// Run serves HTTP and the reconciliation sweep until SIGINT/SIGTERM.
func (r *Runner) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return r.server.Run(groupCtx) })
	group.Go(func() error { return r.sweep.Run(groupCtx) })
	group.Go(func() error { return r.pruneLimiter(groupCtx) })

	err := group.Wait()
	r.shutdown()
	if err != nil && err != context.Canceled {
		return err
	}
	return nil
}

// pruneLimiter drops expired rate-limit windows so the per-buyer map
// does not grow with every address that ever asked for a quote.
func (r *Runner) pruneLimiter(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.limiter.Prune()
		}
	}
}

func (r *Runner) shutdown() {
	r.log.Info("Shutting down")

	if err := r.trades.Close(); err != nil {
		r.log.Error("Failed to close trade history", zap.Error(err))
	}
	if err := r.log.Sync(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "failed to sync logger during shutdown: %v\n", err)
	}
}
