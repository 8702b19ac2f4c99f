// ==============================================
// File: internal/otc/reconciler.go
// ==============================================
package otc

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-otc/internal/chain"
	"github.com/rovshanmuradov/solana-otc/internal/storage"
	"github.com/rovshanmuradov/solana-otc/internal/storage/models"
)

const reconcileBatchSize = 100

// Reconciler sweeps swaps left in ambiguous states: `submitted` rows
// whose confirmation wait timed out are re-queried against the network,
// and `pending` rows past the blockhash validity window are purged.
type Reconciler struct {
	client    ChainClient
	ledger    storage.Ledger
	confirmer *Confirmer
	logger    *zap.Logger

	interval time.Duration
	quoteTTL time.Duration
}

func NewReconciler(client ChainClient, ledger storage.Ledger, confirmer *Confirmer, interval, quoteTTL time.Duration, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		client:    client,
		ledger:    ledger,
		confirmer: confirmer,
		logger:    logger.Named("reconciler"),
		interval:  interval,
		quoteTTL:  quoteTTL,
	}
}

// Run blocks until ctx is cancelled, sweeping at the configured
// interval.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("Reconciler started", zap.Duration("interval", r.interval))

	for {
		select {
		case <-ctx.Done():
			r.logger.Debug("Reconciler stopped")
			return ctx.Err()
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Reconciler) sweep(ctx context.Context) {
	r.resolveSubmitted(ctx)
	r.purgeStalePending(ctx)
}

// resolveSubmitted re-queries signature status for orphaned submitted
// swaps and applies the same guarded transitions the confirmer uses.
func (r *Reconciler) resolveSubmitted(ctx context.Context) {
	swaps, err := r.ledger.ListSwapsByStatus(ctx, models.SwapStatusSubmitted, reconcileBatchSize)
	if err != nil {
		r.logger.Error("Failed to list submitted swaps", zap.Error(err))
		return
	}

	for _, swap := range swaps {
		if swap.TxSignature == nil {
			continue
		}
		sig, err := solana.SignatureFromBase58(*swap.TxSignature)
		if err != nil {
			r.logger.Error("Stored signature is malformed",
				zap.String("swap_id", swap.SwapID),
				zap.Error(err))
			continue
		}

		status, err := r.client.GetSignatureStatus(ctx, sig)
		if err != nil {
			continue
		}
		if status == chain.StatusUnknown {
			// Still no verdict; leave the row for the next sweep.
			continue
		}

		if _, err := r.confirmer.settle(ctx, swap, *swap.TxSignature, status); err != nil {
			// Execution failure is an expected settle outcome here;
			// the transition itself already happened.
			r.logger.Debug("Reconciled swap to failed",
				zap.String("swap_id", swap.SwapID),
				zap.Error(err))
		}
	}
}

func (r *Reconciler) purgeStalePending(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-r.quoteTTL)
	deleted, err := r.ledger.DeleteStalePending(ctx, cutoff)
	if err != nil {
		r.logger.Error("Failed to purge stale pending swaps", zap.Error(err))
		return
	}
	if deleted > 0 {
		r.logger.Info("Purged stale pending swaps", zap.Int64("count", deleted))
	}
}
