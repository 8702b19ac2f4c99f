// ==============================================
// File: internal/otc/confirmer.go
// ==============================================
package otc

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-otc/internal/chain"
	"github.com/rovshanmuradov/solana-otc/internal/history"
	"github.com/rovshanmuradov/solana-otc/internal/metrics"
	"github.com/rovshanmuradov/solana-otc/internal/storage"
	"github.com/rovshanmuradov/solana-otc/internal/storage/models"
)

const defaultConfirmWait = 30 * time.Second

// Confirmer submits fully-signed swap transactions and reconciles the
// ledger against the network's answer. The status transitions are
// guarded, so duplicate or retried deliveries are no-ops.
type Confirmer struct {
	client  ChainClient
	ledger  storage.Ledger
	history *history.TradeHistory
	metrics *metrics.Collector
	logger  *zap.Logger

	confirmWait time.Duration
}

// NewConfirmer builds a confirmer. tradeHistory and collector may be
// nil; recording is skipped.
func NewConfirmer(client ChainClient, ledger storage.Ledger, tradeHistory *history.TradeHistory, collector *metrics.Collector, logger *zap.Logger) *Confirmer {
	return &Confirmer{
		client:      client,
		ledger:      ledger,
		history:     tradeHistory,
		metrics:     collector,
		logger:      logger.Named("confirmer"),
		confirmWait: defaultConfirmWait,
	}
}

// Submit sends the buyer-signed transaction and waits (bounded) for the
// network's verdict. A confirmation timeout leaves the swap in
// `submitted` and is NOT an error: the caller should poll, not retry.
func (c *Confirmer) Submit(ctx context.Context, swapID, signedTxBase64 string) (*SubmitResult, error) {
	swap, err := c.ledger.GetSwap(ctx, swapID)
	if err != nil {
		return nil, err
	}

	switch swap.Status {
	case models.SwapStatusPending:
		// Normal path below.
	case models.SwapStatusCompleted:
		// Retried submission of an already-settled swap.
		sig := ""
		if swap.TxSignature != nil {
			sig = *swap.TxSignature
		}
		return &SubmitResult{TxSignature: sig, Confirmed: true}, nil
	case models.SwapStatusSubmitted:
		// Already in flight; report unresolved rather than resubmit.
		sig := ""
		if swap.TxSignature != nil {
			sig = *swap.TxSignature
		}
		return &SubmitResult{TxSignature: sig, Confirmed: false}, nil
	default:
		return nil, fmt.Errorf("%w: swap %s is %s", ErrSwapNotPending, swapID, swap.Status)
	}

	if time.Now().UTC().After(swap.ExpiresAt) {
		return nil, ErrQuoteExpired
	}

	tx, err := decodeTransaction(signedTxBase64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode signed transaction: %w", err)
	}

	// Bind the submission to this row. The blockhash was recorded at
	// build time, so a transaction built for another quote cannot be
	// replayed under this swap's ID to settle the wrong amounts.
	if tx.Message.RecentBlockhash.String() != swap.Blockhash {
		c.logger.Warn("Submitted transaction was built for a different quote",
			zap.String("swap_id", swapID))
		return nil, ErrTransactionMismatch
	}

	// Pre-acceptance rejection leaves the row pending so the buyer can
	// retry with a fresh quote.
	submitStart := time.Now()
	sig, err := c.client.SendTransaction(ctx, tx)
	if err != nil {
		c.logger.Warn("Transaction rejected before acceptance",
			zap.String("swap_id", swapID),
			zap.Error(err))
		return nil, fmt.Errorf("submission rejected: %w", err)
	}

	sigStr := sig.String()
	applied, err := c.ledger.TransitionSwap(ctx, swapID,
		models.SwapStatusPending, models.SwapStatusSubmitted,
		storage.SwapUpdate{TxSignature: &sigStr})
	if err != nil {
		return nil, fmt.Errorf("failed to record submission: %w", err)
	}
	if !applied {
		// A concurrent call moved the row first; defer to its outcome.
		c.logger.Warn("Swap row already transitioned by a concurrent submission",
			zap.String("swap_id", swapID))
		return &SubmitResult{TxSignature: sigStr, Confirmed: false}, nil
	}

	c.logger.Info("Transaction submitted",
		zap.String("swap_id", swapID),
		zap.String("signature", sigStr))

	status, err := c.client.WaitForConfirmation(ctx, sig, c.confirmWait)
	if err != nil {
		// Context cancelled mid-wait: the network outcome is unknown.
		return &SubmitResult{TxSignature: sigStr, Confirmed: false}, nil
	}

	if c.metrics != nil {
		outcome := "unresolved"
		switch status {
		case chain.StatusConfirmed:
			outcome = "confirmed"
		case chain.StatusFailed:
			outcome = "failed"
		}
		c.metrics.RecordSubmission(outcome, time.Since(submitStart))
	}

	return c.settle(ctx, swap, sigStr, status)
}

// settle applies a network verdict to a submitted swap. Unknown leaves
// the row as-is; it is reconciled later rather than guessed at.
func (c *Confirmer) settle(ctx context.Context, swap *models.Swap, sigStr string, status chain.SignatureStatus) (*SubmitResult, error) {
	switch status {
	case chain.StatusConfirmed:
		now := time.Now().UTC()
		applied, err := c.ledger.TransitionSwap(ctx, swap.SwapID,
			models.SwapStatusSubmitted, models.SwapStatusCompleted,
			storage.SwapUpdate{CompletedAt: &now})
		if err != nil {
			return nil, fmt.Errorf("failed to record completion: %w", err)
		}
		if applied && c.metrics != nil {
			c.metrics.RecordSale(swap.TokenAmount)
		}
		if applied && c.history != nil {
			if err := c.history.Append(history.Entry{
				Timestamp:     now,
				SwapID:        swap.SwapID,
				BuyerAddress:  swap.BuyerAddress,
				TokenAmount:   swap.TokenAmount,
				SettlementSOL: swap.SettlementSOL,
				UnitPriceSOL:  swap.UnitPriceSOL,
				TxSignature:   sigStr,
			}); err != nil {
				c.logger.Error("Failed to append trade history",
					zap.String("swap_id", swap.SwapID),
					zap.Error(err))
			}
		}
		c.logger.Info("Swap completed",
			zap.String("swap_id", swap.SwapID),
			zap.String("signature", sigStr))
		return &SubmitResult{TxSignature: sigStr, Confirmed: true}, nil

	case chain.StatusFailed:
		_, err := c.ledger.TransitionSwap(ctx, swap.SwapID,
			models.SwapStatusSubmitted, models.SwapStatusFailed,
			storage.SwapUpdate{ErrorMessage: "transaction failed on chain"})
		if err != nil {
			return nil, fmt.Errorf("failed to record failure: %w", err)
		}
		c.logger.Warn("Swap failed on chain",
			zap.String("swap_id", swap.SwapID),
			zap.String("signature", sigStr))
		return nil, fmt.Errorf("%w: %s", ErrExecutionFailed, sigStr)

	default:
		// Timeout. Distinct from failure everywhere: marking it failed
		// while the transaction later lands would invite double payment.
		c.logger.Info("Confirmation timed out; swap remains submitted",
			zap.String("swap_id", swap.SwapID),
			zap.String("signature", sigStr))
		return &SubmitResult{TxSignature: sigStr, Confirmed: false}, nil
	}
}

func decodeTransaction(encoded string) (*solana.Transaction, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid base64: %w", err)
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid transaction encoding: %w", err)
	}
	return tx, nil
}
