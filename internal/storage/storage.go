// internal/storage/storage.go
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/rovshanmuradov/solana-otc/internal/storage/models"
)

// ErrSwapNotFound is returned when a swap ID has no row.
var ErrSwapNotFound = errors.New("swap not found")

// SwapUpdate carries the optional fields a status transition may set.
type SwapUpdate struct {
	TxSignature  *string
	ErrorMessage string
	CompletedAt  *time.Time
}

// Ledger is the durable record of swap lifecycles and the source of
// truth for cumulative completed volume.
type Ledger interface {
	CreateSwap(ctx context.Context, swap *models.Swap) error
	GetSwap(ctx context.Context, swapID string) (*models.Swap, error)
	ListSwapsByBuyer(ctx context.Context, buyerAddress string, limit int) ([]*models.Swap, error)
	ListSwapsByStatus(ctx context.Context, status string, limit int) ([]*models.Swap, error)

	// TransitionSwap atomically moves a swap from one status to
	// another. It reports false (and no error) when the row is no
	// longer in fromStatus, which makes retried confirmations no-ops.
	TransitionSwap(ctx context.Context, swapID, fromStatus, toStatus string, update SwapUpdate) (bool, error)

	// CumulativeCompletedVolume recomputes the completed-token sum on
	// every call; it is intentionally never cached.
	CumulativeCompletedVolume(ctx context.Context) (uint64, error)

	// DeleteStalePending removes pending rows older than the blockhash
	// validity window; they can never be submitted successfully.
	DeleteStalePending(ctx context.Context, olderThan time.Time) (int64, error)

	RunMigrations() error
}
