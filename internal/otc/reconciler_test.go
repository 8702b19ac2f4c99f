// ==============================================
// File: internal/otc/reconciler_test.go
// ==============================================
package otc

import (
	"context"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-otc/internal/chain"
	"github.com/rovshanmuradov/solana-otc/internal/storage/models"
)

func testSignature(t *testing.T) string {
	t.Helper()
	wallet := solana.NewWallet()
	sig, err := wallet.PrivateKey.Sign([]byte("reconciler-test"))
	require.NoError(t, err)
	return sig.String()
}

func newSweepFixture(t *testing.T, status chain.SignatureStatus) (*Reconciler, *fakeLedger, string) {
	t.Helper()
	client := newFakeChainClient()
	client.sigStatus = status
	ledger := newFakeLedger()

	sig := testSignature(t)
	require.NoError(t, ledger.CreateSwap(context.Background(), &models.Swap{
		SwapID:      "orphan-1",
		TokenAmount: 100,
		Status:      models.SwapStatusSubmitted,
		TxSignature: &sig,
	}))

	confirmer := NewConfirmer(client, ledger, nil, nil, zap.NewNop())
	rec := NewReconciler(client, ledger, confirmer, time.Minute, time.Minute, zap.NewNop())
	return rec, ledger, sig
}

func TestSweepCompletesConfirmedOrphan(t *testing.T) {
	rec, ledger, _ := newSweepFixture(t, chain.StatusConfirmed)

	rec.sweep(context.Background())

	swap, err := ledger.GetSwap(context.Background(), "orphan-1")
	require.NoError(t, err)
	assert.Equal(t, models.SwapStatusCompleted, swap.Status)
	require.NotNil(t, swap.CompletedAt)
}

func TestSweepFailsDroppedOrphan(t *testing.T) {
	rec, ledger, _ := newSweepFixture(t, chain.StatusFailed)

	rec.sweep(context.Background())

	swap, err := ledger.GetSwap(context.Background(), "orphan-1")
	require.NoError(t, err)
	assert.Equal(t, models.SwapStatusFailed, swap.Status)
}

func TestSweepLeavesUnknownOrphanAlone(t *testing.T) {
	rec, ledger, sig := newSweepFixture(t, chain.StatusUnknown)

	rec.sweep(context.Background())

	swap, err := ledger.GetSwap(context.Background(), "orphan-1")
	require.NoError(t, err)
	assert.Equal(t, models.SwapStatusSubmitted, swap.Status)
	assert.Equal(t, sig, *swap.TxSignature)
}

func TestSweepPurgesStalePendingOnly(t *testing.T) {
	rec, ledger, _ := newSweepFixture(t, chain.StatusUnknown)

	stale := &models.Swap{
		SwapID:    "stale-1",
		Status:    models.SwapStatusPending,
		ExpiresAt: time.Now().UTC().Add(-2 * time.Minute),
	}
	stale.CreatedAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, ledger.CreateSwap(context.Background(), stale))

	fresh := &models.Swap{
		SwapID:    "fresh-1",
		Status:    models.SwapStatusPending,
		ExpiresAt: time.Now().UTC().Add(time.Minute),
	}
	fresh.CreatedAt = time.Now().UTC()
	require.NoError(t, ledger.CreateSwap(context.Background(), fresh))

	rec.sweep(context.Background())

	_, err := ledger.GetSwap(context.Background(), "stale-1")
	assert.Error(t, err)
	_, err = ledger.GetSwap(context.Background(), "fresh-1")
	assert.NoError(t, err)
}
