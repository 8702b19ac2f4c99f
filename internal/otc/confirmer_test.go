// ==============================================
// File: internal/otc/confirmer_test.go
// ==============================================
package otc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-otc/internal/chain"
	"github.com/rovshanmuradov/solana-otc/internal/storage/models"
)

// testBlockhash is the blockhash both the pending fixture row and its
// matching transaction are built against.
var testBlockhash = solana.Hash(solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112"))

// signedTestTransaction builds a minimal fully-signed transaction
// against the given blockhash so Submit has something decodable to
// forward.
func signedTestTransaction(t *testing.T, blockhash solana.Hash) string {
	t.Helper()

	wallet := solana.NewWallet()
	tx, err := solana.NewTransaction(
		[]solana.Instruction{
			system.NewTransferInstruction(1, wallet.PublicKey(), solana.NewWallet().PublicKey()).Build(),
		},
		blockhash,
		solana.TransactionPayer(wallet.PublicKey()),
	)
	require.NoError(t, err)

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(wallet.PublicKey()) {
			return &wallet.PrivateKey
		}
		return nil
	})
	require.NoError(t, err)

	encoded, err := tx.ToBase64()
	require.NoError(t, err)
	return encoded
}

func pendingSwap(expiresAt time.Time) *models.Swap {
	return &models.Swap{
		SwapID:        "swap-1",
		BuyerAddress:  solana.NewWallet().PublicKey().String(),
		TokenAmount:   100,
		SettlementSOL: 0.0183,
		UnitPriceSOL:  0.000183,
		Blockhash:     testBlockhash.String(),
		Status:        models.SwapStatusPending,
		ExpiresAt:     expiresAt,
	}
}

func TestSubmitConfirmsAndCompletes(t *testing.T) {
	client := newFakeChainClient()
	client.waitStatus = chain.StatusConfirmed
	ledger := newFakeLedger()
	require.NoError(t, ledger.CreateSwap(context.Background(), pendingSwap(time.Now().UTC().Add(time.Minute))))

	confirmer := NewConfirmer(client, ledger, nil, nil, zap.NewNop())
	result, err := confirmer.Submit(context.Background(), "swap-1", signedTestTransaction(t, testBlockhash))
	require.NoError(t, err)

	assert.True(t, result.Confirmed)
	assert.NotEmpty(t, result.TxSignature)

	swap, err := ledger.GetSwap(context.Background(), "swap-1")
	require.NoError(t, err)
	assert.Equal(t, models.SwapStatusCompleted, swap.Status)
	require.NotNil(t, swap.CompletedAt)
	require.NotNil(t, swap.TxSignature)
	assert.Equal(t, result.TxSignature, *swap.TxSignature)
}

func TestSubmitRetryOfCompletedSwapIsIdempotent(t *testing.T) {
	client := newFakeChainClient()
	ledger := newFakeLedger()

	sig := "5ig" // whatever was recorded at completion time
	swap := pendingSwap(time.Now().UTC().Add(time.Minute))
	swap.Status = models.SwapStatusCompleted
	swap.TxSignature = &sig
	require.NoError(t, ledger.CreateSwap(context.Background(), swap))

	confirmer := NewConfirmer(client, ledger, nil, nil, zap.NewNop())
	result, err := confirmer.Submit(context.Background(), "swap-1", signedTestTransaction(t, testBlockhash))
	require.NoError(t, err)

	assert.True(t, result.Confirmed)
	assert.Equal(t, sig, result.TxSignature)
	assert.Zero(t, client.sentCount, "retry must not resubmit to the network")
}

func TestSubmitWhileInFlightReportsUnresolved(t *testing.T) {
	client := newFakeChainClient()
	ledger := newFakeLedger()

	sig := "inflight"
	swap := pendingSwap(time.Now().UTC().Add(time.Minute))
	swap.Status = models.SwapStatusSubmitted
	swap.TxSignature = &sig
	require.NoError(t, ledger.CreateSwap(context.Background(), swap))

	confirmer := NewConfirmer(client, ledger, nil, nil, zap.NewNop())
	result, err := confirmer.Submit(context.Background(), "swap-1", signedTestTransaction(t, testBlockhash))
	require.NoError(t, err)

	assert.False(t, result.Confirmed)
	assert.Equal(t, sig, result.TxSignature)
	assert.Zero(t, client.sentCount)
}

func TestSubmitFailedSwapIsRejected(t *testing.T) {
	ledger := newFakeLedger()
	swap := pendingSwap(time.Now().UTC().Add(time.Minute))
	swap.Status = models.SwapStatusFailed
	require.NoError(t, ledger.CreateSwap(context.Background(), swap))

	confirmer := NewConfirmer(newFakeChainClient(), ledger, nil, nil, zap.NewNop())
	_, err := confirmer.Submit(context.Background(), "swap-1", signedTestTransaction(t, testBlockhash))
	assert.ErrorIs(t, err, ErrSwapNotPending)
}

func TestSubmitExpiredQuote(t *testing.T) {
	client := newFakeChainClient()
	ledger := newFakeLedger()
	require.NoError(t, ledger.CreateSwap(context.Background(), pendingSwap(time.Now().UTC().Add(-time.Minute))))

	confirmer := NewConfirmer(client, ledger, nil, nil, zap.NewNop())
	_, err := confirmer.Submit(context.Background(), "swap-1", signedTestTransaction(t, testBlockhash))
	assert.ErrorIs(t, err, ErrQuoteExpired)
	assert.Zero(t, client.sentCount)
}

func TestSubmitOnChainFailureMarksSwapFailed(t *testing.T) {
	client := newFakeChainClient()
	client.waitStatus = chain.StatusFailed
	ledger := newFakeLedger()
	require.NoError(t, ledger.CreateSwap(context.Background(), pendingSwap(time.Now().UTC().Add(time.Minute))))

	confirmer := NewConfirmer(client, ledger, nil, nil, zap.NewNop())
	_, err := confirmer.Submit(context.Background(), "swap-1", signedTestTransaction(t, testBlockhash))
	assert.ErrorIs(t, err, ErrExecutionFailed)

	swap, err := ledger.GetSwap(context.Background(), "swap-1")
	require.NoError(t, err)
	assert.Equal(t, models.SwapStatusFailed, swap.Status)
	assert.NotEmpty(t, swap.ErrorMessage)
}

func TestSubmitTimeoutLeavesSwapSubmitted(t *testing.T) {
	client := newFakeChainClient()
	client.waitStatus = chain.StatusUnknown
	ledger := newFakeLedger()
	require.NoError(t, ledger.CreateSwap(context.Background(), pendingSwap(time.Now().UTC().Add(time.Minute))))

	confirmer := NewConfirmer(client, ledger, nil, nil, zap.NewNop())
	result, err := confirmer.Submit(context.Background(), "swap-1", signedTestTransaction(t, testBlockhash))
	require.NoError(t, err, "an unknown outcome is not an error")

	// Never guessed failed: the transaction may still land.
	assert.False(t, result.Confirmed)
	assert.NotEmpty(t, result.TxSignature)

	swap, err := ledger.GetSwap(context.Background(), "swap-1")
	require.NoError(t, err)
	assert.Equal(t, models.SwapStatusSubmitted, swap.Status)
}

func TestSubmitRejectsTransactionFromAnotherQuote(t *testing.T) {
	client := newFakeChainClient()
	ledger := newFakeLedger()
	require.NoError(t, ledger.CreateSwap(context.Background(), pendingSwap(time.Now().UTC().Add(time.Minute))))

	// A transaction built against a different quote's blockhash must
	// not settle this row, even though it decodes and is fully signed.
	foreign := signedTestTransaction(t, solana.Hash(solana.NewWallet().PublicKey()))

	confirmer := NewConfirmer(client, ledger, nil, nil, zap.NewNop())
	_, err := confirmer.Submit(context.Background(), "swap-1", foreign)
	assert.ErrorIs(t, err, ErrTransactionMismatch)
	assert.Zero(t, client.sentCount, "a mismatched transaction must never reach the network")

	swap, err := ledger.GetSwap(context.Background(), "swap-1")
	require.NoError(t, err)
	assert.Equal(t, models.SwapStatusPending, swap.Status)
}

func TestSubmitRejectionLeavesSwapPending(t *testing.T) {
	client := newFakeChainClient()
	client.sendErr = errors.New("Blockhash not found")
	ledger := newFakeLedger()
	require.NoError(t, ledger.CreateSwap(context.Background(), pendingSwap(time.Now().UTC().Add(time.Minute))))

	confirmer := NewConfirmer(client, ledger, nil, nil, zap.NewNop())
	_, err := confirmer.Submit(context.Background(), "swap-1", signedTestTransaction(t, testBlockhash))
	require.Error(t, err)

	swap, err := ledger.GetSwap(context.Background(), "swap-1")
	require.NoError(t, err)
	assert.Equal(t, models.SwapStatusPending, swap.Status)
	assert.Nil(t, swap.TxSignature)
}
