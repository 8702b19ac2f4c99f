// ==============================================
// File: internal/otc/fakes_test.go
// ==============================================
package otc

import (
	"context"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/rovshanmuradov/solana-otc/internal/chain"
	"github.com/rovshanmuradov/solana-otc/internal/storage"
	"github.com/rovshanmuradov/solana-otc/internal/storage/models"
)

// fakeChainClient answers account probes from a fixture map and records
// how the engine talks to the network.
type fakeChainClient struct {
	mu sync.Mutex

	accounts     map[solana.PublicKey]*rpc.GetAccountInfoResult
	tokenBalance uint64
	blockhash    solana.Hash

	sendErr      error
	sentCount    int
	waitStatus   chain.SignatureStatus
	sigStatus    chain.SignatureStatus
	probeCount   int
	balanceCalls int
}

func newFakeChainClient() *fakeChainClient {
	return &fakeChainClient{
		accounts:   make(map[solana.PublicKey]*rpc.GetAccountInfoResult),
		blockhash:  solana.Hash(solana.NewWallet().PublicKey()),
		waitStatus: chain.StatusConfirmed,
		sigStatus:  chain.StatusConfirmed,
	}
}

func (f *fakeChainClient) addTokenAccount(address, program solana.PublicKey) {
	f.accounts[address] = &rpc.GetAccountInfoResult{
		Value: &rpc.Account{Owner: program},
	}
}

func (f *fakeChainClient) GetAccountInfo(_ context.Context, pubkey solana.PublicKey) (*rpc.GetAccountInfoResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probeCount++
	if info, ok := f.accounts[pubkey]; ok {
		return info, nil
	}
	return nil, chain.ErrAccountNotFound
}

func (f *fakeChainClient) GetTokenBalance(context.Context, solana.PublicKey) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balanceCalls++
	return f.tokenBalance, nil
}

func (f *fakeChainClient) GetRecentBlockhash(context.Context) (solana.Hash, error) {
	return f.blockhash, nil
}

func (f *fakeChainClient) SendTransaction(_ context.Context, tx *solana.Transaction) (solana.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return solana.Signature{}, f.sendErr
	}
	f.sentCount++
	return tx.Signatures[0], nil
}

func (f *fakeChainClient) GetSignatureStatus(context.Context, solana.Signature) (chain.SignatureStatus, error) {
	return f.sigStatus, nil
}

func (f *fakeChainClient) WaitForConfirmation(context.Context, solana.Signature, time.Duration) (chain.SignatureStatus, error) {
	return f.waitStatus, nil
}

// fakeLedger keeps swap rows in a map with the same guarded-transition
// contract as the Postgres implementation.
type fakeLedger struct {
	mu    sync.Mutex
	swaps map[string]*models.Swap
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{swaps: make(map[string]*models.Swap)}
}

func (l *fakeLedger) CreateSwap(_ context.Context, swap *models.Swap) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := *swap
	l.swaps[swap.SwapID] = &cp
	return nil
}

func (l *fakeLedger) GetSwap(_ context.Context, swapID string) (*models.Swap, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	swap, ok := l.swaps[swapID]
	if !ok {
		return nil, storage.ErrSwapNotFound
	}
	cp := *swap
	return &cp, nil
}

func (l *fakeLedger) ListSwapsByBuyer(_ context.Context, buyerAddress string, limit int) ([]*models.Swap, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*models.Swap
	for _, swap := range l.swaps {
		if swap.BuyerAddress == buyerAddress && len(out) < limit {
			cp := *swap
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (l *fakeLedger) ListSwapsByStatus(_ context.Context, status string, limit int) ([]*models.Swap, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*models.Swap
	for _, swap := range l.swaps {
		if swap.Status == status && len(out) < limit {
			cp := *swap
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (l *fakeLedger) TransitionSwap(_ context.Context, swapID, fromStatus, toStatus string, update storage.SwapUpdate) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	swap, ok := l.swaps[swapID]
	if !ok || swap.Status != fromStatus {
		return false, nil
	}
	swap.Status = toStatus
	if update.TxSignature != nil {
		swap.TxSignature = update.TxSignature
	}
	if update.ErrorMessage != "" {
		swap.ErrorMessage = update.ErrorMessage
	}
	if update.CompletedAt != nil {
		swap.CompletedAt = update.CompletedAt
	}
	return true, nil
}

func (l *fakeLedger) CumulativeCompletedVolume(context.Context) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var total uint64
	for _, swap := range l.swaps {
		if swap.Status == models.SwapStatusCompleted {
			total += swap.TokenAmount
		}
	}
	return total, nil
}

func (l *fakeLedger) DeleteStalePending(_ context.Context, olderThan time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var removed int64
	for id, swap := range l.swaps {
		if swap.Status == models.SwapStatusPending && swap.CreatedAt.Before(olderThan) {
			delete(l.swaps, id)
			removed++
		}
	}
	return removed, nil
}

func (l *fakeLedger) RunMigrations() error { return nil }
