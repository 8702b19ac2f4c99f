// ==============================================
// File: internal/otc/resolver.go
// ==============================================
package otc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-otc/internal/chain"
)

// tokenProgramVariants are the known token program implementations a
// mint's holding accounts may be governed by, probed in priority order.
// Legacy SPL Token first: the overwhelming majority of mints use it.
var tokenProgramVariants = []solana.PublicKey{
	solana.TokenProgramID,
	solana.Token2022ProgramID,
}

// Resolution is a holding account that was verified to exist on chain,
// together with the program variant that owns it.
type Resolution struct {
	Address solana.PublicKey
	Program solana.PublicKey
}

// Resolver discovers the actual on-chain holding account for an owner.
// Deriving the associated address under the wrong program variant
// silently produces an address that holds nothing, so every candidate
// is probed against the chain before it is trusted.
type Resolver struct {
	client ChainClient
	mint   solana.PublicKey
	logger *zap.Logger

	// The treasury's variant is a one-time fact and is cached after
	// the first successful resolution. Buyer resolutions are never
	// cached: a buyer may create an account at any moment.
	treasuryOwner solana.PublicKey
	mu            sync.Mutex
	treasuryRes   *Resolution
}

func NewResolver(client ChainClient, mint, treasuryOwner solana.PublicKey, logger *zap.Logger) *Resolver {
	return &Resolver{
		client:        client,
		mint:          mint,
		treasuryOwner: treasuryOwner,
		logger:        logger.Named("resolver"),
	}
}

// DeriveHoldingAccount computes the associated token address for an
// owner under a specific token program variant. The derived address is
// a candidate only; it must be probed before use.
func DeriveHoldingAccount(owner, mint, tokenProgram solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{owner.Bytes(), tokenProgram.Bytes(), mint.Bytes()},
		solana.SPLAssociatedTokenAccountProgramID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive holding account: %w", err)
	}
	return addr, nil
}

// Resolve probes the owner's candidate holding accounts under each
// known program variant and returns the first that actually exists and
// is owned by that variant. ErrNoTokenAccount when none exists.
func (r *Resolver) Resolve(ctx context.Context, owner solana.PublicKey) (Resolution, error) {
	for _, program := range tokenProgramVariants {
		candidate, err := DeriveHoldingAccount(owner, r.mint, program)
		if err != nil {
			continue
		}

		info, err := r.client.GetAccountInfo(ctx, candidate)
		if err != nil {
			if errors.Is(err, chain.ErrAccountNotFound) {
				continue
			}
			return Resolution{}, fmt.Errorf("failed to probe holding account %s: %w", candidate.String(), err)
		}

		if !info.Value.Owner.Equals(program) {
			r.logger.Warn("Candidate holding account has unexpected owner",
				zap.String("candidate", candidate.String()),
				zap.String("owner", info.Value.Owner.String()),
				zap.String("expected_program", program.String()))
			continue
		}

		r.logger.Debug("Resolved holding account",
			zap.String("wallet", owner.String()),
			zap.String("account", candidate.String()),
			zap.String("program", program.String()))

		return Resolution{Address: candidate, Program: program}, nil
	}

	return Resolution{}, ErrNoTokenAccount
}

// ResolveTreasury resolves the treasury's own holding account, caching
// the discovered variant after the first hit.
func (r *Resolver) ResolveTreasury(ctx context.Context) (Resolution, error) {
	r.mu.Lock()
	if r.treasuryRes != nil {
		res := *r.treasuryRes
		r.mu.Unlock()
		return res, nil
	}
	r.mu.Unlock()

	res, err := r.Resolve(ctx, r.treasuryOwner)
	if err != nil {
		if errors.Is(err, ErrNoTokenAccount) {
			return Resolution{}, ErrTreasuryAccountMissing
		}
		return Resolution{}, err
	}

	r.mu.Lock()
	r.treasuryRes = &res
	r.mu.Unlock()

	r.logger.Info("Treasury holding account resolved",
		zap.String("account", res.Address.String()),
		zap.String("program", res.Program.String()))

	return res, nil
}
