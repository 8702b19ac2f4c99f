// ==============================================
// File: internal/otc/builder.go
// ==============================================
package otc

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-otc/internal/otc/pricing"
	"github.com/rovshanmuradov/solana-otc/internal/storage"
	"github.com/rovshanmuradov/solana-otc/internal/storage/models"
	"github.com/rovshanmuradov/solana-otc/internal/treasury"
)

const lamportsPerSOL = 1_000_000_000

// Builder assembles one atomic swap transaction: optional buyer
// account creation, inbound SOL payment and outbound token transfer,
// partially signed by the treasury.
type Builder struct {
	client   ChainClient
	resolver *Resolver
	signer   *treasury.Signer
	ledger   storage.Ledger
	curve    pricing.Curve
	logger   *zap.Logger

	mint          solana.PublicKey
	tokenDecimals uint8
	minAmount     uint64
	maxAmount     uint64
	quoteTTL      time.Duration
}

type BuilderParams struct {
	Mint          solana.PublicKey
	TokenDecimals uint8
	MinAmount     uint64
	MaxAmount     uint64
	QuoteTTL      time.Duration
}

func NewBuilder(
	client ChainClient,
	resolver *Resolver,
	signer *treasury.Signer,
	ledger storage.Ledger,
	curve pricing.Curve,
	params BuilderParams,
	logger *zap.Logger,
) *Builder {
	return &Builder{
		client:        client,
		resolver:      resolver,
		signer:        signer,
		ledger:        ledger,
		curve:         curve,
		logger:        logger.Named("builder"),
		mint:          params.Mint,
		tokenDecimals: params.TokenDecimals,
		minAmount:     params.MinAmount,
		maxAmount:     params.MaxAmount,
		quoteTTL:      params.QuoteTTL,
	}
}

// rawUnits converts display units to the mint's raw representation.
func (b *Builder) rawUnits(tokenAmount uint64) uint64 {
	return tokenAmount * pow10(b.tokenDecimals)
}

// Build runs the full quote flow for one swap and persists the pending
// row. The returned transaction carries the treasury signature only;
// it becomes valid once the buyer co-signs.
func (b *Builder) Build(ctx context.Context, buyer solana.PublicKey, tokenAmount uint64, quote pricing.Quote) (*SwapQuote, error) {
	if tokenAmount < b.minAmount || tokenAmount > b.maxAmount {
		return nil, fmt.Errorf("%w: %d not in [%d, %d]",
			ErrAmountOutOfRange, tokenAmount, b.minAmount, b.maxAmount)
	}

	// The treasury's own account is never derived-and-trusted; it must
	// be found on chain or the whole feature is misconfigured.
	treasuryRes, err := b.resolver.ResolveTreasury(ctx)
	if err != nil {
		b.logger.Error("Treasury holding account unresolvable; swaps are unavailable",
			zap.Error(err))
		return nil, err
	}

	rawAmount := b.rawUnits(tokenAmount)
	available, err := b.client.GetTokenBalance(ctx, treasuryRes.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to check treasury balance: %w", err)
	}
	if available < rawAmount {
		return nil, &InsufficientSupplyError{
			Requested: tokenAmount,
			Available: available / pow10(b.tokenDecimals),
		}
	}

	settlementSOL := b.curve.SettlementAmount(tokenAmount, quote.UnitPrice)
	lamports := uint64(math.Round(settlementSOL * lamportsPerSOL))
	if lamports == 0 {
		return nil, fmt.Errorf("settlement amount rounds to zero lamports")
	}

	var instructions []solana.Instruction

	// The buyer may not hold an account for this token yet. Creation
	// is folded into the same transaction with the buyer paying rent.
	buyerAccount, err := b.buyerHoldingAccount(ctx, buyer, treasuryRes.Program, &instructions)
	if err != nil {
		return nil, err
	}

	instructions = append(instructions,
		system.NewTransferInstruction(lamports, buyer, b.signer.PublicKey()).Build(),
		buildTokenTransferInstruction(
			treasuryRes.Program,
			treasuryRes.Address,
			buyerAccount,
			b.signer.PublicKey(),
			rawAmount,
		),
	)

	blockhash, err := b.client.GetRecentBlockhash(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(
		instructions,
		blockhash,
		solana.TransactionPayer(buyer),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	if err := b.signer.PartialSign(tx); err != nil {
		return nil, fmt.Errorf("failed to apply treasury signature: %w", err)
	}

	encoded, err := tx.ToBase64()
	if err != nil {
		return nil, fmt.Errorf("failed to encode transaction: %w", err)
	}

	swapID := uuid.New().String()
	expiresAt := time.Now().UTC().Add(b.quoteTTL)

	swap := &models.Swap{
		SwapID:        swapID,
		BuyerAddress:  buyer.String(),
		TokenAmount:   tokenAmount,
		SettlementSOL: settlementSOL,
		UnitPriceSOL:  quote.UnitPrice,
		UnitPriceRef:  quote.UnitPriceRef,
		Blockhash:     blockhash.String(),
		Status:        models.SwapStatusPending,
		ExpiresAt:     expiresAt,
	}
	if err := b.ledger.CreateSwap(ctx, swap); err != nil {
		return nil, fmt.Errorf("failed to persist swap: %w", err)
	}

	b.logger.Info("Swap quote built",
		zap.String("swap_id", swapID),
		zap.String("buyer", buyer.String()),
		zap.Uint64("token_amount", tokenAmount),
		zap.Float64("settlement_sol", settlementSOL),
		zap.Uint64("tier", quote.Tier))

	return &SwapQuote{
		SwapID:        swapID,
		Transaction:   encoded,
		TokenAmount:   tokenAmount,
		SettlementSOL: settlementSOL,
		UnitPriceSOL:  quote.UnitPrice,
		UnitPriceRef:  quote.UnitPriceRef,
		Tier:          quote.Tier,
		ExpiresAt:     expiresAt,
	}, nil
}

// buyerHoldingAccount resolves the buyer's existing holding account, or
// derives one under the mint's program variant and prepends the
// idempotent creation instruction.
func (b *Builder) buyerHoldingAccount(
	ctx context.Context,
	buyer solana.PublicKey,
	mintProgram solana.PublicKey,
	instructions *[]solana.Instruction,
) (solana.PublicKey, error) {
	res, err := b.resolver.Resolve(ctx, buyer)
	if err == nil {
		return res.Address, nil
	}
	if !errors.Is(err, ErrNoTokenAccount) {
		return solana.PublicKey{}, fmt.Errorf("failed to resolve buyer account: %w", err)
	}

	derived, err := DeriveHoldingAccount(buyer, b.mint, mintProgram)
	if err != nil {
		return solana.PublicKey{}, err
	}

	*instructions = append(*instructions,
		buildCreateHoldingAccountInstruction(buyer, buyer, b.mint, derived, mintProgram))

	b.logger.Debug("Buyer holding account will be created in-transaction",
		zap.String("buyer", buyer.String()),
		zap.String("account", derived.String()))

	return derived, nil
}
