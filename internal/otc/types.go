// ==============================================
// File: internal/otc/types.go
// ==============================================
package otc

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/rovshanmuradov/solana-otc/internal/chain"
)

// ChainClient is the slice of the RPC surface the swap engine needs.
// *chain.Client satisfies it; tests substitute fakes.
type ChainClient interface {
	GetAccountInfo(ctx context.Context, pubkey solana.PublicKey) (*rpc.GetAccountInfoResult, error)
	GetTokenBalance(ctx context.Context, account solana.PublicKey) (uint64, error)
	GetRecentBlockhash(ctx context.Context) (solana.Hash, error)
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	GetSignatureStatus(ctx context.Context, signature solana.Signature) (chain.SignatureStatus, error)
	WaitForConfirmation(ctx context.Context, signature solana.Signature, maxWait time.Duration) (chain.SignatureStatus, error)
}

// RateSource supplies the reference→settlement exchange rate (USD per
// SOL). Implementations must degrade to a fallback, never to zero.
type RateSource interface {
	SOLPrice(ctx context.Context) (float64, error)
}

// SwapQuote is the response to a quote request: a half-signed
// transaction awaiting the buyer's signature.
type SwapQuote struct {
	SwapID        string    `json:"swapId"`
	Transaction   string    `json:"transaction"` // base64
	TokenAmount   uint64    `json:"tokenAmount"`
	SettlementSOL float64   `json:"settlementAmount"`
	UnitPriceSOL  float64   `json:"unitPrice"`
	UnitPriceRef  float64   `json:"unitPriceUSD"`
	Tier          uint64    `json:"tier"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

// SubmitResult reports the outcome of a submission. Confirmed false
// with a signature present means "submitted, pending confirmation":
// the caller should poll, not retry.
type SubmitResult struct {
	TxSignature string `json:"txSignature"`
	Confirmed   bool   `json:"confirmed"`
}

// DeskStatus is the public view of the desk for GET config.
type DeskStatus struct {
	Mint             string  `json:"mint"`
	Tier             uint64  `json:"tier"`
	UnitPriceSOL     float64 `json:"unitPrice"`
	UnitPriceRef     float64 `json:"unitPriceUSD"`
	UnitsLeftInTier  uint64  `json:"unitsRemainingInTier"`
	NextUnitPriceRef float64 `json:"nextUnitPriceUSD"`
	CumulativeSold   uint64  `json:"cumulativeUnitsSold"`
	TreasurySupply   uint64  `json:"remainingSupply"`
	MinSwapAmount    uint64  `json:"minSwapAmount"`
	MaxSwapAmount    uint64  `json:"maxSwapAmount"`
}
