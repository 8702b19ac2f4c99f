// ==============================================
// File: internal/otc/errors.go
// ==============================================
package otc

import (
	"errors"
	"fmt"
)

var (
	// ErrAmountOutOfRange rejects a request before any network call.
	ErrAmountOutOfRange = errors.New("token amount outside configured bounds")

	// ErrRateLimited rejects a buyer exceeding the per-identity window.
	ErrRateLimited = errors.New("rate limit exceeded for buyer")

	// ErrNoTokenAccount means no holding account exists for the owner
	// under any known token program variant.
	ErrNoTokenAccount = errors.New("no token holding account found")

	// ErrTreasuryAccountMissing is a service-level misconfiguration:
	// the treasury's own holding account cannot be resolved on chain.
	ErrTreasuryAccountMissing = errors.New("treasury token account not found on chain")

	// ErrSwapNotPending means a submission referenced a swap that is
	// not awaiting the buyer signature anymore.
	ErrSwapNotPending = errors.New("swap is not in pending state")

	// ErrQuoteExpired means the blockhash the transaction was built
	// against is no longer valid; the buyer needs a fresh quote.
	ErrQuoteExpired = errors.New("swap quote has expired")

	// ErrTransactionMismatch means the submitted transaction was not
	// the one built for this swap ID.
	ErrTransactionMismatch = errors.New("transaction does not match swap quote")

	// ErrExecutionFailed means the transaction landed on chain but
	// reverted. Nothing was delivered.
	ErrExecutionFailed = errors.New("transaction failed on chain")
)

// InsufficientSupplyError reports the treasury balance actually
// available so the caller can retry with a smaller amount.
type InsufficientSupplyError struct {
	Requested uint64
	Available uint64
}

func (e *InsufficientSupplyError) Error() string {
	return fmt.Sprintf("insufficient treasury supply: requested %d, available %d",
		e.Requested, e.Available)
}
