// internal/chain/client.go
package chain

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
)

const (
	defaultRPCTimeout  = 10 * time.Second
	confirmPollEvery   = 500 * time.Millisecond
	rpcRetryMaxElapsed = 8 * time.Second
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrNoActiveClients = errors.New("no active RPC clients available")
)

// IsAccountNotFoundError reports whether an RPC error means the account
// simply does not exist, as opposed to a transport failure.
func IsAccountNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAccountNotFound) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "not found")
}

// Client is a thin adapter over solana-go RPC with round-robin failover
// across the configured endpoints and bounded retries per call.
type Client struct {
	endpoints []*rpc.Client
	urls      []string
	mu        sync.Mutex
	next      int
	logger    *zap.Logger
}

// NewClient validates the endpoint URLs and builds an RPC client per
// endpoint. At least one valid URL is required.
func NewClient(rpcURLs []string, logger *zap.Logger) (*Client, error) {
	if len(rpcURLs) == 0 {
		return nil, errors.New("empty RPC URL list")
	}

	var endpoints []*rpc.Client
	var urls []string
	for _, urlStr := range rpcURLs {
		if _, err := url.Parse(urlStr); err != nil {
			logger.Warn("Invalid RPC URL", zap.String("url", urlStr), zap.Error(err))
			continue
		}
		endpoints = append(endpoints, rpc.New(urlStr))
		urls = append(urls, urlStr)
	}

	if len(endpoints) == 0 {
		return nil, errors.New("no valid RPC URLs provided")
	}

	return &Client{
		endpoints: endpoints,
		urls:      urls,
		logger:    logger.Named("chain"),
	}, nil
}

func (c *Client) rotate() *rpc.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	ep := c.endpoints[c.next%len(c.endpoints)]
	c.next++
	return ep
}

// retry runs op against rotating endpoints with exponential backoff.
// Permanent errors (wrapped by the op) abort immediately.
func retry[T any](ctx context.Context, c *Client, op func(*rpc.Client) (T, error)) (T, error) {
	return backoff.Retry(ctx,
		func() (T, error) {
			return op(c.rotate())
		},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(rpcRetryMaxElapsed),
	)
}

// GetAccountInfo fetches account data, or ErrAccountNotFound when the
// account does not exist on chain.
func (c *Client) GetAccountInfo(ctx context.Context, pubkey solana.PublicKey) (*rpc.GetAccountInfoResult, error) {
	result, err := retry(ctx, c, func(ep *rpc.Client) (*rpc.GetAccountInfoResult, error) {
		out, err := ep.GetAccountInfoWithOpts(ctx, pubkey, &rpc.GetAccountInfoOpts{
			Encoding:   solana.EncodingBase64,
			Commitment: rpc.CommitmentConfirmed,
		})
		if err != nil {
			if IsAccountNotFoundError(err) {
				return nil, backoff.Permanent(ErrAccountNotFound)
			}
			return nil, err
		}
		return out, nil
	})
	if err != nil {
		if !errors.Is(err, ErrAccountNotFound) {
			c.logger.Debug("GetAccountInfo error",
				zap.String("pubkey", pubkey.String()),
				zap.Error(err))
		}
		return nil, err
	}
	if result == nil || result.Value == nil {
		return nil, ErrAccountNotFound
	}
	return result, nil
}

// GetTokenBalance returns the raw token balance of a token account.
func (c *Client) GetTokenBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	result, err := retry(ctx, c, func(ep *rpc.Client) (*rpc.GetTokenAccountBalanceResult, error) {
		return ep.GetTokenAccountBalance(ctx, account, rpc.CommitmentConfirmed)
	})
	if err != nil {
		c.logger.Error("GetTokenBalance error",
			zap.String("account", account.String()),
			zap.Error(err))
		return 0, err
	}
	if result == nil || result.Value == nil {
		return 0, fmt.Errorf("empty token balance response for %s", account.String())
	}
	amount, err := strconv.ParseUint(result.Value.Amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse token balance %q: %w", result.Value.Amount, err)
	}
	return amount, nil
}

// GetRecentBlockhash returns the latest finalized blockhash.
func (c *Client) GetRecentBlockhash(ctx context.Context) (solana.Hash, error) {
	result, err := retry(ctx, c, func(ep *rpc.Client) (*rpc.GetLatestBlockhashResult, error) {
		return ep.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	})
	if err != nil {
		c.logger.Error("GetRecentBlockhash error", zap.Error(err))
		return solana.Hash{}, err
	}
	return result.Value.Blockhash, nil
}

// SendTransaction submits a fully-signed transaction. Preflight stays
// on: a transaction the network rejects up front must surface as an
// error without consuming the swap.
func (c *Client) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	sig, err := retry(ctx, c, func(ep *rpc.Client) (solana.Signature, error) {
		out, err := ep.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
			SkipPreflight:       false,
			PreflightCommitment: rpc.CommitmentConfirmed,
		})
		if err != nil && !isRetryableSendError(err) {
			return solana.Signature{}, backoff.Permanent(err)
		}
		return out, err
	})
	if err != nil {
		c.logger.Error("SendTransaction error", zap.Error(err))
		return solana.Signature{}, err
	}
	return sig, nil
}

func isRetryableSendError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "connection")
}

// SignatureStatus is the reduced view of a transaction's fate that the
// swap engine cares about.
type SignatureStatus int

const (
	StatusUnknown SignatureStatus = iota
	StatusConfirmed
	StatusFailed
)

// GetSignatureStatus performs a single (non-blocking) status probe.
func (c *Client) GetSignatureStatus(ctx context.Context, signature solana.Signature) (SignatureStatus, error) {
	result, err := retry(ctx, c, func(ep *rpc.Client) (*rpc.GetSignatureStatusesResult, error) {
		return ep.GetSignatureStatuses(ctx, true, signature)
	})
	if err != nil {
		c.logger.Warn("GetSignatureStatus error", zap.Error(err))
		return StatusUnknown, err
	}
	if result == nil || len(result.Value) == 0 || result.Value[0] == nil {
		return StatusUnknown, nil
	}
	status := result.Value[0]
	if status.Err != nil {
		return StatusFailed, nil
	}
	if status.ConfirmationStatus == rpc.ConfirmationStatusFinalized ||
		status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed {
		return StatusConfirmed, nil
	}
	return StatusUnknown, nil
}

// WaitForConfirmation polls the signature status until the transaction
// is confirmed, fails on chain, or the wait budget runs out. A timeout
// yields StatusUnknown, never an invented failure.
func (c *Client) WaitForConfirmation(ctx context.Context, signature solana.Signature, maxWait time.Duration) (SignatureStatus, error) {
	ticker := time.NewTicker(confirmPollEvery)
	defer ticker.Stop()
	deadline := time.After(maxWait)
	for {
		select {
		case <-ctx.Done():
			return StatusUnknown, ctx.Err()
		case <-deadline:
			return StatusUnknown, nil
		case <-ticker.C:
			status, err := c.GetSignatureStatus(ctx, signature)
			if err != nil {
				continue
			}
			if status != StatusUnknown {
				return status, nil
			}
		}
	}
}
