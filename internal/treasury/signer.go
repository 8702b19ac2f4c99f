// ==================================
// File: internal/treasury/signer.go
// ==================================
package treasury

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// Signer holds the custodial treasury key. The key never leaves this
// package: it is loaded once at startup and used only inside
// PartialSign.
type Signer struct {
	privateKey solana.PrivateKey
	publicKey  solana.PublicKey
}

var (
	// ErrIdentityMismatch means the configured key does not belong to
	// the configured treasury address. Swaps must stay disabled.
	ErrIdentityMismatch = errors.New("treasury key does not match expected treasury address")
)

// Load parses key material in either of the two supported encodings
// (a base58 string, or the JSON byte array of a solana CLI keypair
// file) and verifies it against the expected treasury address. Any
// failure here is a fatal startup condition for the swap feature.
func Load(keyMaterial, expectedAddress string) (*Signer, error) {
	keyMaterial = strings.TrimSpace(keyMaterial)
	if keyMaterial == "" {
		return nil, errors.New("treasury key material is empty")
	}

	keyBytes, err := decodeKeyMaterial(keyMaterial)
	if err != nil {
		return nil, err
	}
	if len(keyBytes) != 64 {
		return nil, fmt.Errorf("invalid private key length: expected 64 bytes, got %d", len(keyBytes))
	}

	privateKey := solana.PrivateKey(keyBytes)
	publicKey := privateKey.PublicKey()

	expected, err := solana.PublicKeyFromBase58(expectedAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid expected treasury address: %w", err)
	}
	if !publicKey.Equals(expected) {
		return nil, fmt.Errorf("%w: key derives %s, configured %s",
			ErrIdentityMismatch, publicKey.String(), expected.String())
	}

	return &Signer{
		privateKey: privateKey,
		publicKey:  publicKey,
	}, nil
}

func decodeKeyMaterial(keyMaterial string) ([]byte, error) {
	// JSON byte array, e.g. "[12,34,...]" from solana-keygen.
	if strings.HasPrefix(keyMaterial, "[") {
		var raw []byte
		if err := json.Unmarshal([]byte(keyMaterial), &raw); err != nil {
			return nil, fmt.Errorf("failed to decode JSON keypair: %w", err)
		}
		return raw, nil
	}

	raw, err := base58.Decode(keyMaterial)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base58 private key: %w", err)
	}
	return raw, nil
}

// PublicKey returns the treasury's public identity.
func (s *Signer) PublicKey() solana.PublicKey {
	return s.publicKey
}

// PartialSign applies the treasury signature only. The transaction is
// not yet valid: the buyer's signature is still missing.
func (s *Signer) PartialSign(tx *solana.Transaction) error {
	_, err := tx.PartialSign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(s.publicKey) {
			privateCopy := s.privateKey
			return &privateCopy
		}
		return nil
	})
	return err
}

// String returns the public identity only; the private key is never
// printed or serialized.
func (s *Signer) String() string {
	return s.publicKey.String()
}
