package ledger

import (
	"crypto/sha256"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"

	"sentineld/internal/domain"
)

// Token mint addresses per payment method and network.
var tokenMints = map[domain.Network]map[domain.PaymentMethod]string{
	domain.NetworkTest: {
		domain.PaymentTokenA: "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU",
		domain.PaymentTokenB: "Gh9ZwEmdLJ8DscKNTkTqPbNwLNNBjuSzaG9Vp2KGtKJr",
	},
	domain.NetworkProduction: {
		domain.PaymentTokenA: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		domain.PaymentTokenB: "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB",
	},
}

// MintForMethod returns the token mint address for a payment method on a network.
func MintForMethod(network domain.Network, method domain.PaymentMethod) (string, error) {
	mints, ok := tokenMints[network]
	if !ok {
		return "", fmt.Errorf("unknown network %q", network)
	}
	mint, ok := mints[method]
	if !ok {
		return "", fmt.Errorf("unknown payment method %q", method)
	}
	return mint, nil
}

// ValidateAddress checks that an address is 32 bytes of valid base58.
func ValidateAddress(address string) error {
	decoded, err := base58.Decode(address)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidAddress, address)
	}
	if len(decoded) != 32 {
		return fmt.Errorf("%w: expected 32 bytes, got %d", ErrInvalidAddress, len(decoded))
	}
	return nil
}

// DeriveTokenAccount derives the associated token account address for a
// wallet/mint pair. The derivation hashes wallet|mint|bump and keeps the
// first bump whose result lands off the ed25519 curve.
func DeriveTokenAccount(wallet, mint string) (string, error) {
	walletBytes, err := base58.Decode(wallet)
	if err != nil {
		return "", fmt.Errorf("decode wallet: %w", err)
	}
	mintBytes, err := base58.Decode(mint)
	if err != nil {
		return "", fmt.Errorf("decode mint: %w", err)
	}

	for bump := byte(255); bump > 0; bump-- {
		data := make([]byte, 0, len(walletBytes)+len(mintBytes)+1+len(derivationMarker))
		data = append(data, walletBytes...)
		data = append(data, mintBytes...)
		data = append(data, bump)
		data = append(data, derivationMarker...)

		hash := sha256.Sum256(data)

		if !isOnCurve(hash[:]) {
			return base58.Encode(hash[:]), nil
		}
	}

	return "", fmt.Errorf("%w: no off-curve bump for %s", ErrAccountMissing, wallet)
}

var derivationMarker = []byte("TokenAccountDerivation")

// isOnCurve reports whether a 32-byte point decodes on the ed25519 curve.
func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
