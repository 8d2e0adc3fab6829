package solana

import (
	"crypto/ed25519"
	"fmt"

	"github.com/mr-tron/base58"
)

// MustPublicKeyFromBase58 decodes a base58 encoded public key, panicking on
// malformed input. Intended for hardcoded program addresses.
func MustPublicKeyFromBase58(value string) ed25519.PublicKey {
	key, err := base58.Decode(value)
	if err != nil {
		panic(fmt.Sprintf("invalid base58 key %q: %v", value, err))
	}
	if len(key) != ed25519.PublicKeySize {
		panic(fmt.Sprintf("invalid key size for %q: %d", value, len(key)))
	}
	return key
}
