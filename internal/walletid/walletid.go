// Package walletid loads a node or signer's Solana-style wallet id
// file: a JSON array of the 64-byte ed25519 seed+public key pair, the
// same format `solana-keygen new` produces. This is the simplest
// Go-native reading of a "wallet id file" without pulling in a full
// Solana SDK.
package walletid

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mr-tron/base58"
)

// Load reads path and returns the ed25519 private key it contains.
func Load(path string) (ed25519.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("walletid: reading %s: %w", path, err)
	}

	var bytes []byte
	if err := json.Unmarshal(raw, &bytes); err != nil {
		return nil, fmt.Errorf("walletid: %s is not a JSON byte array: %w", path, err)
	}
	if len(bytes) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("walletid: %s must contain %d bytes, got %d", path, ed25519.PrivateKeySize, len(bytes))
	}

	return ed25519.PrivateKey(bytes), nil
}

// Signer returns the base58-encoded public key of priv — its service id
// / signer identity throughout the system (spec §4.5, §9).
func Signer(priv ed25519.PrivateKey) string {
	pub := priv.Public().(ed25519.PublicKey)
	return base58.Encode(pub)
}

// DecodeSigner parses a base58-encoded public-key string back into raw
// bytes, used when verifying the /keys/revoke signature (spec §6).
func DecodeSigner(signer string) ([32]byte, error) {
	raw, err := base58.Decode(signer)
	if err != nil {
		return [32]byte{}, fmt.Errorf("walletid: invalid signer encoding: %w", err)
	}
	if len(raw) != 32 {
		return [32]byte{}, fmt.Errorf("walletid: signer must be 32 bytes, got %d", len(raw))
	}
	var out [32]byte
	copy(out[:], raw)
	return out, nil
}
