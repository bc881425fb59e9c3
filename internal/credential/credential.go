// Package credential implements the aimo-sk secret-key format: a
// fixed-layout, wallet-signed credential carrying usage scopes and an
// expiry, content-addressed for revocation.
package credential

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mr-tron/base58"
)

// Wallet identifies the signing scheme bound to a secret key.
type Wallet uint8

// WalletSolana is the only wallet type accepted today.
const WalletSolana Wallet = 0x00

const totalWalletsSupported = 1

// Scope is a capability bitmap carried in the credential's metadata block.
type Scope uint64

const (
	// ScopeCompletionModel grants access to the chat-completion routing path.
	ScopeCompletionModel Scope = 1 << 0

	// SupportedScopes is the mask of bits the node currently understands.
	// Any bit outside this mask makes a key undecodable.
	SupportedScopes Scope = ScopeCompletionModel
)

// rawBytes is the fixed on-wire size of a SecretKeyV1.
const rawBytes = 130

// metadataBytes is the fixed on-wire size of the signed metadata block.
const metadataBytes = 32

// Errors returned by Decode (and, for ErrUnsupportedWallet, by Encode and
// ContentHash). They map to 400s at the key endpoints and 401s at the
// authentication gate (spec §7).
var (
	ErrMalformedEnvelope   = errors.New("credential: malformed envelope")
	ErrWrongLength         = errors.New("credential: wrong byte length")
	ErrUnknownWallet       = errors.New("credential: unknown wallet type")
	ErrUnsupportedWallet   = errors.New("credential: unsupported wallet type")
	ErrUnsupportedScopeBit = errors.New("credential: unsupported scope bit set")
)

// Errors returned by Verify.
var (
	ErrSignatureInvalid   = errors.New("credential: signature invalid")
	ErrExpired            = errors.New("credential: expired")
	ErrMalformedTimestamp = errors.New("credential: malformed timestamp")
)

// Metadata is the 32-byte signed block: creation time, validity window,
// a reserved usage limit, and the scope bitmap.
type Metadata struct {
	CreatedAtMs int64
	ValidForMs  int64
	UsageLimit  uint64
	Scopes      Scope
}

// Bytes serializes the metadata block in big-endian order, matching the
// wire layout in spec §3. Exposed for the /keys/metadata_bytes endpoint.
func (m Metadata) Bytes() [metadataBytes]byte {
	return m.bytes()
}

// bytes serializes the metadata block in big-endian order, matching the
// wire layout in spec §3.
func (m Metadata) bytes() [metadataBytes]byte {
	var b [metadataBytes]byte
	binary.BigEndian.PutUint64(b[0:8], uint64(m.CreatedAtMs))
	binary.BigEndian.PutUint64(b[8:16], uint64(m.ValidForMs))
	binary.BigEndian.PutUint64(b[16:24], m.UsageLimit)
	binary.BigEndian.PutUint64(b[24:32], uint64(m.Scopes))
	return b
}

func metadataFromBytes(b []byte) (Metadata, error) {
	if len(b) != metadataBytes {
		return Metadata{}, fmt.Errorf("%w: metadata expects %d bytes, got %d", ErrWrongLength, metadataBytes, len(b))
	}
	scopes := Scope(binary.BigEndian.Uint64(b[24:32]))
	if scopes&^SupportedScopes != 0 {
		return Metadata{}, ErrUnsupportedScopeBit
	}
	return Metadata{
		CreatedAtMs: int64(binary.BigEndian.Uint64(b[0:8])),
		ValidForMs:  int64(binary.BigEndian.Uint64(b[8:16])),
		UsageLimit:  binary.BigEndian.Uint64(b[16:24]),
		Scopes:      scopes,
	}, nil
}

// SecretKey is the decoded form of an aimo-sk-<tag>-<base58> credential.
type SecretKey struct {
	Version   uint8
	Wallet    Wallet
	Signer    [32]byte
	Signature [64]byte
	Metadata  Metadata
}

// rawEncode serializes a SecretKey to the fixed 130-byte layout of spec §3.
func (k SecretKey) rawEncode() ([]byte, error) {
	if k.Wallet != WalletSolana {
		return nil, ErrUnsupportedWallet
	}
	out := make([]byte, 0, rawBytes)
	out = append(out, k.Version, uint8(k.Wallet))
	out = append(out, k.Signer[:]...)
	out = append(out, k.Signature[:]...)
	meta := k.Metadata.bytes()
	out = append(out, meta[:]...)
	return out, nil
}

func rawDecode(b []byte) (SecretKey, error) {
	if len(b) != rawBytes {
		return SecretKey{}, fmt.Errorf("%w: expect %d, got %d", ErrWrongLength, rawBytes, len(b))
	}
	wallet := Wallet(b[1])
	if uint8(wallet) >= totalWalletsSupported {
		return SecretKey{}, fmt.Errorf("%w: %d", ErrUnknownWallet, wallet)
	}
	meta, err := metadataFromBytes(b[98:130])
	if err != nil {
		return SecretKey{}, err
	}
	var key SecretKey
	key.Version = b[0]
	key.Wallet = wallet
	copy(key.Signer[:], b[2:34])
	copy(key.Signature[:], b[34:98])
	key.Metadata = meta
	return key, nil
}

// Encode serializes key into the aimo-sk-<tag>-<base58> textual form.
// scopeTag rides alongside the signed bytes — it is not covered by the
// signature.
func Encode(key SecretKey, scopeTag string) (string, error) {
	raw, err := key.rawEncode()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("aimo-sk-%s-%s", scopeTag, base58.Encode(raw)), nil
}

// Decode parses the aimo-sk-<tag>-<base58> textual form and returns the
// scope tag alongside the decoded key.
func Decode(s string) (scopeTag string, key SecretKey, err error) {
	parts := strings.SplitN(s, "-", 4)
	if len(parts) != 4 || parts[0] != "aimo" || parts[1] != "sk" {
		return "", SecretKey{}, ErrMalformedEnvelope
	}
	scopeTag, body := parts[2], parts[3]

	raw, err := base58.Decode(body)
	if err != nil {
		return "", SecretKey{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	key, err = rawDecode(raw)
	if err != nil {
		return "", SecretKey{}, err
	}
	return scopeTag, key, nil
}

// Verify checks the ed25519 signature over the 32-byte metadata block and
// the key's expiry relative to now.
func Verify(key SecretKey, now time.Time) error {
	meta := key.Metadata.bytes()
	if !ed25519.Verify(key.Signer[:], meta[:], key.Signature[:]) {
		return ErrSignatureInvalid
	}

	sum, overflow := addOverflow(key.Metadata.CreatedAtMs, key.Metadata.ValidForMs)
	if overflow {
		return ErrMalformedTimestamp
	}
	expiry := time.UnixMilli(sum)
	if expiry.Before(now) {
		return ErrExpired
	}
	return nil
}

// addOverflow adds two int64 values and reports whether the addition
// overflowed — a malformed timestamp per spec §4.1.
func addOverflow(a, b int64) (sum int64, overflow bool) {
	sum = a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, true
	}
	return sum, false
}

// ContentHash returns the SHA-256 digest of the 130-byte encoded body,
// independent of the scope tag — the credential's revocation identity.
func ContentHash(key SecretKey) ([32]byte, error) {
	raw, err := key.rawEncode()
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(raw), nil
}

// Sign builds the 32-byte metadata block for meta and signs it with priv,
// returning the fixed 64-byte signature. Used by key generation to build
// a valid SecretKey end to end.
func Sign(priv ed25519.PrivateKey, meta Metadata) [64]byte {
	block := meta.bytes()
	sig := ed25519.Sign(priv, block[:])
	var out [64]byte
	copy(out[:], sig)
	return out
}
