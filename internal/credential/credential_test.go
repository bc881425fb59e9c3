package credential

import (
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/require"
)

func testMetadata() Metadata {
	return Metadata{
		CreatedAtMs: 1754401735372,
		ValidForMs:  5_000_000_000,
		UsageLimit:  1234,
		Scopes:      ScopeCompletionModel,
	}
}

func newSignedKey(t *testing.T, meta Metadata) (SecretKey, ed25519.PublicKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	var key SecretKey
	key.Version = 1
	key.Wallet = WalletSolana
	copy(key.Signer[:], pub)
	key.Metadata = meta
	key.Signature = Sign(priv, meta)
	return key, pub
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	key, _ := newSignedKey(t, testMetadata())

	encoded, err := Encode(key, "test")
	require.NoError(t, err)

	scope, decoded, err := Decode(encoded)
	require.NoError(t, err)
	require.Equal(t, "test", scope)
	require.Equal(t, key.Signer, decoded.Signer)
	require.Equal(t, key.Signature, decoded.Signature)
	require.Equal(t, key.Metadata, decoded.Metadata)

	require.NoError(t, Verify(decoded, time.UnixMilli(key.Metadata.CreatedAtMs+1)))
}

func TestContentHashStableAcrossTags(t *testing.T) {
	key, _ := newSignedKey(t, testMetadata())

	encA, err := Encode(key, "dev")
	require.NoError(t, err)
	encB, err := Encode(key, "prod")
	require.NoError(t, err)

	_, a, err := Decode(encA)
	require.NoError(t, err)
	_, b, err := Decode(encB)
	require.NoError(t, err)

	hashA, err := ContentHash(a)
	require.NoError(t, err)
	hashB, err := ContentHash(b)
	require.NoError(t, err)
	require.Equal(t, hashA, hashB)
}

func TestVerifyRejectsExpired(t *testing.T) {
	meta := Metadata{CreatedAtMs: 0, ValidForMs: 1000, Scopes: ScopeCompletionModel}
	key, _ := newSignedKey(t, meta)

	err := Verify(key, time.Now())
	require.ErrorIs(t, err, ErrExpired)
}

func TestVerifyRejectsTamperedSignature(t *testing.T) {
	key, _ := newSignedKey(t, testMetadata())
	key.Signature[0] ^= 0xFF

	err := Verify(key, time.UnixMilli(key.Metadata.CreatedAtMs+1))
	require.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestDecodeRejectsWrongLength(t *testing.T) {
	// 129 arbitrary bytes instead of the required 130.
	bogus := make([]byte, 129)
	encoded := "aimo-sk-dev-" + base58.Encode(bogus)

	_, _, err := Decode(encoded)
	require.ErrorIs(t, err, ErrWrongLength)
}

func TestDecodeRejectsMalformedEnvelope(t *testing.T) {
	_, _, err := Decode("not-a-valid-key")
	require.ErrorIs(t, err, ErrMalformedEnvelope)
}

func TestDecodeRejectsUnsupportedScopeBit(t *testing.T) {
	meta := testMetadata()
	meta.Scopes |= 1 << 5 // bit outside SupportedScopes
	key, _ := newSignedKey(t, meta)

	encoded, err := Encode(key, "dev")
	require.NoError(t, err)

	_, _, err = Decode(encoded)
	require.ErrorIs(t, err, ErrUnsupportedScopeBit)
}

func TestEncodeRejectsUnsupportedWallet(t *testing.T) {
	key, _ := newSignedKey(t, testMetadata())
	key.Wallet = Wallet(0x01)

	_, err := Encode(key, "dev")
	require.ErrorIs(t, err, ErrUnsupportedWallet)
}

func TestUsageLimitZeroIsNotRejected(t *testing.T) {
	meta := testMetadata()
	meta.UsageLimit = 0
	key, _ := newSignedKey(t, meta)

	encoded, err := Encode(key, "dev")
	require.NoError(t, err)
	_, decoded, err := Decode(encoded)
	require.NoError(t, err)
	require.Equal(t, uint64(0), decoded.Metadata.UsageLimit)
}
