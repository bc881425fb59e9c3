package revocation

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aimoverse/aimo-node/internal/credential"
)

func newTestKey(t *testing.T) (credential.SecretKey, string) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	meta := credential.Metadata{
		CreatedAtMs: 1754401735372,
		ValidForMs:  5_000_000_000,
		Scopes:      credential.ScopeCompletionModel,
	}
	var key credential.SecretKey
	key.Version = 1
	key.Wallet = credential.WalletSolana
	copy(key.Signer[:], pub)
	key.Metadata = meta
	key.Signature = credential.Sign(priv, meta)

	encoded, err := credential.Encode(key, "dev")
	require.NoError(t, err)
	return key, encoded
}

func TestRevokeIsIdempotent(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	key, encoded := newTestKey(t)

	revoked, err := store.IsRevoked(key)
	require.NoError(t, err)
	require.False(t, revoked)

	require.NoError(t, store.Revoke(encoded))
	require.NoError(t, store.Revoke(encoded))

	revoked, err = store.IsRevoked(key)
	require.NoError(t, err)
	require.True(t, revoked)
}

func TestRevocationIsContentAddressed(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	key, _ := newTestKey(t)
	encodedProd, err := credential.Encode(key, "prod")
	require.NoError(t, err)

	require.NoError(t, store.Revoke(encodedProd))

	revoked, err := store.IsRevoked(key)
	require.NoError(t, err)
	require.True(t, revoked, "revocation keyed on content hash must ignore the scope tag")
}

func TestReopenPreservesRevocations(t *testing.T) {
	dir := t.TempDir()
	key, encoded := newTestKey(t)

	store, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, store.Revoke(encoded))
	require.NoError(t, store.Close())

	reopened, err := Open(dir)
	require.NoError(t, err)
	defer reopened.Close()

	revoked, err := reopened.IsRevoked(key)
	require.NoError(t, err)
	require.True(t, revoked)
}
