package api

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/require"

	"github.com/aimoverse/aimo-node/internal/authn"
	"github.com/aimoverse/aimo-node/internal/credential"
	"github.com/aimoverse/aimo-node/internal/revocation"
	"github.com/aimoverse/aimo-node/internal/router"
)

// issueBearerWithSigner mirrors issueBearer but also returns the
// base58 signer string the credential embeds, which Subscribe uses as
// the provider's service id.
func issueBearerWithSigner(t *testing.T) (token string, signer string) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	meta := credential.Metadata{
		CreatedAtMs: time.Now().UnixMilli(),
		ValidForMs:  time.Hour.Milliseconds(),
		Scopes:      credential.ScopeCompletionModel,
	}
	var signerBytes [32]byte
	copy(signerBytes[:], pub)

	key := credential.SecretKey{
		Version:   1,
		Wallet:    credential.WalletSolana,
		Signer:    signerBytes,
		Signature: credential.Sign(priv, meta),
		Metadata:  meta,
	}
	encoded, err := credential.Encode(key, "dev")
	require.NoError(t, err)
	return encoded, base58.Encode(pub)
}

func TestSubscribeRoutesRequestAndRelaysResponse(t *testing.T) {
	store, err := revocation.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	r := router.New(128)

	mux := http.NewServeMux()
	gate := authn.Middleware(store, "dev")
	mux.Handle("/api/v1/providers/subscribe", gate(Subscribe(r)))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	token, signer := issueBearerWithSigner(t)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/providers/subscribe"
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	defer conn.Close()

	// Give the handler a moment to complete RegisterService before
	// routing through it.
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	responses, err := r.RouteRequest(ctx, router.Request{
		SenderID:    "client",
		RequestID:   "req-1",
		ServiceID:   signer,
		RequestType: "completion_model",
		Method:      http.MethodPost,
		Payload:     `{"model":"gpt-test"}`,
	})
	require.NoError(t, err)

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var received router.Request
	require.NoError(t, json.Unmarshal(data, &received))
	require.Equal(t, "req-1", received.RequestID)
	require.Equal(t, signer, received.ServiceID)

	reply := router.Response{RequestID: "req-1", StatusCode: 200, Payload: "ok", StreamDone: true}
	replyBytes, err := json.Marshal(reply)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, replyBytes))

	select {
	case resp := <-responses:
		require.Equal(t, "ok", resp.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for relayed response")
	}
}

func TestSubscribeRejectsMissingCredential(t *testing.T) {
	r := router.New(128)
	srv := httptest.NewServer(http.HandlerFunc(Subscribe(r)))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if conn != nil {
		conn.Close()
	}
	require.Error(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
