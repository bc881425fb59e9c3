package api

import (
	"net/http"

	"github.com/aimoverse/aimo-node/internal/authn"
	"github.com/aimoverse/aimo-node/internal/revocation"
	"github.com/aimoverse/aimo-node/internal/router"
)

// NewMux assembles the `/api/v1` HTTP surface of spec §6: unauthenticated
// key-management endpoints, and the bearer-gated completion and
// provider-subscribe endpoints.
func NewMux(r router.Router, store *revocation.Store, admittedScopeTag string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`"pong"`))
	})

	mux.HandleFunc("GET /api/v1/keys/metadata_bytes", MetadataBytes)
	mux.HandleFunc("POST /api/v1/keys/generate", GenerateKey)
	mux.HandleFunc("POST /api/v1/keys/verify", VerifyKey)
	mux.HandleFunc("POST /api/v1/keys/revoke", RevokeKey(store))

	gate := authn.Middleware(store, admittedScopeTag)
	mux.Handle("POST /api/v1/chat/completions", gate(Completions(r)))
	mux.Handle("/api/v1/providers/subscribe", gate(Subscribe(r)))

	return mux
}
