// Package authn implements the authentication gate of spec §4.4: parse
// a bearer credential, reject revoked/expired/unsigned keys, and attach
// the verified payload to the request context for downstream handlers.
package authn

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aimoverse/aimo-node/internal/apierr"
	"github.com/aimoverse/aimo-node/internal/credential"
	"github.com/aimoverse/aimo-node/internal/revocation"
)

type contextKey int

const secretKeyContextKey contextKey = 0

// FromContext returns the verified credential attached by Middleware,
// mirroring axum's Extension<SecretKeyV1> extractor in the original
// implementation.
func FromContext(ctx context.Context) (credential.SecretKey, bool) {
	key, ok := ctx.Value(secretKeyContextKey).(credential.SecretKey)
	return key, ok
}

// Middleware builds the authentication gate. admittedScopeTag is the
// only scope tag accepted at the server boundary ("dev" under current
// policy, spec §3).
func Middleware(store *revocation.Store, admittedScopeTag string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				apierr.Write(w, http.StatusUnauthorized, "missing bearer credential")
				return
			}

			scopeTag, key, err := credential.Decode(token)
			if err != nil {
				slog.Debug("credential decode failed", "err", err)
				status, msg := apierr.CredentialStatus(err, true)
				apierr.Write(w, status, msg)
				return
			}

			if scopeTag != admittedScopeTag {
				apierr.Write(w, http.StatusUnauthorized, "scope "+scopeTag+" not supported")
				return
			}

			revoked, err := store.IsRevoked(key)
			if err != nil {
				slog.Error("revocation store lookup failed", "err", err)
				apierr.Write(w, http.StatusInternalServerError, "internal error")
				return
			}
			if revoked {
				apierr.Write(w, http.StatusUnauthorized, apierr.ErrRevoked.Error())
				return
			}

			if err := credential.Verify(key, time.Now()); err != nil {
				status, msg := apierr.CredentialStatus(err, true)
				apierr.Write(w, status, msg)
				return
			}

			ctx := context.WithValue(r.Context(), secretKeyContextKey, key)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	return strings.TrimPrefix(header, prefix), true
}
