// Package apierr centralizes the HTTP status/body mapping for the
// credential, revocation, and routing error taxonomy of spec §7.
package apierr

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aimoverse/aimo-node/internal/credential"
)

// body is the JSON shape written for every error response.
type body struct {
	Error string `json:"error"`
}

// Write writes status with a JSON {"error": message} body.
func Write(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body{Error: message})
}

// CredentialStatus maps a credential.Decode/Verify error to the HTTP
// status spec §7 assigns it from the authentication gate (401s) or the
// key endpoints (400s); asHTTPAuth selects which table applies.
func CredentialStatus(err error, asHTTPAuth bool) (status int, message string) {
	if asHTTPAuth {
		return http.StatusUnauthorized, err.Error()
	}
	return http.StatusBadRequest, err.Error()
}

// Sentinel errors for the revocation/routing taxonomy not already
// defined in their owning packages.
var (
	// ErrRevoked is returned by the auth gate when a credential's
	// content hash is present in the revocation store.
	ErrRevoked = errors.New("apierr: credential revoked")

	// ErrServiceNotFound is raised by the completion endpoint when
	// route_request produces no first response (spec §7 RoutingError).
	ErrServiceNotFound = errors.New("apierr: service not found")

	// ErrBadModelField flags an ill-formed `model` field on the
	// completion endpoint.
	ErrBadModelField = errors.New("apierr: model field must be `<target>:<model_name>`")
)

// IsCredentialError reports whether err originates from the credential
// package's decode/verify taxonomy.
func IsCredentialError(err error) bool {
	switch {
	case errors.Is(err, credential.ErrMalformedEnvelope),
		errors.Is(err, credential.ErrWrongLength),
		errors.Is(err, credential.ErrUnknownWallet),
		errors.Is(err, credential.ErrUnsupportedWallet),
		errors.Is(err, credential.ErrUnsupportedScopeBit),
		errors.Is(err, credential.ErrSignatureInvalid),
		errors.Is(err, credential.ErrExpired),
		errors.Is(err, credential.ErrMalformedTimestamp):
		return true
	default:
		return false
	}
}
