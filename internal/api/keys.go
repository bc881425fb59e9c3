package api

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mr-tron/base58"

	"github.com/aimoverse/aimo-node/internal/apierr"
	"github.com/aimoverse/aimo-node/internal/credential"
	"github.com/aimoverse/aimo-node/internal/revocation"
	"github.com/aimoverse/aimo-node/internal/walletid"
)

// admittedScopeTag is the only scope tag the key endpoints accept,
// matching the authentication gate's policy (spec §3, §4.4).
const admittedScopeTag = "dev"

// metadataBytesRequest is the body of GET /keys/metadata_bytes.
type metadataBytesRequest struct {
	Metadata metadataDTO `json:"metadata"`
}

// MetadataBytes handles GET /keys/metadata_bytes: returns the raw
// 32-byte big-endian metadata block for the given metadata fields.
func MetadataBytes(w http.ResponseWriter, r *http.Request) {
	var body metadataBytesRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apierr.Write(w, http.StatusBadRequest, "invalid request body")
		return
	}

	meta, err := metadataFromDTO(body.Metadata)
	if err != nil {
		apierr.Write(w, http.StatusBadRequest, err.Error())
		return
	}

	block := meta.Bytes()
	writeJSON(w, http.StatusOK, bytesToIntArray(block[:]))
}

type generateKeyRequest struct {
	Payload secretKeyDTO `json:"payload"`
}

type generateKeyResponse struct {
	SecretKey string `json:"secret_key"`
}

// GenerateKey handles POST /keys/generate: encodes an already
// wallet-signed payload into its textual aimo-sk form.
func GenerateKey(w http.ResponseWriter, r *http.Request) {
	var body generateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apierr.Write(w, http.StatusBadRequest, "invalid request body")
		return
	}

	key, err := secretKeyFromDTO(body.Payload)
	if err != nil {
		apierr.Write(w, http.StatusBadRequest, err.Error())
		return
	}

	encoded, err := credential.Encode(key, admittedScopeTag)
	if err != nil {
		apierr.Write(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, generateKeyResponse{SecretKey: encoded})
}

type verifyKeyRequest struct {
	SecretKey string `json:"secret_key"`
}

type verifyKeyResponse struct {
	Result  bool         `json:"result"`
	Reason  *string      `json:"reason,omitempty"`
	Payload secretKeyDTO `json:"payload"`
}

// VerifyKey handles POST /keys/verify: decodes and verifies a secret
// key string without consulting the revocation store.
func VerifyKey(w http.ResponseWriter, r *http.Request) {
	var body verifyKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apierr.Write(w, http.StatusBadRequest, "invalid request body")
		return
	}

	scopeTag, key, err := credential.Decode(body.SecretKey)
	if err != nil {
		status, msg := apierr.CredentialStatus(err, false)
		apierr.Write(w, status, msg)
		return
	}
	if scopeTag != admittedScopeTag {
		apierr.Write(w, http.StatusBadRequest, "scope "+scopeTag+" not supported")
		return
	}

	verifyErr := credential.Verify(key, nowFn())
	resp := verifyKeyResponse{
		Result:  verifyErr == nil,
		Payload: secretKeyToDTO(key),
	}
	if verifyErr != nil {
		reason := verifyErr.Error()
		resp.Reason = &reason
	}
	writeJSON(w, http.StatusOK, resp)
}

type revokeKeyRequest struct {
	SecretKey string `json:"secret_key"`
	Signer    string `json:"signer"`
	Signature string `json:"signature"`
}

// RevokeKey handles POST /keys/revoke. It is unauthenticated by bearer
// token but signature-gated: signer must have signed the raw bytes of
// the encoded secret-key string itself (a distinct signing domain from
// Verify, which signs only the inner metadata block), and must match
// the signer embedded in the key.
func RevokeKey(store *revocation.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body revokeKeyRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			apierr.Write(w, http.StatusBadRequest, "invalid request body")
			return
		}

		signerBytes, err := walletid.DecodeSigner(body.Signer)
		if err != nil {
			apierr.Write(w, http.StatusBadRequest, "invalid signer")
			return
		}

		sig, err := decodeSignature(body.Signature)
		if err != nil {
			apierr.Write(w, http.StatusBadRequest, "invalid signature format")
			return
		}

		if !ed25519.Verify(signerBytes[:], []byte(body.SecretKey), sig) {
			apierr.Write(w, http.StatusUnauthorized, "wrong signature")
			return
		}

		_, key, err := credential.Decode(body.SecretKey)
		if err != nil {
			status := http.StatusBadRequest
			if !apierr.IsCredentialError(err) {
				status = http.StatusInternalServerError
			}
			apierr.Write(w, status, "invalid secret key: "+err.Error())
			return
		}

		if signerBytes != key.Signer {
			apierr.Write(w, http.StatusUnauthorized, "request signer is different from secret key signer")
			return
		}

		if err := store.Revoke(body.SecretKey); err != nil {
			apierr.Write(w, http.StatusInternalServerError, "failed to revoke key internally: "+err.Error())
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// nowFn is overridable in tests.
var nowFn = time.Now

func decodeSignature(s string) ([]byte, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return nil, err
	}
	if len(raw) != ed25519.SignatureSize {
		return nil, fmt.Errorf("signature must be %d bytes, got %d", ed25519.SignatureSize, len(raw))
	}
	return raw, nil
}
