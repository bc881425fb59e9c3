package api

import (
	"fmt"

	"github.com/mr-tron/base58"

	"github.com/aimoverse/aimo-node/internal/credential"
)

// metadataDTO is the JSON-facing shape of credential.Metadata, with
// scopes expressed as their string names rather than a raw bitmap —
// mirrors the original implementation's MetadataV1.
type metadataDTO struct {
	CreatedAtMs int64    `json:"created_at"`
	ValidForMs  int64    `json:"valid_for"`
	UsageLimit  uint64   `json:"usage_limit"`
	Scopes      []string `json:"scopes"`
}

// secretKeyDTO is the JSON-facing shape of credential.SecretKey: wallet
// and scopes as names, signer/signature as base58 strings.
type secretKeyDTO struct {
	Version   uint8       `json:"version"`
	Wallet    string      `json:"wallet"`
	Signer    string      `json:"signer"`
	Signature string      `json:"signature"`
	Metadata  metadataDTO `json:"metadata"`
}

const scopeNameCompletionModel = "completion_model"

func scopesToNames(s credential.Scope) []string {
	var names []string
	if s&credential.ScopeCompletionModel != 0 {
		names = append(names, scopeNameCompletionModel)
	}
	return names
}

func scopesFromNames(names []string) (credential.Scope, error) {
	var scopes credential.Scope
	for _, name := range names {
		switch name {
		case scopeNameCompletionModel:
			scopes |= credential.ScopeCompletionModel
		default:
			return 0, fmt.Errorf("scope %q not supported", name)
		}
	}
	return scopes, nil
}

func metadataToDTO(m credential.Metadata) metadataDTO {
	return metadataDTO{
		CreatedAtMs: m.CreatedAtMs,
		ValidForMs:  m.ValidForMs,
		UsageLimit:  m.UsageLimit,
		Scopes:      scopesToNames(m.Scopes),
	}
}

func metadataFromDTO(d metadataDTO) (credential.Metadata, error) {
	scopes, err := scopesFromNames(d.Scopes)
	if err != nil {
		return credential.Metadata{}, err
	}
	return credential.Metadata{
		CreatedAtMs: d.CreatedAtMs,
		ValidForMs:  d.ValidForMs,
		UsageLimit:  d.UsageLimit,
		Scopes:      scopes,
	}, nil
}

func secretKeyToDTO(k credential.SecretKey) secretKeyDTO {
	return secretKeyDTO{
		Version:   k.Version,
		Wallet:    "solana",
		Signer:    base58.Encode(k.Signer[:]),
		Signature: base58.Encode(k.Signature[:]),
		Metadata:  metadataToDTO(k.Metadata),
	}
}

func secretKeyFromDTO(d secretKeyDTO) (credential.SecretKey, error) {
	if d.Wallet != "solana" {
		return credential.SecretKey{}, fmt.Errorf("wallet %q not supported", d.Wallet)
	}

	signer, err := base58.Decode(d.Signer)
	if err != nil || len(signer) != 32 {
		return credential.SecretKey{}, fmt.Errorf("invalid signer encoding")
	}
	signature, err := base58.Decode(d.Signature)
	if err != nil || len(signature) != 64 {
		return credential.SecretKey{}, fmt.Errorf("invalid signature encoding")
	}
	meta, err := metadataFromDTO(d.Metadata)
	if err != nil {
		return credential.SecretKey{}, err
	}

	var key credential.SecretKey
	key.Version = d.Version
	key.Wallet = credential.WalletSolana
	copy(key.Signer[:], signer)
	copy(key.Signature[:], signature)
	key.Metadata = meta
	return key, nil
}

// signerString returns the base58 signer identity embedded in key, used
// as the Router's sender_id for a request made under that credential.
func signerString(k credential.SecretKey) string {
	return base58.Encode(k.Signer[:])
}

func bytesToIntArray(b []byte) []int {
	out := make([]int, len(b))
	for i, v := range b {
		out[i] = int(v)
	}
	return out
}
