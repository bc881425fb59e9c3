// Package config loads the node's runtime settings from environment
// variables, with an optional .env file for development convenience —
// unchanged in shape from the teacher's approach, rebound to the
// node's own settings.
package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all node configuration.
type Config struct {
	// Addr is the host address the HTTP server binds to.
	Addr string

	// Port is the HTTP listen port.
	Port int

	// WalletIDPath points at the node's Solana wallet id file
	// (id.json, generated with `solana-keygen new`).
	WalletIDPath string

	// StateDir is the directory holding the revocation store's on-disk
	// database.
	StateDir string

	// AdmittedScopeTag is the only secret-key scope tag the node's
	// authentication gate accepts. The key endpoints do not read it; they
	// always use "dev".
	AdmittedScopeTag string

	// RouterInboxBuffer is the central dispatch channel's buffer
	// capacity (floored at 128 by the router package regardless).
	RouterInboxBuffer int
}

// Load reads configuration from environment variables.
// A .env file in the working directory is loaded if present (dev convenience).
func Load() (*Config, error) {
	_ = godotenv.Load() // no-op if .env absent (production uses real env vars)
	return &Config{
		Addr:              getEnv("AIMO_ADDR", "0.0.0.0"),
		Port:              getEnvInt("AIMO_PORT", 8000),
		WalletIDPath:      getEnv("AIMO_WALLET_ID", defaultWalletIDPath()),
		StateDir:          getEnv("AIMO_STATE_DIR", defaultStateDir()),
		AdmittedScopeTag:  getEnv("AIMO_SCOPE_TAG", "dev"),
		RouterInboxBuffer: getEnvInt("AIMO_ROUTER_INBOX_BUFFER", 128),
	}, nil
}

// defaultWalletIDPath mirrors solana-keygen new's conventional output
// location, `~/.config/solana/id.json`.
func defaultWalletIDPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "id.json"
	}
	return filepath.Join(home, ".config", "solana", "id.json")
}

// defaultStateDir mirrors the original implementation's
// `dirs::data_local_dir()/aimo/state` default.
func defaultStateDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = "."
	}
	return filepath.Join(base, "aimo", "state")
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
