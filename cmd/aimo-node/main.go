// Command aimo-node runs the AiMo Network node: the router/credential
// service (`serve`), a secret-key generator (`keygen`), and a
// pass-through helper that bridges a provider's WebSocket connection to
// a local HTTP endpoint (`proxy`).
package main

import (
	"crypto/ed25519"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/aimoverse/aimo-node/config"
	"github.com/aimoverse/aimo-node/internal/api"
	"github.com/aimoverse/aimo-node/internal/credential"
	"github.com/aimoverse/aimo-node/internal/revocation"
	"github.com/aimoverse/aimo-node/internal/router"
	"github.com/aimoverse/aimo-node/internal/walletid"
	"github.com/aimoverse/aimo-node/proxy"
)

func main() {
	logLevel := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	app := &cli.App{
		Name:  "aimo-node",
		Usage: "run or interact with an AiMo Network inference-routing node",
		Commands: []*cli.Command{
			serveCommand(),
			keygenCommand(),
			proxyCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("aimo-node exited with error", "err", err)
		os.Exit(1)
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run AiMo Network node service",
		Flags: []cli.Flag{
			&cli.UintFlag{Name: "port", Aliases: []string{"p"}, Usage: "The port the server listens on"},
			&cli.StringFlag{Name: "addr", Aliases: []string{"a"}, Usage: "The host address the server runs on"},
			&cli.StringFlag{Name: "id", Usage: "Path to the node's Solana wallet id file (id.json, generated with `solana-keygen new`)"},
			&cli.StringFlag{Name: "state-dir", Usage: "Directory for the revocation store's on-disk database"},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if c.IsSet("port") {
		cfg.Port = int(c.Uint("port"))
	}
	if c.IsSet("addr") {
		cfg.Addr = c.String("addr")
	}
	if c.IsSet("id") {
		cfg.WalletIDPath = c.String("id")
	}
	if c.IsSet("state-dir") {
		cfg.StateDir = c.String("state-dir")
	}

	priv, err := walletid.Load(cfg.WalletIDPath)
	if err != nil {
		return fmt.Errorf("loading wallet id: %w", err)
	}
	slog.Info("node identity loaded", "signer", walletid.Signer(priv))

	store, err := revocation.Open(cfg.StateDir)
	if err != nil {
		return fmt.Errorf("opening revocation store: %w", err)
	}
	defer store.Close()

	r := router.New(cfg.RouterInboxBuffer)
	mux := api.NewMux(r, store, cfg.AdmittedScopeTag)

	addr := fmt.Sprintf("%s:%d", cfg.Addr, cfg.Port)
	slog.Info("aimo-node starting", "addr", addr, "state_dir", cfg.StateDir, "scope_tag", cfg.AdmittedScopeTag)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

func keygenCommand() *cli.Command {
	return &cli.Command{
		Name:  "keygen",
		Usage: "Generate a secret key for your wallet",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "tag", Aliases: []string{"t"}, Value: "dev", Usage: "The scope tag of the secret key, e.g. dev"},
			&cli.UintFlag{Name: "valid-for", Aliases: []string{"v"}, Value: 90, Usage: "How many days the secret key is valid for"},
			&cli.StringFlag{Name: "scopes", Aliases: []string{"s"}, Value: "completion_model", Usage: "Comma-separated scopes to enable for this secret key"},
			&cli.Uint64Flag{Name: "usage-limit", Aliases: []string{"u"}, Value: 0, Usage: "Usage limit of the secret key"},
			&cli.StringFlag{Name: "id", Usage: "Path to the secret key signer's Solana wallet id file"},
		},
		Action: runKeygen,
	}
}

func runKeygen(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	idPath := cfg.WalletIDPath
	if c.IsSet("id") {
		idPath = c.String("id")
	}
	priv, err := walletid.Load(idPath)
	if err != nil {
		return fmt.Errorf("loading signer wallet id: %w", err)
	}

	scopes, err := parseScopeNames(c.String("scopes"))
	if err != nil {
		return err
	}

	// The CLI's --valid-for is in days; internally the metadata block
	// stores validity in milliseconds. The conversion happens only at
	// this boundary.
	validForMs := int64(c.Uint("valid-for")) * 24 * 60 * 60 * 1000

	meta := credential.Metadata{
		CreatedAtMs: time.Now().UnixMilli(),
		ValidForMs:  validForMs,
		UsageLimit:  c.Uint64("usage-limit"),
		Scopes:      scopes,
	}
	sig := credential.Sign(priv, meta)

	var signer [32]byte
	copy(signer[:], priv.Public().(ed25519.PublicKey))

	key := credential.SecretKey{
		Version:   1,
		Wallet:    credential.WalletSolana,
		Signer:    signer,
		Signature: sig,
		Metadata:  meta,
	}

	encoded, err := credential.Encode(key, c.String("tag"))
	if err != nil {
		return fmt.Errorf("encoding secret key: %w", err)
	}

	fmt.Println(encoded)
	return nil
}

func parseScopeNames(raw string) (credential.Scope, error) {
	var scopes credential.Scope
	for _, name := range strings.Split(raw, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		switch name {
		case "completion_model":
			scopes |= credential.ScopeCompletionModel
		default:
			return 0, fmt.Errorf("scope %q not supported", name)
		}
	}
	return scopes, nil
}

func proxyCommand() *cli.Command {
	return &cli.Command{
		Name:  "proxy",
		Usage: "Run a proxy to connect your endpoint to AiMo Network directly",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "node-url", Required: true, Usage: "Url to an AiMo Network node"},
			&cli.StringFlag{Name: "secret-key", Required: true, Usage: "AiMo Network secret key"},
			&cli.StringFlag{Name: "endpoint-url", Required: true, Usage: "Url to your service endpoint"},
			&cli.StringFlag{Name: "api-key", Usage: "API key for your service endpoint, if required"},
		},
		Action: runProxy,
	}
}

func runProxy(c *cli.Context) error {
	bridge, err := proxy.NewBridge(proxy.BridgeConfig{
		NodeURL:     c.String("node-url"),
		SecretKey:   c.String("secret-key"),
		EndpointURL: c.String("endpoint-url"),
		APIKey:      c.String("api-key"),
	})
	if err != nil {
		return fmt.Errorf("configuring proxy bridge: %w", err)
	}

	slog.Info("proxy bridge connecting", "node_url", c.String("node-url"), "endpoint_url", c.String("endpoint-url"))
	return bridge.Run(c.Context)
}
