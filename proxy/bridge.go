// Package proxy bridges a locally running provider connection to the
// node's WebSocket provider-subscribe endpoint: every Request arriving
// over the socket is relayed to a local HTTP endpoint, and the
// endpoint's response is relayed back as a Response. This side of the
// wire carries no novel routing logic — see Provider-subscribe endpoint
// for the node's half of the protocol.
package proxy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aimoverse/aimo-node/internal/router"
)

// BridgeConfig configures a Bridge.
type BridgeConfig struct {
	// NodeURL is the base URL of the AiMo Network node (http/https;
	// rewritten to ws/wss for the socket dial).
	NodeURL string

	// SecretKey authenticates the bridge as a provider via the bearer
	// credential scheme (spec §4.4).
	SecretKey string

	// EndpointURL is the local HTTP endpoint that performs the actual
	// upstream work.
	EndpointURL string

	// APIKey is forwarded to EndpointURL as a bearer credential, if set.
	APIKey string
}

// Bridge connects to a node's provider-subscribe endpoint and forwards
// every Request it receives to a local HTTP endpoint.
type Bridge struct {
	wsURL       string
	secretKey   string
	endpointURL string
	apiKey      string
	httpClient  *http.Client
}

// NewBridge validates cfg and builds a Bridge.
func NewBridge(cfg BridgeConfig) (*Bridge, error) {
	wsURL, err := toWebsocketURL(cfg.NodeURL)
	if err != nil {
		return nil, fmt.Errorf("invalid node url: %w", err)
	}
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("secret key is required")
	}
	if cfg.EndpointURL == "" {
		return nil, fmt.Errorf("endpoint url is required")
	}

	return &Bridge{
		wsURL:       wsURL,
		secretKey:   cfg.SecretKey,
		endpointURL: cfg.EndpointURL,
		apiKey:      cfg.APIKey,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// toWebsocketURL rewrites an http(s) node URL to ws(s) and appends the
// provider-subscribe path.
func toWebsocketURL(nodeURL string) (string, error) {
	u, err := url.Parse(nodeURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/v1/providers/subscribe"
	return u.String(), nil
}

// Run dials the node and relays Requests to EndpointURL until ctx is
// cancelled or the socket closes.
func (b *Bridge) Run(ctx context.Context) error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+b.secretKey)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, b.wsURL, header)
	if err != nil {
		return fmt.Errorf("dialing node: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		var req router.Request
		if err := conn.ReadJSON(&req); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("reading from node: %w", err)
		}

		resp := b.forward(req)
		if err := conn.WriteJSON(resp); err != nil {
			return fmt.Errorf("writing to node: %w", err)
		}
	}
}

// forward performs req against the local endpoint and translates the
// HTTP reply into a single, non-streaming Response.
func (b *Bridge) forward(req router.Request) router.Response {
	httpReq, err := http.NewRequest(req.Method, b.endpointURL, bytes.NewReader([]byte(req.Payload)))
	if err != nil {
		return errorResponse(req.RequestID, err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if b.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return errorResponse(req.RequestID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errorResponse(req.RequestID, err)
	}

	return router.Response{
		RequestID:   req.RequestID,
		StatusCode:  uint16(resp.StatusCode),
		ContentType: resp.Header.Get("Content-Type"),
		Payload:     string(body),
		StreamDone:  true,
	}
}

func errorResponse(requestID string, err error) router.Response {
	slog.Error("proxy bridge: request failed", "request_id", requestID, "err", err)
	return router.Response{
		RequestID:   requestID,
		StatusCode:  http.StatusBadGateway,
		ContentType: "text/plain",
		Payload:     err.Error(),
		StreamDone:  true,
	}
}
