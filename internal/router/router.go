// Package router implements the in-process request/response broker
// described in spec §4.3: it multiplexes many concurrent client request
// streams onto many provider connections, keyed by service id and
// request id.
package router

import (
	"context"
	"errors"
)

// ErrNotFound is returned by DropService when the service id has no
// active registration, letting callers detect a double-drop.
var ErrNotFound = errors.New("router: service not found")

// Request is the wire message a client sends to a provider, addressed
// by ServiceID and carrying a globally unique RequestID.
type Request struct {
	SenderID          string            `json:"sender_id"`
	RequestID         string            `json:"request_id"`
	ServiceID         string            `json:"service_id"`
	Endpoint          string            `json:"endpoint,omitempty"`
	RequestType       string            `json:"request_type"`
	Method            string            `json:"method"`
	Payload           string            `json:"payload"`
	Headers           map[string]string `json:"headers"`
	PayloadEncrypted  bool              `json:"payload_encrypted"`
	Signature         string            `json:"signature,omitempty"`
}

// Response is the wire message a provider sends back, tagged with the
// RequestID of the Request it answers.
type Response struct {
	RequestID     string            `json:"request_id"`
	StatusCode    uint16            `json:"status_code"`
	ContentType   string            `json:"content_type"`
	Payload       string            `json:"payload"`
	Headers       map[string]string `json:"headers"`
	IsStreamChunk bool              `json:"is_stream_chunk"`
	StreamDone    bool              `json:"stream_done"`
}

// ProviderHandle is returned by RegisterService: Outbox is where the
// provider's handler writes Responses destined for the router; Inbox is
// where it reads Requests addressed to its service id.
type ProviderHandle struct {
	Outbox chan<- Response
	Inbox  <-chan Request
}

// Router is the broker contract. One in-process implementation is
// specified (LocalRouter); alternate transports (network-attached,
// sharded across nodes) can satisfy the same contract without touching
// callers (spec §9).
type Router interface {
	// RegisterService creates (or replaces) the service slot for
	// serviceID and returns the provider's side of the connection.
	RegisterService(serviceID string) (ProviderHandle, error)

	// RouteRequest dispatches req to the provider registered under
	// req.ServiceID and returns a channel of Responses. Cancelling ctx
	// is the caller's in-band cancellation signal (spec §5): it is the
	// only way to make the router give up and release the pending
	// client entry; it is never forwarded to the provider.
	RouteRequest(ctx context.Context, req Request) (<-chan Response, error)

	// DropService removes the registration identified by handle, the
	// same value RegisterService returned for serviceID. It is
	// identity-scoped: if serviceID has since been replaced by a newer
	// RegisterService call, DropService is a no-op rather than tearing
	// down the newer registration. Returns ErrNotFound only if serviceID
	// has no registration at all.
	DropService(serviceID string, handle ProviderHandle) error
}
