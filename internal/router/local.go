package router

import (
	"context"
	"log/slog"
	"sync"
)

// serviceBuffer and clientBuffer are the bounded channel capacities for
// a provider's inbox and a client's response channel, matching the
// original implementation's make_connection(16, 16) / make_connection(1, 1).
const (
	serviceBuffer = 16
	clientBuffer  = 1
)

// envelope is the sum type carried on the central dispatch channel.
type envelope struct {
	request  *Request
	response *Response
}

// LocalRouter is the in-process Router implementation: a single
// dispatch goroutine draining a buffered inbox and forwarding to
// per-service and per-client channels, never blocking on a slow
// consumer (spec §4.3, §5).
type LocalRouter struct {
	inbox chan envelope

	mu       sync.Mutex
	services map[string]chan Request
	clients  map[string]chan Response
}

// New creates a LocalRouter with the given inbox buffer capacity (spec
// §4.3 requires >= 128) and starts its dispatch loop.
func New(inboxBuffer int) *LocalRouter {
	if inboxBuffer < 128 {
		inboxBuffer = 128
	}
	r := &LocalRouter{
		inbox:    make(chan envelope, inboxBuffer),
		services: make(map[string]chan Request),
		clients:  make(map[string]chan Response),
	}
	go r.dispatch()
	return r
}

// dispatch is the router's single dispatch loop. It blocks solely
// on receiving from inbox; every forward is spawned as its own
// goroutine so a stalled consumer never head-of-line-blocks dispatch.
func (r *LocalRouter) dispatch() {
	slog.Info("router dispatch loop started")
	for env := range r.inbox {
		switch {
		case env.request != nil:
			r.forwardRequest(*env.request)
		case env.response != nil:
			r.forwardResponse(*env.response)
		}
	}
	slog.Error("router inbox closed: dispatch loop exiting")
}

func (r *LocalRouter) forwardRequest(req Request) {
	r.mu.Lock()
	ch, ok := r.services[req.ServiceID]
	r.mu.Unlock()

	if !ok {
		// No synthetic error is injected here (spec §9 open question):
		// the caller's response channel stays open until it gives up,
		// typically via the HTTP layer's wall-clock timeout.
		slog.Warn("dropping request: service not found", "service_id", req.ServiceID, "request_id", req.RequestID)
		return
	}

	go func() {
		defer func() { recover() }() // channel may close mid-send on DropService
		ch <- req
	}()
}

func (r *LocalRouter) forwardResponse(resp Response) {
	r.mu.Lock()
	ch, ok := r.clients[resp.RequestID]
	r.mu.Unlock()

	if !ok {
		slog.Debug("dropping response: no client waiting", "request_id", resp.RequestID)
		return
	}

	go func() {
		defer func() { recover() }()
		ch <- resp
		if resp.StreamDone {
			r.removeClient(resp.RequestID)
		}
	}()
}

// RegisterService creates a fresh provider inbox for serviceID,
// replacing any prior registration (last writer wins).
func (r *LocalRouter) RegisterService(serviceID string) (ProviderHandle, error) {
	inbox := make(chan Request, serviceBuffer)

	r.mu.Lock()
	r.services[serviceID] = inbox
	r.mu.Unlock()

	outbox := make(chan Response, serviceBuffer)
	go r.pumpProviderOutbox(outbox)

	return ProviderHandle{Outbox: outbox, Inbox: inbox}, nil
}

// pumpProviderOutbox forwards everything the provider writes into the
// router's central inbox, so Responses go through the same single
// dispatch path as everything else.
func (r *LocalRouter) pumpProviderOutbox(outbox <-chan Response) {
	for resp := range outbox {
		r.inbox <- envelope{response: &resp}
	}
}

// RouteRequest registers a response channel for req.RequestID, pushes
// the request into the dispatch path, and returns the channel. When ctx
// is cancelled the pending-client entry is torn down and its channel
// closed, even if no StreamDone response ever arrives, so a blocked
// receiver always unblocks instead of waiting forever.
func (r *LocalRouter) RouteRequest(ctx context.Context, req Request) (<-chan Response, error) {
	ch := make(chan Response, clientBuffer)

	r.mu.Lock()
	r.clients[req.RequestID] = ch
	r.mu.Unlock()

	r.inbox <- envelope{request: &req}

	go func() {
		<-ctx.Done()
		r.removeClient(req.RequestID)
	}()

	return ch, nil
}

// removeClient deletes requestID's entry and closes its channel so any
// blocked receiver unblocks. It is idempotent: once the map entry is
// gone (whether from a prior StreamDone or a prior ctx cancellation),
// later calls are no-ops and never double-close.
func (r *LocalRouter) removeClient(requestID string) {
	r.mu.Lock()
	ch, ok := r.clients[requestID]
	if ok {
		delete(r.clients, requestID)
	}
	r.mu.Unlock()

	if ok {
		close(ch)
	}
}

// DropService removes the registration identified by handle and closes
// its inbox so the provider's pump goroutine observes closure.
//
// It is identity-scoped: handle.Inbox is compared against whatever
// channel currently sits under serviceID (channels are comparable in
// Go). If a newer RegisterService call has since replaced the
// registration, that newer one is left untouched and DropService is a
// no-op, so a stale connection's delayed teardown can never sever a
// live registration for the same service id.
func (r *LocalRouter) DropService(serviceID string, handle ProviderHandle) error {
	r.mu.Lock()
	current, exists := r.services[serviceID]
	if !exists {
		r.mu.Unlock()
		return ErrNotFound
	}
	if current != handle.Inbox {
		r.mu.Unlock()
		return nil
	}
	delete(r.services, serviceID)
	r.mu.Unlock()

	close(current)
	return nil
}
