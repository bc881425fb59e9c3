package router

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLocalRouterEcho(t *testing.T) {
	r := New(128)

	handle, err := r.RegisterService("test_service_id")
	require.NoError(t, err)

	go func() {
		req := <-handle.Inbox
		require.Equal(t, "test_service_id", req.ServiceID)
		handle.Outbox <- Response{
			RequestID:  req.RequestID,
			StatusCode: 200,
			Payload:    req.Payload,
			StreamDone: true,
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	rx, err := r.RouteRequest(ctx, Request{
		SenderID:    "sender",
		RequestID:   "request111",
		ServiceID:   "test_service_id",
		RequestType: "test",
		Method:      "GET",
		Payload:     `{"ping":"pong"}`,
	})
	require.NoError(t, err)

	select {
	case resp := <-rx:
		require.Equal(t, "request111", resp.RequestID)
		require.Equal(t, `{"ping":"pong"}`, resp.Payload)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for response")
	}
}

func TestLocalRouterStreamingFanOut(t *testing.T) {
	r := New(128)

	handle, err := r.RegisterService("svc")
	require.NoError(t, err)

	go func() {
		req := <-handle.Inbox
		for i := 0; i < 3; i++ {
			handle.Outbox <- Response{
				RequestID:     req.RequestID,
				Payload:       string(rune('a' + i)),
				IsStreamChunk: true,
				StreamDone:    i == 2,
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	rx, err := r.RouteRequest(ctx, Request{RequestID: "r2", ServiceID: "svc"})
	require.NoError(t, err)

	var got []string
	for i := 0; i < 3; i++ {
		select {
		case resp := <-rx:
			got = append(got, resp.Payload)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for chunk %d", i)
		}
	}
	require.Equal(t, []string{"a", "b", "c"}, got)
}

func TestLocalRouterIsolatesRequestIDs(t *testing.T) {
	r := New(128)

	handle, err := r.RegisterService("svc")
	require.NoError(t, err)

	go func() {
		for i := 0; i < 2; i++ {
			req := <-handle.Inbox
			handle.Outbox <- Response{RequestID: req.RequestID, Payload: req.RequestID, StreamDone: true}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	rxA, err := r.RouteRequest(ctx, Request{RequestID: "rA", ServiceID: "svc"})
	require.NoError(t, err)
	rxB, err := r.RouteRequest(ctx, Request{RequestID: "rB", ServiceID: "svc"})
	require.NoError(t, err)

	respA := <-rxA
	respB := <-rxB
	require.Equal(t, "rA", respA.RequestID)
	require.Equal(t, "rB", respB.RequestID)
}

func TestLocalRouterServiceReplacement(t *testing.T) {
	r := New(128)

	first, err := r.RegisterService("svc")
	require.NoError(t, err)
	second, err := r.RegisterService("svc")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err = r.RouteRequest(ctx, Request{RequestID: "r1", ServiceID: "svc"})
	require.NoError(t, err)

	select {
	case <-first.Inbox:
		t.Fatal("request must not reach the replaced registration")
	case req := <-second.Inbox:
		require.Equal(t, "r1", req.RequestID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for request on second registration")
	}
}

func TestDropServiceReportsNotFound(t *testing.T) {
	r := New(128)

	handle, err := r.RegisterService("svc")
	require.NoError(t, err)
	require.NoError(t, r.DropService("svc", handle))
	require.ErrorIs(t, r.DropService("svc", handle), ErrNotFound)
}

// TestDropServiceIsIdentityScoped reproduces the stale-connection race: a
// superseded registration's eventual teardown must not sever the newer
// registration that replaced it under the same service id.
func TestDropServiceIsIdentityScoped(t *testing.T) {
	r := New(128)

	first, err := r.RegisterService("svc")
	require.NoError(t, err)
	second, err := r.RegisterService("svc")
	require.NoError(t, err)

	require.NoError(t, r.DropService("svc", first))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err = r.RouteRequest(ctx, Request{RequestID: "r1", ServiceID: "svc"})
	require.NoError(t, err)

	select {
	case req := <-second.Inbox:
		require.Equal(t, "r1", req.RequestID)
	case <-time.After(time.Second):
		t.Fatal("second registration should still receive requests after the stale drop")
	}

	// Dropping the already-superseded first registration again is still
	// a no-op, and the second registration's own drop succeeds cleanly.
	require.NoError(t, r.DropService("svc", first))
	require.NoError(t, r.DropService("svc", second))
}

func TestRouteRequestToMissingServiceDoesNotPanic(t *testing.T) {
	r := New(128)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	rx, err := r.RouteRequest(ctx, Request{RequestID: "ghost", ServiceID: "nobody-home"})
	require.NoError(t, err)

	// ctx expiry closes rx; only a real value (ok == true) is a failure.
	select {
	case resp, ok := <-rx:
		if ok {
			t.Fatalf("no response should ever arrive for an unknown service, got %+v", resp)
		}
	case <-time.After(100 * time.Millisecond):
	}
}

// TestRouteRequestClosesChannelOnCtxTimeout proves the channel itself
// becomes observably closed once ctx expires with no responder, not
// merely that the internal client map entry is gone.
func TestRouteRequestClosesChannelOnCtxTimeout(t *testing.T) {
	r := New(128)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	rx, err := r.RouteRequest(ctx, Request{RequestID: "ghost2", ServiceID: "nobody-home"})
	require.NoError(t, err)

	select {
	case _, ok := <-rx:
		require.False(t, ok, "channel must be closed, not merely empty, once ctx times out")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the channel to close after ctx cancellation")
	}
}
