// Package api wires the HTTP surface of the node: key management, the
// completion endpoint, and the provider-subscribe WebSocket upgrade.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aimoverse/aimo-node/internal/apierr"
	"github.com/aimoverse/aimo-node/internal/authn"
	"github.com/aimoverse/aimo-node/internal/router"
)

// completionRequestTimeout is the coarse wall-clock budget for a chat
// completion round trip, enforced independently of any per-request
// deadline inside the router (spec §5: "no per-request deadline
// enforced inside the Router").
const completionRequestTimeout = 30 * time.Second

// streamContentTypeMarkers identifies a Response as the head of an SSE
// stream rather than a single JSON reply (spec §4.6).
var streamContentTypeMarkers = []string{"text/event-stream", "text/stream"}

// Completions handles POST /chat/completions: splits the OpenAI-style
// `model` field into a target service id and model name, routes the
// rewritten body through r, and relays either a single JSON response or
// a server-sent-event stream back to the client.
func Completions(r router.Router) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		key, ok := authn.FromContext(req.Context())
		if !ok {
			apierr.Write(w, http.StatusUnauthorized, "missing authenticated credential")
			return
		}

		var body map[string]any
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			apierr.Write(w, http.StatusBadRequest, "invalid request body")
			return
		}

		rawModel, ok := body["model"].(string)
		if !ok {
			apierr.Write(w, http.StatusBadRequest, "field `model` is required")
			return
		}
		target, modelName, ok := strings.Cut(rawModel, ":")
		if !ok {
			apierr.Write(w, http.StatusBadRequest, "field `model` must be `<target>:<model_name>`")
			return
		}
		body["model"] = modelName

		payload, err := json.Marshal(body)
		if err != nil {
			apierr.Write(w, http.StatusInternalServerError, "failed to re-serialize request body")
			return
		}

		routerReq := router.Request{
			SenderID:    signerString(key),
			RequestID:   uuid.NewString(),
			ServiceID:   target,
			RequestType: "completion_model",
			Method:      http.MethodPost,
			Payload:     string(payload),
			Headers:     map[string]string{"content-type": "application/json"},
		}

		ctx, cancel := context.WithTimeout(req.Context(), completionRequestTimeout)
		defer cancel()

		responses, err := r.RouteRequest(ctx, routerReq)
		if err != nil {
			apierr.Write(w, http.StatusNotFound, err.Error())
			return
		}

		first, ok := <-responses
		if !ok {
			apierr.Write(w, http.StatusNotFound, apierr.ErrServiceNotFound.Error())
			return
		}

		if isStreamContentType(first.ContentType) {
			streamSSE(w, first, responses)
			return
		}

		if first.StatusCode < 200 || first.StatusCode >= 300 {
			apierr.Write(w, int(first.StatusCode), first.Payload)
			return
		}

		w.Header().Set("Content-Type", first.ContentType)
		w.WriteHeader(int(first.StatusCode))
		_, _ = w.Write([]byte(first.Payload))
	}
}

func isStreamContentType(contentType string) bool {
	for _, marker := range streamContentTypeMarkers {
		if strings.Contains(contentType, marker) {
			return true
		}
	}
	return false
}

// streamSSE writes first as the opening event, then relays every
// subsequent Response on responses until the channel closes or a
// stream_done marker arrives.
func streamSSE(w http.ResponseWriter, first router.Response, responses <-chan router.Response) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)

	writeEvent(w, first.Payload)
	flush(flusher)
	if first.StreamDone {
		return
	}

	for resp := range responses {
		writeEvent(w, resp.Payload)
		flush(flusher)
		if resp.StreamDone {
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, payload string) {
	fmt.Fprintf(w, "data: %s\n\n", payload)
}

func flush(f http.Flusher) {
	if f != nil {
		f.Flush()
	}
}
