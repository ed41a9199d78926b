package relay

import (
	"fmt"
	"net/http"
	"strings"
)

// Authenticator resolves the owner a request may subscribe as.
type Authenticator func(r *http.Request) (owner string, err error)

func authorize(w http.ResponseWriter, r *http.Request, authn Authenticator) (string, bool) {
	owner, err := authn(r)
	if err != nil || owner == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return "", false
	}
	return owner, true
}

// SSEHandler streams the caller's relay events as server-sent events.
// Clients may filter with ?types=forecast.completed,portfolio.updated.
func SSEHandler(broker *Broker, authn Authenticator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := authorize(w, r, authn)
		if !ok {
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}
		filter := parseTypes(r.URL.Query().Get("types"))

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		flusher.Flush()

		id, ch := broker.Subscribe(owner)
		defer broker.Unsubscribe(id)

		for {
			select {
			case <-r.Context().Done():
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				if filter != nil && !filter[evt.Type] {
					continue
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, evt.Payload)
				flusher.Flush()
			}
		}
	}
}

func splitComma(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
