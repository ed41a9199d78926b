package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// WSHandler upgrades to a WebSocket and writes each of the caller's events
// as a JSON text frame {"type","time","data"}. The ?types= filter matches
// SSEHandler.
func WSHandler(broker *Broker, authn Authenticator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := authorize(w, r, authn)
		if !ok {
			return
		}
		filter := parseTypes(r.URL.Query().Get("types"))

		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			slog.Debug("relay: ws upgrade failed", "error", err, "remote", r.RemoteAddr)
			return
		}
		defer conn.Close()

		id, ch := broker.Subscribe(owner)
		defer broker.Unsubscribe(id)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Reader goroutine answers pings and notices the client closing.
		go func() {
			defer cancel()
			for {
				if _, _, err := wsutil.ReadClientData(conn); err != nil {
					return
				}
			}
		}()

		slog.Debug("relay: ws client connected", "id", id, "remote", r.RemoteAddr)
		for {
			select {
			case <-ctx.Done():
				slog.Debug("relay: ws client disconnected", "id", id)
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				if filter != nil && !filter[evt.Type] {
					continue
				}
				frame, err := json.Marshal(envelope{Type: evt.Type, Time: time.Now().UTC(), Data: json.RawMessage(evt.Payload)})
				if err != nil {
					continue
				}
				if err := wsutil.WriteServerText(conn, frame); err != nil {
					slog.Debug("relay: ws write failed", "id", id, "error", err)
					return
				}
			}
		}
	}
}
