package events

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"golang.org/x/net/websocket"
)

// EventName is the name clients receive change events under.
const EventName = "document-status-changed"

type frame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// WebsocketHandler streams bus events to a websocket client as JSON frames.
// Origins are checked against allowed; "*" allows any origin.
func WebsocketHandler(bus *Bus, allowed []string) http.Handler {
	allowAll := false
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			allowAll = true
		}
		set[o] = true
	}

	return websocket.Server{
		Handshake: func(cfg *websocket.Config, r *http.Request) error {
			origin := r.Header.Get("Origin")
			if allowAll || origin == "" || set[origin] {
				return nil
			}
			return fmt.Errorf("origin %q not allowed", origin)
		},
		Handler: func(ws *websocket.Conn) {
			defer ws.Close()

			ctx, cancel := context.WithCancel(ws.Request().Context())
			defer cancel()

			// Reads only serve to notice the client going away.
			go func() {
				defer cancel()
				io.Copy(io.Discard, ws)
			}()

			for ev := range bus.Subscribe(ctx) {
				if err := websocket.JSON.Send(ws, frame{Event: EventName, Data: ev}); err != nil {
					slog.Debug("websocket send failed", "error", err)
					return
				}
			}
		},
	}
}
