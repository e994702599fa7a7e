package hub

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"schedule-service/internal/model"
)

// Authenticator resolves a bearer token into the caller identity.
type Authenticator func(token string) (model.Identity, error)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler upgrades authenticated requests and joins the connection to the
// caller's room. The token comes from the "token" query parameter or a
// bearer Authorization header.
func (h *Hub) Handler(auth Authenticator, events EventHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		if token == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}

		identity, err := auth(token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		c := newClient(h, conn, identity, events)
		if err := h.attach(c); err != nil {
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()))
			conn.Close()
			return
		}

		go c.writePump()
		c.readPump(context.WithoutCancel(r.Context()))
	})
}
