package handler

import (
	"net/http"

	"taskboard-server/internal/middleware"
	"taskboard-server/internal/websocket"
	"taskboard-server/pkg/response"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

type WebSocketHandler struct {
	manager  *websocket.Manager
	auth     middleware.Authenticator
	upgrader ws.Upgrader
	log      logrus.FieldLogger
}

func NewWebSocketHandler(manager *websocket.Manager, auth middleware.Authenticator, log logrus.FieldLogger) *WebSocketHandler {
	return &WebSocketHandler{
		manager: manager,
		auth:    auth,
		upgrader: ws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		log: log.WithField("component", "websocket"),
	}
}

// HandleConnection authenticates before upgrading. Browsers cannot set
// headers on a WebSocket handshake, so a token query parameter is accepted
// besides the session cookie and bearer header.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = middleware.TokenFromRequest(r)
	}

	if token == "" {
		response.Unauthorized(w, "Missing authorization token")
		return
	}

	user, err := h.auth.Authenticate(r.Context(), token)
	if err != nil {
		h.log.WithError(err).Debug("websocket token rejected")
		response.Unauthorized(w, "Invalid access token")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("failed to upgrade connection")
		return
	}

	client := websocket.NewClient(uuid.New().String(), user.ID, conn, h.manager)
	if !h.manager.AddClient(client) {
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}
