package server

import (
	"net/http"

	"jukebox/logger"
)

// WebSocketHandler 升级为 WebSocket 并加入推送中心
func (h *TracklistHandler) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", logger.ErrorField(err))
		return
	}

	client := h.hub.NewClient(conn)
	h.hub.Register(client)

	logger.Info("websocket connected",
		logger.ClientID(client.ID),
		logger.String("remote", r.RemoteAddr))

	go client.WritePump()
	// r.Context() 在升级后仍然有效，直到 handler 返回
	client.ReadPump(r.Context())
}
