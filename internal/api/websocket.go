package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/luke-wagner/PlantCare-Monitor/internal/apiresp"
	"github.com/luke-wagner/PlantCare-Monitor/utils"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleWebSocket streams collection events; token from ?token= or the Authorization header
func (s *Server) handleWebSocket(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		token = bearerToken(c)
	}
	if token == "" {
		apiresp.Fail(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	if _, err := utils.VerifyJWT(token); err != nil {
		apiresp.Fail(c, http.StatusUnauthorized, "invalid token")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already replied
		return
	}
	conn.SetReadLimit(64 * 1024)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	cl := s.hub.Register(conn)
	defer conn.Close()

	s.cfgMu.RLock()
	deviceID := s.config.Device.ID
	s.cfgMu.RUnlock()
	s.hub.Hello(cl, gin.H{
		"device_id": deviceID,
		"collector": s.collector.Status(),
	})

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		defer close(done)
		// unblocks the read loop after a write failure
		defer conn.Close()
		for {
			select {
			case msg, ok := <-cl.Send:
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if !ok {
					_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	// only control frames are expected from the client
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			// closes cl.Send, which ends the write loop
			s.hub.Unregister(cl)
			<-done
			return
		}
	}
}
