package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"stock-bot-lab/internal/orchestrator"
)

const (
	writeWait  = 5 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// stream pushes every progress snapshot of a run over a websocket.
// A finished run sends its final snapshot and closes.
func (h *SimulationHandler) stream(c *gin.Context) {
	id := c.Param("id")
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	updates, stop, err := h.Manager.Subscribe(ctx, id)
	if err != nil && !errors.Is(err, orchestrator.ErrInvalidState) {
		fail(c, err)
		return
	}
	if stop != nil {
		defer stop()
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger().Warn("websocket upgrade failed", zap.String("run_id", id), zap.Error(err))
		return
	}
	defer conn.Close()

	// Drain client frames so close and pong are processed.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if updates == nil {
		p, err := h.Manager.GetStatus(ctx, id)
		if err == nil {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteJSON(p)
		}
		closeNormal(conn)
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case p, ok := <-updates:
			if !ok {
				closeNormal(conn)
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(p); err != nil {
				h.logger().Debug("websocket write failed", zap.String("run_id", id), zap.Error(err))
				return
			}
		}
	}
}

func closeNormal(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
