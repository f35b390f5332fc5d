package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	ws "github.com/wfunc/uvc-capture/internal/websocket"
	"go.uber.org/zap"
)

// WebSocketHandler WebSocket预览处理器
type WebSocketHandler struct {
	hub      *ws.Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewWebSocketHandler 创建WebSocket预览处理器
func NewWebSocketHandler(hub *ws.Hub, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin: func(r *http.Request) bool {
				// 预览服务面向局域网，不校验Origin
				return true
			},
		},
		logger: logger,
	}
}

// Preview 帧预览WebSocket连接
func (h *WebSocketHandler) Preview(c *gin.Context) {
	// 升级为WebSocket连接
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("WebSocket升级失败",
			zap.String("ip", c.ClientIP()),
			zap.Error(err))
		return
	}

	// 创建客户端并注册
	client := ws.NewClient(h.hub, conn)
	h.hub.Register(client)

	// 启动读写协程
	go client.WritePump()
	go client.ReadPump()

	h.logger.Info("预览连接建立",
		zap.String("client_id", client.ID),
		zap.String("ip", c.ClientIP()))
}
