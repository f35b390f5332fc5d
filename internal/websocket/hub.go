package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/wfunc/uvc-capture/internal/uvc"
	"go.uber.org/zap"
)

// Hub WebSocket连接管理中心：维护预览客户端连接池，
// 把采集到的帧推送给已订阅的客户端
type Hub struct {
	// 客户端连接池
	clients   map[string]*Client
	clientsMu sync.RWMutex

	// 消息广播通道
	broadcast chan *Message

	// 注册/注销通道
	register   chan *Client
	unregister chan *Client

	// 日志
	logger *zap.Logger
}

// Message WebSocket控制消息
type Message struct {
	Type      string          `json:"type"`      // 消息类型
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"` // 时间戳
}

// MessageType 消息类型
const (
	// 系统消息
	MessageTypeConnected    = "connected"
	MessageTypeDisconnected = "disconnected"
	MessageTypePing         = "ping"
	MessageTypePong         = "pong"
	MessageTypeError        = "error"

	// 预览消息
	MessageTypeSubscribe   = "subscribe"
	MessageTypeUnsubscribe = "unsubscribe"
	MessageTypeFrame       = "frame"

	// 会话消息
	MessageTypeSessionStart = "session_start"
	MessageTypeSessionEnd   = "session_end"
)

// FrameMeta 帧元数据，在二进制帧负载之前以文本消息发送
type FrameMeta struct {
	Sequence  uint64 `json:"sequence"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Bytes     int    `json:"bytes"`
	Timestamp int64  `json:"timestamp"`
}

// NewHub 创建Hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		broadcast:  make(chan *Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
	}
}

// Run 运行Hub
func (h *Hub) Run() {
	// 启动心跳检测
	go h.runHeartbeat()

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

// registerClient 注册客户端
func (h *Hub) registerClient(client *Client) {
	h.clientsMu.Lock()
	h.clients[client.ID] = client
	h.clientsMu.Unlock()

	h.logger.Info("预览客户端连接",
		zap.String("client_id", client.ID))

	// 发送连接成功消息
	msg := &Message{
		Type:      MessageTypeConnected,
		Timestamp: time.Now().Unix(),
		Data:      json.RawMessage(`{"message":"连接成功"}`),
	}
	h.SendToClient(client.ID, msg)
}

// unregisterClient 注销客户端
func (h *Hub) unregisterClient(client *Client) {
	h.clientsMu.Lock()
	if _, ok := h.clients[client.ID]; ok {
		delete(h.clients, client.ID)
		close(client.Send)
		close(client.Frames)
	}
	h.clientsMu.Unlock()

	h.logger.Info("预览客户端断开",
		zap.String("client_id", client.ID))
}

// broadcastMessage 广播控制消息
func (h *Hub) broadcastMessage(message *Message) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("序列化消息失败", zap.Error(err))
		return
	}

	h.clientsMu.RLock()
	for _, client := range h.clients {
		select {
		case client.Send <- data:
		default:
			h.logger.Warn("客户端发送缓冲区满",
				zap.String("client_id", client.ID))
		}
	}
	h.clientsMu.RUnlock()
}

// SendToClient 发送控制消息给指定客户端
func (h *Hub) SendToClient(clientID string, message *Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	h.clientsMu.RLock()
	client, ok := h.clients[clientID]
	h.clientsMu.RUnlock()

	if !ok {
		return ErrClientNotFound
	}

	select {
	case client.Send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// ConsumeFrame 帧消费入口：把完成的帧推送给所有已订阅的客户端。
// 推送缓冲区满时丢弃该客户端的这一帧，预览流允许丢帧，
// 绝不阻塞采集侧的产帧goroutine
func (h *Hub) ConsumeFrame(buf *uvc.FrameBuffer) {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()

	if len(h.clients) == 0 {
		return
	}

	meta, err := json.Marshal(&Message{
		Type:      MessageTypeFrame,
		Timestamp: buf.Timestamp.Unix(),
		Data: mustMarshal(&FrameMeta{
			Sequence:  buf.Sequence,
			Width:     buf.Width,
			Height:    buf.Height,
			Bytes:     len(buf.Data),
			Timestamp: buf.Timestamp.UnixMilli(),
		}),
	})
	if err != nil {
		h.logger.Error("序列化帧元数据失败", zap.Error(err))
		return
	}

	for _, client := range h.clients {
		if !client.Subscribed() {
			continue
		}
		select {
		case client.Frames <- &framePush{meta: meta, payload: buf.Data}:
		default:
			h.logger.Debug("客户端帧缓冲区满，丢弃预览帧",
				zap.String("client_id", client.ID),
				zap.Uint64("sequence", buf.Sequence))
		}
	}
}

// NotifySessionStart 广播会话开始
func (h *Hub) NotifySessionStart(sessionID string, mode string) {
	h.Broadcast(&Message{
		Type:      MessageTypeSessionStart,
		Timestamp: time.Now().Unix(),
		Data:      mustMarshal(map[string]string{"session_id": sessionID, "mode": mode}),
	})
}

// NotifySessionEnd 广播会话结束
func (h *Hub) NotifySessionEnd(sessionID string, cause string, received int) {
	h.Broadcast(&Message{
		Type:      MessageTypeSessionEnd,
		Timestamp: time.Now().Unix(),
		Data: mustMarshal(map[string]interface{}{
			"session_id": sessionID,
			"cause":      cause,
			"received":   received,
		}),
	})
}

// GetOnlineCount 获取在线客户端数
func (h *Hub) GetOnlineCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// runHeartbeat 运行心跳检测
func (h *Hub) runHeartbeat() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		<-ticker.C
		ping := &Message{
			Type:      MessageTypePing,
			Timestamp: time.Now().Unix(),
		}
		h.broadcast <- ping
	}
}

// Broadcast 广播控制消息（公开方法）
func (h *Hub) Broadcast(message *Message) {
	h.broadcast <- message
}

// Register 注册客户端（公开方法）
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister 注销客户端（公开方法）
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

func mustMarshal(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}
