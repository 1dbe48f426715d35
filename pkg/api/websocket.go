package api

import (
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"github.com/quantlink/spreadgrid/pkg/engine"
	"github.com/quantlink/spreadgrid/pkg/logger"
)

const (
	wsPingInterval = 30 * time.Second
	wsSendQueue    = 16
)

// WebSocketMessage 推送消息
type WebSocketMessage struct {
	Type      string      `json:"type"` // dashboard_update | ping | command_result
	Timestamp string      `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// clientMessage 客户端上行消息，type=command 时 Command 有效
type clientMessage struct {
	Type    string          `json:"type"`
	Command *engine.Command `json:"command,omitempty"`
}

// CommandFunc 处理客户端经 WebSocket 下发的运维命令
type CommandFunc func(cmd engine.Command) jsonResponse

// wsClient 一个连接，所有写操作都在 writeLoop 中完成
type wsClient struct {
	conn *websocket.Conn
	send chan *WebSocketMessage
	done chan struct{}
	once sync.Once
}

func (c *wsClient) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// WebSocketHub 管理 dashboard 订阅连接
type WebSocketHub struct {
	mu        sync.RWMutex
	clients   map[*wsClient]struct{}
	stopped   bool
	onCommand CommandFunc
	dropped   int
}

// NewWebSocketHub 创建 Hub
func NewWebSocketHub() *WebSocketHub {
	return &WebSocketHub{clients: make(map[*wsClient]struct{})}
}

// SetCommandHandler 在接受连接之前设置
func (h *WebSocketHub) SetCommandHandler(fn CommandFunc) { h.onCommand = fn }

// Start 允许接受连接
func (h *WebSocketHub) Start() {
	h.mu.Lock()
	h.stopped = false
	h.mu.Unlock()
	logger.Infof("[WebSocket] Hub started")
}

// Stop 关闭所有连接，之后的连接直接断开
func (h *WebSocketHub) Stop() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.stopped = true
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*wsClient]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
	logger.Infof("[WebSocket] Hub stopped, closed %d clients", len(clients))
}

// Broadcast 推送快照；客户端发送队列满时丢弃本次推送
func (h *WebSocketHub) Broadcast(d *Dashboard) {
	msg := &WebSocketMessage{
		Type:      "dashboard_update",
		Timestamp: time.Now().Format(time.RFC3339),
		Data:      d,
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.dropped++
		}
	}
}

// ClientCount 当前连接数
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped 因发送队列满而丢弃的推送数
func (h *WebSocketHub) Dropped() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}

func (h *WebSocketHub) add(c *wsClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return false
	}
	h.clients[c] = struct{}{}
	logger.Debugf("[WebSocket] client connected, total: %d", len(h.clients))
	return true
}

func (h *WebSocketHub) remove(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		logger.Debugf("[WebSocket] client disconnected, total: %d", len(h.clients))
	}
	h.mu.Unlock()
	c.close()
}

// HandleWebSocket 连接入口：读循环在当前 goroutine，写循环单独起
func (h *WebSocketHub) HandleWebSocket(ws *websocket.Conn) {
	c := &wsClient{
		conn: ws,
		send: make(chan *WebSocketMessage, wsSendQueue),
		done: make(chan struct{}),
	}
	if !h.add(c) {
		ws.Close()
		return
	}
	defer h.remove(c)

	go h.writeLoop(c)

	for {
		var msg clientMessage
		if err := websocket.JSON.Receive(ws, &msg); err != nil {
			return
		}
		if msg.Type != "command" || msg.Command == nil || h.onCommand == nil {
			continue
		}
		reply := &WebSocketMessage{
			Type:      "command_result",
			Timestamp: time.Now().Format(time.RFC3339),
			Data:      h.onCommand(*msg.Command),
		}
		select {
		case c.send <- reply:
		case <-c.done:
			return
		}
	}
}

func (h *WebSocketHub) writeLoop(c *wsClient) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		var msg *WebSocketMessage
		select {
		case <-c.done:
			return
		case msg = <-c.send:
		case <-ticker.C:
			msg = &WebSocketMessage{Type: "ping", Timestamp: time.Now().Format(time.RFC3339)}
		}
		if err := websocket.JSON.Send(c.conn, msg); err != nil {
			logger.Debugf("[WebSocket] send error: %v", err)
			h.remove(c)
			return
		}
	}
}
