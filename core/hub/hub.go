// Package hub 实时推送中心：维护在线订阅者，把队列变更事件广播给所有连接。
package hub

import (
	"context"
	"encoding/json"
	"time"

	"jukebox/core/notify"
	"jukebox/core/queue"
	"jukebox/logger"
)

// MessageType 客户端请求/响应的 type 字段
type MessageType string

const (
	MsgTypePing         MessageType = "ping"
	MsgTypePong         MessageType = "pong"
	MsgTypeRegister     MessageType = "register"
	MsgTypeRegistered   MessageType = "registered"
	MsgTypeGetTracklist MessageType = "getTracklist"
	MsgTypeTracklist    MessageType = "tracklist"
	MsgTypeError        MessageType = "error"
)

// ClientMessage 客户端发来的消息
type ClientMessage struct {
	Type MessageType `json:"type"`
	Role Role        `json:"role,omitempty"`
}

// Reply 对单个客户端的响应
type Reply struct {
	Type      MessageType `json:"type"`
	Role      Role        `json:"role,omitempty"`
	ClientID  string      `json:"clientId,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// TracklistReply getTracklist 的响应
type TracklistReply struct {
	Type      MessageType       `json:"type"`
	Tracklist []queue.EntryView `json:"tracklist"`
	Timestamp time.Time         `json:"timestamp"`
}

// InitialMessage 全量快照，连接建立时以及变更通道重连后推送
type InitialMessage struct {
	OperationType notify.OperationType `json:"operationType"`
	Tracklist     []queue.EntryView    `json:"tracklist"`
	Timestamp     time.Time            `json:"timestamp"`
}

// HubStatusMessage 主控上线/下线通知
type HubStatusMessage struct {
	OperationType notify.OperationType `json:"operationType"`
	HubConnected  bool                 `json:"hubConnected"`
	Timestamp     time.Time            `json:"timestamp"`
}

// SnapshotFunc 读取当前有序队列
type SnapshotFunc func(ctx context.Context) ([]queue.EntryView, error)

// Hub 推送中心。注册、注销和广播都在 Run 的单个 goroutine 中顺序处理，
// 因此新连接总是先收到快照，再收到之后的变更。
type Hub struct {
	registry *Registry
	snapshot SnapshotFunc

	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	resync     chan struct{}

	done chan struct{}
}

// New 创建 Hub
func New(registry *Registry, snapshot SnapshotFunc) *Hub {
	return &Hub{
		registry:   registry,
		snapshot:   snapshot,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		resync:     make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
}

// Registry 返回连接表
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Run 启动 Hub 主循环，ctx 取消后关闭所有连接
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.registerClient(ctx, client)

		case client := <-h.unregister:
			h.removeClient(client)

		case msg := <-h.broadcast:
			h.broadcastAll(msg)

		case <-h.resync:
			h.pushSnapshot(ctx)

		case <-ctx.Done():
			h.cleanup()
			return
		}
	}
}

// Done 在 Run 退出后关闭
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Register 注册客户端
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		c.close()
	}
}

// Unregister 注销客户端，可重复调用
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// HandleEvent 把一条变更事件广播给所有连接
func (h *Hub) HandleEvent(ev notify.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		logger.Error("failed to encode change event", logger.ErrorField(err))
		return
	}
	logger.Debug("broadcasting change",
		logger.String("operationType", string(ev.OperationType)),
		logger.String("action", string(ev.Action)))
	h.enqueueBroadcast(data)
}

// Resync 事件可能丢失时向所有连接推送一次全量快照
func (h *Hub) Resync() {
	select {
	case h.resync <- struct{}{}:
	default:
		// 已有待处理的 resync
	}
}

// ConnectedClients 在线连接数
func (h *Hub) ConnectedClients() int {
	return h.registry.Len()
}

// HubConnected 主控是否在线
func (h *Hub) HubConnected() bool {
	return h.registry.HasMaster()
}

func (h *Hub) enqueueBroadcast(data []byte) {
	select {
	case h.broadcast <- data:
	case <-h.done:
	}
}

func (h *Hub) registerClient(ctx context.Context, c *Client) {
	h.registry.Add(c)

	views, err := h.snapshot(ctx)
	if err != nil {
		logger.Warn("failed to load snapshot for new client",
			logger.ErrorField(err),
			logger.ClientID(c.ID))
		views = []queue.EntryView{}
	}
	c.sendJSON(InitialMessage{OperationType: notify.OpInitial, Tracklist: views, Timestamp: time.Now().UTC()})

	logger.Info("client registered",
		logger.ClientID(c.ID),
		logger.Int("connected", h.registry.Len()))
}

func (h *Hub) removeClient(c *Client) {
	removed, wasMaster := h.registry.Remove(c.ID)
	if !removed {
		return
	}
	c.close()

	logger.Info("client unregistered",
		logger.ClientID(c.ID),
		logger.Bool("wasMaster", wasMaster),
		logger.Int("connected", h.registry.Len()))

	if wasMaster {
		h.broadcastAll(h.hubStatus(false))
	}
}

// broadcastAll 只在 Run 的 goroutine 中调用。发送失败的连接直接移除，不影响其他连接。
func (h *Hub) broadcastAll(data []byte) {
	for _, c := range h.registry.Clients() {
		if !c.trySend(data) {
			logger.Warn("dropping slow websocket client", logger.ClientID(c.ID))
			h.removeClient(c)
		}
	}
}

func (h *Hub) pushSnapshot(ctx context.Context) {
	views, err := h.snapshot(ctx)
	if err != nil {
		logger.Warn("failed to load snapshot for resync", logger.ErrorField(err))
		return
	}
	data, err := json.Marshal(InitialMessage{OperationType: notify.OpInitial, Tracklist: views, Timestamp: time.Now().UTC()})
	if err != nil {
		logger.Error("failed to encode snapshot", logger.ErrorField(err))
		return
	}
	h.broadcastAll(data)
}

func (h *Hub) hubStatus(connected bool) []byte {
	data, _ := json.Marshal(HubStatusMessage{
		OperationType: notify.OpHubStatus,
		HubConnected:  connected,
		Timestamp:     time.Now().UTC(),
	})
	return data
}

func (h *Hub) cleanup() {
	for _, c := range h.registry.Clients() {
		h.registry.Remove(c.ID)
		c.close()
	}
}

// HandleMessage 处理客户端请求：心跳、身份注册、拉取队列
func (h *Hub) HandleMessage(ctx context.Context, c *Client, msg *ClientMessage) {
	now := time.Now().UTC()

	switch msg.Type {
	case MsgTypePing:
		c.sendJSON(Reply{Type: MsgTypePong, Timestamp: now})

	case MsgTypeRegister:
		role := msg.Role
		if role == "" {
			role = RoleClient
		}
		wasMaster := h.registry.MasterID() == c.ID
		superseded, ok := h.registry.SetRole(c.ID, role)
		if !ok {
			return
		}
		c.sendJSON(Reply{Type: MsgTypeRegistered, Role: role, ClientID: c.ID, Timestamp: now})

		if superseded != nil {
			logger.Info("controller superseded",
				logger.String("previous", superseded.ID),
				logger.String("current", c.ID))
		}
		switch {
		case role.Privileged():
			logger.Info("controller registered", logger.ClientID(c.ID), logger.String("role", string(role)))
			h.enqueueBroadcast(h.hubStatus(true))
		case wasMaster:
			h.enqueueBroadcast(h.hubStatus(false))
		}

	case MsgTypeGetTracklist:
		views, err := h.snapshot(ctx)
		if err != nil {
			logger.Warn("failed to load tracklist", logger.ErrorField(err), logger.ClientID(c.ID))
			c.sendJSON(Reply{Type: MsgTypeError, Message: "Failed to load tracklist", Timestamp: now})
			return
		}
		if views == nil {
			views = []queue.EntryView{}
		}
		c.sendJSON(TracklistReply{Type: MsgTypeTracklist, Tracklist: views, Timestamp: now})

	default:
		c.sendJSON(Reply{Type: MsgTypeError, Message: "Unknown message type", Timestamp: now})
	}
}
