package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"jukebox/core/hub"
	"jukebox/core/notify"
	"jukebox/core/queue"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// PingFunc 检查存储连接
type PingFunc func(ctx context.Context) error

// TracklistHandler 点歌队列 HTTP 处理器
type TracklistHandler struct {
	engine   *queue.Engine
	hub      *hub.Hub
	feed     notify.Feed
	ping     PingFunc
	upgrader websocket.Upgrader
}

// NewTracklistHandler 创建处理器
func NewTracklistHandler(engine *queue.Engine, h *hub.Hub, feed notify.Feed, ping PingFunc) *TracklistHandler {
	return &TracklistHandler{
		engine: engine,
		hub:    h,
		feed:   feed,
		ping:   ping,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// TargetRequest 播放控制请求，tracklistId 为空时作用于当前条目
type TargetRequest struct {
	TracklistID string `json:"tracklistId"`
}

// ValidateRequest 主控确认请求
type ValidateRequest struct {
	TracklistID    string         `json:"tracklistId"`
	ExistsAtMaster *bool          `json:"existsAtMaster"`
	Length         *queue.Seconds `json:"length"`
}

// EnqueueResponse 点歌结果
type EnqueueResponse struct {
	Success  bool   `json:"success"`
	ID       string `json:"id"`
	Existing bool   `json:"existing,omitempty"`
}

// SkipResponse 切歌结果
type SkipResponse struct {
	Success  bool    `json:"success"`
	Message  string  `json:"message"`
	ID       string  `json:"id"`
	NextID   *string `json:"nextId"`
	NextSong *string `json:"nextSong"`
}

// StatusResponse 队列概况以及推送中心状态
type StatusResponse struct {
	*queue.StatusReport
	ConnectedClients int       `json:"connectedClients"`
	HubConnected     bool      `json:"hubConnected"`
	Timestamp        time.Time `json:"timestamp"`
}

// HealthResponse 健康检查
type HealthResponse struct {
	Status            string    `json:"status"`
	Timestamp         time.Time `json:"timestamp"`
	ConnectedClients  int       `json:"connectedClients"`
	DatabaseConnected bool      `json:"databaseConnected"`
	ChangeFeedActive  bool      `json:"changeFeedActive"`
}

// RegisterRoutes 注册队列相关路由
func (h *TracklistHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/tracklist", h.ListHandler).Methods(http.MethodGet)
	router.HandleFunc("/tracklist", h.EnqueueHandler).Methods(http.MethodPost)
	router.HandleFunc("/play", h.PlayHandler).Methods(http.MethodPost)
	router.HandleFunc("/pause", h.PauseHandler).Methods(http.MethodPost)
	router.HandleFunc("/resume", h.ResumeHandler).Methods(http.MethodPost)
	router.HandleFunc("/skip", h.SkipHandler).Methods(http.MethodPost)
	router.HandleFunc("/validate", h.ValidateHandler).Methods(http.MethodPost)
	router.HandleFunc("/status", h.StatusHandler).Methods(http.MethodGet)
	router.HandleFunc("/health", h.HealthHandler).Methods(http.MethodGet)
	router.HandleFunc("/ws", h.WebSocketHandler)
}

// ListHandler 返回有序队列
func (h *TracklistHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	views, err := h.engine.List(r.Context())
	if err != nil {
		writeError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// EnqueueHandler 点歌
func (h *TracklistHandler) EnqueueHandler(w http.ResponseWriter, r *http.Request) {
	var req queue.EnqueueRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, MessageResponse{Success: false, Message: "Invalid request body"})
		return
	}

	entry, existing, err := h.engine.Enqueue(r.Context(), req)
	if err != nil {
		writeError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, EnqueueResponse{Success: true, ID: entry.ID, Existing: existing})
}

func (h *TracklistHandler) target(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req TargetRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, MessageResponse{Success: false, Message: "Invalid request body"})
		return "", false
	}
	return req.TracklistID, true
}

// PlayHandler 主控开始播放
func (h *TracklistHandler) PlayHandler(w http.ResponseWriter, r *http.Request) {
	target, ok := h.target(w, r)
	if !ok {
		return
	}
	entry, err := h.engine.Play(r.Context(), target)
	if err != nil {
		writeError(w, r, err, "No playable song in tracklist")
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "Song playing", ID: entry.ID})
}

// PauseHandler 暂停
func (h *TracklistHandler) PauseHandler(w http.ResponseWriter, r *http.Request) {
	target, ok := h.target(w, r)
	if !ok {
		return
	}
	entry, err := h.engine.Pause(r.Context(), target)
	if err != nil {
		writeError(w, r, err, "No song currently playing to pause")
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "Song paused", ID: entry.ID})
}

// ResumeHandler 恢复播放
func (h *TracklistHandler) ResumeHandler(w http.ResponseWriter, r *http.Request) {
	target, ok := h.target(w, r)
	if !ok {
		return
	}
	entry, err := h.engine.Resume(r.Context(), target)
	if err != nil {
		writeError(w, r, err, "No song currently paused to resume")
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "Song resumed", ID: entry.ID})
}

// SkipHandler 切歌
func (h *TracklistHandler) SkipHandler(w http.ResponseWriter, r *http.Request) {
	target, ok := h.target(w, r)
	if !ok {
		return
	}
	t, err := h.engine.Skip(r.Context(), target)
	if err != nil {
		writeError(w, r, err, "No song currently playing or paused to skip")
		return
	}

	resp := SkipResponse{Success: true, Message: "Song skipped", ID: t.Removed.ID}
	if t.Next != nil {
		resp.NextID = &t.Next.ID
		resp.NextSong = &t.Next.Title
	}
	writeJSON(w, http.StatusOK, resp)
}

// ValidateHandler 主控确认文件存在和真实时长
func (h *TracklistHandler) ValidateHandler(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, MessageResponse{Success: false, Message: "Invalid request body"})
		return
	}
	if req.TracklistID == "" {
		writeJSON(w, http.StatusBadRequest, MessageResponse{Success: false, Message: "tracklistId is required"})
		return
	}

	entry, err := h.engine.Confirm(r.Context(), req.TracklistID, req.ExistsAtMaster, req.Length.Ptr())
	if err != nil {
		writeError(w, r, err, fmt.Sprintf("Song not found: %s", req.TracklistID))
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "Validation status updated", ID: entry.ID})
}

// StatusHandler 队列概况
func (h *TracklistHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	report, err := h.engine.Status(r.Context())
	if err != nil {
		writeError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{
		StatusReport:     report,
		ConnectedClients: h.hub.ConnectedClients(),
		HubConnected:     h.hub.HubConnected(),
		Timestamp:        time.Now().UTC(),
	})
}

// HealthHandler 健康检查，存储不可用时返回 503
func (h *TracklistHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	dbOK := h.ping == nil || h.ping(ctx) == nil
	resp := HealthResponse{
		Status:            "ok",
		Timestamp:         time.Now().UTC(),
		ConnectedClients:  h.hub.ConnectedClients(),
		DatabaseConnected: dbOK,
		ChangeFeedActive:  h.feed != nil && h.feed.Active(),
	}
	status := http.StatusOK
	if !dbOK {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
