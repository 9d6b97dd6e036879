// Package notify 队列变更通知：每一次已提交的存储变更对应一条规范化事件。
package notify

import (
	"context"
	"time"

	"jukebox/model"
)

// OperationType 事件类型
type OperationType string

const (
	OpInsert    OperationType = "insert"
	OpUpdate    OperationType = "update"
	OpDelete    OperationType = "delete"
	OpInitial   OperationType = "initial"
	OpHubStatus OperationType = "hubStatus"
)

// Action 触发变更的队列动作，便于播放端区分暂停/恢复等指令
type Action string

const (
	ActionEnqueue Action = "enqueue"
	ActionConfirm Action = "confirm"
	ActionPlay    Action = "play"
	ActionPause   Action = "pause"
	ActionResume  Action = "resume"
	ActionSkip    Action = "skip"
	ActionFinish  Action = "finish"
	ActionClear   Action = "clear"
)

// EntryFields 插入/更新事件中携带的展示字段
type EntryFields struct {
	SongTitle      string            `json:"songTitle"`
	Status         model.TrackStatus `json:"status"`
	Artist         string            `json:"artist"`
	Album          string            `json:"album"`
	ExistsAtMaster bool              `json:"existsAtMaster"`
	Length         int               `json:"length"`
	Priority       int               `json:"priority"`
	RequestedBy    string            `json:"requestedBy"`
	MasterID       string            `json:"masterId"`
	SlaveID        string            `json:"slaveId"`
	CreatedAt      time.Time         `json:"createdAt"`
	PlayedAt       *time.Time        `json:"playedAt"`
}

// Event 推送给订阅者的单条变更
type Event struct {
	OperationType OperationType `json:"operationType"`
	// SongID carries the tracklist entry identifier, not the catalogue song id.
	SongID string `json:"songId"`
	*EntryFields
	Action    Action    `json:"action,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func fieldsOf(e *model.TrackEntry) *EntryFields {
	return &EntryFields{
		SongTitle:      e.Title,
		Status:         e.Status,
		Artist:         e.Artist,
		Album:          e.Album,
		ExistsAtMaster: e.ExistsAtMaster,
		Length:         e.Length,
		Priority:       e.Priority,
		RequestedBy:    e.RequestedBy,
		MasterID:       e.MasterID,
		SlaveID:        e.SlaveID,
		CreatedAt:      e.CreatedAt,
		PlayedAt:       e.PlayedAt,
	}
}

// NewInsertEvent builds the event for a freshly inserted entry.
func NewInsertEvent(e *model.TrackEntry, action Action, now time.Time) Event {
	return Event{OperationType: OpInsert, SongID: e.ID, EntryFields: fieldsOf(e), Action: action, Timestamp: now}
}

// NewUpdateEvent builds the event for an entry after an update.
func NewUpdateEvent(e *model.TrackEntry, action Action, now time.Time) Event {
	return Event{OperationType: OpUpdate, SongID: e.ID, EntryFields: fieldsOf(e), Action: action, Timestamp: now}
}

// NewDeleteEvent builds the event for a removed entry. Only the id is carried.
func NewDeleteEvent(id string, action Action, now time.Time) Event {
	return Event{OperationType: OpDelete, SongID: id, Action: action, Timestamp: now}
}

// Handler 消费变更事件
type Handler interface {
	HandleEvent(ev Event)
	// Resync is called when events may have been missed; consumers reload a full snapshot.
	Resync()
}

// Publisher 由存储层在提交后调用
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Feed 变更通道：发布 + 订阅
type Feed interface {
	Publisher
	// Run delivers events to h until ctx is cancelled. Transient errors are retried internally.
	Run(ctx context.Context, h Handler) error
	// Active reports whether the feed currently holds a live subscription.
	Active() bool
}
