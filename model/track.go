package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TrackStatus 队列条目状态
type TrackStatus string

const (
	StatusQueued  TrackStatus = "queued"
	StatusPlaying TrackStatus = "playing"
	StatusPaused  TrackStatus = "paused"
	StatusPlayed  TrackStatus = "played"
	StatusSkipped TrackStatus = "skipped"
)

// AllStatuses lists every status in display order.
var AllStatuses = []TrackStatus{StatusQueued, StatusPlaying, StatusPaused, StatusPlayed, StatusSkipped}

// IsCurrent reports whether the status occupies the single player slot.
func (s TrackStatus) IsCurrent() bool {
	return s == StatusPlaying || s == StatusPaused
}

// 默认值，与网页端提交时保持一致
const (
	DefaultArtist       = "Unknown Artist"
	DefaultAlbum        = "Unknown Album"
	DefaultDuration     = 180
	DefaultPriority     = 2
	DefaultRequestedBy  = "Anonymous"
	DefaultControllerID = "webapp"
)

// currentSlotValue is the only non-NULL value current_slot may hold; the unique
// index on that column is what keeps two entries from playing at once.
const currentSlotValue = 1

// TrackEntry 点歌队列中的一条记录
type TrackEntry struct {
	ID       string      `json:"id" gorm:"primaryKey;size:36"`
	SongID   string      `json:"songId" gorm:"size:191;index"`
	Title    string      `json:"title" gorm:"size:255"`
	Artist   string      `json:"artist" gorm:"size:255"`
	Album    string      `json:"album" gorm:"size:255"`
	Duration int         `json:"duration"` // 客户端提交的名义时长（秒）
	Status   TrackStatus `json:"status" gorm:"size:20;index;not null"`
	Priority int         `json:"priority" gorm:"index:idx_tracklist_order,priority:1"`

	CreatedAt time.Time  `json:"createdAt" gorm:"autoCreateTime:false;index:idx_tracklist_order,priority:2"`
	PlayedAt  *time.Time `json:"playedAt"`
	PausedAt  *time.Time `json:"pausedAt,omitempty"`
	ResumedAt *time.Time `json:"resumedAt,omitempty"`

	RequestedBy string `json:"requestedBy" gorm:"size:255"`
	MasterID    string `json:"masterId" gorm:"size:100"`
	SlaveID     string `json:"slaveId" gorm:"size:100"`

	ExistsAtMaster bool `json:"existsAtMaster" gorm:"not null;default:false"`
	Length         int  `json:"length" gorm:"not null;default:0"` // 主控确认后的真实时长（秒）

	// 乐观锁版本号，每次条件更新 +1
	Revision int64 `json:"revision" gorm:"not null;default:0"`
	// 正在播放/暂停的条目为 1，其余为 NULL（唯一索引）
	CurrentSlot *int `json:"-" gorm:"uniqueIndex"`
	// 条目仍在队列中时等于 SongID（唯一索引，用于点歌去重）
	LiveSongKey *string `json:"-" gorm:"size:191;uniqueIndex"`
}

// TableName 指定表名
func (TrackEntry) TableName() string {
	return "tracklist"
}

// BeforeCreate assigns the store-side identifier.
func (e *TrackEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}

// CurrentSlotMarker returns a fresh pointer for the current_slot column.
func CurrentSlotMarker() *int {
	v := currentSlotValue
	return &v
}

// LiveKeyFor returns the live_song_key value for a song id; empty ids never dedupe.
func LiveKeyFor(songID string) *string {
	if songID == "" {
		return nil
	}
	return &songID
}

// IsPlayable 主控确认文件存在后才能被自动播放
func (e *TrackEntry) IsPlayable() bool {
	return e.ExistsAtMaster
}

// EffectiveLength is the authoritative length, falling back to the nominal duration.
func (e *TrackEntry) EffectiveLength() int {
	if e.Length > 0 {
		return e.Length
	}
	if e.Duration > 0 {
		return e.Duration
	}
	return 0
}
