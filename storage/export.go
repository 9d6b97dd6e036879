package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"jukebox/model"
)

// Snapshot 队列导出格式
type Snapshot struct {
	ExportedAt time.Time                   `json:"exportedAt"`
	Counts     map[model.TrackStatus]int64 `json:"counts"`
	Total      int                         `json:"total"`
	Tracklist  []*model.TrackEntry         `json:"tracklist"`
}

// NewSnapshot builds an export document from an ordered tracklist.
func NewSnapshot(entries []*model.TrackEntry, counts map[model.TrackStatus]int64, now time.Time) *Snapshot {
	if entries == nil {
		entries = []*model.TrackEntry{}
	}
	return &Snapshot{ExportedAt: now.UTC(), Counts: counts, Total: len(entries), Tracklist: entries}
}

// Encode 序列化为带缩进的 JSON
func (s *Snapshot) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return data, nil
}

// ExportKey 对象名按导出时间生成，例如 tracklist/tracklist-20260501T210000Z.json
func ExportKey(now time.Time) string {
	return fmt.Sprintf("tracklist/tracklist-%s.json", now.UTC().Format("20060102T150405Z"))
}

// WriteFile 写入本地文件，目录不存在时创建
func WriteFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
