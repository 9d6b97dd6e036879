package queue

import (
	"time"

	"jukebox/model"
)

// Progress returns whole seconds elapsed since playedAt, clamped to [0, length].
func Progress(playedAt time.Time, length int, now time.Time) int {
	if length <= 0 {
		return 0
	}
	elapsed := int(now.Sub(playedAt) / time.Second)
	if elapsed < 0 {
		return 0
	}
	if elapsed > length {
		return length
	}
	return elapsed
}

// ProgressPercent 进度百分比，length 为 0 时返回 0
func ProgressPercent(progress, length int) int {
	if length <= 0 {
		return 0
	}
	return 100 * progress / length
}

// Elapsed reports how long a current entry has actually been audible.
// A paused entry is frozen at its pause time.
func Elapsed(e *model.TrackEntry, now time.Time) time.Duration {
	if e.PlayedAt == nil {
		return 0
	}
	ref := now
	if e.Status == model.StatusPaused && e.PausedAt != nil {
		ref = *e.PausedAt
	}
	d := ref.Sub(*e.PlayedAt)
	if d < 0 {
		return 0
	}
	return d
}

// EntryView 带有实时进度的条目，playing/paused 条目才有 progress 字段
type EntryView struct {
	*model.TrackEntry
	Progress        *int `json:"progress,omitempty"`
	ProgressPercent *int `json:"progressPercent,omitempty"`
}

// ViewOf annotates an entry with progress computed at now.
func ViewOf(e *model.TrackEntry, now time.Time) EntryView {
	v := EntryView{TrackEntry: e}
	if !e.Status.IsCurrent() || e.PlayedAt == nil {
		return v
	}

	length := e.EffectiveLength()
	ref := now
	if e.Status == model.StatusPaused && e.PausedAt != nil {
		ref = *e.PausedAt
	}
	p := Progress(*e.PlayedAt, length, ref)
	pct := ProgressPercent(p, length)
	v.Progress = &p
	v.ProgressPercent = &pct
	return v
}
