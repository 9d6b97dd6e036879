package queue

import (
	"testing"
	"time"

	"jukebox/model"

	"github.com/stretchr/testify/assert"
)

func TestProgress_ClampedAndMonotonic(t *testing.T) {
	start := time.Date(2026, 5, 1, 21, 0, 0, 0, time.UTC)

	prev := -1
	for s := -5; s <= 400; s += 7 {
		p := Progress(start, 180, start.Add(time.Duration(s)*time.Second))
		assert.GreaterOrEqual(t, p, prev)
		assert.GreaterOrEqual(t, p, 0)
		assert.LessOrEqual(t, p, 180)
		prev = p
	}

	assert.Equal(t, 0, Progress(start, 180, start.Add(-time.Minute)))
	assert.Equal(t, 59, Progress(start, 180, start.Add(59999*time.Millisecond)))
	assert.Equal(t, 180, Progress(start, 180, start.Add(time.Hour)))
	assert.Equal(t, 0, Progress(start, 0, start.Add(time.Hour)))
}

func TestProgressPercent(t *testing.T) {
	assert.Equal(t, 0, ProgressPercent(10, 0))
	assert.Equal(t, 50, ProgressPercent(90, 180))
	assert.Equal(t, 100, ProgressPercent(180, 180))
	assert.Equal(t, 33, ProgressPercent(1, 3))
}

func TestViewOf(t *testing.T) {
	now := time.Date(2026, 5, 1, 21, 0, 0, 0, time.UTC)
	played := now.Add(-45 * time.Second)
	pausedAt := now.Add(-15 * time.Second)

	queued := ViewOf(&model.TrackEntry{Status: model.StatusQueued, Length: 90}, now)
	assert.Nil(t, queued.Progress)

	playing := ViewOf(&model.TrackEntry{Status: model.StatusPlaying, Length: 90, PlayedAt: &played}, now)
	assert.Equal(t, 45, *playing.Progress)
	assert.Equal(t, 50, *playing.ProgressPercent)

	paused := ViewOf(&model.TrackEntry{Status: model.StatusPaused, Length: 90, PlayedAt: &played, PausedAt: &pausedAt}, now)
	assert.Equal(t, 30, *paused.Progress)

	nominal := ViewOf(&model.TrackEntry{Status: model.StatusPlaying, Duration: 180, PlayedAt: &played}, now)
	assert.Equal(t, 25, *nominal.ProgressPercent)
}

func TestElapsed(t *testing.T) {
	now := time.Date(2026, 5, 1, 21, 0, 0, 0, time.UTC)
	played := now.Add(-time.Minute)
	pausedAt := now.Add(-20 * time.Second)

	assert.Equal(t, time.Duration(0), Elapsed(&model.TrackEntry{Status: model.StatusPlaying}, now))
	assert.Equal(t, time.Minute, Elapsed(&model.TrackEntry{Status: model.StatusPlaying, PlayedAt: &played}, now))
	assert.Equal(t, 40*time.Second, Elapsed(&model.TrackEntry{Status: model.StatusPaused, PlayedAt: &played, PausedAt: &pausedAt}, now))
}
