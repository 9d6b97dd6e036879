package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"jukebox/core/notify"
	"jukebox/db"
	"jukebox/model"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []notify.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev notify.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) all() []notify.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]notify.Event(nil), p.events...)
}

type steppingClock struct {
	t time.Time
}

func (c *steppingClock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestStore(t *testing.T) (*TrackStore, *recordingPublisher) {
	t.Helper()
	gdb, err := db.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(gdb) })

	pub := &recordingPublisher{}
	clock := &steppingClock{t: time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)}
	store := NewTrackStore(gdb, pub).WithClock(clock.now)
	require.NoError(t, store.AutoMigrate(context.Background()))
	return store, pub
}

func insert(t *testing.T, s *TrackStore, songID string, priority int, confirmed bool) *model.TrackEntry {
	t.Helper()
	e, existing, err := s.Insert(context.Background(), &model.TrackEntry{
		SongID:         songID,
		Title:          "Song " + songID,
		Artist:         model.DefaultArtist,
		Album:          model.DefaultAlbum,
		Duration:       model.DefaultDuration,
		Priority:       priority,
		ExistsAtMaster: confirmed,
	})
	require.NoError(t, err)
	require.False(t, existing)
	return e
}

func TestInsert_AssignsIDAndPublishes(t *testing.T) {
	s, pub := newTestStore(t)

	e := insert(t, s, "s1", 2, false)
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, model.StatusQueued, e.Status)
	assert.False(t, e.CreatedAt.IsZero())

	events := pub.all()
	require.Len(t, events, 1)
	assert.Equal(t, notify.OpInsert, events[0].OperationType)
	assert.Equal(t, e.ID, events[0].SongID)
	assert.Equal(t, notify.ActionEnqueue, events[0].Action)
}

func TestInsert_DedupesLiveSong(t *testing.T) {
	s, pub := newTestStore(t)
	first := insert(t, s, "s1", 2, false)

	again, existing, err := s.Insert(context.Background(), &model.TrackEntry{SongID: "s1", Title: "dup"})
	require.NoError(t, err)
	assert.True(t, existing)
	assert.Equal(t, first.ID, again.ID)
	assert.Len(t, pub.all(), 1)

	ok, err := s.DeleteGuarded(context.Background(), Guard{ID: first.ID}, notify.ActionSkip)
	require.NoError(t, err)
	require.True(t, ok)

	fresh, existing, err := s.Insert(context.Background(), &model.TrackEntry{SongID: "s1", Title: "again"})
	require.NoError(t, err)
	assert.False(t, existing)
	assert.NotEqual(t, first.ID, fresh.ID)
}

func TestList_OrdersByPriorityThenCreatedAt(t *testing.T) {
	s, _ := newTestStore(t)
	a := insert(t, s, "a", 2, false)
	b := insert(t, s, "b", 1, false)
	c := insert(t, s, "c", 2, false)

	entries, err := s.List(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, []string{b.ID, a.ID, c.ID}, []string{entries[0].ID, entries[1].ID, entries[2].ID})
}

func TestGet_MissingReturnsNil(t *testing.T) {
	s, _ := newTestStore(t)
	e, err := s.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestFirstPlayable_SkipsUnconfirmed(t *testing.T) {
	s, _ := newTestStore(t)
	insert(t, s, "a", 1, false)
	b := insert(t, s, "b", 2, true)
	c := insert(t, s, "c", 2, true)

	ctx := context.Background()
	next, err := s.FirstPlayable(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, b.ID, next.ID)

	_, err = s.Promote(ctx, b.ID, notify.ActionPlay)
	require.NoError(t, err)
	next, err = s.FirstPlayable(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, c.ID, next.ID)
}

func TestPromote_SingleCurrentSlot(t *testing.T) {
	s, pub := newTestStore(t)
	ctx := context.Background()
	a := insert(t, s, "a", 2, true)
	b := insert(t, s, "b", 2, true)

	playing, err := s.Promote(ctx, a.ID, notify.ActionPlay)
	require.NoError(t, err)
	require.NotNil(t, playing)
	assert.Equal(t, model.StatusPlaying, playing.Status)
	assert.NotNil(t, playing.PlayedAt)
	assert.Equal(t, int64(1), playing.Revision)

	_, err = s.Promote(ctx, b.ID, notify.ActionPlay)
	assert.ErrorIs(t, err, ErrSlotTaken)

	again, err := s.Promote(ctx, a.ID, notify.ActionPlay)
	require.NoError(t, err)
	assert.Nil(t, again, "already playing entry is not promoted twice")

	last := pub.all()[len(pub.all())-1]
	assert.Equal(t, notify.OpUpdate, last.OperationType)
	assert.Equal(t, model.StatusPlaying, last.Status)
}

func TestPromote_RequiresConfirmation(t *testing.T) {
	s, _ := newTestStore(t)
	a := insert(t, s, "a", 2, false)

	e, err := s.Promote(context.Background(), a.ID, notify.ActionPlay)
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestCompareAndUpdate_RevisionGuard(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	a := insert(t, s, "a", 2, false)

	updated, err := s.CompareAndUpdate(ctx, Guard{ID: a.ID, Revision: Revision(0)},
		map[string]interface{}{"exists_at_master": true, "length": 200}, notify.ActionConfirm)
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.True(t, updated.ExistsAtMaster)
	assert.Equal(t, 200, updated.Length)
	assert.Equal(t, int64(1), updated.Revision)

	stale, err := s.CompareAndUpdate(ctx, Guard{ID: a.ID, Revision: Revision(0)},
		map[string]interface{}{"length": 1}, notify.ActionConfirm)
	require.NoError(t, err)
	assert.Nil(t, stale)
}

func TestCompareAndUpdate_StatusGuard(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	a := insert(t, s, "a", 2, true)

	e, err := s.CompareAndUpdate(ctx, Guard{ID: a.ID, Statuses: []model.TrackStatus{model.StatusPlaying}},
		map[string]interface{}{"status": model.StatusPaused}, notify.ActionPause)
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestDeleteGuarded(t *testing.T) {
	s, pub := newTestStore(t)
	ctx := context.Background()
	a := insert(t, s, "a", 2, true)

	ok, err := s.DeleteGuarded(ctx, Guard{ID: a.ID, Statuses: []model.TrackStatus{model.StatusPlaying}}, notify.ActionSkip)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.DeleteGuarded(ctx, Guard{ID: a.ID, Statuses: []model.TrackStatus{model.StatusQueued}}, notify.ActionSkip)
	require.NoError(t, err)
	assert.True(t, ok)

	last := pub.all()[len(pub.all())-1]
	assert.Equal(t, notify.OpDelete, last.OperationType)
	assert.Equal(t, a.ID, last.SongID)
	assert.Nil(t, last.EntryFields)
}

func TestClearAllAndCount(t *testing.T) {
	s, pub := newTestStore(t)
	ctx := context.Background()
	a := insert(t, s, "a", 2, true)
	insert(t, s, "b", 2, false)
	_, err := s.Promote(ctx, a.ID, notify.ActionPlay)
	require.NoError(t, err)

	counts, err := s.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[model.StatusQueued])
	assert.Equal(t, int64(1), counts[model.StatusPlaying])
	assert.Equal(t, int64(0), counts[model.StatusPaused])

	before := len(pub.all())
	n, err := s.ClearAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Len(t, pub.all(), before+2)

	entries, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPublishFailureDoesNotFailWrite(t *testing.T) {
	s, pub := newTestStore(t)
	pub.err = errors.New("broker down")

	e, _, err := s.Insert(context.Background(), &model.TrackEntry{SongID: "x"})
	require.NoError(t, err)
	assert.NotNil(t, e)
}

func TestIsDuplicateKey(t *testing.T) {
	assert.False(t, IsDuplicateKey(nil))
	assert.True(t, IsDuplicateKey(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry '1'"}))
	assert.True(t, IsDuplicateKey(errors.New("UNIQUE constraint failed: tracklist.current_slot")))
	assert.False(t, IsDuplicateKey(errors.New("connection refused")))
}
