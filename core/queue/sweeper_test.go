package queue

import (
	"context"
	"testing"
	"time"

	"jukebox/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweeper_AdvancesFinishedEntry(t *testing.T) {
	e, clock := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := confirmed(t, e, "a", 1, 10)
	second := confirmed(t, e, "b", 2, 10)
	_, err := e.Play(ctx, first.ID)
	require.NoError(t, err)
	clock.Advance(11 * time.Second)

	s := NewSweeper(e, 10*time.Millisecond)
	s.Start(ctx)
	defer s.Stop()

	assert.Eventually(t, func() bool {
		cur, err := e.store.FindByStatus(ctx, model.StatusPlaying)
		return err == nil && cur != nil && cur.ID == second.ID
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSweeper_StopIsIdempotent(t *testing.T) {
	e, _ := newTestEngine(t)
	s := NewSweeper(e, 0)
	assert.Equal(t, time.Second, s.interval)

	s.Start(context.Background())
	s.Stop()
	s.Stop()
}
