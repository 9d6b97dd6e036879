package hub

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"jukebox/core/notify"
	"jukebox/core/queue"
	"jukebox/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entries(ids ...string) []queue.EntryView {
	views := make([]queue.EntryView, 0, len(ids))
	for i, id := range ids {
		views = append(views, queue.EntryView{TrackEntry: &model.TrackEntry{
			ID:       id,
			SongID:   "song-" + id,
			Title:    "Title " + id,
			Status:   model.StatusQueued,
			Priority: i + 1,
		}})
	}
	return views
}

func startHub(t *testing.T, snapshot SnapshotFunc) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h := New(NewRegistry(), snapshot)
	go h.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-h.Done()
	})
	return h
}

func recv(t *testing.T, c *Client) map[string]interface{} {
	t.Helper()
	select {
	case data, ok := <-c.Send:
		require.True(t, ok, "send channel closed")
		var msg map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestRegister_SendsInitialSnapshotFirst(t *testing.T) {
	h := startHub(t, func(context.Context) ([]queue.EntryView, error) {
		return entries("a", "b", "c"), nil
	})

	c := h.NewClient(nil)
	h.Register(c)
	h.HandleEvent(notify.NewDeleteEvent("a", notify.ActionSkip, time.Now()))

	first := recv(t, c)
	assert.Equal(t, "initial", first["operationType"])
	list, ok := first["tracklist"].([]interface{})
	require.True(t, ok)
	require.Len(t, list, 3)
	assert.Equal(t, "a", list[0].(map[string]interface{})["id"])

	second := recv(t, c)
	assert.Equal(t, "delete", second["operationType"])
	assert.Equal(t, "a", second["songId"])
	assert.Equal(t, 1, h.ConnectedClients())
}

func TestRegister_SnapshotFailureStillConnects(t *testing.T) {
	h := startHub(t, func(context.Context) ([]queue.EntryView, error) {
		return nil, errors.New("db down")
	})

	c := h.NewClient(nil)
	h.Register(c)
	msg := recv(t, c)
	assert.Equal(t, "initial", msg["operationType"])
	assert.Empty(t, msg["tracklist"])
}

func TestBroadcast_DropsFullClientOnly(t *testing.T) {
	h := startHub(t, func(context.Context) ([]queue.EntryView, error) { return entries(), nil })

	slow := h.NewClient(nil)
	fast := h.NewClient(nil)
	h.Register(slow)
	h.Register(fast)
	recv(t, fast)

	// 填满 slow 的发送队列（快照已占一格）
	for i := 0; i < sendBufferSize-1; i++ {
		require.True(t, slow.trySend([]byte(`{}`)))
	}

	h.HandleEvent(notify.NewDeleteEvent("x", notify.ActionSkip, time.Now()))
	msg := recv(t, fast)
	assert.Equal(t, "delete", msg["operationType"])

	assert.Eventually(t, func() bool { return h.ConnectedClients() == 1 }, time.Second, 5*time.Millisecond)
	assert.Nil(t, h.Registry().Get(slow.ID))
	assert.False(t, slow.trySend([]byte(`{}`)))
}

func TestUnregister_ClosesSendAndIsIdempotent(t *testing.T) {
	h := startHub(t, func(context.Context) ([]queue.EntryView, error) { return entries(), nil })
	c := h.NewClient(nil)
	h.Register(c)
	recv(t, c)

	h.Unregister(c)
	h.Unregister(c)

	assert.Eventually(t, func() bool { return h.ConnectedClients() == 0 }, time.Second, 5*time.Millisecond)
	_, ok := <-c.Send
	assert.False(t, ok)
}

func TestResync_BroadcastsFreshSnapshot(t *testing.T) {
	calls := 0
	h := startHub(t, func(context.Context) ([]queue.EntryView, error) {
		calls++
		if calls == 1 {
			return entries("a"), nil
		}
		return entries("a", "b"), nil
	})
	c := h.NewClient(nil)
	h.Register(c)
	recv(t, c)

	h.Resync()
	msg := recv(t, c)
	assert.Equal(t, "initial", msg["operationType"])
	assert.Len(t, msg["tracklist"], 2)
}

func TestHandleMessage_PingAndGetTracklist(t *testing.T) {
	h := startHub(t, func(context.Context) ([]queue.EntryView, error) { return entries("a", "b"), nil })
	c := h.NewClient(nil)
	h.Register(c)
	recv(t, c)

	h.HandleMessage(context.Background(), c, &ClientMessage{Type: MsgTypePing})
	assert.Equal(t, "pong", recv(t, c)["type"])

	h.HandleMessage(context.Background(), c, &ClientMessage{Type: MsgTypeGetTracklist})
	msg := recv(t, c)
	assert.Equal(t, "tracklist", msg["type"])
	assert.Len(t, msg["tracklist"], 2)

	h.HandleMessage(context.Background(), c, &ClientMessage{Type: "dance"})
	assert.Equal(t, "error", recv(t, c)["type"])
}

func TestMasterRegistration_SupersedesAndReportsStatus(t *testing.T) {
	h := startHub(t, func(context.Context) ([]queue.EntryView, error) { return entries(), nil })
	ctx := context.Background()

	viewer := h.NewClient(nil)
	first := h.NewClient(nil)
	second := h.NewClient(nil)
	for _, c := range []*Client{viewer, first, second} {
		h.Register(c)
		recv(t, c)
	}

	h.HandleMessage(ctx, first, &ClientMessage{Type: MsgTypeRegister, Role: RoleMaster})
	reg := recv(t, first)
	assert.Equal(t, "registered", reg["type"])
	assert.Equal(t, "master", reg["role"])
	assert.Equal(t, first.ID, reg["clientId"])

	status := recv(t, viewer)
	assert.Equal(t, "hubStatus", status["operationType"])
	assert.Equal(t, true, status["hubConnected"])
	assert.True(t, h.HubConnected())

	h.HandleMessage(ctx, second, &ClientMessage{Type: MsgTypeRegister, Role: RoleHub})
	assert.Equal(t, second.ID, h.Registry().MasterID())
	assert.Equal(t, RoleUnknown, first.Role())
	assert.Equal(t, RoleHub, second.Role())

	// 旧主控断开不会影响新主控
	h.Unregister(first)
	assert.Eventually(t, func() bool { return h.ConnectedClients() == 2 }, time.Second, 5*time.Millisecond)
	assert.True(t, h.HubConnected())

	h.Unregister(second)
	assert.Eventually(t, func() bool { return !h.HubConnected() }, time.Second, 5*time.Millisecond)

	var sawDisconnect bool
	for i := 0; i < 3 && !sawDisconnect; i++ {
		msg := recv(t, viewer)
		sawDisconnect = msg["operationType"] == "hubStatus" && msg["hubConnected"] == false
	}
	assert.True(t, sawDisconnect)
}

func TestRegistry_SetRoleUnknownClient(t *testing.T) {
	r := NewRegistry()
	_, ok := r.SetRole("nope", RoleMaster)
	assert.False(t, ok)
	assert.False(t, r.HasMaster())

	h := New(r, nil)
	c := h.NewClient(nil)
	r.Add(c)
	_, ok = r.SetRole(c.ID, RoleMaster)
	require.True(t, ok)
	assert.Equal(t, c.ID, r.MasterID())

	_, ok = r.SetRole(c.ID, RoleClient)
	require.True(t, ok)
	assert.False(t, r.HasMaster())

	removed, wasMaster := r.Remove(c.ID)
	assert.True(t, removed)
	assert.False(t, wasMaster)
	removed, _ = r.Remove(c.ID)
	assert.False(t, removed)
}
