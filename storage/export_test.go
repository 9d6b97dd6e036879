package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"jukebox/config"
	"jukebox/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportKey(t *testing.T) {
	now := time.Date(2026, 5, 1, 23, 4, 5, 0, time.FixedZone("CEST", 2*3600))
	assert.Equal(t, "tracklist/tracklist-20260501T210405Z.json", ExportKey(now))
}

func TestSnapshot_EncodeAndWrite(t *testing.T) {
	now := time.Date(2026, 5, 1, 21, 0, 0, 0, time.UTC)
	snap := NewSnapshot([]*model.TrackEntry{
		{ID: "1", SongID: "s1", Title: "Karma Police", Status: model.StatusPlaying},
		{ID: "2", SongID: "s2", Title: "Lucky", Status: model.StatusQueued},
	}, map[model.TrackStatus]int64{model.StatusPlaying: 1, model.StatusQueued: 1}, now)

	data, err := snap.Encode()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "exports", "snap.json")
	require.NoError(t, WriteFile(path, data))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, float64(2), decoded["total"])
	assert.Len(t, decoded["tracklist"], 2)
	assert.Equal(t, float64(1), decoded["counts"].(map[string]interface{})["playing"])
}

func TestNewSnapshot_EmptyTracklistEncodesAsArray(t *testing.T) {
	data, err := NewSnapshot(nil, nil, time.Now()).Encode()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"tracklist": []`)
}

func TestNewMinioStore_RequiresEndpoint(t *testing.T) {
	_, err := NewMinioStore(context.Background(), &config.Config{MinioBucket: "b"})
	assert.Error(t, err)
}
