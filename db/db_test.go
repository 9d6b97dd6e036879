package db

import (
	"context"
	"testing"
	"time"

	"jukebox/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMySQLDSN(t *testing.T) {
	cfg := &config.Config{
		DBUser: "jb", DBPassword: "pw", DBHost: "db.local", DBPort: "3307", DBName: "jukebox",
		DBConnectTimeout: 3 * time.Second,
	}
	assert.Equal(t, "jb:pw@tcp(db.local:3307)/jukebox?charset=utf8mb4&parseTime=True&loc=UTC&timeout=3s", MySQLDSN(cfg))
}

func TestConnect_UnsupportedDriver(t *testing.T) {
	_, err := Connect(&config.Config{DBDriver: "oracle"})
	assert.Error(t, err)
}

func TestConnect_SQLiteMemory(t *testing.T) {
	gdb, err := Connect(&config.Config{DBDriver: "sqlite", SQLitePath: ":memory:"})
	require.NoError(t, err)
	defer Close(gdb)

	assert.NoError(t, Ping(context.Background(), gdb))
}

func TestConnectRedis_AndCheck(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &config.Config{RedisHost: mr.Host(), RedisPort: mr.Port()}

	client, err := ConnectRedis(cfg)
	require.NoError(t, err)
	defer client.Close()

	assert.NoError(t, CheckRedis(context.Background(), client))
	assert.False(t, mr.Exists("jukebox:probe"))
}

func TestChannelSubscribers(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := ConnectRedis(&config.Config{RedisHost: mr.Host(), RedisPort: mr.Port()})
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	sub := client.Subscribe(ctx, "jukebox:test")
	defer sub.Close()
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	counts, err := ChannelSubscribers(ctx, client, "jukebox:test", "jukebox:other")
	require.NoError(t, err)
	assert.EqualValues(t, 1, counts["jukebox:test"])
	assert.EqualValues(t, 0, counts["jukebox:other"])
}
