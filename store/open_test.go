package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/gamify-engine/config"
	"github.com/warp/gamify-engine/game"
	"github.com/warp/gamify-engine/store"
)

func TestOpen_SQLiteCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "game.db")
	backend, release, err := store.Open(context.Background(), config.ServerConfig{DBDriver: config.DriverSQLite, SQLitePath: path})
	require.NoError(t, err)
	t.Cleanup(release)

	cfg, err := backend.CurrentConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, game.DefaultConfig(), cfg)
	assert.FileExists(t, path)
}

func TestOpen_Memory(t *testing.T) {
	backend, release, err := store.Open(context.Background(), config.ServerConfig{DBDriver: config.DriverMemory})
	require.NoError(t, err)
	t.Cleanup(release)
	require.NoError(t, backend.SaveItem(context.Background(), game.ShopItem{ID: "a", Name: "A", Active: true}))
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, _, err := store.Open(context.Background(), config.ServerConfig{DBDriver: "mongo"})
	assert.Error(t, err)
}
