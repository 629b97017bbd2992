package config

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := writeTempConfig(t, sampleConfig)
	store, _, err := OpenStore(path)
	require.NoError(t, err)

	w := NewWatcher(store, 20*time.Millisecond, nil)
	reloaded := make(chan StrategyConfig, 4)
	w.OnReload(func(s StrategyConfig) { reloaded <- s })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()
	defer func() {
		cancel()
		assert.NoError(t, <-done)
	}()

	// 等 watcher 就绪后再改文件
	time.Sleep(50 * time.Millisecond)
	updated := strings.Replace(sampleConfig, "c1: 0.12", "c1: 0.33", 1)
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	select {
	case s := <-reloaded:
		assert.Equal(t, 0.33, s.C1)
		assert.Equal(t, 0.33, store.Snapshot().C1)
	case <-time.After(2 * time.Second):
		t.Fatal("expected reload")
	}
}

func TestWatcherRejectsInvalidFile(t *testing.T) {
	path := writeTempConfig(t, sampleConfig)
	store, _, err := OpenStore(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(strings.Replace(sampleConfig, "depth: 0.0025", "depth: 0", 1)), 0o644))
	_, err = store.Reload()
	require.Error(t, err)
	assert.Equal(t, 0.0025, store.Snapshot().Depth)
}
