package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreUpdateKeepsRedactedSecrets(t *testing.T) {
	path := writeTempConfig(t, sampleConfig)
	store, cfg, err := OpenStore(path)
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", cfg.Strategy.Symbol)

	next := store.Snapshot().Redacted()
	next.HalfSpread = 0.08
	applied, err := store.Update(next)
	require.NoError(t, err)
	assert.Equal(t, "foo", applied.APIKey)
	assert.Equal(t, "bar", applied.Secret)
	assert.Equal(t, 0.08, store.Snapshot().HalfSpread)
}

func TestStoreRejectsInvalidUpdate(t *testing.T) {
	store := NewStore(mustLoad(t), "")
	bad := store.Snapshot()
	bad.Depth = 0
	_, err := store.Update(bad)
	require.Error(t, err)
	assert.Equal(t, 0.0025, store.Snapshot().Depth)
}

func TestStoreSaveRoundTrip(t *testing.T) {
	path := writeTempConfig(t, sampleConfig)
	store, _, err := OpenStore(path)
	require.NoError(t, err)

	next := store.Snapshot()
	next.C1 = 0.5
	_, err = store.UpdateAndSave(next)
	require.NoError(t, err)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.5, cfg.Strategy.C1)
	assert.Equal(t, 250*time.Millisecond, cfg.Stream.BackoffInitial)
	assert.Equal(t, ":9200", cfg.Server.MetricsAddr)
}

func TestStoreSaveDoesNotPersistEnvSecrets(t *testing.T) {
	path := writeTempConfig(t, sampleConfig)
	t.Setenv("MM_API_SECRET", "from-env")
	store, _, err := OpenStore(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", store.Snapshot().Secret)

	require.NoError(t, store.Save())
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(raw), "from-env"))
	assert.True(t, strings.Contains(string(raw), "secret: bar"))
}

func TestStoreConcurrentSnapshots(t *testing.T) {
	store := NewStore(mustLoad(t), "")
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s := store.Snapshot()
				s.OrderQty = float64(i + 1)
				s.HalfSpread = float64(i + 1)
				_, _ = store.Update(s)
			}
		}(i)
	}
	for j := 0; j < 1000; j++ {
		s := store.Snapshot()
		// 一组参数总是同一次写入的结果
		if s.OrderQty != s.HalfSpread && s.OrderQty != 0.01 {
			t.Fatalf("torn snapshot %+v", s)
		}
	}
	wg.Wait()
}

func TestStoreUpdateAndSaveClassifiesErrors(t *testing.T) {
	// 目录不存在，落盘必然失败
	store := NewStore(mustLoad(t), filepath.Join(t.TempDir(), "missing", "config.yaml"))

	bad := store.Snapshot()
	bad.WindowMinutes = 0
	_, err := store.UpdateAndSave(bad)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrPersist))

	next := store.Snapshot()
	next.C1 = 0.5
	applied, err := store.UpdateAndSave(next)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPersist))
	// 内存中已生效
	assert.Equal(t, 0.5, applied.C1)
	assert.Equal(t, 0.5, store.Snapshot().C1)
}

func mustLoad(t *testing.T) AppConfig {
	t.Helper()
	cfg, err := Load(writeTempConfig(t, sampleConfig))
	require.NoError(t, err)
	return cfg
}
