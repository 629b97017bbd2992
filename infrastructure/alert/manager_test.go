package alert

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type mockChannel struct {
	name   string
	err    error
	mu     sync.Mutex
	alerts []Alert
}

func (c *mockChannel) Send(a Alert) error {
	if c.err != nil {
		return c.err
	}
	c.mu.Lock()
	c.alerts = append(c.alerts, a)
	c.mu.Unlock()
	return nil
}

func (c *mockChannel) Name() string { return c.name }

func (c *mockChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.alerts)
}

func TestSendCritical(t *testing.T) {
	ch := &mockChannel{name: "mock"}
	mgr := NewManager([]Channel{ch}, time.Minute)

	require.NoError(t, mgr.SendCritical("reconnect exhausted", map[string]interface{}{"symbol": "BTCUSDT"}))
	require.Equal(t, 1, ch.count())

	got := ch.alerts[0]
	assert.Equal(t, LevelCritical, got.Level)
	assert.Equal(t, "reconnect exhausted", got.Message)
	assert.Equal(t, "BTCUSDT", got.Fields["symbol"])
	assert.False(t, got.Timestamp.IsZero())
}

func TestNotifyQuietPeriod(t *testing.T) {
	ch := &mockChannel{name: "mock"}
	mgr := NewManager([]Channel{ch}, time.Minute)
	now := time.Unix(1700000000, 0)
	mgr.now = func() time.Time { return now }

	require.NoError(t, mgr.SendWarning("stream reconnecting", nil))
	require.NoError(t, mgr.SendWarning("stream reconnecting", nil))
	assert.Equal(t, 1, ch.count())

	// 级别不同不互相静默
	require.NoError(t, mgr.SendCritical("stream reconnecting", nil))
	assert.Equal(t, 2, ch.count())

	now = now.Add(59 * time.Second)
	require.NoError(t, mgr.SendWarning("stream reconnecting", nil))
	assert.Equal(t, 2, ch.count())

	now = now.Add(time.Second)
	require.NoError(t, mgr.SendWarning("stream reconnecting", nil))
	assert.Equal(t, 3, ch.count())
}

func TestNotifyNoQuietPeriod(t *testing.T) {
	ch := &mockChannel{name: "mock"}
	mgr := NewManager([]Channel{ch}, 0)
	for i := 0; i < 3; i++ {
		require.NoError(t, mgr.SendCritical("cancel all failed", nil))
	}
	assert.Equal(t, 3, ch.count())
}

func TestNotifyChannelFailures(t *testing.T) {
	bad := &mockChannel{name: "bad", err: errors.New("down")}
	good := &mockChannel{name: "good"}

	// 部分通道失败不算错误
	mgr := NewManager([]Channel{bad, good}, 0)
	assert.NoError(t, mgr.SendCritical("cancel failed", nil))
	assert.Equal(t, 1, good.count())

	worse := &mockChannel{name: "worse", err: errors.New("timeout")}
	only := NewManager([]Channel{bad, worse}, 0)
	err := only.SendCritical("cancel failed", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel bad failed")
	assert.Contains(t, err.Error(), "channel worse failed")
}

func TestLogChannel(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	ch := NewLogChannel("log", zap.New(core))

	require.NoError(t, ch.Send(Alert{Level: LevelWarning, Message: "stream reconnecting", Fields: map[string]interface{}{"attempt": 2}}))
	require.NoError(t, ch.Send(Alert{Level: LevelCritical, Message: "cancel on exit failed"}))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "alert", entries[0].LoggerName)
	assert.EqualValues(t, 2, entries[0].ContextMap()["attempt"])
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, "log", ch.Name())
}

func TestWebhookChannel(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	ch := NewWebhookChannel(srv.URL, time.Second)
	require.NoError(t, ch.Send(Alert{Level: LevelCritical, Message: "reconnect exhausted", Fields: map[string]interface{}{"attempts": 20}}))
	assert.Equal(t, "CRITICAL", got["level"])
	assert.Equal(t, "reconnect exhausted", got["message"])
	assert.Equal(t, "[CRITICAL] reconnect exhausted", got["content"])
	assert.Equal(t, "webhook", ch.Name())
}

func TestWebhookChannelStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewWebhookChannel(srv.URL, time.Second).Send(Alert{Level: LevelWarning, Message: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}
