package alert

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// 告警级别：WARNING 为可自愈事件（行情重连），CRITICAL 需要人工介入（撤单失败、重连耗尽）
const (
	LevelWarning  = "WARNING"
	LevelCritical = "CRITICAL"
)

// Alert 一条运维告警
type Alert struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Timestamp time.Time              `json:"timestamp"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

func (a Alert) key() string {
	return a.Level + "|" + a.Message
}

// Channel 告警出口
type Channel interface {
	Send(alert Alert) error
	Name() string
}

// Manager 把告警扇出到固定的通道集合。
// 同一 级别+消息 在 quiet 时间内只投递一次，行情抖动时不会刷屏。
type Manager struct {
	channels []Channel
	quiet    time.Duration
	now      func() time.Time

	mu   sync.Mutex
	seen map[string]time.Time
}

// NewManager 创建告警管理器；quiet ≤ 0 表示不限流
func NewManager(channels []Channel, quiet time.Duration) *Manager {
	return &Manager{
		channels: channels,
		quiet:    quiet,
		now:      time.Now,
		seen:     make(map[string]time.Time),
	}
}

// suppressed 判断是否处于静默期，未静默时记录本次投递时间
func (m *Manager) suppressed(a Alert) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if last, ok := m.seen[a.key()]; ok && a.Timestamp.Sub(last) < m.quiet {
		return true
	}
	m.seen[a.key()] = a.Timestamp
	return false
}

// Notify 投递告警。至少一个通道成功即视为送达，否则返回所有通道的错误
func (m *Manager) Notify(a Alert) error {
	if a.Timestamp.IsZero() {
		a.Timestamp = m.now()
	}
	if m.suppressed(a) {
		return nil
	}

	var errs []error
	for _, ch := range m.channels {
		if err := ch.Send(a); err != nil {
			errs = append(errs, fmt.Errorf("channel %s failed: %w", ch.Name(), err))
		}
	}
	if len(errs) == len(m.channels) {
		return errors.Join(errs...)
	}
	return nil
}

// SendWarning 行情重连等可自愈事件
func (m *Manager) SendWarning(message string, fields map[string]interface{}) error {
	return m.Notify(Alert{Level: LevelWarning, Message: message, Fields: fields})
}

// SendCritical 需要人工处理的事件
func (m *Manager) SendCritical(message string, fields map[string]interface{}) error {
	return m.Notify(Alert{Level: LevelCritical, Message: message, Fields: fields})
}
