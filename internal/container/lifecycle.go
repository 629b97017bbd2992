package container

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"obi-market-maker/infrastructure/logger"
	"obi-market-maker/internal/engine"
)

// Lifecycle 由容器统一启停的组件；控制器、配置接口与监听器走 errgroup，不在此列
type Lifecycle interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	Health() error
}

// LifecycleManager 按注册顺序启动、逆序停止
type LifecycleManager struct {
	mu         sync.RWMutex
	components []Lifecycle
	running    int // 已成功启动的前缀长度
}

// NewLifecycleManager 创建生命周期管理器
func NewLifecycleManager() *LifecycleManager {
	return &LifecycleManager{}
}

// Register 注册组件，须在 StartAll 之前调用
func (m *LifecycleManager) Register(component Lifecycle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components = append(m.components, component)
}

// StartAll 依次启动；任一失败时逆序停止已启动的组件并返回启动错误
func (m *LifecycleManager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.components[m.running:] {
		if err := c.Start(ctx); err != nil {
			startErr := fmt.Errorf("start %s: %w", c.Name(), err)
			return errors.Join(startErr, m.stopRunning())
		}
		m.running++
	}
	return nil
}

// StopAll 逆序停止已启动的组件，汇总所有停止错误
func (m *LifecycleManager) StopAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopRunning()
}

func (m *LifecycleManager) stopRunning() error {
	var errs []error
	for ; m.running > 0; m.running-- {
		c := m.components[m.running-1]
		if err := c.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", c.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// CheckHealth 返回所有不健康组件的错误
func (m *LifecycleManager) CheckHealth() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var errs []error
	for _, c := range m.components {
		if err := c.Health(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// httpServerComponent HTTP服务器组件
type httpServerComponent struct {
	name    string
	handler http.Handler
	addr    string
	logger  *logger.Logger
	server  **http.Server
	bound   string // 实际监听地址
	started bool
	mu      sync.Mutex
}

func (h *httpServerComponent) Name() string { return h.name }

func (h *httpServerComponent) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.started {
		return nil
	}

	// 先监听，端口被占用时直接返回错误
	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("%s listen: %w", h.name, err)
	}
	srv := &http.Server{
		Addr:              h.addr,
		Handler:           h.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	*h.server = srv
	h.bound = ln.Addr().String()

	go func() {
		h.logger.Info("http server listening", zap.String("component", h.name), zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.LogError(err, map[string]interface{}{
				"component": h.name,
				"action":    "serve",
			})
		}
	}()

	h.started = true
	return nil
}

func (h *httpServerComponent) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.started || *h.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := (*h.server).Shutdown(ctx); err != nil {
		return fmt.Errorf("%s shutdown failed: %w", h.name, err)
	}

	h.logger.Info("http server stopped", zap.String("component", h.name))
	h.started = false
	return nil
}

func (h *httpServerComponent) Health() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.started {
		return fmt.Errorf("%s not started", h.name)
	}
	return nil
}

// stateSource 行情流状态，engine.Controller 实现
type stateSource interface {
	State() engine.StreamState
}

// streamHealth 把行情流状态接入健康检查；Start/Stop 由 Run 中的控制器负责
type streamHealth struct {
	source stateSource
}

func (s *streamHealth) Name() string                { return "market_stream" }
func (s *streamHealth) Start(context.Context) error { return nil }
func (s *streamHealth) Stop() error                 { return nil }

func (s *streamHealth) Health() error {
	if st := s.source.State(); st == engine.StateClosed {
		return fmt.Errorf("market stream %s", st)
	}
	return nil
}
