// Package server 提供策略参数的 HTTP 配置接口与健康检查。
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"obi-market-maker/config"
	"obi-market-maker/infrastructure/logger"
	"obi-market-maker/internal/engine"
)

// ConfigStore GET/PUT /config 依赖的参数存储，config.Store 实现该接口。
type ConfigStore interface {
	Snapshot() config.StrategyConfig
	UpdateAndSave(next config.StrategyConfig) (config.StrategyConfig, error)
}

// HealthSource 行情流状态来源，engine.Controller 实现该接口。
type HealthSource interface {
	State() engine.StreamState
	Stats() engine.Statistics
}

// Reloads 参数更新计数，可为空。
type Reloads interface {
	RecordConfigReload()
}

// Server 配置 API 服务器。
type Server struct {
	store   ConfigStore
	health  HealthSource
	reloads Reloads
	token   string
	logger  *logger.Logger

	httpServer *http.Server
}

// New 注册路由。health 为空时 /healthz 只返回进程存活。
func New(addr, token string, store ConfigStore, health HealthSource, reloads Reloads, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	s := &Server{store: store, health: health, reloads: reloads, token: token, logger: log}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /config", s.getConfig)
	mux.Handle("PUT /config", s.auth(http.HandlerFunc(s.putConfig)))
	mux.HandleFunc("GET /healthz", s.healthz)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.logging(mux),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler 返回带中间件的路由，测试用。
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run 监听直到 ctx 取消，然后优雅关闭。
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("config api listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve 在给定 listener 上服务直到 ctx 取消。
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("config api listening", zap.String("addr", ln.Addr().String()))
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("config api serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("config api shutdown: %w", err)
	}
	s.logger.Info("config api stopped")
	return nil
}

func (s *Server) getConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Snapshot().Redacted())
}

func (s *Server) putConfig(w http.ResponseWriter, r *http.Request) {
	var next config.StrategyConfig
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&next); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}

	applied, err := s.store.UpdateAndSave(next)
	if err != nil {
		// 落盘失败时内存中的参数已经生效
		if errors.Is(err, config.ErrPersist) {
			s.logger.Error("persist config failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if s.reloads != nil {
		s.reloads.RecordConfigReload()
	}
	s.logger.Info("config updated via api",
		zap.String("symbol", applied.Symbol),
		zap.Float64("order_qty", applied.OrderQty),
		zap.Float64("c1", applied.C1),
		zap.Float64("half_spread", applied.HalfSpread),
		zap.Float64("skew", applied.Skew),
		zap.Float64("depth", applied.Depth),
		zap.Float64("window_minutes", applied.WindowMinutes))
	writeJSON(w, http.StatusOK, applied.Redacted())
}

type healthResponse struct {
	Status     string    `json:"status"`
	State      string    `json:"state"`
	Ticks      int64     `json:"ticks"`
	Reconnects int64     `json:"reconnects"`
	LastTick   time.Time `json:"last_tick,omitempty"`
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
		return
	}
	state := s.health.State()
	stats := s.health.Stats()
	resp := healthResponse{
		Status:     "ok",
		State:      state.String(),
		Ticks:      stats.TotalTicks,
		Reconnects: stats.Reconnects,
		LastTick:   stats.LastTickTime,
	}
	code := http.StatusOK
	if state != engine.StateStreaming {
		resp.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

// auth 校验 Bearer token 或 X-API-Key；未配置 token 时放行。
func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" {
			next.ServeHTTP(w, r)
			return
		}
		token := ""
		if h := r.Header.Get("Authorization"); h != "" {
			if scheme, v, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") {
				token = strings.TrimSpace(v)
			}
		}
		if token == "" {
			token = strings.TrimSpace(r.Header.Get("X-API-Key"))
		}
		if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.token)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rw.status),
			zap.Duration("duration", time.Since(start)),
			zap.String("remote_addr", r.RemoteAddr))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
