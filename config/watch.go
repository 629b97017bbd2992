package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher 监听配置文件变化并重新加载到 Store。
// 监听的是所在目录：编辑器和 Store.Save 都是 rename 覆盖，直接监听文件会丢失 watch。
type Watcher struct {
	store    *Store
	debounce time.Duration
	logger   *zap.Logger

	onReload func(StrategyConfig)
}

// NewWatcher debounce 内的连续写入只触发一次加载。
func NewWatcher(store *Store, debounce time.Duration, logger *zap.Logger) *Watcher {
	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{store: store, debounce: debounce, logger: logger}
}

// OnReload 设置加载成功后的回调。
func (w *Watcher) OnReload(fn func(StrategyConfig)) {
	w.onReload = fn
}

// Start 阻塞直到 ctx 取消。
func (w *Watcher) Start(ctx context.Context) error {
	path := w.store.Path()
	if path == "" {
		<-ctx.Done()
		return nil
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch config dir: %w", err)
	}

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			// 只处理写入和创建（rename 覆盖表现为 Create）
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				timer.Reset(w.debounce)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("config watcher error", zap.Error(err))
		case <-timer.C:
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	applied, err := w.store.Reload()
	if err != nil {
		w.logger.Warn("config reload rejected", zap.String("path", w.store.Path()), zap.Error(err))
		return
	}
	w.logger.Info("config reloaded",
		zap.String("symbol", applied.Symbol),
		zap.Float64("order_qty", applied.OrderQty),
		zap.Float64("half_spread", applied.HalfSpread),
	)
	if w.onReload != nil {
		w.onReload(applied)
	}
}
