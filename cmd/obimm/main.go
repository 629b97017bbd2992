// obimm 订单簿失衡做市主程序：加载配置，装配容器，运行到收到退出信号。
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"obi-market-maker/internal/container"
	"obi-market-maker/strategy"
)

const (
	exitOK          = 0
	exitFailure     = 1
	exitInvalidMeta = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	cfgPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	envFile := flag.String("env", ".env", "环境变量文件，不存在时忽略")
	dryRun := flag.Bool("dryRun", false, "使用模拟网关，不真正下单")
	debounce := flag.Duration("reloadDebounce", 200*time.Millisecond, "配置文件变更合并窗口")
	flag.Parse()

	// 密钥可以放在 .env 中
	_ = godotenv.Load(*envFile)

	c, err := container.New(*cfgPath, container.Options{DryRun: *dryRun, ReloadDebounce: *debounce})
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化失败: %v\n", err)
		return exitFailure
	}
	if err := c.Build(); err != nil {
		fmt.Fprintf(os.Stderr, "构建组件失败: %v\n", err)
		return exitFailure
	}
	log := c.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := c.Init(ctx); err != nil {
		log.Error("init failed", zap.Error(err))
		_ = log.Close()
		if errors.Is(err, strategy.ErrInvalidMarketMetadata) {
			return exitInvalidMeta
		}
		return exitFailure
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	go watchdog(ctx, c)

	err = c.Run(ctx)
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err != nil {
		fmt.Fprintf(os.Stderr, "运行失败: %v\n", err)
		return exitFailure
	}
	return exitOK
}

// watchdog 在 systemd 配置了 WatchdogSec 时定期上报健康状态
func watchdog(ctx context.Context, c *container.Container) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.HealthCheck(); err != nil {
				c.Logger().Warn("health check failed", zap.Error(err))
				continue
			}
			_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
		}
	}
}
