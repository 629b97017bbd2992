package container

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"obi-market-maker/config"
	"obi-market-maker/gateway"
	"obi-market-maker/infrastructure/alert"
	"obi-market-maker/infrastructure/logger"
	"obi-market-maker/infrastructure/monitor"
	"obi-market-maker/internal/engine"
	"obi-market-maker/internal/server"
	"obi-market-maker/market"
	"obi-market-maker/order"
)

// Options 命令行层面的覆盖项
type Options struct {
	// DryRun 强制使用模拟网关，即使配置里 dry_run 为 false
	DryRun bool
	// ReloadDebounce 配置文件变更的合并窗口
	ReloadDebounce time.Duration
}

// Container 依赖注入容器，管理所有组件的生命周期
type Container struct {
	// 配置
	cfg   config.AppConfig
	store *config.Store
	opts  Options

	// 基础设施
	logger  *logger.Logger
	monitor *monitor.Monitor
	alerts  *alert.Manager

	// 交易所网关
	restClient *gateway.BinanceRESTClient
	gateway    order.Gateway
	stream     market.Stream

	// 核心服务
	controller *engine.Controller
	api        *server.Server
	watcher    *config.Watcher

	// HTTP服务器
	metricsServer *http.Server

	// 生命周期管理
	lifecycle *LifecycleManager
}

// New 读取配置文件（含环境变量覆盖）并创建容器
func New(configPath string, opts Options) (*Container, error) {
	store, cfg, err := config.OpenStore(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	return NewWithStore(store, cfg, opts), nil
}

// NewWithStore 使用已有的参数存储创建容器
func NewWithStore(store *config.Store, cfg config.AppConfig, opts Options) *Container {
	if opts.ReloadDebounce <= 0 {
		opts.ReloadDebounce = 200 * time.Millisecond
	}
	return &Container{
		cfg:       cfg,
		store:     store,
		opts:      opts,
		lifecycle: NewLifecycleManager(),
	}
}

// Build 构建所有组件
func (c *Container) Build() error {
	if err := c.buildInfrastructure(); err != nil {
		return fmt.Errorf("build infrastructure failed: %w", err)
	}

	if err := c.buildGateway(); err != nil {
		return fmt.Errorf("build gateway failed: %w", err)
	}

	if err := c.buildCoreServices(); err != nil {
		return fmt.Errorf("build core services failed: %w", err)
	}

	c.registerLifecycleComponents()
	c.logger.Info("container built successfully",
		zap.String("symbol", c.cfg.Strategy.Symbol),
		zap.Bool("dry_run", c.dryRun()),
		zap.Bool("sandbox", c.cfg.Strategy.SandboxMode))
	return nil
}

func (c *Container) buildInfrastructure() error {
	if c.logger == nil {
		var err error
		c.logger, err = logger.New(c.cfg.Log)
		if err != nil {
			return fmt.Errorf("create logger failed: %w", err)
		}
	}
	if c.monitor == nil {
		c.monitor = monitor.New(monitor.DefaultConfig())
	}
	channels := []alert.Channel{alert.NewLogChannel("log", c.logger.Logger)}
	if c.cfg.Alert.WebhookURL != "" {
		channels = append(channels, alert.NewWebhookChannel(c.cfg.Alert.WebhookURL, c.cfg.Gateway.Timeout))
	}
	c.alerts = alert.NewManager(channels, c.cfg.Alert.Throttle)
	c.logger.Info("infrastructure built")
	return nil
}

func (c *Container) dryRun() bool {
	return c.opts.DryRun || c.cfg.Strategy.DryRun
}

func (c *Container) buildGateway() error {
	gw := c.cfg.Gateway
	strat := c.cfg.Strategy

	restOverride, wsOverride := gw.RESTURL, gw.WSURL
	if strat.SandboxMode {
		restOverride, wsOverride = gw.TestnetRESTURL, gw.TestnetWSURL
	}
	ep := gateway.ResolveEndpoints(strat.SandboxMode, restOverride, wsOverride)

	c.restClient = &gateway.BinanceRESTClient{
		BaseURL:      ep.REST,
		APIKey:       strat.APIKey,
		Secret:       strat.Secret,
		HTTPClient:   &http.Client{Timeout: gw.Timeout},
		RecvWindowMs: gw.RecvWindowMs,
		Limiter:      gateway.NewTokenBucketLimiter(gw.Rate, gw.Burst),
	}
	live := gateway.NewBinanceGateway(c.restClient)

	var inner order.Gateway = live
	if c.dryRun() {
		// 下单走内存，精度仍取交易所公开接口
		inner = gateway.NewPaperGateway(market.Metadata{}).WithMetadataSource(live)
	}
	c.gateway = gateway.NewInstrumented(inner, c.monitor)
	stream := gateway.NewDepthStream(ep.WS)
	stream.Logger = c.logger.Named("depth")
	c.stream = stream

	c.logger.Info("gateway built",
		zap.String("rest", ep.REST),
		zap.String("ws", ep.WS),
		zap.Float64("rate", gw.Rate),
		zap.Int("burst", gw.Burst))
	return nil
}

func (c *Container) buildCoreServices() error {
	var err error
	c.controller, err = engine.New(engine.Config{
		Backoff: engine.Backoff{
			Initial:     c.cfg.Stream.BackoffInitial,
			Max:         c.cfg.Stream.BackoffMax,
			Multiplier:  c.cfg.Stream.BackoffMultiplier,
			MaxAttempts: c.cfg.Stream.MaxAttempts,
		},
	}, engine.Components{
		Stream:  c.stream,
		Gateway: c.gateway,
		Params:  c.store,
		Logger:  c.logger,
		Metrics: c.monitor,
		Alerts:  c.alerts,
	})
	if err != nil {
		return fmt.Errorf("create controller failed: %w", err)
	}

	if c.cfg.Server.APIAddr != "" {
		c.api = server.New(c.cfg.Server.APIAddr, c.cfg.Server.APIToken, c.store, c.controller, c.monitor, c.logger)
	}

	if c.store.Path() != "" {
		c.watcher = config.NewWatcher(c.store, c.opts.ReloadDebounce, c.logger.Logger)
		c.watcher.OnReload(func(config.StrategyConfig) {
			c.monitor.RecordConfigReload()
		})
	}

	c.logger.Info("core services built")
	return nil
}

func (c *Container) registerLifecycleComponents() {
	if c.monitor != nil && c.cfg.Server.MetricsAddr != "" {
		c.lifecycle.Register(&httpServerComponent{
			name:    "metrics_server",
			handler: c.monitor.Handler(),
			addr:    c.cfg.Server.MetricsAddr,
			logger:  c.logger,
			server:  &c.metricsServer,
		})
	}
	if c.controller != nil {
		c.lifecycle.Register(&streamHealth{source: c.controller})
	}
}

// Init 拉取交易对元数据并初始化信号与报价引擎，元数据非法时返回错误
func (c *Container) Init(ctx context.Context) error {
	return c.controller.Init(ctx)
}

// Run 启动所有组件并阻塞，直到 ctx 取消或某个组件失败
func (c *Container) Run(ctx context.Context) error {
	c.logger.Info("starting container...")

	if err := c.lifecycle.StartAll(ctx); err != nil {
		return fmt.Errorf("start failed: %w", err)
	}
	defer c.stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.controller.Run(gctx)
	})
	if c.api != nil {
		g.Go(func() error {
			return c.api.Run(gctx)
		})
	}
	if c.watcher != nil {
		g.Go(func() error {
			return c.watcher.Start(gctx)
		})
	}

	c.logger.Info("container started")
	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		c.logger.LogError(err, map[string]interface{}{"action": "run"})
		return err
	}
	return nil
}

// stop 逆序停止生命周期组件；退出撤单由控制器完成
func (c *Container) stop() {
	c.logger.Info("stopping container...")
	if err := c.lifecycle.StopAll(); err != nil {
		c.logger.LogError(err, map[string]interface{}{"action": "stop"})
	}
	st := c.controller.Stats()
	c.logger.Info("container stopped",
		zap.Int64("ticks", st.TotalTicks),
		zap.Int64("failed_ticks", st.FailedTicks),
		zap.Int64("orders", st.TotalOrders),
		zap.Int64("reconnects", st.Reconnects))
	_ = c.logger.Close()
}

// HealthCheck 检查所有组件健康状态
func (c *Container) HealthCheck() error {
	return c.lifecycle.CheckHealth()
}

// Logger 返回容器日志器
func (c *Container) Logger() *logger.Logger {
	return c.logger
}

// Controller 返回策略控制器
func (c *Container) Controller() *engine.Controller {
	return c.controller
}
