package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"obi-market-maker/alpha"
	"obi-market-maker/config"
	"obi-market-maker/infrastructure/logger"
	"obi-market-maker/market"
	"obi-market-maker/order"
	"obi-market-maker/strategy"
)

// Metrics 控制器上报的指标，monitor.Monitor 实现该接口。
type Metrics interface {
	RecordTick(seconds float64)
	RecordTickError(stage string)
	UpdateSignal(raw, signal, std float64, samples int)
	UpdateQuote(mid, fair, bid, ask float64)
	UpdatePosition(value float64)
	RecordAction(kind string)
	RecordOrdersPlaced(n int)
	UpdateStreamState(state int)
	RecordWSConnection()
	RecordWSDisconnect()
}

// Alerter 运维告警，alert.Manager 实现该接口。
type Alerter interface {
	SendWarning(message string, fields map[string]interface{}) error
	SendCritical(message string, fields map[string]interface{}) error
}

// Components 控制器依赖组件
type Components struct {
	Stream  market.Stream
	Gateway order.Gateway
	Params  ParamSource
	Logger  *logger.Logger
	Metrics Metrics // 可为空
	Alerts  Alerter // 可为空
}

// Config 控制器配置
type Config struct {
	Backoff Backoff
	// ShutdownTimeout 退出时撤单的超时
	ShutdownTimeout time.Duration
}

// Statistics 运行统计
type Statistics struct {
	StartTime    time.Time
	TotalTicks   int64
	SkippedTicks int64
	FailedTicks  int64
	StaleTicks   int64
	TotalActions int64
	TotalOrders  int64
	Reconnects   int64
	LastTickTime time.Time
}

// Controller 驱动 信号 → 报价 → 对账 → 下发 的逐 tick 流水线，并管理行情流重连。
type Controller struct {
	cfg     Config
	stream  market.Stream
	gateway order.Gateway
	source  ParamSource
	logger  *logger.Logger
	metrics Metrics
	alerts  Alerter

	// 以下字段只由 Run 所在协程访问
	symbol string
	params config.StrategyConfig // 上一轮使用的参数快照
	signal *alpha.Engine
	quoter *strategy.Quoter

	state atomic.Int32

	statsMu sync.RWMutex
	stats   Statistics
}

// New 创建控制器，需先 Init 再 Run。
func New(cfg Config, comp Components) (*Controller, error) {
	if comp.Stream == nil {
		return nil, errors.New("stream is required")
	}
	if comp.Gateway == nil {
		return nil, errors.New("gateway is required")
	}
	if comp.Params == nil {
		return nil, errors.New("params source is required")
	}
	if comp.Logger == nil {
		comp.Logger = logger.Nop()
	}
	if comp.Metrics == nil {
		comp.Metrics = nopMetrics{}
	}
	if cfg.Backoff.Initial <= 0 {
		cfg.Backoff = DefaultBackoff()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	c := &Controller{
		cfg:     cfg,
		stream:  comp.Stream,
		gateway: comp.Gateway,
		source:  comp.Params,
		logger:  comp.Logger,
		metrics: comp.Metrics,
		alerts:  comp.Alerts,
	}
	c.state.Store(int32(StateIdle))
	return c, nil
}

// Init 读取参数快照、拉取交易对元数据并构建信号与报价组件。
// tickSize 非法时返回 strategy.ErrInvalidMarketMetadata，调用方应直接退出。
func (c *Controller) Init(ctx context.Context) error {
	params := c.source.Snapshot()
	meta, err := c.gateway.MarketMetadata(ctx, params.Symbol)
	if err != nil {
		return fmt.Errorf("load market metadata: %w", err)
	}
	quoter, err := strategy.NewQuoter(meta, params.Params())
	if err != nil {
		return err
	}
	signal, err := alpha.NewEngine(alpha.Config{Depth: params.Depth, Window: params.Window()})
	if err != nil {
		return fmt.Errorf("init signal engine: %w", err)
	}
	c.symbol = params.Symbol
	c.params = params
	c.quoter = quoter
	c.signal = signal
	c.logger.Info("controller initialized",
		zap.String("symbol", c.symbol),
		zap.Float64("tick_size", meta.TickSize),
		zap.Int32("price_precision", meta.PricePrecision),
		zap.Float64("depth", params.Depth),
		zap.Duration("window", params.Window()),
		zap.Bool("dry_run", params.DryRun))
	return nil
}

// State 当前行情流状态，可并发调用。
func (c *Controller) State() StreamState {
	return StreamState(c.state.Load())
}

// Stats 返回统计快照。
func (c *Controller) Stats() Statistics {
	c.statsMu.RLock()
	defer c.statsMu.RUnlock()
	return c.stats
}

func (c *Controller) alert(critical bool, msg string, fields map[string]interface{}) {
	if c.alerts == nil {
		return
	}
	if fields == nil {
		fields = map[string]interface{}{}
	}
	fields["symbol"] = c.symbol
	send := c.alerts.SendWarning
	if critical {
		send = c.alerts.SendCritical
	}
	if err := send(msg, fields); err != nil {
		c.logger.Warn("send alert failed", zap.String("alert", msg), zap.Error(err))
	}
}

func (c *Controller) setState(next StreamState, fields ...zap.Field) {
	prev := StreamState(c.state.Swap(int32(next)))
	c.metrics.UpdateStreamState(int(next))
	if prev != next {
		c.logger.With(fields...).LogStream(prev.String(), next.String(), nil)
	}
}

// Run 订阅行情并逐 tick 处理，直到 ctx 取消或重连次数耗尽。
// ctx 取消时正常返回 nil；重连耗尽返回 ErrReconnectExhausted。
func (c *Controller) Run(ctx context.Context) error {
	if c.quoter == nil {
		if err := c.Init(ctx); err != nil {
			c.setState(StateClosed)
			return err
		}
	}
	c.statsMu.Lock()
	c.stats.StartTime = time.Now()
	c.statsMu.Unlock()

	runErr := c.loop(ctx)
	c.shutdown(ctx)
	c.setState(StateClosed)
	if runErr != nil && ctx.Err() == nil {
		return runErr
	}
	return nil
}

func (c *Controller) loop(ctx context.Context) error {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return nil
		}
		sub, err := c.stream.Subscribe(ctx, c.symbol, c.params.Limit)
		if err == nil {
			c.metrics.RecordWSConnection()
			c.setState(StateStreaming, zap.String("symbol", c.symbol), zap.Int("limit", c.params.Limit))
			err = c.consume(ctx, sub, &attempt)
			_ = sub.Close()
			if ctx.Err() != nil {
				return nil
			}
			c.metrics.RecordWSDisconnect()
		}
		if ctx.Err() != nil {
			return nil
		}

		attempt++
		if c.cfg.Backoff.Exhausted(attempt) {
			c.logger.Error("stream reconnect exhausted", zap.Int("attempts", attempt-1), zap.Error(err))
			c.alert(true, "market stream reconnect exhausted", map[string]interface{}{"attempts": attempt - 1})
			if err == nil {
				return ErrReconnectExhausted
			}
			return fmt.Errorf("%w: %w", ErrReconnectExhausted, err)
		}
		delay := c.cfg.Backoff.Delay(attempt)
		c.setState(StateReconnecting, zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(err))
		if attempt == 1 {
			c.alert(false, "market stream reconnecting", map[string]interface{}{"error": fmt.Sprint(err)})
		}
		c.statsMu.Lock()
		c.stats.Reconnects++
		c.statsMu.Unlock()

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// consume 顺序处理快照：上一轮下发完成前不会读取下一份快照。
func (c *Controller) consume(ctx context.Context, sub market.Subscription, attempt *int) error {
	for {
		snap, err := sub.Next(ctx)
		if err != nil {
			return err
		}
		*attempt = 0
		// 进行中的 tick 不随 ctx 取消中断，由网关自身超时兜底
		c.Tick(context.WithoutCancel(ctx), snap)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// Tick 处理一份快照。单轮失败只记录日志与指标，不影响行情流状态。
func (c *Controller) Tick(ctx context.Context, snap market.BookSnapshot) TickOutcome {
	start := time.Now()
	raw := RawTick{Snapshot: snap, Params: c.source.Snapshot(), Received: start}
	c.applyParams(raw.Params)

	out := c.run(ctx, raw)

	latency := time.Since(start)
	c.metrics.RecordTick(latency.Seconds())
	c.statsMu.Lock()
	c.stats.TotalTicks++
	c.stats.LastTickTime = start
	c.stats.TotalActions += int64(out.Actions)
	c.stats.TotalOrders += int64(out.Created)
	switch {
	case errors.Is(out.Err, market.ErrInsufficientDepth):
		c.stats.SkippedTicks++
	case !out.OK():
		c.stats.FailedTicks++
	case out.Err != nil:
		c.stats.StaleTicks++
	}
	c.statsMu.Unlock()
	return out
}

func (c *Controller) run(ctx context.Context, raw RawTick) TickOutcome {
	log := c.logger.With(zap.String("symbol", c.symbol), zap.Int64("tick_ts", raw.Snapshot.Timestamp))

	obs, err := c.signal.Observe(raw.Snapshot)
	if err != nil {
		return c.fail(log, StageSignal, err)
	}
	c.metrics.UpdateSignal(obs.Raw, obs.Signal, obs.Std, obs.Samples)

	inv, err := c.gateway.Inventory(ctx, c.symbol)
	if err != nil {
		return c.fail(log, StageInventory, err)
	}
	c.metrics.UpdatePosition(inv)

	target, err := c.quoter.Quote(raw.Snapshot, obs.Signal, inv)
	if err != nil {
		return c.fail(log, StageQuote, err)
	}
	c.metrics.UpdateQuote(target.Mid, target.FairPrice, target.BidPrice, target.AskPrice)
	priced := PricedTick{RawTick: raw, Observation: obs, Inventory: inv, Target: target}

	rec := ReconciledTick{PricedTick: priced}
	var staleErr error
	rec.Resting, err = c.gateway.RestingOrders(ctx, c.symbol)
	if err != nil {
		staleErr = fmt.Errorf("%w: %w", order.ErrStaleResolution, err)
		rec.Stale = true
		rec.Resting = nil
		c.metrics.RecordTickError(string(StageResolve))
		log.Warn("resting orders unresolved, reconciling against empty set", zap.Error(err))
	}
	rec.Actions = order.Reconcile(c.symbol, target, rec.Resting)

	created, err := c.dispatch(ctx, rec.Actions)
	if err != nil {
		out := c.fail(log, StageDispatch, err)
		out.Actions = len(rec.Actions)
		out.Created = created
		return out
	}

	if len(rec.Actions) > 0 {
		c.logger.LogTick(logger.TickEvent{
			Symbol:    c.symbol,
			Timestamp: raw.Snapshot.Timestamp,
			Mid:       target.Mid,
			Raw:       obs.Raw,
			Signal:    obs.Signal,
			Inventory: inv,
			Bid:       target.BidPrice,
			Ask:       target.AskPrice,
			BuyQty:    target.BuyQty,
			SellQty:   target.SellQty,
			Actions:   len(rec.Actions),
			Latency:   time.Since(raw.Received),
		})
	} else {
		log.Debug("quotes in place",
			zap.Int64("bid_tick", target.BidTick),
			zap.Int64("ask_tick", target.AskTick),
			zap.Float64("signal", obs.Signal))
	}
	return TickOutcome{Stage: StageDone, Err: staleErr, Actions: len(rec.Actions), Created: created}
}

// dispatch 先撤后下；撤单失败则本轮不再下单，避免新旧订单叠加。
func (c *Controller) dispatch(ctx context.Context, actions []order.Action) (int, error) {
	if len(actions) == 0 {
		return 0, nil
	}
	for _, a := range actions {
		c.metrics.RecordAction(actionKind(a))
	}
	cancel, reqs := order.Plan(c.symbol, actions)
	if cancel {
		if err := c.gateway.CancelAll(ctx, c.symbol); err != nil {
			// 旧挂单状态未知
			c.alert(true, "cancel all failed", map[string]interface{}{"error": err.Error()})
			return 0, fmt.Errorf("cancel all: %w", err)
		}
	}
	if len(reqs) == 0 {
		return 0, nil
	}
	ids, err := c.gateway.CreateOrders(ctx, reqs)
	c.metrics.RecordOrdersPlaced(len(ids))
	for i, id := range ids {
		if i < len(reqs) {
			c.logger.LogOrder("placed", id, map[string]interface{}{
				"side":      string(reqs[i].Side),
				"price":     reqs[i].Price,
				"qty":       reqs[i].Qty,
				"client_id": reqs[i].ClientID,
			})
		}
	}
	if err != nil {
		return len(ids), fmt.Errorf("create orders: %w", err)
	}
	return len(ids), nil
}

func (c *Controller) fail(log *logger.Logger, stage Stage, err error) TickOutcome {
	c.metrics.RecordTickError(string(stage))
	if errors.Is(err, market.ErrInsufficientDepth) {
		log.Warn("tick skipped", zap.String("stage", string(stage)), zap.Error(err))
	} else {
		log.Error("tick failed", zap.String("stage", string(stage)), zap.Error(err))
	}
	return TickOutcome{Stage: stage, Err: err}
}

// shutdown 按配置在退出时撤掉全部挂单。
func (c *Controller) shutdown(ctx context.Context) {
	if c.quoter == nil || !c.source.Snapshot().ShouldCancelOnExit() {
		return
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.ShutdownTimeout)
	defer cancel()
	if err := c.gateway.CancelAll(cctx, c.symbol); err != nil {
		c.logger.Error("cancel on exit failed", zap.String("symbol", c.symbol), zap.Error(err))
		c.alert(true, "cancel on exit failed", map[string]interface{}{"error": err.Error()})
		return
	}
	c.logger.Info("resting orders cancelled on exit", zap.String("symbol", c.symbol))
}

type nopMetrics struct{}

func (nopMetrics) RecordTick(float64)                             {}
func (nopMetrics) RecordTickError(string)                         {}
func (nopMetrics) UpdateSignal(float64, float64, float64, int)    {}
func (nopMetrics) UpdateQuote(float64, float64, float64, float64) {}
func (nopMetrics) UpdatePosition(float64)                         {}
func (nopMetrics) RecordAction(string)                            {}
func (nopMetrics) RecordOrdersPlaced(int)                         {}
func (nopMetrics) UpdateStreamState(int)                          {}
func (nopMetrics) RecordWSConnection()                            {}
func (nopMetrics) RecordWSDisconnect()                            {}
