package engine

import (
	"go.uber.org/zap"

	"obi-market-maker/config"
)

// ParamSource 提供每轮使用的参数快照，config.Store 实现该接口。
type ParamSource interface {
	Snapshot() config.StrategyConfig
}

// paramChange 两次快照之间的差异。
type paramChange struct {
	signal  bool // depth / window
	quote   bool // order_qty / c1 / half_spread / skew / price_delta_threshold
	limit   bool // 下次订阅生效
	restart bool // symbol / 密钥 / sandbox / dry_run，需要重启
}

func (p paramChange) any() bool {
	return p.signal || p.quote || p.limit || p.restart
}

func diffParams(prev, next config.StrategyConfig) paramChange {
	return paramChange{
		signal: prev.Depth != next.Depth || prev.WindowMinutes != next.WindowMinutes,
		quote: prev.OrderQty != next.OrderQty || prev.C1 != next.C1 ||
			prev.HalfSpread != next.HalfSpread || prev.Skew != next.Skew ||
			prev.PriceDeltaThreshold != next.PriceDeltaThreshold,
		limit: prev.Limit != next.Limit,
		restart: prev.Symbol != next.Symbol || prev.APIKey != next.APIKey || prev.Secret != next.Secret ||
			prev.SandboxMode != next.SandboxMode || prev.DryRun != next.DryRun,
	}
}

// applyParams 只把变化的字段下发给信号与报价组件，窗口样本保留。
func (c *Controller) applyParams(next config.StrategyConfig) {
	ch := diffParams(c.params, next)
	if !ch.any() {
		return
	}
	if ch.signal {
		if next.Depth != c.params.Depth {
			c.signal.SetDepth(next.Depth)
		}
		if next.WindowMinutes != c.params.WindowMinutes {
			c.signal.SetWindow(next.Window())
		}
	}
	if ch.quote {
		c.quoter.Update(next.Params())
	}
	fields := []zap.Field{
		zap.Bool("signal", ch.signal),
		zap.Bool("quote", ch.quote),
		zap.Bool("limit", ch.limit),
		zap.Float64("order_qty", next.OrderQty),
		zap.Float64("c1", next.C1),
		zap.Float64("half_spread", next.HalfSpread),
		zap.Float64("skew", next.Skew),
		zap.Float64("depth", next.Depth),
		zap.Float64("window_minutes", next.WindowMinutes),
		zap.Int("limit_levels", next.Limit),
	}
	c.logger.Info("strategy params updated", fields...)
	if ch.limit {
		c.logger.Info("depth limit change applies on next subscribe", zap.Int("limit", next.Limit))
	}
	if ch.restart {
		c.logger.Warn("symbol/credential/sandbox/dry_run change ignored until restart",
			zap.String("running_symbol", c.symbol),
			zap.String("configured_symbol", next.Symbol))
	}
	c.params = next
}
