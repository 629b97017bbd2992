package engine

import (
	"time"

	"obi-market-maker/alpha"
	"obi-market-maker/config"
	"obi-market-maker/market"
	"obi-market-maker/order"
	"obi-market-maker/strategy"
)

// Stage tick 流水线阶段
type Stage string

const (
	StageSignal    Stage = "signal"
	StageInventory Stage = "inventory"
	StageQuote     Stage = "quote"
	StageResolve   Stage = "resolve" // 查询挂单失败，降级为空集合继续
	StageDispatch  Stage = "dispatch"
	StageDone      Stage = "done"
)

// RawTick 一轮的输入：快照与本轮参数快照。
type RawTick struct {
	Snapshot market.BookSnapshot
	Params   config.StrategyConfig
	Received time.Time
}

// PricedTick 完成信号与报价后的结果。
type PricedTick struct {
	RawTick
	Observation alpha.Observation
	Inventory   float64
	Target      strategy.QuoteTarget
}

// ReconciledTick 完成对账后的结果。
type ReconciledTick struct {
	PricedTick
	Resting []order.RestingOrder
	Stale   bool // 挂单查询失败，按空集合对账
	Actions []order.Action
}

// TickOutcome 一轮的结论。Stage 为 StageDone 时 Err 可能仍非空（降级但完成）。
type TickOutcome struct {
	Stage   Stage
	Err     error
	Actions int
	Created int
}

// OK 是否完整执行到最后。
func (o TickOutcome) OK() bool {
	return o.Stage == StageDone
}

func actionKind(a order.Action) string {
	switch a.(type) {
	case order.CancelAll:
		return "cancel_all"
	case order.CreateBuy:
		return "create_buy"
	case order.CreateSell:
		return "create_sell"
	default:
		return "unknown"
	}
}
