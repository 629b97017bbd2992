package strategy

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"obi-market-maker/market"
)

// ErrInvalidMarketMetadata tickSize 非正时返回，策略无法启动。
var ErrInvalidMarketMetadata = errors.New("invalid market metadata")

// QuoteParams 报价所需的可热更新参数。
type QuoteParams struct {
	OrderQty            float64 // 单边标准下单量
	C1                  float64 // 信号到价格的系数
	HalfSpread          float64 // 半价差（价格单位）
	Skew                float64 // 仓位倾斜系数
	PriceDeltaThreshold float64 // mid 变动阈值，当前仅随配置透传
}

// QuoteTarget 单个 tick 的目标报价，创建后不可修改。
type QuoteTarget struct {
	Mid              float64
	FairPrice        float64
	ReservationPrice float64

	BidPrice float64
	AskPrice float64
	BidTick  int64
	AskTick  int64

	BuyQty  float64
	SellQty float64
}

// ValidateMetadata 检查 tickSize > 0。
func ValidateMetadata(meta market.Metadata) error {
	if meta.TickSize <= 0 || math.IsNaN(meta.TickSize) {
		return fmt.Errorf("%w: symbol=%s tick_size=%v", ErrInvalidMarketMetadata, meta.Symbol, meta.TickSize)
	}
	return nil
}

// Sizes 先平后开：有多头时买单只补足到 order_qty，空头时对称。
func Sizes(inventory, orderQty float64) (buyQty, sellQty float64) {
	switch {
	case inventory > 0:
		return math.Max(orderQty-inventory, 0), orderQty
	case inventory < 0:
		return orderQty, math.Max(orderQty-math.Abs(inventory), 0)
	default:
		return orderQty, orderQty
	}
}

// Quote 由快照、信号和当前仓位计算目标买卖价。
//
//	fair        = mid + c1·signal
//	reservation = fair − skew·(inventory/order_qty)
//	bid/ask     = reservation ∓ half_spread
//
// 候选价若穿过对手盘，买价强制为 floor(best_bid/tick)−1 档，卖价为 ceil(best_ask/tick)+1 档；
// 其余情况买价向下、卖价向上取整到 tick，再按精度四舍五入。
// 买价落不到正数档时本 tick 不挂买单（BuyQty 置 0）。
func Quote(snap market.BookSnapshot, signal, inventory float64, p QuoteParams, meta market.Metadata) (QuoteTarget, error) {
	if err := ValidateMetadata(meta); err != nil {
		return QuoteTarget{}, err
	}
	mid, err := snap.Mid()
	if err != nil {
		return QuoteTarget{}, err
	}
	bestBid, bestAsk := snap.BestBid(), snap.BestAsk()
	tick := meta.TickSize

	fair := mid + p.C1*signal
	normalized := 0.0
	if p.OrderQty != 0 {
		normalized = inventory / p.OrderQty
	}
	reservation := fair - p.Skew*normalized

	// 强制退档直接在 tick 编号上加减，不经过浮点价格
	rawBid := reservation - p.HalfSpread
	bidTick := market.FloorTick(rawBid, tick)
	if rawBid >= bestBid {
		bidTick = market.FloorTick(bestBid, tick) - 1
	}
	rawAsk := reservation + p.HalfSpread
	askTick := market.CeilTick(rawAsk, tick)
	if rawAsk <= bestAsk {
		askTick = market.CeilTick(bestAsk, tick) + 1
	}

	buyQty, sellQty := Sizes(inventory, p.OrderQty)
	if bidTick < 1 {
		// 买一已在最低档，没有合法的不穿价买价
		bidTick, buyQty = 0, 0
	}

	return QuoteTarget{
		Mid:              mid,
		FairPrice:        fair,
		ReservationPrice: reservation,
		BidTick:          bidTick,
		AskTick:          askTick,
		BidPrice:         market.TickPrice(bidTick, tick, meta.PricePrecision),
		AskPrice:         market.TickPrice(askTick, tick, meta.PricePrecision),
		BuyQty:           buyQty,
		SellQty:          sellQty,
	}, nil
}

// Quoter 持有交易对元数据与当前报价参数。
// 参数由行情协程在 tick 开始时更新，读写加锁以便配置接口查看。
type Quoter struct {
	mu     sync.RWMutex
	meta   market.Metadata
	params QuoteParams
}

// NewQuoter 校验元数据后创建 Quoter。
func NewQuoter(meta market.Metadata, params QuoteParams) (*Quoter, error) {
	if err := ValidateMetadata(meta); err != nil {
		return nil, err
	}
	return &Quoter{meta: meta, params: params}, nil
}

// Update 替换报价参数。
func (q *Quoter) Update(p QuoteParams) {
	q.mu.Lock()
	q.params = p
	q.mu.Unlock()
}

// Params 返回当前参数。
func (q *Quoter) Params() QuoteParams {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.params
}

// Metadata 返回交易对元数据。
func (q *Quoter) Metadata() market.Metadata {
	return q.meta
}

// Quote 使用当前参数报价。
func (q *Quoter) Quote(snap market.BookSnapshot, signal, inventory float64) (QuoteTarget, error) {
	return Quote(snap, signal, inventory, q.Params(), q.meta)
}
