package gateway

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"obi-market-maker/market"
	"obi-market-maker/order"
)

// BinanceGateway 把 REST 客户端适配为 order.Gateway，并缓存交易对元数据。
type BinanceGateway struct {
	client *BinanceRESTClient

	mu   sync.RWMutex
	meta map[string]market.Metadata
}

// NewBinanceGateway 创建网关适配器。
func NewBinanceGateway(client *BinanceRESTClient) *BinanceGateway {
	return &BinanceGateway{
		client: client,
		meta:   make(map[string]market.Metadata),
	}
}

// Client 返回底层 REST 客户端。
func (g *BinanceGateway) Client() *BinanceRESTClient {
	return g.client
}

// Inventory 汇总该交易对所有 positionSide 的 positionAmt。
func (g *BinanceGateway) Inventory(ctx context.Context, symbol string) (float64, error) {
	positions, err := g.client.PositionRisk(ctx, symbol)
	if err != nil {
		return 0, fmt.Errorf("position risk: %w", err)
	}
	var net float64
	for _, p := range positions {
		if strings.EqualFold(p.Symbol, symbol) {
			net += p.PositionAmt
		}
	}
	return net, nil
}

// RestingOrders 查询挂单并按 round(price/tickSize) 计算所在 tick。
func (g *BinanceGateway) RestingOrders(ctx context.Context, symbol string) ([]order.RestingOrder, error) {
	meta, err := g.MarketMetadata(ctx, symbol)
	if err != nil {
		return nil, err
	}
	open, err := g.client.OpenOrders(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("open orders: %w", err)
	}
	out := make([]order.RestingOrder, 0, len(open))
	for _, o := range open {
		out = append(out, order.RestingOrder{
			ID:    strconv.FormatInt(o.OrderID, 10),
			Side:  order.ParseSide(o.Side),
			Price: o.Price,
			Tick:  market.RoundTick(o.Price, meta.TickSize),
			Qty:   o.OrigQty - o.ExecutedQty,
		})
	}
	return out, nil
}

// CancelAll 撤销该交易对全部挂单。
func (g *BinanceGateway) CancelAll(ctx context.Context, symbol string) error {
	if err := g.client.CancelAll(ctx, symbol); err != nil {
		return fmt.Errorf("cancel all: %w", err)
	}
	return nil
}

// CreateOrders 批量提交限价单。
func (g *BinanceGateway) CreateOrders(ctx context.Context, reqs []order.Request) ([]string, error) {
	if len(reqs) == 0 {
		return nil, nil
	}
	orders := make([]LimitOrder, 0, len(reqs))
	for _, r := range reqs {
		orders = append(orders, LimitOrder{
			Symbol:        r.Symbol,
			Side:          string(r.Side),
			Price:         r.Price,
			Quantity:      r.Qty,
			TimeInForce:   string(r.TimeInForce),
			ClientOrderID: r.ClientID,
		})
	}
	ids, err := g.client.PlaceBatch(ctx, orders)
	if err != nil {
		return ids, fmt.Errorf("batch orders: %w", err)
	}
	return ids, nil
}

// MarketMetadata 读取 PRICE_FILTER.tickSize，缺失时退回 pricePrecision；
// 价格精度由 tickSize 推导。结果按交易对缓存。
func (g *BinanceGateway) MarketMetadata(ctx context.Context, symbol string) (market.Metadata, error) {
	key := strings.ToUpper(symbol)
	g.mu.RLock()
	meta, ok := g.meta[key]
	g.mu.RUnlock()
	if ok {
		return meta, nil
	}

	infos, err := g.client.ExchangeInfo(ctx, key)
	if err != nil {
		return market.Metadata{}, fmt.Errorf("exchange info: %w", err)
	}
	for _, info := range infos {
		if !strings.EqualFold(info.Symbol, key) {
			continue
		}
		meta = MetadataFromSymbolInfo(info)
		g.mu.Lock()
		g.meta[key] = meta
		g.mu.Unlock()
		return meta, nil
	}
	return market.Metadata{}, fmt.Errorf("symbol %s not found in exchangeInfo", key)
}

// MetadataFromSymbolInfo 从 exchangeInfo 条目构造元数据，tickSize 可能为 0，由调用方校验。
func MetadataFromSymbolInfo(info SymbolInfo) market.Metadata {
	tick := info.TickSize
	if tick <= 0 && info.PricePrecision > 0 {
		tick = decimal.New(1, -int32(info.PricePrecision)).InexactFloat64()
	}
	return market.Metadata{
		Symbol:         info.Symbol,
		TickSize:       tick,
		PricePrecision: market.PrecisionFromTick(tick),
	}
}
