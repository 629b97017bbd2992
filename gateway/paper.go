package gateway

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"obi-market-maker/market"
	"obi-market-maker/order"
)

// PaperGateway dry-run 用的内存网关：只记录挂单，不撮合成交。
type PaperGateway struct {
	mu       sync.Mutex
	meta     market.Metadata
	position float64
	orders   []order.RestingOrder
	nextID   int64

	cancels int
	creates int

	source MetadataSource
}

// MetadataSource 提供真实交易对精度，dry-run 时由公开 exchangeInfo 接口给出。
type MetadataSource interface {
	MarketMetadata(ctx context.Context, symbol string) (market.Metadata, error)
}

// NewPaperGateway 创建模拟网关。
func NewPaperGateway(meta market.Metadata) *PaperGateway {
	return &PaperGateway{meta: meta, nextID: 1}
}

// WithMetadataSource 未给定 tickSize 时从 src 读取元数据。
func (p *PaperGateway) WithMetadataSource(src MetadataSource) *PaperGateway {
	p.mu.Lock()
	p.source = src
	p.mu.Unlock()
	return p
}

// SetPosition 设置模拟持仓。
func (p *PaperGateway) SetPosition(v float64) {
	p.mu.Lock()
	p.position = v
	p.mu.Unlock()
}

func (p *PaperGateway) Inventory(_ context.Context, _ string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position, nil
}

func (p *PaperGateway) RestingOrders(_ context.Context, _ string) ([]order.RestingOrder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]order.RestingOrder, len(p.orders))
	copy(out, p.orders)
	return out, nil
}

func (p *PaperGateway) CancelAll(_ context.Context, _ string) error {
	p.mu.Lock()
	p.orders = p.orders[:0]
	p.cancels++
	p.mu.Unlock()
	return nil
}

func (p *PaperGateway) CreateOrders(_ context.Context, reqs []order.Request) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(reqs))
	for _, r := range reqs {
		id := strconv.FormatInt(p.nextID, 10)
		p.nextID++
		tick := market.RoundTick(r.Price, p.meta.TickSize)
		p.orders = append(p.orders, order.Resting(id, r, tick))
		ids = append(ids, id)
	}
	p.creates += len(reqs)
	return ids, nil
}

func (p *PaperGateway) MarketMetadata(ctx context.Context, symbol string) (market.Metadata, error) {
	p.mu.Lock()
	meta, src := p.meta, p.source
	p.mu.Unlock()
	if meta.TickSize <= 0 && src != nil {
		fetched, err := src.MarketMetadata(ctx, symbol)
		if err != nil {
			return market.Metadata{}, err
		}
		p.mu.Lock()
		p.meta = fetched
		p.mu.Unlock()
		meta = fetched
	}
	if meta.Symbol == "" {
		meta.Symbol = strings.ToUpper(symbol)
	}
	return meta, nil
}

// Counts 返回撤单次数与累计下单数。
func (p *PaperGateway) Counts() (cancels, creates int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancels, p.creates
}
