package gateway

import (
	"context"
	"time"

	"obi-market-maker/market"
	"obi-market-maker/order"
)

// RESTRecorder 记录 REST 请求次数、错误与延迟。
type RESTRecorder interface {
	RecordRESTRequest(action string)
	RecordRESTError(action string)
	RecordRESTLatency(action string, seconds float64)
}

// Instrumented 为 order.Gateway 加上请求指标。
type Instrumented struct {
	next order.Gateway
	rec  RESTRecorder
}

// NewInstrumented 包装网关。
func NewInstrumented(next order.Gateway, rec RESTRecorder) *Instrumented {
	return &Instrumented{next: next, rec: rec}
}

func (g *Instrumented) observe(action string, start time.Time, err error) {
	g.rec.RecordRESTRequest(action)
	g.rec.RecordRESTLatency(action, time.Since(start).Seconds())
	if err != nil {
		g.rec.RecordRESTError(action)
	}
}

func (g *Instrumented) Inventory(ctx context.Context, symbol string) (float64, error) {
	start := time.Now()
	v, err := g.next.Inventory(ctx, symbol)
	g.observe("inventory", start, err)
	return v, err
}

func (g *Instrumented) RestingOrders(ctx context.Context, symbol string) ([]order.RestingOrder, error) {
	start := time.Now()
	v, err := g.next.RestingOrders(ctx, symbol)
	g.observe("open_orders", start, err)
	return v, err
}

func (g *Instrumented) CancelAll(ctx context.Context, symbol string) error {
	start := time.Now()
	err := g.next.CancelAll(ctx, symbol)
	g.observe("cancel_all", start, err)
	return err
}

func (g *Instrumented) CreateOrders(ctx context.Context, reqs []order.Request) ([]string, error) {
	start := time.Now()
	v, err := g.next.CreateOrders(ctx, reqs)
	g.observe("batch_orders", start, err)
	return v, err
}

func (g *Instrumented) MarketMetadata(ctx context.Context, symbol string) (market.Metadata, error) {
	start := time.Now()
	v, err := g.next.MarketMetadata(ctx, symbol)
	g.observe("exchange_info", start, err)
	return v, err
}
