package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"obi-market-maker/market"
	"obi-market-maker/order"
)

func TestPaperGateway(t *testing.T) {
	ctx := context.Background()
	p := NewPaperGateway(market.Metadata{TickSize: 0.1, PricePrecision: 1})
	p.SetPosition(-0.3)

	inv, err := p.Inventory(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, -0.3, inv)

	ids, err := p.CreateOrders(ctx, []order.Request{
		{Symbol: "BTCUSDT", Side: order.SideBuy, Price: 99.9, Qty: 1},
		{Symbol: "BTCUSDT", Side: order.SideSell, Price: 101.1, Qty: 0.7},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, ids)

	resting, err := p.RestingOrders(ctx, "BTCUSDT")
	require.NoError(t, err)
	require.Len(t, resting, 2)
	assert.Equal(t, int64(999), resting[0].Tick)
	assert.Equal(t, int64(1011), resting[1].Tick)

	require.NoError(t, p.CancelAll(ctx, "BTCUSDT"))
	resting, _ = p.RestingOrders(ctx, "BTCUSDT")
	assert.Empty(t, resting)

	cancels, creates := p.Counts()
	assert.Equal(t, 1, cancels)
	assert.Equal(t, 2, creates)

	meta, err := p.MarketMetadata(ctx, "btcusdt")
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", meta.Symbol)
}

type fakeRecorder struct {
	mu       sync.Mutex
	requests map[string]int
	errors   map[string]int
	latency  map[string]int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{requests: map[string]int{}, errors: map[string]int{}, latency: map[string]int{}}
}

func (f *fakeRecorder) RecordRESTRequest(a string) { f.mu.Lock(); f.requests[a]++; f.mu.Unlock() }
func (f *fakeRecorder) RecordRESTError(a string)   { f.mu.Lock(); f.errors[a]++; f.mu.Unlock() }
func (f *fakeRecorder) RecordRESTLatency(a string, _ float64) {
	f.mu.Lock()
	f.latency[a]++
	f.mu.Unlock()
}

type failingGateway struct{ *PaperGateway }

func (failingGateway) CancelAll(context.Context, string) error {
	return connErr("cancel", errors.New("boom"))
}

func TestInstrumentedGateway(t *testing.T) {
	ctx := context.Background()
	rec := newFakeRecorder()
	g := NewInstrumented(failingGateway{NewPaperGateway(market.Metadata{TickSize: 1})}, rec)

	_, _ = g.Inventory(ctx, "X")
	_, _ = g.RestingOrders(ctx, "X")
	_, _ = g.CreateOrders(ctx, []order.Request{{Side: order.SideBuy, Price: 1, Qty: 1}})
	_, _ = g.MarketMetadata(ctx, "X")
	err := g.CancelAll(ctx, "X")
	assert.True(t, IsConnectivity(err))

	for _, action := range []string{"inventory", "open_orders", "batch_orders", "exchange_info", "cancel_all"} {
		assert.Equal(t, 1, rec.requests[action], action)
		assert.Equal(t, 1, rec.latency[action], action)
	}
	assert.Equal(t, 1, rec.errors["cancel_all"])
	assert.Equal(t, 0, rec.errors["inventory"])
}

func TestTokenBucketLimiter(t *testing.T) {
	l := NewTokenBucketLimiter(1000, 2)
	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 4; i++ {
		require.NoError(t, l.Wait(ctx))
	}
	assert.Less(t, time.Since(start), time.Second)

	slow := NewTokenBucketLimiter(0.5, 1)
	require.NoError(t, slow.Wait(ctx))
	cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, slow.Wait(cctx), context.DeadlineExceeded)
}

func TestConnectivityError(t *testing.T) {
	base := errors.New("reset")
	err := connErr("ws read", base)
	assert.Equal(t, "connectivity: ws read: reset", err.Error())
	assert.ErrorIs(t, err, base)
	assert.False(t, IsConnectivity(base))
}

type staticMeta struct {
	meta  market.Metadata
	err   error
	calls int
}

func (s *staticMeta) MarketMetadata(context.Context, string) (market.Metadata, error) {
	s.calls++
	return s.meta, s.err
}

func TestPaperGatewayMetadataSource(t *testing.T) {
	src := &staticMeta{meta: market.Metadata{Symbol: "ETHUSDT", TickSize: 0.01, PricePrecision: 2}}
	p := NewPaperGateway(market.Metadata{}).WithMetadataSource(src)

	meta, err := p.MarketMetadata(context.Background(), "ethusdt")
	require.NoError(t, err)
	assert.Equal(t, 0.01, meta.TickSize)
	assert.Equal(t, int32(2), meta.PricePrecision)

	// 已缓存，不再请求
	_, err = p.MarketMetadata(context.Background(), "ethusdt")
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls)

	failing := NewPaperGateway(market.Metadata{}).WithMetadataSource(&staticMeta{err: errors.New("exchange info: 503")})
	_, err = failing.MarketMetadata(context.Background(), "ethusdt")
	assert.Error(t, err)
}
