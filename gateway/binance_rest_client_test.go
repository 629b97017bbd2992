package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"obi-market-maker/order"
)

func fixedClock(t *testing.T) {
	t.Helper()
	timeNowMillis = func() int64 { return 1234567890000 } // deterministic
	t.Cleanup(func() { timeNowMillis = func() int64 { return time.Now().UnixMilli() } })
}

func newTestClient(ts *httptest.Server) *BinanceRESTClient {
	return &BinanceRESTClient{
		BaseURL:      ts.URL,
		APIKey:       "key",
		Secret:       "secret",
		HTTPClient:   ts.Client(),
		RecvWindowMs: 5000,
	}
}

const exchangeInfoBody = `{"symbols":[
 {"symbol":"BTCUSDT","status":"TRADING","pricePrecision":2,"quantityPrecision":3,
  "filters":[{"filterType":"PRICE_FILTER","tickSize":"0.10","minPrice":"556.80","maxPrice":"4529764"},
             {"filterType":"LOT_SIZE","stepSize":"0.001","minQty":"0.001","maxQty":"1000"},
             {"filterType":"MIN_NOTIONAL","notional":"100"}]},
 {"symbol":"ETHUSDT","status":"TRADING","pricePrecision":2,"quantityPrecision":3,"filters":[]}
]}`

func TestSignParams(t *testing.T) {
	fixedClock(t)
	params := url.Values{}
	params.Set("symbol", "BTCUSDT")
	query, sig := SignParams(params, "secret", 5000)
	if query != "recvWindow=5000&symbol=BTCUSDT&timestamp=1234567890000" {
		t.Fatalf("unexpected query %s", query)
	}
	if len(sig) != 64 {
		t.Fatalf("expected hex sha256 signature, got %q", sig)
	}
	_, again := SignParams(params, "secret", 5000)
	if again != sig {
		t.Fatalf("signature not deterministic")
	}
	_, other := SignParams(params, "other", 5000)
	if other == sig {
		t.Fatalf("signature should depend on secret")
	}
}

func TestBinanceRESTClientSignedRequests(t *testing.T) {
	fixedClock(t)
	var seen []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Method+" "+r.URL.Path)
		if r.Header.Get("X-MBX-APIKEY") != "key" {
			t.Errorf("missing api key header")
		}
		if !strings.Contains(r.URL.RawQuery, "signature=") {
			t.Errorf("missing signature on %s", r.URL.Path)
		}
		switch r.URL.Path {
		case "/fapi/v2/positionRisk":
			io.WriteString(w, `[{"symbol":"BTCUSDT","positionSide":"LONG","positionAmt":"0.5"},
				{"symbol":"BTCUSDT","positionSide":"SHORT","positionAmt":"-0.2"},
				{"symbol":"ETHUSDT","positionSide":"BOTH","positionAmt":"3"}]`)
		case "/fapi/v1/openOrders":
			io.WriteString(w, `[{"orderId":11,"clientOrderId":"a","symbol":"BTCUSDT","side":"BUY","price":"99.90","origQty":"1","executedQty":"0.25","status":"PARTIALLY_FILLED"}]`)
		case "/fapi/v1/allOpenOrders":
			if r.Method != http.MethodDelete {
				t.Errorf("cancel all must be DELETE")
			}
			io.WriteString(w, `{"code":200,"msg":"done"}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer ts.Close()

	cli := newTestClient(ts)
	ctx := context.Background()

	positions, err := cli.PositionRisk(ctx, "BTCUSDT")
	if err != nil {
		t.Fatalf("position risk: %v", err)
	}
	if len(positions) != 3 || positions[0].PositionAmt != 0.5 {
		t.Fatalf("unexpected positions %+v", positions)
	}

	open, err := cli.OpenOrders(ctx, "BTCUSDT")
	if err != nil {
		t.Fatalf("open orders: %v", err)
	}
	if len(open) != 1 || open[0].Price != 99.9 || open[0].ExecutedQty != 0.25 {
		t.Fatalf("unexpected open orders %+v", open)
	}

	if err := cli.CancelAll(ctx, "BTCUSDT"); err != nil {
		t.Fatalf("cancel all: %v", err)
	}
	if len(seen) != 3 {
		t.Fatalf("unexpected requests %v", seen)
	}
}

func TestBinanceRESTClientPlaceBatch(t *testing.T) {
	fixedClock(t)
	var batches [][]map[string]string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/fapi/v1/batchOrders" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
			return
		}
		var items []map[string]string
		if err := json.Unmarshal([]byte(r.URL.Query().Get("batchOrders")), &items); err != nil {
			t.Errorf("decode batch: %v", err)
			return
		}
		batches = append(batches, items)
		resp := make([]map[string]interface{}, 0, len(items))
		for i := range items {
			resp = append(resp, map[string]interface{}{"orderId": 100 + len(batches)*10 + i})
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer ts.Close()

	orders := make([]LimitOrder, 0, 7)
	for i := 0; i < 7; i++ {
		orders = append(orders, LimitOrder{Symbol: "BTCUSDT", Side: "buy", Price: 99.9, Quantity: 0.001, ClientOrderID: "c"})
	}
	ids, err := newTestClient(ts).PlaceBatch(context.Background(), orders)
	if err != nil {
		t.Fatalf("place batch: %v", err)
	}
	if len(batches) != 2 || len(batches[0]) != 5 || len(batches[1]) != 2 {
		t.Fatalf("expected 5+2 split, got %d batches", len(batches))
	}
	if len(ids) != 7 || ids[0] != "110" || ids[5] != "120" {
		t.Fatalf("unexpected ids %v", ids)
	}
	first := batches[0][0]
	if first["side"] != "BUY" || first["type"] != "LIMIT" || first["timeInForce"] != "GTC" ||
		first["price"] != "99.9" || first["quantity"] != "0.001" {
		t.Fatalf("unexpected order payload %+v", first)
	}
}

func TestBinanceRESTClientPlaceBatchPartialReject(t *testing.T) {
	fixedClock(t)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[{"orderId":1},{"code":-2019,"msg":"Margin is insufficient."}]`)
	}))
	defer ts.Close()

	ids, err := newTestClient(ts).PlaceBatch(context.Background(), []LimitOrder{
		{Symbol: "BTCUSDT", Side: "BUY", Price: 1, Quantity: 1},
		{Symbol: "BTCUSDT", Side: "SELL", Price: 2, Quantity: 1},
	})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != -2019 {
		t.Fatalf("expected api error, got %v", err)
	}
	if len(ids) != 1 || ids[0] != "1" {
		t.Fatalf("unexpected ids %v", ids)
	}
}

func TestBinanceRESTClientErrors(t *testing.T) {
	fixedClock(t)
	status := http.StatusBadRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		io.WriteString(w, `{"code":-1121,"msg":"Invalid symbol."}`)
	}))
	defer ts.Close()
	cli := newTestClient(ts)

	err := cli.CancelAll(context.Background(), "NOPE")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != -1121 || apiErr.Status != 400 {
		t.Fatalf("expected APIError, got %v", err)
	}
	if IsConnectivity(err) {
		t.Fatalf("4xx must not be a connectivity error")
	}

	status = http.StatusBadGateway
	if err := cli.CancelAll(context.Background(), "BTCUSDT"); !IsConnectivity(err) {
		t.Fatalf("expected connectivity error on 5xx, got %v", err)
	}

	ts.Close()
	if _, err := cli.OpenOrders(context.Background(), "BTCUSDT"); !IsConnectivity(err) {
		t.Fatalf("expected connectivity error on closed server, got %v", err)
	}
}

func TestBinanceRESTClientNotConfigured(t *testing.T) {
	var cli *BinanceRESTClient
	if err := cli.CancelAll(context.Background(), "BTCUSDT"); err == nil {
		t.Fatal("expected error for nil client")
	}
}

func TestExchangeInfoAndMetadata(t *testing.T) {
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if strings.Contains(r.URL.RawQuery, "signature=") {
			t.Errorf("exchangeInfo must not be signed")
		}
		io.WriteString(w, exchangeInfoBody)
	}))
	defer ts.Close()

	cli := newTestClient(ts)
	infos, err := cli.ExchangeInfo(context.Background(), "btcusdt")
	if err != nil {
		t.Fatalf("exchange info: %v", err)
	}
	if len(infos) != 1 || infos[0].TickSize != 0.1 || infos[0].StepSize != 0.001 || infos[0].MinNotional != 100 {
		t.Fatalf("unexpected infos %+v", infos)
	}

	gw := NewBinanceGateway(cli)
	meta, err := gw.MarketMetadata(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if meta.TickSize != 0.1 || meta.PricePrecision != 1 {
		t.Fatalf("unexpected meta %+v", meta)
	}
	if _, err := gw.MarketMetadata(context.Background(), "btcusdt"); err != nil {
		t.Fatalf("cached metadata: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected metadata to be cached, calls=%d", calls)
	}

	// 无 PRICE_FILTER 时退回 pricePrecision
	eth, err := gw.MarketMetadata(context.Background(), "ETHUSDT")
	if err != nil {
		t.Fatalf("eth metadata: %v", err)
	}
	if eth.TickSize != 0.01 || eth.PricePrecision != 2 {
		t.Fatalf("unexpected fallback meta %+v", eth)
	}

	if _, err := gw.MarketMetadata(context.Background(), "XRPUSDT"); err == nil {
		t.Fatal("expected unknown symbol error")
	}
}

func TestBinanceGatewayAdapter(t *testing.T) {
	fixedClock(t)
	var batch string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/fapi/v1/exchangeInfo":
			io.WriteString(w, exchangeInfoBody)
		case "/fapi/v2/positionRisk":
			io.WriteString(w, `[{"symbol":"BTCUSDT","positionAmt":"0.5"},{"symbol":"BTCUSDT","positionAmt":"-0.2"}]`)
		case "/fapi/v1/openOrders":
			io.WriteString(w, `[{"orderId":11,"side":"BUY","price":"99.90","origQty":"1","executedQty":"0.25"},
				{"orderId":12,"side":"SELL","price":"101.10","origQty":"1","executedQty":"0"}]`)
		case "/fapi/v1/batchOrders":
			batch = r.URL.Query().Get("batchOrders")
			io.WriteString(w, `[{"orderId":21},{"orderId":22}]`)
		case "/fapi/v1/allOpenOrders":
			io.WriteString(w, `{"code":200}`)
		}
	}))
	defer ts.Close()

	gw := NewBinanceGateway(newTestClient(ts))
	ctx := context.Background()

	inv, err := gw.Inventory(ctx, "BTCUSDT")
	if err != nil || inv < 0.299999 || inv > 0.300001 {
		t.Fatalf("unexpected inventory %v (%v)", inv, err)
	}

	resting, err := gw.RestingOrders(ctx, "BTCUSDT")
	if err != nil {
		t.Fatalf("resting: %v", err)
	}
	if len(resting) != 2 || resting[0].Tick != 999 || resting[0].Side != order.SideBuy || resting[0].Qty != 0.75 {
		t.Fatalf("unexpected resting %+v", resting)
	}
	if resting[1].Tick != 1011 || resting[1].Side != order.SideSell {
		t.Fatalf("unexpected resting sell %+v", resting[1])
	}

	if err := gw.CancelAll(ctx, "BTCUSDT"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	ids, err := gw.CreateOrders(ctx, []order.Request{
		{ClientID: "a", Symbol: "BTCUSDT", Side: order.SideBuy, Price: 99.9, Qty: 1, TimeInForce: order.GTC},
		{ClientID: "b", Symbol: "BTCUSDT", Side: order.SideSell, Price: 101.1, Qty: 1, TimeInForce: order.GTC},
	})
	if err != nil || len(ids) != 2 || ids[1] != "22" {
		t.Fatalf("unexpected create result %v %v", ids, err)
	}
	if !strings.Contains(batch, `"newClientOrderId":"a"`) || !strings.Contains(batch, `"price":"101.1"`) {
		t.Fatalf("unexpected batch payload %s", batch)
	}
	if ids, err := gw.CreateOrders(ctx, nil); err != nil || ids != nil {
		t.Fatalf("empty create should be a no-op")
	}
}
