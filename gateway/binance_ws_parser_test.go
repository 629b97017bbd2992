package gateway

import "testing"

func TestParseDepthCombined(t *testing.T) {
	raw := []byte(`{
		"stream":"btcusdt@depth20@100ms",
		"data":{
		  "e":"depthUpdate","E":1700000000123,
		  "s":"BTCUSDT",
		  "b":[["100.1","1.2"],["100.0","2"],["99.9","0"]],
		  "a":[["100.2","1.1"],["100.3","2.2"]]
		}
	}`)
	snap, err := ParseDepth(raw, 1)
	if err != nil {
		t.Fatalf("parse err: %v", err)
	}
	if snap.Symbol != "BTCUSDT" || snap.Timestamp != 1700000000123 {
		t.Fatalf("unexpected header %+v", snap)
	}
	if len(snap.Bids) != 2 || snap.BestBid() != 100.1 || snap.BestAsk() != 100.2 {
		t.Fatalf("unexpected levels %+v", snap)
	}
}

func TestParseDepthRawPayload(t *testing.T) {
	raw := []byte(`{"e":"depthUpdate","s":"ethusdt","b":[["10","1"]],"a":[["11","1"]]}`)
	snap, err := ParseDepth(raw, 42)
	if err != nil {
		t.Fatalf("parse err: %v", err)
	}
	if snap.Timestamp != 42 || snap.Symbol != "ETHUSDT" {
		t.Fatalf("expected fallback timestamp and upper symbol, got %+v", snap)
	}
}

func TestParseDepthRejects(t *testing.T) {
	if _, err := ParseDepth([]byte(`{"result":null,"id":1}`), 0); err == nil {
		t.Fatal("expected non-depth message to be rejected")
	}
	if _, err := ParseDepth([]byte(`not json`), 0); err == nil {
		t.Fatal("expected decode error")
	}
	if _, err := ParseDepth([]byte(`{"e":"depthUpdate","s":"X","b":[["abc","1"]]}`), 0); err == nil {
		t.Fatal("expected bad number error")
	}
}

func TestDepthStreamName(t *testing.T) {
	cases := map[int]string{
		1:   "btcusdt@depth5@100ms",
		5:   "btcusdt@depth5@100ms",
		8:   "btcusdt@depth10@100ms",
		20:  "btcusdt@depth20@100ms",
		100: "btcusdt@depth20@100ms",
	}
	for limit, want := range cases {
		if got := DepthStreamName("BTCUSDT", limit); got != want {
			t.Fatalf("limit %d: want %s got %s", limit, want, got)
		}
	}
}

func TestResolveEndpoints(t *testing.T) {
	ep := ResolveEndpoints(false, "", "")
	if ep.REST != BinanceFuturesRESTEndpoint || ep.WS != BinanceFuturesWSEndpoint {
		t.Fatalf("unexpected mainnet endpoints %+v", ep)
	}
	ep = ResolveEndpoints(true, "", "")
	if ep.REST != BinanceTestnetRESTEndpoint || ep.WS != BinanceTestnetWSEndpoint {
		t.Fatalf("unexpected testnet endpoints %+v", ep)
	}
	ep = ResolveEndpoints(true, "http://rest", "ws://ws")
	if ep.REST != "http://rest" || ep.WS != "ws://ws" {
		t.Fatalf("overrides ignored %+v", ep)
	}
}
