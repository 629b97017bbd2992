package gateway

// 币安 U 本位合约主网与测试网地址
const (
	BinanceFuturesRESTEndpoint = "https://fapi.binance.com"
	BinanceFuturesWSEndpoint   = "wss://fstream.binance.com"

	BinanceTestnetRESTEndpoint = "https://testnet.binancefuture.com"
	BinanceTestnetWSEndpoint   = "wss://stream.binancefuture.com"
)

// Endpoints REST 与 WS 根地址。
type Endpoints struct {
	REST string
	WS   string
}

// ResolveEndpoints sandbox 为 true 时使用测试网；显式配置的地址优先。
func ResolveEndpoints(sandbox bool, restOverride, wsOverride string) Endpoints {
	ep := Endpoints{REST: BinanceFuturesRESTEndpoint, WS: BinanceFuturesWSEndpoint}
	if sandbox {
		ep = Endpoints{REST: BinanceTestnetRESTEndpoint, WS: BinanceTestnetWSEndpoint}
	}
	if restOverride != "" {
		ep.REST = restOverride
	}
	if wsOverride != "" {
		ep.WS = wsOverride
	}
	return ep
}
