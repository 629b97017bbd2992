package order

import (
	"errors"
	"strings"
)

// ErrStaleResolution 查询挂单失败，本 tick 按"无已知挂单"继续对账。
var ErrStaleResolution = errors.New("resting orders unresolved")

// Side 买卖方向。
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ParseSide 兼容大小写，未知方向返回空串。
func ParseSide(s string) Side {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY":
		return SideBuy
	case "SELL":
		return SideSell
	default:
		return ""
	}
}

// TimeInForce 订单有效方式。
type TimeInForce string

const GTC TimeInForce = "GTC"

// RestingOrder 交易所上的当前挂单快照，每个 tick 重新获取。
type RestingOrder struct {
	ID    string
	Side  Side
	Price float64
	Tick  int64 // round(price/tickSize)
	Qty   float64
}

// Request 发往网关的限价单请求。
type Request struct {
	ClientID    string
	Symbol      string
	Side        Side
	Price       float64
	Qty         float64
	TimeInForce TimeInForce
}
