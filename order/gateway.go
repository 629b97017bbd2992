package order

import (
	"context"

	"obi-market-maker/market"
)

// Gateway 交易所下单与查询接口。
type Gateway interface {
	// Inventory 返回带符号的净持仓（正=多，负=空）。
	Inventory(ctx context.Context, symbol string) (float64, error)
	RestingOrders(ctx context.Context, symbol string) ([]RestingOrder, error)
	CancelAll(ctx context.Context, symbol string) error
	// CreateOrders 批量下单，返回交易所订单号。
	CreateOrders(ctx context.Context, reqs []Request) ([]string, error)
	MarketMetadata(ctx context.Context, symbol string) (market.Metadata, error)
}
