package order

import "obi-market-maker/strategy"

// TickSets 按方向汇总已挂订单所在的 tick。
func TickSets(resting []RestingOrder) (buys, sells map[int64]struct{}) {
	buys = make(map[int64]struct{}, len(resting))
	sells = make(map[int64]struct{}, len(resting))
	for _, o := range resting {
		switch o.Side {
		case SideBuy:
			buys[o.Tick] = struct{}{}
		case SideSell:
			sells[o.Tick] = struct{}{}
		}
	}
	return buys, sells
}

// Reconcile 对比目标报价与当前挂单，输出最少动作。
//
// 目标 tick 已有同向挂单时不重复下单；只要有任一侧需要新建，
// 先 CancelAll 全量撤单再下新单（全量刷新）。两侧都已在位则不输出任何动作。
func Reconcile(symbol string, target strategy.QuoteTarget, resting []RestingOrder) []Action {
	buys, sells := TickSets(resting)

	var creates []Action
	if _, ok := buys[target.BidTick]; !ok && target.BuyQty > 0 {
		creates = append(creates, CreateBuy{Price: target.BidPrice, Qty: target.BuyQty})
	}
	if _, ok := sells[target.AskTick]; !ok && target.SellQty > 0 {
		creates = append(creates, CreateSell{Price: target.AskPrice, Qty: target.SellQty})
	}
	if len(creates) == 0 {
		return nil
	}
	return append([]Action{CancelAll{Symbol: symbol}}, creates...)
}

// Resting 把下单请求还原为挂单视图，供模拟网关与测试使用。
func Resting(id string, req Request, tick int64) RestingOrder {
	return RestingOrder{ID: id, Side: req.Side, Price: req.Price, Tick: tick, Qty: req.Qty}
}
