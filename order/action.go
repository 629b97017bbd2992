package order

import (
	"fmt"

	"github.com/google/uuid"
)

// Action 对账输出的订单动作：CancelAll、CreateBuy 或 CreateSell。
type Action interface {
	fmt.Stringer
	action()
}

// CancelAll 撤销该交易对全部挂单。
type CancelAll struct {
	Symbol string
}

// CreateBuy 新建买单。
type CreateBuy struct {
	Price float64
	Qty   float64
}

// CreateSell 新建卖单。
type CreateSell struct {
	Price float64
	Qty   float64
}

func (CancelAll) action()  {}
func (CreateBuy) action()  {}
func (CreateSell) action() {}

func (a CancelAll) String() string  { return "CancelAll(" + a.Symbol + ")" }
func (a CreateBuy) String() string  { return fmt.Sprintf("CreateBuy(%g@%g)", a.Qty, a.Price) }
func (a CreateSell) String() string { return fmt.Sprintf("CreateSell(%g@%g)", a.Qty, a.Price) }

// newClientID 生成 newClientOrderId，币安限制 36 字符以内。
var newClientID = func() string {
	return "obi-" + uuid.New().String()[:30]
}

// Plan 把动作序列拆为是否撤单与待下单请求（GTC 限价）。
func Plan(symbol string, actions []Action) (cancel bool, reqs []Request) {
	for _, a := range actions {
		switch v := a.(type) {
		case CancelAll:
			cancel = true
		case CreateBuy:
			reqs = append(reqs, Request{
				ClientID: newClientID(), Symbol: symbol, Side: SideBuy,
				Price: v.Price, Qty: v.Qty, TimeInForce: GTC,
			})
		case CreateSell:
			reqs = append(reqs, Request{
				ClientID: newClientID(), Symbol: symbol, Side: SideSell,
				Price: v.Price, Qty: v.Qty, TimeInForce: GTC,
			})
		}
	}
	return cancel, reqs
}
