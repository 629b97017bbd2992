package strategy

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"
)

// 币安 U 本位合约默认费率
const (
	DefaultMakerFee = 0.0002
	DefaultTakerFee = 0.0005
)

// ParamInput 参数推算所需的行情与费率。
type ParamInput struct {
	BestBid       float64
	BestAsk       float64
	TickSize      float64
	MakerFee      float64
	TakerFee      float64
	OrderQty      float64
	AlphaStd      float64 // 信号标准差估计
	EpsilonProfit float64 // 每轮期望最小利润（报价货币）
}

// ParamSuggestion 推算出的建议参数。
type ParamSuggestion struct {
	OrderQty   float64 `json:"order_qty"`
	HalfSpread float64 `json:"half_spread"`
	C1         float64 `json:"c1"`
	Skew       float64 `json:"skew"`
}

// SuggestParams 根据费率和下单量推算 half_spread/c1/skew：
//
//	half_spread = ceil((mid·(maker+taker)/2 + ε/(2·qty)) / tick)·tick
//	c1          = half_spread·(1 + 1/alpha_std)
//	skew        = half_spread·max(0.04, 0.1 − 0.06·log10(qty·mid))
func SuggestParams(in ParamInput) (ParamSuggestion, error) {
	if in.TickSize <= 0 {
		return ParamSuggestion{}, ErrInvalidMarketMetadata
	}
	if in.OrderQty <= 0 {
		return ParamSuggestion{}, errors.New("order_qty must be > 0")
	}
	if in.AlphaStd <= 0 {
		return ParamSuggestion{}, errors.New("alpha_std must be > 0")
	}
	if in.BestBid <= 0 || in.BestAsk <= 0 {
		return ParamSuggestion{}, errors.New("best bid/ask must be > 0")
	}
	mid := (in.BestBid + in.BestAsk) / 2

	minHalf := mid*(in.MakerFee+in.TakerFee)/2 + in.EpsilonProfit/(2*in.OrderQty)
	tick := decimal.NewFromFloat(in.TickSize)
	halfSpread := decimal.NewFromFloat(minHalf).Div(tick).Ceil().Mul(tick).InexactFloat64()

	c1 := halfSpread * (1 + 1/in.AlphaStd)
	ratio := math.Max(0.04, 0.1-0.06*math.Log10(in.OrderQty*mid))
	skew := halfSpread * ratio

	return ParamSuggestion{
		OrderQty:   in.OrderQty,
		HalfSpread: halfSpread,
		C1:         round2(c1),
		Skew:       round2(skew),
	}, nil
}

func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
