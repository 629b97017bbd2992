package market

import (
	"math"

	"github.com/shopspring/decimal"
)

// Metadata 交易对的价格精度信息（来自 exchangeInfo）。
type Metadata struct {
	Symbol         string
	TickSize       float64
	PricePrecision int32
}

// PrecisionFromTick 由 tickSize 推导价格小数位：round(-log10(tick))。
func PrecisionFromTick(tickSize float64) int32 {
	if tickSize <= 0 {
		return 8
	}
	p := int32(math.Round(-math.Log10(tickSize)))
	if p < 0 {
		return 0
	}
	return p
}

// 浮点除法在 99.9/0.1 这类场景会得到 998.9999…，这里统一走十进制运算。
func ticks(price, tickSize float64) decimal.Decimal {
	return decimal.NewFromFloat(price).Div(decimal.NewFromFloat(tickSize))
}

// FloorTick 向下取整到 tick 编号（买单侧）。
func FloorTick(price, tickSize float64) int64 {
	return ticks(price, tickSize).Floor().IntPart()
}

// CeilTick 向上取整到 tick 编号（卖单侧）。
func CeilTick(price, tickSize float64) int64 {
	return ticks(price, tickSize).Ceil().IntPart()
}

// RoundTick 四舍五入到最近的 tick 编号，用于识别已挂订单所在档位。
func RoundTick(price, tickSize float64) int64 {
	return ticks(price, tickSize).Round(0).IntPart()
}

// TickPrice 返回 tick·tickSize 并保留 precision 位小数。
func TickPrice(tick int64, tickSize float64, precision int32) float64 {
	return decimal.NewFromInt(tick).
		Mul(decimal.NewFromFloat(tickSize)).
		Round(precision).
		InexactFloat64()
}
