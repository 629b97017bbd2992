package market

import (
	"errors"
	"fmt"
)

// ErrInsufficientDepth 任一侧盘口为空时返回，本 tick 跳过。
var ErrInsufficientDepth = errors.New("insufficient book depth")

// Level 单个价位档。
type Level struct {
	Price float64
	Qty   float64
}

// BookSnapshot 一次深度推送的快照：bids 按价格降序，asks 按价格升序。
type BookSnapshot struct {
	Symbol    string
	Timestamp int64 // 毫秒
	Bids      []Level
	Asks      []Level
}

// Validate 检查两侧都非空。
func (s BookSnapshot) Validate() error {
	if len(s.Bids) == 0 || len(s.Asks) == 0 {
		return fmt.Errorf("%w: bids=%d asks=%d", ErrInsufficientDepth, len(s.Bids), len(s.Asks))
	}
	return nil
}

// BestBid 返回买一价；空盘口时为 0。
func (s BookSnapshot) BestBid() float64 {
	if len(s.Bids) == 0 {
		return 0
	}
	return s.Bids[0].Price
}

// BestAsk 返回卖一价；空盘口时为 0。
func (s BookSnapshot) BestAsk() float64 {
	if len(s.Asks) == 0 {
		return 0
	}
	return s.Asks[0].Price
}

// Mid 返回中间价，缺任一侧时返回 ErrInsufficientDepth。
func (s BookSnapshot) Mid() (float64, error) {
	if err := s.Validate(); err != nil {
		return 0, err
	}
	return (s.BestBid() + s.BestAsk()) / 2, nil
}
