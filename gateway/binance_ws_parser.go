package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"obi-market-maker/market"
)

var errNotDepth = errors.New("not a depth message")

// CombinedMessage 对应 binance combined stream 包装。
type CombinedMessage struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// DepthUpdate 提取 <symbol>@depth<N>@100ms 消息的核心字段。
type DepthUpdate struct {
	Event     string           `json:"e"`
	EventTime int64            `json:"E"`
	Symbol    string           `json:"s"`
	Bids      [][2]json.Number `json:"b"`
	Asks      [][2]json.Number `json:"a"`
}

// ParseDepth 解析深度推送（兼容 combined 包装与原始 payload），
// 时间戳取事件时间 E，缺失时使用 fallbackTs。
func ParseDepth(raw []byte, fallbackTs int64) (market.BookSnapshot, error) {
	payload := raw
	var wrapped CombinedMessage
	if err := json.Unmarshal(raw, &wrapped); err == nil && len(wrapped.Data) > 0 {
		payload = wrapped.Data
	}
	var depth DepthUpdate
	if err := json.Unmarshal(payload, &depth); err != nil {
		return market.BookSnapshot{}, fmt.Errorf("decode depth: %w", err)
	}
	if depth.Event == "" && depth.Symbol == "" {
		return market.BookSnapshot{}, errNotDepth
	}
	bids, err := parseLevels(depth.Bids)
	if err != nil {
		return market.BookSnapshot{}, fmt.Errorf("bids: %w", err)
	}
	asks, err := parseLevels(depth.Asks)
	if err != nil {
		return market.BookSnapshot{}, fmt.Errorf("asks: %w", err)
	}
	ts := depth.EventTime
	if ts == 0 {
		ts = fallbackTs
	}
	return market.BookSnapshot{
		Symbol:    strings.ToUpper(depth.Symbol),
		Timestamp: ts,
		Bids:      bids,
		Asks:      asks,
	}, nil
}

func parseLevels(raw [][2]json.Number) ([]market.Level, error) {
	levels := make([]market.Level, 0, len(raw))
	for _, lv := range raw {
		price, err := lv[0].Float64()
		if err != nil {
			return nil, err
		}
		qty, err := lv[1].Float64()
		if err != nil {
			return nil, err
		}
		// 部分深度推送里 qty 为 0 的档位表示空档
		if qty == 0 {
			continue
		}
		levels = append(levels, market.Level{Price: price, Qty: qty})
	}
	return levels, nil
}

// DepthLevels 把任意档数映射到币安支持的 5/10/20 档。
func DepthLevels(limit int) int {
	switch {
	case limit <= 5:
		return 5
	case limit <= 10:
		return 10
	default:
		return 20
	}
}

// DepthStreamName 返回 <symbol>@depth<N>@100ms。
func DepthStreamName(symbol string, limit int) string {
	return fmt.Sprintf("%s@depth%d@100ms", strings.ToLower(symbol), DepthLevels(limit))
}
