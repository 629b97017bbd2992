package market

// BandImbalance 计算 mid 附近价格带内的原始盘口失衡：
// 带宽 [mid·(1−depth), mid·(1+depth)]，
// raw = Σ(价格 ≥ 下界的 bid 数量) − Σ(价格 ≤ 上界的 ask 数量)。
// 任一侧为空时返回 ErrInsufficientDepth。
func BandImbalance(snap BookSnapshot, depth float64) (float64, error) {
	mid, err := snap.Mid()
	if err != nil {
		return 0, err
	}
	lower := mid * (1 - depth)
	upper := mid * (1 + depth)

	bidVolume := 0.0
	for _, lvl := range snap.Bids {
		if lvl.Price >= lower {
			bidVolume += lvl.Qty
		}
	}
	askVolume := 0.0
	for _, lvl := range snap.Asks {
		if lvl.Price <= upper {
			askVolume += lvl.Qty
		}
	}
	return bidVolume - askVolume, nil
}
