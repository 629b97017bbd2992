// Package alpha 维护滑动时间窗口内的盘口失衡序列，并输出标准化 (z-score) 信号。
package alpha

import (
	"errors"
	"math"
	"time"

	"obi-market-maker/market"
)

// Observation 一次 Observe 的完整结果，供日志与监控使用。
type Observation struct {
	Timestamp int64
	Raw       float64
	Mean      float64
	Std       float64
	Signal    float64
	Samples   int
}

// Config 信号参数。
type Config struct {
	Depth  float64       // 价格带宽比例，如 0.025
	Window time.Duration // 窗口长度
}

// Engine 计算 OBI 信号。非并发安全，只能由行情协程调用。
type Engine struct {
	depth  float64
	window *Window
}

// NewEngine 创建信号引擎。
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Depth <= 0 {
		return nil, errors.New("depth must be > 0")
	}
	if cfg.Window <= 0 {
		return nil, errors.New("window must be > 0")
	}
	return &Engine{
		depth:  cfg.Depth,
		window: NewWindow(cfg.Window.Milliseconds()),
	}, nil
}

// Observe 处理一次快照：清理过期样本、计算原始失衡、入窗口，再基于窗口统计返回信号。
// 任一侧盘口为空时返回 market.ErrInsufficientDepth，窗口不变。
func (e *Engine) Observe(snap market.BookSnapshot) (Observation, error) {
	raw, err := market.BandImbalance(snap, e.depth)
	if err != nil {
		return Observation{}, err
	}
	e.window.Push(Sample{Timestamp: snap.Timestamp, Raw: raw})

	mean, std := e.window.Stats()
	obs := Observation{
		Timestamp: snap.Timestamp,
		Raw:       raw,
		Mean:      mean,
		Std:       std,
		Samples:   e.window.Len(),
	}
	if std == 0 || math.IsNaN(std) {
		return obs, nil
	}
	obs.Signal = (raw - mean) / std
	return obs, nil
}

// Depth 当前带宽参数。
func (e *Engine) Depth() float64 {
	return e.depth
}

// SetDepth 热更新带宽，不影响已有样本。
func (e *Engine) SetDepth(depth float64) {
	e.depth = depth
}

// Window 当前窗口长度。
func (e *Engine) Window() time.Duration {
	return time.Duration(e.window.Duration()) * time.Millisecond
}

// SetWindow 热更新窗口长度，样本保留。
func (e *Engine) SetWindow(d time.Duration) {
	e.window.SetDuration(d.Milliseconds())
}

// Len 窗口内样本数。
func (e *Engine) Len() int {
	return e.window.Len()
}
