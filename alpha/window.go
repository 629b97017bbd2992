package alpha

import "math"

// Sample 一条原始失衡记录。
type Sample struct {
	Timestamp int64 // 毫秒
	Raw       float64
}

// Window 按时间长度约束的 FIFO 队列。
// 每次插入前清除 ts < latest−duration 的样本，保留的样本均满足 ts ≥ latest−duration。
type Window struct {
	durationMs int64
	samples    []Sample
}

// NewWindow 创建窗口，duration 单位毫秒。
func NewWindow(durationMs int64) *Window {
	return &Window{durationMs: durationMs}
}

// Duration 返回窗口长度（毫秒）。
func (w *Window) Duration() int64 {
	return w.durationMs
}

// SetDuration 修改窗口长度，已有样本保留到下一次插入时再按新长度清理。
func (w *Window) SetDuration(durationMs int64) {
	w.durationMs = durationMs
}

// Push 先按 s.Timestamp 清理过期样本，再追加。
func (w *Window) Push(s Sample) {
	w.purge(s.Timestamp - w.durationMs)
	w.samples = append(w.samples, s)
}

func (w *Window) purge(cutoff int64) {
	i := 0
	for i < len(w.samples) && w.samples[i].Timestamp < cutoff {
		i++
	}
	if i == 0 {
		return
	}
	// 复用底层数组，避免长时间运行后切片头部无限增长
	n := copy(w.samples, w.samples[i:])
	w.samples = w.samples[:n]
}

// Len 当前样本数。
func (w *Window) Len() int {
	return len(w.samples)
}

// Stats 返回均值和总体标准差；空窗口时两者均为 NaN。
func (w *Window) Stats() (mean, std float64) {
	n := len(w.samples)
	if n == 0 {
		return math.NaN(), math.NaN()
	}
	sum := 0.0
	for _, s := range w.samples {
		sum += s.Raw
	}
	mean = sum / float64(n)
	variance := 0.0
	for _, s := range w.samples {
		d := s.Raw - mean
		variance += d * d
	}
	std = math.Sqrt(variance / float64(n))
	return mean, std
}
