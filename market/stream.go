package market

import "context"

// Stream 深度行情源。
type Stream interface {
	// Subscribe 订阅 symbol 的前 depthLimit 档深度。
	Subscribe(ctx context.Context, symbol string, depthLimit int) (Subscription, error)
}

// Subscription 一次订阅。失败后由调用方重新 Subscribe。
type Subscription interface {
	// Next 阻塞直到下一份快照到达。
	Next(ctx context.Context) (BookSnapshot, error)
	Close() error
}
