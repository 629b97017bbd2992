package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"obi-market-maker/market"
)

// DepthStream 通过 combined stream 订阅币安合约部分深度，实现 market.Stream。
type DepthStream struct {
	BaseEndpoint string // 默认 wss://fstream.binance.com
	Dialer       *websocket.Dialer
	ReadTimeout  time.Duration
	PingInterval time.Duration
	Logger       *zap.Logger // 记录被跳过的坏消息，为空时不输出
}

// NewDepthStream 创建深度行情源。
func NewDepthStream(endpoint string) *DepthStream {
	if endpoint == "" {
		endpoint = BinanceFuturesWSEndpoint
	}
	return &DepthStream{
		BaseEndpoint: endpoint,
		Dialer:       websocket.DefaultDialer,
		ReadTimeout:  30 * time.Second,
		PingInterval: 15 * time.Second,
		Logger:       zap.NewNop(),
	}
}

// StreamURL 构建 combined stream 地址。
func (s *DepthStream) StreamURL(symbol string, limit int) (string, error) {
	u, err := url.Parse(strings.TrimRight(s.BaseEndpoint, "/"))
	if err != nil {
		return "", fmt.Errorf("parse ws endpoint: %w", err)
	}
	u.Path = "/stream"
	q := u.Query()
	q.Set("streams", DepthStreamName(symbol, limit))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Subscribe 拨号并返回订阅；拨号失败为 ConnectivityError。
func (s *DepthStream) Subscribe(ctx context.Context, symbol string, depthLimit int) (market.Subscription, error) {
	if symbol == "" {
		return nil, errors.New("symbol required")
	}
	endpoint, err := s.StreamURL(symbol, depthLimit)
	if err != nil {
		return nil, err
	}
	dialer := s.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, connErr("ws dial", err)
	}

	readTimeout := s.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 30 * time.Second
	}
	log := s.Logger
	if log == nil {
		log = zap.NewNop()
	}
	sub := &depthSubscription{
		conn:        conn,
		symbol:      strings.ToUpper(symbol),
		readTimeout: readTimeout,
		logger:      log.With(zap.String("symbol", strings.ToUpper(symbol))),
		done:        make(chan struct{}),
	}
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})
	if s.PingInterval > 0 {
		go sub.pingLoop(s.PingInterval)
	}
	return sub, nil
}

type depthSubscription struct {
	conn        *websocket.Conn
	symbol      string
	readTimeout time.Duration
	logger      *zap.Logger

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

// Next 读取下一条深度推送；ctx 取消时关闭连接以打断阻塞读。
func (d *depthSubscription) Next(ctx context.Context) (market.BookSnapshot, error) {
	stop := context.AfterFunc(ctx, func() { _ = d.conn.Close() })
	defer stop()

	for {
		_, msg, err := d.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return market.BookSnapshot{}, ctx.Err()
			}
			return market.BookSnapshot{}, connErr("ws read", err)
		}
		_ = d.conn.SetReadDeadline(time.Now().Add(d.readTimeout))

		snap, err := ParseDepth(msg, time.Now().UnixMilli())
		if errors.Is(err, errNotDepth) {
			// 订阅确认等非深度消息
			continue
		}
		if err != nil {
			d.logger.Warn("drop undecodable depth message", zap.Error(err), zap.Int("bytes", len(msg)))
			continue
		}
		if snap.Symbol == "" {
			snap.Symbol = d.symbol
		}
		return snap, nil
	}
}

func (d *depthSubscription) pingLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-d.done:
			return
		case <-ticker.C:
			d.writeMu.Lock()
			err := d.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			d.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// Close 关闭连接，可重复调用。
func (d *depthSubscription) Close() error {
	var err error
	d.closeOnce.Do(func() {
		close(d.done)
		d.writeMu.Lock()
		_ = d.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		d.writeMu.Unlock()
		err = d.conn.Close()
		if errors.Is(err, net.ErrClosed) {
			err = nil
		}
	})
	return err
}
