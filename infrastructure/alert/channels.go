package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogChannel 把告警写入结构化日志
type LogChannel struct {
	logger *zap.Logger
	name   string
}

// NewLogChannel 创建日志告警通道
func NewLogChannel(name string, logger *zap.Logger) *LogChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogChannel{logger: logger.Named("alert"), name: name}
}

// Send 按告警级别映射日志级别
func (c *LogChannel) Send(alert Alert) error {
	fields := make([]zap.Field, 0, len(alert.Fields)+2)
	fields = append(fields, zap.String("level", alert.Level), zap.Time("alert_ts", alert.Timestamp))
	for k, v := range alert.Fields {
		fields = append(fields, zap.Any(k, v))
	}
	lvl := zapcore.WarnLevel
	if alert.Level == LevelCritical {
		lvl = zapcore.ErrorLevel
	}
	if ce := c.logger.Check(lvl, alert.Message); ce != nil {
		ce.Write(fields...)
	}
	return nil
}

// Name 返回通道名称
func (c *LogChannel) Name() string {
	return c.name
}

// WebhookChannel 以 JSON POST 推送告警（Slack/Discord 兼容网关等）
type WebhookChannel struct {
	url     string
	client  *http.Client
	timeout time.Duration
}

// NewWebhookChannel 创建 webhook 通道，默认 10 秒超时
func NewWebhookChannel(url string, timeout time.Duration) *WebhookChannel {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookChannel{
		url:     url,
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

type webhookPayload struct {
	Alert
	// content 字段供 Discord 一类只认文本的 webhook 直接展示
	Content string `json:"content"`
}

// Send 发送告警，非 2xx 视为失败
func (c *WebhookChannel) Send(alert Alert) error {
	body, err := json.Marshal(webhookPayload{
		Alert:   alert,
		Content: fmt.Sprintf("[%s] %s", alert.Level, alert.Message),
	})
	if err != nil {
		return fmt.Errorf("webhook: marshal payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// Name 返回通道名称
func (c *WebhookChannel) Name() string {
	return "webhook"
}
