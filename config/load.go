package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"obi-market-maker/infrastructure/logger"
	"obi-market-maker/strategy"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Strategy StrategyConfig `yaml:"strategy"`
	Log      logger.Config  `yaml:"log"`
	Server   ServerConfig   `yaml:"server"`
	Stream   StreamConfig   `yaml:"stream"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Alert    AlertConfig    `yaml:"alert"`
}

// StrategyConfig 策略参数，可通过 /config 或文件热更新。
type StrategyConfig struct {
	Symbol              string  `yaml:"symbol" json:"symbol"`
	OrderQty            float64 `yaml:"order_qty" json:"order_qty"`
	C1                  float64 `yaml:"c1" json:"c1"`
	HalfSpread          float64 `yaml:"half_spread" json:"half_spread"`
	Skew                float64 `yaml:"skew" json:"skew"`
	Limit               int     `yaml:"limit" json:"limit"`                   // 订阅深度档位
	Depth               float64 `yaml:"depth" json:"depth"`                   // 统计带宽，相对 mid 的比例
	WindowMinutes       float64 `yaml:"window_minutes" json:"window_minutes"` // 标准化窗口
	APIKey              string  `yaml:"api_key" json:"api_key"`
	Secret              string  `yaml:"secret" json:"secret"`
	PriceDeltaThreshold float64 `yaml:"price_delta_threshold" json:"price_delta_threshold"`
	SandboxMode         bool    `yaml:"sandbox_mode" json:"sandbox_mode"`
	DryRun              bool    `yaml:"dry_run" json:"dry_run"`
	CancelOnExit        *bool   `yaml:"cancel_on_exit,omitempty" json:"cancel_on_exit,omitempty"`
}

type ServerConfig struct {
	MetricsAddr string `yaml:"metrics_addr"`
	APIAddr     string `yaml:"api_addr"`
	APIToken    string `yaml:"api_token"` // 为空时 PUT /config 不鉴权
}

// StreamConfig 行情流重连退避。
type StreamConfig struct {
	BackoffInitial    time.Duration `yaml:"backoff_initial"`
	BackoffMax        time.Duration `yaml:"backoff_max"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
	MaxAttempts       int           `yaml:"max_attempts"` // 0 表示不限
}

type GatewayConfig struct {
	RESTURL        string        `yaml:"rest_url"`
	WSURL          string        `yaml:"ws_url"`
	TestnetRESTURL string        `yaml:"testnet_rest_url"`
	TestnetWSURL   string        `yaml:"testnet_ws_url"`
	RecvWindowMs   int64         `yaml:"recv_window_ms"`
	Rate           float64       `yaml:"rate"`  // 每秒请求数
	Burst          int           `yaml:"burst"` // 令牌桶容量
	Timeout        time.Duration `yaml:"timeout"`
}

// AlertConfig 告警通道；webhook_url 为空时只写日志。
type AlertConfig struct {
	WebhookURL string        `yaml:"webhook_url"`
	Throttle   time.Duration `yaml:"throttle"` // 同一告警的最小间隔
}

// Default 返回带默认值的配置，Load 在其上覆盖文件内容。
func Default() AppConfig {
	return AppConfig{
		Strategy: StrategyConfig{
			Limit:               20,
			WindowMinutes:       10,
			PriceDeltaThreshold: 0.5,
			SandboxMode:         true,
		},
		Log: logger.DefaultConfig(),
		Server: ServerConfig{
			MetricsAddr: ":9100",
			APIAddr:     ":8000",
		},
		Stream: StreamConfig{
			BackoffInitial:    500 * time.Millisecond,
			BackoffMax:        30 * time.Second,
			BackoffMultiplier: 2,
			MaxAttempts:       20,
		},
		Gateway: GatewayConfig{
			RecvWindowMs: 5000,
			Rate:         10,
			Burst:        20,
			Timeout:      10 * time.Second,
		},
		Alert: AlertConfig{
			Throttle: 5 * time.Minute,
		},
	}
}

// Load reads YAML config from path and applies basic validation.
func Load(path string) (AppConfig, error) {
	cfg, err := read(path)
	if err != nil {
		return cfg, err
	}
	return cfg, Validate(cfg)
}

// LoadWithEnvOverrides loads config then overrides sensitive fields from env vars if present.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := read(path)
	if err != nil {
		return cfg, err
	}
	applyEnv(&cfg.Strategy)
	applyServerEnv(&cfg.Server)
	return cfg, Validate(cfg)
}

func read(path string) (AppConfig, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	return cfg, nil
}

func applyEnv(s *StrategyConfig) {
	if v := os.Getenv("MM_API_KEY"); v != "" {
		s.APIKey = v
	}
	if v := os.Getenv("MM_API_SECRET"); v != "" {
		s.Secret = v
	}
}

func applyServerEnv(s *ServerConfig) {
	if v := os.Getenv("MM_API_TOKEN"); v != "" {
		s.APIToken = v
	}
}

// Params 转换为报价参数。
func (s StrategyConfig) Params() strategy.QuoteParams {
	return strategy.QuoteParams{
		OrderQty:            s.OrderQty,
		C1:                  s.C1,
		HalfSpread:          s.HalfSpread,
		Skew:                s.Skew,
		PriceDeltaThreshold: s.PriceDeltaThreshold,
	}
}

// Window 标准化窗口时长，window_minutes × 60000 ms。
func (s StrategyConfig) Window() time.Duration {
	return time.Duration(s.WindowMinutes*60*1000) * time.Millisecond
}

// ShouldCancelOnExit 未配置时默认 true。
func (s StrategyConfig) ShouldCancelOnExit() bool {
	return s.CancelOnExit == nil || *s.CancelOnExit
}

// Redacted 返回隐藏密钥后的副本，用于 API 输出和日志。
func (s StrategyConfig) Redacted() StrategyConfig {
	if s.APIKey != "" {
		s.APIKey = redactedValue
	}
	if s.Secret != "" {
		s.Secret = redactedValue
	}
	return s
}

const redactedValue = "***"
