package config

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalid 用于参数验证错误。
type ErrInvalid string

func (e ErrInvalid) Error() string { return string(e) }

// Validate ensures required fields are present.
func Validate(cfg AppConfig) error {
	if err := ValidateStrategy(cfg.Strategy); err != nil {
		return err
	}
	if cfg.Stream.BackoffInitial <= 0 || cfg.Stream.BackoffMax < cfg.Stream.BackoffInitial {
		return ErrInvalid("stream.backoff_initial must be > 0 and <= backoff_max")
	}
	if cfg.Stream.BackoffMultiplier < 1 {
		return ErrInvalid("stream.backoff_multiplier must be >= 1")
	}
	if cfg.Stream.MaxAttempts < 0 {
		return ErrInvalid("stream.max_attempts must be >= 0")
	}
	if cfg.Gateway.Rate <= 0 || cfg.Gateway.Burst <= 0 {
		return ErrInvalid("gateway.rate/burst must be > 0")
	}
	if cfg.Gateway.RecvWindowMs <= 0 {
		return ErrInvalid("gateway.recv_window_ms must be > 0")
	}
	if cfg.Alert.Throttle < 0 {
		return ErrInvalid("alert.throttle must be >= 0")
	}
	return nil
}

// ValidateStrategy 校验策略参数；PUT /config 与热更新都走这里。
func ValidateStrategy(s StrategyConfig) error {
	if s.Symbol == "" {
		return errors.New("strategy.symbol is required")
	}
	for name, v := range map[string]float64{
		"order_qty":             s.OrderQty,
		"c1":                    s.C1,
		"half_spread":           s.HalfSpread,
		"skew":                  s.Skew,
		"depth":                 s.Depth,
		"window_minutes":        s.WindowMinutes,
		"price_delta_threshold": s.PriceDeltaThreshold,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("strategy.%s must be finite", name)
		}
	}
	if s.OrderQty < 0 {
		return ErrInvalid("strategy.order_qty must be >= 0")
	}
	if s.HalfSpread < 0 {
		return ErrInvalid("strategy.half_spread must be >= 0")
	}
	if s.Depth <= 0 {
		return ErrInvalid("strategy.depth must be > 0")
	}
	if s.WindowMinutes <= 0 || s.Window() <= 0 {
		return ErrInvalid("strategy.window_minutes must be > 0")
	}
	if s.Limit <= 0 {
		return ErrInvalid("strategy.limit must be > 0")
	}
	if s.PriceDeltaThreshold < 0 {
		return ErrInvalid("strategy.price_delta_threshold must be >= 0")
	}
	if !s.DryRun && (s.APIKey == "" || s.Secret == "") {
		return errors.New("strategy.api_key/secret is required (or env overrides, or dry_run)")
	}
	return nil
}
