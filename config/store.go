package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// ErrPersist 参数已生效但写回文件失败。
var ErrPersist = errors.New("persist config")

// Store 保存当前策略参数。读取走 atomic 快照，写入串行化后整体替换，
// 读者永远看不到写了一半的参数组。
type Store struct {
	path string

	cur atomic.Pointer[StrategyConfig]

	mu   sync.Mutex // 串行化 Update/Save
	base AppConfig  // Save 时写回的其余配置段
	// 文件里原本的密钥；环境变量覆盖的值不落盘
	fileKey    string
	fileSecret string
	fileToken  string
}

// NewStore 用已加载的配置构造；path 为空时 Save 不落盘。
func NewStore(cfg AppConfig, path string) *Store {
	s := &Store{
		path:       path,
		base:       cfg,
		fileKey:    cfg.Strategy.APIKey,
		fileSecret: cfg.Strategy.Secret,
		fileToken:  cfg.Server.APIToken,
	}
	strat := cfg.Strategy
	s.cur.Store(&strat)
	return s
}

// OpenStore 读取文件，应用环境变量覆盖并校验。
func OpenStore(path string) (*Store, AppConfig, error) {
	cfg, err := read(path)
	if err != nil {
		return nil, cfg, err
	}
	s := &Store{
		path:       path,
		fileKey:    cfg.Strategy.APIKey,
		fileSecret: cfg.Strategy.Secret,
		fileToken:  cfg.Server.APIToken,
	}
	applyEnv(&cfg.Strategy)
	applyServerEnv(&cfg.Server)
	if err := Validate(cfg); err != nil {
		return nil, cfg, err
	}
	s.base = cfg
	strat := cfg.Strategy
	s.cur.Store(&strat)
	return s, cfg, nil
}

// Path 配置文件路径。
func (s *Store) Path() string { return s.path }

// Snapshot 返回当前参数的副本。
func (s *Store) Snapshot() StrategyConfig {
	return *s.cur.Load()
}

// Update 校验后替换当前参数。API 传回的脱敏密钥（"***" 或空）沿用旧值。
func (s *Store) Update(next StrategyConfig) (StrategyConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.swapLocked(next)
}

func (s *Store) swapLocked(next StrategyConfig) (StrategyConfig, error) {
	prev := *s.cur.Load()
	if next.APIKey == "" || next.APIKey == redactedValue {
		next.APIKey = prev.APIKey
	}
	if next.Secret == "" || next.Secret == redactedValue {
		next.Secret = prev.Secret
	}
	if err := ValidateStrategy(next); err != nil {
		return prev, err
	}
	s.cur.Store(&next)
	return next, nil
}

// UpdateAndSave 替换参数并写回文件。
func (s *Store) UpdateAndSave(next StrategyConfig) (StrategyConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	applied, err := s.swapLocked(next)
	if err != nil {
		return applied, err
	}
	if err := s.saveLocked(); err != nil {
		return applied, fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return applied, nil
}

// Reload 从文件重新读取策略段，供 Watcher 调用。
func (s *Store) Reload() (StrategyConfig, error) {
	if s.path == "" {
		return s.Snapshot(), nil
	}
	cfg, err := read(s.path)
	if err != nil {
		return s.Snapshot(), err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fileKey, s.fileSecret = cfg.Strategy.APIKey, cfg.Strategy.Secret
	applyEnv(&cfg.Strategy)
	return s.swapLocked(cfg.Strategy)
}

// Save 把当前参数写回文件。
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	if s.path == "" {
		return nil
	}
	out := s.base
	out.Strategy = *s.cur.Load()
	if os.Getenv("MM_API_KEY") != "" {
		out.Strategy.APIKey = s.fileKey
	}
	if os.Getenv("MM_API_SECRET") != "" {
		out.Strategy.Secret = s.fileSecret
	}
	if os.Getenv("MM_API_TOKEN") != "" {
		out.Server.APIToken = s.fileToken
	}
	raw, err := yaml.Marshal(out)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	// 先写临时文件再 rename，避免 Watcher 读到半个文件
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".config-*.yaml")
	if err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
