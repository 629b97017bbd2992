package logger

import (
	"fmt"
	"os"
	"slices"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger 封装zap日志器，提供结构化日志功能
type Logger struct {
	*zap.Logger
	config Config
}

// Config 日志配置
type Config struct {
	Level      string   `yaml:"level"`       // debug, info, warn, error
	Outputs    []string `yaml:"outputs"`     // stdout, file
	OutputFile string   `yaml:"output_file"` // 日志文件路径
	ErrorFile  string   `yaml:"error_file"`  // 错误日志单独文件
	Format     string   `yaml:"format"`      // json 或 console
	MaxSize    int      `yaml:"max_size"`    // 单个日志文件最大MB
	MaxBackups int      `yaml:"max_backups"` // 保留的旧日志文件数
	MaxAge     int      `yaml:"max_age"`     // 保留天数
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Outputs:    []string{"stdout"},
		Format:     "json",
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     7,
	}
}

// New 创建新的Logger实例
func New(cfg Config) (*Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", cfg.Level, err)
	}

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	cores := []zapcore.Core{}

	if slices.Contains(cfg.Outputs, "stdout") {
		var encoder zapcore.Encoder
		if cfg.Format == "console" {
			encoder = zapcore.NewConsoleEncoder(encoderConfig)
		} else {
			encoder = zapcore.NewJSONEncoder(encoderConfig)
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level))
	}

	// 文件输出按大小滚动
	fileEncoder := zapcore.NewJSONEncoder(fileEncoderConfig(encoderConfig))
	if slices.Contains(cfg.Outputs, "file") && cfg.OutputFile != "" {
		cores = append(cores, zapcore.NewCore(fileEncoder, zapcore.AddSync(cfg.rotating(cfg.OutputFile)), level))
	}

	// 错误日志单独文件
	if cfg.ErrorFile != "" {
		cores = append(cores, zapcore.NewCore(fileEncoder, zapcore.AddSync(cfg.rotating(cfg.ErrorFile)), zapcore.ErrorLevel))
	}

	if len(cores) == 0 {
		return nil, fmt.Errorf("no log output configured: outputs=%v", cfg.Outputs)
	}

	core := zapcore.NewTee(cores...)
	return &Logger{
		Logger: zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)),
		config: cfg,
	}, nil
}

// Wrap 用现成的 zap.Logger 构造（测试里配合 zaptest/observer 使用）。
func Wrap(l *zap.Logger) *Logger {
	if l == nil {
		l = zap.NewNop()
	}
	return &Logger{Logger: l, config: DefaultConfig()}
}

// Nop 不输出任何内容。
func Nop() *Logger {
	return Wrap(zap.NewNop())
}

func (c Config) rotating(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    c.MaxSize,
		MaxBackups: c.MaxBackups,
		MaxAge:     c.MaxAge,
		Compress:   true,
	}
}

// 文件里不要颜色码
func fileEncoderConfig(base zapcore.EncoderConfig) zapcore.EncoderConfig {
	base.EncodeLevel = zapcore.LowercaseLevelEncoder
	return base
}

// WithFields 添加字段返回新的logger
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return &Logger{
		Logger: l.Logger.With(toFields(fields)...),
		config: l.config,
	}
}

// With 附加 zap 字段，返回仍带业务方法的 Logger
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{
		Logger: l.Logger.With(fields...),
		config: l.config,
	}
}

// TickEvent 一轮决策的摘要，对应一条 tick 日志。
type TickEvent struct {
	Symbol    string
	Timestamp int64
	Mid       float64
	Raw       float64
	Signal    float64
	Inventory float64
	Bid       float64
	Ask       float64
	BuyQty    float64
	SellQty   float64
	Actions   int
	Latency   time.Duration
}

// LogTick 记录每轮决策结果。
func (l *Logger) LogTick(ev TickEvent) {
	l.Info("tick",
		zap.String("symbol", ev.Symbol),
		zap.Int64("book_ts", ev.Timestamp),
		zap.Float64("mid", ev.Mid),
		zap.Float64("raw", ev.Raw),
		zap.Float64("signal", ev.Signal),
		zap.Float64("inventory", ev.Inventory),
		zap.Float64("bid", ev.Bid),
		zap.Float64("ask", ev.Ask),
		zap.Float64("buy_qty", ev.BuyQty),
		zap.Float64("sell_qty", ev.SellQty),
		zap.Int("actions", ev.Actions),
		zap.Duration("latency", ev.Latency),
	)
}

// LogOrder 记录订单相关事件
func (l *Logger) LogOrder(event string, orderID string, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["event"] = event
	fields["order_id"] = orderID
	fields["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	l.Info("order_event", toFields(fields)...)
}

// LogStream 记录行情流状态切换
func (l *Logger) LogStream(from, to string, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["from"] = from
	fields["to"] = to
	l.Info("stream_state", toFields(fields)...)
}

// LogError 记录错误并附带上下文
func (l *Logger) LogError(err error, context map[string]interface{}) {
	if context == nil {
		context = make(map[string]interface{})
	}
	if err != nil {
		context["error"] = err.Error()
	}
	context["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	l.Error("error_event", toFields(context)...)
}

// Close 关闭日志器
func (l *Logger) Close() error {
	return l.Sync()
}

func toFields(m map[string]interface{}) []zap.Field {
	out := make([]zap.Field, 0, len(m))
	for k, v := range m {
		out = append(out, zap.Any(k, v))
	}
	return out
}
