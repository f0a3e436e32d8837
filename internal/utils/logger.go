package utils

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"skoropad/internal/config"
)

// Logger 日志接口
//
// fields 为成对的 key, value；也兼容单个 map[string]interface{}。
type Logger interface {
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Debug(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	Close() error
}

// AppLogger 基于 zap 的应用日志器
type AppLogger struct {
	sugar *zap.SugaredLogger
	base  *zap.Logger
}

// NewLogger 创建新的日志器
func NewLogger(cfg *config.LogConfig) (*AppLogger, error) {
	level := zapcore.InfoLevel
	if err := level.UnmarshalText([]byte(strings.ToLower(cfg.Level))); err != nil {
		level = zapcore.InfoLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.MessageKey = "message"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if cfg.Format == "json" {
		encoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	var sink zapcore.WriteSyncer
	switch cfg.Output {
	case "file":
		path := cfg.FilePath
		if path == "" {
			path = "log/app.log"
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, err
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return nil, err
		}
		sink = zapcore.AddSync(f)
	default:
		sink = zapcore.Lock(os.Stdout)
	}

	core := zapcore.NewCore(encoder, sink, level)
	base := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1), zap.AddStacktrace(zapcore.ErrorLevel))
	return &AppLogger{sugar: base.Sugar(), base: base}, nil
}

// NewNopLogger 丢弃所有输出，测试使用
func NewNopLogger() *AppLogger {
	base := zap.NewNop()
	return &AppLogger{sugar: base.Sugar(), base: base}
}

// Info 记录信息日志
func (l *AppLogger) Info(msg string, fields ...interface{}) {
	l.sugar.Infow(msg, normalizeFields(fields)...)
}

// Warn 记录警告日志
func (l *AppLogger) Warn(msg string, fields ...interface{}) {
	l.sugar.Warnw(msg, normalizeFields(fields)...)
}

// Error 记录错误日志
func (l *AppLogger) Error(msg string, fields ...interface{}) {
	l.sugar.Errorw(msg, normalizeFields(fields)...)
}

// Debug 记录调试日志
func (l *AppLogger) Debug(msg string, fields ...interface{}) {
	l.sugar.Debugw(msg, normalizeFields(fields)...)
}

// Fatal 记录致命错误日志并退出
func (l *AppLogger) Fatal(msg string, fields ...interface{}) {
	l.sugar.Fatalw(msg, normalizeFields(fields)...)
}

// Close 刷新缓冲
func (l *AppLogger) Close() error {
	err := l.base.Sync()
	// stdout 上的 Sync 在部分平台返回 EINVAL，忽略
	if err != nil && strings.Contains(err.Error(), "invalid argument") {
		return nil
	}
	return err
}

// normalizeFields 把单个 map 展开成 key, value 对
func normalizeFields(fields []interface{}) []interface{} {
	if len(fields) != 1 {
		return fields
	}
	m, ok := fields[0].(map[string]interface{})
	if !ok {
		return fields
	}
	out := make([]interface{}, 0, len(m)*2)
	for k, v := range m {
		out = append(out, k, v)
	}
	return out
}

// 全局日志器实例
var (
	globalLogger Logger
	loggerMu     sync.Mutex
)

// InitLogger 初始化全局日志器
func InitLogger(cfg *config.LogConfig) error {
	logger, err := NewLogger(cfg)
	if err != nil {
		return err
	}
	loggerMu.Lock()
	globalLogger = logger
	loggerMu.Unlock()
	return nil
}

// GetLogger 获取全局日志器
func GetLogger() Logger {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if globalLogger == nil {
		// 未初始化时使用默认配置输出到标准输出
		logger, err := NewLogger(&config.LogConfig{Level: "info", Format: "console", Output: "stdout"})
		if err != nil {
			globalLogger = NewNopLogger()
		} else {
			globalLogger = logger
		}
	}
	return globalLogger
}

// CloseLogger 优雅关闭全局日志器
func CloseLogger() error {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if globalLogger != nil {
		return globalLogger.Close()
	}
	return nil
}
