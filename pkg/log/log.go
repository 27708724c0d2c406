// Package log 提供基于 zap 的全局日志。
package log

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu    sync.RWMutex
	sugar = zap.NewNop().Sugar()
)

// Init 初始化 zap logger。format 为 console 时使用开发配置，否则输出 JSON。
func Init(level, format string) error {
	logLevel := zap.NewAtomicLevel()
	if err := logLevel.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(level)))); err != nil {
		logLevel.SetLevel(zap.InfoLevel)
	}

	var zapConfig zap.Config
	if format == "console" {
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zapConfig = zap.NewProductionConfig()
		zapConfig.Encoding = "json"
	}
	zapConfig.Level = logLevel
	zapConfig.OutputPaths = []string{"stdout"}

	logger, err := zapConfig.Build()
	if err != nil {
		return err
	}

	mu.Lock()
	sugar = logger.Sugar()
	mu.Unlock()
	return nil
}

// Sync 刷新缓冲区，进程退出前调用。
func Sync() {
	_ = current().Sync()
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

// Debugf 记录 debug 级别日志
func Debugf(template string, args ...any) {
	current().Debugf(template, args...)
}

// Infof 记录 info 级别日志
func Infof(template string, args ...any) {
	current().Infof(template, args...)
}

// Warnf 记录 warn 级别日志
func Warnf(template string, args ...any) {
	current().Warnf(template, args...)
}

// Errorf 记录 error 级别日志
func Errorf(template string, args ...any) {
	current().Errorf(template, args...)
}

// Fatalf 记录日志后退出进程
func Fatalf(template string, args ...any) {
	current().Fatalf(template, args...)
}
