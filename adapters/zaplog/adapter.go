// Package zaplog backs the go-logger interfaces with a zap logger.
package zaplog

import (
	"context"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	glog "github.com/goliatone/go-logger/glog"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Level       string `yaml:"level" json:"level"`
	Development bool   `yaml:"development" json:"development"`
	Encoding    string `yaml:"encoding" json:"encoding"`
}

// New builds a zap logger from cfg. Unknown levels fall back to info.
func New(cfg Config) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zcfg = zap.NewProductionConfig()
		zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	if encoding := strings.TrimSpace(cfg.Encoding); encoding != "" {
		zcfg.Encoding = encoding
	}

	var level zapcore.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(cfg.Level))); err != nil || strings.TrimSpace(cfg.Level) == "" {
		level = zapcore.InfoLevel
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.OutputPaths = []string{"stderr"}
	zcfg.ErrorOutputPaths = []string{"stderr"}
	return zcfg.Build()
}

// Provider hands out named zap backed loggers.
type Provider struct {
	base *zap.Logger
}

func NewProvider(base *zap.Logger) *Provider {
	if base == nil {
		base = zap.NewNop()
	}
	return &Provider{base: base}
}

func (p *Provider) GetLogger(name string) glog.Logger {
	if p == nil {
		return glog.Nop()
	}
	logger := p.base
	if name = strings.TrimSpace(name); name != "" {
		logger = logger.Named(name)
	}
	return &Logger{sugar: logger.Sugar()}
}

// Sync flushes buffered entries.
func (p *Provider) Sync() error {
	if p == nil {
		return nil
	}
	return p.base.Sync()
}

// Logger adapts a zap sugared logger. Trace maps to debug.
type Logger struct {
	sugar *zap.SugaredLogger
}

func NewLogger(base *zap.Logger) *Logger {
	if base == nil {
		base = zap.NewNop()
	}
	return &Logger{sugar: base.Sugar()}
}

func (l *Logger) Trace(msg string, args ...any) { l.sugar.Debugw(msg, args...) }
func (l *Logger) Debug(msg string, args ...any) { l.sugar.Debugw(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.sugar.Infow(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.sugar.Warnw(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.sugar.Errorw(msg, args...) }
func (l *Logger) Fatal(msg string, args ...any) { l.sugar.Fatalw(msg, args...) }

// WithContext attaches the request id set by the chi RequestID middleware.
func (l *Logger) WithContext(ctx context.Context) glog.Logger {
	if ctx == nil {
		return l
	}
	if requestID := middleware.GetReqID(ctx); requestID != "" {
		return &Logger{sugar: l.sugar.With("request_id", requestID)}
	}
	return l
}

var (
	_ glog.Logger         = (*Logger)(nil)
	_ glog.LoggerProvider = (*Provider)(nil)
)
