// Package logger is the ledger's structured logger: a zap SugaredLogger that
// stamps every entry with the tenant, user and trace ids found in the context.
package logger

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	appctx "foodledger/internal/core/context"
)

// Logger is a zap.SugaredLogger bound to request values.
type Logger struct {
	*zap.SugaredLogger
}

// Config selects level, encoder and outputs. An unknown Level means info.
type Config struct {
	Level       string
	Development bool // console encoder instead of JSON
	Service     string
	OutputPaths []string
}

// New builds a Logger. Production output is JSON with ISO-8601 "ts".
func New(cfg Config) (*Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zc.EncoderConfig.TimeKey = "ts"
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	if len(cfg.OutputPaths) > 0 {
		zc.OutputPaths = cfg.OutputPaths
	}

	z, err := zc.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	if cfg.Service != "" {
		z = z.With(zap.String("service", cfg.Service))
	}
	return &Logger{z.Sugar()}, nil
}

func NewNop() *Logger {
	return &Logger{zap.NewNop().Sugar()}
}

var (
	fallbackOnce sync.Once
	fallback     *Logger
)

// fallbackLogger serves contexts that never got a logger attached.
func fallbackLogger() *Logger {
	fallbackOnce.Do(func() {
		zc := zap.NewProductionConfig()
		zc.OutputPaths = []string{"stdout"}
		z, err := zc.Build(zap.AddCallerSkip(1))
		if err != nil {
			z = zap.NewNop()
		}
		fallback = &Logger{z.Sugar()}
	})
	return fallback
}

// WithContext adds the trace ids, tenant_id and user_id carried by ctx.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	sugar := l.SugaredLogger
	if t := appctx.GetTrace(ctx); t != nil {
		sugar = sugar.With(t.LogFields()...)
	}
	if u := appctx.GetUser(ctx); u != nil {
		sugar = sugar.With("tenant_id", u.TenantID, "user_id", u.UserID)
	}
	return &Logger{sugar}
}

// WithComponent tags entries of a background loop, e.g. "worker".
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{l.SugaredLogger.With("component", name)}
}

type ctxKey struct{}

// WithLogger attaches l to ctx for the package-level helpers below.
func WithLogger(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

func fromContext(ctx context.Context) *Logger {
	l, ok := ctx.Value(ctxKey{}).(*Logger)
	if !ok {
		l = fallbackLogger()
	}
	return l.WithContext(ctx)
}

func Debug(ctx context.Context, msg string, kv ...any) { fromContext(ctx).Debugw(msg, kv...) }

func Info(ctx context.Context, msg string, kv ...any) { fromContext(ctx).Infow(msg, kv...) }

func Warn(ctx context.Context, msg string, kv ...any) { fromContext(ctx).Warnw(msg, kv...) }

func Error(ctx context.Context, msg string, kv ...any) { fromContext(ctx).Errorw(msg, kv...) }
