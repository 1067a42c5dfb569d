package logger

import (
	"log/slog"
	"time"

	slogzap "github.com/samber/slog-zap/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	defaultSampleInitial    = 100
	defaultSampleThereafter = 10
)

// newZapHandler writes JSON through a sampled zap core. Sampling keys on
// level and message, so a storm of identical sync logs from one busy room
// cannot drown the rest.
func newZapHandler(cfg Config) slog.Handler {
	lvl := cfg.level()
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(zapEncoderConfig(cfg)),
		zapcore.AddSync(cfg.Output),
		zap.NewAtomicLevelAt(toZapLevel(lvl)),
	)
	core = zapcore.NewSamplerWithOptions(core, time.Second,
		orDefault(cfg.SampleInitial, defaultSampleInitial),
		orDefault(cfg.SampleThereafter, defaultSampleThereafter))

	opts := []zap.Option{zap.ErrorOutput(zapcore.AddSync(cfg.Output))}
	if cfg.AddSource {
		opts = append(opts, zap.AddCaller(), zap.AddCallerSkip(1))
	}
	z := zap.New(core, opts...).Named(cfg.Service)

	return slogzap.Option{Level: lvl, Logger: z}.NewZapHandler()
}

func zapEncoderConfig(cfg Config) zapcore.EncoderConfig {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "ts"
	enc.MessageKey = "msg"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeLevel = zapcore.CapitalLevelEncoder
	enc.EncodeDuration = zapcore.MillisDurationEncoder
	if cfg.AddSource {
		enc.EncodeCaller = zapcore.ShortCallerEncoder
	} else {
		enc.CallerKey = zapcore.OmitKey
	}
	return enc
}

func toZapLevel(lvl slog.Level) zapcore.Level {
	switch {
	case lvl <= slog.LevelDebug:
		return zapcore.DebugLevel
	case lvl <= slog.LevelInfo:
		return zapcore.InfoLevel
	case lvl <= slog.LevelWarn:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
