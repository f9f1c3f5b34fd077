// internal/utils/logger/logger.go
package logger

import (
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/rovshanmuradov/launch-sniper/internal/domain"
)

// Logger wraps zap.Logger with helpers for sniper-specific context.
type Logger struct {
	*zap.Logger
	config *Config
}

// New builds a logger that writes human-readable lines to stdout and
// JSON lines to a rotated file.
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	rotator := &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	if cfg.Development {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderConfig.EncodeDuration = zapcore.StringDurationEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	level := zapcore.InfoLevel
	if cfg.Development {
		level = zapcore.DebugLevel
	}

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(os.Stdout), level),
	}
	if cfg.LogFile != "" {
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(rotator), level))
	}

	return &Logger{
		Logger: zap.New(zapcore.NewTee(cores...),
			zap.AddCaller(),
			zap.AddStacktrace(zapcore.ErrorLevel),
		),
		config: cfg,
	}, nil
}

// WithOperation tags log lines with an operation name and a fresh correlation id.
func (l *Logger) WithOperation(operation string) *zap.Logger {
	return l.With(
		zap.String("operation", operation),
		zap.String("correlation_id", uuid.New().String()),
		zap.Time("start_time", time.Now().UTC()),
	)
}

// WithComponent adds the component name.
func (l *Logger) WithComponent(component string) *zap.Logger {
	return l.With(zap.String("component", component))
}

// WithUser adds the owning user.
func (l *Logger) WithUser(userID string) *zap.Logger {
	return l.With(zap.String("user_id", userID))
}

// WithTarget logs the identity and parameters of a snipe target.
func (l *Logger) WithTarget(t *domain.Target) *zap.Logger {
	return l.With(TargetFields(t)...)
}

// TargetFields returns the fields WithTarget attaches, for use with plain zap loggers.
func TargetFields(t *domain.Target) []zap.Field {
	return []zap.Field{
		zap.String("target_id", t.ID),
		zap.String("user_id", t.UserID),
		zap.String("asset", t.AssetAddress),
		zap.String("status", string(t.Status)),
		zap.String("trigger", string(t.Trigger)),
		zap.Uint64("amount_lamports", t.AmountLamports),
		zap.Uint16("slippage_bps", t.SlippageBps),
	}
}

// LogError logs err with extra context.
func (l *Logger) LogError(msg string, err error, fields ...zap.Field) {
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	l.Error(msg, fields...)
}

// Sync flushes buffers, ignoring the errors terminals report for stdout.
func (l *Logger) Sync() error {
	err := l.Logger.Sync()
	if err != nil && (err.Error() == "sync /dev/stdout: invalid argument" ||
		err.Error() == "sync /dev/stdout: inappropriate ioctl for device") {
		return nil
	}
	return err
}

// TrackPerformance logs the duration of an operation when the returned func is called.
func (l *Logger) TrackPerformance(operation string) (end func()) {
	start := time.Now()
	opLogger := l.WithOperation(operation)
	opLogger.Debug("Starting operation")

	return func() {
		duration := time.Since(start)
		opLogger.Debug("Operation completed",
			zap.Duration("duration", duration),
			zap.Float64("duration_ms", float64(duration.Microseconds())/1000),
		)
	}
}
