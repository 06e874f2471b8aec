package observability

import (
	"context"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vibek01/ECOM-D1/internal/platform/requestctx"
)

const defaultLogLevel = "info"

// NewLogger constructs a zap logger emitting Cloud Logging compatible JSON. LOG_LEVEL selects the level.
func NewLogger() (*zap.Logger, error) {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL"))))); err != nil {
		_ = level.UnmarshalText([]byte(defaultLogLevel))
	}

	encoderCfg := zapcore.EncoderConfig{
		MessageKey: "message",
		TimeKey:    "timestamp",
		LevelKey:   "severity",
		EncodeTime: zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: func(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString(strings.ToUpper(level.String()))
		},
		EncodeDuration: zapcore.StringDurationEncoder,
		CallerKey:      "caller",
		EncodeCaller:   zapcore.ShortCallerEncoder,
		StacktraceKey:  "stacktrace",
	}

	cfg := zap.Config{
		Level:             level,
		Encoding:          "json",
		EncoderConfig:     encoderCfg,
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: true,
	}
	return cfg.Build()
}

// FromContext retrieves the request logger, defaulting to a no-op logger.
func FromContext(ctx context.Context) *zap.Logger {
	return requestctx.Logger(ctx)
}

// ServiceLogger adapts zap to the event-style logger used by the service layer. The request-scoped
// logger is preferred so entries carry request and trace ids. Events whose fields include an "error"
// are logged at warn level.
func ServiceLogger(fallback *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	if fallback == nil {
		fallback = zap.NewNop()
	}
	return func(ctx context.Context, event string, fields map[string]any) {
		logger := requestctx.LoggerOr(ctx, fallback)
		zapFields := make([]zap.Field, 0, len(fields)+1)
		zapFields = append(zapFields, zap.String("event", event))
		level := zapcore.InfoLevel
		for key, value := range fields {
			if key == "error" {
				level = zapcore.WarnLevel
			}
			zapFields = append(zapFields, zap.Any(key, value))
		}
		if ce := logger.Check(level, event); ce != nil {
			ce.Write(zapFields...)
		}
	}
}

// PrintfAdapter adapts zap to printf-style logging interfaces such as the Kafka writer's.
type PrintfAdapter struct {
	logger *zap.SugaredLogger
	level  zapcore.Level
}

// NewPrintfAdapter creates a PrintfAdapter that logs every line at the given level.
func NewPrintfAdapter(logger *zap.Logger, level zapcore.Level) PrintfAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return PrintfAdapter{logger: logger.Sugar(), level: level}
}

// Printf implements the Printf-style logging expected by third-party clients.
func (a PrintfAdapter) Printf(format string, args ...any) {
	a.logger.Logf(a.level, format, args...)
}
