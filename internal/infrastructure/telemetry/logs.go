package telemetry

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogsConfig configures log export to the OTLP collector.
type LogsConfig struct {
	Enabled           bool
	CollectorEndpoint string
	ServiceName       string
	Insecure          bool
}

// LoggerProvider owns the OTEL log pipeline. Disabled it is an inert
// shell, so callers never branch on configuration.
type LoggerProvider struct {
	provider *sdklog.LoggerProvider
	logger   *zap.Logger
	config   LogsConfig
}

// NewLoggerProvider builds the OTLP log exporter and registers it
// globally. The exporter buffers until a collector is reachable, so a
// dead endpoint does not fail startup.
func NewLoggerProvider(ctx context.Context, cfg LogsConfig, logger *zap.Logger) (*LoggerProvider, error) {
	lp := &LoggerProvider{
		logger: logger,
		config: cfg,
	}

	if !cfg.Enabled {
		logger.Info("OTEL Logs disabled, using no-op logger provider")
		return lp, nil
	}

	exporterOpts := []otlploggrpc.Option{
		otlploggrpc.WithEndpoint(cfg.CollectorEndpoint),
	}
	if cfg.Insecure {
		exporterOpts = append(exporterOpts, otlploggrpc.WithInsecure())
	}

	exporter, err := otlploggrpc.New(ctx, exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP logs exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion("1.0.0"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	lp.provider = sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
	)
	global.SetLoggerProvider(lp.provider)

	logger.Info("OpenTelemetry LoggerProvider initialized",
		zap.String("collector_endpoint", cfg.CollectorEndpoint),
		zap.String("service_name", cfg.ServiceName),
	)

	return lp, nil
}

// Shutdown flushes buffered records. Bounded to ten seconds so a dead
// collector cannot hang process exit.
func (lp *LoggerProvider) Shutdown(ctx context.Context) error {
	if lp.provider == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := lp.provider.Shutdown(shutdownCtx); err != nil {
		lp.logger.Error("Error shutting down logger provider", zap.Error(err))
		return fmt.Errorf("failed to shutdown logger provider: %w", err)
	}
	return nil
}

func (lp *LoggerProvider) IsEnabled() bool {
	return lp.config.Enabled && lp.provider != nil
}

func (lp *LoggerProvider) GetConfig() LogsConfig {
	return lp.config
}

// ForceFlush pushes pending records out immediately.
func (lp *LoggerProvider) ForceFlush(ctx context.Context) error {
	if lp.provider == nil {
		return nil
	}
	return lp.provider.ForceFlush(ctx)
}

// GetLoggerProvider exposes the SDK provider, nil while disabled.
func (lp *LoggerProvider) GetLoggerProvider() *sdklog.LoggerProvider {
	return lp.provider
}

// ZapBridgeConfig configures the zap to OTEL log bridge.
type ZapBridgeConfig struct {
	ServiceName    string
	LoggerProvider *LoggerProvider
	Level          zapcore.Level
}

// NewZapOTELCore returns a zapcore.Core that forwards entries to the
// collector. Tee it with the stdout core so operators keep local logs
// while the collector receives the same stream.
func NewZapOTELCore(cfg ZapBridgeConfig) zapcore.Core {
	if cfg.LoggerProvider == nil || !cfg.LoggerProvider.IsEnabled() {
		return zapcore.NewNopCore()
	}

	core := otelzap.NewCore(cfg.ServiceName,
		otelzap.WithLoggerProvider(cfg.LoggerProvider.provider),
	)

	// otelzap has no minimum level of its own, so anything above debug
	// needs a filtering wrapper
	if cfg.Level != zapcore.DebugLevel {
		return &levelFilterCore{
			Core:     core,
			minLevel: cfg.Level,
		}
	}
	return core
}

type levelFilterCore struct {
	zapcore.Core
	minLevel zapcore.Level
}

func (c *levelFilterCore) Enabled(lvl zapcore.Level) bool {
	return lvl >= c.minLevel && c.Core.Enabled(lvl)
}

func (c *levelFilterCore) Check(entry zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(entry.Level) {
		return ce
	}
	return c.Core.Check(entry, ce)
}

func (c *levelFilterCore) With(fields []zapcore.Field) zapcore.Core {
	return &levelFilterCore{
		Core:     c.Core.With(fields),
		minLevel: c.minLevel,
	}
}

// NewBridgedLogger tees the local core with the OTEL core into one
// zap.Logger.
func NewBridgedLogger(baseCore, otelCore zapcore.Core, opts ...zap.Option) *zap.Logger {
	return zap.New(zapcore.NewTee(baseCore, otelCore), opts...)
}

// CreateBridgedLoggerFromConfig builds the full dual-output logger:
// local stdout or file output per baseConfig, plus collector export
// when logsProvider is enabled.
func CreateBridgedLoggerFromConfig(
	baseConfig *BaseLoggerConfig,
	logsProvider *LoggerProvider,
	serviceName string,
) (*zap.Logger, error) {
	baseCore := createBaseCore(baseConfig)

	otelCore := NewZapOTELCore(ZapBridgeConfig{
		ServiceName:    serviceName,
		LoggerProvider: logsProvider,
		Level:          parseLogLevel(baseConfig.Level),
	})

	opts := []zap.Option{
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	}
	return NewBridgedLogger(baseCore, otelCore, opts...), nil
}

// BaseLoggerConfig describes the local log output.
type BaseLoggerConfig struct {
	Level      string // debug, info, warn, error
	Format     string // json, console
	Output     string // stdout, stderr
	TimeFormat string
}

func DefaultBaseLoggerConfig() *BaseLoggerConfig {
	return &BaseLoggerConfig{
		Level:      "info",
		Format:     "console",
		Output:     "stdout",
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	}
}

func createBaseCore(cfg *BaseLoggerConfig) zapcore.Core {
	return zapcore.NewCore(
		createLogEncoder(cfg),
		createLogWriter(cfg.Output),
		parseLogLevel(cfg.Level),
	)
}

func parseLogLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

func createLogEncoder(cfg *BaseLoggerConfig) zapcore.Encoder {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout(cfg.TimeFormat),
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	if cfg.Format == "console" {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(encoderConfig)
	}
	return zapcore.NewJSONEncoder(encoderConfig)
}

func createLogWriter(output string) zapcore.WriteSyncer {
	switch output {
	case "stdout":
		return zapcore.AddSync(os.Stdout)
	case "stderr":
		return zapcore.AddSync(os.Stderr)
	default:
		// Anything else falls back to stdout
		return zapcore.AddSync(os.Stdout)
	}
}
