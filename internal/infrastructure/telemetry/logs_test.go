package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLoggerProvider_Disabled(t *testing.T) {
	ctx := context.Background()

	cfg := LogsConfig{
		Enabled:           false,
		CollectorEndpoint: "localhost:14317",
		ServiceName:       "tripdesk-billing",
		Insecure:          true,
	}

	provider, err := NewLoggerProvider(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, provider.IsEnabled())
	assert.Nil(t, provider.GetLoggerProvider())

	gotCfg := provider.GetConfig()
	assert.Equal(t, cfg.CollectorEndpoint, gotCfg.CollectorEndpoint)
	assert.Equal(t, cfg.ServiceName, gotCfg.ServiceName)

	assert.NoError(t, provider.ForceFlush(ctx))
	assert.NoError(t, provider.Shutdown(ctx))
	// Shutdown twice must stay safe
	assert.NoError(t, provider.Shutdown(ctx))
}

func TestNewLoggerProvider_EnabledWithoutCollector(t *testing.T) {
	ctx := context.Background()

	// The exporter buffers until a collector shows up, so creation must
	// succeed even against a dead endpoint
	provider, err := NewLoggerProvider(ctx, LogsConfig{
		Enabled:           true,
		CollectorEndpoint: "localhost:19999",
		ServiceName:       "tripdesk-billing",
		Insecure:          true,
	}, zap.NewNop())
	require.NoError(t, err)
	assert.True(t, provider.IsEnabled())
	assert.NotNil(t, provider.GetLoggerProvider())

	assert.NoError(t, provider.Shutdown(ctx))
}

func TestNewZapOTELCore(t *testing.T) {
	ctx := context.Background()

	t.Run("nil provider yields nop core", func(t *testing.T) {
		core := NewZapOTELCore(ZapBridgeConfig{
			ServiceName: "tripdesk-billing",
			Level:       zapcore.InfoLevel,
		})
		require.NotNil(t, core)
		assert.False(t, core.Enabled(zapcore.InfoLevel))
	})

	t.Run("disabled provider yields nop core", func(t *testing.T) {
		provider, err := NewLoggerProvider(ctx, LogsConfig{Enabled: false}, zap.NewNop())
		require.NoError(t, err)

		core := NewZapOTELCore(ZapBridgeConfig{
			ServiceName:    "tripdesk-billing",
			LoggerProvider: provider,
			Level:          zapcore.InfoLevel,
		})
		assert.False(t, core.Enabled(zapcore.InfoLevel))
	})

	t.Run("enabled provider at debug passes everything", func(t *testing.T) {
		provider, err := NewLoggerProvider(ctx, LogsConfig{
			Enabled:           true,
			CollectorEndpoint: "localhost:19999",
			ServiceName:       "tripdesk-billing",
			Insecure:          true,
		}, zap.NewNop())
		require.NoError(t, err)
		defer provider.Shutdown(ctx)

		core := NewZapOTELCore(ZapBridgeConfig{
			ServiceName:    "tripdesk-billing",
			LoggerProvider: provider,
			Level:          zapcore.DebugLevel,
		})
		assert.True(t, core.Enabled(zapcore.DebugLevel))
		assert.True(t, core.Enabled(zapcore.ErrorLevel))
	})

	t.Run("warn level wraps in a filter", func(t *testing.T) {
		provider, err := NewLoggerProvider(ctx, LogsConfig{
			Enabled:           true,
			CollectorEndpoint: "localhost:19999",
			ServiceName:       "tripdesk-billing",
			Insecure:          true,
		}, zap.NewNop())
		require.NoError(t, err)
		defer provider.Shutdown(ctx)

		core := NewZapOTELCore(ZapBridgeConfig{
			ServiceName:    "tripdesk-billing",
			LoggerProvider: provider,
			Level:          zapcore.WarnLevel,
		})

		_, isFiltered := core.(*levelFilterCore)
		assert.True(t, isFiltered)
		assert.False(t, core.Enabled(zapcore.InfoLevel))
		assert.True(t, core.Enabled(zapcore.WarnLevel))
	})
}

func TestNewBridgedLogger(t *testing.T) {
	observedCore, observedLogs := observer.New(zapcore.InfoLevel)

	logger := NewBridgedLogger(observedCore, zapcore.NewNopCore(), zap.AddCaller())

	logger.Info("invoice issued", zap.String("number", "INV-202608-00001"))
	logger.Debug("skipped")
	logger.Warn("ledger reconciliation behind")

	logs := observedLogs.All()
	require.Len(t, logs, 2)
	assert.Equal(t, "invoice issued", logs[0].Message)
	assert.Contains(t, logs[0].Context, zap.String("number", "INV-202608-00001"))
	assert.Equal(t, zapcore.WarnLevel, logs[1].Level)
}

func TestCreateBridgedLoggerFromConfig(t *testing.T) {
	ctx := context.Background()

	provider, err := NewLoggerProvider(ctx, LogsConfig{Enabled: false}, zap.NewNop())
	require.NoError(t, err)

	baseConfig := &BaseLoggerConfig{
		Level:      "debug",
		Format:     "json",
		Output:     "stdout",
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	}

	logger, err := CreateBridgedLoggerFromConfig(baseConfig, provider, "tripdesk-billing")
	require.NoError(t, err)
	require.NotNil(t, logger)

	logger.Info("receipt recorded",
		zap.String("request_id", "req-123"),
		zap.String("number", "RCP-202608-00004"),
	)
	_ = logger.Sync()
}

func TestDefaultBaseLoggerConfig(t *testing.T) {
	cfg := DefaultBaseLoggerConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "console", cfg.Format)
	assert.Equal(t, "stdout", cfg.Output)
	assert.NotEmpty(t, cfg.TimeFormat)
}

func TestParseLogLevel(t *testing.T) {
	testCases := []struct {
		input    string
		expected zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"fatal", zapcore.FatalLevel},
		{"unknown", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			assert.Equal(t, tc.expected, parseLogLevel(tc.input))
		})
	}
}

func TestCreateLogEncoder(t *testing.T) {
	entry := zapcore.Entry{Level: zapcore.InfoLevel, Message: "voucher applied"}

	t.Run("json", func(t *testing.T) {
		encoder := createLogEncoder(&BaseLoggerConfig{
			Format:     "json",
			TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		})

		buf, err := encoder.EncodeEntry(entry, nil)
		require.NoError(t, err)
		assert.Contains(t, buf.String(), `"level":"info"`)
		assert.Contains(t, buf.String(), `"msg":"voucher applied"`)
	})

	t.Run("console", func(t *testing.T) {
		encoder := createLogEncoder(&BaseLoggerConfig{
			Format:     "console",
			TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		})

		buf, err := encoder.EncodeEntry(entry, nil)
		require.NoError(t, err)
		assert.NotContains(t, buf.String(), `"level"`)
	})
}

func TestCreateLogWriter(t *testing.T) {
	assert.NotNil(t, createLogWriter("stdout"))
	assert.NotNil(t, createLogWriter("stderr"))
	// Unknown targets fall back to stdout
	assert.NotNil(t, createLogWriter("/tmp/billing.log"))
}

func TestCreateBaseCore_LevelFiltering(t *testing.T) {
	core := createBaseCore(&BaseLoggerConfig{
		Level:      "info",
		Format:     "json",
		Output:     "stdout",
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})

	assert.True(t, core.Enabled(zapcore.InfoLevel))
	assert.True(t, core.Enabled(zapcore.WarnLevel))
	assert.False(t, core.Enabled(zapcore.DebugLevel))
}

func TestLevelFilterCore(t *testing.T) {
	observedCore, observedLogs := observer.New(zapcore.DebugLevel)

	filtered := &levelFilterCore{
		Core:     observedCore,
		minLevel: zapcore.WarnLevel,
	}

	assert.False(t, filtered.Enabled(zapcore.InfoLevel))
	assert.True(t, filtered.Enabled(zapcore.ErrorLevel))

	logger := zap.New(filtered)
	logger.Info("dropped")
	logger.Warn("kept")
	logger.Error("kept too")

	logs := observedLogs.All()
	require.Len(t, logs, 2)
	assert.Equal(t, "kept", logs[0].Message)
	assert.Equal(t, "kept too", logs[1].Message)
}

func TestLevelFilterCore_WithKeepsFilter(t *testing.T) {
	observedCore, observedLogs := observer.New(zapcore.DebugLevel)

	filtered := &levelFilterCore{
		Core:     observedCore,
		minLevel: zapcore.WarnLevel,
	}

	child := filtered.With([]zapcore.Field{zap.String("service", "billing")})
	childFilter, ok := child.(*levelFilterCore)
	require.True(t, ok)
	assert.Equal(t, zapcore.WarnLevel, childFilter.minLevel)

	zap.New(child).Warn("credit note applied")

	logs := observedLogs.All()
	require.Len(t, logs, 1)
	assert.Contains(t, logs[0].Context, zap.String("service", "billing"))
}
