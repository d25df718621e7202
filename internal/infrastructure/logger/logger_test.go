package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// levelLogger builds a JSON logger writing to a buffer at the given
// threshold, for asserting which records survive level filtering.
func levelLogger(level zapcore.Level) (*zap.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			MessageKey:     "msg",
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.MillisDurationEncoder,
		}),
		zapcore.AddSync(&buf),
		level,
	)
	return zap.New(core), &buf
}

func jsonConfig(level string) *Config {
	return &Config{
		Level:      level,
		Format:     "json",
		Output:     "stdout",
		TimeFormat: "2006-01-02T15:04:05Z07:00",
	}
}

func TestConfigPresets(t *testing.T) {
	t.Run("default is console", func(t *testing.T) {
		cfg := DefaultConfig()
		assert.Equal(t, "info", cfg.Level)
		assert.Equal(t, "console", cfg.Format)
		assert.Equal(t, "stdout", cfg.Output)
		assert.NotEmpty(t, cfg.TimeFormat)
	})

	t.Run("production is json", func(t *testing.T) {
		cfg := ProductionConfig()
		assert.Equal(t, "info", cfg.Level)
		assert.Equal(t, "json", cfg.Format)
		assert.Equal(t, "stdout", cfg.Output)
		assert.NotEmpty(t, cfg.TimeFormat)
	})
}

func TestNew(t *testing.T) {
	consoleDebug := jsonConfig("debug")
	consoleDebug.Format = "console"

	for _, tt := range []struct {
		name string
		cfg  *Config
	}{
		{"default config", DefaultConfig()},
		{"production config", ProductionConfig()},
		{"console at debug", consoleDebug},
		{"json at info", jsonConfig("info")},
	} {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			require.NoError(t, err)
			assert.NotNil(t, logger)
		})
	}
}

func TestNewForEnvironment(t *testing.T) {
	// Unknown environments fall back to the development preset.
	for _, env := range []string{"development", "production", "staging"} {
		t.Run(env, func(t *testing.T) {
			logger, err := NewForEnvironment(env)
			require.NoError(t, err)
			assert.NotNil(t, logger)
		})
	}
}

func TestParseLevel(t *testing.T) {
	for _, tt := range []struct {
		level    string
		expected zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"DEBUG", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"INFO", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"fatal", zapcore.FatalLevel},
		{"unknown", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
	} {
		t.Run(tt.level, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLevel(tt.level))
		})
	}
}

func TestWith(t *testing.T) {
	logger := devLogger(t)

	childLogger := With(logger, zap.String("entry_number", "payment_abc"))
	assert.NotNil(t, childLogger)
	assert.NotEqual(t, logger, childLogger)
}

func TestNamed(t *testing.T) {
	logger := devLogger(t)

	namedLogger := Named(logger, "reconcile")
	assert.NotNil(t, namedLogger)
	assert.NotEqual(t, logger, namedLogger)
}

func TestSync(t *testing.T) {
	// Sync can fail on stdout depending on the platform; only assert it returns
	_ = Sync(devLogger(t))
}

func TestCreateWriter(t *testing.T) {
	for _, output := range []string{"stdout", "stderr", "STDOUT"} {
		t.Run(output, func(t *testing.T) {
			assert.NotNil(t, createWriter(output))
		})
	}

	t.Run("file path", func(t *testing.T) {
		tmpFile, err := os.CreateTemp("", "ledger-log-*.log")
		require.NoError(t, err)
		defer os.Remove(tmpFile.Name())
		tmpFile.Close()

		assert.NotNil(t, createWriter(tmpFile.Name()))
	})
}

func TestCreateEncoder(t *testing.T) {
	console := jsonConfig("info")
	console.Format = "console"

	assert.NotNil(t, createEncoder(console))
	assert.NotNil(t, createEncoder(jsonConfig("info")))
}

func TestLogOutput(t *testing.T) {
	logger, buf := levelLogger(zapcore.InfoLevel)

	logger.Info("payment posted", zap.String("entry_number", "payment_abc"))

	var output map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &output))

	assert.Equal(t, "payment posted", output["msg"])
	assert.Equal(t, "info", output["level"])
	assert.Equal(t, "payment_abc", output["entry_number"])
}

func TestLogLevels(t *testing.T) {
	t.Run("debug core records debug", func(t *testing.T) {
		logger, buf := levelLogger(zapcore.DebugLevel)
		logger.Debug("debug message")
		assert.True(t, strings.Contains(buf.String(), "debug message"))
	})

	t.Run("info core drops debug", func(t *testing.T) {
		logger, buf := levelLogger(zapcore.InfoLevel)
		logger.Debug("debug message")
		assert.False(t, strings.Contains(buf.String(), "debug message"))

		logger.Info("info message")
		assert.True(t, strings.Contains(buf.String(), "info message"))
	})
}
