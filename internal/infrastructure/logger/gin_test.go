package logger

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// observedRouter wires GinMiddleware over an observer core so tests can
// assert on the records it emits.
func observedRouter(level zapcore.Level, pre ...gin.HandlerFunc) (*gin.Engine, *observer.ObservedLogs) {
	gin.SetMode(gin.TestMode)

	core, recorded := observer.New(level)
	router := gin.New()
	router.Use(pre...)
	router.Use(GinMiddleware(zap.New(core)))
	return router, recorded
}

func doRequest(router *gin.Engine, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, target, nil)
	router.ServeHTTP(w, req)
	return w
}

func requireRequestLog(t *testing.T, recorded *observer.ObservedLogs) *observer.LoggedEntry {
	t.Helper()
	logs := recorded.All()
	require.NotEmpty(t, logs)
	for i := range logs {
		if logs[i].Message == "HTTP Request" {
			return &logs[i]
		}
	}
	t.Fatal("no HTTP Request record emitted")
	return nil
}

// logField returns the field with the given key, or nil.
func logField(entry *observer.LoggedEntry, key string) *zapcore.Field {
	for i := range entry.Context {
		if entry.Context[i].Key == key {
			return &entry.Context[i]
		}
	}
	return nil
}

func TestGinMiddleware_LevelPerStatusClass(t *testing.T) {
	// 2xx logs at info, 4xx at warn, 5xx at error.
	for _, tt := range []struct {
		name   string
		status int
		level  zapcore.Level
	}{
		{"ok is info", http.StatusOK, zapcore.InfoLevel},
		{"client error is warn", http.StatusBadRequest, zapcore.WarnLevel},
		{"server error is error", http.StatusInternalServerError, zapcore.ErrorLevel},
	} {
		t.Run(tt.name, func(t *testing.T) {
			router, recorded := observedRouter(tt.level)
			router.GET("/entries", func(c *gin.Context) {
				c.JSON(tt.status, gin.H{"status": tt.status})
			})

			w := doRequest(router, "GET", "/entries")
			assert.Equal(t, tt.status, w.Code)

			httpLog := requireRequestLog(t, recorded)
			assert.Equal(t, tt.level, httpLog.Level)
		})
	}
}

func TestGinMiddleware_PropagatesRequestID(t *testing.T) {
	// Simulates the RequestID middleware running first.
	router, recorded := observedRouter(zapcore.InfoLevel, func(c *gin.Context) {
		c.Set("request_id", "req-6a1")
		c.Next()
	})
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})

	doRequest(router, "GET", "/healthz")

	httpLog := requireRequestLog(t, recorded)
	field := logField(httpLog, "request_id")
	require.NotNil(t, field, "request_id should be in log fields")
	assert.Equal(t, "req-6a1", field.String)
}

func TestGinMiddleware_RecordsQueryString(t *testing.T) {
	router, recorded := observedRouter(zapcore.InfoLevel)
	router.GET("/units", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})

	doRequest(router, "GET", "/units?period=2026-09&page=1")

	httpLog := requireRequestLog(t, recorded)
	field := logField(httpLog, "query")
	require.NotNil(t, field, "query should be in log fields")
	assert.Contains(t, field.String, "period=2026-09")
}

func TestGinMiddleware_LogsCorrectFields(t *testing.T) {
	router, recorded := observedRouter(zapcore.InfoLevel)
	router.POST("/api/v1/ledger/payments", func(c *gin.Context) {
		c.JSON(http.StatusCreated, gin.H{"id": 1})
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/v1/ledger/payments", nil)
	req.Header.Set("User-Agent", "loadgen/1.0")
	router.ServeHTTP(w, req)

	httpLog := requireRequestLog(t, recorded)
	for _, key := range []string{"status", "latency", "client_ip", "user_agent", "method", "path"} {
		assert.NotNil(t, logField(httpLog, key), "missing field %s", key)
	}
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)

	core, recorded := observer.New(zapcore.ErrorLevel)
	router := gin.New()
	router.Use(Recovery(zap.New(core)))
	router.GET("/panic", func(c *gin.Context) {
		panic("balance cache out of sync")
	})

	var w *httptest.ResponseRecorder
	assert.NotPanics(t, func() {
		w = doRequest(router, "GET", "/panic")
	})

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	logs := recorded.All()
	require.NotEmpty(t, logs)
	assert.Contains(t, logs[0].Message, "Panic recovered")
}

func TestGetGinLogger(t *testing.T) {
	var retrievedLogger *zap.Logger

	router, _ := observedRouter(zapcore.InfoLevel)
	router.GET("/healthz", func(c *gin.Context) {
		retrievedLogger = GetGinLogger(c)
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})

	doRequest(router, "GET", "/healthz")

	assert.NotNil(t, retrievedLogger)
}

func TestGetGinLogger_NotSet(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var retrievedLogger *zap.Logger

	router := gin.New()
	router.GET("/healthz", func(c *gin.Context) {
		retrievedLogger = GetGinLogger(c)
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})

	doRequest(router, "GET", "/healthz")

	// Falls back to a usable no-op logger rather than nil.
	require.NotNil(t, retrievedLogger)
	assert.NotPanics(t, func() {
		retrievedLogger.Info("noop")
	})
}
