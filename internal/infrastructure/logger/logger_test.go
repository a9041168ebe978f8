package logger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestNew(t *testing.T) {
	t.Run("writes json to file output", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "sync.log")

		l, err := New(&Config{Level: "debug", Format: "json", Output: path}, "catalog-sync")
		require.NoError(t, err)
		l.Info("stock snapshot loaded", zap.Int("items", 3))
		require.NoError(t, l.Sync())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"msg":"stock snapshot loaded"`)
		assert.Contains(t, string(data), `"service":"catalog-sync"`)
	})

	t.Run("fails on unwritable file output", func(t *testing.T) {
		_, err := New(&Config{Output: filepath.Join(t.TempDir(), "missing", "dir", "x.log")}, "")
		assert.Error(t, err)
	})

	t.Run("nil config falls back to defaults", func(t *testing.T) {
		l, err := New(nil, "")
		require.NoError(t, err)
		assert.NotNil(t, l)
	})
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"WARNING": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"bogus":   zapcore.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), in)
	}
}

func TestContextIDs(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	ctx, _ := WithRunID(context.Background(), base, "01J0RUN")
	ctx, l := WithExportID(ctx, FromContext(ctx), "tris")

	assert.Equal(t, "01J0RUN", GetRunID(ctx))
	assert.Equal(t, "tris", GetExportID(ctx))
	assert.Empty(t, GetRequestID(ctx))

	l.Info("classified")
	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "01J0RUN", fields["run_id"])
	assert.Equal(t, "tris", fields["export_id"])

	assert.NotNil(t, FromContext(context.Background()))
	assert.NotNil(t, L(ctx))
}

func TestGormLogger_Trace(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	gl := NewGormLogger(zap.New(core), gormlogger.Warn, WithSlowThreshold(10*time.Millisecond))

	ctx, _ := WithRunID(context.Background(), zap.NewNop(), "run-1")
	gl.Trace(ctx, time.Now().Add(-time.Second), func() (string, int64) { return "UPDATE catalog_products", 5 }, nil)
	gl.Trace(ctx, time.Now(), func() (string, int64) { return "SELECT 1", 1 }, gormlogger.ErrRecordNotFound)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "Slow SQL", entry.Message)
	assert.Equal(t, "run-1", entry.ContextMap()["run_id"])

	assert.Equal(t, gormlogger.Silent, MapGormLogLevel("silent"))
	assert.Equal(t, gormlogger.Warn, MapGormLogLevel(""))
}

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.InfoLevel)
	l := zap.New(core)

	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set("request_id", "req-1"); c.Next() })
	r.Use(Recovery(l), GinMiddleware(l))
	r.GET("/api/products", func(c *gin.Context) {
		assert.Equal(t, "req-1", GetRequestID(c.Request.Context()))
		c.Status(http.StatusOK)
	})
	r.GET("/panic", func(*gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/products?exportId=tris", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"success":false,"message":"internal server error"}`, w.Body.String())

	entries := logs.FilterMessage("HTTP Request").All()
	require.NotEmpty(t, entries)
	assert.Equal(t, "exportId=tris", entries[0].ContextMap()["query"])
	assert.Equal(t, 1, logs.FilterMessage("Panic recovered").Len())
}
