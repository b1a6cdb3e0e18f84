package main

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// slogGinLogger logs every request: 5xx at error, the rest at debug.
func slogGinLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		req := c.Request
		query := req.URL.RawQuery
		if c.Query("token") != "" {
			query = "token=<redacted>"
		}

		c.Next()

		status := c.Writer.Status()
		attrs := []slog.Attr{
			slog.Int("status", status),
			slog.String("method", req.Method),
			slog.String("path", req.URL.Path),
			slog.String("query", query),
			slog.String("ip", c.ClientIP()),
			slog.Int64("latency_ms", time.Since(start).Milliseconds()),
		}
		if userID := c.GetString("user_id"); userID != "" {
			attrs = append(attrs, slog.String("user_id", userID))
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, slog.String("errors", c.Errors.String()))
		}

		level := slog.LevelDebug
		if status >= 500 {
			level = slog.LevelError
		}
		logger.LogAttrs(req.Context(), level, "http request", attrs...)
	}
}

// newTLSErrorWriter routes net/http server errors into slog, dropping
// handshake errors for hosts autocert refuses.
func newTLSErrorWriter(logger *slog.Logger) io.Writer {
	return serverErrorWriter{logger: logger}
}

type serverErrorWriter struct {
	logger *slog.Logger
}

func (w serverErrorWriter) Write(p []byte) (int, error) {
	msg := strings.TrimSpace(string(p))
	if msg == "" || w.logger == nil {
		return len(p), nil
	}
	if strings.Contains(msg, "TLS handshake error") && strings.Contains(msg, "not configured") {
		return len(p), nil
	}
	w.logger.Log(context.Background(), slog.LevelWarn, "http server", "message", msg)
	return len(p), nil
}
