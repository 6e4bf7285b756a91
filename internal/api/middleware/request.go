package middleware

import (
	"context"
	"time"

	"github.com/kunal123thakur/job-matching/internal/logger"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/google/uuid"
)

// HeaderRequestID 请求 ID 头
const HeaderRequestID = "X-Request-ID"

// RequestID 透传或生成请求 ID，并挂到 ctx 的日志上
func RequestID() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		id := string(c.GetHeader(HeaderRequestID))
		if id == "" {
			id = uuid.NewString()
		}
		c.Response.Header.Set(HeaderRequestID, id)
		c.Set("request_id", id)

		l := logger.Logger.With().Str("request_id", id).Logger()
		ctx = l.WithContext(ctx)
		c.Next(ctx)
	}
}

// AccessLog 记录方法、路径、状态码与耗时
func AccessLog() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		start := time.Now()
		c.Next(ctx)

		status := c.Response.StatusCode()
		event := logger.Ctx(ctx).Info()
		if status >= 500 {
			event = logger.Ctx(ctx).Error()
		} else if status >= 400 {
			event = logger.Ctx(ctx).Warn()
		}
		event.
			Str("method", string(c.Method())).
			Str("path", string(c.Path())).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Msg("HTTP 请求")
	}
}
