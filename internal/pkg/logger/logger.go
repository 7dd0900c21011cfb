// Package logger 封装了 zerolog，提供带追踪上下文的日志记录器。
package logger

import (
	"context"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

// Init 配置全局 logger，所有日志都会带上服务名。
func Init(serviceName string, w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = zerolog.New(w).With().Timestamp().Str("service", serviceName).Logger()
}

// Ctx 返回绑定在 ctx 上的 logger；如果没有，则退回全局 logger。
// 当 ctx 中存在有效的 span 时，自动附加 trace_id。
func Ctx(ctx context.Context) *zerolog.Logger {
	l := zerolog.Ctx(ctx)
	if l.GetLevel() == zerolog.Disabled {
		l = &log.Logger
	}
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return l
	}
	withTrace := l.With().Str("trace_id", spanCtx.TraceID().String()).Logger()
	return &withTrace
}

// WithContext 把 logger 放入 ctx，供下游 Ctx 取用。
func WithContext(ctx context.Context, l zerolog.Logger) context.Context {
	return l.WithContext(ctx)
}
