package server

import (
	"context"
	"path"
	"time"

	"MarginlyLedger/internal/observability"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// UnaryInterceptor records request metrics and logs failures. The HTTP
// gateway runs its calls through the same interceptor.
func UnaryInterceptor(metrics *observability.Metrics, logger zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		method := path.Base(info.FullMethod)
		code := status.Code(err)
		if metrics != nil {
			metrics.QueryRequests.WithLabelValues(method, code.String()).Inc()
			metrics.QueryDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
		}
		if err != nil {
			logger.Warn().
				Err(err).
				Str("method", method).
				Str("code", code.String()).
				Dur("elapsed", time.Since(start)).
				Msg("request failed")
		}
		return resp, err
	}
}
