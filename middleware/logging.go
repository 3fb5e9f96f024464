package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/tsunami-dev/tsunami"
)

// LoggingInterceptor creates an interceptor that logs endpoint calls
// using slog. It logs the start and end of each call, including duration
// and error status. The transport core itself never logs; this is the
// operator-facing layer.
func LoggingInterceptor(logger *slog.Logger) tsunami.UnaryInterceptor {
	if logger == nil {
		logger = slog.Default()
	}

	return func(ctx context.Context, req any, info *tsunami.RouteInfo, handler tsunami.HandlerFunc) (any, error) {
		start := time.Now()

		logger.InfoContext(ctx, "request started",
			slog.String("endpoint", info.Key),
		)

		res, err := handler(ctx, req)
		duration := time.Since(start)

		if err != nil {
			logger.ErrorContext(ctx, "request failed",
				slog.String("endpoint", info.Key),
				slog.Duration("duration", duration),
				slog.Any("error", err),
			)
		} else {
			logger.InfoContext(ctx, "request completed",
				slog.String("endpoint", info.Key),
				slog.Duration("duration", duration),
			)
		}

		return res, err
	}
}
