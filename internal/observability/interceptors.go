// Package observability provides gRPC interceptors and HTTP middleware for
// metrics and logging, and the metrics/health HTTP server.
package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"recording-transcription-service/internal/observability/metrics"
)

// UnaryServerInterceptor returns a gRPC unary interceptor for logging.
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()

		resp, err := handler(ctx, req)

		duration := time.Since(start)
		st, _ := status.FromError(err)

		log.Debug().
			Str("method", info.FullMethod).
			Str("code", st.Code().String()).
			Dur("duration", duration).
			Msg("gRPC unary call")

		return resp, err
	}
}

// HTTPMiddleware records request metrics by chi route pattern and logs each request.
func HTTPMiddleware(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			duration := time.Since(start)
			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			code := ww.Status()
			if code == 0 {
				code = http.StatusOK
			}
			m.RecordHTTPRequest(r.Method, route, code, duration.Seconds())

			log.Info().
				Str("method", r.Method).
				Str("route", route).
				Int("status", code).
				Str("requestId", middleware.GetReqID(r.Context())).
				Dur("duration", duration).
				Msg("HTTP request")
		})
	}
}
