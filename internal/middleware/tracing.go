package middleware

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
)

// Tracing instruments requests with otelhttp, naming spans after chi's
// matched route pattern so span names stay low-cardinality
// ("GET /api/v1/settlements/{id}", not the raw path).
func Tracing() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// The pattern is only known once chi has routed, so the
			// operation name is resolved inside the innermost handler.
			inner := http.HandlerFunc(func(w2 http.ResponseWriter, r2 *http.Request) {
				operation := fmt.Sprintf("%s %s", r2.Method, r2.URL.Path)
				if rctx := chi.RouteContext(r2.Context()); rctx != nil && rctx.RoutePattern() != "" {
					operation = fmt.Sprintf("%s %s", r2.Method, rctx.RoutePattern())
				}
				otelhttp.NewHandler(http.HandlerFunc(func(w3 http.ResponseWriter, r3 *http.Request) {
					// Surface the trace id so a 5xx report can be matched
					// to its trace without log spelunking.
					if sc := trace.SpanContextFromContext(r3.Context()); sc.HasTraceID() {
						w3.Header().Set("X-Trace-Id", sc.TraceID().String())
					}
					next.ServeHTTP(w3, r3)
				}), operation).ServeHTTP(w2, r2)
			})
			inner.ServeHTTP(w, r)
		})
	}
}
