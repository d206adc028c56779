package httpx

import (
	"github.com/ariefcatur/woodchain/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"net/http"
	"strconv"
	"time"
)

// NewRouter builds the base mux. Sessions is consulted on every request; handlers decide whether a principal is required.
func NewRouter(log *zap.Logger, sessions SessionStore) *chi.Mux {
	if log == nil {
		log = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger(log), middleware.Recoverer)
	r.Use(instrument)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(authenticate(sessions))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("elapsed", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

// instrument labels by route pattern, not raw path, to keep cardinality bounded.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.HTTPRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
