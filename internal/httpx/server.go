package httpx

import (
	"net/http"
	"strconv"
	"time"

	"github.com/ariefcatur/marketplace-orders/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

type RouterDeps struct {
	Log      zerolog.Logger
	Metrics  *metrics.ServerMetrics // optional
	Gatherer prometheus.Gatherer    // optional, serves /metrics when set
	Timeout  time.Duration
}

func NewRouter(d RouterDeps) *chi.Mux {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, RequestLogger(d.Log), middleware.Recoverer)
	if d.Metrics != nil {
		r.Use(Instrument(d.Metrics))
	}
	r.Use(middleware.Timeout(timeout))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if d.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(d.Gatherer))
	}
	return r
}

// RequestLogger logs one line per request once the handler is done.
func RequestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			ev := log.Info()
			if ww.Status() >= http.StatusInternalServerError {
				ev = log.Error()
			}
			ev = ev.Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start))
			if a, ok := ActorFrom(r.Context()); ok {
				ev = ev.Str("actor_id", a.ID).Str("role", string(a.Role))
			}
			ev.Msg("request")
		})
	}
}

func Instrument(m *metrics.ServerMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			m.Requests.WithLabelValues(route, r.Method, strconv.Itoa(ww.Status())).Inc()
			m.LatencyMS.WithLabelValues(route, r.Method).Observe(float64(time.Since(start).Milliseconds()))
		})
	}
}
