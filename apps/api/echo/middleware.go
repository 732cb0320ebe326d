package echoapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "academia"
	healthTimeout    = 2 * time.Second
)

type metrics struct {
	requests     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	usersCreated prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Number of HTTP requests by method, route and status.",
		}, []string{"method", "path", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latencies by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		usersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "users_created_total",
			Help:      "Number of users created through the API.",
		}),
	}
	for _, c := range []prometheus.Collector{m.requests, m.duration, m.usersCreated} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// middleware records every request once the error handler has written the response.
func (m *metrics) middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			if err := next(ctx); err != nil {
				ctx.Error(err)
			}

			path := ctx.Path()
			if path == "" {
				path = "unmatched"
			}
			method := ctx.Request().Method
			m.requests.WithLabelValues(method, path, strconv.Itoa(ctx.Response().Status)).Inc()
			m.duration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}

type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) health(ctx echo.Context) error {
	if s.deps.DB != nil {
		c, cancel := context.WithTimeout(ctx.Request().Context(), healthTimeout)
		defer cancel()
		if err := s.deps.DB.PingContext(c); err != nil {
			s.deps.Logger.Warn("health check: database ping failed", err)
			return errDBUnavailable
		}
	}
	return ctx.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}
