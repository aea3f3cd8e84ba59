// Package metrics holds the Prometheus collectors exported at /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mch_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method", "status"},
	)

	// ReportGenerations counts report computations by view and outcome.
	ReportGenerations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mch_report_generations_total",
			Help: "Number of report computations",
		},
		[]string{"view", "outcome"},
	)

	// ReportDuration tracks the time spent loading and aggregating a report.
	ReportDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mch_report_duration_seconds",
			Help:    "Duration of report computations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"view"},
	)

	// ReportRecords tracks the population size of generated reports.
	ReportRecords = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mch_report_records",
			Help:    "Number of patient records a report was computed over",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
		[]string{"view"},
	)
)

// ObserveReport records the outcome of one report computation.
func ObserveReport(view string, start time.Time, records int, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	ReportGenerations.WithLabelValues(view, outcome).Inc()
	ReportDuration.WithLabelValues(view).Observe(time.Since(start).Seconds())
	if err == nil {
		ReportRecords.WithLabelValues(view).Observe(float64(records))
	}
}

// Middleware records request duration labelled by route path.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			RequestDuration.WithLabelValues(path, c.Request().Method, strconv.Itoa(status)).
				Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Handler serves the Prometheus exposition format.
func Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.Handler())
}
