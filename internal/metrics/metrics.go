// Package metrics holds the Prometheus collectors for the auth service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

var AuthCommands = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "zhsystem_auth_commands_total",
		Help: "Auth commands handled, by outcome",
	},
	[]string{"command", "status"},
)

var AuthCommandDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "zhsystem_auth_command_duration_seconds",
		Help:    "Auth command duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"command"},
)

var EmailsSent = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "zhsystem_emails_sent_total",
		Help: "Security emails handed to SMTP, by kind and outcome",
	},
	[]string{"kind", "status"},
)

var HTTPRequests = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "zhsystem_http_requests_total",
		Help: "HTTP requests served",
	},
	[]string{"method", "route", "code"},
)

var HTTPDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "zhsystem_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"method", "route"},
)

// NewRegistry returns a registry with the service collectors plus Go and process metrics.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	Register(reg)
	return reg
}

// Register panics if a collector is already registered with reg.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(AuthCommands, AuthCommandDuration, EmailsSent, HTTPRequests, HTTPDuration)
}

func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

func RecordCommand(command string, err error, duration time.Duration) {
	AuthCommands.WithLabelValues(command, status(err)).Inc()
	AuthCommandDuration.WithLabelValues(command).Observe(duration.Seconds())
}

func RecordEmail(kind string, err error) {
	EmailsSent.WithLabelValues(kind, status(err)).Inc()
}

func RecordHTTP(method string, route string, code int, duration time.Duration) {
	HTTPRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	HTTPDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func status(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}
