package metrics

import (
	"github.com/eventdesk/server/internal/fault"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "eventdesk"

// Registry is the global Prometheus registry for all metrics
var Registry = prometheus.NewRegistry()

// AppInfo exposes build information as labels; the value is always 1.
var AppInfo = promauto.With(Registry).NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "app_info",
		Help:      "Application version information (always set to 1, version info in labels)",
	},
	[]string{"version", "commit", "build_date"},
)

// HealthCheckStatus tracks individual readiness check results
// Values: 0 = fail, 2 = pass
var HealthCheckStatus = promauto.With(Registry).NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "health_check_status",
		Help:      "Individual health check status (0=fail, 2=pass)",
	},
	[]string{"check"},
)

// HealthCheckLatency tracks the latency of individual health checks in milliseconds
var HealthCheckLatency = promauto.With(Registry).NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "health_check_latency_ms",
		Help:      "Health check latency in milliseconds",
	},
	[]string{"check"},
)

// Registrations counts join attempts by outcome ("ok" or the error code).
var Registrations = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "registrations_total",
		Help:      "Total number of event registration attempts by outcome",
	},
	[]string{"outcome"},
)

// CheckIns counts check-in scans by outcome ("ok" or the error code).
var CheckIns = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkins_total",
		Help:      "Total number of check-in scans by outcome",
	},
	[]string{"outcome"},
)

// EmailDeliveries counts outbound notifications by provider and result.
var EmailDeliveries = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "email_deliveries_total",
		Help:      "Total number of notification emails by provider and result",
	},
	[]string{"provider", "result"}, // result: sent|skipped|error
)

// Init registers runtime collectors and sets version information
func Init(version, commit, buildDate string) {
	Registry.MustRegister(collectors.NewGoCollector())
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	AppInfo.WithLabelValues(version, commit, buildDate).Set(1)
}

// RecordRegistration counts a join attempt.
func RecordRegistration(err error) {
	Registrations.WithLabelValues(outcome(err)).Inc()
}

// RecordCheckIn counts a check-in scan.
func RecordCheckIn(err error) {
	CheckIns.WithLabelValues(outcome(err)).Inc()
}

// outcome keeps label cardinality bounded: classified errors report their
// code, anything else reports its kind.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if code := fault.CodeOf(err); code != "" {
		return code
	}
	return fault.KindOf(err).String()
}
