package tokengate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// engineMetrics holds the Prometheus instruments updated by the Engine and
// Cleaner. All instruments are registered on construction; a nil registerer
// gets a private registry so tests never collide.
type engineMetrics struct {
	issued        *prometheus.CounterVec
	authenticated *prometheus.CounterVec
	refreshed     *prometheus.CounterVec
	logouts       *prometheus.CounterVec
	revocations   prometheus.Counter
	purgedRecords prometheus.Counter
	storeErrors   prometheus.Counter
	authLatency   prometheus.Histogram
}

func newEngineMetrics(reg prometheus.Registerer) *engineMetrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &engineMetrics{
		issued: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tokengate",
			Name:      "tokens_issued_total",
			Help:      "Tokens issued, by kind.",
		}, []string{"kind"}),
		authenticated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tokengate",
			Name:      "authenticate_total",
			Help:      "Authenticate calls, by outcome.",
		}, []string{"outcome"}),
		refreshed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tokengate",
			Name:      "refresh_total",
			Help:      "Refresh calls, by outcome.",
		}, []string{"outcome"}),
		logouts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tokengate",
			Name:      "logout_total",
			Help:      "Logout calls, by scope.",
		}, []string{"scope"}),
		revocations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tokengate",
			Name:      "revocations_recorded_total",
			Help:      "Revocation records written to the store.",
		}),
		purgedRecords: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tokengate",
			Name:      "purged_records_total",
			Help:      "Expired revocation records removed by cleanup.",
		}),
		storeErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tokengate",
			Name:      "store_errors_total",
			Help:      "Revocation store calls that returned an error.",
		}),
		authLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tokengate",
			Name:      "authenticate_duration_seconds",
			Help:      "Latency of Authenticate calls.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

const (
	outcomeOK              = "ok"
	outcomeExpired         = "expired"
	outcomeInvalid         = "invalid"
	outcomeRevoked         = "revoked"
	outcomeUnavailable     = "unavailable"
	outcomeRotationLimit   = "rotation_limit"
	outcomeRotated         = "rotated"
	outcomeReused          = "reused"
	logoutScopeSingle      = "single"
	logoutScopeSubjectWide = "subject_wide"
)
