package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/charujain10/smartchair-dispatch/core/metrics"
)

// PromSink records dispatch and ride events in Prometheus metrics.
type PromSink struct {
	matches     *prometheus.CounterVec
	matchDelay  *prometheus.HistogramVec
	transitions *prometheus.CounterVec
	expired     prometheus.Counter
	emergencies prometheus.Counter
	available   prometheus.Gauge
	total       prometheus.Gauge
}

// NewPromSink registers metrics on the default Prometheus registerer. The
// scrape endpoint is served separately on cfg's Prometheus port.
func NewPromSink() (coremetrics.MetricsSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (coremetrics.MetricsSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	matches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_match_attempts_total",
		Help: "Total number of request match attempts",
	}, []string{"matched"})
	matchDelay := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dispatch_match_latency_seconds",
		Help:    "Time spent matching a request within a cycle",
		Buckets: prometheus.DefBuckets,
	}, []string{"matched"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ride_transitions_total",
		Help: "Total number of ride lifecycle transitions",
	}, []string{"to"})
	expired := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "requests_expired_total",
		Help: "Total number of ride requests that aged out unmatched",
	})
	emergencies := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "emergencies_raised_total",
		Help: "Total number of emergency escalations raised",
	})
	available := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fleet_units_available",
		Help: "Number of units currently dispatchable",
	})
	total := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fleet_units_total",
		Help: "Number of units registered in the fleet",
	})

	collectors := []prometheus.Collector{matches, matchDelay, transitions, expired, emergencies, available, total}
	for i, c := range collectors {
		if err := reg.Register(c); err != nil {
			are, ok := err.(prometheus.AlreadyRegisteredError)
			if !ok {
				return nil, err
			}
			collectors[i] = are.ExistingCollector
		}
	}

	return &PromSink{
		matches:     collectors[0].(*prometheus.CounterVec),
		matchDelay:  collectors[1].(*prometheus.HistogramVec),
		transitions: collectors[2].(*prometheus.CounterVec),
		expired:     collectors[3].(prometheus.Counter),
		emergencies: collectors[4].(prometheus.Counter),
		available:   collectors[5].(prometheus.Gauge),
		total:       collectors[6].(prometheus.Gauge),
	}, nil
}

// RecordMatch increments the match counter and observes per-request latency.
func (s *PromSink) RecordMatch(results []coremetrics.MatchResult) error {
	for _, r := range results {
		label := strconv.FormatBool(r.Matched)
		s.matches.WithLabelValues(label).Inc()
		s.matchDelay.WithLabelValues(label).Observe(r.Latency.Seconds())
	}
	return nil
}

// RecordRideTransition counts transitions by target state.
func (s *PromSink) RecordRideTransition(tr coremetrics.RideTransition) error {
	s.transitions.WithLabelValues(tr.To).Inc()
	return nil
}

// RecordFleetSize sets the pool gauges.
func (s *PromSink) RecordFleetSize(available, total int) error {
	s.available.Set(float64(available))
	s.total.Set(float64(total))
	return nil
}

// RecordRequestExpired counts aged-out requests.
func (s *PromSink) RecordRequestExpired(_ string, _ time.Duration) error {
	s.expired.Inc()
	return nil
}

// RecordEmergency counts raised escalations.
func (s *PromSink) RecordEmergency(string) error {
	s.emergencies.Inc()
	return nil
}
