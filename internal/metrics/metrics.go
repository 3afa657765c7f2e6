package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder holds the client-side collectors. A nil *Recorder records nothing.
type Recorder struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	retries         *prometheus.CounterVec
	refreshes       *prometheus.CounterVec
	probes          *prometheus.CounterVec
}

// New registers the collectors on reg under namespace.
func New(reg prometheus.Registerer, namespace string) (*Recorder, error) {
	r := &Recorder{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Requests sent to the analytics platform by outcome.",
		}, []string{"method", "outcome"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Latency of requests sent to the analytics platform.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_retries_total",
			Help:      "Retries issued by reason (refresh, transport).",
		}, []string{"reason"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_refreshes_total",
			Help:      "Upstream token refresh calls by outcome.",
		}, []string{"outcome"}),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discovery_resolutions_total",
			Help:      "Discovery resolutions by resource kind and winning strategy.",
		}, []string{"kind", "strategy"}),
	}
	for _, c := range []prometheus.Collector{r.requests, r.requestDuration, r.retries, r.refreshes, r.probes} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Recorder) Request(method, outcome string, took time.Duration) {
	if r == nil {
		return
	}
	r.requests.WithLabelValues(method, outcome).Inc()
	r.requestDuration.WithLabelValues(method).Observe(took.Seconds())
}

func (r *Recorder) Retry(reason string) {
	if r == nil {
		return
	}
	r.retries.WithLabelValues(reason).Inc()
}

func (r *Recorder) Refresh(outcome string) {
	if r == nil {
		return
	}
	r.refreshes.WithLabelValues(outcome).Inc()
}

func (r *Recorder) Resolution(kind, strategy string) {
	if r == nil {
		return
	}
	r.probes.WithLabelValues(kind, strategy).Inc()
}

// RefreshCount is used by tests and the CLI status view.
func (r *Recorder) RefreshCount(outcome string) float64 {
	if r == nil {
		return 0
	}
	return counterValue(r.refreshes.WithLabelValues(outcome))
}

func (r *Recorder) RetryCount(reason string) float64 {
	if r == nil {
		return 0
	}
	return counterValue(r.retries.WithLabelValues(reason))
}
