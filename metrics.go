package main

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mitch000001/hrv-sync/pkg/delivery"
	"github.com/mitch000001/hrv-sync/pkg/http/rate"
	"github.com/mitch000001/hrv-sync/pkg/ingest"
	"github.com/mitch000001/hrv-sync/pkg/store"
)

// registry only holds this program's metrics; it is written out as a
// node_exporter textfile at the end of a run.
var registry = prometheus.NewRegistry()

var (
	inFlightGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "hrvsync",
		Name:      "client_in_flight_requests",
		Help:      "A gauge of in-flight requests to the Runalyze API.",
	})

	clientRequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hrvsync",
			Name:      "client_api_requests_total",
			Help:      "A counter for requests to the Runalyze API.",
		},
		[]string{"code", "method"},
	)

	// dnsLatencyVec has an "event" label set by the DNSStart and DNSDone
	// hooks of trace below.
	dnsLatencyVec = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hrvsync",
			Name:      "dns_duration_seconds",
			Help:      "Trace dns latency histogram.",
			Buckets:   []float64{.005, .01, .025, .05},
		},
		[]string{"event"},
	)

	tlsLatencyVec = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hrvsync",
			Name:      "tls_duration_seconds",
			Help:      "Trace tls latency histogram.",
			Buckets:   []float64{.05, .1, .25, .5},
		},
		[]string{"event"},
	)

	histVec = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hrvsync",
			Name:      "request_duration_seconds",
			Help:      "A histogram of Runalyze API request latencies.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{},
	)

	trace = &promhttp.InstrumentTrace{
		DNSStart: func(t float64) {
			dnsLatencyVec.WithLabelValues("dns_start").Observe(t)
		},
		DNSDone: func(t float64) {
			dnsLatencyVec.WithLabelValues("dns_done").Observe(t)
		},
		TLSHandshakeStart: func(t float64) {
			tlsLatencyVec.WithLabelValues("tls_handshake_start").Observe(t)
		},
		TLSHandshakeDone: func(t float64) {
			tlsLatencyVec.WithLabelValues("tls_handshake_done").Observe(t)
		},
	}

	rateLimiterLimitGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "hrvsync",
		Name:      "rate_limiter_limit",
		Help:      "A gauge of the max requests allowed by the API rate limit.",
	})

	rateLimiterRemainingGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "hrvsync",
		Name:      "rate_limiter_remaining",
		Help:      "A gauge of the remaining requests allowed by the API rate limit.",
	})

	rateLimiterResetsAfterGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "hrvsync",
		Name:      "rate_limiter_reset_after_seconds",
		Help:      "A gauge of the seconds after which the rate limit will be reset.",
	})

	filesCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hrvsync",
			Name:      "ingested_files_total",
			Help:      "Raw data files seen by the ingestion walk, by outcome.",
		},
		[]string{"result"},
	)

	deliveriesCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hrvsync",
			Name:      "deliveries_total",
			Help:      "Metric payload deliveries, by outcome.",
		},
		[]string{"result"},
	)

	storeRecordsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "hrvsync",
		Name:      "store_records",
		Help:      "Records in the processed-record store.",
	})

	storePendingGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "hrvsync",
		Name:      "store_pending_payloads",
		Help:      "Payloads in the processed-record store not yet accepted by the API.",
	})

	lastRunGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "hrvsync",
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix time the last run finished.",
	})
)

func init() {
	registry.MustRegister(
		inFlightGauge,
		clientRequestCounter,
		dnsLatencyVec,
		tlsLatencyVec,
		histVec,
		rateLimiterLimitGauge,
		rateLimiterRemainingGauge,
		rateLimiterResetsAfterGauge,
		filesCounter,
		deliveriesCounter,
		storeRecordsGauge,
		storePendingGauge,
		lastRunGauge,
	)
}

func instrumentTransport(rateLimitHeaderKeys rate.HeaderKeys, logger *zap.Logger) func(t http.RoundTripper) http.RoundTripper {
	return func(t http.RoundTripper) http.RoundTripper {
		return promhttp.InstrumentRoundTripperInFlight(
			inFlightGauge,
			promhttp.InstrumentRoundTripperCounter(
				clientRequestCounter,
				promhttp.InstrumentRoundTripperTrace(
					trace,
					promhttp.InstrumentRoundTripperDuration(
						histVec,
						instrumentRoundTripperRateLimitHeader(
							rateLimiterLimitGauge,
							rateLimiterRemainingGauge,
							rateLimiterResetsAfterGauge,
							rateLimitHeaderKeys,
							logger,
							t,
						),
					),
				),
			),
		)
	}
}

func instrumentRoundTripperRateLimitHeader(limitGauge, remainingGauge, resetAfterSecondsGauge prometheus.Gauge, rateLimitHeaders rate.HeaderKeys, logger *zap.Logger, next http.RoundTripper) promhttp.RoundTripperFunc {
	return promhttp.RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
		response, err := next.RoundTrip(r)
		if err != nil {
			return response, err
		}
		limit, lerr := rate.LimitFromHeader(response.Header, rateLimitHeaders)
		if lerr != nil {
			if !errors.Is(lerr, rate.ErrNoLimitHeaders) {
				logger.Warn("Error getting rate limit", zap.Error(lerr))
			}
			return response, nil
		}
		limitGauge.Set(float64(limit.Limit))
		remainingGauge.Set(float64(limit.Remaining))
		resetAfterSecondsGauge.Set(float64(limit.ResetAfterSeconds))
		return response, nil
	})
}

func observeIngest(s ingest.Summary) {
	filesCounter.WithLabelValues("ingested").Add(float64(s.Ingested))
	filesCounter.WithLabelValues("skipped").Add(float64(s.Skipped))
	filesCounter.WithLabelValues("failed").Add(float64(s.Failed))
}

func observeDelivery(r delivery.Report) {
	deliveriesCounter.WithLabelValues("delivered").Add(float64(r.Delivered))
	deliveriesCounter.WithLabelValues("rejected").Add(float64(r.Rejected))
	deliveriesCounter.WithLabelValues("unreachable").Add(float64(r.Unreachable))
}

func observeStore(s *store.Store) {
	storeRecordsGauge.Set(float64(s.Len()))
	storePendingGauge.Set(float64(len(s.Pending())))
}

// writeMetrics writes the registry to path. An empty path disables it.
func writeMetrics(path string) error {
	if path == "" {
		return nil
	}
	lastRunGauge.SetToCurrentTime()
	return prometheus.WriteToTextfile(path, registry)
}
