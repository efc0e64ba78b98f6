package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Batches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bulk_tickets",
		Name:      "batches_total",
		Help:      "Batches finished, by outcome (completed, aborted, rejected).",
	}, []string{"outcome"})
	RowResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bulk_tickets",
		Name:      "row_results_total",
		Help:      "Row results, by status (sent, skipped, error).",
	}, []string{"status"})
	RemoteDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "bulk_tickets",
		Name:      "remote_request_seconds",
		Help:      "Helpdesk API latency, by operation and status code class.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op", "code"})
)

// Init registers collectors; call once from main.
func Init() {
	prometheus.MustRegister(Batches, RowResults, RemoteDuration)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRemote records one helpdesk call. status 0 means no response.
func ObserveRemote(op string, status int, d time.Duration) {
	RemoteDuration.WithLabelValues(op, codeClass(status)).Observe(d.Seconds())
}

func codeClass(status int) string {
	if status <= 0 {
		return "transport_error"
	}
	if status == http.StatusTooManyRequests {
		return "429"
	}
	return strconv.Itoa(status/100) + "xx"
}
