package ethclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentinel",
		Subsystem: "rpc",
		Name:      "request_results_total",
	}, []string{"url", "query", "status"})

	RequestDurations = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "sentinel",
		Subsystem: "rpc",
		Name:      "request_duration_seconds",
		Buckets:   []float64{0.05, 0.1, 0.2, 0.5, 1, 2, 5, 10, 20},
	}, []string{"url", "query"})
)

func ObserveError(url, query string, err error) {
	switch {
	case err == nil:
		RequestResults.WithLabelValues(url, query, "ok").Inc()
	case errors.Is(err, context.DeadlineExceeded):
		RequestResults.WithLabelValues(url, query, "timeout").Inc()
	case IsRateLimited(err):
		RequestResults.WithLabelValues(url, query, "rate-limited").Inc()
	default:
		var rpcErr rpc.Error
		if errors.As(err, &rpcErr) {
			RequestResults.WithLabelValues(url, query, fmt.Sprintf("error-%d", rpcErr.ErrorCode())).Inc()
		} else {
			RequestResults.WithLabelValues(url, query, "error").Inc()
		}
	}
}

func ObserveDuration(url, query string) func() time.Duration {
	return prometheus.NewTimer(RequestDurations.WithLabelValues(url, query)).ObserveDuration
}
