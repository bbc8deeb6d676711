// Package metrics declares the Prometheus counters/histograms the store
// and miner publish, following the teacher's promauto pattern in
// stores/utxo/sql/sql.go and services/miner/metrics.go. Substitutes for
// ordishs/gocore's Stat API, whose package source is absent from the
// retrieved corpus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StoreOpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "guachain",
		Subsystem: "store",
		Name:      "operation_duration_seconds",
		Help:      "Duration of store operations by name.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})

	StoreOpErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "guachain",
		Subsystem: "store",
		Name:      "operation_errors_total",
		Help:      "Count of store operation failures by name.",
	}, []string{"operation"})

	MinerHashrate = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "guachain",
		Subsystem: "miner",
		Name:      "hashrate",
		Help:      "Hashes per second, by worker thread.",
	}, []string{"thread"})

	MinerBlocksFound = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "guachain",
		Subsystem: "miner",
		Name:      "blocks_found_total",
		Help:      "Count of blocks successfully mined, by kind (payload/signing).",
	}, []string{"kind"})
)

// Timer records the elapsed time since it was created into the named
// store-operation histogram when Observe is deferred.
type Timer struct {
	start     time.Time
	operation string
}

func StartTimer(operation string) *Timer {
	return &Timer{start: time.Now(), operation: operation}
}

func (t *Timer) Observe() {
	StoreOpDuration.WithLabelValues(t.operation).Observe(time.Since(t.start).Seconds())
}
