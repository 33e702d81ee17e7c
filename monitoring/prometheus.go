package monitoring

import (
	"net/http"
	"sync"

	"github.com/mezonai/devnode/logx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RevertResult string

var (
	RevertRestored  RevertResult = "restored"
	RevertNotFound  RevertResult = "not_found"
	RevertFailed    RevertResult = "failed"
	RevertInvariant RevertResult = "invariant"
)

type nodePromMetrics struct {
	nodeUpUnixSeconds   prometheus.Gauge
	snapshotCount       prometheus.Counter
	revertCount         *prometheus.CounterVec
	checkpointsHeld     prometheus.Gauge
	revertedBlocks      prometheus.Counter
	blockHeight         prometheus.Gauge
	invariantViolations prometheus.Counter
	panicCount          prometheus.Counter
}

func newNodePromMetrics() *nodePromMetrics {
	return &nodePromMetrics{
		nodeUpUnixSeconds: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "devnode_up_timestamp_unix_seconds",
				Help: "Unix timestamp of the node",
			},
		),
		snapshotCount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "devnode_snapshot_count",
				Help: "The total number of checkpoints captured by evm_snapshot",
			},
		),
		revertCount: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "devnode_revert_count",
				Help: "The total number of evm_revert calls by outcome",
			},
			[]string{"result"},
		),
		checkpointsHeld: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "devnode_checkpoints_held",
				Help: "Number of checkpoints currently held in memory",
			},
		),
		revertedBlocks: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "devnode_reverted_blocks_total",
				Help: "The total number of blocks removed from storage by reverts",
			},
		),
		blockHeight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "devnode_block_height",
				Help: "The current persisted block height",
			},
		),
		invariantViolations: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "devnode_invariant_violations_total",
				Help: "Reverts aborted because the head was below the recorded height",
			},
		),
		panicCount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "devnode_panic_count",
				Help: "Number of recovered goroutine panics",
			},
		),
	}
}

var (
	nodeMetrics *nodePromMetrics
	initOnce    sync.Once
)

// InitMetrics registers the node metrics with the default registry. Safe to call more than once.
func InitMetrics() {
	initOnce.Do(func() {
		nodeMetrics = newNodePromMetrics()
		nodeMetrics.nodeUpUnixSeconds.SetToCurrentTime()
	})
}

func RegisterMetrics(mux *http.ServeMux) {
	logx.Info("MONITORING", "Registering prometheus metrics")
	mux.Handle("/metrics", promhttp.Handler())
}

// Recorders below are no-ops until InitMetrics is called, so library users and tests need no setup.

func IncreaseSnapshotCount() {
	if nodeMetrics == nil {
		return
	}
	nodeMetrics.snapshotCount.Inc()
}

func RecordRevert(result RevertResult) {
	if nodeMetrics == nil {
		return
	}
	nodeMetrics.revertCount.With(prometheus.Labels{
		"result": string(result),
	}).Inc()
}

func SetCheckpointsHeld(n int) {
	if nodeMetrics == nil {
		return
	}
	nodeMetrics.checkpointsHeld.Set(float64(n))
}

func AddRevertedBlocks(n uint64) {
	if nodeMetrics == nil {
		return
	}
	nodeMetrics.revertedBlocks.Add(float64(n))
}

func SetBlockHeight(blockHeight uint64) {
	if nodeMetrics == nil {
		return
	}
	nodeMetrics.blockHeight.Set(float64(blockHeight))
}

func IncreaseInvariantViolations() {
	if nodeMetrics == nil {
		return
	}
	nodeMetrics.invariantViolations.Inc()
}

func IncreasePanicCount() {
	if nodeMetrics == nil {
		return
	}
	nodeMetrics.panicCount.Inc()
}
