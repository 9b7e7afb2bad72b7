// Package metrics registers the operator's Prometheus collectors against
// controller-runtime's global registry (spec.md §8), grounded on
// controller/pkg/metrics/metrics.go.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

var (
	VmsByState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vmoperator_vms_by_state",
			Help: "Number of VirtualMachine objects by observed running state, per namespace",
		},
		[]string{"state", "namespace"},
	)

	Reconciliations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vmoperator_reconciliations_total",
			Help: "Total number of VirtualMachine reconciliations",
		},
		[]string{"namespace", "result"},
	)

	ReconciliationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vmoperator_reconciliation_duration_seconds",
			Help:    "Duration of VirtualMachine reconciliations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"namespace"},
	)

	PodRecreations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vmoperator_pod_recreations_total",
			Help: "Total number of times a VM's Pod was deleted and recreated for a cold-field change",
		},
		[]string{"namespace"},
	)

	ChannelDispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vmoperator_channel_dispatches_total",
			Help: "Total number of hot-field frames dispatched over runner channels",
		},
		[]string{"namespace", "frame_type", "result"},
	)

	PoolAssignments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vmoperator_pool_assignments_total",
			Help: "Total number of pool assignment decisions",
		},
		[]string{"pool", "result"},
	)

	PoolMembersReady = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vmoperator_pool_members_ready",
			Help: "Number of ready, unassigned members available in a pool",
		},
		[]string{"pool", "namespace"},
	)
)

func init() {
	metrics.Registry.MustRegister(
		VmsByState,
		Reconciliations,
		ReconciliationDuration,
		PodRecreations,
		ChannelDispatches,
		PoolAssignments,
		PoolMembersReady,
	)
}

// RecordReconciliation records a reconciliation outcome.
func RecordReconciliation(namespace, result string) {
	Reconciliations.WithLabelValues(namespace, result).Inc()
}

// ObserveReconciliationDuration records how long a reconciliation took.
func ObserveReconciliationDuration(namespace string, seconds float64) {
	ReconciliationDuration.WithLabelValues(namespace).Observe(seconds)
}

// RecordVmState sets the current VM count for one (state, namespace) pair.
func RecordVmState(state, namespace string, count float64) {
	VmsByState.WithLabelValues(state, namespace).Set(count)
}

// RecordPodRecreation counts a cold-field Pod recreate.
func RecordPodRecreation(namespace string) {
	PodRecreations.WithLabelValues(namespace).Inc()
}

// RecordChannelDispatch counts one hot-field frame dispatch attempt.
func RecordChannelDispatch(namespace, frameType, result string) {
	ChannelDispatches.WithLabelValues(namespace, frameType, result).Inc()
}

// RecordPoolAssignment counts one pool assignment decision.
func RecordPoolAssignment(pool, result string) {
	PoolAssignments.WithLabelValues(pool, result).Inc()
}

// RecordPoolMembersReady sets the ready-and-unassigned member gauge for a pool.
func RecordPoolMembersReady(pool, namespace string, count float64) {
	PoolMembersReady.WithLabelValues(pool, namespace).Set(count)
}
