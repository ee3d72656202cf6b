package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Operation label values.
const (
	OpCreate  = "create"
	OpSend    = "send"
	OpPeek    = "peek"
	OpReceive = "receive"
	OpDelete  = "delete"
)

var (
	Operations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsqueue_operations_total",
			Help: "Total queue operations attempted",
		}, []string{"operation"})

	OperationFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsqueue_operation_failures_total",
			Help: "Total queue operations that returned an error other than an empty queue",
		}, []string{"operation"})

	OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "newsqueue_operation_duration_seconds",
			Help:    "Histogram of queue operation duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"})

	EmptyReads = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "newsqueue_empty_reads_total",
			Help: "Total peek or receive calls that found no message",
		})
)

// Setup registers every collector on reg.
func Setup(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{Operations, OperationFailures, OperationDuration, EmptyReads} {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			return err
		}
	}
	return nil
}
