// Package metrics holds the Prometheus collectors of the planner, the HTTP
// surface and the assistant.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationsTotal counts planner operations by name and result
	OperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kassandra_operations_total",
		Help: "Planner operations by operation and result",
	}, []string{"operation", "result"})

	// OperationDuration tracks planner operation latency, storage included
	OperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kassandra_operation_duration_seconds",
		Help:    "Planner operation duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
	}, []string{"operation"})

	// RecalculatedTasks tracks how many tasks one recalculation moved
	RecalculatedTasks = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "kassandra_recalculated_tasks",
		Help:    "Tasks whose schedule changed per recalculation",
		Buckets: []float64{0, 1, 5, 10, 50, 100, 500},
	})

	// HTTPRequestsTotal counts API requests by method, route and status
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kassandra_http_requests_total",
		Help: "HTTP requests by method, route and status code",
	}, []string{"method", "route", "status"})

	// HTTPRequestDuration tracks API latency by route
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kassandra_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	// AssistantToolCalls counts tool invocations by tool and result
	AssistantToolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kassandra_assistant_tool_calls_total",
		Help: "Assistant tool calls by tool and result",
	}, []string{"tool", "result"})

	// AssistantAPICalls counts model API calls by result
	AssistantAPICalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kassandra_assistant_api_calls_total",
		Help: "Assistant model API calls by result",
	}, []string{"result"})

	// AssistantTokens counts tokens by direction
	AssistantTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kassandra_assistant_tokens_total",
		Help: "Assistant tokens by direction",
	}, []string{"direction"})

	// CircuitState is 0 closed, 1 half-open, 2 open
	CircuitState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kassandra_assistant_circuit_state",
		Help: "Assistant circuit breaker state (0 closed, 1 half-open, 2 open)",
	})
)

// Result labels an outcome
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveOperation records one planner operation
func ObserveOperation(operation string, start time.Time, err error) {
	OperationsTotal.WithLabelValues(operation, Result(err)).Inc()
	OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
