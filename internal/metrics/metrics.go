package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors, registered via Register.
var (
	regOK atomic.Bool

	resourceStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "resman",
			Subsystem: "resource",
			Name:      "starts_total",
			Help:      "Number of successful resource starts.",
		}, []string{"name"},
	)
	resourceStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "resman",
			Subsystem: "resource",
			Name:      "stops_total",
			Help:      "Number of resource stops (graceful or kill).",
		}, []string{"name"},
	)
	resourceRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "resman",
			Subsystem: "resource",
			Name:      "restarts_total",
			Help:      "Number of resource restarts, including change-triggered ones.",
		}, []string{"name"},
	)
	runningResources = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "resman",
			Subsystem: "resource",
			Name:      "running",
			Help:      "Current number of running resources.",
		},
	)
	runningWatchCommands = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "resman",
			Subsystem: "resource",
			Name:      "watch_commands_running",
			Help:      "Running watch commands per resource.",
		}, []string{"name"},
	)
	commandsDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "resman",
			Subsystem: "dispatch",
			Name:      "commands_total",
			Help:      "Commands accepted into the dispatch queue, by endpoint.",
		}, []string{"endpoint"},
	)
	dispatchFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "resman",
			Subsystem: "dispatch",
			Name:      "failures_total",
			Help:      "Commands dropped or failed in delivery, by endpoint.",
		}, []string{"endpoint"},
	)
)

// Register registers all collectors with r. Double registration is tolerated
// so embedding applications can call it alongside the daemon.
func Register(r prometheus.Registerer) error {
	cs := []prometheus.Collector{
		resourceStarts, resourceStops, resourceRestarts,
		runningResources, runningWatchCommands,
		commandsDispatched, dispatchFailures,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns the /metrics HTTP handler for the default registry.
func Handler() http.Handler { return promhttp.Handler() }

func ResourceStarted(name string)   { resourceStarts.WithLabelValues(name).Inc() }
func ResourceStopped(name string)   { resourceStops.WithLabelValues(name).Inc() }
func ResourceRestarted(name string) { resourceRestarts.WithLabelValues(name).Inc() }

func SetRunningResources(n int) { runningResources.Set(float64(n)) }

func SetRunningWatchCommands(name string, n int) {
	runningWatchCommands.WithLabelValues(name).Set(float64(n))
}

func CommandDispatched(endpoint string) { commandsDispatched.WithLabelValues(endpoint).Inc() }
func DispatchFailed(endpoint string)    { dispatchFailures.WithLabelValues(endpoint).Inc() }
