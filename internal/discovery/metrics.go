package discovery

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	registryOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fabdiscd",
			Subsystem: "registry",
			Name:      "operations_total",
			Help:      "Registry operations handled by the daemon.",
		},
		[]string{"op", "ok"},
	)
	liveRegistrations = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fabdiscd",
			Subsystem: "registry",
			Name:      "live_registrations",
			Help:      "Currently registered node names, hidden included.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(registryOps, liveRegistrations)
	})
}

func recordOp(op string, ok bool) {
	RegisterMetrics()
	registryOps.WithLabelValues(op, strconv.FormatBool(ok)).Inc()
}

func recordLive(count int) {
	RegisterMetrics()
	liveRegistrations.Set(float64(count))
}
