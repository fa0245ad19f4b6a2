package monitor

import (
	"net/http"
	"washmon-backend/lib/platforms/pay2wash"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var machineLabels = []string{"location", "machine", "name"}

// Metrics exposes the latest snapshot per machine plus poll/session
// counters on a dedicated registry.
type Metrics struct {
	registry *prometheus.Registry

	running          *prometheus.GaugeVec
	reserved         *prometheus.GaugeVec
	inMaintenance    *prometheus.GaugeVec
	gatewayOffline   *prometheus.GaugeVec
	remainingSeconds *prometheus.GaugeVec

	polls         prometheus.Counter
	pollFailures  prometheus.Counter
	authenticated prometheus.Gauge
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		running: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "washmon_machine_running",
			Help: "Whether the machine is currently running.",
		}, machineLabels),
		reserved: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "washmon_machine_reserved",
			Help: "Whether the machine is currently reserved.",
		}, machineLabels),
		inMaintenance: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "washmon_machine_in_maintenance",
			Help: "Whether the machine is marked in maintenance.",
		}, machineLabels),
		gatewayOffline: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "washmon_machine_gateway_offline",
			Help: "Whether the machine's gateway is reported offline.",
		}, machineLabels),
		remainingSeconds: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "washmon_machine_remaining_seconds",
			Help: "Remaining cycle time reported by the machine, in seconds.",
		}, machineLabels),
		polls: factory.NewCounter(prometheus.CounterOpts{
			Name: "washmon_polls_total",
			Help: "Status polls attempted.",
		}),
		pollFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "washmon_poll_failures_total",
			Help: "Status polls that failed.",
		}),
		authenticated: factory.NewGauge(prometheus.GaugeOpts{
			Name: "washmon_session_authenticated",
			Help: "Whether a portal session is currently authenticated.",
		}),
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) SetAuthenticated(authenticated bool) {
	m.authenticated.Set(boolValue(authenticated))
}

func (m *Metrics) PollFailed() {
	m.polls.Inc()
	m.pollFailures.Inc()
}

func (m *Metrics) ObservePoll(location string, statuses []pay2wash.MachineStatus) {
	m.polls.Inc()

	for _, status := range statuses {
		labels := prometheus.Labels{
			"location": location,
			"machine":  status.ID,
			"name":     status.Name,
		}

		m.running.With(labels).Set(boolValue(
			status.State == pay2wash.MachineRunning || flagTrue(status.Raw.Running),
		))
		m.reserved.With(labels).Set(boolValue(
			status.State == pay2wash.MachineReserved || flagTrue(status.Raw.Reserved),
		))
		m.inMaintenance.With(labels).Set(boolValue(
			status.State == pay2wash.MachineMaintenance ||
				(status.Raw.InMaintenance != nil && status.Raw.InMaintenance.True()),
		))
		m.gatewayOffline.With(labels).Set(boolValue(
			status.Raw.GatewayOffline != nil && status.Raw.GatewayOffline.True(),
		))
		if status.Raw.RemainingTime != nil {
			m.remainingSeconds.With(labels).Set(status.Raw.RemainingTime.Seconds())
		} else {
			m.remainingSeconds.With(labels).Set(0)
		}
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func flagTrue(flag *bool) bool {
	return flag != nil && *flag
}
