package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agent-matrix/matrixhub-db/internal/events"
)

var (
	ProvisionOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mhdb_provision_outcomes_total",
		Help: "Resource provisioning outcomes by kind",
	}, []string{"kind", "outcome"})

	StepFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mhdb_step_failures_total",
		Help: "Failed orchestration steps",
	}, []string{"step"})

	HealthPollsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mhdb_health_polls_total",
		Help: "Health probe results",
	}, []string{"result"})

	BackupRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mhdb_backup_runs_total",
		Help: "Backup runs by result",
	}, []string{"result"})

	BackupLastSuccess = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mhdb_backup_last_success_timestamp_seconds",
		Help: "Unix time of the last successful backup",
	})
)

func init() {
	prometheus.MustRegister(
		ProvisionOutcomes,
		StepFailuresTotal,
		HealthPollsTotal,
		BackupRunsTotal,
		BackupLastSuccess,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RegisterEventHandler wires metric updates to the event emitter.
func RegisterEventHandler(emitter *events.Emitter) {
	emitter.OnEvent(func(ev events.Event) {
		switch ev.Type {
		case events.ResourceCreated:
			ProvisionOutcomes.WithLabelValues(ev.Fields["kind"], "created").Inc()
		case events.ResourceReused:
			ProvisionOutcomes.WithLabelValues(ev.Fields["kind"], "already_present").Inc()
		case events.StepFailed:
			StepFailuresTotal.WithLabelValues(ev.Resource).Inc()
		case events.HealthWaiting:
			HealthPollsTotal.WithLabelValues("waiting").Inc()
		case events.HealthReady:
			HealthPollsTotal.WithLabelValues("ready").Inc()
		case events.HealthTimeout:
			HealthPollsTotal.WithLabelValues("timeout").Inc()
		case events.BackupCompleted:
			BackupRunsTotal.WithLabelValues("ok").Inc()
			BackupLastSuccess.SetToCurrentTime()
		case events.BackupFailed:
			BackupRunsTotal.WithLabelValues("fail").Inc()
		}
	})
}
