package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for registrations, allocation runs and
// notification delivery. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registrations      *prometheus.CounterVec
	Withdrawals        *prometheus.CounterVec
	AllocationRuns     *prometheus.CounterVec
	AllocatedMembers   prometheus.Counter
	Notifications      *prometheus.CounterVec
	SchedulerRunLength prometheus.Histogram
}

// New registers all metrics with reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Registrations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "club_registrations_total",
			Help: "Event join attempts by origin and outcome",
		}, []string{"origin", "outcome"}), // origin: "manual", "auto-allocated"

		Withdrawals: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "club_withdrawals_total",
			Help: "Event withdrawals by outcome",
		}, []string{"outcome"}),

		AllocationRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "club_allocation_runs_total",
			Help: "Deadline allocation runs by outcome",
		}, []string{"outcome"}), // outcome: "processed", "conflict", "error"

		AllocatedMembers: factory.NewCounter(prometheus.CounterOpts{
			Name: "club_allocated_members_total",
			Help: "Members joined to events by the fair-allocation lottery",
		}),

		Notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "club_notifications_total",
			Help: "Notification deliveries by outcome",
		}, []string{"outcome"}), // outcome: "sent", "failed", "rejected"

		SchedulerRunLength: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "club_scheduler_run_duration_seconds",
			Help:    "Duration of one deadline scheduler pass over all due events",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
	}
}

func (m *Metrics) IncRegistration(origin, outcome string) {
	if m != nil {
		m.Registrations.WithLabelValues(origin, outcome).Inc()
	}
}

func (m *Metrics) IncWithdrawal(outcome string) {
	if m != nil {
		m.Withdrawals.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncAllocationRun(outcome string) {
	if m != nil {
		m.AllocationRuns.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) AddAllocatedMembers(n int) {
	if m != nil && n > 0 {
		m.AllocatedMembers.Add(float64(n))
	}
}

func (m *Metrics) IncNotification(outcome string) {
	if m != nil {
		m.Notifications.WithLabelValues(outcome).Inc()
	}
}

// ObserveSchedulerRun records the duration of a full scheduler pass.
func (m *Metrics) ObserveSchedulerRun(d time.Duration) {
	if m != nil {
		m.SchedulerRunLength.Observe(d.Seconds())
	}
}
