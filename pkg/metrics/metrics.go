package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var GuardRejections = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "trust_guard_rejections_total",
	Help: "Direct messages rejected by the abuse guard",
}, []string{"rule"})

var MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
	Name: "trust_messages_sent_total",
	Help: "Direct messages accepted and persisted",
})

var ClassifierVerdicts = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "trust_classifier_verdicts_total",
	Help: "Content classification outcomes",
}, []string{"stage", "safe"})

var ClassifierFailures = promauto.NewCounter(prometheus.CounterOpts{
	Name: "trust_classifier_failures_total",
	Help: "Classifier dependency failures converted into rejections",
})

var QueueTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "trust_queue_transitions_total",
	Help: "Moderation queue entries created or resolved",
}, []string{"status"})

var EscalationsFired = promauto.NewCounter(prometheus.CounterOpts{
	Name: "trust_escalations_fired_total",
	Help: "Raise-hand threshold crossings that triggered an expert fan-out",
})

var NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "trust_notifications_total",
	Help: "Notifications handed to the sink",
}, []string{"result"})

var AuditWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
	Name: "trust_audit_write_failures_total",
	Help: "Admin action audit records that could not be written",
})

var ReputationChanges = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "trust_reputation_tier_changes_total",
	Help: "Tier transitions after reputation recompute",
}, []string{"direction"})
