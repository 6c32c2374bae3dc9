package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// Metric handles are usable before InitCustomMetrics runs; registration only exposes them.
var (
	BridgeRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "collab_bridge_requests_total",
		Help: "Interop bridge requests by request type and outcome.",
	}, []string{"type", "outcome"})
	ScopedValueConflictsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "collab_scoped_value_conflicts_total",
		Help: "Scoped value writes rejected because of a version mismatch.",
	})
	ScopedValueWritesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "collab_scoped_value_writes_total",
		Help: "Scoped values written by scope.",
	}, []string{"scope"})
	LoginSuccessTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "collab_logins_success_total",
		Help: "Successful logins by connection.",
	}, []string{"connection"})
	LoginFailureTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "collab_logins_failure_total",
		Help: "Failed logins by connection.",
	}, []string{"connection"})
	AccountsCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "collab_accounts_created_total",
		Help: "Accounts created through signup.",
	})
	IdentityLinksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "collab_identity_links_total",
		Help: "External identity link operations by action (link, unlink, conflict).",
	}, []string{"action"})
	ConversationReferencesWrittenTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "collab_conversation_references_written_total",
		Help: "Conversation reference writes by outcome.",
	}, []string{"outcome"})
	ProactiveMessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "collab_proactive_messages_total",
		Help: "Proactive bot messages by outcome.",
	}, []string{"outcome"})
)

// InitCustomMetrics registers the custom collectors with reg.
// It should be called once at application startup.
func InitCustomMetrics(reg prometheus.Registerer) {
	if reg == nil {
		log.Error().Msg("Prometheus registry is nil, cannot register custom metrics.")
		return
	}
	collectors := []prometheus.Collector{
		BridgeRequestsTotal,
		ScopedValueConflictsTotal,
		ScopedValueWritesTotal,
		LoginSuccessTotal,
		LoginFailureTotal,
		AccountsCreatedTotal,
		IdentityLinksTotal,
		ConversationReferencesWrittenTotal,
		ProactiveMessagesTotal,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			log.Warn().Err(err).Msg("Failed to register metric")
		}
	}
	log.Info().Msg("Custom Prometheus metrics registered.")
}
