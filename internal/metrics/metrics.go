package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// Counters are usable before Register is called; registering only exposes them.
var (
	TokensIssuedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_auth_tokens_issued_total",
		Help: "Bearer credentials issued, by grant type.",
	}, []string{"grant_type"})

	TokenErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_auth_token_errors_total",
		Help: "Token endpoint failures, by OAuth error code.",
	}, []string{"error"})

	RotationRollbacksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "agent_auth_rotation_rollbacks_total",
		Help: "Token rotations rolled back after a signing failure.",
	})

	LoginsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_auth_logins_total",
		Help: "Upstream login attempts, by outcome.",
	}, []string{"outcome"})

	UpstreamRefreshesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "agent_auth_upstream_refreshes_total",
		Help: "Upstream tokens re-acquired with stored credentials.",
	})

	SessionReconstructionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "agent_auth_session_reconstructions_total",
		Help: "Sessions rebuilt from bearer credential claims.",
	})

	OrphanIndicesHealedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "agent_auth_orphan_indices_healed_total",
		Help: "Token index entries deleted because they no longer matched a session.",
	})

	DetachedWriteFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "agent_auth_detached_write_failures_total",
		Help: "Fire-and-forget session writes that failed.",
	})
)

// Register exposes all counters on reg.
func Register(reg prometheus.Registerer) {
	if reg == nil {
		log.Error().Msg("prometheus registry is nil, metrics not registered")
		return
	}
	for _, c := range []prometheus.Collector{
		TokensIssuedTotal,
		TokenErrorsTotal,
		RotationRollbacksTotal,
		LoginsTotal,
		UpstreamRefreshesTotal,
		SessionReconstructionsTotal,
		OrphanIndicesHealedTotal,
		DetachedWriteFailuresTotal,
	} {
		if err := reg.Register(c); err != nil {
			log.Warn().Err(err).Msg("failed to register metric")
		}
	}
}
