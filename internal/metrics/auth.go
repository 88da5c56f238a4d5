package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Auth-related Prometheus metrics. Defined in a standalone package to avoid
// import cycles between protocol packages and the HTTP layer.

var (
	AuthAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authgate_auth_attempts_total",
		Help: "Intentos de autenticación por provider y resultado",
	}, []string{"provider", "result"})

	TokensMinted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authgate_tokens_minted_total",
		Help: "Bearer tokens emitidos",
	})

	RefreshRotations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authgate_refresh_rotations_total",
		Help: "Rotaciones de refresh token exitosas",
	})

	RefreshCASConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authgate_refresh_cas_conflicts_total",
		Help: "Conflictos CAS durante rotación de refresh token",
	})

	JWKSFetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authgate_jwks_fetches_total",
		Help: "Fetches del key set público de providers",
	}, []string{"provider", "result"})

	ProviderExchangeLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "authgate_provider_exchange_seconds",
		Help:    "Latencia del intercambio de tokens contra el provider",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider"})
)

// Register registers the auth metrics on the given registry (or default if nil).
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	collectors := []prometheus.Collector{
		AuthAttempts,
		TokensMinted,
		RefreshRotations,
		RefreshCASConflicts,
		JWKSFetches,
		ProviderExchangeLatency,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
