package services

import "github.com/prometheus/client_golang/prometheus"

var (
	missionsCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledger_missions_completed_total",
		Help: "Missions transitioned from pending to completed",
	})
	missionConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledger_mission_conflicts_total",
		Help: "Completion attempts rejected because the mission was already completed",
	})
	paymentsCaptured = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_captured_total",
		Help: "Payment transactions created, by initial status and method",
	}, []string{"status", "method"})
	paymentsVerified = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_verified_total",
		Help: "Payment transactions resolved by a verifier, by outcome and verifier",
	}, []string{"status", "verifier"})
	geoFallbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "country_detection_fallbacks_total",
		Help: "Country detections that fell back, by reason",
	}, []string{"reason"})
)

// Collectors returns the service-level metrics for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		missionsCompleted,
		missionConflicts,
		paymentsCaptured,
		paymentsVerified,
		geoFallbacks,
	}
}
