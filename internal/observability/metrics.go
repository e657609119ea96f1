package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CheckinsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "drinkonme", Name: "checkins_total", Help: "Total check-ins by origin (manual or geofence)"},
		[]string{"origin"},
	)
	CheckoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{Namespace: "drinkonme", Name: "checkouts_total", Help: "Total check-outs"},
	)
	EligibilityDenied = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "drinkonme", Name: "eligibility_denied_total", Help: "Admission denials by reason"},
		[]string{"reason"},
	)
	DrinksRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "drinkonme", Name: "drinks_recorded_total", Help: "Ledger entries recorded by direction"},
		[]string{"direction"},
	)
	RedemptionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "drinkonme", Name: "redemptions_total", Help: "Redemption attempts by result"},
		[]string{"result"},
	)
	TokensIssued = promauto.NewCounter(
		prometheus.CounterOpts{Namespace: "drinkonme", Name: "tokens_issued_total", Help: "Redemption tokens issued"},
	)
	TokensExpired = promauto.NewCounter(
		prometheus.CounterOpts{Namespace: "drinkonme", Name: "tokens_expired_total", Help: "Tokens marked expired by the sweep"},
	)
	VenueOccupancy = promauto.NewGaugeVec(
		prometheus.GaugeOpts{Namespace: "drinkonme", Name: "venue_occupancy", Help: "Active presence records per venue"},
		[]string{"venue_id"},
	)
)
