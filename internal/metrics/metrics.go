package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Validation outcomes, labelled by result: accepted, rejected, or error
// (backend failure during validation).
var ValidationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "upwear",
	Subsystem: "coupons",
	Name:      "validations_total",
	Help:      "Coupon validation attempts by outcome.",
}, []string{"outcome"})

var RedemptionsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "upwear",
	Subsystem: "coupons",
	Name:      "redemptions_total",
	Help:      "Successfully recorded coupon redemptions.",
})

var ReconcileRepairsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "upwear",
	Subsystem: "coupons",
	Name:      "reconcile_repairs_total",
	Help:      "used_count repairs applied by the ledger reconciler.",
})
