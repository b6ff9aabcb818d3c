package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/upwear/coupon-service/internal/api/handlers"
)

// NewRouter builds the HTTP router for the coupon-service.
func NewRouter(svc handlers.CouponService, admin handlers.CouponAdmin) http.Handler {
	r := chi.NewRouter()

	h := handlers.NewCouponHandler(svc, admin)

	// storefront endpoints
	r.Route("/coupons", func(r chi.Router) {
		r.Post("/validate", h.ValidateCoupon)
		r.Get("/applicable", h.ApplicableCoupons)
	})

	// order flow hook
	r.Post("/internal/redemptions", h.RecordRedemption)

	// admin endpoints
	r.Route("/admin/coupons", func(r chi.Router) {
		r.Post("/", h.CreateCoupon)
		r.Get("/", h.ListCoupons)
		r.Get("/{id}", h.GetCoupon)
		r.Patch("/{id}", h.UpdateCoupon)
		r.Delete("/{id}", h.DeleteCoupon)
		r.Get("/{id}/analytics", h.CouponAnalytics)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	return r
}
