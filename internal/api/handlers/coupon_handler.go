package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/upwear/coupon-service/internal/models"
)

// CouponService is the storefront-facing surface: validation, redemption
// recording, applicable listing and analytics.
type CouponService interface {
	Validate(ctx context.Context, req models.ValidationRequest) models.ValidationResult
	Redeem(ctx context.Context, req models.RedemptionRequest) error
	Applicable(ctx context.Context, req models.ValidationRequest) ([]models.Coupon, error)
	Analytics(ctx context.Context, couponID int64) (models.CouponAnalytics, error)
}

// CouponAdmin is the repository surface the admin screens use.
type CouponAdmin interface {
	GetByID(ctx context.Context, id int64) (*models.Coupon, error)
	List(ctx context.Context, filter models.CouponFilter) ([]models.Coupon, error)
	Create(ctx context.Context, actor string, form models.CouponForm) (*models.Coupon, error)
	Update(ctx context.Context, actor string, id int64, patch models.CouponPatch) (*models.Coupon, error)
	Delete(ctx context.Context, actor string, id int64) error
}

type CouponHandler struct {
	svc   CouponService
	admin CouponAdmin
}

func NewCouponHandler(svc CouponService, admin CouponAdmin) *CouponHandler {
	return &CouponHandler{svc: svc, admin: admin}
}

// envelope is the shared response shape: {success, data|error}.
type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func writeData(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(envelope{Success: false, Error: msg})
}

// actor identifies the admin user for the audit trail.
func actor(r *http.Request) string {
	if id := r.Header.Get("X-Admin-ID"); id != "" {
		return id
	}
	return "system"
}

func couponID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

// ValidateCoupon handles POST /coupons/validate. A rejected coupon is a
// successful validation call; the decision travels in the payload.
func (h *CouponHandler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	var req models.ValidationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}

	result := h.svc.Validate(r.Context(), req)
	writeData(w, http.StatusOK, result)
}

// ApplicableCoupons handles GET /coupons/applicable. The cart context comes
// in as query parameters; product_ids and category_ids are comma-separated.
func (h *CouponHandler) ApplicableCoupons(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	req := models.ValidationRequest{UserID: q.Get("user_id")}
	if raw := q.Get("order_amount"); raw != "" {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid order_amount")
			return
		}
		req.OrderAmount = f
	}
	var err error
	if req.ProductIDs, err = parseIDList(q.Get("product_ids")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid product_ids")
		return
	}
	if req.CategoryIDs, err = parseIDList(q.Get("category_ids")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid category_ids")
		return
	}

	coupons, err := h.svc.Applicable(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not list applicable coupons")
		return
	}
	writeData(w, http.StatusOK, coupons)
}

// RecordRedemption handles POST /internal/redemptions, called by the order
// flow once checkout completes.
func (h *CouponHandler) RecordRedemption(w http.ResponseWriter, r *http.Request) {
	var req models.RedemptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CouponID == 0 || req.OrderID == "" {
		writeError(w, http.StatusBadRequest, "coupon_id and order_id are required")
		return
	}

	err := h.svc.Redeem(r.Context(), req)
	switch {
	case errors.Is(err, models.ErrCouponNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrUsageLimitReached):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, "could not record redemption")
	default:
		writeData(w, http.StatusCreated, map[string]int64{"coupon_id": req.CouponID})
	}
}

// CreateCoupon handles POST /admin/coupons.
func (h *CouponHandler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	var form models.CouponForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := validateForm(form); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	coupon, err := h.admin.Create(r.Context(), actor(r), form)
	if errors.Is(err, models.ErrDuplicateCode) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not create coupon")
		return
	}
	writeData(w, http.StatusCreated, coupon)
}

// ListCoupons handles GET /admin/coupons?search=&is_active=&is_public=.
func (h *CouponHandler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.CouponFilter{Search: q.Get("search")}
	if raw := q.Get("is_active"); raw != "" {
		v := raw == "true"
		filter.IsActive = &v
	}
	if raw := q.Get("is_public"); raw != "" {
		v := raw == "true"
		filter.IsPublic = &v
	}

	coupons, err := h.admin.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not list coupons")
		return
	}
	writeData(w, http.StatusOK, coupons)
}

// GetCoupon handles GET /admin/coupons/{id}.
func (h *CouponHandler) GetCoupon(w http.ResponseWriter, r *http.Request) {
	id, err := couponID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid coupon id")
		return
	}

	coupon, err := h.admin.GetByID(r.Context(), id)
	if errors.Is(err, models.ErrCouponNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not load coupon")
		return
	}
	writeData(w, http.StatusOK, coupon)
}

// UpdateCoupon handles PATCH /admin/coupons/{id}.
func (h *CouponHandler) UpdateCoupon(w http.ResponseWriter, r *http.Request) {
	id, err := couponID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid coupon id")
		return
	}

	var patch models.CouponPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	coupon, err := h.admin.Update(r.Context(), actor(r), id, patch)
	switch {
	case errors.Is(err, models.ErrCouponNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrDuplicateCode):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, "could not update coupon")
	default:
		writeData(w, http.StatusOK, coupon)
	}
}

// DeleteCoupon handles DELETE /admin/coupons/{id}. Coupons with recorded
// redemptions cannot be deleted; deactivate them instead.
func (h *CouponHandler) DeleteCoupon(w http.ResponseWriter, r *http.Request) {
	id, err := couponID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid coupon id")
		return
	}

	err = h.admin.Delete(r.Context(), actor(r), id)
	switch {
	case errors.Is(err, models.ErrCouponNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrCouponInUse):
		writeError(w, http.StatusConflict, "coupon has redemptions; deactivate it instead")
	case err != nil:
		writeError(w, http.StatusInternalServerError, "could not delete coupon")
	default:
		writeData(w, http.StatusOK, map[string]int64{"id": id})
	}
}

// CouponAnalytics handles GET /admin/coupons/{id}/analytics.
func (h *CouponHandler) CouponAnalytics(w http.ResponseWriter, r *http.Request) {
	id, err := couponID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid coupon id")
		return
	}

	stats, err := h.svc.Analytics(r.Context(), id)
	if errors.Is(err, models.ErrCouponNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not load analytics")
		return
	}
	writeData(w, http.StatusOK, stats)
}

func validateForm(form models.CouponForm) string {
	if strings.TrimSpace(form.Code) == "" {
		return "code is required"
	}
	switch form.DiscountType {
	case models.DiscountPercentage:
		if form.DiscountValue <= 0 || form.DiscountValue > 100 {
			return "percentage discount must be between 0 and 100"
		}
	case models.DiscountFixedAmount:
		if form.DiscountValue <= 0 {
			return "fixed amount discount must be positive"
		}
	case models.DiscountFreeShipping:
		// discount_value is ignored
	default:
		return "unknown discount_type"
	}
	if form.ValidFrom != nil && form.ValidTo != nil && form.ValidTo.Before(*form.ValidFrom) {
		return "valid_to must not be before valid_from"
	}
	return ""
}

func parseIDList(raw string) ([]int64, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
