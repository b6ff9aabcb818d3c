package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/upwear/coupon-service/internal/cache"
	"github.com/upwear/coupon-service/internal/metrics"
	"github.com/upwear/coupon-service/internal/models"
	"github.com/upwear/coupon-service/internal/repository"
)

// Stores required by the service. Interfaces so tests can substitute fakes.
type CouponStore interface {
	GetByCode(ctx context.Context, code string) (*models.Coupon, error)
	GetByID(ctx context.Context, id int64) (*models.Coupon, error)
	ListPublic(ctx context.Context) ([]models.Coupon, error)
	ConsumeUsage(ctx context.Context, tx *sql.Tx, couponID int64) error
}

type UsageStore interface {
	Insert(ctx context.Context, tx *sql.Tx, u models.CouponUsage) error
	CountForUser(ctx context.Context, couponID int64, userID string) (int64, error)
	Analytics(ctx context.Context, couponID int64) (models.CouponAnalytics, error)
}

type OrderStore interface {
	CountNonCancelled(ctx context.Context, userID string) (int64, error)
}

// Rejection messages, in check order. Wording is part of the contract: the
// storefront shows these verbatim.
const (
	msgNotFound       = "coupon not found"
	msgInactive       = "coupon is not active"
	msgNotYetValid    = "coupon is not valid yet"
	msgExpired        = "coupon has expired"
	msgLimitReached   = "coupon usage limit reached"
	msgUserLimit      = "coupon usage limit reached for this account"
	msgFirstTimeOnly  = "coupon is only valid for first-time customers"
	msgNotApplicable  = "coupon does not apply to the items in this order"
	msgExcludedItems  = "coupon cannot be used with some items in this order"
	msgValidateFailed = "could not validate coupon, please try again"
)

type CouponService struct {
	db      *sql.DB // transactions for the usage recorder
	coupons CouponStore
	usages  UsageStore
	orders  OrderStore
	cache   cache.CouponCache // optional
	log     zerolog.Logger
}

func NewCouponService(db *sql.DB, coupons CouponStore, usages UsageStore, orders OrderStore, c cache.CouponCache, log zerolog.Logger) *CouponService {
	return &CouponService{
		db:      db,
		coupons: coupons,
		usages:  usages,
		orders:  orders,
		cache:   c,
		log:     log,
	}
}

// Validate decides whether a coupon applies to an order and computes the
// discount. Rejections are results, not errors; backend failures are logged
// and come back as a generic rejection. Validation never writes.
func (s *CouponService) Validate(ctx context.Context, req models.ValidationRequest) models.ValidationResult {
	coupon, err := s.lookup(ctx, req.Code)
	if err != nil {
		if errors.Is(err, models.ErrCouponNotFound) {
			return s.reject(msgNotFound)
		}
		s.log.Error().Err(err).Str("code", req.Code).Msg("coupon lookup failed")
		metrics.ValidationsTotal.WithLabelValues("error").Inc()
		return models.ValidationResult{Valid: false, Message: msgValidateFailed}
	}

	msg, err := s.runChecks(ctx, coupon, req)
	if err != nil {
		s.log.Error().Err(err).Str("code", coupon.Code).Msg("coupon validation failed")
		metrics.ValidationsTotal.WithLabelValues("error").Inc()
		return models.ValidationResult{Valid: false, Message: msgValidateFailed}
	}
	if msg != "" {
		return s.reject(msg)
	}

	metrics.ValidationsTotal.WithLabelValues("accepted").Inc()
	return models.ValidationResult{
		Valid:          true,
		DiscountAmount: discountFor(coupon, req.OrderAmount),
		Coupon:         coupon,
	}
}

// runChecks walks the eligibility rules in order and returns the first
// rejection message, or "" when the coupon passes. Check order is fixed so
// the storefront's error messages stay deterministic.
func (s *CouponService) runChecks(ctx context.Context, c *models.Coupon, req models.ValidationRequest) (string, error) {
	now := time.Now().UTC()

	if !c.IsActive {
		return msgInactive, nil
	}
	if c.ValidFrom != nil && now.Before(*c.ValidFrom) {
		return msgNotYetValid, nil
	}
	if c.ValidTo != nil && now.After(*c.ValidTo) {
		return msgExpired, nil
	}
	if c.MinimumAmount != nil && req.OrderAmount < *c.MinimumAmount {
		return fmt.Sprintf("order total must be at least %.2f", *c.MinimumAmount), nil
	}
	if c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit {
		return msgLimitReached, nil
	}

	if req.UserID != "" && c.UsageLimitPerUser != nil {
		used, err := s.usages.CountForUser(ctx, c.ID, req.UserID)
		if err != nil {
			return "", err
		}
		if used >= *c.UsageLimitPerUser {
			return msgUserLimit, nil
		}
	}

	if c.FirstTimeCustomersOnly && req.UserID != "" {
		orders, err := s.orders.CountNonCancelled(ctx, req.UserID)
		if err != nil {
			return "", err
		}
		if orders > 0 {
			return msgFirstTimeOnly, nil
		}
	}

	// Allow-lists: products and categories gate redemption symmetrically.
	if len(c.ApplicableProducts) > 0 || len(c.ApplicableCategories) > 0 {
		if !intersects(c.ApplicableProducts, req.ProductIDs) &&
			!intersects(c.ApplicableCategories, req.CategoryIDs) {
			return msgNotApplicable, nil
		}
	}
	if intersects(c.ExcludedProducts, req.ProductIDs) ||
		intersects(c.ExcludedCategories, req.CategoryIDs) {
		return msgExcludedItems, nil
	}

	return "", nil
}

// Redeem records one redemption: the counter increment and the ledger insert
// share a transaction, and the increment itself re-checks the usage limit so
// concurrent redemptions cannot push a coupon past it.
func (s *CouponService) Redeem(ctx context.Context, req models.RedemptionRequest) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin redemption tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := s.coupons.ConsumeUsage(ctx, tx, req.CouponID); err != nil {
		return err
	}

	usage := models.CouponUsage{
		CouponID:       req.CouponID,
		UserID:         req.UserID,
		OrderID:        req.OrderID,
		DiscountAmount: req.DiscountAmount,
		OrderTotal:     req.OrderTotal,
	}
	if err := s.usages.Insert(ctx, tx, usage); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit redemption: %w", err)
	}
	committed = true

	metrics.RedemptionsTotal.Inc()
	s.log.Info().
		Int64("coupon_id", req.CouponID).
		Str("order_id", req.OrderID).
		Float64("discount", req.DiscountAmount).
		Msg("coupon redeemed")

	s.invalidate(ctx, req.CouponID)
	return nil
}

// Applicable lists the public coupons the given cart could redeem right now.
// A backend error while checking a single coupon skips that coupon rather
// than failing the whole listing.
func (s *CouponService) Applicable(ctx context.Context, req models.ValidationRequest) ([]models.Coupon, error) {
	coupons, err := s.coupons.ListPublic(ctx)
	if err != nil {
		return nil, fmt.Errorf("list public coupons: %w", err)
	}

	applicable := make([]models.Coupon, 0, len(coupons))
	for i := range coupons {
		msg, err := s.runChecks(ctx, &coupons[i], req)
		if err != nil {
			s.log.Warn().Err(err).Str("code", coupons[i].Code).Msg("skipping coupon in applicable listing")
			continue
		}
		if msg == "" {
			applicable = append(applicable, coupons[i])
		}
	}
	return applicable, nil
}

// Analytics aggregates the usage ledger for one coupon.
func (s *CouponService) Analytics(ctx context.Context, couponID int64) (models.CouponAnalytics, error) {
	if _, err := s.coupons.GetByID(ctx, couponID); err != nil {
		return models.CouponAnalytics{}, err
	}
	return s.usages.Analytics(ctx, couponID)
}

func (s *CouponService) lookup(ctx context.Context, code string) (*models.Coupon, error) {
	norm := repository.NormalizeCode(code)
	if s.cache != nil {
		if c, ok := s.cache.Get(ctx, norm); ok {
			return c, nil
		}
	}

	c, err := s.coupons.GetByCode(ctx, norm)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Set(ctx, c)
	}
	return c, nil
}

func (s *CouponService) invalidate(ctx context.Context, couponID int64) {
	if s.cache == nil {
		return
	}
	c, err := s.coupons.GetByID(ctx, couponID)
	if err != nil {
		s.log.Warn().Err(err).Int64("coupon_id", couponID).Msg("cache invalidate lookup failed")
		return
	}
	s.cache.Invalidate(ctx, c.Code)
}

func (s *CouponService) reject(msg string) models.ValidationResult {
	metrics.ValidationsTotal.WithLabelValues("rejected").Inc()
	return models.ValidationResult{Valid: false, Message: msg}
}

func discountFor(c *models.Coupon, orderAmount float64) float64 {
	switch c.DiscountType {
	case models.DiscountPercentage:
		return orderAmount * c.DiscountValue / 100
	case models.DiscountFixedAmount:
		// never discount more than the order is worth
		return math.Min(c.DiscountValue, orderAmount)
	default: // free_shipping: the checkout flow waives the charge
		return 0
	}
}

func intersects(a, b []int64) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[int64]struct{}, len(a))
	for _, v := range a {
		set[v] = struct{}{}
	}
	for _, v := range b {
		if _, ok := set[v]; ok {
			return true
		}
	}
	return false
}
