package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/upwear/coupon-service/internal/models"
)

// --- fakes ---

type fakeCouponStore struct {
	byCode     map[string]*models.Coupon
	byID       map[int64]*models.Coupon
	listErr    error
	consumeErr error
}

func newFakeCouponStore(coupons ...*models.Coupon) *fakeCouponStore {
	s := &fakeCouponStore{
		byCode: make(map[string]*models.Coupon),
		byID:   make(map[int64]*models.Coupon),
	}
	for _, c := range coupons {
		s.byCode[c.Code] = c
		s.byID[c.ID] = c
	}
	return s
}

func (s *fakeCouponStore) GetByCode(_ context.Context, code string) (*models.Coupon, error) {
	c, ok := s.byCode[code]
	if !ok {
		return nil, models.ErrCouponNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *fakeCouponStore) GetByID(_ context.Context, id int64) (*models.Coupon, error) {
	c, ok := s.byID[id]
	if !ok {
		return nil, models.ErrCouponNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *fakeCouponStore) ListPublic(_ context.Context) ([]models.Coupon, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []models.Coupon
	for _, c := range s.byID {
		if c.IsActive && c.IsPublic {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (s *fakeCouponStore) ConsumeUsage(_ context.Context, _ *sql.Tx, id int64) error {
	if s.consumeErr != nil {
		return s.consumeErr
	}
	c, ok := s.byID[id]
	if !ok {
		return models.ErrCouponNotFound
	}
	if c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit {
		return models.ErrUsageLimitReached
	}
	c.UsedCount++
	return nil
}

type fakeUsageStore struct {
	rows      []models.CouponUsage
	countErr  error
	insertErr error
}

func (s *fakeUsageStore) Insert(_ context.Context, _ *sql.Tx, u models.CouponUsage) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.rows = append(s.rows, u)
	return nil
}

func (s *fakeUsageStore) CountForUser(_ context.Context, couponID int64, userID string) (int64, error) {
	if s.countErr != nil {
		return 0, s.countErr
	}
	var n int64
	for _, u := range s.rows {
		if u.CouponID == couponID && u.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (s *fakeUsageStore) Analytics(_ context.Context, couponID int64) (models.CouponAnalytics, error) {
	a := models.CouponAnalytics{CouponID: couponID}
	for _, u := range s.rows {
		if u.CouponID != couponID {
			continue
		}
		a.UsageCount++
		a.TotalDiscount += u.DiscountAmount
		a.TotalRevenue += u.OrderTotal
	}
	if a.UsageCount > 0 {
		a.AverageOrderValue = a.TotalRevenue / float64(a.UsageCount)
	}
	return a, nil
}

type fakeOrderStore struct {
	orders map[string]int64
	err    error
}

func (s *fakeOrderStore) CountNonCancelled(_ context.Context, userID string) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	return s.orders[userID], nil
}

func newTestService(t *testing.T, coupons *fakeCouponStore, usages *fakeUsageStore, orders *fakeOrderStore) (*CouponService, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	if usages == nil {
		usages = &fakeUsageStore{}
	}
	if orders == nil {
		orders = &fakeOrderStore{}
	}
	return NewCouponService(conn, coupons, usages, orders, nil, zerolog.Nop()), mock
}

func percentCoupon(id int64, code string, value float64) *models.Coupon {
	return &models.Coupon{
		ID:            id,
		Code:          code,
		DiscountType:  models.DiscountPercentage,
		DiscountValue: value,
		IsActive:      true,
	}
}

// --- validator ---

func TestValidatePercentageDiscount(t *testing.T) {
	svc, _ := newTestService(t, newFakeCouponStore(percentCoupon(1, "QUARTER", 25)), nil, nil)

	res := svc.Validate(context.Background(), models.ValidationRequest{Code: "QUARTER", OrderAmount: 80})
	require.True(t, res.Valid)
	require.InDelta(t, 20, res.DiscountAmount, 1e-9)
	require.NotNil(t, res.Coupon)
}

func TestValidateFixedAmountNeverExceedsOrder(t *testing.T) {
	c := &models.Coupon{ID: 1, Code: "FIFTY", DiscountType: models.DiscountFixedAmount, DiscountValue: 50, IsActive: true}
	svc, _ := newTestService(t, newFakeCouponStore(c), nil, nil)

	res := svc.Validate(context.Background(), models.ValidationRequest{Code: "FIFTY", OrderAmount: 30})
	require.True(t, res.Valid)
	require.InDelta(t, 30, res.DiscountAmount, 1e-9)
}

func TestValidateFreeShippingHasZeroDiscount(t *testing.T) {
	c := &models.Coupon{ID: 1, Code: "SHIPFREE", DiscountType: models.DiscountFreeShipping, IsActive: true}
	svc, _ := newTestService(t, newFakeCouponStore(c), nil, nil)

	res := svc.Validate(context.Background(), models.ValidationRequest{Code: "SHIPFREE", OrderAmount: 120})
	require.True(t, res.Valid)
	require.Zero(t, res.DiscountAmount)
}

func TestValidateCodeIsCaseInsensitive(t *testing.T) {
	svc, _ := newTestService(t, newFakeCouponStore(percentCoupon(1, "ABC123", 10)), nil, nil)

	lower := svc.Validate(context.Background(), models.ValidationRequest{Code: "abc123", OrderAmount: 100})
	upper := svc.Validate(context.Background(), models.ValidationRequest{Code: "ABC123", OrderAmount: 100})
	require.True(t, lower.Valid)
	require.Equal(t, upper, lower)
}

func TestValidateUnknownCode(t *testing.T) {
	svc, _ := newTestService(t, newFakeCouponStore(), nil, nil)

	res := svc.Validate(context.Background(), models.ValidationRequest{Code: "NOPE", OrderAmount: 10})
	require.False(t, res.Valid)
	require.Equal(t, msgNotFound, res.Message)
}

func TestValidateInactiveCoupon(t *testing.T) {
	c := percentCoupon(1, "OFF", 10)
	c.IsActive = false
	svc, _ := newTestService(t, newFakeCouponStore(c), nil, nil)

	res := svc.Validate(context.Background(), models.ValidationRequest{Code: "OFF", OrderAmount: 10})
	require.False(t, res.Valid)
	require.Equal(t, msgInactive, res.Message)
}

func TestValidateWindowBoundaries(t *testing.T) {
	now := time.Now().UTC()

	expired := percentCoupon(1, "OLD", 10)
	past := now.Add(-time.Second)
	expired.ValidTo = &past

	current := percentCoupon(2, "FRESH", 10)
	future := now.Add(time.Hour)
	current.ValidTo = &future

	upcoming := percentCoupon(3, "SOON", 10)
	upcoming.ValidFrom = &future

	svc, _ := newTestService(t, newFakeCouponStore(expired, current, upcoming), nil, nil)
	ctx := context.Background()

	res := svc.Validate(ctx, models.ValidationRequest{Code: "OLD", OrderAmount: 10})
	require.False(t, res.Valid)
	require.Equal(t, msgExpired, res.Message)

	res = svc.Validate(ctx, models.ValidationRequest{Code: "FRESH", OrderAmount: 10})
	require.True(t, res.Valid)

	res = svc.Validate(ctx, models.ValidationRequest{Code: "SOON", OrderAmount: 10})
	require.False(t, res.Valid)
	require.Equal(t, msgNotYetValid, res.Message)
}

func TestValidateMinimumAmount(t *testing.T) {
	c := percentCoupon(1, "BIGCART", 10)
	min := 50.0
	c.MinimumAmount = &min
	svc, _ := newTestService(t, newFakeCouponStore(c), nil, nil)
	ctx := context.Background()

	res := svc.Validate(ctx, models.ValidationRequest{Code: "BIGCART", OrderAmount: 49.99})
	require.False(t, res.Valid)
	require.Contains(t, res.Message, "50.00")

	// the floor is inclusive
	res = svc.Validate(ctx, models.ValidationRequest{Code: "BIGCART", OrderAmount: 50})
	require.True(t, res.Valid)
}

func TestValidateUsageLimitExhausted(t *testing.T) {
	c := percentCoupon(1, "CAPPED", 10)
	limit := int64(3)
	c.UsageLimit = &limit
	c.UsedCount = 3
	svc, _ := newTestService(t, newFakeCouponStore(c), nil, nil)

	res := svc.Validate(context.Background(), models.ValidationRequest{Code: "CAPPED", OrderAmount: 10})
	require.False(t, res.Valid)
	require.Equal(t, msgLimitReached, res.Message)
}

func TestValidatePerUserLimitIsolatesUsers(t *testing.T) {
	c := percentCoupon(1, "ONCEEACH", 10)
	perUser := int64(1)
	c.UsageLimitPerUser = &perUser

	usages := &fakeUsageStore{rows: []models.CouponUsage{
		{CouponID: 1, UserID: "user-a", OrderID: "o-1"},
	}}
	svc, _ := newTestService(t, newFakeCouponStore(c), usages, nil)
	ctx := context.Background()

	res := svc.Validate(ctx, models.ValidationRequest{Code: "ONCEEACH", UserID: "user-a", OrderAmount: 10})
	require.False(t, res.Valid)
	require.Equal(t, msgUserLimit, res.Message)

	res = svc.Validate(ctx, models.ValidationRequest{Code: "ONCEEACH", UserID: "user-b", OrderAmount: 10})
	require.True(t, res.Valid)
}

func TestValidateFirstTimeCustomerGate(t *testing.T) {
	c := percentCoupon(1, "WELCOME", 15)
	c.FirstTimeCustomersOnly = true

	// cancelled orders never count, so the store only reports the rest
	orders := &fakeOrderStore{orders: map[string]int64{"returning": 1, "cancelled-only": 0}}
	svc, _ := newTestService(t, newFakeCouponStore(c), nil, orders)
	ctx := context.Background()

	res := svc.Validate(ctx, models.ValidationRequest{Code: "WELCOME", UserID: "returning", OrderAmount: 10})
	require.False(t, res.Valid)
	require.Equal(t, msgFirstTimeOnly, res.Message)

	res = svc.Validate(ctx, models.ValidationRequest{Code: "WELCOME", UserID: "new-user", OrderAmount: 10})
	require.True(t, res.Valid)

	res = svc.Validate(ctx, models.ValidationRequest{Code: "WELCOME", UserID: "cancelled-only", OrderAmount: 10})
	require.True(t, res.Valid)
}

func TestValidateAllowLists(t *testing.T) {
	c := percentCoupon(1, "SHOES", 10)
	c.ApplicableProducts = []int64{7, 8}
	c.ApplicableCategories = []int64{3}
	svc, _ := newTestService(t, newFakeCouponStore(c), nil, nil)
	ctx := context.Background()

	res := svc.Validate(ctx, models.ValidationRequest{Code: "SHOES", OrderAmount: 10, ProductIDs: []int64{7}})
	require.True(t, res.Valid)

	// category allow-lists gate redemption just like product ones
	res = svc.Validate(ctx, models.ValidationRequest{Code: "SHOES", OrderAmount: 10, CategoryIDs: []int64{3}})
	require.True(t, res.Valid)

	res = svc.Validate(ctx, models.ValidationRequest{Code: "SHOES", OrderAmount: 10, ProductIDs: []int64{99}, CategoryIDs: []int64{4}})
	require.False(t, res.Valid)
	require.Equal(t, msgNotApplicable, res.Message)
}

func TestValidateDenyLists(t *testing.T) {
	c := percentCoupon(1, "MOSTLY", 10)
	c.ExcludedProducts = []int64{5}
	c.ExcludedCategories = []int64{9}
	svc, _ := newTestService(t, newFakeCouponStore(c), nil, nil)
	ctx := context.Background()

	res := svc.Validate(ctx, models.ValidationRequest{Code: "MOSTLY", OrderAmount: 10, ProductIDs: []int64{5, 6}})
	require.False(t, res.Valid)
	require.Equal(t, msgExcludedItems, res.Message)

	res = svc.Validate(ctx, models.ValidationRequest{Code: "MOSTLY", OrderAmount: 10, CategoryIDs: []int64{9}})
	require.False(t, res.Valid)
	require.Equal(t, msgExcludedItems, res.Message)

	res = svc.Validate(ctx, models.ValidationRequest{Code: "MOSTLY", OrderAmount: 10, ProductIDs: []int64{6}})
	require.True(t, res.Valid)
}

func TestValidateBackendFailureIsGenericRejection(t *testing.T) {
	c := percentCoupon(1, "FLAKY", 10)
	perUser := int64(2)
	c.UsageLimitPerUser = &perUser

	usages := &fakeUsageStore{countErr: errors.New("connection refused")}
	svc, _ := newTestService(t, newFakeCouponStore(c), usages, nil)

	res := svc.Validate(context.Background(), models.ValidationRequest{Code: "FLAKY", UserID: "u", OrderAmount: 10})
	require.False(t, res.Valid)
	require.Equal(t, msgValidateFailed, res.Message)
}

func TestValidateIsIdempotent(t *testing.T) {
	usages := &fakeUsageStore{}
	svc, _ := newTestService(t, newFakeCouponStore(percentCoupon(1, "AGAIN", 10)), usages, nil)
	req := models.ValidationRequest{Code: "AGAIN", UserID: "u", OrderAmount: 40}
	ctx := context.Background()

	first := svc.Validate(ctx, req)
	second := svc.Validate(ctx, req)
	require.Equal(t, first, second)
	require.Empty(t, usages.rows, "validation must not write")
}

// --- recorder ---

func TestRedeemWritesLedgerAndCounterTogether(t *testing.T) {
	coupons := newFakeCouponStore(percentCoupon(1, "SAVE", 10))
	usages := &fakeUsageStore{}
	svc, mock := newTestService(t, coupons, usages, nil)

	mock.ExpectBegin()
	mock.ExpectCommit()

	err := svc.Redeem(context.Background(), models.RedemptionRequest{
		CouponID: 1, UserID: "u", OrderID: "order-1", OrderTotal: 100, DiscountAmount: 10,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, usages.rows, 1)
	require.Equal(t, "order-1", usages.rows[0].OrderID)
	require.Equal(t, int64(1), coupons.byID[1].UsedCount)
}

func TestRedeemExhaustedCouponConflicts(t *testing.T) {
	c := percentCoupon(1, "GONE", 10)
	limit := int64(1)
	c.UsageLimit = &limit
	c.UsedCount = 1
	usages := &fakeUsageStore{}
	svc, mock := newTestService(t, newFakeCouponStore(c), usages, nil)

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := svc.Redeem(context.Background(), models.RedemptionRequest{CouponID: 1, UserID: "u", OrderID: "o"})
	require.ErrorIs(t, err, models.ErrUsageLimitReached)
	require.NoError(t, mock.ExpectationsWereMet())
	require.Empty(t, usages.rows)
}

func TestRedeemLedgerFailureRollsBack(t *testing.T) {
	coupons := newFakeCouponStore(percentCoupon(1, "SAVE", 10))
	usages := &fakeUsageStore{insertErr: errors.New("disk full")}
	svc, mock := newTestService(t, coupons, usages, nil)

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := svc.Redeem(context.Background(), models.RedemptionRequest{CouponID: 1, UserID: "u", OrderID: "o"})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

// --- end to end ---

func TestSingleUseCouponLifecycle(t *testing.T) {
	c := percentCoupon(1, "SAVE10", 10)
	limit := int64(1)
	c.UsageLimit = &limit
	usages := &fakeUsageStore{}
	svc, mock := newTestService(t, newFakeCouponStore(c), usages, nil)
	ctx := context.Background()

	res := svc.Validate(ctx, models.ValidationRequest{Code: "SAVE10", UserID: "user-x", OrderAmount: 100})
	require.True(t, res.Valid)
	require.InDelta(t, 10, res.DiscountAmount, 1e-9)

	mock.ExpectBegin()
	mock.ExpectCommit()
	err := svc.Redeem(ctx, models.RedemptionRequest{
		CouponID:       res.Coupon.ID,
		UserID:         "user-x",
		OrderID:        "order-1",
		OrderTotal:     100,
		DiscountAmount: res.DiscountAmount,
	})
	require.NoError(t, err)

	res = svc.Validate(ctx, models.ValidationRequest{Code: "SAVE10", UserID: "user-x", OrderAmount: 100})
	require.False(t, res.Valid)
	require.Contains(t, res.Message, "usage limit")
}

// --- applicable listing & analytics ---

func TestApplicableFiltersByCartContext(t *testing.T) {
	cheap := percentCoupon(1, "ANYCART", 5)
	cheap.IsPublic = true

	pricey := percentCoupon(2, "BIGSPEND", 20)
	pricey.IsPublic = true
	min := 500.0
	pricey.MinimumAmount = &min

	hidden := percentCoupon(3, "SECRET", 50)

	svc, _ := newTestService(t, newFakeCouponStore(cheap, pricey, hidden), nil, nil)

	coupons, err := svc.Applicable(context.Background(), models.ValidationRequest{OrderAmount: 60})
	require.NoError(t, err)
	require.Len(t, coupons, 1)
	require.Equal(t, "ANYCART", coupons[0].Code)
}

func TestAnalyticsAggregatesLedger(t *testing.T) {
	usages := &fakeUsageStore{rows: []models.CouponUsage{
		{CouponID: 1, UserID: "a", OrderTotal: 100, DiscountAmount: 10},
		{CouponID: 1, UserID: "b", OrderTotal: 60, DiscountAmount: 6},
		{CouponID: 2, UserID: "a", OrderTotal: 999, DiscountAmount: 99},
	}}
	svc, _ := newTestService(t, newFakeCouponStore(percentCoupon(1, "X", 10)), usages, nil)

	stats, err := svc.Analytics(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, int64(2), stats.UsageCount)
	require.InDelta(t, 16, stats.TotalDiscount, 1e-9)
	require.InDelta(t, 160, stats.TotalRevenue, 1e-9)
	require.InDelta(t, 80, stats.AverageOrderValue, 1e-9)
}

func TestAnalyticsUnknownCoupon(t *testing.T) {
	svc, _ := newTestService(t, newFakeCouponStore(), nil, nil)

	_, err := svc.Analytics(context.Background(), 42)
	require.ErrorIs(t, err, models.ErrCouponNotFound)
}

func TestDiscountForTable(t *testing.T) {
	cases := []struct {
		name   string
		dtype  string
		value  float64
		amount float64
		want   float64
	}{
		{"percentage", models.DiscountPercentage, 25, 80, 20},
		{"fixed under order", models.DiscountFixedAmount, 5, 80, 5},
		{"fixed capped", models.DiscountFixedAmount, 50, 30, 30},
		{"free shipping", models.DiscountFreeShipping, 999, 30, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := &models.Coupon{DiscountType: tc.dtype, DiscountValue: tc.value}
			require.InDelta(t, tc.want, discountFor(c, tc.amount), 1e-9)
		})
	}
}
