package models

import "errors"

var (
	// ErrCouponNotFound is returned when a code or id resolves to no row.
	ErrCouponNotFound = errors.New("coupon not found")
	// ErrDuplicateCode is returned on create when the code already exists.
	ErrDuplicateCode = errors.New("coupon code already exists")
	// ErrCouponInUse blocks hard deletes of coupons with recorded
	// redemptions; deactivate instead.
	ErrCouponInUse = errors.New("coupon has recorded redemptions")
	// ErrUsageLimitReached is returned by the recorder when the conditional
	// increment finds the coupon exhausted.
	ErrUsageLimitReached = errors.New("coupon usage limit reached")
)
