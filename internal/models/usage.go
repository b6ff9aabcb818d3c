package models

import "time"

// CouponUsage is one row of the redemption ledger. Rows are append-only;
// redemption history is never rewritten.
type CouponUsage struct {
	ID             int64     `json:"id"`
	CouponID       int64     `json:"coupon_id"`
	UserID         string    `json:"user_id"`
	OrderID        string    `json:"order_id"`
	DiscountAmount float64   `json:"discount_amount"`
	OrderTotal     float64   `json:"order_total"`
	CreatedAt      time.Time `json:"created_at"`
}

// CouponAnalytics aggregates the ledger for one coupon.
type CouponAnalytics struct {
	CouponID          int64   `json:"coupon_id"`
	UsageCount        int64   `json:"usage_count"`
	TotalDiscount     float64 `json:"total_discount"`
	TotalRevenue      float64 `json:"total_revenue"`
	AverageOrderValue float64 `json:"average_order_value"`
}
