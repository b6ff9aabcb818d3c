package models

// ValidationRequest is the order context a coupon is checked against.
// UserID may be empty for guest carts; user-scoped checks are skipped then.
type ValidationRequest struct {
	Code        string  `json:"code"`
	UserID      string  `json:"user_id"`
	OrderAmount float64 `json:"order_amount"`
	ProductIDs  []int64 `json:"product_ids"`
	CategoryIDs []int64 `json:"category_ids"`
}

// ValidationResult is a decision, not an error: rejections are ordinary
// outcomes and come back with Valid=false and a human-readable Message.
type ValidationResult struct {
	Valid          bool    `json:"valid"`
	DiscountAmount float64 `json:"discount_amount"`
	Coupon         *Coupon `json:"coupon,omitempty"`
	Message        string  `json:"message,omitempty"`
}

// RedemptionRequest records one successful application of a coupon to an
// order.
type RedemptionRequest struct {
	CouponID       int64   `json:"coupon_id"`
	UserID         string  `json:"user_id"`
	OrderID        string  `json:"order_id"`
	OrderTotal     float64 `json:"order_total"`
	DiscountAmount float64 `json:"discount_amount"`
}
