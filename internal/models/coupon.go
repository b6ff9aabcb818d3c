package models

import "time"

// Discount types a coupon can carry. For free_shipping the discount value is
// ignored; waiving the shipping charge is the checkout flow's job.
const (
	DiscountPercentage   = "percentage"
	DiscountFixedAmount  = "fixed_amount"
	DiscountFreeShipping = "free_shipping"
)

type Coupon struct {
	ID                     int64      `json:"id"`
	Code                   string     `json:"code"`
	DiscountType           string     `json:"discount_type"`
	DiscountValue          float64    `json:"discount_value"`
	MinimumAmount          *float64   `json:"minimum_amount,omitempty"`
	UsageLimit             *int64     `json:"usage_limit,omitempty"`
	UsageLimitPerUser      *int64     `json:"usage_limit_per_user,omitempty"`
	UsedCount              int64      `json:"used_count"`
	ValidFrom              *time.Time `json:"valid_from,omitempty"`
	ValidTo                *time.Time `json:"valid_to,omitempty"`
	ApplicableProducts     []int64    `json:"applicable_products,omitempty"`
	ApplicableCategories   []int64    `json:"applicable_categories,omitempty"`
	ExcludedProducts       []int64    `json:"excluded_products,omitempty"`
	ExcludedCategories     []int64    `json:"excluded_categories,omitempty"`
	FirstTimeCustomersOnly bool       `json:"first_time_customers_only"`
	IsActive               bool       `json:"is_active"`
	IsPublic               bool       `json:"is_public"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

// CouponForm carries the fields an admin supplies on create. Optional
// constraints stay nil and are stored as NULL.
type CouponForm struct {
	Code                   string     `json:"code"`
	DiscountType           string     `json:"discount_type"`
	DiscountValue          float64    `json:"discount_value"`
	MinimumAmount          *float64   `json:"minimum_amount"`
	UsageLimit             *int64     `json:"usage_limit"`
	UsageLimitPerUser      *int64     `json:"usage_limit_per_user"`
	ValidFrom              *time.Time `json:"valid_from"`
	ValidTo                *time.Time `json:"valid_to"`
	ApplicableProducts     []int64    `json:"applicable_products"`
	ApplicableCategories   []int64    `json:"applicable_categories"`
	ExcludedProducts       []int64    `json:"excluded_products"`
	ExcludedCategories     []int64    `json:"excluded_categories"`
	FirstTimeCustomersOnly bool       `json:"first_time_customers_only"`
	IsActive               *bool      `json:"is_active"`
	IsPublic               *bool      `json:"is_public"`
}

// CouponPatch is a partial update; nil fields are left untouched.
// Array fields replace the stored list wholesale when present.
type CouponPatch struct {
	Code                   *string    `json:"code"`
	DiscountType           *string    `json:"discount_type"`
	DiscountValue          *float64   `json:"discount_value"`
	MinimumAmount          *float64   `json:"minimum_amount"`
	UsageLimit             *int64     `json:"usage_limit"`
	UsageLimitPerUser      *int64     `json:"usage_limit_per_user"`
	ValidFrom              *time.Time `json:"valid_from"`
	ValidTo                *time.Time `json:"valid_to"`
	ApplicableProducts     []int64    `json:"applicable_products"`
	ApplicableCategories   []int64    `json:"applicable_categories"`
	ExcludedProducts       []int64    `json:"excluded_products"`
	ExcludedCategories     []int64    `json:"excluded_categories"`
	FirstTimeCustomersOnly *bool      `json:"first_time_customers_only"`
	IsActive               *bool      `json:"is_active"`
	IsPublic               *bool      `json:"is_public"`
}

// CouponFilter narrows admin listings.
type CouponFilter struct {
	Search   string // case-insensitive match on code
	IsActive *bool
	IsPublic *bool
}
