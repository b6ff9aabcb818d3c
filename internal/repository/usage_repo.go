package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/upwear/coupon-service/internal/models"
)

// UsageRepo owns the coupon_usage ledger. Rows are append-only.
type UsageRepo struct {
	db *sql.DB
}

func NewUsageRepo(db *sql.DB) *UsageRepo {
	return &UsageRepo{db: db}
}

// Insert appends one redemption row. It takes the recorder's transaction so
// the ledger row and the counter increment commit or roll back together.
func (r *UsageRepo) Insert(ctx context.Context, tx *sql.Tx, u models.CouponUsage) error {
	const query = `
		INSERT INTO coupon_usage
			(coupon_id, user_id, order_id, discount_amount, order_total, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`

	_, err := tx.ExecContext(ctx, query,
		u.CouponID, u.UserID, u.OrderID, u.DiscountAmount, u.OrderTotal)
	if err != nil {
		return fmt.Errorf("insert coupon usage: %w", err)
	}
	return nil
}

// CountForUser reports how many times one user has redeemed one coupon.
func (r *UsageRepo) CountForUser(ctx context.Context, couponID int64, userID string) (int64, error) {
	const query = `SELECT COUNT(*) FROM coupon_usage WHERE coupon_id = $1 AND user_id = $2`

	var n int64
	if err := r.db.QueryRowContext(ctx, query, couponID, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count coupon usage: %w", err)
	}
	return n, nil
}

// Analytics aggregates the ledger for one coupon.
func (r *UsageRepo) Analytics(ctx context.Context, couponID int64) (models.CouponAnalytics, error) {
	const query = `
		SELECT COUNT(*),
		       COALESCE(SUM(discount_amount), 0),
		       COALESCE(SUM(order_total), 0),
		       COALESCE(AVG(order_total), 0)
		FROM coupon_usage
		WHERE coupon_id = $1
	`

	a := models.CouponAnalytics{CouponID: couponID}
	err := r.db.QueryRowContext(ctx, query, couponID).Scan(
		&a.UsageCount, &a.TotalDiscount, &a.TotalRevenue, &a.AverageOrderValue)
	if err != nil {
		return models.CouponAnalytics{}, fmt.Errorf("coupon analytics: %w", err)
	}
	return a, nil
}
