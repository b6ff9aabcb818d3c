package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// OrderRepo is the narrow read the validator needs from the orders table.
type OrderRepo struct {
	db *sql.DB
}

func NewOrderRepo(db *sql.DB) *OrderRepo {
	return &OrderRepo{db: db}
}

// CountNonCancelled counts a user's orders in any status except cancelled.
// The first-time-customer gate treats cancelled orders as if they never
// happened.
func (r *OrderRepo) CountNonCancelled(ctx context.Context, userID string) (int64, error) {
	const query = `SELECT COUNT(*) FROM orders WHERE user_id = $1 AND status <> 'cancelled'`

	var n int64
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count user orders: %w", err)
	}
	return n, nil
}
