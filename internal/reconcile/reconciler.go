package reconcile

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/upwear/coupon-service/internal/metrics"
)

// Reconciler compares every coupon's used_count against the usage ledger and
// repairs drift, with the ledger as the source of truth. The recorder writes
// both sides in one transaction, so repairs should be rare; any repair it
// does make is worth a warning.
type Reconciler struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewReconciler(db *sql.DB, log zerolog.Logger) *Reconciler {
	return &Reconciler{db: db, log: log}
}

// Run performs one reconciliation pass and returns how many coupons were
// repaired.
func (r *Reconciler) Run(ctx context.Context) (int, error) {
	const query = `
		SELECT c.id, c.used_count, COUNT(u.id)
		FROM coupons c
		LEFT JOIN coupon_usage u ON u.coupon_id = c.id
		GROUP BY c.id, c.used_count
		HAVING c.used_count <> COUNT(u.id)
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("find drifted coupons: %w", err)
	}
	defer rows.Close()

	type drift struct {
		id      int64
		stored  int64
		derived int64
	}
	var drifted []drift
	for rows.Next() {
		var d drift
		if err := rows.Scan(&d.id, &d.stored, &d.derived); err != nil {
			return 0, fmt.Errorf("scan drifted coupon: %w", err)
		}
		drifted = append(drifted, d)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("find drifted coupons: %w", err)
	}

	repaired := 0
	for _, d := range drifted {
		_, err := r.db.ExecContext(ctx,
			`UPDATE coupons SET used_count = $2, updated_at = NOW() WHERE id = $1`,
			d.id, d.derived)
		if err != nil {
			return repaired, fmt.Errorf("repair coupon %d: %w", d.id, err)
		}
		repaired++
		metrics.ReconcileRepairsTotal.Inc()
		r.log.Warn().
			Int64("coupon_id", d.id).
			Int64("stored", d.stored).
			Int64("derived", d.derived).
			Msg("repaired used_count drift")
	}
	return repaired, nil
}
