package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/upwear/coupon-service/internal/models"
)

// AuditLogger receives before/after snapshots of every coupon mutation.
type AuditLogger interface {
	Record(ctx context.Context, e models.AuditEntry)
}

const couponColumns = `id, code, discount_type, discount_value, minimum_amount, usage_limit, usage_limit_per_user, used_count, valid_from, valid_to, applicable_products, applicable_categories, excluded_products, excluded_categories, first_time_customers_only, is_active, is_public, created_at, updated_at`

// uniqueViolation is the Postgres error code for a unique constraint hit.
const uniqueViolation = "23505"

type CouponRepo struct {
	db    *sql.DB
	audit AuditLogger
}

func NewCouponRepo(db *sql.DB, audit AuditLogger) *CouponRepo {
	return &CouponRepo{db: db, audit: audit}
}

// NormalizeCode is how codes are stored and compared: trimmed, uppercased.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (r *CouponRepo) GetByCode(ctx context.Context, code string) (*models.Coupon, error) {
	query := `SELECT ` + couponColumns + ` FROM coupons WHERE code = $1`

	c, err := scanCoupon(r.db.QueryRowContext(ctx, query, NormalizeCode(code)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrCouponNotFound
		}
		return nil, fmt.Errorf("get coupon by code: %w", err)
	}
	return c, nil
}

func (r *CouponRepo) GetByID(ctx context.Context, id int64) (*models.Coupon, error) {
	query := `SELECT ` + couponColumns + ` FROM coupons WHERE id = $1`

	c, err := scanCoupon(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrCouponNotFound
		}
		return nil, fmt.Errorf("get coupon by id: %w", err)
	}
	return c, nil
}

// List returns coupons for the admin table, optionally filtered by a
// case-insensitive code search and the active/public flags.
func (r *CouponRepo) List(ctx context.Context, filter models.CouponFilter) ([]models.Coupon, error) {
	query := `SELECT ` + couponColumns + ` FROM coupons`

	var (
		where []string
		args  []interface{}
	)
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		where = append(where, fmt.Sprintf("code ILIKE $%d", len(args)))
	}
	if filter.IsActive != nil {
		args = append(args, *filter.IsActive)
		where = append(where, fmt.Sprintf("is_active = $%d", len(args)))
	}
	if filter.IsPublic != nil {
		args = append(args, *filter.IsPublic)
		where = append(where, fmt.Sprintf("is_public = $%d", len(args)))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list coupons: %w", err)
	}
	defer rows.Close()

	var coupons []models.Coupon
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, fmt.Errorf("list coupons: %w", err)
		}
		coupons = append(coupons, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list coupons: %w", err)
	}
	return coupons, nil
}

// ListPublic returns the coupons the storefront is allowed to show.
func (r *CouponRepo) ListPublic(ctx context.Context) ([]models.Coupon, error) {
	yes := true
	return r.List(ctx, models.CouponFilter{IsActive: &yes, IsPublic: &yes})
}

func (r *CouponRepo) Create(ctx context.Context, actor string, form models.CouponForm) (*models.Coupon, error) {
	isActive := true
	if form.IsActive != nil {
		isActive = *form.IsActive
	}
	isPublic := false
	if form.IsPublic != nil {
		isPublic = *form.IsPublic
	}

	query := `
		INSERT INTO coupons
			(code, discount_type, discount_value, minimum_amount,
			 usage_limit, usage_limit_per_user, used_count, valid_from, valid_to,
			 applicable_products, applicable_categories, excluded_products, excluded_categories,
			 first_time_customers_only, is_active, is_public, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW(), NOW())
		RETURNING ` + couponColumns

	c, err := scanCoupon(r.db.QueryRowContext(ctx, query,
		NormalizeCode(form.Code),
		form.DiscountType,
		form.DiscountValue,
		form.MinimumAmount,
		form.UsageLimit,
		form.UsageLimitPerUser,
		form.ValidFrom,
		form.ValidTo,
		pq.Array(form.ApplicableProducts),
		pq.Array(form.ApplicableCategories),
		pq.Array(form.ExcludedProducts),
		pq.Array(form.ExcludedCategories),
		form.FirstTimeCustomersOnly,
		isActive,
		isPublic,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, models.ErrDuplicateCode
		}
		return nil, fmt.Errorf("create coupon: %w", err)
	}

	r.recordAudit(ctx, actor, models.AuditActionCreate, c.ID, nil, c)
	return c, nil
}

// Update applies only the fields present in the patch.
func (r *CouponRepo) Update(ctx context.Context, actor string, id int64, patch models.CouponPatch) (*models.Coupon, error) {
	old, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	var (
		set  []string
		args []interface{}
	)
	add := func(col string, v interface{}) {
		args = append(args, v)
		set = append(set, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if patch.Code != nil {
		add("code", NormalizeCode(*patch.Code))
	}
	if patch.DiscountType != nil {
		add("discount_type", *patch.DiscountType)
	}
	if patch.DiscountValue != nil {
		add("discount_value", *patch.DiscountValue)
	}
	if patch.MinimumAmount != nil {
		add("minimum_amount", *patch.MinimumAmount)
	}
	if patch.UsageLimit != nil {
		add("usage_limit", *patch.UsageLimit)
	}
	if patch.UsageLimitPerUser != nil {
		add("usage_limit_per_user", *patch.UsageLimitPerUser)
	}
	if patch.ValidFrom != nil {
		add("valid_from", *patch.ValidFrom)
	}
	if patch.ValidTo != nil {
		add("valid_to", *patch.ValidTo)
	}
	if patch.ApplicableProducts != nil {
		add("applicable_products", pq.Array(patch.ApplicableProducts))
	}
	if patch.ApplicableCategories != nil {
		add("applicable_categories", pq.Array(patch.ApplicableCategories))
	}
	if patch.ExcludedProducts != nil {
		add("excluded_products", pq.Array(patch.ExcludedProducts))
	}
	if patch.ExcludedCategories != nil {
		add("excluded_categories", pq.Array(patch.ExcludedCategories))
	}
	if patch.FirstTimeCustomersOnly != nil {
		add("first_time_customers_only", *patch.FirstTimeCustomersOnly)
	}
	if patch.IsActive != nil {
		add("is_active", *patch.IsActive)
	}
	if patch.IsPublic != nil {
		add("is_public", *patch.IsPublic)
	}

	if len(set) == 0 {
		return old, nil
	}
	set = append(set, "updated_at = NOW()")

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE coupons SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(set, ", "), len(args), couponColumns)

	c, err := scanCoupon(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrCouponNotFound
		}
		if isUniqueViolation(err) {
			return nil, models.ErrDuplicateCode
		}
		return nil, fmt.Errorf("update coupon: %w", err)
	}

	r.recordAudit(ctx, actor, models.AuditActionUpdate, c.ID, old, c)
	return c, nil
}

// Delete hard-deletes a coupon. Coupons with recorded redemptions are
// refused with ErrCouponInUse: deleting them would orphan the usage ledger,
// so retirement goes through is_active = false instead.
func (r *CouponRepo) Delete(ctx context.Context, actor string, id int64) error {
	old, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if old.UsedCount > 0 {
		return models.ErrCouponInUse
	}

	res, err := r.db.ExecContext(ctx, `DELETE FROM coupons WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete coupon: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete coupon: %w", err)
	}
	if n == 0 {
		return models.ErrCouponNotFound
	}

	r.recordAudit(ctx, actor, models.AuditActionDelete, id, old, nil)
	return nil
}

// ConsumeUsage is the redemption guard: a single conditional increment that
// only succeeds while the coupon is under its global usage limit. Zero rows
// affected means the coupon is either gone or exhausted.
func (r *CouponRepo) ConsumeUsage(ctx context.Context, tx *sql.Tx, couponID int64) error {
	const query = `
		UPDATE coupons
		SET used_count = used_count + 1, updated_at = NOW()
		WHERE id = $1
		  AND (usage_limit IS NULL OR used_count < usage_limit)
	`

	res, err := tx.ExecContext(ctx, query, couponID)
	if err != nil {
		return fmt.Errorf("consume usage: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("consume usage: %w", err)
	}
	if n == 0 {
		var exists bool
		err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM coupons WHERE id = $1)`, couponID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("consume usage: %w", err)
		}
		if !exists {
			return models.ErrCouponNotFound
		}
		return models.ErrUsageLimitReached
	}
	return nil
}

func (r *CouponRepo) recordAudit(ctx context.Context, actor, action string, id int64, oldC, newC *models.Coupon) {
	if r.audit == nil {
		return
	}
	entry := models.AuditEntry{
		ActorID:  actor,
		Action:   action,
		Entity:   "coupon",
		EntityID: id,
	}
	if oldC != nil {
		entry.OldValue, _ = json.Marshal(oldC)
	}
	if newC != nil {
		entry.NewValue, _ = json.Marshal(newC)
	}
	r.audit.Record(ctx, entry)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCoupon(row rowScanner) (*models.Coupon, error) {
	var (
		c          models.Coupon
		minAmount  sql.NullFloat64
		limit      sql.NullInt64
		perUser    sql.NullInt64
		validFrom  sql.NullTime
		validTo    sql.NullTime
		products   pq.Int64Array
		categories pq.Int64Array
		exProducts pq.Int64Array
		exCats     pq.Int64Array
	)

	err := row.Scan(
		&c.ID, &c.Code, &c.DiscountType, &c.DiscountValue, &minAmount,
		&limit, &perUser, &c.UsedCount, &validFrom, &validTo,
		&products, &categories, &exProducts, &exCats,
		&c.FirstTimeCustomersOnly, &c.IsActive, &c.IsPublic,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if minAmount.Valid {
		c.MinimumAmount = &minAmount.Float64
	}
	if limit.Valid {
		c.UsageLimit = &limit.Int64
	}
	if perUser.Valid {
		c.UsageLimitPerUser = &perUser.Int64
	}
	if validFrom.Valid {
		t := validFrom.Time
		c.ValidFrom = &t
	}
	if validTo.Valid {
		t := validTo.Time
		c.ValidTo = &t
	}
	c.ApplicableProducts = products
	c.ApplicableCategories = categories
	c.ExcludedProducts = exProducts
	c.ExcludedCategories = exCats

	return &c, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
