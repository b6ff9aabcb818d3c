package repository

import (
	"context"
	"database/sql"

	"github.com/rs/zerolog"

	"github.com/upwear/coupon-service/internal/models"
)

// AuditRepo writes admin activity to admin_activity_logs. Writes are
// best-effort: a failed audit insert is logged and swallowed so it can never
// fail the mutation it describes.
type AuditRepo struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewAuditRepo(db *sql.DB, log zerolog.Logger) *AuditRepo {
	return &AuditRepo{db: db, log: log}
}

func (r *AuditRepo) Record(ctx context.Context, e models.AuditEntry) {
	const query = `
		INSERT INTO admin_activity_logs
			(actor_id, action, entity, entity_id, old_value, new_value, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`

	_, err := r.db.ExecContext(ctx, query,
		e.ActorID, e.Action, e.Entity, e.EntityID, e.OldValue, e.NewValue)
	if err != nil {
		r.log.Warn().Err(err).
			Str("action", e.Action).
			Str("entity", e.Entity).
			Int64("entity_id", e.EntityID).
			Msg("audit log write failed")
	}
}
