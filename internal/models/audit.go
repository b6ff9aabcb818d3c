package models

import "time"

// AuditEntry mirrors one row of admin_activity_logs. OldValue/NewValue hold
// JSON snapshots of the entity before and after the mutation.
type AuditEntry struct {
	ActorID   string
	Action    string
	Entity    string
	EntityID  int64
	OldValue  []byte
	NewValue  []byte
	CreatedAt time.Time
}

const (
	AuditActionCreate = "create"
	AuditActionUpdate = "update"
	AuditActionDelete = "delete"
)
