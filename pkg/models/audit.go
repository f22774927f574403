package models

import "time"

const AuditCollection = "audit_logs"

// AuditLog represents an audit log entry
type AuditLog struct {
	ID        string                 `bson:"-"`
	Service   string                 `bson:"service"`
	Action    string                 `bson:"action"`
	EntityID  string                 `bson:"entity_id"`
	ActorID   string                 `bson:"actor_id,omitempty"`
	Data      map[string]interface{} `bson:"data"`
	CreatedAt time.Time              `bson:"created_at,omitempty"`
}
