package repository

import (
	"context"
	"fmt"

	"github.com/example/modashop/pkg/models"
	"github.com/google/uuid"
)

func CreateAuditLog(ctx context.Context, store DocumentStore, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	doc, err := ToDocument(log)
	if err != nil {
		return fmt.Errorf("failed to encode audit log: %w", err)
	}
	doc["created_at"] = ServerTimestamp
	return store.SetDocument(ctx, models.AuditCollection, log.ID, doc, false)
}

func GetAuditLogs(ctx context.Context, store DocumentStore, entityID string, limit int64) ([]*models.AuditLog, error) {
	snaps, err := store.QueryDocuments(ctx, models.AuditCollection, Query{
		Filters:    []Filter{Where("entity_id", OpEq, entityID)},
		OrderBy:    "created_at",
		Descending: true,
		Limit:      limit,
	})
	if err != nil {
		return nil, err
	}

	logs := make([]*models.AuditLog, 0, len(snaps))
	for _, snap := range snaps {
		var log models.AuditLog
		if err := snap.Decode(&log); err != nil {
			return nil, err
		}
		log.ID = snap.ID
		logs = append(logs, &log)
	}
	return logs, nil
}
