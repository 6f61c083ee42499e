package service

import (
	"context"
	"fmt"

	"github.com/hooinvest/deposit-engine/internal/repository"
)

// AuditService emits immutable structured events (entity, action, old/new
// state) for the external audit collaborator to consume. The engine never
// reads these rows back.
type AuditService struct {
	store QueryStore
}

func NewAuditService(store QueryStore) *AuditService {
	return &AuditService{store: store}
}

// Write stores a single event using the given query set, so transition
// events commit atomically with the transition itself.
func (s *AuditService) Write(ctx context.Context, qtx *repository.Queries, entityType, entityID, action, prevState, nextState string, metadata []byte) error {
	if err := qtx.InsertAuditLog(ctx, repository.InsertAuditLogParams{
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		PrevState:  textParam(prevState),
		NextState:  textParam(nextState),
		Metadata:   metadata,
	}); err != nil {
		return fmt.Errorf("write audit event: %w", err)
	}
	return nil
}

// Record writes an event outside any transaction, for rejections and other
// occurrences that must be observable even when nothing was mutated.
func (s *AuditService) Record(ctx context.Context, entityType, entityID, action string, metadata []byte) error {
	return s.Write(ctx, s.store.Queries(), entityType, entityID, action, "", "", metadata)
}

func textParam(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
