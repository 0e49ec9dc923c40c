package audit

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
)

// Entry describes one privileged action.
type Entry struct {
	ActorID    uuid.UUID
	Action     string
	EntityType string
	EntityID   string
	Payload    any
}

// Sink appends audit_logs rows. Like notifications it is best effort.
type Sink struct {
	logg *logger.Logger
}

func NewSink(logg *logger.Logger) *Sink {
	return &Sink{logg: logg}
}

// Record writes the entry in a savepoint of tx.
func (s *Sink) Record(ctx context.Context, tx *gorm.DB, entry Entry) {
	if s == nil || tx == nil {
		return
	}
	row := models.AuditLog{
		ActorID:    entry.ActorID,
		Action:     entry.Action,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
	}
	if entry.Payload != nil {
		raw, err := json.Marshal(entry.Payload)
		if err != nil {
			s.drop(ctx, entry, err)
			return
		}
		row.Payload = raw
	}
	if err := tx.Transaction(func(sp *gorm.DB) error {
		return sp.WithContext(ctx).Create(&row).Error
	}); err != nil {
		s.drop(ctx, entry, err)
	}
}

func (s *Sink) drop(ctx context.Context, entry Entry, err error) {
	if s.logg == nil {
		return
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"audit_action": entry.Action,
		"entity_type":  entry.EntityType,
		"entity_id":    entry.EntityID,
	})
	s.logg.Error(logCtx, "audit entry dropped", err)
}
