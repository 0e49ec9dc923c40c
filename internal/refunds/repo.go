package refunds

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/internal/orders"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/pagination"
)

// View is a refund listed with its order.
type View struct {
	ID           uuid.UUID              `json:"id"`
	OrderID      uuid.UUID              `json:"order_id"`
	OrderCode    string                 `json:"order_code"`
	OrderStatus  enums.OrderStatus      `json:"order_status"`
	OrderTotal   int64                  `json:"order_total"`
	ShopID       uuid.UUID              `json:"shop_id"`
	Amount       int64                  `json:"amount"`
	Reason       *string                `json:"reason,omitempty"`
	Status       enums.RefundStatus     `json:"status"`
	Provider     *enums.PaymentProvider `json:"provider,omitempty"`
	ProviderRef  *string                `json:"provider_ref,omitempty"`
	FailReason   *string                `json:"fail_reason,omitempty"`
	DecisionNote *string                `json:"decision_note,omitempty"`
	ProcessedAt  *time.Time             `json:"processed_at,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// UpsertPending opens (or reopens a rejected) refund for the order total.
func (r *Repository) UpsertPending(ctx context.Context, tx *gorm.DB, existing *models.Refund, order *models.Order, status enums.RefundStatus, reason string) (*models.Refund, error) {
	var reasonPtr *string
	if reason != "" {
		reasonPtr = &reason
	}
	if existing == nil {
		record := models.Refund{
			OrderID: order.ID,
			Amount:  order.Total,
			Reason:  reasonPtr,
			Status:  status,
		}
		if err := tx.WithContext(ctx).Create(&record).Error; err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create refund")
		}
		return &record, nil
	}
	res := tx.WithContext(ctx).
		Model(&models.Refund{}).
		Where("id = ? AND status = ?", existing.ID, existing.Status).
		Updates(map[string]any{
			"amount":        order.Total,
			"reason":        reasonPtr,
			"status":        status,
			"provider":      nil,
			"provider_ref":  nil,
			"fail_reason":   nil,
			"decision_note": nil,
			"processed_by":  nil,
			"processed_at":  nil,
		})
	if res.Error != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "reopen refund")
	}
	if res.RowsAffected == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "refund changed concurrently")
	}
	record := *existing
	record.Amount = order.Total
	record.Reason = reasonPtr
	record.Status = status
	record.Provider, record.ProviderRef, record.FailReason, record.DecisionNote = nil, nil, nil, nil
	record.ProcessedBy, record.ProcessedAt = nil, nil
	return &record, nil
}

// MarkProcessing claims a settleable refund for settlement.
func (r *Repository) MarkProcessing(ctx context.Context, tx *gorm.DB, record *models.Refund, note string) error {
	updates := map[string]any{"status": enums.RefundStatusProcessing}
	if note != "" {
		updates["decision_note"] = note
	}
	res := tx.WithContext(ctx).
		Model(&models.Refund{}).
		Where("id = ? AND status = ?", record.ID, record.Status).
		Updates(updates)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "claim refund")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "refund changed concurrently")
	}
	record.Status = enums.RefundStatusProcessing
	return nil
}

// Decide records a terminal decision taken without settlement.
func (r *Repository) Decide(ctx context.Context, tx *gorm.DB, record *models.Refund, next enums.RefundStatus, actorID uuid.UUID, note string, at time.Time) error {
	res := tx.WithContext(ctx).
		Model(&models.Refund{}).
		Where("id = ? AND status = ?", record.ID, record.Status).
		Updates(map[string]any{
			"status":        next,
			"decision_note": note,
			"processed_by":  actorID,
			"processed_at":  at,
		})
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "update refund")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "refund changed concurrently")
	}
	return nil
}

// RecordManual writes a SUCCESS refund settled by staff outside the gateway.
func (r *Repository) RecordManual(ctx context.Context, tx *gorm.DB, existing *models.Refund, order *models.Order, actorID uuid.UUID, ref, note string, at time.Time) (*models.Refund, error) {
	provider := enums.PaymentProviderManual
	record := models.Refund{OrderID: order.ID, Amount: order.Total}
	if existing != nil {
		record = *existing
	}
	record.Status = enums.RefundStatusSuccess
	record.Provider = &provider
	record.ProviderRef = &ref
	record.FailReason = nil
	record.ProcessedBy = &actorID
	record.ProcessedAt = &at
	if note != "" {
		record.DecisionNote = &note
	}
	if existing == nil {
		if err := tx.WithContext(ctx).Create(&record).Error; err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create refund")
		}
		return &record, nil
	}
	err := tx.WithContext(ctx).Model(&models.Refund{}).Where("id = ?", record.ID).Updates(map[string]any{
		"status":        record.Status,
		"provider":      record.Provider,
		"provider_ref":  record.ProviderRef,
		"fail_reason":   nil,
		"decision_note": record.DecisionNote,
		"processed_by":  record.ProcessedBy,
		"processed_at":  record.ProcessedAt,
	}).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record manual refund")
	}
	return &record, nil
}

// List pages refunds, scoped to one shop when shopID is set.
func (r *Repository) List(ctx context.Context, shopID *uuid.UUID, status string, params pagination.Params) (pagination.Page[View], error) {
	return orders.ListSide(ctx, r.db, "refunds", shopID, status, params, func(v View) pagination.Cursor {
		return pagination.Cursor{CreatedAt: v.CreatedAt, ID: v.ID}
	})
}

// ListForShop lists the seller's refunds.
func (s *Service) ListForShop(ctx context.Context, actor orders.Actor, status string, params pagination.Params) (pagination.Page[View], error) {
	if actor.Role != enums.RoleSeller || actor.ShopID == nil {
		return pagination.Page[View]{}, pkgerrors.New(pkgerrors.CodeForbidden, "shop context missing")
	}
	return s.repo.List(ctx, actor.ShopID, status, params)
}

// ListAll lists refunds across shops for staff.
func (s *Service) ListAll(ctx context.Context, actor orders.Actor, status string, params pagination.Params) (pagination.Page[View], error) {
	if !actor.Role.IsStaff() {
		return pagination.Page[View]{}, pkgerrors.New(pkgerrors.CodeForbidden, "refund listing requires staff")
	}
	return s.repo.List(ctx, nil, status, params)
}
