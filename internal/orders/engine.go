package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/orderflow-backend/internal/inventory"
	"github.com/angelmondragon/orderflow-backend/internal/payments"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/metrics"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox/payloads"
)

// Actor is the authenticated caller acting on an order.
type Actor struct {
	UserID uuid.UUID
	Role   enums.Role
	ShopID *uuid.UUID
}

func (a Actor) ref() *outbox.ActorRef {
	return &outbox.ActorRef{UserID: a.UserID, ShopID: a.ShopID, Role: string(a.Role)}
}

// Command asks the engine to apply one action.
type Command struct {
	Action Action
	Actor  Actor
	// RevertTo is the target of Revert transitions.
	RevertTo enums.OrderStatus
	// RefundAmount defaults to the order total.
	RefundAmount *int64
	RefundReason string
	// RefundOnFailure is the status kept when a StayOnFailure refund fails;
	// it defaults to the current status.
	RefundOnFailure enums.OrderStatus
}

// Outcome reports what Apply did.
type Outcome struct {
	From    enums.OrderStatus
	To      enums.OrderStatus
	Capture *payments.CaptureResult
	Refund  *payments.RefundResult
	Record  *models.Refund
}

// Moved reports whether the order status changed.
func (o Outcome) Moved() bool {
	return o.From != o.To
}

// RefundFailed reports whether a refund effect ran and did not succeed.
func (o Outcome) RefundFailed() bool {
	return o.Refund != nil && !o.Refund.OK
}

type paymentLedger interface {
	Refund(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, amount int64) (payments.RefundResult, error)
	CaptureCODIfNeeded(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (payments.CaptureResult, error)
}

// Engine applies state machine transitions and their effects inside the
// caller's transaction.
type Engine struct {
	ledger  paymentLedger
	emitter outbox.Emitter
	metrics *metrics.OrderMetrics
	logg    *logger.Logger
	now     func() time.Time
}

func NewEngine(ledger paymentLedger, emitter outbox.Emitter, orderMetrics *metrics.OrderMetrics, logg *logger.Logger) (*Engine, error) {
	if ledger == nil {
		return nil, fmt.Errorf("payment ledger required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &Engine{ledger: ledger, emitter: emitter, metrics: orderMetrics, logg: logg, now: time.Now}, nil
}

// Apply resolves the transition, runs its effects in order (capture COD,
// refund, restock) and then compare-and-transitions the order row. The
// order argument is updated in place on success.
func (e *Engine) Apply(ctx context.Context, tx *gorm.DB, order *models.Order, cmd Command) (Outcome, error) {
	if tx == nil {
		return Outcome{}, errors.New("transaction required")
	}
	if order == nil {
		return Outcome{}, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}

	var current models.Order
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id", "status").
		Where("id = ?", order.ID).
		First(&current).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Outcome{}, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return Outcome{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock order")
	}
	if current.Status != order.Status {
		return Outcome{}, pkgerrors.New(pkgerrors.CodeStateConflict, "order changed concurrently, reload and retry").
			WithDetails(map[string]any{"status": current.Status})
	}

	tr, err := Resolve(order.Status, cmd.Actor.Role, cmd.Action)
	if err != nil {
		return Outcome{}, err
	}

	target := tr.To
	if tr.Revert {
		target = cmd.RevertTo
		if !target.IsValid() || target.IsTerminal() {
			return Outcome{}, pkgerrors.Newf(pkgerrors.CodeStateConflict, "cannot revert order to %q", target)
		}
	}

	outcome := Outcome{From: order.Status, To: target}

	if tr.Effects.Has(EffectCaptureCOD) {
		capture, err := e.ledger.CaptureCODIfNeeded(ctx, tx, order.ID)
		if err != nil {
			return Outcome{}, err
		}
		outcome.Capture = &capture
	}

	if tr.Effects.Has(EffectRefund) {
		amount := order.Total
		if cmd.RefundAmount != nil {
			amount = *cmd.RefundAmount
		}
		result, err := e.ledger.Refund(ctx, tx, order.ID, amount)
		if err != nil {
			return Outcome{}, err
		}
		outcome.Refund = &result
		record, err := e.settleRefund(ctx, tx, order, amount, cmd, result)
		if err != nil {
			return Outcome{}, err
		}
		outcome.Record = record
		if !result.OK && tr.StayOnFailure {
			outcome.To = order.Status
			if cmd.RefundOnFailure != "" {
				outcome.To = cmd.RefundOnFailure
			}
		}
	}

	if tr.Effects.Has(EffectRestock) {
		if err := inventory.Restock(ctx, tx, inventory.LinesFromItems(order.Items)); err != nil {
			return Outcome{}, err
		}
	}

	if err := e.transition(ctx, tx, order, outcome.To); err != nil {
		return Outcome{}, err
	}

	if outcome.Moved() {
		if err := e.emitter.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStateChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         cmd.Actor.ref(),
			Data: payloads.OrderStateChangedEvent{
				OrderID: order.ID,
				Code:    order.Code,
				UserID:  order.UserID,
				ShopID:  order.ShopID,
				From:    outcome.From,
				To:      outcome.To,
				Action:  string(cmd.Action),
				Role:    cmd.Actor.Role,
				Total:   order.Total,
			},
		}); err != nil {
			return Outcome{}, err
		}
	}

	e.metrics.IncTransition(string(outcome.From), string(outcome.To), string(cmd.Action))
	if e.logg != nil {
		logCtx := e.logg.WithFields(ctx, map[string]any{
			"order_code": order.Code,
			"action":     cmd.Action,
			"from":       outcome.From,
			"to":         outcome.To,
		})
		e.logg.Info(logCtx, "order transition applied")
	}
	return outcome, nil
}

func (e *Engine) transition(ctx context.Context, tx *gorm.DB, order *models.Order, to enums.OrderStatus) error {
	res := tx.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", order.ID, order.Status).
		Updates(map[string]any{"status": to, "updated_at": e.now().UTC()})
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "update order status")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed concurrently, reload and retry")
	}
	order.Status = to
	return nil
}

// settleRefund upserts the order's single refund row from the ledger result.
// When nothing was ever captured and no refund row exists there is no debt to
// record.
func (e *Engine) settleRefund(ctx context.Context, tx *gorm.DB, order *models.Order, amount int64, cmd Command, result payments.RefundResult) (*models.Refund, error) {
	var record models.Refund
	err := tx.WithContext(ctx).Where("order_id = ?", order.ID).First(&record).Error
	exists := err == nil
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load refund")
	}
	if !exists && !result.OK && result.Reason == payments.ReasonNothingToRefund {
		return nil, nil
	}

	now := e.now().UTC()
	provider := enums.PaymentProviderMock
	actorID := cmd.Actor.UserID
	record.OrderID = order.ID
	record.Amount = amount
	record.Provider = &provider
	record.ProcessedBy = &actorID
	record.ProcessedAt = &now
	if cmd.RefundReason != "" && record.Reason == nil {
		reason := cmd.RefundReason
		record.Reason = &reason
	}
	if result.OK {
		record.Status = enums.RefundStatusSuccess
		record.FailReason = nil
		if result.ProviderRef != "" {
			ref := result.ProviderRef
			record.ProviderRef = &ref
		}
	} else {
		reason := result.Reason
		record.Status = enums.RefundStatusFailed
		record.FailReason = &reason
	}

	if exists {
		err = tx.WithContext(ctx).Model(&models.Refund{}).Where("id = ?", record.ID).Updates(map[string]any{
			"amount":       record.Amount,
			"reason":       record.Reason,
			"status":       record.Status,
			"provider":     record.Provider,
			"provider_ref": record.ProviderRef,
			"fail_reason":  record.FailReason,
			"processed_by": record.ProcessedBy,
			"processed_at": record.ProcessedAt,
		}).Error
	} else {
		err = tx.WithContext(ctx).Create(&record).Error
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record refund")
	}

	e.metrics.IncRefund(string(record.Status))
	data := payloads.RefundSettledEvent{
		RefundID:  record.ID,
		OrderID:   order.ID,
		Code:      order.Code,
		ShopID:    order.ShopID,
		Amount:    record.Amount,
		Status:    record.Status,
		Provider:  string(provider),
		SettledAt: now,
	}
	if record.ProviderRef != nil {
		data.ProviderRef = *record.ProviderRef
	}
	if record.FailReason != nil {
		data.FailReason = *record.FailReason
	}
	if err := e.emitter.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventRefundSettled,
		AggregateType: enums.AggregateRefund,
		AggregateID:   record.ID,
		Actor:         cmd.Actor.ref(),
		Data:          data,
	}); err != nil {
		return nil, err
	}
	return &record, nil
}
