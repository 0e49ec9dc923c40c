package refunds

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/internal/orders"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/metrics"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox/payloads"
)

const maxNoteLen = 500

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type manualLedger interface {
	RecordManualRefund(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, ref string) (bool, error)
}

// Params wires the refund service.
type Params struct {
	Orders  *orders.Service
	Repo    *Repository
	Tx      txRunner
	Ledger  manualLedger
	Emitter outbox.Emitter
	Metrics *metrics.OrderMetrics
}

// Service runs the refund-only workflow and admin manual refunds.
type Service struct {
	orders  *orders.Service
	repo    *Repository
	tx      txRunner
	ledger  manualLedger
	emitter outbox.Emitter
	metrics *metrics.OrderMetrics
	now     func() time.Time
}

func NewService(p Params) (*Service, error) {
	if p.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if p.Repo == nil {
		return nil, fmt.Errorf("refunds repository required")
	}
	if p.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if p.Ledger == nil {
		return nil, fmt.Errorf("payment ledger required")
	}
	if p.Emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &Service{
		orders:  p.Orders,
		repo:    p.Repo,
		tx:      p.Tx,
		ledger:  p.Ledger,
		emitter: p.Emitter,
		metrics: p.Metrics,
		now:     time.Now,
	}, nil
}

// Request asks for the full order total back without returning the goods.
func (s *Service) Request(ctx context.Context, code string, actor orders.Actor, reason string) (orders.Result, error) {
	reason = strings.TrimSpace(reason)
	if len(reason) > maxNoteLen {
		return orders.Result{}, pkgerrors.New(pkgerrors.CodeValidation, "reason must be at most 500 characters")
	}
	var result orders.Result
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.orders.Load(ctx, tx, code, actor)
		if err != nil {
			return err
		}
		existing, err := s.orders.Repo().WithTx(tx).RefundFor(ctx, order.ID)
		if err != nil {
			return err
		}
		if existing != nil && existing.Status != enums.RefundStatusRejected {
			return pkgerrors.Newf(pkgerrors.CodeConflict, "refund already %s", strings.ToLower(string(existing.Status)))
		}
		if _, err := s.orders.Apply(ctx, tx, order, orders.Command{Action: orders.ActionRefundRequest, Actor: actor}); err != nil {
			return err
		}
		record, err := s.repo.UpsertPending(ctx, tx, existing, order, enums.RefundStatusRequested, reason)
		if err != nil {
			return err
		}
		s.metrics.IncRefund(string(record.Status))
		s.orders.NotifySeller(ctx, tx, order, enums.NotificationRefundUpdate, "Refund requested",
			fmt.Sprintf("The buyer requested a refund for order %s.", order.Code))
		result = resultOf(order, record)
		return nil
	})
	return result, err
}

// Approve settles the refund through the ledger. REQUESTED, APPROVED and
// FAILED refunds are eligible, so a failed settlement can be retried. A
// gateway failure leaves the order where it was and still commits.
func (s *Service) Approve(ctx context.Context, code string, actor orders.Actor, note string) (orders.Result, error) {
	note = strings.TrimSpace(note)
	if len(note) > maxNoteLen {
		return orders.Result{}, pkgerrors.New(pkgerrors.CodeValidation, "note must be at most 500 characters")
	}
	var result orders.Result
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, record, err := s.settleable(ctx, tx, code, actor)
		if err != nil {
			return err
		}
		if err := s.repo.MarkProcessing(ctx, tx, record, note); err != nil {
			return err
		}
		reason := ""
		if record.Reason != nil {
			reason = *record.Reason
		}
		amount := record.Amount
		outcome, err := s.orders.Apply(ctx, tx, order, orders.Command{
			Action:       orders.ActionRefundApprove,
			Actor:        actor,
			RefundAmount: &amount,
			RefundReason: reason,
		})
		if err != nil {
			return err
		}
		if outcome.Record == nil {
			// nothing was ever captured; the row exists so settlement always records it
			return pkgerrors.New(pkgerrors.CodeInternal, "refund settlement not recorded")
		}
		title, body := "Refund completed", fmt.Sprintf("Your refund for order %s was completed.", order.Code)
		if outcome.RefundFailed() {
			title, body = "Refund failed", fmt.Sprintf("The refund for order %s failed and will be retried.", order.Code)
		}
		s.orders.NotifyBuyer(ctx, tx, order, enums.NotificationRefundUpdate, title, body)
		result = resultOf(order, outcome.Record)
		return nil
	})
	return result, err
}

// Reject declines the refund. The order returns to DISPUTED while a dispute
// is still open, otherwise to DELIVERED.
func (s *Service) Reject(ctx context.Context, code string, actor orders.Actor, note string) (orders.Result, error) {
	note = strings.TrimSpace(note)
	if note == "" || len(note) > maxNoteLen {
		return orders.Result{}, pkgerrors.New(pkgerrors.CodeValidation, "note must be between 1 and 500 characters")
	}
	var result orders.Result
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, record, err := s.settleable(ctx, tx, code, actor)
		if err != nil {
			return err
		}
		dispute, err := s.orders.Repo().WithTx(tx).DisputeFor(ctx, order.ID)
		if err != nil {
			return err
		}
		revertTo := enums.OrderStatusDelivered
		if dispute != nil && !dispute.Status.IsFinal() {
			revertTo = enums.OrderStatusDisputed
		}
		if _, err := s.orders.Apply(ctx, tx, order, orders.Command{Action: orders.ActionRefundReject, Actor: actor, RevertTo: revertTo}); err != nil {
			return err
		}
		if err := s.repo.Decide(ctx, tx, record, enums.RefundStatusRejected, actor.UserID, note, s.now().UTC()); err != nil {
			return err
		}
		record.Status = enums.RefundStatusRejected
		s.metrics.IncRefund(string(record.Status))
		s.orders.NotifyBuyer(ctx, tx, order, enums.NotificationRefundUpdate, "Refund rejected",
			fmt.Sprintf("Your refund for order %s was rejected: %s", order.Code, note))
		result = resultOf(order, record)
		return nil
	})
	return result, err
}

// Manual records a refund paid outside the gateway, such as cash returned
// for a COD order, and closes the order as REFUNDED.
func (s *Service) Manual(ctx context.Context, code string, actor orders.Actor, ref, note string) (orders.Result, error) {
	ref = strings.TrimSpace(ref)
	note = strings.TrimSpace(note)
	if len(ref) > 120 || len(note) > maxNoteLen {
		return orders.Result{}, pkgerrors.New(pkgerrors.CodeValidation, "reference or note too long")
	}
	var result orders.Result
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.orders.Load(ctx, tx, code, actor)
		if err != nil {
			return err
		}
		existing, err := s.orders.Repo().WithTx(tx).RefundFor(ctx, order.ID)
		if err != nil {
			return err
		}
		if existing != nil && existing.Status == enums.RefundStatusSuccess {
			return pkgerrors.New(pkgerrors.CodeConflict, "refund already settled")
		}
		if _, err := s.orders.Apply(ctx, tx, order, orders.Command{Action: orders.ActionRefundManual, Actor: actor}); err != nil {
			return err
		}
		if ref == "" {
			ref = "MANUAL-" + strings.ToUpper(uuid.NewString()[:8])
		}
		paymentRefunded, err := s.ledger.RecordManualRefund(ctx, tx, order.ID, ref)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		record, err := s.repo.RecordManual(ctx, tx, existing, order, actor.UserID, ref, note, now)
		if err != nil {
			return err
		}
		s.metrics.IncRefund(string(record.Status))
		if err := s.emitter.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRefundSettled,
			AggregateType: enums.AggregateRefund,
			AggregateID:   record.ID,
			Actor:         &outbox.ActorRef{UserID: actor.UserID, Role: string(actor.Role)},
			Data: payloads.RefundSettledEvent{
				RefundID:    record.ID,
				OrderID:     order.ID,
				Code:        order.Code,
				ShopID:      order.ShopID,
				Amount:      record.Amount,
				Status:      record.Status,
				Provider:    string(enums.PaymentProviderManual),
				ProviderRef: ref,
				SettledAt:   now,
			},
		}); err != nil {
			return err
		}
		s.orders.Record(ctx, tx, actor, "refund.manual", order, map[string]any{
			"amount":           record.Amount,
			"provider_ref":     ref,
			"payment_refunded": paymentRefunded,
			"note":             note,
		})
		s.orders.NotifyBuyer(ctx, tx, order, enums.NotificationRefundUpdate, "Refund completed",
			fmt.Sprintf("Your refund for order %s was completed.", order.Code))
		result = resultOf(order, record)
		return nil
	})
	return result, err
}

func (s *Service) settleable(ctx context.Context, tx *gorm.DB, code string, actor orders.Actor) (*models.Order, *models.Refund, error) {
	order, err := s.orders.Load(ctx, tx, code, actor)
	if err != nil {
		return nil, nil, err
	}
	record, err := s.orders.Repo().WithTx(tx).RefundFor(ctx, order.ID)
	if err != nil {
		return nil, nil, err
	}
	if record == nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "refund not found")
	}
	if !record.Status.Settleable() {
		return nil, nil, pkgerrors.Newf(pkgerrors.CodeConflict, "refund is %s", strings.ToLower(string(record.Status)))
	}
	return order, record, nil
}

func resultOf(order *models.Order, record *models.Refund) orders.Result {
	res := orders.Result{Code: order.Code, Status: order.Status}
	if record != nil {
		status := record.Status
		res.RefundStatus = &status
		if record.FailReason != nil {
			res.RefundError = *record.FailReason
		}
	}
	return res
}
