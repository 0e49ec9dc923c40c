package returns

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/internal/orders"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
)

const (
	minReasonLen = 3
	maxReasonLen = 500
	maxEvidence  = 10
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// RequestInput is the buyer's return claim.
type RequestInput struct {
	Reason       string
	EvidenceURLs []string
}

// ApproveInput carries the seller's return policy decision.
type ApproveInput struct {
	Resolution    enums.ReturnResolution
	ShippingPayer enums.ShippingPayer
	RestockingFee int64
	RefundAmount  *int64
	Note          string
}

// Service runs the return workflow on top of the order state machine.
type Service struct {
	orders *orders.Service
	repo   *Repository
	tx     txRunner
	now    func() time.Time
}

func NewService(orderSvc *orders.Service, repo *Repository, tx txRunner) (*Service, error) {
	if orderSvc == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if repo == nil {
		return nil, fmt.Errorf("returns repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &Service{orders: orderSvc, repo: repo, tx: tx, now: time.Now}, nil
}

// RefundAmount is the amount owed on a received return: the seller's figure
// when given, otherwise the total less the restocking fee, clamped to
// [0, total].
func RefundAmount(total, restockingFee int64, override *int64) int64 {
	amount := total - restockingFee
	if override != nil {
		amount = *override
	}
	if amount < 0 {
		return 0
	}
	if amount > total {
		return total
	}
	return amount
}

// Request opens a return on a delivered order.
func (s *Service) Request(ctx context.Context, code string, actor orders.Actor, input RequestInput) (orders.Result, error) {
	reason := strings.TrimSpace(input.Reason)
	if len(reason) < minReasonLen || len(reason) > maxReasonLen {
		return orders.Result{}, pkgerrors.New(pkgerrors.CodeValidation, "reason must be between 3 and 500 characters")
	}
	evidence := make([]string, 0, len(input.EvidenceURLs))
	for _, url := range input.EvidenceURLs {
		if url = strings.TrimSpace(url); url != "" {
			evidence = append(evidence, url)
		}
	}
	if len(evidence) > maxEvidence {
		return orders.Result{}, pkgerrors.Newf(pkgerrors.CodeValidation, "at most %d evidence urls", maxEvidence)
	}

	var result orders.Result
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.orders.Load(ctx, tx, code, actor)
		if err != nil {
			return err
		}
		existing, err := s.orders.Repo().WithTx(tx).ReturnRequestFor(ctx, order.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "return request already exists")
		}
		if _, err := s.orders.Apply(ctx, tx, order, orders.Command{Action: orders.ActionReturnRequest, Actor: actor}); err != nil {
			return err
		}
		request := models.ReturnRequest{
			OrderID:      order.ID,
			UserID:       actor.UserID,
			Reason:       reason,
			EvidenceURLs: evidence,
			Status:       enums.ReturnRequestRequested,
		}
		if err := tx.WithContext(ctx).Create(&request).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create return request")
		}
		s.orders.NotifySeller(ctx, tx, order, enums.NotificationReturnRequest, "Return requested",
			fmt.Sprintf("The buyer asked to return order %s.", order.Code))
		result = orders.Result{Code: order.Code, Status: order.Status}
		return nil
	})
	return result, err
}

// Approve accepts the return and fixes the refund the buyer will receive.
func (s *Service) Approve(ctx context.Context, code string, actor orders.Actor, input ApproveInput) (orders.Result, error) {
	if _, err := enums.ParseReturnResolution(string(input.Resolution)); err != nil {
		return orders.Result{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid resolution")
	}
	if _, err := enums.ParseShippingPayer(string(input.ShippingPayer)); err != nil {
		return orders.Result{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid shipping payer")
	}
	if input.RestockingFee < 0 {
		return orders.Result{}, pkgerrors.New(pkgerrors.CodeValidation, "restocking fee must be non-negative")
	}
	if input.RefundAmount != nil && *input.RefundAmount < 0 {
		return orders.Result{}, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be non-negative")
	}

	var result orders.Result
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, request, err := s.pending(ctx, tx, code, actor, enums.ReturnRequestRequested)
		if err != nil {
			return err
		}
		if _, err := s.orders.Apply(ctx, tx, order, orders.Command{Action: orders.ActionReturnApprove, Actor: actor}); err != nil {
			return err
		}
		amount := RefundAmount(order.Total, input.RestockingFee, input.RefundAmount)
		updates := map[string]any{
			"resolution":     input.Resolution,
			"shipping_payer": input.ShippingPayer,
			"restocking_fee": input.RestockingFee,
			"refund_amount":  amount,
		}
		if note := strings.TrimSpace(input.Note); note != "" {
			updates["decision_note"] = note
		}
		if err := s.decide(ctx, tx, request, enums.ReturnRequestApproved, actor, updates); err != nil {
			return err
		}
		s.orders.NotifyBuyer(ctx, tx, order, enums.NotificationReturnRequest, "Return approved",
			fmt.Sprintf("Your return for order %s was approved. Please send the items back.", order.Code))
		result = orders.Result{Code: order.Code, Status: order.Status}
		return nil
	})
	return result, err
}

// Reject declines the return. A reason is mandatory.
func (s *Service) Reject(ctx context.Context, code string, actor orders.Actor, reason string) (orders.Result, error) {
	reason = strings.TrimSpace(reason)
	if len(reason) < minReasonLen || len(reason) > maxReasonLen {
		return orders.Result{}, pkgerrors.New(pkgerrors.CodeValidation, "reason must be between 3 and 500 characters")
	}
	var result orders.Result
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, request, err := s.pending(ctx, tx, code, actor, enums.ReturnRequestRequested)
		if err != nil {
			return err
		}
		if _, err := s.orders.Apply(ctx, tx, order, orders.Command{Action: orders.ActionReturnReject, Actor: actor}); err != nil {
			return err
		}
		if err := s.decide(ctx, tx, request, enums.ReturnRequestRejected, actor, map[string]any{"decision_note": reason}); err != nil {
			return err
		}
		s.orders.NotifyBuyer(ctx, tx, order, enums.NotificationReturnRequest, "Return rejected",
			fmt.Sprintf("Your return for order %s was rejected: %s", order.Code, reason))
		result = orders.Result{Code: order.Code, Status: order.Status}
		return nil
	})
	return result, err
}

// Received records the returned goods: it captures a COD payment, refunds
// the approved amount and restocks. A failed refund is recorded and still
// commits.
func (s *Service) Received(ctx context.Context, code string, actor orders.Actor) (orders.Result, error) {
	var result orders.Result
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, request, err := s.pending(ctx, tx, code, actor, enums.ReturnRequestApproved)
		if err != nil {
			return err
		}
		amount := RefundAmount(order.Total, request.RestockingFee, request.RefundAmount)
		outcome, err := s.orders.Apply(ctx, tx, order, orders.Command{
			Action:       orders.ActionReturnReceive,
			Actor:        actor,
			RefundAmount: &amount,
			RefundReason: request.Reason,
		})
		if err != nil {
			return err
		}
		if err := s.decide(ctx, tx, request, enums.ReturnRequestReceived, actor, nil); err != nil {
			return err
		}
		body := fmt.Sprintf("The seller received your return for order %s and refunded %d.", order.Code, amount)
		if outcome.RefundFailed() {
			body = fmt.Sprintf("The seller received your return for order %s. The refund failed and support will follow up.", order.Code)
		}
		s.orders.NotifyBuyer(ctx, tx, order, enums.NotificationRefundUpdate, "Return received", body)

		result = orders.Result{Code: order.Code, Status: order.Status}
		if outcome.Record != nil {
			status := outcome.Record.Status
			result.RefundStatus = &status
			if outcome.Record.FailReason != nil {
				result.RefundError = *outcome.Record.FailReason
			}
		}
		return nil
	})
	return result, err
}

func (s *Service) pending(ctx context.Context, tx *gorm.DB, code string, actor orders.Actor, want enums.ReturnRequestStatus) (*models.Order, *models.ReturnRequest, error) {
	order, err := s.orders.Load(ctx, tx, code, actor)
	if err != nil {
		return nil, nil, err
	}
	request, err := s.orders.Repo().WithTx(tx).ReturnRequestFor(ctx, order.ID)
	if err != nil {
		return nil, nil, err
	}
	if request == nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "return request not found")
	}
	if request.Status != want {
		return nil, nil, pkgerrors.Newf(pkgerrors.CodeConflict, "return request is %s", strings.ToLower(string(request.Status)))
	}
	return order, request, nil
}

func (s *Service) decide(ctx context.Context, tx *gorm.DB, request *models.ReturnRequest, next enums.ReturnRequestStatus, actor orders.Actor, extra map[string]any) error {
	updates := map[string]any{
		"status":      next,
		"resolved_by": actor.UserID,
		"resolved_at": s.now().UTC(),
	}
	for key, value := range extra {
		updates[key] = value
	}
	res := tx.WithContext(ctx).
		Model(&models.ReturnRequest{}).
		Where("id = ? AND status = ?", request.ID, request.Status).
		Updates(updates)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "update return request")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "return request changed concurrently")
	}
	return nil
}
