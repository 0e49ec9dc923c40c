package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/internal/audit"
	"github.com/angelmondragon/orderflow-backend/internal/notifications"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/orderflow-backend/pkg/pagination"
)

const maxReasonLen = 500

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type notifier interface {
	Notify(ctx context.Context, tx *gorm.DB, n notifications.Notification)
	NotifyAdmins(ctx context.Context, tx *gorm.DB, n notifications.Notification)
}

type auditor interface {
	Record(ctx context.Context, tx *gorm.DB, entry audit.Entry)
}

type shipmentTracker interface {
	Create(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, carrier string) (*models.Shipment, error)
	Append(ctx context.Context, tx *gorm.DB, shipment *models.Shipment, status enums.ShipmentStatus, message string, override bool) (*models.ShipmentEvent, error)
	ForOrder(ctx context.Context, conn *gorm.DB, orderID uuid.UUID) (*models.Shipment, error)
}

// ServiceParams wires the order service.
type ServiceParams struct {
	Repo     *Repository
	Tx       txRunner
	Engine   *Engine
	Tracker  shipmentTracker
	Emitter  outbox.Emitter
	Notifier notifier
	Audit    auditor
	Currency string
	Logger   *logger.Logger
}

// Service runs the order lifecycle and the cancel workflow.
type Service struct {
	repo     *Repository
	tx       txRunner
	engine   *Engine
	tracker  shipmentTracker
	emitter  outbox.Emitter
	notify   notifier
	audit    auditor
	currency string
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(p ServiceParams) (*Service, error) {
	if p.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if p.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if p.Engine == nil {
		return nil, fmt.Errorf("order engine required")
	}
	if p.Tracker == nil {
		return nil, fmt.Errorf("shipment tracker required")
	}
	if p.Emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if p.Currency == "" {
		p.Currency = "VND"
	}
	return &Service{
		repo:     p.Repo,
		tx:       p.Tx,
		engine:   p.Engine,
		tracker:  p.Tracker,
		emitter:  p.Emitter,
		notify:   p.Notifier,
		audit:    p.Audit,
		currency: p.Currency,
		logg:     p.Logger,
		now:      time.Now,
	}, nil
}

// Scope builds the Actor for a caller, resolving the seller's shop.
func (s *Service) Scope(ctx context.Context, userID uuid.UUID, role enums.Role) (Actor, error) {
	if userID == uuid.Nil {
		return Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if !role.IsValid() {
		return Actor{}, pkgerrors.New(pkgerrors.CodeForbidden, "unknown role")
	}
	actor := Actor{UserID: userID, Role: role}
	if role == enums.RoleSeller {
		shop, err := s.repo.ShopForOwner(ctx, userID)
		if err != nil {
			return Actor{}, err
		}
		actor.ShopID = &shop.ID
	}
	return actor, nil
}

// Visible reports whether the actor may see the order. Orders outside the
// caller's scope are reported as missing.
func Visible(order *models.Order, actor Actor) bool {
	switch actor.Role {
	case enums.RoleCustomer:
		return order.UserID == actor.UserID
	case enums.RoleSeller:
		return actor.ShopID != nil && order.ShopID == *actor.ShopID
	case enums.RoleAdmin, enums.RoleCS:
		return true
	}
	return false
}

// Load reads the order with items inside tx and enforces visibility.
func (s *Service) Load(ctx context.Context, tx *gorm.DB, code string, actor Actor) (*models.Order, error) {
	order, err := s.repo.WithTx(tx).FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if !Visible(order, actor) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

// LoadByID is Load for callers that address the order through a side record.
func (s *Service) LoadByID(ctx context.Context, tx *gorm.DB, id uuid.UUID, actor Actor) (*models.Order, error) {
	order, err := s.repo.WithTx(tx).FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !Visible(order, actor) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

// Confirm accepts a placed order.
func (s *Service) Confirm(ctx context.Context, code string, actor Actor) (Result, error) {
	return s.simple(ctx, code, actor, ActionConfirm, "Order confirmed", "The seller confirmed your order.")
}

// Pack marks a confirmed order as being packed.
func (s *Service) Pack(ctx context.Context, code string, actor Actor) (Result, error) {
	return s.simple(ctx, code, actor, ActionPack, "Order packing", "The seller is packing your order.")
}

// ConfirmReceived completes a shipped or delivered order for the buyer.
func (s *Service) ConfirmReceived(ctx context.Context, code string, actor Actor) (Result, error) {
	var result Result
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.Load(ctx, tx, code, actor)
		if err != nil {
			return err
		}
		outcome, err := s.engine.Apply(ctx, tx, order, Command{Action: ActionConfirmReceived, Actor: actor})
		if err != nil {
			return err
		}
		if err := s.deliverShipment(ctx, tx, order, "received by buyer"); err != nil {
			return err
		}
		s.NotifySeller(ctx, tx, order, enums.NotificationOrderUpdate, "Order completed", fmt.Sprintf("Order %s was received by the buyer.", order.Code))
		result = resultOf(order, &outcome)
		return nil
	})
	return result, err
}

func (s *Service) simple(ctx context.Context, code string, actor Actor, action Action, title, body string) (Result, error) {
	var result Result
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.Load(ctx, tx, code, actor)
		if err != nil {
			return err
		}
		outcome, err := s.engine.Apply(ctx, tx, order, Command{Action: action, Actor: actor})
		if err != nil {
			return err
		}
		s.NotifyBuyer(ctx, tx, order, enums.NotificationOrderUpdate, title, body)
		result = resultOf(order, &outcome)
		return nil
	})
	return result, err
}

// CreateShipment hands a packed order to the carrier.
func (s *Service) CreateShipment(ctx context.Context, code string, actor Actor, carrier string) (Result, error) {
	var result Result
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.Load(ctx, tx, code, actor)
		if err != nil {
			return err
		}
		existing, err := s.tracker.ForOrder(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "shipment already exists")
		}
		outcome, err := s.engine.Apply(ctx, tx, order, Command{Action: ActionShip, Actor: actor})
		if err != nil {
			return err
		}
		shipment, err := s.tracker.Create(ctx, tx, order.ID, carrier)
		if err != nil {
			return err
		}
		if err := s.emitShipment(ctx, tx, order, shipment, actor, ""); err != nil {
			return err
		}
		s.NotifyBuyer(ctx, tx, order, enums.NotificationShipmentUpdate, "Order shipped",
			fmt.Sprintf("Order %s is on its way. Tracking code %s.", order.Code, shipment.TrackingCode))
		result = resultOf(order, &outcome)
		result.TrackingCode = shipment.TrackingCode
		status := shipment.Status
		result.Shipment = &status
		return nil
	})
	return result, err
}

// ShipmentUpdate is a tracking event reported by the seller or an admin.
type ShipmentUpdate struct {
	Status  enums.ShipmentStatus
	Message string
}

// UpdateShipment appends a tracking event. DELIVERED moves a SHIPPED order to
// DELIVERED; otherwise the order status is untouched. Sellers may only move
// forward on a SHIPPED order, while an admin override may set any status.
func (s *Service) UpdateShipment(ctx context.Context, code string, actor Actor, update ShipmentUpdate, override bool) (Result, error) {
	if !update.Status.IsValid() {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid shipment status")
	}
	if override && !actor.Role.IsStaff() {
		return Result{}, pkgerrors.New(pkgerrors.CodeForbidden, "shipment override requires an admin")
	}
	var result Result
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.Load(ctx, tx, code, actor)
		if err != nil {
			return err
		}
		if order.Status.IsTerminal() || (!override && order.Status != enums.OrderStatusShipped) {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "cannot update shipment of an order in %s", order.Status)
		}
		shipment, err := s.tracker.ForOrder(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		if shipment == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "shipment not found")
		}
		if _, err := s.tracker.Append(ctx, tx, shipment, update.Status, update.Message, override); err != nil {
			return err
		}

		var outcome *Outcome
		if update.Status == enums.ShipmentStatusDelivered {
			if order.Status == enums.OrderStatusShipped {
				applied, err := s.engine.Apply(ctx, tx, order, Command{Action: ActionDeliver, Actor: actor})
				if err != nil {
					return err
				}
				outcome = &applied
			} else if _, err := s.engine.ledger.CaptureCODIfNeeded(ctx, tx, order.ID); err != nil {
				return err
			}
		}
		if err := s.emitShipment(ctx, tx, order, shipment, actor, update.Message); err != nil {
			return err
		}
		if override {
			s.Record(ctx, tx, actor, "shipment.override", order, map[string]any{"status": update.Status, "message": update.Message})
		}
		s.NotifyBuyer(ctx, tx, order, enums.NotificationShipmentUpdate, "Shipment update",
			fmt.Sprintf("Order %s shipment is now %s.", order.Code, strings.ToLower(strings.ReplaceAll(string(update.Status), "_", " "))))

		result = resultOf(order, outcome)
		result.TrackingCode = shipment.TrackingCode
		status := shipment.Status
		result.Shipment = &status
		return nil
	})
	return result, err
}

// CancelRequest records the buyer's cancellation request and remembers the
// status it interrupted.
func (s *Service) CancelRequest(ctx context.Context, code string, actor Actor, reason string) (Result, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" || len(reason) > maxReasonLen {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "reason must be between 1 and 500 characters")
	}
	var result Result
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.Load(ctx, tx, code, actor)
		if err != nil {
			return err
		}
		existing, err := s.repo.WithTx(tx).CancelRequestFor(ctx, order.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "cancel request already exists")
		}
		previous := order.Status
		outcome, err := s.engine.Apply(ctx, tx, order, Command{Action: ActionCancelRequest, Actor: actor})
		if err != nil {
			return err
		}
		request := models.CancelRequest{
			OrderID:        order.ID,
			UserID:         actor.UserID,
			Reason:         reason,
			Status:         enums.CancelRequestRequested,
			PreviousStatus: previous,
		}
		if err := tx.WithContext(ctx).Create(&request).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cancel request")
		}
		s.NotifySeller(ctx, tx, order, enums.NotificationCancelRequest, "Cancel requested",
			fmt.Sprintf("The buyer asked to cancel order %s.", order.Code))
		result = resultOf(order, &outcome)
		return nil
	})
	return result, err
}

// CancelApprove cancels the order, refunding the total and restocking items.
func (s *Service) CancelApprove(ctx context.Context, code string, actor Actor, note string) (Result, error) {
	return s.decideCancel(ctx, code, actor, note, true)
}

// CancelReject restores the status the request interrupted.
func (s *Service) CancelReject(ctx context.Context, code string, actor Actor, note string) (Result, error) {
	return s.decideCancel(ctx, code, actor, note, false)
}

func (s *Service) decideCancel(ctx context.Context, code string, actor Actor, note string, approve bool) (Result, error) {
	var result Result
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.Load(ctx, tx, code, actor)
		if err != nil {
			return err
		}
		request, err := s.repo.WithTx(tx).CancelRequestFor(ctx, order.ID)
		if err != nil {
			return err
		}
		if request == nil || request.Status != enums.CancelRequestRequested {
			return pkgerrors.New(pkgerrors.CodeConflict, "no pending cancel request")
		}

		cmd := Command{Action: ActionCancelReject, Actor: actor, RevertTo: request.PreviousStatus}
		next := enums.CancelRequestRejected
		if approve {
			cmd = Command{Action: ActionCancelApprove, Actor: actor, RefundReason: request.Reason}
			next = enums.CancelRequestApproved
		}
		outcome, err := s.engine.Apply(ctx, tx, order, cmd)
		if err != nil {
			return err
		}
		if err := s.resolveCancelRequest(ctx, tx, request, next, actor, note); err != nil {
			return err
		}

		title, body := "Cancel request rejected", fmt.Sprintf("Your request to cancel order %s was rejected.", order.Code)
		if approve {
			title, body = "Order cancelled", fmt.Sprintf("Order %s was cancelled.", order.Code)
		}
		s.NotifyBuyer(ctx, tx, order, enums.NotificationOrderUpdate, title, body)
		result = resultOf(order, &outcome)
		return nil
	})
	return result, err
}

func (s *Service) resolveCancelRequest(ctx context.Context, tx *gorm.DB, request *models.CancelRequest, next enums.CancelRequestStatus, actor Actor, note string) error {
	updates := map[string]any{
		"status":      next,
		"resolved_by": actor.UserID,
		"resolved_at": s.now().UTC(),
	}
	if note = strings.TrimSpace(note); note != "" {
		updates["decision_note"] = note
	}
	res := tx.WithContext(ctx).
		Model(&models.CancelRequest{}).
		Where("id = ? AND status = ?", request.ID, enums.CancelRequestRequested).
		Updates(updates)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "update cancel request")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "cancel request already decided")
	}
	return nil
}

// Cancel lets the seller cancel before shipment without a buyer request.
func (s *Service) Cancel(ctx context.Context, code string, actor Actor, reason string) (Result, error) {
	return s.cancel(ctx, code, actor, reason, ActionCancel)
}

// ForceCancel is the admin cancellation of any order not yet delivered.
func (s *Service) ForceCancel(ctx context.Context, code string, actor Actor, reason string) (Result, error) {
	return s.cancel(ctx, code, actor, reason, ActionForceCancel)
}

func (s *Service) cancel(ctx context.Context, code string, actor Actor, reason string, action Action) (Result, error) {
	reason = strings.TrimSpace(reason)
	if len(reason) > maxReasonLen {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "reason must be at most 500 characters")
	}
	var result Result
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.Load(ctx, tx, code, actor)
		if err != nil {
			return err
		}
		outcome, err := s.engine.Apply(ctx, tx, order, Command{Action: action, Actor: actor, RefundReason: reason})
		if err != nil {
			return err
		}
		request, err := s.repo.WithTx(tx).CancelRequestFor(ctx, order.ID)
		if err != nil {
			return err
		}
		if request != nil && request.Status == enums.CancelRequestRequested {
			if err := s.resolveCancelRequest(ctx, tx, request, enums.CancelRequestApproved, actor, reason); err != nil {
				return err
			}
		}
		if action == ActionForceCancel {
			s.Record(ctx, tx, actor, "order.force_cancel", order, map[string]any{
				"reason": reason,
				"from":   outcome.From,
				"refund": outcome.Record != nil && outcome.Record.Status == enums.RefundStatusSuccess,
			})
		}
		body := fmt.Sprintf("Order %s was cancelled.", order.Code)
		if reason != "" {
			body = fmt.Sprintf("Order %s was cancelled: %s", order.Code, reason)
		}
		s.NotifyBuyer(ctx, tx, order, enums.NotificationOrderUpdate, "Order cancelled", body)
		result = resultOf(order, &outcome)
		return nil
	})
	return result, err
}

// StatusFilter narrows a listing to one status, the countable statuses, or both.
type StatusFilter struct {
	Status    *enums.OrderStatus
	Countable bool
}

// List returns the orders visible to the actor, newest first.
func (s *Service) List(ctx context.Context, actor Actor, by StatusFilter, params pagination.Params) (List, error) {
	filter := Filter{Status: by.Status}
	if by.Countable {
		filter.Statuses = enums.CountableOrderStatuses
	}
	switch actor.Role {
	case enums.RoleCustomer:
		filter.UserID = &actor.UserID
	case enums.RoleSeller:
		if actor.ShopID == nil {
			return List{}, pkgerrors.New(pkgerrors.CodeForbidden, "shop context missing")
		}
		filter.ShopID = actor.ShopID
	case enums.RoleAdmin, enums.RoleCS:
	default:
		return List{}, pkgerrors.New(pkgerrors.CodeForbidden, "unknown role")
	}
	page, err := s.repo.List(ctx, filter, params)
	if err != nil {
		return List{}, err
	}
	out := List{Orders: make([]Summary, 0, len(page.Items)), NextCursor: page.NextCursor}
	for _, order := range page.Items {
		out.Orders = append(out.Orders, summaryOf(order))
	}
	return out, nil
}

// Get returns the full order with its side records and the actions the
// caller may take next.
func (s *Service) Get(ctx context.Context, code string, actor Actor) (Detail, error) {
	order, err := s.repo.FindDetailByCode(ctx, code)
	if err != nil {
		return Detail{}, err
	}
	if !Visible(order, actor) {
		return Detail{}, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return detailOf(*order, actor.Role), nil
}

// Tracking returns the shipment timeline.
func (s *Service) Tracking(ctx context.Context, code string, actor Actor) (Tracking, error) {
	order, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		return Tracking{}, err
	}
	if !Visible(order, actor) {
		return Tracking{}, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	shipment, err := s.tracker.ForOrder(ctx, nil, order.ID)
	if err != nil {
		return Tracking{}, err
	}
	return Tracking{Code: order.Code, Status: order.Status, Shipment: shipmentOf(shipment)}, nil
}

// Invoice renders the order as an invoice numbered INV-<code>.
func (s *Service) Invoice(ctx context.Context, code string, actor Actor) (Invoice, error) {
	order, err := s.repo.FindDetailByCode(ctx, code)
	if err != nil {
		return Invoice{}, err
	}
	if !Visible(order, actor) {
		return Invoice{}, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	summary := summaryOf(*order)
	invoice := Invoice{
		Number:        invoiceNumber(order.Code),
		Code:          order.Code,
		IssuedAt:      order.CreatedAt,
		Status:        order.Status,
		BillTo:        order.Shipping,
		Items:         summary.Items,
		Subtotal:      order.Subtotal,
		ShippingFee:   order.ShippingFee,
		Discount:      order.Discount,
		Total:         order.Total,
		PaymentMethod: order.PaymentMethod,
		Currency:      s.currency,
	}
	if order.Payment != nil {
		status := order.Payment.Status
		invoice.PaymentStatus = &status
	}
	return invoice, nil
}

// Apply runs a state machine action inside tx.
func (s *Service) Apply(ctx context.Context, tx *gorm.DB, order *models.Order, cmd Command) (Outcome, error) {
	return s.engine.Apply(ctx, tx, order, cmd)
}

// NotifyAdmins reaches every staff account.
func (s *Service) NotifyAdmins(ctx context.Context, tx *gorm.DB, order *models.Order, kind enums.NotificationType, title, body string) {
	if s.notify == nil {
		return
	}
	s.notify.NotifyAdmins(ctx, tx, notifications.Notification{
		Type:  kind,
		Title: title,
		Body:  body,
		Data:  map[string]any{"code": order.Code, "status": order.Status},
	})
}

// Repo exposes the side-record getters to the workflow services.
func (s *Service) Repo() *Repository {
	return s.repo
}

// deliverShipment closes an open shipment when the buyer confirms receipt.
func (s *Service) deliverShipment(ctx context.Context, tx *gorm.DB, order *models.Order, message string) error {
	shipment, err := s.tracker.ForOrder(ctx, tx, order.ID)
	if err != nil || shipment == nil {
		return err
	}
	if !shipment.Status.Advances(enums.ShipmentStatusDelivered) {
		return nil
	}
	_, err = s.tracker.Append(ctx, tx, shipment, enums.ShipmentStatusDelivered, message, false)
	return err
}

func (s *Service) emitShipment(ctx context.Context, tx *gorm.DB, order *models.Order, shipment *models.Shipment, actor Actor, message string) error {
	return s.emitter.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventShipmentUpdated,
		AggregateType: enums.AggregateShipment,
		AggregateID:   shipment.ID,
		Actor:         actor.ref(),
		Data: payloads.ShipmentUpdatedEvent{
			ShipmentID:   shipment.ID,
			OrderID:      order.ID,
			Code:         order.Code,
			TrackingCode: shipment.TrackingCode,
			Status:       shipment.Status,
			Message:      strings.TrimSpace(message),
		},
	})
}

// NotifyBuyer queues a best-effort notification for the order's buyer.
func (s *Service) NotifyBuyer(ctx context.Context, tx *gorm.DB, order *models.Order, kind enums.NotificationType, title, body string) {
	if s.notify == nil {
		return
	}
	s.notify.Notify(ctx, tx, notifications.Notification{
		UserID: order.UserID,
		Type:   kind,
		Title:  title,
		Body:   body,
		Data:   map[string]any{"code": order.Code, "status": order.Status},
	})
}

// NotifySeller addresses the owner of the order's shop.
func (s *Service) NotifySeller(ctx context.Context, tx *gorm.DB, order *models.Order, kind enums.NotificationType, title, body string) {
	if s.notify == nil {
		return
	}
	owner, err := s.repo.WithTx(tx).ShopOwner(ctx, order.ShopID)
	if err != nil {
		if s.logg != nil {
			s.logg.Error(s.logg.WithOrderCode(ctx, order.Code), "seller notification skipped", err)
		}
		return
	}
	s.notify.Notify(ctx, tx, notifications.Notification{
		UserID: owner,
		Type:   kind,
		Title:  title,
		Body:   body,
		Data:   map[string]any{"code": order.Code, "status": order.Status},
	})
}

// Record appends an audit entry for a privileged action on the order.
func (s *Service) Record(ctx context.Context, tx *gorm.DB, actor Actor, action string, order *models.Order, payload map[string]any) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, tx, audit.Entry{
		ActorID:    actor.UserID,
		Action:     action,
		EntityType: "order",
		EntityID:   order.Code,
		Payload:    payload,
	})
}
