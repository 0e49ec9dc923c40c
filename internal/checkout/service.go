package checkout

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/internal/address"
	"github.com/angelmondragon/orderflow-backend/internal/cart"
	"github.com/angelmondragon/orderflow-backend/internal/checkout/helpers"
	"github.com/angelmondragon/orderflow-backend/internal/inventory"
	"github.com/angelmondragon/orderflow-backend/internal/notifications"
	"github.com/angelmondragon/orderflow-backend/internal/vouchers"
	"github.com/angelmondragon/orderflow-backend/pkg/config"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/metrics"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox/payloads"
)

const (
	maxLines   = 100
	maxNoteLen = 500
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type addressBook interface {
	FindForUser(ctx context.Context, tx *gorm.DB, userID, id uuid.UUID) (*models.Address, error)
}

type voucherQuoter interface {
	Quote(ctx context.Context, tx *gorm.DB, code string, c vouchers.Context) (vouchers.Verdict, *models.Voucher, error)
	Redeem(ctx context.Context, tx *gorm.DB, voucherID uuid.UUID) error
}

type paymentLedger interface {
	Create(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, method enums.PaymentMethod, amount int64) (*models.Payment, error)
}

type orderHistory interface {
	PriorOrderCount(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (int64, error)
}

type notifier interface {
	Notify(ctx context.Context, tx *gorm.DB, n notifications.Notification)
}

// LineInput is one requested variant quantity.
type LineInput struct {
	VariantID uuid.UUID `json:"variant_id" validate:"required"`
	Qty       int       `json:"qty" validate:"required,min=1,max=999"`
}

// CheckoutInput is the buyer's checkout request. Items falls back to the
// persisted cart when empty.
type CheckoutInput struct {
	AddressID     *uuid.UUID          `json:"address_id,omitempty"`
	Shipping      *address.Input      `json:"shipping,omitempty"`
	Items         []LineInput         `json:"items,omitempty" validate:"omitempty,max=100,dive"`
	PaymentMethod enums.PaymentMethod `json:"payment_method" validate:"required,enum"`
	VoucherCode   string              `json:"voucher_code,omitempty" validate:"omitempty,max=64"`
	Note          string              `json:"note,omitempty" validate:"omitempty,max=500"`
}

// VoucherOutcome tells the buyer whether the code applied to a shop order.
type VoucherOutcome struct {
	Applied bool            `json:"applied"`
	Reason  vouchers.Reason `json:"reason,omitempty"`
	Message string          `json:"message,omitempty"`
}

// OrderResult summarizes one order produced by a checkout.
type OrderResult struct {
	ID          uuid.UUID         `json:"id"`
	Code        string            `json:"code"`
	ShopID      uuid.UUID         `json:"shop_id"`
	Status      enums.OrderStatus `json:"status"`
	Subtotal    int64             `json:"subtotal"`
	ShippingFee int64             `json:"shipping_fee"`
	Discount    int64             `json:"discount"`
	Total       int64             `json:"total"`
	Voucher     *VoucherOutcome   `json:"voucher,omitempty"`
}

// Estimate is the shipping quote for a single shop order.
type Estimate struct {
	ShippingFee int64  `json:"shipping_fee"`
	Currency    string `json:"currency"`
}

// ServiceParams wires the checkout service.
type ServiceParams struct {
	Tx        txRunner
	Repo      *Repository
	Cart      *cart.Repository
	Addresses addressBook
	Vouchers  voucherQuoter
	Ledger    paymentLedger
	Orders    orderHistory
	Emitter   outbox.Emitter
	Notifier  notifier
	Config    config.CheckoutConfig
	Metrics   *metrics.OrderMetrics
	Logger    *logger.Logger
}

// Service fans a checkout out into one order per shop.
type Service struct {
	tx        txRunner
	repo      *Repository
	cart      *cart.Repository
	addresses addressBook
	vouchers  voucherQuoter
	ledger    paymentLedger
	orders    orderHistory
	emitter   outbox.Emitter
	notify    notifier
	cfg       config.CheckoutConfig
	metrics   *metrics.OrderMetrics
	logg      *logger.Logger
	now       func() time.Time
}

// NewService builds the checkout service.
func NewService(p ServiceParams) (*Service, error) {
	if p.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if p.Repo == nil {
		return nil, fmt.Errorf("checkout repository required")
	}
	if p.Cart == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if p.Addresses == nil {
		return nil, fmt.Errorf("address book required")
	}
	if p.Vouchers == nil {
		return nil, fmt.Errorf("voucher service required")
	}
	if p.Ledger == nil {
		return nil, fmt.Errorf("payment ledger required")
	}
	if p.Orders == nil {
		return nil, fmt.Errorf("order history required")
	}
	if p.Emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if p.Config.Currency == "" {
		p.Config.Currency = "VND"
	}
	return &Service{
		tx:        p.Tx,
		repo:      p.Repo,
		cart:      p.Cart,
		addresses: p.Addresses,
		vouchers:  p.Vouchers,
		ledger:    p.Ledger,
		orders:    p.Orders,
		emitter:   p.Emitter,
		notify:    p.Notifier,
		cfg:       p.Config,
		metrics:   p.Metrics,
		logg:      p.Logger,
		now:       time.Now,
	}, nil
}

// EstimateShipping quotes the fee for a shop order of the given subtotal.
func (s *Service) EstimateShipping(subtotal int64) (Estimate, error) {
	if subtotal < 0 {
		return Estimate{}, pkgerrors.New(pkgerrors.CodeValidation, "subtotal must be non-negative")
	}
	return Estimate{ShippingFee: s.cfg.ShippingFee(subtotal), Currency: s.cfg.Currency}, nil
}

// Execute places the checkout. Every shop order, stock movement, payment and
// voucher redemption commits together or not at all.
func (s *Service) Execute(ctx context.Context, userID uuid.UUID, input CheckoutInput) ([]OrderResult, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user required")
	}
	if !input.PaymentMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method")
	}
	note := strings.TrimSpace(input.Note)
	if len(note) > maxNoteLen {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "note must be at most %d characters", maxNoteLen)
	}
	if len(input.Items) > maxLines {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "at most %d lines per checkout", maxLines)
	}

	var results []OrderResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		dest, err := s.destination(ctx, tx, userID, input)
		if err != nil {
			return err
		}

		carts := s.cart.WithTx(tx)
		saved, err := carts.FindByUser(ctx, userID)
		if err != nil {
			return err
		}
		variantIDs, qtys, err := requestedLines(input.Items, saved)
		if err != nil {
			return err
		}
		ids, merged := helpers.MergeQuantities(variantIDs, qtys)

		repo := s.repo.WithTx(tx)
		variants, err := repo.LoadVariants(ctx, ids)
		if err != nil {
			return err
		}
		lines := make([]helpers.Line, 0, len(ids))
		for _, id := range ids {
			variant := variants[id]
			if err := helpers.ValidateVariant(variant, merged[id]); err != nil {
				return err
			}
			lines = append(lines, helpers.Line{Variant: variant, Qty: merged[id]})
		}

		prior, err := s.orders.PriorOrderCount(ctx, tx, userID)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		for _, group := range helpers.GroupLinesByShop(lines) {
			res, err := s.placeGroup(ctx, tx, repo, userID, group, dest, input, note, prior, now)
			if err != nil {
				return err
			}
			results = append(results, res)
		}

		if saved == nil {
			return nil
		}
		return carts.Clear(ctx, saved.ID)
	})
	if err != nil {
		s.metrics.IncCheckout("failed", 0)
		return nil, err
	}
	s.metrics.IncCheckout("placed", len(results))
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"user_id":     userID.String(),
			"order_count": len(results),
			"method":      input.PaymentMethod,
		})
		s.logg.Info(logCtx, "checkout placed")
	}
	return results, nil
}

func (s *Service) destination(ctx context.Context, tx *gorm.DB, userID uuid.UUID, input CheckoutInput) (models.ShippingSnapshot, error) {
	var dest models.ShippingSnapshot
	switch {
	case input.AddressID != nil:
		addr, err := s.addresses.FindForUser(ctx, tx, userID, *input.AddressID)
		if err != nil {
			return dest, err
		}
		dest = address.SnapshotOf(addr)
	case input.Shipping != nil:
		dest = input.Shipping.Snapshot()
	default:
		return dest, pkgerrors.New(pkgerrors.CodeValidation, "address_id or shipping is required")
	}
	if err := helpers.ValidateDestination(dest); err != nil {
		return dest, err
	}
	return dest, nil
}

// requestedLines returns the explicit items, or the saved cart's items when
// none were given.
func requestedLines(items []LineInput, saved *models.Cart) ([]uuid.UUID, []int, error) {
	if len(items) > 0 {
		ids := make([]uuid.UUID, 0, len(items))
		qtys := make([]int, 0, len(items))
		for _, item := range items {
			if item.VariantID == uuid.Nil || item.Qty <= 0 {
				return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "each item needs a variant_id and a positive qty")
			}
			ids = append(ids, item.VariantID)
			qtys = append(qtys, item.Qty)
		}
		return ids, qtys, nil
	}
	if saved == nil || len(saved.Items) == 0 {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	ids := make([]uuid.UUID, 0, len(saved.Items))
	qtys := make([]int, 0, len(saved.Items))
	for _, item := range saved.Items {
		ids = append(ids, item.VariantID)
		qtys = append(qtys, item.Qty)
	}
	return ids, qtys, nil
}

func (s *Service) placeGroup(
	ctx context.Context,
	tx *gorm.DB,
	repo *Repository,
	userID uuid.UUID,
	group helpers.ShopGroup,
	dest models.ShippingSnapshot,
	input CheckoutInput,
	note string,
	prior int64,
	now time.Time,
) (OrderResult, error) {
	var (
		verdict vouchers.Verdict
		voucher *models.Voucher
		outcome *VoucherOutcome
	)
	if code := strings.TrimSpace(input.VoucherCode); code != "" {
		var err error
		verdict, voucher, err = s.vouchers.Quote(ctx, tx, code, vouchers.Context{
			Subtotal:    group.Subtotal,
			ShopID:      group.ShopID,
			PriorOrders: prior,
			Now:         now,
		})
		if err != nil {
			return OrderResult{}, err
		}
		outcome = &VoucherOutcome{Applied: verdict.Applied, Reason: verdict.Reason, Message: verdict.Message}
	}

	shippingFee := s.cfg.ShippingFee(group.Subtotal)
	code, err := NewOrderCode(now)
	if err != nil {
		return OrderResult{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate order code")
	}
	order := &models.Order{
		Code:          code,
		UserID:        userID,
		ShopID:        group.ShopID,
		Status:        enums.OrderStatusPlaced,
		Subtotal:      group.Subtotal,
		ShippingFee:   shippingFee,
		Discount:      verdict.Discount,
		Total:         group.Subtotal + shippingFee - verdict.Discount,
		PaymentMethod: input.PaymentMethod,
		Shipping:      dest,
	}
	if note != "" {
		order.Note = &note
	}
	if voucher != nil {
		id, vcode := voucher.ID, voucher.Code
		order.VoucherID = &id
		order.VoucherCode = &vcode
	}
	stock := make([]inventory.Line, 0, len(group.Lines))
	for _, line := range group.Lines {
		v := line.Variant
		order.Items = append(order.Items, models.OrderItem{
			ProductID: v.ProductID,
			VariantID: v.ID,
			Name:      itemName(v),
			UnitPrice: v.UnitPrice(),
			CostPrice: v.UnitCost(),
			Qty:       line.Qty,
			LineTotal: line.LineTotal(),
		})
		stock = append(stock, inventory.Line{VariantID: v.ID, ProductID: v.ProductID, Qty: line.Qty})
	}
	if !order.Balanced() {
		return OrderResult{}, pkgerrors.New(pkgerrors.CodeInternal, "order totals do not balance")
	}

	if err := repo.CreateOrder(ctx, order); err != nil {
		return OrderResult{}, err
	}
	if err := inventory.Decrement(ctx, tx, stock); err != nil {
		return OrderResult{}, err
	}
	payment, err := s.ledger.Create(ctx, tx, order.ID, order.PaymentMethod, order.Total)
	if err != nil {
		return OrderResult{}, err
	}
	if payment.Status == enums.PaymentStatusFailed {
		if err := repo.MarkPendingPayment(ctx, order); err != nil {
			return OrderResult{}, err
		}
	}
	if voucher != nil {
		if err := s.vouchers.Redeem(ctx, tx, voucher.ID); err != nil {
			return OrderResult{}, err
		}
	}

	if err := s.emitter.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{UserID: userID, Role: string(enums.RoleCustomer)},
		Data: payloads.OrderCreatedEvent{
			OrderID:       order.ID,
			Code:          order.Code,
			UserID:        order.UserID,
			ShopID:        order.ShopID,
			Status:        order.Status,
			PaymentMethod: order.PaymentMethod,
			Subtotal:      order.Subtotal,
			ShippingFee:   order.ShippingFee,
			Discount:      order.Discount,
			Total:         order.Total,
			VoucherCode:   order.VoucherCode,
			ItemCount:     group.ItemCount(),
		},
	}); err != nil {
		return OrderResult{}, err
	}
	if s.notify != nil {
		s.notify.Notify(ctx, tx, notifications.Notification{
			UserID: userID,
			Type:   enums.NotificationOrderConfirm,
			Title:  "Order placed",
			Body:   fmt.Sprintf("Order %s has been placed.", order.Code),
			Data:   map[string]any{"code": order.Code, "status": order.Status},
		})
	}

	return OrderResult{
		ID:          order.ID,
		Code:        order.Code,
		ShopID:      order.ShopID,
		Status:      order.Status,
		Subtotal:    order.Subtotal,
		ShippingFee: order.ShippingFee,
		Discount:    order.Discount,
		Total:       order.Total,
		Voucher:     outcome,
	}, nil
}

func itemName(v *models.Variant) string {
	if v.Product == nil {
		return v.Name
	}
	if v.Name == "" {
		return v.Product.Name
	}
	return v.Product.Name + " - " + v.Name
}
