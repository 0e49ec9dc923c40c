package orders

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/internal/audit"
	"github.com/angelmondragon/orderflow-backend/internal/notifications"
	"github.com/angelmondragon/orderflow-backend/internal/payments"
	"github.com/angelmondragon/orderflow-backend/internal/shipments"
	"github.com/angelmondragon/orderflow-backend/pkg/db/dbtest"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox"
	"github.com/angelmondragon/orderflow-backend/pkg/pagination"
)

type harness struct {
	svc    *Service
	engine *Engine
	conn   *gorm.DB
	shop   models.Shop
	seller Actor
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	client, conn := dbtest.Client(t)
	emitter := outbox.NewService(outbox.NewRepository(conn), nil)
	engine, err := NewEngine(payments.NewLedger(conn, nil, nil), emitter, nil, nil)
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		Repo:     NewRepository(conn),
		Tx:       client,
		Engine:   engine,
		Tracker:  shipments.NewTracker(conn),
		Emitter:  emitter,
		Notifier: notifications.NewSink(emitter, nil),
		Audit:    audit.NewSink(nil),
	})
	require.NoError(t, err)
	shop := dbtest.SeedShop(t, conn)
	return &harness{
		svc:    svc,
		engine: engine,
		conn:   conn,
		shop:   shop,
		seller: Actor{UserID: shop.OwnerID, Role: enums.RoleSeller, ShopID: &shop.ID},
	}
}

func (h *harness) order(t *testing.T, seed dbtest.OrderSeed) (models.Order, Actor) {
	t.Helper()
	if seed.Variant.ID == uuid.Nil {
		seed.Variant = dbtest.SeedVariant(t, h.conn, h.shop.ID, 100000, 60000, 10)
	}
	order := dbtest.SeedOrder(t, h.conn, seed)
	return order, Actor{UserID: order.UserID, Role: enums.RoleCustomer}
}

func (h *harness) status(t *testing.T, orderID uuid.UUID) enums.OrderStatus {
	t.Helper()
	var order models.Order
	require.NoError(t, h.conn.First(&order, "id = ?", orderID).Error)
	return order.Status
}

func (h *harness) stock(t *testing.T, variantID uuid.UUID) int {
	t.Helper()
	var variant models.Variant
	require.NoError(t, h.conn.First(&variant, "id = ?", variantID).Error)
	return variant.Stock
}

func (h *harness) payment(t *testing.T, orderID uuid.UUID) models.Payment {
	t.Helper()
	var payment models.Payment
	require.NoError(t, h.conn.First(&payment, "order_id = ?", orderID).Error)
	return payment
}

func TestScopeRequiresActiveShop(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	actor, err := h.svc.Scope(ctx, h.shop.OwnerID, enums.RoleSeller)
	require.NoError(t, err)
	require.Equal(t, h.shop.ID, *actor.ShopID)

	_, err = h.svc.Scope(ctx, uuid.New(), enums.RoleSeller)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	require.NoError(t, h.conn.Model(&models.Shop{}).Where("id = ?", h.shop.ID).Update("status", enums.ShopStatusSuspended).Error)
	_, err = h.svc.Scope(ctx, h.shop.OwnerID, enums.RoleSeller)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func TestHappyPathCompletesAndFreezes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	order, buyer := h.order(t, dbtest.OrderSeed{})

	res, err := h.svc.Confirm(ctx, order.Code, h.seller)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusConfirmed, res.Status)

	_, err = h.svc.Pack(ctx, order.Code, h.seller)
	require.NoError(t, err)

	res, err = h.svc.CreateShipment(ctx, order.Code, h.seller, "")
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusShipped, res.Status)
	require.NotEmpty(t, res.TrackingCode)

	res, err = h.svc.UpdateShipment(ctx, order.Code, h.seller, ShipmentUpdate{Status: enums.ShipmentStatusInTransit, Message: "hub"}, false)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusShipped, res.Status)

	res, err = h.svc.UpdateShipment(ctx, order.Code, h.seller, ShipmentUpdate{Status: enums.ShipmentStatusDelivered}, false)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusDelivered, res.Status)

	res, err = h.svc.ConfirmReceived(ctx, order.Code, buyer)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusCompleted, res.Status)

	_, err = h.svc.ForceCancel(ctx, order.Code, Actor{UserID: uuid.New(), Role: enums.RoleAdmin}, "late")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	require.Equal(t, enums.OrderStatusCompleted, h.status(t, order.ID))

	tracking, err := h.svc.Tracking(ctx, order.Code, buyer)
	require.NoError(t, err)
	require.Len(t, tracking.Shipment.Events, 3)
	require.Equal(t, enums.ShipmentStatusDelivered, tracking.Shipment.Status)

	var changes int64
	require.NoError(t, h.conn.Model(&models.OutboxEvent{}).
		Where("aggregate_id = ? AND event_type = ?", order.ID, enums.EventOrderStateChanged).
		Count(&changes).Error)
	require.EqualValues(t, 5, changes)
}

func TestDeliverCapturesCOD(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	order, _ := h.order(t, dbtest.OrderSeed{
		Status:  enums.OrderStatusPacking,
		Method:  enums.PaymentMethodCOD,
		Payment: enums.PaymentStatusUnpaid,
	})

	_, err := h.svc.CreateShipment(ctx, order.Code, h.seller, "")
	require.NoError(t, err)
	require.Equal(t, enums.PaymentStatusUnpaid, h.payment(t, order.ID).Status)

	_, err = h.svc.UpdateShipment(ctx, order.Code, h.seller, ShipmentUpdate{Status: enums.ShipmentStatusDelivered}, false)
	require.NoError(t, err)

	payment := h.payment(t, order.ID)
	require.Equal(t, enums.PaymentStatusCaptured, payment.Status)
	require.NotNil(t, payment.ProviderRef)
	require.Contains(t, *payment.ProviderRef, "COD-")
}

func TestCreateShipmentTwiceConflicts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	order, _ := h.order(t, dbtest.OrderSeed{Status: enums.OrderStatusPacking})

	_, err := h.svc.CreateShipment(ctx, order.Code, h.seller, "")
	require.NoError(t, err)
	_, err = h.svc.CreateShipment(ctx, order.Code, h.seller, "")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
}

func TestSellerCannotMoveShipmentBackwards(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	order, _ := h.order(t, dbtest.OrderSeed{Status: enums.OrderStatusPacking})
	_, err := h.svc.CreateShipment(ctx, order.Code, h.seller, "")
	require.NoError(t, err)
	_, err = h.svc.UpdateShipment(ctx, order.Code, h.seller, ShipmentUpdate{Status: enums.ShipmentStatusInTransit}, false)
	require.NoError(t, err)

	_, err = h.svc.UpdateShipment(ctx, order.Code, h.seller, ShipmentUpdate{Status: enums.ShipmentStatusShipped}, false)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	_, err = h.svc.UpdateShipment(ctx, order.Code, h.seller, ShipmentUpdate{Status: enums.ShipmentStatusShipped}, true)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	admin := Actor{UserID: uuid.New(), Role: enums.RoleAdmin}
	res, err := h.svc.UpdateShipment(ctx, order.Code, admin, ShipmentUpdate{Status: enums.ShipmentStatusShipped, Message: "rescanned"}, true)
	require.NoError(t, err)
	require.Equal(t, enums.ShipmentStatusShipped, *res.Shipment)

	var audits int64
	require.NoError(t, h.conn.Model(&models.AuditLog{}).Where("action = ?", "shipment.override").Count(&audits).Error)
	require.EqualValues(t, 1, audits)
}

func TestCancelApproveRefundsAndRestocks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	variant := dbtest.SeedVariant(t, h.conn, h.shop.ID, 100000, 60000, 5)
	order, buyer := h.order(t, dbtest.OrderSeed{Variant: variant, Qty: 2, Status: enums.OrderStatusConfirmed})

	res, err := h.svc.CancelRequest(ctx, order.Code, buyer, "changed my mind")
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusCancelRequested, res.Status)

	_, err = h.svc.CancelRequest(ctx, order.Code, buyer, "again")
	require.Error(t, err)

	res, err = h.svc.CancelApprove(ctx, order.Code, h.seller, "ok")
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusCancelled, res.Status)
	require.NotNil(t, res.RefundStatus)
	require.Equal(t, enums.RefundStatusSuccess, *res.RefundStatus)

	require.Equal(t, 7, h.stock(t, variant.ID))
	require.Equal(t, enums.PaymentStatusRefunded, h.payment(t, order.ID).Status)

	var refund models.Refund
	require.NoError(t, h.conn.First(&refund, "order_id = ?", order.ID).Error)
	require.Equal(t, order.Total, refund.Amount)
	require.NotNil(t, refund.ProviderRef)

	var request models.CancelRequest
	require.NoError(t, h.conn.First(&request, "order_id = ?", order.ID).Error)
	require.Equal(t, enums.CancelRequestApproved, request.Status)

	_, err = h.svc.CancelApprove(ctx, order.Code, h.seller, "")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
	require.Equal(t, 7, h.stock(t, variant.ID))
}

func TestCancelRejectRestoresPreviousStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	order, buyer := h.order(t, dbtest.OrderSeed{Status: enums.OrderStatusPacking})

	_, err := h.svc.CancelRequest(ctx, order.Code, buyer, "too slow")
	require.NoError(t, err)
	res, err := h.svc.CancelReject(ctx, order.Code, h.seller, "already packed")
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusPacking, res.Status)

	var request models.CancelRequest
	require.NoError(t, h.conn.First(&request, "order_id = ?", order.ID).Error)
	require.Equal(t, enums.CancelRequestRejected, request.Status)
	require.NotNil(t, request.DecisionNote)
}

func TestCancelUnpaidCODSkipsRefundRecord(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	variant := dbtest.SeedVariant(t, h.conn, h.shop.ID, 50000, 20000, 3)
	order, _ := h.order(t, dbtest.OrderSeed{
		Variant: variant,
		Method:  enums.PaymentMethodCOD,
		Payment: enums.PaymentStatusUnpaid,
	})

	res, err := h.svc.Cancel(ctx, order.Code, h.seller, "out of stock")
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusCancelled, res.Status)
	require.Nil(t, res.RefundStatus)
	require.Equal(t, 4, h.stock(t, variant.ID))

	var refunds int64
	require.NoError(t, h.conn.Model(&models.Refund{}).Where("order_id = ?", order.ID).Count(&refunds).Error)
	require.Zero(t, refunds)
	require.Equal(t, enums.PaymentStatusUnpaid, h.payment(t, order.ID).Status)
}

func TestForceCancelByCSIsAudited(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	order, _ := h.order(t, dbtest.OrderSeed{Status: enums.OrderStatusShipped})
	cs := Actor{UserID: uuid.New(), Role: enums.RoleCS}

	res, err := h.svc.ForceCancel(ctx, order.Code, cs, "fraud")
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusCancelled, res.Status)

	var entry models.AuditLog
	require.NoError(t, h.conn.First(&entry, "action = ?", "order.force_cancel").Error)
	require.Equal(t, order.Code, entry.EntityID)
	require.Equal(t, cs.UserID, entry.ActorID)
}

func TestShipmentOverrideRejectsTerminalOrders(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	admin := Actor{UserID: uuid.New(), Role: enums.RoleAdmin}
	order, _ := h.order(t, dbtest.OrderSeed{
		Status:  enums.OrderStatusPacking,
		Method:  enums.PaymentMethodCOD,
		Payment: enums.PaymentStatusUnpaid,
	})
	_, err := h.svc.CreateShipment(ctx, order.Code, h.seller, "")
	require.NoError(t, err)
	_, err = h.svc.ForceCancel(ctx, order.Code, admin, "lost parcel")
	require.NoError(t, err)

	_, err = h.svc.UpdateShipment(ctx, order.Code, admin, ShipmentUpdate{Status: enums.ShipmentStatusDelivered, Message: "found"}, true)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	require.Equal(t, enums.OrderStatusCancelled, h.status(t, order.ID))
	require.Equal(t, enums.PaymentStatusUnpaid, h.payment(t, order.ID).Status)

	var events int64
	require.NoError(t, h.conn.Model(&models.ShipmentEvent{}).
		Joins("JOIN shipments ON shipments.id = shipment_events.shipment_id").
		Where("shipments.order_id = ?", order.ID).
		Count(&events).Error)
	require.EqualValues(t, 1, events)
}

func TestConcurrentCancelApproveSucceedsOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	variant := dbtest.SeedVariant(t, h.conn, h.shop.ID, 100000, 60000, 5)
	order, buyer := h.order(t, dbtest.OrderSeed{Variant: variant, Qty: 2, Status: enums.OrderStatusConfirmed})
	_, err := h.svc.CancelRequest(ctx, order.Code, buyer, "changed my mind")
	require.NoError(t, err)

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.CancelApprove(ctx, order.Code, h.seller, "ok")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, conflicts int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case pkgerrors.IsCode(err, pkgerrors.CodeConflict), pkgerrors.IsCode(err, pkgerrors.CodeStateConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, ok)
	require.Equal(t, 1, conflicts)
	require.Equal(t, 7, h.stock(t, variant.ID))
	require.Equal(t, enums.OrderStatusCancelled, h.status(t, order.ID))
}

func TestSellerCannotCancelAfterShipment(t *testing.T) {
	h := newHarness(t)
	order, _ := h.order(t, dbtest.OrderSeed{Status: enums.OrderStatusShipped})

	_, err := h.svc.Cancel(context.Background(), order.Code, h.seller, "")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	require.Equal(t, enums.OrderStatusShipped, h.status(t, order.ID))
}

func TestOrdersOutsideScopeAreNotFound(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	order, _ := h.order(t, dbtest.OrderSeed{})

	stranger := Actor{UserID: uuid.New(), Role: enums.RoleCustomer}
	_, err := h.svc.Get(ctx, order.Code, stranger)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	other := dbtest.SeedShop(t, h.conn)
	otherSeller := Actor{UserID: other.OwnerID, Role: enums.RoleSeller, ShopID: &other.ID}
	_, err = h.svc.Confirm(ctx, order.Code, otherSeller)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	require.Equal(t, enums.OrderStatusPlaced, h.status(t, order.ID))
}

func TestStaleApplyIsStateConflict(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	order, buyer := h.order(t, dbtest.OrderSeed{Status: enums.OrderStatusConfirmed})
	_, err := h.svc.CancelRequest(ctx, order.Code, buyer, "wrong size")
	require.NoError(t, err)

	first, err := NewRepository(h.conn).FindByCode(ctx, order.Code)
	require.NoError(t, err)
	second, err := NewRepository(h.conn).FindByCode(ctx, order.Code)
	require.NoError(t, err)

	cmd := Command{Action: ActionCancelApprove, Actor: h.seller}
	require.NoError(t, h.conn.Transaction(func(tx *gorm.DB) error {
		_, err := h.engine.Apply(ctx, tx, first, cmd)
		return err
	}))
	err = h.conn.Transaction(func(tx *gorm.DB) error {
		_, err := h.engine.Apply(ctx, tx, second, cmd)
		return err
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	var refunds int64
	require.NoError(t, h.conn.Model(&models.Refund{}).Where("order_id = ?", order.ID).Count(&refunds).Error)
	require.EqualValues(t, 1, refunds)
}

func TestDetailAndInvoice(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	order, buyer := h.order(t, dbtest.OrderSeed{Qty: 3, Shipping: 25000})

	detail, err := h.svc.Get(ctx, order.Code, buyer)
	require.NoError(t, err)
	require.Equal(t, 3, detail.ItemCount)
	require.NotNil(t, detail.Payment)
	require.Contains(t, detail.Actions, ActionCancelRequest)

	invoice, err := h.svc.Invoice(ctx, order.Code, buyer)
	require.NoError(t, err)
	require.Equal(t, "INV-"+order.Code, invoice.Number)
	require.Equal(t, int64(325000), invoice.Total)
	require.Equal(t, "VND", invoice.Currency)
}

func TestListScopesByRole(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	buyerID := uuid.New()
	h.order(t, dbtest.OrderSeed{UserID: buyerID})
	h.order(t, dbtest.OrderSeed{UserID: buyerID, Status: enums.OrderStatusConfirmed})
	h.order(t, dbtest.OrderSeed{})

	mine, err := h.svc.List(ctx, Actor{UserID: buyerID, Role: enums.RoleCustomer}, StatusFilter{}, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, mine.Orders, 2)

	shop, err := h.svc.List(ctx, h.seller, StatusFilter{}, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, shop.Orders, 3)

	confirmed := enums.OrderStatusConfirmed
	admin := Actor{UserID: uuid.New(), Role: enums.RoleAdmin}
	all, err := h.svc.List(ctx, admin, StatusFilter{Status: &confirmed}, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, all.Orders, 1)

	h.order(t, dbtest.OrderSeed{Status: enums.OrderStatusDelivered})
	h.order(t, dbtest.OrderSeed{Status: enums.OrderStatusRefunded})
	countable, err := h.svc.List(ctx, admin, StatusFilter{Countable: true}, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, countable.Orders, 1)
	require.Equal(t, enums.OrderStatusDelivered, countable.Orders[0].Status)
}
