package disputes

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/internal/audit"
	"github.com/angelmondragon/orderflow-backend/internal/notifications"
	"github.com/angelmondragon/orderflow-backend/internal/orders"
	"github.com/angelmondragon/orderflow-backend/internal/payments"
	"github.com/angelmondragon/orderflow-backend/internal/shipments"
	"github.com/angelmondragon/orderflow-backend/pkg/db/dbtest"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox"
	"github.com/angelmondragon/orderflow-backend/pkg/pagination"
)

type fixture struct {
	svc    *Service
	conn   *gorm.DB
	shop   models.Shop
	seller orders.Actor
	admin  orders.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client, conn := dbtest.Client(t)
	emitter := outbox.NewService(outbox.NewRepository(conn), nil)
	engine, err := orders.NewEngine(payments.NewLedger(conn, nil, nil), emitter, nil, nil)
	require.NoError(t, err)
	orderSvc, err := orders.NewService(orders.ServiceParams{
		Repo:     orders.NewRepository(conn),
		Tx:       client,
		Engine:   engine,
		Tracker:  shipments.NewTracker(conn),
		Emitter:  emitter,
		Notifier: notifications.NewSink(emitter, nil),
		Audit:    audit.NewSink(nil),
	})
	require.NoError(t, err)
	svc, err := NewService(orderSvc, NewRepository(conn), client)
	require.NoError(t, err)
	shop := dbtest.SeedShop(t, conn)
	return &fixture{
		svc:    svc,
		conn:   conn,
		shop:   shop,
		seller: orders.Actor{UserID: shop.OwnerID, Role: enums.RoleSeller, ShopID: &shop.ID},
		admin:  orders.Actor{UserID: uuid.New(), Role: enums.RoleAdmin},
	}
}

func (f *fixture) open(t *testing.T, status enums.OrderStatus) (models.Order, orders.Actor, View) {
	t.Helper()
	variant := dbtest.SeedVariant(t, f.conn, f.shop.ID, 120000, 50000, 2)
	order := dbtest.SeedOrder(t, f.conn, dbtest.OrderSeed{Variant: variant, Status: status})
	buyer := orders.Actor{UserID: order.UserID, Role: enums.RoleCustomer}
	res, err := f.svc.Open(context.Background(), order.Code, buyer, OpenInput{Type: "damaged", Message: "screen cracked on arrival"})
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusDisputed, res.Status)
	page, err := f.svc.ListAll(context.Background(), f.admin, "", pagination.Params{})
	require.NoError(t, err)
	for _, v := range page.Items {
		if v.OrderID == order.ID {
			return order, buyer, v
		}
	}
	t.Fatalf("dispute for %s not listed", order.Code)
	return order, buyer, View{}
}

func (f *fixture) status(t *testing.T, orderID uuid.UUID) enums.OrderStatus {
	t.Helper()
	var order models.Order
	require.NoError(t, f.conn.First(&order, "id = ?", orderID).Error)
	return order.Status
}

func TestOpenValidatesAndRejectsDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	variant := dbtest.SeedVariant(t, f.conn, f.shop.ID, 120000, 50000, 2)
	order := dbtest.SeedOrder(t, f.conn, dbtest.OrderSeed{Variant: variant, Status: enums.OrderStatusDelivered})
	buyer := orders.Actor{UserID: order.UserID, Role: enums.RoleCustomer}

	_, err := f.svc.Open(ctx, order.Code, buyer, OpenInput{Message: "bad"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = f.svc.Open(ctx, order.Code, buyer, OpenInput{Message: strings.Repeat("x", 2001)})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = f.svc.Open(ctx, order.Code, buyer, OpenInput{Type: "LATE", Message: "took forever"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.Open(ctx, order.Code, buyer, OpenInput{Message: "wrong item sent"})
	require.NoError(t, err)
	var dispute models.Dispute
	require.NoError(t, f.conn.First(&dispute, "order_id = ?", order.ID).Error)
	require.Equal(t, enums.DisputeTypeOther, dispute.Type)
	require.Equal(t, enums.OrderStatusDelivered, dispute.PreviousStatus)

	_, err = f.svc.Open(ctx, order.Code, buyer, OpenInput{Message: "wrong item sent"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
}

func TestOpenFromCompletedIsStateConflict(t *testing.T) {
	f := newFixture(t)
	variant := dbtest.SeedVariant(t, f.conn, f.shop.ID, 120000, 50000, 2)
	order := dbtest.SeedOrder(t, f.conn, dbtest.OrderSeed{Variant: variant, Status: enums.OrderStatusCompleted})
	buyer := orders.Actor{UserID: order.UserID, Role: enums.RoleCustomer}
	_, err := f.svc.Open(context.Background(), order.Code, buyer, OpenInput{Message: "wrong item sent"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestRespondThenRejectRevertsOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, buyer, dispute := f.open(t, enums.OrderStatusShipped)

	_, err := f.svc.Respond(ctx, order.Code, buyer, "I am the seller")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	view, err := f.svc.Respond(ctx, order.Code, f.seller, "tracking shows it arrived")
	require.NoError(t, err)
	require.Equal(t, enums.DisputeStatusUnderReview, view.Status)
	require.Equal(t, "tracking shows it arrived", *view.SellerResponse)

	_, err = f.svc.Review(ctx, dispute.ID, f.admin)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	view, err = f.svc.Resolve(ctx, dispute.ID, f.admin, ResolveInput{Decision: enums.DisputeStatusRejected, Resolution: "carrier confirmed delivery"})
	require.NoError(t, err)
	require.Equal(t, enums.DisputeStatusRejected, view.Status)
	require.Equal(t, enums.OrderStatusShipped, f.status(t, order.ID))

	var audits int64
	require.NoError(t, f.conn.Model(&models.AuditLog{}).Where("action = ?", "dispute.resolve").Count(&audits).Error)
	require.Equal(t, int64(1), audits)

	_, err = f.svc.Resolve(ctx, dispute.ID, f.admin, ResolveInput{Decision: enums.DisputeStatusResolved, Resolution: "changed my mind"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
}

func TestResolveWithRefundOpensApprovedRefund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, _, dispute := f.open(t, enums.OrderStatusDelivered)

	_, err := f.svc.Review(ctx, dispute.ID, f.seller)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
	view, err := f.svc.Review(ctx, dispute.ID, orders.Actor{UserID: uuid.New(), Role: enums.RoleCS})
	require.NoError(t, err)
	require.Equal(t, enums.DisputeStatusUnderReview, view.Status)

	_, err = f.svc.Resolve(ctx, dispute.ID, f.admin, ResolveInput{Decision: enums.DisputeStatusRejected, Resolution: "refund anyway", ApproveRefund: true})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	view, err = f.svc.Resolve(ctx, dispute.ID, f.admin, ResolveInput{Decision: enums.DisputeStatusResolved, Resolution: "photos confirm damage", ApproveRefund: true})
	require.NoError(t, err)
	require.Equal(t, enums.DisputeStatusResolved, view.Status)
	require.Equal(t, enums.OrderStatusRefundRequested, f.status(t, order.ID))

	var refund models.Refund
	require.NoError(t, f.conn.First(&refund, "order_id = ?", order.ID).Error)
	require.Equal(t, enums.RefundStatusApproved, refund.Status)
	require.Equal(t, order.Total, refund.Amount)
}

func TestRevisionOnlyOnceAfterDecision(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, buyer, dispute := f.open(t, enums.OrderStatusDelivered)

	_, err := f.svc.RequestRevision(ctx, order.Code, buyer, "please look again")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	_, err = f.svc.Resolve(ctx, dispute.ID, f.admin, ResolveInput{Decision: enums.DisputeStatusRejected, Resolution: "no evidence given"})
	require.NoError(t, err)
	before := f.status(t, order.ID)

	view, err := f.svc.RequestRevision(ctx, order.Code, buyer, "photos attached now")
	require.NoError(t, err)
	require.Equal(t, 1, view.EditCount)
	require.Equal(t, enums.DisputeStatusRejected, view.Status)
	require.Equal(t, before, f.status(t, order.ID))

	_, err = f.svc.RequestRevision(ctx, order.Code, buyer, "one more time")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	var admins int64
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventNotificationRequested).Count(&admins).Error)
	require.Positive(t, admins)
}

func TestListForShopScopes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, _, _ := f.open(t, enums.OrderStatusDelivered)

	page, err := f.svc.ListForShop(ctx, f.seller, string(enums.DisputeStatusOpen), pagination.Params{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.Equal(t, order.Code, page.Items[0].OrderCode)
	require.Equal(t, enums.DisputeTypeDamaged, page.Items[0].Type)

	_, err = f.svc.ListForShop(ctx, f.admin, "", pagination.Params{})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}
