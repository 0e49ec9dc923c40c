package vouchers

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

func int64Ptr(v int64) *int64 { return &v }

func intPtr(v int) *int { return &v }

func TestResolvePercentCappedAtMaxDiscount(t *testing.T) {
	voucher := &models.Voucher{
		Code:        "WELCOME10",
		Type:        enums.VoucherTypePercent,
		Value:       10,
		MaxDiscount: int64Ptr(50000),
		IsActive:    true,
	}
	verdict := Resolve(voucher, Context{Subtotal: 600000})
	if !verdict.Applied || verdict.Discount != 50000 {
		t.Fatalf("expected capped discount 50000, got %+v", verdict)
	}
}

func TestResolvePercentFloors(t *testing.T) {
	voucher := &models.Voucher{Type: enums.VoucherTypePercent, Value: 15, IsActive: true}
	verdict := Resolve(voucher, Context{Subtotal: 999})
	if verdict.Discount != 149 {
		t.Fatalf("expected floor(149.85)=149, got %d", verdict.Discount)
	}
}

func TestResolveFixedClampedToSubtotal(t *testing.T) {
	voucher := &models.Voucher{Type: enums.VoucherTypeFixed, Value: 80000, IsActive: true}
	verdict := Resolve(voucher, Context{Subtotal: 50000})
	if !verdict.Applied || verdict.Discount != 50000 {
		t.Fatalf("expected discount clamped to subtotal, got %+v", verdict)
	}
}

func TestResolveRejections(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)
	shopA := uuid.New()
	shopB := uuid.New()

	base := func() *models.Voucher {
		return &models.Voucher{Type: enums.VoucherTypeFixed, Value: 1000, IsActive: true}
	}

	tests := []struct {
		name    string
		voucher func() *models.Voucher
		ctx     Context
		want    Reason
	}{
		{"unknown", func() *models.Voucher { return nil }, Context{Subtotal: 10000}, ReasonUnknown},
		{"inactive", func() *models.Voucher { v := base(); v.IsActive = false; return v }, Context{Subtotal: 10000}, ReasonInactive},
		{"not started", func() *models.Voucher { v := base(); v.StartAt = &future; return v }, Context{Subtotal: 10000}, ReasonNotStarted},
		{"expired", func() *models.Voucher { v := base(); v.EndAt = &past; return v }, Context{Subtotal: 10000}, ReasonExpired},
		{"exhausted", func() *models.Voucher { v := base(); v.UsageLimit = intPtr(3); v.UsedCount = 3; return v }, Context{Subtotal: 10000}, ReasonExhausted},
		{"wrong shop", func() *models.Voucher { v := base(); v.ShopID = &shopA; return v }, Context{Subtotal: 10000, ShopID: shopB}, ReasonWrongShop},
		{"first order", func() *models.Voucher { v := base(); v.FirstOrderOnly = true; return v }, Context{Subtotal: 10000, PriorOrders: 2}, ReasonFirstOrderOnly},
		{"below minimum", func() *models.Voucher { v := base(); v.MinSubtotal = 20000; return v }, Context{Subtotal: 10000}, ReasonBelowMinimum},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.ctx
			c.Now = now
			verdict := Resolve(tt.voucher(), c)
			if verdict.Applied {
				t.Fatalf("expected rejection, got %+v", verdict)
			}
			if verdict.Reason != tt.want {
				t.Fatalf("expected reason %s, got %s", tt.want, verdict.Reason)
			}
			if verdict.Discount != 0 || verdict.Message == "" {
				t.Fatalf("rejected verdict must carry zero discount and a message: %+v", verdict)
			}
		})
	}
}

func TestResolveShortCircuitsOnFirstFailure(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	voucher := &models.Voucher{Type: enums.VoucherTypeFixed, Value: 1000, IsActive: false, EndAt: &past, MinSubtotal: 1 << 40}
	if got := Resolve(voucher, Context{Subtotal: 1}).Reason; got != ReasonInactive {
		t.Fatalf("expected inactive to win, got %s", got)
	}
}

func TestResolveMatchingShopScope(t *testing.T) {
	shop := uuid.New()
	voucher := &models.Voucher{Type: enums.VoucherTypeFixed, Value: 1000, IsActive: true, ShopID: &shop}
	if verdict := Resolve(voucher, Context{Subtotal: 5000, ShopID: shop}); !verdict.Applied {
		t.Fatalf("expected shop voucher to apply, got %+v", verdict)
	}
}
