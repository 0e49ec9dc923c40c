package dbtest

import (
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

// SeedShop inserts an active shop owned by a fresh user id.
func SeedShop(t testing.TB, conn *gorm.DB) models.Shop {
	t.Helper()
	shop := models.Shop{OwnerID: uuid.New(), Name: "shop-" + uuid.NewString()[:8], Status: enums.ShopStatusActive}
	mustCreate(t, conn, &shop)
	return shop
}

// SeedVariant inserts an active product with a single variant.
func SeedVariant(t testing.TB, conn *gorm.DB, shopID uuid.UUID, price, cost int64, stock int) models.Variant {
	t.Helper()
	product := models.Product{
		ShopID:    shopID,
		Name:      "product-" + uuid.NewString()[:8],
		Status:    enums.ProductStatusActive,
		Price:     price,
		CostPrice: cost,
	}
	mustCreate(t, conn, &product)
	variant := models.Variant{
		ProductID: product.ID,
		Name:      "default",
		Status:    enums.VariantStatusActive,
		Stock:     stock,
	}
	mustCreate(t, conn, &variant)
	variant.Product = &product
	return variant
}

// OrderSeed describes a seeded order with a single line.
type OrderSeed struct {
	UserID   uuid.UUID
	Status   enums.OrderStatus
	Method   enums.PaymentMethod
	Payment  enums.PaymentStatus
	Variant  models.Variant
	Qty      int
	Shipping int64
	Discount int64
}

// SeedOrder inserts an order, its item and its payment.
func SeedOrder(t testing.TB, conn *gorm.DB, seed OrderSeed) models.Order {
	t.Helper()
	if seed.UserID == uuid.Nil {
		seed.UserID = uuid.New()
	}
	if seed.Qty == 0 {
		seed.Qty = 1
	}
	if seed.Method == "" {
		seed.Method = enums.PaymentMethodMockGateway
	}
	if seed.Payment == "" {
		seed.Payment = enums.PaymentStatusCaptured
	}
	if seed.Status == "" {
		seed.Status = enums.OrderStatusPlaced
	}
	unit := seed.Variant.UnitPrice()
	subtotal := unit * int64(seed.Qty)
	order := models.Order{
		Code:          "OD" + uuid.NewString()[:12],
		UserID:        seed.UserID,
		ShopID:        seed.Variant.Product.ShopID,
		Status:        seed.Status,
		Subtotal:      subtotal,
		ShippingFee:   seed.Shipping,
		Discount:      seed.Discount,
		Total:         subtotal + seed.Shipping - seed.Discount,
		PaymentMethod: seed.Method,
		Shipping:      models.ShippingSnapshot{FullName: "Buyer", Phone: "0900000000", Line1: "1 Main St"},
	}
	mustCreate(t, conn, &order)
	item := models.OrderItem{
		OrderID:   order.ID,
		ProductID: seed.Variant.ProductID,
		VariantID: seed.Variant.ID,
		Name:      seed.Variant.Product.Name + " - " + seed.Variant.Name,
		UnitPrice: unit,
		CostPrice: seed.Variant.UnitCost(),
		Qty:       seed.Qty,
		LineTotal: subtotal,
	}
	mustCreate(t, conn, &item)
	payment := models.Payment{
		OrderID:  order.ID,
		Method:   seed.Method,
		Status:   seed.Payment,
		Amount:   order.Total,
		Provider: enums.PaymentProviderMock,
	}
	mustCreate(t, conn, &payment)
	order.Items = []models.OrderItem{item}
	return order
}

func mustCreate(t testing.TB, conn *gorm.DB, value any) {
	t.Helper()
	if err := conn.Create(value).Error; err != nil {
		t.Fatalf("seed %T: %v", value, err)
	}
}
