package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

// Product groups purchasable variants and carries default pricing.
type Product struct {
	ID        uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	ShopID    uuid.UUID           `gorm:"column:shop_id;type:uuid;not null;index:products_shop_id_idx"`
	Name      string              `gorm:"column:name;not null"`
	Status    enums.ProductStatus `gorm:"column:status;type:product_status;not null;default:'ACTIVE'"`
	Price     int64               `gorm:"column:price;not null"`
	CostPrice int64               `gorm:"column:cost_price;not null;default:0"`
	SoldCount int64               `gorm:"column:sold_count;not null;default:0"`
	Shop      *Shop               `gorm:"foreignKey:ShopID"`
	CreatedAt time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	assignID(&p.ID)
	return nil
}

// Variant is a SKU. Stock is only ever changed through relative deltas.
type Variant struct {
	ID        uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	ProductID uuid.UUID           `gorm:"column:product_id;type:uuid;not null;index:variants_product_id_idx"`
	Name      string              `gorm:"column:name;not null"`
	Status    enums.VariantStatus `gorm:"column:status;type:variant_status;not null;default:'ACTIVE'"`
	Price     *int64              `gorm:"column:price"`
	CostPrice *int64              `gorm:"column:cost_price"`
	Stock     int                 `gorm:"column:stock;not null;default:0"`
	Product   *Product            `gorm:"foreignKey:ProductID"`
	CreatedAt time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (v *Variant) BeforeCreate(*gorm.DB) error {
	assignID(&v.ID)
	return nil
}

// UnitPrice resolves the variant override against the product price.
func (v Variant) UnitPrice() int64 {
	if v.Price != nil {
		return *v.Price
	}
	if v.Product != nil {
		return v.Product.Price
	}
	return 0
}

// UnitCost resolves the variant cost override against the product cost.
func (v Variant) UnitCost() int64 {
	if v.CostPrice != nil {
		return *v.CostPrice
	}
	if v.Product != nil {
		return v.Product.CostPrice
	}
	return 0
}
