package enums

// ShopStatus gates whether a seller may operate their shop.
type ShopStatus string

const (
	ShopStatusPending   ShopStatus = "PENDING"
	ShopStatusActive    ShopStatus = "ACTIVE"
	ShopStatusRejected  ShopStatus = "REJECTED"
	ShopStatusSuspended ShopStatus = "SUSPENDED"
)

// ProductStatus controls catalog visibility.
type ProductStatus string

const (
	ProductStatusDraft  ProductStatus = "DRAFT"
	ProductStatusActive ProductStatus = "ACTIVE"
	ProductStatusHidden ProductStatus = "HIDDEN"
)

// VariantStatus controls whether a SKU can be purchased.
type VariantStatus string

const (
	VariantStatusActive VariantStatus = "ACTIVE"
	VariantStatusHidden VariantStatus = "HIDDEN"
)

// VoucherType selects the discount formula.
type VoucherType string

const (
	VoucherTypePercent VoucherType = "PERCENT"
	VoucherTypeFixed   VoucherType = "FIXED"
)

// PayoutStatus tracks a seller withdrawal.
type PayoutStatus string

const (
	PayoutStatusPending  PayoutStatus = "PENDING"
	PayoutStatusPaid     PayoutStatus = "PAID"
	PayoutStatusRejected PayoutStatus = "REJECTED"
)

func (s PayoutStatus) IsValid() bool {
	switch s {
	case PayoutStatusPending, PayoutStatusPaid, PayoutStatusRejected:
		return true
	}
	return false
}
