package vouchers

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

// Reason explains why a voucher produced no discount.
type Reason string

const (
	ReasonUnknown        Reason = "unknown"
	ReasonInactive       Reason = "inactive"
	ReasonNotStarted     Reason = "not_started"
	ReasonExpired        Reason = "expired"
	ReasonExhausted      Reason = "exhausted"
	ReasonWrongShop      Reason = "wrong_shop"
	ReasonFirstOrderOnly Reason = "first_order_only"
	ReasonBelowMinimum   Reason = "below_minimum"
)

var reasonMessages = map[Reason]string{
	ReasonUnknown:        "voucher code is not valid",
	ReasonInactive:       "voucher is no longer active",
	ReasonNotStarted:     "voucher is not valid yet",
	ReasonExpired:        "voucher has expired",
	ReasonExhausted:      "voucher usage limit reached",
	ReasonWrongShop:      "voucher does not apply to this shop",
	ReasonFirstOrderOnly: "voucher is limited to a first order",
	ReasonBelowMinimum:   "subtotal is below the voucher minimum",
}

// Message returns the human-readable text for the reason.
func (r Reason) Message() string {
	return reasonMessages[r]
}

// Context is everything the resolver needs besides the voucher itself.
type Context struct {
	Subtotal    int64
	ShopID      uuid.UUID
	PriorOrders int64
	Now         time.Time
}

// Verdict is the resolver outcome. Discount is zero whenever Applied is false.
type Verdict struct {
	Applied  bool   `json:"applied"`
	Discount int64  `json:"discount"`
	Reason   Reason `json:"reason,omitempty"`
	Message  string `json:"message,omitempty"`
}

func rejected(reason Reason) Verdict {
	return Verdict{Reason: reason, Message: reason.Message()}
}

// Resolve validates the voucher against the context and computes the
// discount. It has no side effects; redemption is a separate step.
func Resolve(voucher *models.Voucher, c Context) Verdict {
	if voucher == nil {
		return rejected(ReasonUnknown)
	}
	now := c.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	switch {
	case !voucher.IsActive:
		return rejected(ReasonInactive)
	case voucher.StartAt != nil && voucher.StartAt.After(now):
		return rejected(ReasonNotStarted)
	case voucher.EndAt != nil && voucher.EndAt.Before(now):
		return rejected(ReasonExpired)
	case voucher.UsageLimit != nil && voucher.UsedCount >= *voucher.UsageLimit:
		return rejected(ReasonExhausted)
	case voucher.ShopID != nil && *voucher.ShopID != c.ShopID:
		return rejected(ReasonWrongShop)
	case voucher.FirstOrderOnly && c.PriorOrders > 0:
		return rejected(ReasonFirstOrderOnly)
	case c.Subtotal < voucher.MinSubtotal:
		return rejected(ReasonBelowMinimum)
	}
	return Verdict{Applied: true, Discount: Discount(voucher, c.Subtotal)}
}

// Discount applies the voucher formula and clamps the result to [0, subtotal].
func Discount(voucher *models.Voucher, subtotal int64) int64 {
	if voucher == nil || subtotal <= 0 {
		return 0
	}
	var discount int64
	switch voucher.Type {
	case enums.VoucherTypePercent:
		discount = subtotal * voucher.Value / 100
		if voucher.MaxDiscount != nil && discount > *voucher.MaxDiscount {
			discount = *voucher.MaxDiscount
		}
	case enums.VoucherTypeFixed:
		discount = voucher.Value
	}
	if discount < 0 {
		return 0
	}
	if discount > subtotal {
		return subtotal
	}
	return discount
}
