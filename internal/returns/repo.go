package returns

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/internal/orders"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/pagination"
)

// View is a return request listed with its order.
type View struct {
	ID            uuid.UUID                 `json:"id"`
	OrderID       uuid.UUID                 `json:"order_id"`
	OrderCode     string                    `json:"order_code"`
	OrderStatus   enums.OrderStatus         `json:"order_status"`
	OrderTotal    int64                     `json:"order_total"`
	ShopID        uuid.UUID                 `json:"shop_id"`
	UserID        uuid.UUID                 `json:"user_id"`
	Reason        string                    `json:"reason"`
	Status        enums.ReturnRequestStatus `json:"status"`
	Resolution    *enums.ReturnResolution   `json:"resolution,omitempty"`
	ShippingPayer *enums.ShippingPayer      `json:"shipping_payer,omitempty"`
	RestockingFee int64                     `json:"restocking_fee"`
	RefundAmount  *int64                    `json:"refund_amount,omitempty"`
	DecisionNote  *string                   `json:"decision_note,omitempty"`
	CreatedAt     time.Time                 `json:"created_at"`
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// List pages return requests, scoped to one shop when shopID is set.
func (r *Repository) List(ctx context.Context, shopID *uuid.UUID, status string, params pagination.Params) (pagination.Page[View], error) {
	return orders.ListSide(ctx, r.db, "return_requests", shopID, status, params, func(v View) pagination.Cursor {
		return pagination.Cursor{CreatedAt: v.CreatedAt, ID: v.ID}
	})
}

// ListForShop lists the returns visible to the actor: sellers see their
// shop, staff see every shop.
func (s *Service) ListForShop(ctx context.Context, actor orders.Actor, status string, params pagination.Params) (pagination.Page[View], error) {
	if actor.Role == enums.RoleSeller {
		if actor.ShopID == nil {
			return pagination.Page[View]{}, pkgerrors.New(pkgerrors.CodeForbidden, "shop context missing")
		}
		return s.repo.List(ctx, actor.ShopID, status, params)
	}
	if !actor.Role.IsStaff() {
		return pagination.Page[View]{}, pkgerrors.New(pkgerrors.CodeForbidden, "returns listing requires a seller or admin")
	}
	return s.repo.List(ctx, nil, status, params)
}
