package orders

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/pagination"
)

// Filter narrows order listings. Nil fields are ignored.
type Filter struct {
	UserID   *uuid.UUID
	ShopID   *uuid.UUID
	Status   *enums.OrderStatus
	Statuses []enums.OrderStatus
}

type Repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// FindByCode loads the order with its items.
func (r *Repository) FindByCode(ctx context.Context, code string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Where("code = ?", strings.TrimSpace(code)).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return &order, nil
}

// FindByID loads the order with its items by primary key.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return &order, nil
}

// FindDetailByCode loads the order with every side record.
func (r *Repository) FindDetailByCode(ctx context.Context, code string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Preload("Payment").
		Preload("Shipment").
		Preload("Shipment.Events", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Preload("CancelRequest").
		Preload("ReturnRequest").
		Preload("Refund").
		Preload("Dispute").
		Where("code = ?", strings.TrimSpace(code)).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return &order, nil
}

// ShopForOwner returns the caller's shop. Sellers without an ACTIVE shop are
// forbidden from acting on orders.
func (r *Repository) ShopForOwner(ctx context.Context, ownerID uuid.UUID) (*models.Shop, error) {
	var shop models.Shop
	err := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).First(&shop).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "seller has no shop")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load shop")
	}
	if shop.Status != enums.ShopStatusActive {
		return nil, pkgerrors.Newf(pkgerrors.CodeForbidden, "shop is %s", strings.ToLower(string(shop.Status)))
	}
	return &shop, nil
}

// PriorOrderCount counts the buyer's orders, used for first-order vouchers.
// Pass the checkout transaction so the count is read alongside the inserts.
func (r *Repository) PriorOrderCount(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.WithTx(tx).db.WithContext(ctx).Model(&models.Order{}).Where("user_id = ?", userID).Count(&count).Error
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count orders")
	}
	return count, nil
}

// List returns orders newest first.
func (r *Repository) List(ctx context.Context, filter Filter, params pagination.Params) (pagination.Page[models.Order], error) {
	query := r.db.WithContext(ctx).Model(&models.Order{}).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") })
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.ShopID != nil {
		query = query.Where("shop_id = ?", *filter.ShopID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", filter.Statuses)
	}

	keyset, err := pagination.Keyset(params, "")
	if err != nil {
		return pagination.Page[models.Order]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	var rows []models.Order
	if err := query.Scopes(keyset).Find(&rows).Error; err != nil {
		return pagination.Page[models.Order]{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return pagination.Trim(rows, params.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	}), nil
}

// CancelRequestFor returns the order's cancel request or nil.
func (r *Repository) CancelRequestFor(ctx context.Context, orderID uuid.UUID) (*models.CancelRequest, error) {
	var row models.CancelRequest
	return findSide(ctx, r.db, orderID, &row, "load cancel request")
}

// ReturnRequestFor returns the order's return request or nil.
func (r *Repository) ReturnRequestFor(ctx context.Context, orderID uuid.UUID) (*models.ReturnRequest, error) {
	var row models.ReturnRequest
	return findSide(ctx, r.db, orderID, &row, "load return request")
}

// RefundFor returns the order's refund record or nil.
func (r *Repository) RefundFor(ctx context.Context, orderID uuid.UUID) (*models.Refund, error) {
	var row models.Refund
	return findSide(ctx, r.db, orderID, &row, "load refund")
}

// DisputeFor returns the order's dispute or nil.
func (r *Repository) DisputeFor(ctx context.Context, orderID uuid.UUID) (*models.Dispute, error) {
	var row models.Dispute
	return findSide(ctx, r.db, orderID, &row, "load dispute")
}

func findSide[T any](ctx context.Context, conn *gorm.DB, orderID uuid.UUID, row *T, what string) (*T, error) {
	err := conn.WithContext(ctx).Where("order_id = ?", orderID).First(row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, what)
	}
	return row, nil
}

// ShopOwner returns the user id owning the shop.
func (r *Repository) ShopOwner(ctx context.Context, shopID uuid.UUID) (uuid.UUID, error) {
	var shop models.Shop
	err := r.db.WithContext(ctx).Select("id", "owner_id").Where("id = ?", shopID).First(&shop).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return uuid.Nil, pkgerrors.New(pkgerrors.CodeNotFound, "shop not found")
		}
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load shop")
	}
	return shop.OwnerID, nil
}

// ListSide pages a workflow table joined with its orders, newest first. The
// joined row exposes order_code, order_status, order_total and shop_id next
// to the workflow columns.
func ListSide[T any](ctx context.Context, conn *gorm.DB, table string, shopID *uuid.UUID, status string, params pagination.Params, cursorOf func(T) pagination.Cursor) (pagination.Page[T], error) {
	query := conn.WithContext(ctx).
		Table(table+" AS w").
		Select("w.*, o.code AS order_code, o.status AS order_status, o.total AS order_total, o.shop_id AS shop_id").
		Joins("JOIN orders o ON o.id = w.order_id")
	if shopID != nil {
		query = query.Where("o.shop_id = ?", *shopID)
	}
	if status != "" {
		query = query.Where("w.status = ?", status)
	}
	keyset, err := pagination.Keyset(params, "w")
	if err != nil {
		return pagination.Page[T]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	var rows []T
	if err := query.Scopes(keyset).Scan(&rows).Error; err != nil {
		return pagination.Page[T]{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list "+table)
	}
	return pagination.Trim(rows, params.Limit, cursorOf), nil
}
