package checkout

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
)

const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Repository holds the checkout-specific queries.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a checkout repository backed by the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// LoadVariants returns the variants keyed by id with product and shop
// preloaded. Unknown ids are simply absent from the map.
func (r *Repository) LoadVariants(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Variant, error) {
	out := make(map[uuid.UUID]*models.Variant, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Variant
	if err := r.db.WithContext(ctx).
		Preload("Product.Shop").
		Where("id IN ?", ids).
		Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load variants")
	}
	for i := range rows {
		out[rows[i].ID] = &rows[i]
	}
	return out, nil
}

// CreateOrder inserts the order together with its items.
func (r *Repository) CreateOrder(ctx context.Context, order *models.Order) error {
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
	}
	return nil
}

// MarkPendingPayment parks a freshly created order whose capture failed.
func (r *Repository) MarkPendingPayment(ctx context.Context, order *models.Order) error {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", order.ID, enums.OrderStatusPlaced).
		Update("status", enums.OrderStatusPendingPayment)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "mark order pending payment")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.Newf(pkgerrors.CodeStateConflict, "order %s is no longer placed", order.Code)
	}
	order.Status = enums.OrderStatusPendingPayment
	return nil
}

// NewOrderCode returns OD followed by a compact timestamp and a random
// suffix. Uniqueness is enforced by orders_code_key.
func NewOrderCode(now time.Time) (string, error) {
	suffix := make([]byte, 6)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range suffix {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("order code entropy: %w", err)
		}
		suffix[i] = codeAlphabet[n.Int64()]
	}
	return "OD" + now.UTC().Format("060102150405") + string(suffix), nil
}
