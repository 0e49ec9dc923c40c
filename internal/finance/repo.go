package finance

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/pagination"
)

// Window bounds the created_at range of aggregated orders. Zero bounds are open.
type Window struct {
	From time.Time
	To   time.Time
}

func (w Window) apply(query *gorm.DB, column string) *gorm.DB {
	if !w.From.IsZero() {
		query = query.Where(column+" >= ?", w.From)
	}
	if !w.To.IsZero() {
		query = query.Where(column+" <= ?", w.To)
	}
	return query
}

type orderTotals struct {
	Count       int64
	Gross       int64
	Merchandise int64
	Shipping    int64
	Discounts   int64
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// CountOrders counts every order of the shop in the window regardless of status.
func (r *Repository) CountOrders(ctx context.Context, shopID uuid.UUID, w Window) (int64, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&models.Order{}).Where("shop_id = ?", shopID)
	if err := w.apply(query, "created_at").Count(&count).Error; err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count orders")
	}
	return count, nil
}

// CountableTotals sums the money columns of countable orders.
func (r *Repository) CountableTotals(ctx context.Context, shopID uuid.UUID, w Window) (orderTotals, error) {
	var out orderTotals
	query := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Select("COUNT(*) AS count, COALESCE(SUM(total), 0) AS gross, COALESCE(SUM(subtotal), 0) AS merchandise, " +
			"COALESCE(SUM(shipping_fee), 0) AS shipping, COALESCE(SUM(discount), 0) AS discounts").
		Where("shop_id = ? AND status IN ?", shopID, enums.CountableOrderStatuses)
	if err := w.apply(query, "created_at").Scan(&out).Error; err != nil {
		return orderTotals{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum orders")
	}
	return out, nil
}

// CostOfGoods sums cost_price * qty over the items of countable orders.
func (r *Repository) CostOfGoods(ctx context.Context, shopID uuid.UUID, w Window) (int64, error) {
	var total int64
	query := r.db.WithContext(ctx).
		Table("order_items AS i").
		Select("COALESCE(SUM(i.cost_price * i.qty), 0)").
		Joins("JOIN orders o ON o.id = i.order_id").
		Where("o.shop_id = ? AND o.status IN ?", shopID, enums.CountableOrderStatuses)
	if err := w.apply(query, "o.created_at").Scan(&total).Error; err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum cost of goods")
	}
	return total, nil
}

// SuccessfulRefunds sums SUCCESS refunds of the shop's orders, optionally
// restricted to countable orders.
func (r *Repository) SuccessfulRefunds(ctx context.Context, shopID uuid.UUID, w Window, countableOnly bool) (int64, error) {
	var total int64
	query := r.db.WithContext(ctx).
		Table("refunds AS f").
		Select("COALESCE(SUM(f.amount), 0)").
		Joins("JOIN orders o ON o.id = f.order_id").
		Where("o.shop_id = ? AND f.status = ?", shopID, enums.RefundStatusSuccess)
	if countableOnly {
		query = query.Where("o.status IN ?", enums.CountableOrderStatuses)
	}
	if err := w.apply(query, "o.created_at").Scan(&total).Error; err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum refunds")
	}
	return total, nil
}

// PayoutTotal sums the shop's payouts in the given statuses.
func (r *Repository) PayoutTotal(ctx context.Context, shopID uuid.UUID, statuses ...enums.PayoutStatus) (int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).
		Model(&models.Payout{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("shop_id = ? AND status IN ?", shopID, statuses).
		Scan(&total).Error; err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum payouts")
	}
	return total, nil
}

// PayoutAccount returns the shop's account or nil.
func (r *Repository) PayoutAccount(ctx context.Context, shopID uuid.UUID, lock bool) (*models.PayoutAccount, error) {
	query := r.db.WithContext(ctx)
	if lock {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var account models.PayoutAccount
	err := query.Where("shop_id = ?", shopID).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout account")
	}
	return &account, nil
}

// UpsertPayoutAccount writes the bank details keyed by shop.
func (r *Repository) UpsertPayoutAccount(ctx context.Context, account *models.PayoutAccount) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "shop_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"bank_name", "account_name", "account_number", "updated_at"}),
		}).
		Create(account).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save payout account")
	}
	return nil
}

// LiveKey returns the unexpired idempotency row for the shop and key, or nil.
func (r *Repository) LiveKey(ctx context.Context, shopID uuid.UUID, key string, now time.Time) (*models.PayoutIdempotencyKey, error) {
	var row models.PayoutIdempotencyKey
	err := r.db.WithContext(ctx).
		Where("shop_id = ? AND idempotency_key = ? AND expires_at > ?", shopID, key, now).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load idempotency key")
	}
	return &row, nil
}

// DropExpiredKey removes an expired row still holding the unique slot.
func (r *Repository) DropExpiredKey(ctx context.Context, shopID uuid.UUID, key string, now time.Time) error {
	if err := r.db.WithContext(ctx).
		Where("shop_id = ? AND idempotency_key = ? AND expires_at <= ?", shopID, key, now).
		Delete(&models.PayoutIdempotencyKey{}).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "drop expired idempotency key")
	}
	return nil
}

func (r *Repository) CreatePayout(ctx context.Context, payout *models.Payout, key *models.PayoutIdempotencyKey) error {
	if err := r.db.WithContext(ctx).Create(payout).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payout")
	}
	key.PayoutID = payout.ID
	if err := r.db.WithContext(ctx).Create(key).Error; err != nil {
		return err
	}
	return nil
}

func (r *Repository) FindPayout(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	var payout models.Payout
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&payout).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payout not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout")
	}
	return &payout, nil
}

// DecidePayout moves a PENDING payout to its final status.
func (r *Repository) DecidePayout(ctx context.Context, id uuid.UUID, status enums.PayoutStatus, by uuid.UUID, note *string, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&models.Payout{}).
		Where("id = ? AND status = ?", id, enums.PayoutStatusPending).
		Updates(map[string]any{
			"status":       status,
			"note":         note,
			"processed_by": by,
			"processed_at": at,
		})
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "update payout")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "payout is no longer pending")
	}
	return nil
}

// ListPayouts pages payouts newest first. A nil shop lists every shop.
func (r *Repository) ListPayouts(ctx context.Context, shopID *uuid.UUID, status *enums.PayoutStatus, params pagination.Params) (pagination.Page[models.Payout], error) {
	query := r.db.WithContext(ctx).Model(&models.Payout{})
	if shopID != nil {
		query = query.Where("shop_id = ?", *shopID)
	}
	if status != nil {
		query = query.Where("status = ?", *status)
	}
	keyset, err := pagination.Keyset(params, "")
	if err != nil {
		return pagination.Page[models.Payout]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	var rows []models.Payout
	if err := query.Scopes(keyset).Find(&rows).Error; err != nil {
		return pagination.Page[models.Payout]{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payouts")
	}
	return pagination.Trim(rows, params.Limit, func(p models.Payout) pagination.Cursor {
		return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
	}), nil
}
