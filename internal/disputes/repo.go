package disputes

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/internal/orders"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/pagination"
)

// View is a dispute listed with its order.
type View struct {
	ID             uuid.UUID           `json:"id"`
	OrderID        uuid.UUID           `json:"order_id"`
	OrderCode      string              `json:"order_code"`
	OrderStatus    enums.OrderStatus   `json:"order_status"`
	OrderTotal     int64               `json:"order_total"`
	ShopID         uuid.UUID           `json:"shop_id"`
	UserID         uuid.UUID           `json:"user_id"`
	Type           enums.DisputeType   `json:"type"`
	Message        string              `json:"message"`
	Status         enums.DisputeStatus `json:"status"`
	PreviousStatus enums.OrderStatus   `json:"previous_status"`
	SellerResponse *string             `json:"seller_response,omitempty"`
	Resolution     *string             `json:"resolution,omitempty"`
	EditCount      int                 `json:"edit_count"`
	ResolvedAt     *time.Time          `json:"resolved_at,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
}

func viewOf(d *models.Dispute, order *models.Order) View {
	return View{
		ID:             d.ID,
		OrderID:        d.OrderID,
		OrderCode:      order.Code,
		OrderStatus:    order.Status,
		OrderTotal:     order.Total,
		ShopID:         order.ShopID,
		UserID:         d.UserID,
		Type:           d.Type,
		Message:        d.Message,
		Status:         d.Status,
		PreviousStatus: d.PreviousStatus,
		SellerResponse: d.SellerResponse,
		Resolution:     d.Resolution,
		EditCount:      d.EditCount,
		ResolvedAt:     d.ResolvedAt,
		CreatedAt:      d.CreatedAt,
	}
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

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	var dispute models.Dispute
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&dispute).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "dispute not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load dispute")
	}
	return &dispute, nil
}

// Advance applies updates when the dispute is still in one of from, then
// reloads it.
func (r *Repository) Advance(ctx context.Context, tx *gorm.DB, dispute *models.Dispute, from []enums.DisputeStatus, updates map[string]any) error {
	allowed := false
	for _, status := range from {
		if dispute.Status == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return pkgerrors.Newf(pkgerrors.CodeConflict, "dispute is %s", dispute.Status).
			WithDetails(map[string]any{"status": dispute.Status})
	}
	res := tx.WithContext(ctx).
		Model(&models.Dispute{}).
		Where("id = ? AND status = ?", dispute.ID, dispute.Status).
		Updates(updates)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "update dispute")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "dispute changed concurrently")
	}
	if err := tx.WithContext(ctx).Where("id = ?", dispute.ID).First(dispute).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload dispute")
	}
	return nil
}

// ClaimRevision spends the dispute's single revision request.
func (r *Repository) ClaimRevision(ctx context.Context, tx *gorm.DB, dispute *models.Dispute) error {
	res := tx.WithContext(ctx).
		Model(&models.Dispute{}).
		Where("id = ? AND edit_count = 0", dispute.ID).
		Update("edit_count", 1)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "request revision")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "a revision was already requested")
	}
	dispute.EditCount = 1
	return nil
}

// List pages disputes, scoped to one shop when shopID is set.
func (r *Repository) List(ctx context.Context, shopID *uuid.UUID, status string, params pagination.Params) (pagination.Page[View], error) {
	return orders.ListSide(ctx, r.db, "disputes", shopID, status, params, func(v View) pagination.Cursor {
		return pagination.Cursor{CreatedAt: v.CreatedAt, ID: v.ID}
	})
}

// ListForShop lists the seller's disputes.
func (s *Service) ListForShop(ctx context.Context, actor orders.Actor, status string, params pagination.Params) (pagination.Page[View], error) {
	if actor.Role != enums.RoleSeller || actor.ShopID == nil {
		return pagination.Page[View]{}, pkgerrors.New(pkgerrors.CodeForbidden, "shop context missing")
	}
	return s.repo.List(ctx, actor.ShopID, status, params)
}

// ListAll lists disputes across shops for staff.
func (s *Service) ListAll(ctx context.Context, actor orders.Actor, status string, params pagination.Params) (pagination.Page[View], error) {
	if !actor.Role.IsStaff() {
		return pagination.Page[View]{}, pkgerrors.New(pkgerrors.CodeForbidden, "dispute listing requires staff")
	}
	return s.repo.List(ctx, nil, status, params)
}
