package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
)

const maxLineQty = 999

// ItemView is a cart line priced at current catalog values.
type ItemView struct {
	VariantID uuid.UUID `json:"variant_id"`
	ProductID uuid.UUID `json:"product_id"`
	ShopID    uuid.UUID `json:"shop_id"`
	Name      string    `json:"name"`
	UnitPrice int64     `json:"unit_price"`
	Qty       int       `json:"qty"`
	LineTotal int64     `json:"line_total"`
	Available bool      `json:"available"`
	InStock   int       `json:"in_stock"`
	AddedAt   time.Time `json:"added_at"`
}

// View is the buyer's cart.
type View struct {
	Items    []ItemView `json:"items"`
	Subtotal int64      `json:"subtotal"`
}

// Service manages the buyer's persisted cart.
type Service struct {
	db   *gorm.DB
	repo *Repository
}

func NewService(db *gorm.DB, repo *Repository) (*Service, error) {
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	return &Service{db: db, repo: repo}, nil
}

// Get returns the cart with current prices. Missing carts are empty.
func (s *Service) Get(ctx context.Context, userID uuid.UUID) (View, error) {
	record, err := s.repo.FindByUser(ctx, userID)
	if err != nil {
		return View{}, err
	}
	view := View{Items: []ItemView{}}
	if record == nil || len(record.Items) == 0 {
		return view, nil
	}
	ids := make([]uuid.UUID, 0, len(record.Items))
	for _, item := range record.Items {
		ids = append(ids, item.VariantID)
	}
	var variants []models.Variant
	if err := s.db.WithContext(ctx).Preload("Product").Where("id IN ?", ids).Find(&variants).Error; err != nil {
		return View{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load variants")
	}
	byID := make(map[uuid.UUID]models.Variant, len(variants))
	for _, v := range variants {
		byID[v.ID] = v
	}
	for _, item := range record.Items {
		v, ok := byID[item.VariantID]
		line := ItemView{VariantID: item.VariantID, Qty: item.Qty, AddedAt: item.CreatedAt}
		if ok && v.Product != nil {
			line.ProductID = v.ProductID
			line.ShopID = v.Product.ShopID
			line.Name = v.Product.Name + " - " + v.Name
			line.UnitPrice = v.UnitPrice()
			line.LineTotal = line.UnitPrice * int64(item.Qty)
			line.InStock = v.Stock
			line.Available = v.Status == enums.VariantStatusActive && v.Product.Status == enums.ProductStatusActive
		}
		if line.Available {
			view.Subtotal += line.LineTotal
		}
		view.Items = append(view.Items, line)
	}
	return view, nil
}

// SetItem puts qty units of the variant in the cart. Zero removes the line.
func (s *Service) SetItem(ctx context.Context, userID, variantID uuid.UUID, qty int) (View, error) {
	if qty < 0 || qty > maxLineQty {
		return View{}, pkgerrors.Newf(pkgerrors.CodeValidation, "qty must be between 0 and %d", maxLineQty)
	}
	record, err := s.repo.Ensure(ctx, userID)
	if err != nil {
		return View{}, err
	}
	if qty == 0 {
		if err := s.repo.RemoveItem(ctx, record.ID, variantID); err != nil {
			return View{}, err
		}
		return s.Get(ctx, userID)
	}
	var variant models.Variant
	err = s.db.WithContext(ctx).Preload("Product").Where("id = ?", variantID).First(&variant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return View{}, pkgerrors.New(pkgerrors.CodeNotFound, "variant not found")
	}
	if err != nil {
		return View{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load variant")
	}
	if variant.Status != enums.VariantStatusActive || variant.Product == nil || variant.Product.Status != enums.ProductStatusActive {
		return View{}, pkgerrors.New(pkgerrors.CodeValidation, "variant unavailable")
	}
	if err := s.repo.SetItem(ctx, record.ID, variantID, qty); err != nil {
		return View{}, err
	}
	return s.Get(ctx, userID)
}
