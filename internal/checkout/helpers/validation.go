package helpers

import (
	"strings"

	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
)

// ValidateVariant confirms the variant can be sold in the requested qty.
func ValidateVariant(variant *models.Variant, qty int) error {
	if variant == nil || variant.Product == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "variant not found")
	}
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "qty must be greater than zero")
	}
	if variant.Status != enums.VariantStatusActive || variant.Product.Status != enums.ProductStatusActive {
		return pkgerrors.New(pkgerrors.CodeValidation, "variant unavailable").
			WithDetails(map[string]any{"variant_id": variant.ID.String()})
	}
	if variant.Product.Shop != nil && variant.Product.Shop.Status != enums.ShopStatusActive {
		return pkgerrors.New(pkgerrors.CodeValidation, "shop unavailable").
			WithDetails(map[string]any{"variant_id": variant.ID.String()})
	}
	if qty > variant.Stock {
		return pkgerrors.New(pkgerrors.CodeConflict, "insufficient stock").
			WithDetails(map[string]any{"variant_id": variant.ID.String(), "available": variant.Stock})
	}
	return nil
}

// ValidateDestination checks the snapshot carries the fields a carrier needs.
func ValidateDestination(dest models.ShippingSnapshot) error {
	switch {
	case strings.TrimSpace(dest.FullName) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "shipping full name is required")
	case strings.TrimSpace(dest.Phone) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "shipping phone is required")
	case strings.TrimSpace(dest.Line1) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "shipping address line is required")
	}
	return nil
}
