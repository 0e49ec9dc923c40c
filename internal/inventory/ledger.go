package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
)

// Line is one variant quantity moving in or out of stock.
type Line struct {
	VariantID uuid.UUID
	ProductID uuid.UUID
	Qty       int
}

// LinesFromItems converts order items into restock lines.
func LinesFromItems(items []models.OrderItem) []Line {
	lines := make([]Line, 0, len(items))
	for _, item := range items {
		lines = append(lines, Line{VariantID: item.VariantID, ProductID: item.ProductID, Qty: item.Qty})
	}
	return lines
}

// Decrement takes stock for every line using guarded relative updates and
// bumps the product sold counter. A line that would drive stock negative
// fails the call with a conflict; the caller's transaction must roll back.
func Decrement(ctx context.Context, tx *gorm.DB, lines []Line) error {
	if tx == nil {
		return fmt.Errorf("transaction required")
	}
	for _, line := range lines {
		if err := validateLine(line); err != nil {
			return err
		}
		res := tx.WithContext(ctx).
			Model(&models.Variant{}).
			Where("id = ? AND stock >= ?", line.VariantID, line.Qty).
			UpdateColumn("stock", gorm.Expr("stock - ?", line.Qty))
		if res.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "decrement stock")
		}
		if res.RowsAffected == 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "insufficient stock").
				WithDetails(map[string]any{"variantId": line.VariantID.String(), "qty": line.Qty})
		}
		if err := tx.WithContext(ctx).
			Model(&models.Product{}).
			Where("id = ?", line.ProductID).
			UpdateColumn("sold_count", gorm.Expr("sold_count + ?", line.Qty)).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "increment sold count")
		}
	}
	return nil
}

// Restock returns stock for every line and rolls back the sold counter,
// flooring it at zero.
func Restock(ctx context.Context, tx *gorm.DB, lines []Line) error {
	if tx == nil {
		return fmt.Errorf("transaction required")
	}
	for _, line := range lines {
		if err := validateLine(line); err != nil {
			return err
		}
		if err := tx.WithContext(ctx).
			Model(&models.Variant{}).
			Where("id = ?", line.VariantID).
			UpdateColumn("stock", gorm.Expr("stock + ?", line.Qty)).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restock variant")
		}
		if err := tx.WithContext(ctx).
			Model(&models.Product{}).
			Where("id = ?", line.ProductID).
			UpdateColumn("sold_count", gorm.Expr("CASE WHEN sold_count >= ? THEN sold_count - ? ELSE 0 END", line.Qty, line.Qty)).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decrement sold count")
		}
	}
	return nil
}

func validateLine(line Line) error {
	if line.VariantID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "variant id required")
	}
	if line.Qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "qty must be greater than zero")
	}
	return nil
}
