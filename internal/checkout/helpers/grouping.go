package helpers

import (
	"bytes"
	"sort"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
)

// Line is a priced checkout line resolved against its variant.
type Line struct {
	Variant *models.Variant
	Qty     int
}

// ShopID returns the shop owning the line's product.
func (l Line) ShopID() uuid.UUID {
	if l.Variant == nil || l.Variant.Product == nil {
		return uuid.Nil
	}
	return l.Variant.Product.ShopID
}

// LineTotal is unit price times qty.
func (l Line) LineTotal() int64 {
	if l.Variant == nil {
		return 0
	}
	return l.Variant.UnitPrice() * int64(l.Qty)
}

// ShopGroup is the slice of a checkout that becomes one order.
type ShopGroup struct {
	ShopID   uuid.UUID
	Lines    []Line
	Subtotal int64
}

// ItemCount sums the group's quantities.
func (g ShopGroup) ItemCount() int {
	count := 0
	for _, line := range g.Lines {
		count += line.Qty
	}
	return count
}

// MergeQuantities folds duplicate variant lines together, keeping first-seen
// order.
func MergeQuantities(variantIDs []uuid.UUID, qtys []int) ([]uuid.UUID, map[uuid.UUID]int) {
	order := make([]uuid.UUID, 0, len(variantIDs))
	merged := make(map[uuid.UUID]int, len(variantIDs))
	for i, id := range variantIDs {
		if _, seen := merged[id]; !seen {
			order = append(order, id)
		}
		merged[id] += qtys[i]
	}
	return order, merged
}

// GroupLinesByShop partitions the lines by owning shop. Groups are sorted by
// shop id so that multi-shop checkouts lock rows in a stable order.
func GroupLinesByShop(lines []Line) []ShopGroup {
	index := map[uuid.UUID]int{}
	var groups []ShopGroup
	for _, line := range lines {
		shopID := line.ShopID()
		i, ok := index[shopID]
		if !ok {
			i = len(groups)
			index[shopID] = i
			groups = append(groups, ShopGroup{ShopID: shopID})
		}
		groups[i].Lines = append(groups[i].Lines, line)
		groups[i].Subtotal += line.LineTotal()
	}
	sort.Slice(groups, func(a, b int) bool {
		return bytes.Compare(groups[a].ShopID[:], groups[b].ShopID[:]) < 0
	})
	return groups
}
