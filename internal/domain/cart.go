package domain

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Discount describes a price reduction on a catalog item.
type Discount struct {
	Active              bool            `json:"active"`
	Percent             decimal.Decimal `json:"percent"`
	DiscountedUnitPrice decimal.Decimal `json:"discounted_unit_price"`
}

// CartItem represents a single food item in the cart.
type CartItem struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	Image     string          `json:"image,omitempty"`
	Discount  *Discount       `json:"discount,omitempty"`
}

// EffectiveUnitPrice is the price actually charged for one unit. An active
// discount with a positive discounted price wins; an active discount with only
// a percent derives the price from it; otherwise the list price applies.
func (i CartItem) EffectiveUnitPrice() decimal.Decimal {
	d := i.Discount
	if d == nil || !d.Active {
		return i.UnitPrice
	}
	if d.DiscountedUnitPrice.IsPositive() {
		return d.DiscountedUnitPrice
	}
	if d.Percent.IsPositive() && d.Percent.LessThanOrEqual(hundred) {
		return i.UnitPrice.Mul(hundred.Sub(d.Percent)).Div(hundred)
	}
	return i.UnitPrice
}

// LineTotal is the effective unit price times quantity.
func (i CartItem) LineTotal() decimal.Decimal {
	return i.EffectiveUnitPrice().Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// AddItemInput carries the catalog data for an add-to-cart action.
type AddItemInput struct {
	ID        string
	Name      string
	UnitPrice decimal.Decimal
	Image     string
	Discount  *Discount
}

// CartSnapshot is an immutable copy of the ledger state.
type CartSnapshot struct {
	Items     []CartItem      `json:"items"`
	Total     decimal.Decimal `json:"total"`
	ItemCount int             `json:"item_count"`
	Version   uint64          `json:"version"`
}

// Ledger holds the items a shopper intends to buy and their derived totals.
// Totals are recomputed from the full item set after every mutation.
// A Ledger is not safe for concurrent use; the owning session serialises access.
type Ledger struct {
	items     []CartItem
	total     decimal.Decimal
	itemCount int
	version   uint64
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{total: decimal.Zero}
}

// AddItem increments the quantity of an existing item or appends a new one
// with quantity 1.
func (l *Ledger) AddItem(in AddItemInput) {
	if idx := l.find(in.ID); idx >= 0 {
		l.items[idx].Quantity++
	} else {
		item := CartItem{
			ID:        in.ID,
			Name:      in.Name,
			UnitPrice: in.UnitPrice,
			Quantity:  1,
			Image:     in.Image,
		}
		if in.Discount != nil {
			d := *in.Discount
			item.Discount = &d
		}
		l.items = append(l.items, item)
	}
	l.changed()
}

// RemoveItem deletes the item with id. It reports whether anything changed;
// removing an unknown id is a no-op.
func (l *Ledger) RemoveItem(id string) bool {
	idx := l.find(id)
	if idx < 0 {
		return false
	}
	l.items = append(l.items[:idx], l.items[idx+1:]...)
	l.changed()
	return true
}

// SetQuantity sets an item's quantity directly. A quantity of zero or less
// removes the item. Unknown ids are ignored. No upper bound is enforced.
func (l *Ledger) SetQuantity(id string, quantity int) bool {
	if quantity <= 0 {
		return l.RemoveItem(id)
	}
	idx := l.find(id)
	if idx < 0 || l.items[idx].Quantity == quantity {
		return false
	}
	l.items[idx].Quantity = quantity
	l.changed()
	return true
}

// Clear empties the ledger.
func (l *Ledger) Clear() {
	if len(l.items) == 0 {
		return
	}
	l.items = nil
	l.changed()
}

// Items returns a copy of the items in insertion order.
func (l *Ledger) Items() []CartItem {
	out := make([]CartItem, len(l.items))
	for i, item := range l.items {
		out[i] = item
		if item.Discount != nil {
			d := *item.Discount
			out[i].Discount = &d
		}
	}
	return out
}

// Total is the sum of effective price times quantity, at full precision.
func (l *Ledger) Total() decimal.Decimal { return l.total }

// ItemCount is the sum of all quantities.
func (l *Ledger) ItemCount() int { return l.itemCount }

// Len is the number of distinct items.
func (l *Ledger) Len() int { return len(l.items) }

// IsEmpty reports whether the ledger has no items.
func (l *Ledger) IsEmpty() bool { return len(l.items) == 0 }

// Version increases on every mutation that changes the item set.
func (l *Ledger) Version() uint64 { return l.version }

// Snapshot returns a copy of the current state.
func (l *Ledger) Snapshot() CartSnapshot {
	return CartSnapshot{
		Items:     l.Items(),
		Total:     l.total,
		ItemCount: l.itemCount,
		Version:   l.version,
	}
}

func (l *Ledger) find(id string) int {
	for i := range l.items {
		if l.items[i].ID == id {
			return i
		}
	}
	return -1
}

func (l *Ledger) changed() {
	l.version++
	l.recompute()
}

func (l *Ledger) recompute() {
	total := decimal.Zero
	count := 0
	for _, item := range l.items {
		total = total.Add(item.LineTotal())
		count += item.Quantity
	}
	l.total = total
	l.itemCount = count
}
