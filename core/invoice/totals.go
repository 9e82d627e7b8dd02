package invoice

import (
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/welfareschool/backend/core"
)

type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
}

func (t Totals) into(data core.Data) {
	data["subtotal"] = t.Subtotal.String()
	data["tax"] = t.Tax.String()
	data["total"] = t.Total.String()
}

// ComputeTotals derives the invoice totals from the item amounts.
// Tax is TaxRate of the subtotal, rounded to cents.
func ComputeTotals(items []Item) Totals {
	subtotal := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.Amount)
	}
	tax := subtotal.Mul(TaxRate).Round(2)
	return Totals{Subtotal: subtotal, Tax: tax, Total: subtotal.Add(tax)}
}

// Price returns a copy of items with every amount recomputed, and their totals.
func Price(items []Item) ([]Item, Totals) {
	priced := make([]Item, len(items))
	for i, it := range items {
		it.Amount = it.Quantity.Mul(it.Rate)
		priced[i] = it
	}
	return priced, ComputeTotals(priced)
}

// Draft is an invoice being edited. Totals are recomputed after every item change.
type Draft struct {
	Items  []Item `json:"items"`
	Totals Totals `json:"totals"`
	nextID int
}

// NewDraft starts a draft from items, or from a single blank item when none are given.
func NewDraft(items ...Item) *Draft {
	d := &Draft{}
	if len(items) == 0 {
		d.AddItem()
		return d
	}
	d.Items, d.Totals = Price(items)
	d.nextID = len(items)
	return d
}

// AddItem appends a blank item (quantity 1, rate 0) and returns it.
func (d *Draft) AddItem() Item {
	d.nextID++
	it := Item{ID: strconv.Itoa(d.nextID), Quantity: decimal.NewFromInt(1), Rate: decimal.Zero, Amount: decimal.Zero}
	for d.hasItem(it.ID) {
		d.nextID++
		it.ID = strconv.Itoa(d.nextID)
	}
	d.Items = append(d.Items, it)
	d.recompute()
	return it
}

// ItemUpdate holds the item fields to change.
type ItemUpdate struct {
	Description *string
	Quantity    *decimal.Decimal
	Rate        *decimal.Decimal
}

// UpdateItem changes the item with the given id. Returns false if there is none.
func (d *Draft) UpdateItem(id string, upd ItemUpdate) bool {
	for i := range d.Items {
		if d.Items[i].ID != id {
			continue
		}
		if upd.Description != nil {
			d.Items[i].Description = *upd.Description
		}
		if upd.Quantity != nil {
			d.Items[i].Quantity = *upd.Quantity
		}
		if upd.Rate != nil {
			d.Items[i].Rate = *upd.Rate
		}
		d.recompute()
		return true
	}
	return false
}

// RemoveItem drops the item with the given id. Returns false if there is none.
func (d *Draft) RemoveItem(id string) bool {
	for i := range d.Items {
		if d.Items[i].ID == id {
			d.Items = append(d.Items[:i], d.Items[i+1:]...)
			d.recompute()
			return true
		}
	}
	return false
}

func (d *Draft) hasItem(id string) bool {
	for _, it := range d.Items {
		if it.ID == id {
			return true
		}
	}
	return false
}

func (d *Draft) recompute() {
	d.Items, d.Totals = Price(d.Items)
}
