// Package cart holds a shopper's selection between page views. It only
// tracks product ids and quantities; prices are always resolved at checkout.
package cart

import (
	"encoding/json"
	"errors"
	"sort"
)

// SessionKey is where the HTTP session keeps the cart.
const SessionKey = "cart"

// MaxQuantity caps a single line.
const MaxQuantity = 99

var (
	ErrInvalidQuantity = errors.New("cart: quantity must be between 1 and 99")
	ErrMissingProduct  = errors.New("cart: product id is required")
	ErrNotInCart       = errors.New("cart: product is not in the cart")
)

// Item is one cart line.
type Item struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Cart is keyed by product id. The zero value is an empty cart.
type Cart struct {
	lines map[string]int
}

// New returns an empty cart.
func New() *Cart { return &Cart{lines: map[string]int{}} }

func (c *Cart) ensure() {
	if c.lines == nil {
		c.lines = map[string]int{}
	}
}

// Add increases the quantity of productID by qty, capped at MaxQuantity.
func (c *Cart) Add(productID string, qty int) error {
	if productID == "" {
		return ErrMissingProduct
	}
	if qty <= 0 || qty > MaxQuantity {
		return ErrInvalidQuantity
	}
	c.ensure()
	c.lines[productID] = min(c.lines[productID]+qty, MaxQuantity)
	return nil
}

// SetQuantity replaces the quantity of a line already in the cart. A
// quantity of zero removes the line.
func (c *Cart) SetQuantity(productID string, qty int) error {
	if qty < 0 || qty > MaxQuantity {
		return ErrInvalidQuantity
	}
	if _, ok := c.lines[productID]; !ok {
		return ErrNotInCart
	}
	if qty == 0 {
		delete(c.lines, productID)
		return nil
	}
	c.lines[productID] = qty
	return nil
}

// Remove drops a line. Removing a missing line is a no-op.
func (c *Cart) Remove(productID string) {
	delete(c.lines, productID)
}

// Clear empties the cart.
func (c *Cart) Clear() { c.lines = map[string]int{} }

// Quantity returns the quantity of productID, or 0.
func (c *Cart) Quantity(productID string) int { return c.lines[productID] }

// Items returns the lines ordered by product id.
func (c *Cart) Items() []Item {
	out := make([]Item, 0, len(c.lines))
	for id, q := range c.lines {
		out = append(out, Item{ProductID: id, Quantity: q})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

// Count is the total number of units.
func (c *Cart) Count() int {
	n := 0
	for _, q := range c.lines {
		n += q
	}
	return n
}

// Empty reports whether the cart has no lines.
func (c *Cart) Empty() bool { return len(c.lines) == 0 }

type wire struct {
	Items []Item `json:"items"`
}

func (c *Cart) MarshalJSON() ([]byte, error) {
	return json.Marshal(wire{Items: c.Items()})
}

// UnmarshalJSON drops lines with an empty id or an out-of-range quantity
// and merges duplicates.
func (c *Cart) UnmarshalJSON(data []byte) error {
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	c.lines = map[string]int{}
	for _, it := range w.Items {
		_ = c.Add(it.ProductID, it.Quantity)
	}
	return nil
}
