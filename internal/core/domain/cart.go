package domain

import "encoding/json"

type CartLine struct {
	ItemID   string `json:"itemId" bson:"itemId"`
	Quantity int    `json:"quantity" bson:"quantity"`
}

// Cart is an ordered collection of lines keyed by item ID. Lines keep the
// order in which their item was first added. The zero value is an empty cart.
type Cart struct {
	order []string
	qty   map[string]int
}

// NewCart builds a cart from lines, merging repeated item IDs.
func NewCart(lines ...CartLine) Cart {
	var c Cart
	for _, l := range lines {
		if l.Quantity > 0 {
			c.Add(l.ItemID, l.Quantity)
		}
	}
	return c
}

// Add merges quantity into the line for itemID, appending a new line if
// the item is not in the cart yet.
func (c *Cart) Add(itemID string, quantity int) {
	if c.qty == nil {
		c.qty = make(map[string]int)
	}
	if _, ok := c.qty[itemID]; !ok {
		c.order = append(c.order, itemID)
	}
	c.qty[itemID] += quantity
}

// Remove takes one unit of itemID out of the cart and drops the line when
// it reaches zero. It returns false if the item is not in the cart.
func (c *Cart) Remove(itemID string) bool {
	q, ok := c.qty[itemID]
	if !ok {
		return false
	}
	if q > 1 {
		c.qty[itemID] = q - 1
		return true
	}
	delete(c.qty, itemID)
	for i, id := range c.order {
		if id == itemID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return true
}

func (c Cart) Quantity(itemID string) (int, bool) {
	q, ok := c.qty[itemID]
	return q, ok
}

func (c Cart) Len() int { return len(c.order) }

func (c Cart) IsEmpty() bool { return len(c.order) == 0 }

func (c *Cart) Clear() {
	c.order = nil
	c.qty = nil
}

// Lines returns the cart lines in insertion order.
func (c Cart) Lines() []CartLine {
	lines := make([]CartLine, 0, len(c.order))
	for _, id := range c.order {
		lines = append(lines, CartLine{ItemID: id, Quantity: c.qty[id]})
	}
	return lines
}

func (c Cart) Clone() Cart {
	return NewCart(c.Lines()...)
}

func (c Cart) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Lines())
}

func (c *Cart) UnmarshalJSON(data []byte) error {
	var lines []CartLine
	if err := json.Unmarshal(data, &lines); err != nil {
		return err
	}
	*c = NewCart(lines...)
	return nil
}
