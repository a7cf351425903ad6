// Package menu holds the read-only catalog and business details for Sadie's Pizzeria DTLA.
package menu

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Item is one catalog entry.
type Item struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description,omitempty"`
}

// Catalog is a case-insensitive name index over a fixed item list.
type Catalog struct {
	items  []Item
	byName map[string]Item
}

// NewCatalog indexes items by lower-cased, trimmed name.
func NewCatalog(items []Item) *Catalog {
	c := &Catalog{items: items, byName: make(map[string]Item, len(items))}
	for _, it := range items {
		c.byName[normalize(it.Name)] = it
	}
	return c
}

// Default returns the restaurant's catalog.
func Default() *Catalog { return NewCatalog(defaultItems) }

// Lookup finds an item by name, ignoring case and surrounding whitespace.
func (c *Catalog) Lookup(name string) (Item, bool) {
	it, ok := c.byName[normalize(name)]
	return it, ok
}

// Items returns a copy of the catalog in display order.
func (c *Catalog) Items() []Item {
	out := make([]Item, len(c.items))
	copy(out, c.items)
	return out
}

func normalize(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func price(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var defaultItems = []Item{
	{ID: "PZSPC001", Name: "Classic Pepperoni", Category: "Gourmet Pizzas", Price: price("19.00"), Description: "Traditional pepperoni pizza with mozzarella cheese on our signature sauce."},
	{ID: "PZSPC002", Name: "Spicy Soppressata", Category: "Gourmet Pizzas", Price: price("22.00"), Description: "Spicy Italian soppressata with fresh mozzarella and arugula."},
	{ID: "PZSPC003", Name: "Mushroom & Truffle", Category: "Gourmet Pizzas", Price: price("24.00"), Description: "Wild mushrooms with truffle oil and fresh herbs."},
	{ID: "PZSPC004", Name: "Margherita Pizza", Category: "Gourmet Pizzas", Price: price("18.00"), Description: "Fresh mozzarella, basil, and tomato sauce."},
	{ID: "PZSPC005", Name: "BBQ Chicken Pizza", Category: "Gourmet Pizzas", Price: price("21.00"), Description: "Tangy BBQ sauce, grilled chicken, red onions, and cilantro."},
	{ID: "PZSPC006", Name: "Veggie Supreme", Category: "Gourmet Pizzas", Price: price("20.00"), Description: "Bell peppers, onions, olives, mushrooms, and fresh vegetables."},

	{ID: "SLD001", Name: "Mediterranean Salad", Category: "Salads", Price: price("18.00"), Description: "Mixed greens, olives, feta cheese, tomatoes, and Mediterranean dressing."},
	{ID: "SLD002", Name: "Caesar Salad", Category: "Salads", Price: price("15.00"), Description: "Crisp romaine lettuce, Parmesan cheese, croutons, and creamy Caesar dressing."},
	{ID: "SLD003", Name: "House Salad", Category: "Salads", Price: price("12.00"), Description: "Mixed greens, tomatoes, cucumbers, carrots, with your choice of dressing."},

	{ID: "APP001", Name: "Famous Crispy Chicken Wings", Category: "Starters", Price: price("10.00"), Description: "Crispy chicken wings with your choice of sauce."},
	{ID: "APP002", Name: "Garlic Knots", Category: "Starters", Price: price("8.00"), Description: "Oven-baked dough knots tossed in garlic butter and Parmesan."},
	{ID: "APP003", Name: "Mozzarella Sticks", Category: "Starters", Price: price("9.00"), Description: "Golden-fried mozzarella sticks served with marinara sauce."},

	{ID: "DRK001", Name: "Lemonade", Category: "Beverages", Price: price("4.00"), Description: "Fresh squeezed lemonade."},
	{ID: "DRK002", Name: "Soda", Category: "Beverages", Price: price("3.00"), Description: "Choose from Coke, Diet Coke, or Sprite."},
	{ID: "DRK003", Name: "Bottled Water", Category: "Beverages", Price: price("2.00"), Description: "Pure bottled water."},
	{ID: "DRK004", Name: "Mexican Coke", Category: "Beverages", Price: price("4.00"), Description: "Coke made with real cane sugar, imported from Mexico."},

	{ID: "DES001", Name: "New York Cheesecake", Category: "Desserts", Price: price("7.00"), Description: "Classic New York style cheesecake with a graham cracker crust."},
}
