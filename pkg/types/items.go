package types

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Item is one purchasable entry in a group buy's catalog.
type Item struct {
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// ItemList is the typed schema behind the group_buys.items column. It is
// serialized to JSON by GORM; order is preserved so summaries can render the
// catalog the way the organizer entered it.
type ItemList []Item

// Validate rejects catalogs the ledger cannot price orders against.
func (l ItemList) Validate() error {
	if len(l) == 0 {
		return fmt.Errorf("items: at least one item is required")
	}
	seen := make(map[string]struct{}, len(l))
	for i, item := range l {
		name := strings.TrimSpace(item.Name)
		if name == "" {
			return fmt.Errorf("items[%d]: name is required", i)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("items: duplicate item %q", name)
		}
		seen[name] = struct{}{}
		if item.UnitPrice.IsNegative() {
			return fmt.Errorf("items[%d]: unit price must not be negative", i)
		}
	}
	return nil
}

// Find returns the catalog entry for name, if present.
func (l ItemList) Find(name string) (Item, bool) {
	for _, item := range l {
		if item.Name == name {
			return item, true
		}
	}
	return Item{}, false
}
