package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// GroupBuyOrder is one buyer's registration for one item. Quantity is the
// current value; OriginalQuantity is written once, on the first shortage
// adjustment, and preserves the initially recorded amount. UnitPrice is a
// snapshot of the catalog price at registration time.
type GroupBuyOrder struct {
	ID                uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	GroupBuyID        uuid.UUID       `gorm:"column:group_buy_id;type:uuid;not null;index"`
	RegistrarID       string          `gorm:"column:registrar_id;not null"`
	RegistrarUsername string          `gorm:"column:registrar_username;not null"`
	BuyerID           string          `gorm:"column:buyer_id;not null;index"`
	BuyerUsername     string          `gorm:"column:buyer_username;not null"`
	ItemName          string          `gorm:"column:item_name;not null"`
	Quantity          int             `gorm:"column:quantity;not null"`
	OriginalQuantity  *int            `gorm:"column:original_quantity"`
	UnitPrice         decimal.Decimal `gorm:"column:unit_price;type:numeric;not null"`
	CreatedAt         time.Time       `gorm:"column:created_at;autoCreateTime"`
}

// TableName overrides GORM's pluralization to match the schema.
func (GroupBuyOrder) TableName() string {
	return "group_buy_orders"
}
