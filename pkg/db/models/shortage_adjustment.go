package models

import (
	"time"

	"github.com/google/uuid"
)

// ShortageAdjustment is one append-only correction event. Repeated
// adjustments of the same order produce one row each.
type ShortageAdjustment struct {
	ID               int64     `gorm:"column:id;primaryKey;autoIncrement"`
	GroupBuyID       uuid.UUID `gorm:"column:group_buy_id;type:uuid;not null"`
	OrderID          uuid.UUID `gorm:"column:order_id;type:uuid;not null"`
	AdjusterID       string    `gorm:"column:adjuster_id;not null"`
	AdjusterUsername string    `gorm:"column:adjuster_username;not null"`
	ItemName         string    `gorm:"column:item_name;not null"`
	BuyerID          string    `gorm:"column:buyer_id;not null"`
	BuyerUsername    string    `gorm:"column:buyer_username;not null"`
	OldQuantity      int       `gorm:"column:old_quantity;not null"`
	NewQuantity      int       `gorm:"column:new_quantity;not null"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
}
