package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/weiting-chen/groupbuy-backend/pkg/enums"
	"github.com/weiting-chen/groupbuy-backend/pkg/types"
)

// GroupBuyLog is one append-only audit entry. Rows are never updated or
// deleted except by cascade when the owning group buy is removed.
type GroupBuyLog struct {
	ID         int64            `gorm:"column:id;primaryKey;autoIncrement"`
	GroupBuyID uuid.UUID        `gorm:"column:group_buy_id;type:uuid;not null;index"`
	UserID     string           `gorm:"column:user_id;not null"`
	Username   string           `gorm:"column:username;not null"`
	Action     enums.LogAction  `gorm:"column:action;not null"`
	Details    types.LogDetails `gorm:"column:details;type:text;serializer:json"`
	CreatedAt  time.Time        `gorm:"column:created_at;autoCreateTime"`
}

// TableName overrides GORM's pluralization to match the schema.
func (GroupBuyLog) TableName() string {
	return "group_buy_logs"
}
