package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/weiting-chen/groupbuy-backend/pkg/enums"
	"github.com/weiting-chen/groupbuy-backend/pkg/types"
)

// GroupBuy is one purchasing round and the aggregate root for orders, audit
// logs and shortage adjustments. Version is the optimistic lock: it advances
// by exactly one on every accepted mutation of the aggregate.
type GroupBuy struct {
	ID              uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	CreatorID       string               `gorm:"column:creator_id;not null"`
	CreatorUsername string               `gorm:"column:creator_username;not null"`
	ChannelID       string               `gorm:"column:channel_id;not null"`
	PostID          *string              `gorm:"column:post_id"`
	MerchantName    string               `gorm:"column:merchant_name;not null"`
	Description     *string              `gorm:"column:description"`
	Metadata        types.JSONMap        `gorm:"column:metadata;type:text"`
	Items           types.ItemList       `gorm:"column:items;type:text;serializer:json;not null"`
	Status          enums.GroupBuyStatus `gorm:"column:status;not null;default:'active'"`
	Version         int                  `gorm:"column:version;not null;default:1"`
	Orders          []GroupBuyOrder      `gorm:"foreignKey:GroupBuyID;constraint:OnDelete:CASCADE"`
	Logs            []GroupBuyLog        `gorm:"foreignKey:GroupBuyID;constraint:OnDelete:CASCADE"`
	Adjustments     []ShortageAdjustment `gorm:"foreignKey:GroupBuyID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
