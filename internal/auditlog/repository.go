package auditlog

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/weiting-chen/groupbuy-backend/pkg/db/models"
)

// Repository is the append-only persistence surface for audit entries. There
// is deliberately no update or delete method; log rows only disappear when
// the owning group buy is removed.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// Append inserts one audit entry.
func (r *Repository) Append(ctx context.Context, entry *models.GroupBuyLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// ListByGroupBuy returns the full trail for a group buy in write order.
func (r *Repository) ListByGroupBuy(ctx context.Context, groupBuyID uuid.UUID) ([]models.GroupBuyLog, error) {
	var rows []models.GroupBuyLog
	err := r.db.WithContext(ctx).
		Where("group_buy_id = ?", groupBuyID).
		Order("id ASC").
		Find(&rows).
		Error
	return rows, err
}
