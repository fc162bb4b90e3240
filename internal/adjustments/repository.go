package adjustments

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/weiting-chen/groupbuy-backend/pkg/db/models"
)

// Repository persists shortage adjustment rows. Like the audit log, the
// table is append-only; corrections of corrections produce new rows.
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

// Create inserts one adjustment row.
func (r *Repository) Create(ctx context.Context, adjustment *models.ShortageAdjustment) error {
	return r.db.WithContext(ctx).Create(adjustment).Error
}

// ListByGroupBuy returns a round's adjustments in write order.
func (r *Repository) ListByGroupBuy(ctx context.Context, groupBuyID uuid.UUID) ([]models.ShortageAdjustment, error) {
	var rows []models.ShortageAdjustment
	err := r.db.WithContext(ctx).
		Where("group_buy_id = ?", groupBuyID).
		Order("id ASC").
		Find(&rows).
		Error
	return rows, err
}

// ListByOrder returns the adjustment history of one order in write order.
func (r *Repository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.ShortageAdjustment, error) {
	var rows []models.ShortageAdjustment
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("id ASC").
		Find(&rows).
		Error
	return rows, err
}
