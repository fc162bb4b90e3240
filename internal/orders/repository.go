package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/weiting-chen/groupbuy-backend/pkg/db/models"
)

// Repository persists buyer order rows for the order ledger.
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

// Create inserts a new order row.
func (r *Repository) Create(ctx context.Context, order *models.GroupBuyOrder) error {
	return r.db.WithContext(ctx).Create(order).Error
}

// FindByID loads one order.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.GroupBuyOrder, error) {
	var order models.GroupBuyOrder
	if err := r.db.WithContext(ctx).First(&order, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// ListByGroupBuy returns all orders of a round in registration order.
func (r *Repository) ListByGroupBuy(ctx context.Context, groupBuyID uuid.UUID) ([]models.GroupBuyOrder, error) {
	var rows []models.GroupBuyOrder
	err := r.db.WithContext(ctx).
		Where("group_buy_id = ?", groupBuyID).
		Order("created_at ASC, id ASC").
		Find(&rows).
		Error
	return rows, err
}

// ListByBuyer returns one buyer's orders within a round in registration order.
func (r *Repository) ListByBuyer(ctx context.Context, groupBuyID uuid.UUID, buyerID string) ([]models.GroupBuyOrder, error) {
	var rows []models.GroupBuyOrder
	err := r.db.WithContext(ctx).
		Where("group_buy_id = ? AND buyer_id = ?", groupBuyID, buyerID).
		Order("created_at ASC, id ASC").
		Find(&rows).
		Error
	return rows, err
}

// ListByItem returns a round's orders for one catalog item in registration
// order.
func (r *Repository) ListByItem(ctx context.Context, groupBuyID uuid.UUID, itemName string) ([]models.GroupBuyOrder, error) {
	var rows []models.GroupBuyOrder
	err := r.db.WithContext(ctx).
		Where("group_buy_id = ? AND item_name = ?", groupBuyID, itemName).
		Order("created_at ASC, id ASC").
		Find(&rows).
		Error
	return rows, err
}

// Delete removes one order row.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.GroupBuyOrder{})
	return res.RowsAffected, res.Error
}

// DeleteByBuyer removes all of one buyer's orders within a round.
func (r *Repository) DeleteByBuyer(ctx context.Context, groupBuyID uuid.UUID, buyerID string) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("group_buy_id = ? AND buyer_id = ?", groupBuyID, buyerID).
		Delete(&models.GroupBuyOrder{})
	return res.RowsAffected, res.Error
}

// DeleteByBuyerItem removes one buyer's orders for a single catalog item
// within a round.
func (r *Repository) DeleteByBuyerItem(ctx context.Context, groupBuyID uuid.UUID, buyerID, itemName string) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("group_buy_id = ? AND buyer_id = ? AND item_name = ?", groupBuyID, buyerID, itemName).
		Delete(&models.GroupBuyOrder{})
	return res.RowsAffected, res.Error
}

// ApplyAdjustment rewrites the current quantity and stamps original_quantity
// only if it has never been set (first adjustment wins).
func (r *Repository) ApplyAdjustment(ctx context.Context, id uuid.UUID, newQuantity, oldQuantity int) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.GroupBuyOrder{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"quantity":          newQuantity,
			"original_quantity": gorm.Expr("COALESCE(original_quantity, ?)", oldQuantity),
		})
	return res.RowsAffected, res.Error
}
