package groupbuys

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/weiting-chen/groupbuy-backend/pkg/db/models"
	"github.com/weiting-chen/groupbuy-backend/pkg/enums"
	"github.com/weiting-chen/groupbuy-backend/pkg/types"
)

// Repository persists group buy aggregates. All version-guarded writes are
// conditional UPDATEs; the caller decides what a zero row count means.
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

// Create inserts a new group buy row.
func (r *Repository) Create(ctx context.Context, groupBuy *models.GroupBuy) error {
	return r.db.WithContext(ctx).Create(groupBuy).Error
}

// FindByID loads the group buy without associations.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.GroupBuy, error) {
	var groupBuy models.GroupBuy
	if err := r.db.WithContext(ctx).First(&groupBuy, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &groupBuy, nil
}

// UpdateItems replaces the catalog iff the stored version still matches.
func (r *Repository) UpdateItems(ctx context.Context, id uuid.UUID, expectedVersion int, items types.ItemList) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.GroupBuy{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(models.GroupBuy{Items: items, Version: expectedVersion + 1})
	return res.RowsAffected, res.Error
}

// SetPostID records the announcement post while the round is still active,
// advancing the version in the same statement.
func (r *Repository) SetPostID(ctx context.Context, id uuid.UUID, postID string) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.GroupBuy{}).
		Where("id = ? AND status = ?", id, enums.GroupBuyStatusActive).
		Updates(map[string]any{"post_id": postID, "version": gorm.Expr("version + 1")})
	return res.RowsAffected, res.Error
}

// Close transitions active -> closed iff the stored version still matches.
func (r *Repository) Close(ctx context.Context, id uuid.UUID, expectedVersion int) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.GroupBuy{}).
		Where("id = ? AND version = ? AND status = ?", id, expectedVersion, enums.GroupBuyStatusActive).
		Updates(models.GroupBuy{Status: enums.GroupBuyStatusClosed, Version: expectedVersion + 1})
	return res.RowsAffected, res.Error
}

// BumpVersion advances the modification counter without touching any other
// field. With requireActive set, a concurrent close makes this a zero-row
// write, which callers surface as a conflict.
func (r *Repository) BumpVersion(ctx context.Context, id uuid.UUID, requireActive bool) (int64, error) {
	query := r.db.WithContext(ctx).
		Model(&models.GroupBuy{}).
		Where("id = ?", id)
	if requireActive {
		query = query.Where("status = ?", enums.GroupBuyStatusActive)
	}
	res := query.Update("version", gorm.Expr("version + 1"))
	return res.RowsAffected, res.Error
}

// DeleteCascade removes the group buy and everything owned by it. The
// explicit multi-table delete keeps the cascade atomic even on storage
// without native FK cascade enforcement.
func (r *Repository) DeleteCascade(ctx context.Context, id uuid.UUID) (int64, error) {
	tx := r.db.WithContext(ctx)
	if err := tx.Where("group_buy_id = ?", id).Delete(&models.ShortageAdjustment{}).Error; err != nil {
		return 0, err
	}
	if err := tx.Where("group_buy_id = ?", id).Delete(&models.GroupBuyLog{}).Error; err != nil {
		return 0, err
	}
	if err := tx.Where("group_buy_id = ?", id).Delete(&models.GroupBuyOrder{}).Error; err != nil {
		return 0, err
	}
	res := tx.Where("id = ?", id).Delete(&models.GroupBuy{})
	return res.RowsAffected, res.Error
}
