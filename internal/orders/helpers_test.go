package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/weiting-chen/groupbuy-backend/internal/auditlog"
	"github.com/weiting-chen/groupbuy-backend/internal/groupbuys"
	"github.com/weiting-chen/groupbuy-backend/pkg/auth"
	"github.com/weiting-chen/groupbuy-backend/pkg/db/models"
	"github.com/weiting-chen/groupbuy-backend/pkg/enums"
	"github.com/weiting-chen/groupbuy-backend/pkg/types"
)

func setupOrdersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	groupBuys := `
CREATE TABLE IF NOT EXISTS group_buys (
  id TEXT PRIMARY KEY,
  creator_id TEXT NOT NULL,
  creator_username TEXT NOT NULL,
  channel_id TEXT NOT NULL,
  post_id TEXT,
  merchant_name TEXT NOT NULL,
  description TEXT,
  metadata TEXT,
  items TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'active',
  version INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`
	orders := `
CREATE TABLE IF NOT EXISTS group_buy_orders (
  id TEXT PRIMARY KEY,
  group_buy_id TEXT NOT NULL,
  registrar_id TEXT NOT NULL,
  registrar_username TEXT NOT NULL,
  buyer_id TEXT NOT NULL,
  buyer_username TEXT NOT NULL,
  item_name TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  original_quantity INTEGER,
  unit_price TEXT NOT NULL,
  created_at DATETIME
);`
	logs := `
CREATE TABLE IF NOT EXISTS group_buy_logs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  group_buy_id TEXT NOT NULL,
  user_id TEXT NOT NULL,
  username TEXT NOT NULL,
  action TEXT NOT NULL,
  details TEXT,
  created_at DATETIME
);`
	require.NoError(t, db.Exec(groupBuys).Error)
	require.NoError(t, db.Exec(orders).Error)
	require.NoError(t, db.Exec(logs).Error)
	return db
}

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func newTestService(t *testing.T, db *gorm.DB, admins ...string) Service {
	t.Helper()
	svc, err := NewService(
		NewRepository(db),
		groupbuys.NewRepository(db),
		auditlog.NewRepository(db),
		gormTxRunner{db: db},
		auth.NewAllowList(admins),
	)
	require.NoError(t, err)
	return svc
}

func mustSeedGroupBuy(t *testing.T, db *gorm.DB, status enums.GroupBuyStatus) *models.GroupBuy {
	t.Helper()
	now := time.Now().UTC()
	groupBuy := &models.GroupBuy{
		ID:              uuid.New(),
		CreatorID:       "creator-1",
		CreatorUsername: "alice",
		ChannelID:       "chan-1",
		MerchantName:    "海鮮拼單",
		Items: types.ItemList{
			{Name: "蝦", UnitPrice: decimal.NewFromInt(100)},
			{Name: "蚵仔", UnitPrice: decimal.RequireFromString("60.5")},
		},
		Status:    status,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, db.Create(groupBuy).Error)
	return groupBuy
}

func currentVersion(t *testing.T, db *gorm.DB, id uuid.UUID) int {
	t.Helper()
	var groupBuy models.GroupBuy
	require.NoError(t, db.First(&groupBuy, "id = ?", id).Error)
	return groupBuy.Version
}

func orderCount(t *testing.T, db *gorm.DB, groupBuyID uuid.UUID) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&models.GroupBuyOrder{}).Where("group_buy_id = ?", groupBuyID).Count(&count).Error)
	return count
}
