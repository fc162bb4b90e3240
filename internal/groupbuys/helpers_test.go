package groupbuys

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
	"github.com/weiting-chen/groupbuy-backend/pkg/auth"
	"github.com/weiting-chen/groupbuy-backend/pkg/db/models"
	"github.com/weiting-chen/groupbuy-backend/pkg/enums"
	"github.com/weiting-chen/groupbuy-backend/pkg/types"
)

func setupGroupBuysTestDB(t *testing.T) *gorm.DB {
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
	adjustments := `
CREATE TABLE IF NOT EXISTS shortage_adjustments (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  group_buy_id TEXT NOT NULL,
  order_id TEXT NOT NULL,
  adjuster_id TEXT NOT NULL,
  adjuster_username TEXT NOT NULL,
  item_name TEXT NOT NULL,
  buyer_id TEXT NOT NULL,
  buyer_username TEXT NOT NULL,
  old_quantity INTEGER NOT NULL,
  new_quantity INTEGER NOT NULL,
  created_at DATETIME
);`
	require.NoError(t, db.Exec(groupBuys).Error)
	require.NoError(t, db.Exec(orders).Error)
	require.NoError(t, db.Exec(logs).Error)
	require.NoError(t, db.Exec(adjustments).Error)
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
	svc, err := NewService(NewRepository(db), auditlog.NewRepository(db), gormTxRunner{db: db}, auth.NewAllowList(admins))
	require.NoError(t, err)
	return svc
}

func seafoodItems() types.ItemList {
	return types.ItemList{
		{Name: "蝦", UnitPrice: decimal.NewFromInt(100)},
		{Name: "蚵仔", UnitPrice: decimal.NewFromInt(60)},
	}
}

func mustCreateGroupBuy(t *testing.T, svc Service, creatorID, creatorUsername string) *models.GroupBuy {
	t.Helper()
	groupBuy, err := svc.Create(context.Background(), CreateGroupBuyInput{
		CreatorID:       creatorID,
		CreatorUsername: creatorUsername,
		ChannelID:       "chan-1",
		MerchantName:    "海鮮拼單",
		Items:           seafoodItems(),
	})
	require.NoError(t, err)
	return groupBuy
}

func mustInsertOrder(t *testing.T, db *gorm.DB, groupBuyID uuid.UUID, buyerID, buyerUsername, item string, qty int) *models.GroupBuyOrder {
	t.Helper()
	order := &models.GroupBuyOrder{
		ID:                uuid.New(),
		GroupBuyID:        groupBuyID,
		RegistrarID:       "registrar-1",
		RegistrarUsername: "registrar",
		BuyerID:           buyerID,
		BuyerUsername:     buyerUsername,
		ItemName:          item,
		Quantity:          qty,
		UnitPrice:         decimal.NewFromInt(100),
		CreatedAt:         time.Now().UTC(),
	}
	require.NoError(t, db.Create(order).Error)
	return order
}

func countRows(t *testing.T, db *gorm.DB, model any, groupBuyID uuid.UUID, column string) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(model).Where(column+" = ?", groupBuyID).Count(&count).Error)
	return count
}

func lastLogAction(t *testing.T, db *gorm.DB, groupBuyID uuid.UUID) enums.LogAction {
	t.Helper()
	var entry models.GroupBuyLog
	require.NoError(t, db.Where("group_buy_id = ?", groupBuyID).Order("id DESC").First(&entry).Error)
	return entry.Action
}
