package orders

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/weiting-chen/groupbuy-backend/pkg/db/models"
	"github.com/weiting-chen/groupbuy-backend/pkg/enums"
	pkgerrors "github.com/weiting-chen/groupbuy-backend/pkg/errors"
)

func registerInput(groupBuy *models.GroupBuy, buyerID, buyerUsername, item string, qty int) RegisterOrderInput {
	return RegisterOrderInput{
		GroupBuyID:        groupBuy.ID,
		RegistrarID:       "registrar-1",
		RegistrarUsername: "reg",
		BuyerID:           buyerID,
		BuyerUsername:     buyerUsername,
		ItemName:          item,
		Quantity:          qty,
	}
}

func TestServiceRegister(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	groupBuy := mustSeedGroupBuy(t, db, enums.GroupBuyStatusActive)

	order, err := svc.Register(ctx, registerInput(groupBuy, "buyer-tom", "tom", "蝦", 3))
	require.NoError(t, err)
	assert.Equal(t, "蝦", order.ItemName)
	assert.Equal(t, 3, order.Quantity)
	assert.Nil(t, order.OriginalQuantity)
	assert.True(t, order.UnitPrice.Equal(decimal.NewFromInt(100)), "unit price snapshot from catalog")

	// registration advances the round's modification counter
	assert.Equal(t, 2, currentVersion(t, db, groupBuy.ID))

	var entry models.GroupBuyLog
	require.NoError(t, db.Where("group_buy_id = ?", groupBuy.ID).Order("id DESC").First(&entry).Error)
	assert.Equal(t, enums.LogActionOrderRegistered, entry.Action)
	assert.Equal(t, 2, entry.Details.Version)
	assert.Equal(t, "tom", entry.Details.Buyer)
	assert.Equal(t, 3, entry.Details.Quantity)
}

func TestServiceRegister_eachOrderBumpsVersionOnce(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	groupBuy := mustSeedGroupBuy(t, db, enums.GroupBuyStatusActive)

	for i := 0; i < 3; i++ {
		_, err := svc.Register(ctx, registerInput(groupBuy, "buyer-tom", "tom", "蝦", 2))
		require.NoError(t, err)
	}

	assert.Equal(t, int64(3), orderCount(t, db, groupBuy.ID))
	assert.Equal(t, 4, currentVersion(t, db, groupBuy.ID))
}

func TestServiceRegister_validation(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	groupBuy := mustSeedGroupBuy(t, db, enums.GroupBuyStatusActive)

	_, err := svc.Register(ctx, registerInput(groupBuy, "buyer-tom", "tom", "蝦", 0))
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	_, err = svc.Register(ctx, registerInput(groupBuy, "buyer-tom", "tom", "龍蝦", 1))
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	assert.Equal(t, int64(0), orderCount(t, db, groupBuy.ID))
	assert.Equal(t, 1, currentVersion(t, db, groupBuy.ID))
}

func TestServiceRegister_closedRound(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc := newTestService(t, db)

	groupBuy := mustSeedGroupBuy(t, db, enums.GroupBuyStatusClosed)

	_, err := svc.Register(context.Background(), registerInput(groupBuy, "buyer-tom", "tom", "蝦", 1))
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
	assert.Equal(t, int64(0), orderCount(t, db, groupBuy.ID))
	assert.Equal(t, 1, currentVersion(t, db, groupBuy.ID))
}

func TestServiceListAndListForBuyer(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	groupBuy := mustSeedGroupBuy(t, db, enums.GroupBuyStatusActive)

	_, err := svc.Register(ctx, registerInput(groupBuy, "buyer-tom", "tom", "蝦", 3))
	require.NoError(t, err)
	_, err = svc.Register(ctx, registerInput(groupBuy, "buyer-amy", "amy", "蚵仔", 2))
	require.NoError(t, err)
	_, err = svc.Register(ctx, registerInput(groupBuy, "buyer-tom", "tom", "蚵仔", 1))
	require.NoError(t, err)

	all, err := svc.List(ctx, groupBuy.ID)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "tom", all[0].BuyerUsername)
	assert.Equal(t, "amy", all[1].BuyerUsername)

	mine, err := svc.ListForBuyer(ctx, groupBuy.ID, "buyer-tom")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	for _, order := range mine {
		assert.Equal(t, "buyer-tom", order.BuyerID)
	}
}

func TestServiceCancel(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc := newTestService(t, db, "@root")
	ctx := context.Background()

	groupBuy := mustSeedGroupBuy(t, db, enums.GroupBuyStatusActive)
	order, err := svc.Register(ctx, registerInput(groupBuy, "buyer-tom", "tom", "蝦", 3))
	require.NoError(t, err)

	// a stranger may not cancel
	err = svc.Cancel(ctx, CancelOrderInput{OrderID: order.ID, ActorID: "stranger", ActorUsername: "bob"})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeForbidden))

	// the registrar may
	require.NoError(t, svc.Cancel(ctx, CancelOrderInput{OrderID: order.ID, ActorID: "registrar-1", ActorUsername: "reg"}))
	assert.Equal(t, int64(0), orderCount(t, db, groupBuy.ID))
	assert.Equal(t, 3, currentVersion(t, db, groupBuy.ID))

	var entry models.GroupBuyLog
	require.NoError(t, db.Where("group_buy_id = ?", groupBuy.ID).Order("id DESC").First(&entry).Error)
	assert.Equal(t, enums.LogActionOrderCancelled, entry.Action)
	assert.Equal(t, "tom", entry.Details.Buyer)

	// cancelling again: the order is gone
	err = svc.Cancel(ctx, CancelOrderInput{OrderID: order.ID, ActorID: "registrar-1", ActorUsername: "reg"})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}

func TestServiceCancel_adminOnClosedRound(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc := newTestService(t, db, "@root")
	ctx := context.Background()

	groupBuy := mustSeedGroupBuy(t, db, enums.GroupBuyStatusActive)
	order, err := svc.Register(ctx, registerInput(groupBuy, "buyer-tom", "tom", "蝦", 3))
	require.NoError(t, err)

	require.NoError(t, db.Model(&models.GroupBuy{}).Where("id = ?", groupBuy.ID).
		Update("status", enums.GroupBuyStatusClosed).Error)

	err = svc.Cancel(ctx, CancelOrderInput{OrderID: order.ID, ActorID: "admin-1", ActorUsername: "root"})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
	assert.Equal(t, int64(1), orderCount(t, db, groupBuy.ID))
}

func TestServiceCancelForBuyer(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	groupBuy := mustSeedGroupBuy(t, db, enums.GroupBuyStatusActive)
	_, err := svc.Register(ctx, registerInput(groupBuy, "buyer-tom", "tom", "蝦", 3))
	require.NoError(t, err)
	_, err = svc.Register(ctx, registerInput(groupBuy, "buyer-tom", "tom", "蚵仔", 1))
	require.NoError(t, err)
	_, err = svc.Register(ctx, registerInput(groupBuy, "buyer-amy", "amy", "蝦", 2))
	require.NoError(t, err)

	removed, err := svc.CancelForBuyer(ctx, CancelBuyerOrdersInput{
		GroupBuyID:    groupBuy.ID,
		BuyerID:       "buyer-tom",
		ActorID:       "buyer-tom",
		ActorUsername: "tom",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)
	assert.Equal(t, int64(1), orderCount(t, db, groupBuy.ID))
	assert.Equal(t, 5, currentVersion(t, db, groupBuy.ID))

	// no orders left for tom: silent no-op, no version bump
	removed, err = svc.CancelForBuyer(ctx, CancelBuyerOrdersInput{
		GroupBuyID:    groupBuy.ID,
		BuyerID:       "buyer-tom",
		ActorID:       "buyer-tom",
		ActorUsername: "tom",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), removed)
	assert.Equal(t, 5, currentVersion(t, db, groupBuy.ID))
}

func TestServiceCancelForBuyer_registrarOfRecord(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	groupBuy := mustSeedGroupBuy(t, db, enums.GroupBuyStatusActive)
	_, err := svc.Register(ctx, registerInput(groupBuy, "buyer-tom", "tom", "蝦", 3))
	require.NoError(t, err)

	// someone who registered nothing for tom is rejected
	_, err = svc.CancelForBuyer(ctx, CancelBuyerOrdersInput{
		GroupBuyID:    groupBuy.ID,
		BuyerID:       "buyer-tom",
		ActorID:       "other-registrar",
		ActorUsername: "carol",
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeForbidden))

	// the registrar of record may remove them
	removed, err := svc.CancelForBuyer(ctx, CancelBuyerOrdersInput{
		GroupBuyID:    groupBuy.ID,
		BuyerID:       "buyer-tom",
		ActorID:       "registrar-1",
		ActorUsername: "reg",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func TestServiceCancelForBuyerItem(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	groupBuy := mustSeedGroupBuy(t, db, enums.GroupBuyStatusActive)
	_, err := svc.Register(ctx, registerInput(groupBuy, "buyer-tom", "tom", "蝦", 3))
	require.NoError(t, err)
	_, err = svc.Register(ctx, registerInput(groupBuy, "buyer-tom", "tom", "蚵仔", 1))
	require.NoError(t, err)
	_, err = svc.Register(ctx, registerInput(groupBuy, "buyer-amy", "amy", "蝦", 2))
	require.NoError(t, err)

	// a stranger may not touch tom's rows
	_, err = svc.CancelForBuyerItem(ctx, CancelBuyerItemOrdersInput{
		GroupBuyID:    groupBuy.ID,
		BuyerID:       "buyer-tom",
		ItemName:      "蝦",
		ActorID:       "stranger",
		ActorUsername: "bob",
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeForbidden))

	removed, err := svc.CancelForBuyerItem(ctx, CancelBuyerItemOrdersInput{
		GroupBuyID:    groupBuy.ID,
		BuyerID:       "buyer-tom",
		ItemName:      "蝦",
		ActorID:       "buyer-tom",
		ActorUsername: "tom",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	// tom's other item and amy's order survive
	remaining, err := svc.List(ctx, groupBuy.ID)
	require.NoError(t, err)
	require.Len(t, remaining, 2)
	assert.Equal(t, "蚵仔", remaining[0].ItemName)
	assert.Equal(t, "amy", remaining[1].BuyerUsername)
	assert.Equal(t, 5, currentVersion(t, db, groupBuy.ID))

	var entry models.GroupBuyLog
	require.NoError(t, db.Where("group_buy_id = ?", groupBuy.ID).Order("id DESC").First(&entry).Error)
	assert.Equal(t, enums.LogActionOrderCancelled, entry.Action)
	assert.Equal(t, "tom", entry.Details.Buyer)
	assert.Equal(t, "蝦", entry.Details.Item)
	assert.Equal(t, 1, entry.Details.Affected)

	// nothing left for that item: silent no-op, no version bump
	removed, err = svc.CancelForBuyerItem(ctx, CancelBuyerItemOrdersInput{
		GroupBuyID:    groupBuy.ID,
		BuyerID:       "buyer-tom",
		ItemName:      "蝦",
		ActorID:       "buyer-tom",
		ActorUsername: "tom",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), removed)
	assert.Equal(t, 5, currentVersion(t, db, groupBuy.ID))
}

func TestServiceCancelForBuyerItem_closedRound(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc := newTestService(t, db)

	groupBuy := mustSeedGroupBuy(t, db, enums.GroupBuyStatusClosed)

	_, err := svc.CancelForBuyerItem(context.Background(), CancelBuyerItemOrdersInput{
		GroupBuyID:    groupBuy.ID,
		BuyerID:       "buyer-tom",
		ItemName:      "蝦",
		ActorID:       "buyer-tom",
		ActorUsername: "tom",
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
}

func TestServiceRegister_roundClosedMidTransaction(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	groupBuy := mustSeedGroupBuy(t, db, enums.GroupBuyStatusActive)

	// flip the round to closed right before the version bump runs, as a
	// concurrent closer would
	const callbackName = "orders_test:close_before_bump"
	require.NoError(t, db.Callback().Update().Before("gorm:update").Register(callbackName, func(op *gorm.DB) {
		if _, ok := op.Statement.Model.(*models.GroupBuy); !ok {
			return
		}
		closer := op.Session(&gorm.Session{NewDB: true})
		require.NoError(t, closer.Exec(
			"UPDATE group_buys SET status = ? WHERE id = ?",
			enums.GroupBuyStatusClosed, groupBuy.ID,
		).Error)
	}))
	t.Cleanup(func() {
		require.NoError(t, db.Callback().Update().Remove(callbackName))
	})

	_, err := svc.Register(ctx, registerInput(groupBuy, "buyer-tom", "tom", "蝦", 3))
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict))

	// everything rolled back, including the injected close
	assert.Equal(t, int64(0), orderCount(t, db, groupBuy.ID))
	assert.Equal(t, 1, currentVersion(t, db, groupBuy.ID))

	var status string
	require.NoError(t, db.Model(&models.GroupBuy{}).Where("id = ?", groupBuy.ID).
		Select("status").Scan(&status).Error)
	assert.Equal(t, enums.GroupBuyStatusActive.String(), status)
}
