package adjustments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/weiting-chen/groupbuy-backend/internal/auditlog"
	"github.com/weiting-chen/groupbuy-backend/internal/groupbuys"
	"github.com/weiting-chen/groupbuy-backend/internal/orders"
	"github.com/weiting-chen/groupbuy-backend/pkg/auth"
	"github.com/weiting-chen/groupbuy-backend/pkg/db/models"
	"github.com/weiting-chen/groupbuy-backend/pkg/enums"
	pkgerrors "github.com/weiting-chen/groupbuy-backend/pkg/errors"
	"github.com/weiting-chen/groupbuy-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes the shortage adjustment workflow. Adjustments are allowed
// in any lifecycle state; shortages are typically discovered after closure.
type Service interface {
	Adjust(ctx context.Context, input AdjustQuantityInput) (*models.GroupBuyOrder, *models.ShortageAdjustment, error)
	AdjustItem(ctx context.Context, input AdjustItemInput) ([]models.ShortageAdjustment, error)
}

// AdjustQuantityInput corrects a single order.
type AdjustQuantityInput struct {
	OrderID          uuid.UUID `validate:"required"`
	AdjusterID       string    `validate:"required"`
	AdjusterUsername string    `validate:"required"`
	NewQuantity      int       `validate:"gt=0"`
}

// AdjustItemInput corrects one item across buyers: buyer username -> the
// quantity that buyer actually gets.
type AdjustItemInput struct {
	GroupBuyID       uuid.UUID      `validate:"required"`
	AdjusterID       string         `validate:"required"`
	AdjusterUsername string         `validate:"required"`
	ItemName         string         `validate:"required"`
	Quantities       map[string]int `validate:"required,min=1"`
}

type service struct {
	repo      *Repository
	orders    *orders.Repository
	groupBuys *groupbuys.Repository
	logs      *auditlog.Repository
	tx        txRunner
	authz     auth.Authorizer
	validate  *validator.Validate
	now       func() time.Time
}

// NewService builds the adjustment service with the required dependencies.
func NewService(repo *Repository, orderRepo *orders.Repository, groupBuyRepo *groupbuys.Repository, logs *auditlog.Repository, tx txRunner, authz auth.Authorizer) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("adjustment repository required")
	}
	if orderRepo == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if groupBuyRepo == nil {
		return nil, fmt.Errorf("group buy repository required")
	}
	if logs == nil {
		return nil, fmt.Errorf("audit log repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if authz == nil {
		return nil, fmt.Errorf("authorizer required")
	}
	return &service{
		repo:      repo,
		orders:    orderRepo,
		groupBuys: groupBuyRepo,
		logs:      logs,
		tx:        tx,
		authz:     authz,
		validate:  validator.New(),
		now:       time.Now,
	}, nil
}

// Adjust shrinks (or corrects) one order's quantity. The first adjustment of
// an order freezes its original quantity; later ones never touch it.
func (s *service) Adjust(ctx context.Context, input AdjustQuantityInput) (*models.GroupBuyOrder, *models.ShortageAdjustment, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid adjustment payload")
	}
	if !s.authz.IsAdmin(input.AdjusterID, input.AdjusterUsername) {
		return nil, nil, pkgerrors.New(pkgerrors.CodeForbidden, "only admins may adjust quantities")
	}

	var (
		order      *models.GroupBuyOrder
		adjustment *models.ShortageAdjustment
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		orderRepo := s.orders.WithTx(tx)
		loaded, err := orderRepo.FindByID(ctx, input.OrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if loaded.Quantity == input.NewQuantity {
			return pkgerrors.New(pkgerrors.CodeValidation, "quantity is unchanged")
		}

		groupBuy, err := s.groupBuys.WithTx(tx).FindByID(ctx, loaded.GroupBuyID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "group buy not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load group buy")
		}

		oldQuantity := loaded.Quantity
		adjustment, err = s.applyOne(ctx, tx, loaded, input.NewQuantity, input.AdjusterID, input.AdjusterUsername)
		if err != nil {
			return err
		}

		if _, err := s.groupBuys.WithTx(tx).BumpVersion(ctx, loaded.GroupBuyID, false); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: bump group buy version")
		}

		entry := &models.GroupBuyLog{
			GroupBuyID: loaded.GroupBuyID,
			UserID:     input.AdjusterID,
			Username:   input.AdjusterUsername,
			Action:     enums.LogActionShortageAdjusted,
			Details: types.LogDetails{
				Action:      enums.LogActionShortageAdjusted.String(),
				Version:     groupBuy.Version + 1,
				Buyer:       loaded.BuyerUsername,
				Item:        loaded.ItemName,
				OldQuantity: oldQuantity,
				NewQuantity: input.NewQuantity,
			},
			CreatedAt: s.now().UTC(),
		}
		if err := s.logs.WithTx(tx).Append(ctx, entry); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: append audit entry")
		}
		order = loaded
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return order, adjustment, nil
}

// AdjustItem corrects one item across buyers in a single transaction. Buyers
// whose quantity already matches are skipped; a buyer with no order for the
// item is a validation error. Each buyer's correction lands on their earliest
// order for the item so that the buyer's total equals the requested quantity.
func (s *service) AdjustItem(ctx context.Context, input AdjustItemInput) ([]models.ShortageAdjustment, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid adjustment payload")
	}
	if !s.authz.IsAdmin(input.AdjusterID, input.AdjusterUsername) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only admins may adjust quantities")
	}
	for buyer, quantity := range input.Quantities {
		if quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity for %q must be positive", buyer))
		}
	}

	var applied []models.ShortageAdjustment
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		groupBuy, err := s.groupBuys.WithTx(tx).FindByID(ctx, input.GroupBuyID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "group buy not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load group buy")
		}

		itemOrders, err := s.orders.WithTx(tx).ListByItem(ctx, input.GroupBuyID, input.ItemName)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list item orders")
		}
		byBuyer := make(map[string][]models.GroupBuyOrder)
		for _, order := range itemOrders {
			byBuyer[order.BuyerUsername] = append(byBuyer[order.BuyerUsername], order)
		}

		for buyer, newTotal := range input.Quantities {
			buyerOrders, ok := byBuyer[buyer]
			if !ok {
				return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s has no order for %q", buyer, input.ItemName))
			}
			currentTotal := 0
			for _, order := range buyerOrders {
				currentTotal += order.Quantity
			}
			if currentTotal == newTotal {
				continue
			}

			// land the delta on the earliest order; its quantity must stay
			// positive after absorbing the correction
			first := buyerOrders[0]
			newFirst := first.Quantity + (newTotal - currentTotal)
			if newFirst <= 0 {
				return pkgerrors.New(pkgerrors.CodeValidation,
					fmt.Sprintf("cannot shrink %s's %q orders to %d", buyer, input.ItemName, newTotal))
			}
			adjustment, err := s.applyOne(ctx, tx, &first, newFirst, input.AdjusterID, input.AdjusterUsername)
			if err != nil {
				return err
			}
			applied = append(applied, *adjustment)
		}

		if len(applied) == 0 {
			return nil
		}

		if _, err := s.groupBuys.WithTx(tx).BumpVersion(ctx, input.GroupBuyID, false); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: bump group buy version")
		}

		entry := &models.GroupBuyLog{
			GroupBuyID: input.GroupBuyID,
			UserID:     input.AdjusterID,
			Username:   input.AdjusterUsername,
			Action:     enums.LogActionShortageAdjusted,
			Details: types.LogDetails{
				Action:   enums.LogActionShortageAdjusted.String(),
				Version:  groupBuy.Version + 1,
				Item:     input.ItemName,
				Affected: len(applied),
			},
			CreatedAt: s.now().UTC(),
		}
		if err := s.logs.WithTx(tx).Append(ctx, entry); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: append audit entry")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return applied, nil
}

// applyOne rewrites one order and records the adjustment row. The caller owns
// the version bump and audit entry.
func (s *service) applyOne(ctx context.Context, tx *gorm.DB, order *models.GroupBuyOrder, newQuantity int, adjusterID, adjusterUsername string) (*models.ShortageAdjustment, error) {
	oldQuantity := order.Quantity

	rows, err := s.orders.WithTx(tx).ApplyAdjustment(ctx, order.ID, newQuantity, oldQuantity)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: adjust order quantity")
	}
	if rows == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}

	adjustment := &models.ShortageAdjustment{
		GroupBuyID:       order.GroupBuyID,
		OrderID:          order.ID,
		AdjusterID:       adjusterID,
		AdjusterUsername: adjusterUsername,
		ItemName:         order.ItemName,
		BuyerID:          order.BuyerID,
		BuyerUsername:    order.BuyerUsername,
		OldQuantity:      oldQuantity,
		NewQuantity:      newQuantity,
		CreatedAt:        s.now().UTC(),
	}
	if err := s.repo.WithTx(tx).Create(ctx, adjustment); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: insert adjustment")
	}

	order.Quantity = newQuantity
	if order.OriginalQuantity == nil {
		original := oldQuantity
		order.OriginalQuantity = &original
	}
	return adjustment, nil
}
