package orders

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
	"github.com/weiting-chen/groupbuy-backend/pkg/auth"
	"github.com/weiting-chen/groupbuy-backend/pkg/db/models"
	"github.com/weiting-chen/groupbuy-backend/pkg/enums"
	pkgerrors "github.com/weiting-chen/groupbuy-backend/pkg/errors"
	"github.com/weiting-chen/groupbuy-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes the order ledger operations.
type Service interface {
	Register(ctx context.Context, input RegisterOrderInput) (*models.GroupBuyOrder, error)
	List(ctx context.Context, groupBuyID uuid.UUID) ([]models.GroupBuyOrder, error)
	ListForBuyer(ctx context.Context, groupBuyID uuid.UUID, buyerID string) ([]models.GroupBuyOrder, error)
	Cancel(ctx context.Context, input CancelOrderInput) error
	CancelForBuyer(ctx context.Context, input CancelBuyerOrdersInput) (int64, error)
	CancelForBuyerItem(ctx context.Context, input CancelBuyerItemOrdersInput) (int64, error)
}

// RegisterOrderInput records one buyer's line item. The registrar may act on
// behalf of a different buyer.
type RegisterOrderInput struct {
	GroupBuyID        uuid.UUID `validate:"required"`
	RegistrarID       string    `validate:"required"`
	RegistrarUsername string    `validate:"required"`
	BuyerID           string    `validate:"required"`
	BuyerUsername     string    `validate:"required"`
	ItemName          string    `validate:"required"`
	Quantity          int       `validate:"gt=0"`
}

// CancelOrderInput removes a single order.
type CancelOrderInput struct {
	OrderID       uuid.UUID `validate:"required"`
	ActorID       string    `validate:"required"`
	ActorUsername string    `validate:"required"`
}

// CancelBuyerOrdersInput removes every order one buyer holds in a round.
type CancelBuyerOrdersInput struct {
	GroupBuyID    uuid.UUID `validate:"required"`
	BuyerID       string    `validate:"required"`
	ActorID       string    `validate:"required"`
	ActorUsername string    `validate:"required"`
}

// CancelBuyerItemOrdersInput removes one buyer's orders for a single item.
type CancelBuyerItemOrdersInput struct {
	GroupBuyID    uuid.UUID `validate:"required"`
	BuyerID       string    `validate:"required"`
	ItemName      string    `validate:"required"`
	ActorID       string    `validate:"required"`
	ActorUsername string    `validate:"required"`
}

type service struct {
	repo      *Repository
	groupBuys *groupbuys.Repository
	logs      *auditlog.Repository
	tx        txRunner
	authz     auth.Authorizer
	validate  *validator.Validate
	now       func() time.Time
}

// NewService builds the order ledger service with the required dependencies.
func NewService(repo *Repository, groupBuyRepo *groupbuys.Repository, logs *auditlog.Repository, tx txRunner, authz auth.Authorizer) (Service, error) {
	if repo == nil {
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
		groupBuys: groupBuyRepo,
		logs:      logs,
		tx:        tx,
		authz:     authz,
		validate:  validator.New(),
		now:       time.Now,
	}, nil
}

// Register inserts an order against an active round. The group buy version is
// bumped in the same transaction so concurrent closers and editors observe a
// changed version and must re-read.
func (s *service) Register(ctx context.Context, input RegisterOrderInput) (*models.GroupBuyOrder, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid register payload")
	}

	var order *models.GroupBuyOrder
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		groupBuy, err := loadGroupBuy(ctx, s.groupBuys.WithTx(tx), input.GroupBuyID)
		if err != nil {
			return err
		}
		if groupBuy.Status != enums.GroupBuyStatusActive {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "group buy is closed")
		}
		item, ok := groupBuy.Items.Find(input.ItemName)
		if !ok {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("item %q is not in the catalog", input.ItemName))
		}

		order = &models.GroupBuyOrder{
			ID:                uuid.New(),
			GroupBuyID:        input.GroupBuyID,
			RegistrarID:       input.RegistrarID,
			RegistrarUsername: input.RegistrarUsername,
			BuyerID:           input.BuyerID,
			BuyerUsername:     input.BuyerUsername,
			ItemName:          input.ItemName,
			Quantity:          input.Quantity,
			UnitPrice:         item.UnitPrice,
			CreatedAt:         s.now().UTC(),
		}
		if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: insert order")
		}

		rows, err := s.groupBuys.WithTx(tx).BumpVersion(ctx, input.GroupBuyID, true)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: bump group buy version")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "group buy was closed concurrently")
		}

		entry := &models.GroupBuyLog{
			GroupBuyID: input.GroupBuyID,
			UserID:     input.RegistrarID,
			Username:   input.RegistrarUsername,
			Action:     enums.LogActionOrderRegistered,
			Details: types.LogDetails{
				Action:   enums.LogActionOrderRegistered.String(),
				Version:  groupBuy.Version + 1,
				Buyer:    input.BuyerUsername,
				Item:     input.ItemName,
				Quantity: input.Quantity,
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
	return order, nil
}

// List returns the round's orders in registration order.
func (s *service) List(ctx context.Context, groupBuyID uuid.UUID) ([]models.GroupBuyOrder, error) {
	rows, err := s.repo.ListByGroupBuy(ctx, groupBuyID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return rows, nil
}

// ListForBuyer returns one buyer's orders within the round.
func (s *service) ListForBuyer(ctx context.Context, groupBuyID uuid.UUID, buyerID string) ([]models.GroupBuyOrder, error) {
	if buyerID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id required")
	}
	rows, err := s.repo.ListByBuyer(ctx, groupBuyID, buyerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list buyer orders")
	}
	return rows, nil
}

// Cancel removes an order while the round is active. Post-closure
// corrections go through the shortage adjustment workflow instead.
func (s *service) Cancel(ctx context.Context, input CancelOrderInput) error {
	if err := s.validate.Struct(input); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cancel payload")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByID(ctx, input.OrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		groupBuy, err := loadGroupBuy(ctx, s.groupBuys.WithTx(tx), order.GroupBuyID)
		if err != nil {
			return err
		}
		if order.RegistrarID != input.ActorID && !s.authz.IsAdmin(input.ActorID, input.ActorUsername) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the registrar or an admin may cancel")
		}
		if groupBuy.Status != enums.GroupBuyStatusActive {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "group buy is closed")
		}

		if _, err := repo.Delete(ctx, input.OrderID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: delete order")
		}
		rows, err := s.groupBuys.WithTx(tx).BumpVersion(ctx, order.GroupBuyID, true)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: bump group buy version")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "group buy was closed concurrently")
		}

		entry := &models.GroupBuyLog{
			GroupBuyID: order.GroupBuyID,
			UserID:     input.ActorID,
			Username:   input.ActorUsername,
			Action:     enums.LogActionOrderCancelled,
			Details: types.LogDetails{
				Action:   enums.LogActionOrderCancelled.String(),
				Version:  groupBuy.Version + 1,
				Buyer:    order.BuyerUsername,
				Item:     order.ItemName,
				Quantity: order.Quantity,
			},
			CreatedAt: s.now().UTC(),
		}
		if err := s.logs.WithTx(tx).Append(ctx, entry); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: append audit entry")
		}
		return nil
	})
}

// CancelForBuyer removes every order one buyer holds in a round. Allowed for
// the buyer, an admin, or the registrar who recorded all of them. Returns
// the number of removed orders; zero is a silent no-op.
func (s *service) CancelForBuyer(ctx context.Context, input CancelBuyerOrdersInput) (int64, error) {
	if err := s.validate.Struct(input); err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cancel payload")
	}

	var removed int64
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		groupBuy, err := loadGroupBuy(ctx, s.groupBuys.WithTx(tx), input.GroupBuyID)
		if err != nil {
			return err
		}
		if groupBuy.Status != enums.GroupBuyStatusActive {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "group buy is closed")
		}

		buyerOrders, err := repo.ListByBuyer(ctx, input.GroupBuyID, input.BuyerID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list buyer orders")
		}
		if len(buyerOrders) == 0 {
			return nil
		}
		if !s.mayCancelAll(buyerOrders, input.BuyerID, input.ActorID, input.ActorUsername) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "not allowed to cancel this buyer's orders")
		}

		removed, err = repo.DeleteByBuyer(ctx, input.GroupBuyID, input.BuyerID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: delete buyer orders")
		}
		rows, err := s.groupBuys.WithTx(tx).BumpVersion(ctx, input.GroupBuyID, true)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: bump group buy version")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "group buy was closed concurrently")
		}

		entry := &models.GroupBuyLog{
			GroupBuyID: input.GroupBuyID,
			UserID:     input.ActorID,
			Username:   input.ActorUsername,
			Action:     enums.LogActionOrderCancelled,
			Details: types.LogDetails{
				Action:   enums.LogActionOrderCancelled.String(),
				Version:  groupBuy.Version + 1,
				Buyer:    buyerOrders[0].BuyerUsername,
				Affected: int(removed),
			},
			CreatedAt: s.now().UTC(),
		}
		if err := s.logs.WithTx(tx).Append(ctx, entry); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: append audit entry")
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// CancelForBuyerItem removes one buyer's orders for a single catalog item.
// The permission rule matches CancelForBuyer, scoped to the item's rows.
func (s *service) CancelForBuyerItem(ctx context.Context, input CancelBuyerItemOrdersInput) (int64, error) {
	if err := s.validate.Struct(input); err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cancel payload")
	}

	var removed int64
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		groupBuy, err := loadGroupBuy(ctx, s.groupBuys.WithTx(tx), input.GroupBuyID)
		if err != nil {
			return err
		}
		if groupBuy.Status != enums.GroupBuyStatusActive {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "group buy is closed")
		}

		buyerOrders, err := repo.ListByBuyer(ctx, input.GroupBuyID, input.BuyerID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list buyer orders")
		}
		itemOrders := buyerOrders[:0:0]
		for _, order := range buyerOrders {
			if order.ItemName == input.ItemName {
				itemOrders = append(itemOrders, order)
			}
		}
		if len(itemOrders) == 0 {
			return nil
		}
		if !s.mayCancelAll(itemOrders, input.BuyerID, input.ActorID, input.ActorUsername) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "not allowed to cancel this buyer's orders")
		}

		removed, err = repo.DeleteByBuyerItem(ctx, input.GroupBuyID, input.BuyerID, input.ItemName)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: delete buyer item orders")
		}
		rows, err := s.groupBuys.WithTx(tx).BumpVersion(ctx, input.GroupBuyID, true)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: bump group buy version")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "group buy was closed concurrently")
		}

		entry := &models.GroupBuyLog{
			GroupBuyID: input.GroupBuyID,
			UserID:     input.ActorID,
			Username:   input.ActorUsername,
			Action:     enums.LogActionOrderCancelled,
			Details: types.LogDetails{
				Action:   enums.LogActionOrderCancelled.String(),
				Version:  groupBuy.Version + 1,
				Buyer:    itemOrders[0].BuyerUsername,
				Item:     input.ItemName,
				Affected: int(removed),
			},
			CreatedAt: s.now().UTC(),
		}
		if err := s.logs.WithTx(tx).Append(ctx, entry); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: append audit entry")
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

func (s *service) mayCancelAll(buyerOrders []models.GroupBuyOrder, buyerID, actorID, actorUsername string) bool {
	if actorID == buyerID || s.authz.IsAdmin(actorID, actorUsername) {
		return true
	}
	for _, order := range buyerOrders {
		if order.RegistrarID != actorID {
			return false
		}
	}
	return true
}

func loadGroupBuy(ctx context.Context, repo *groupbuys.Repository, id uuid.UUID) (*models.GroupBuy, error) {
	groupBuy, err := repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "group buy not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load group buy")
	}
	return groupBuy, nil
}
