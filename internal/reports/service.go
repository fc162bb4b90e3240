package reports

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/weiting-chen/groupbuy-backend/internal/groupbuys"
	"github.com/weiting-chen/groupbuy-backend/internal/orders"
	"github.com/weiting-chen/groupbuy-backend/pkg/db/models"
	"github.com/weiting-chen/groupbuy-backend/pkg/enums"
	pkgerrors "github.com/weiting-chen/groupbuy-backend/pkg/errors"
)

// Service is the read-only aggregation layer. It owns no state; every call
// recomputes from committed ledger rows.
type Service interface {
	Summarize(ctx context.Context, groupBuyID uuid.UUID) (*Summary, error)
	IsClosable(ctx context.Context, groupBuyID uuid.UUID) (bool, error)
}

// BuyerLine is one buyer's share of an item.
type BuyerLine struct {
	BuyerID       string
	BuyerUsername string
	Quantity      int
	Amount        decimal.Decimal
}

// ItemSummary aggregates one item across all current orders.
type ItemSummary struct {
	Name      string
	UnitPrice decimal.Decimal
	Total     int
	Amount    decimal.Decimal
	Buyers    []BuyerLine
}

// Summary is the full picture of a round: per-item totals with per-buyer
// breakdown, in catalog order.
type Summary struct {
	GroupBuyID   uuid.UUID
	MerchantName string
	Status       enums.GroupBuyStatus
	Version      int
	Items        []ItemSummary
	TotalAmount  decimal.Decimal
}

type service struct {
	groupBuys *groupbuys.Repository
	orders    *orders.Repository
}

// NewService builds the aggregation service.
func NewService(groupBuyRepo *groupbuys.Repository, orderRepo *orders.Repository) (Service, error) {
	if groupBuyRepo == nil {
		return nil, fmt.Errorf("group buy repository required")
	}
	if orderRepo == nil {
		return nil, fmt.Errorf("order repository required")
	}
	return &service{groupBuys: groupBuyRepo, orders: orderRepo}, nil
}

// Summarize recomputes the round's totals from current orders. Amounts are
// derived from each order's unit-price snapshot, not the live catalog.
func (s *service) Summarize(ctx context.Context, groupBuyID uuid.UUID) (*Summary, error) {
	groupBuy, err := s.loadGroupBuy(ctx, groupBuyID)
	if err != nil {
		return nil, err
	}
	orderRows, err := s.orders.ListByGroupBuy(ctx, groupBuyID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}

	summary := &Summary{
		GroupBuyID:   groupBuy.ID,
		MerchantName: groupBuy.MerchantName,
		Status:       groupBuy.Status,
		Version:      groupBuy.Version,
		TotalAmount:  decimal.Zero,
	}

	// catalog order first, then any orphaned items in first-seen order
	index := make(map[string]int, len(groupBuy.Items))
	for _, item := range groupBuy.Items {
		index[item.Name] = len(summary.Items)
		summary.Items = append(summary.Items, ItemSummary{
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Amount:    decimal.Zero,
		})
	}

	for _, order := range orderRows {
		pos, ok := index[order.ItemName]
		if !ok {
			pos = len(summary.Items)
			index[order.ItemName] = pos
			summary.Items = append(summary.Items, ItemSummary{
				Name:      order.ItemName,
				UnitPrice: order.UnitPrice,
				Amount:    decimal.Zero,
			})
		}

		amount := order.UnitPrice.Mul(decimal.NewFromInt(int64(order.Quantity)))
		item := &summary.Items[pos]
		item.Total += order.Quantity
		item.Amount = item.Amount.Add(amount)
		summary.TotalAmount = summary.TotalAmount.Add(amount)
		mergeBuyerLine(item, order, amount)
	}
	return summary, nil
}

// IsClosable reports whether the round can still be closed.
func (s *service) IsClosable(ctx context.Context, groupBuyID uuid.UUID) (bool, error) {
	groupBuy, err := s.loadGroupBuy(ctx, groupBuyID)
	if err != nil {
		return false, err
	}
	return groupBuy.Status == enums.GroupBuyStatusActive, nil
}

func (s *service) loadGroupBuy(ctx context.Context, id uuid.UUID) (*models.GroupBuy, error) {
	groupBuy, err := s.groupBuys.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "group buy not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load group buy")
	}
	return groupBuy, nil
}

func mergeBuyerLine(item *ItemSummary, order models.GroupBuyOrder, amount decimal.Decimal) {
	for i := range item.Buyers {
		if item.Buyers[i].BuyerID == order.BuyerID {
			item.Buyers[i].Quantity += order.Quantity
			item.Buyers[i].Amount = item.Buyers[i].Amount.Add(amount)
			return
		}
	}
	item.Buyers = append(item.Buyers, BuyerLine{
		BuyerID:       order.BuyerID,
		BuyerUsername: order.BuyerUsername,
		Quantity:      order.Quantity,
		Amount:        amount,
	})
}
