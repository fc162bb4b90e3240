package groupbuys

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/weiting-chen/groupbuy-backend/internal/auditlog"
	"github.com/weiting-chen/groupbuy-backend/pkg/auth"
	"github.com/weiting-chen/groupbuy-backend/pkg/db/models"
	"github.com/weiting-chen/groupbuy-backend/pkg/enums"
	pkgerrors "github.com/weiting-chen/groupbuy-backend/pkg/errors"
	"github.com/weiting-chen/groupbuy-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes the ledger store operations for group buy rounds.
type Service interface {
	Create(ctx context.Context, input CreateGroupBuyInput) (*models.GroupBuy, error)
	Get(ctx context.Context, id uuid.UUID) (*models.GroupBuy, error)
	UpdateItems(ctx context.Context, input UpdateItemsInput) (*models.GroupBuy, error)
	SetAnnouncement(ctx context.Context, input SetAnnouncementInput) (*models.GroupBuy, error)
	Close(ctx context.Context, input CloseGroupBuyInput) (*models.GroupBuy, error)
	Delete(ctx context.Context, input DeleteGroupBuyInput) error
}

// CreateGroupBuyInput holds the payload to open a purchasing round.
type CreateGroupBuyInput struct {
	CreatorID       string `validate:"required"`
	CreatorUsername string `validate:"required"`
	ChannelID       string `validate:"required"`
	MerchantName    string `validate:"required"`
	Description     *string
	Metadata        types.JSONMap
	Items           types.ItemList `validate:"required"`
}

// UpdateItemsInput replaces the catalog of an active round.
type UpdateItemsInput struct {
	GroupBuyID      uuid.UUID      `validate:"required"`
	ActorID         string         `validate:"required"`
	ActorUsername   string         `validate:"required"`
	ExpectedVersion int            `validate:"gt=0"`
	Items           types.ItemList `validate:"required"`
}

// SetAnnouncementInput records the chat post that announced the round.
type SetAnnouncementInput struct {
	GroupBuyID    uuid.UUID `validate:"required"`
	ActorID       string    `validate:"required"`
	ActorUsername string    `validate:"required"`
	PostID        string    `validate:"required"`
}

// CloseGroupBuyInput ends a round; closed is terminal.
type CloseGroupBuyInput struct {
	GroupBuyID      uuid.UUID `validate:"required"`
	ActorID         string    `validate:"required"`
	ActorUsername   string    `validate:"required"`
	ExpectedVersion int       `validate:"gt=0"`
}

// DeleteGroupBuyInput removes a round and everything it owns.
type DeleteGroupBuyInput struct {
	GroupBuyID    uuid.UUID `validate:"required"`
	ActorID       string    `validate:"required"`
	ActorUsername string    `validate:"required"`
}

type service struct {
	repo     *Repository
	logs     *auditlog.Repository
	tx       txRunner
	authz    auth.Authorizer
	validate *validator.Validate
	now      func() time.Time
}

// NewService builds the ledger store service with the required dependencies.
func NewService(repo *Repository, logs *auditlog.Repository, tx txRunner, authz auth.Authorizer) (Service, error) {
	if repo == nil {
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
		repo:     repo,
		logs:     logs,
		tx:       tx,
		authz:    authz,
		validate: validator.New(),
		now:      time.Now,
	}, nil
}

// Create opens a new round at version 1.
func (s *service) Create(ctx context.Context, input CreateGroupBuyInput) (*models.GroupBuy, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid create payload")
	}
	if strings.TrimSpace(input.MerchantName) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "merchant name is required")
	}
	if err := input.Items.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid item catalog")
	}

	now := s.now().UTC()
	groupBuy := &models.GroupBuy{
		ID:              uuid.New(),
		CreatorID:       input.CreatorID,
		CreatorUsername: input.CreatorUsername,
		ChannelID:       input.ChannelID,
		MerchantName:    strings.TrimSpace(input.MerchantName),
		Description:     input.Description,
		Metadata:        input.Metadata,
		Items:           input.Items,
		Status:          enums.GroupBuyStatusActive,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, groupBuy); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: insert group buy")
		}
		entry := &models.GroupBuyLog{
			GroupBuyID: groupBuy.ID,
			UserID:     input.CreatorID,
			Username:   input.CreatorUsername,
			Action:     enums.LogActionCreated,
			Details: types.LogDetails{
				Action:       enums.LogActionCreated.String(),
				Version:      1,
				MerchantName: groupBuy.MerchantName,
				ItemsCount:   len(groupBuy.Items),
			},
			CreatedAt: now,
		}
		if err := s.logs.WithTx(tx).Append(ctx, entry); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: append audit entry")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return groupBuy, nil
}

// Get loads one round.
func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.GroupBuy, error) {
	groupBuy, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "group buy not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load group buy")
	}
	return groupBuy, nil
}

// UpdateItems replaces the catalog; only the creator may edit, only while
// the round is active, and only against the version the caller last saw.
func (s *service) UpdateItems(ctx context.Context, input UpdateItemsInput) (*models.GroupBuy, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid update payload")
	}
	if err := input.Items.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid item catalog")
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		groupBuy, err := loadGroupBuy(ctx, repo, input.GroupBuyID)
		if err != nil {
			return err
		}
		if groupBuy.CreatorID != input.ActorID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the creator may edit the catalog")
		}
		if groupBuy.Status != enums.GroupBuyStatusActive {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "group buy is closed")
		}

		rows, err := repo.UpdateItems(ctx, input.GroupBuyID, input.ExpectedVersion, input.Items)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: update items")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "group buy was modified concurrently")
		}

		entry := &models.GroupBuyLog{
			GroupBuyID: input.GroupBuyID,
			UserID:     input.ActorID,
			Username:   input.ActorUsername,
			Action:     enums.LogActionItemsUpdated,
			Details: types.LogDetails{
				Action:     enums.LogActionItemsUpdated.String(),
				Version:    input.ExpectedVersion + 1,
				ItemsCount: len(input.Items),
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
	return s.Get(ctx, input.GroupBuyID)
}

// SetAnnouncement pins the originating announcement post onto the round.
func (s *service) SetAnnouncement(ctx context.Context, input SetAnnouncementInput) (*models.GroupBuy, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid announcement payload")
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		groupBuy, err := loadGroupBuy(ctx, repo, input.GroupBuyID)
		if err != nil {
			return err
		}
		if groupBuy.CreatorID != input.ActorID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the creator may set the announcement")
		}
		if groupBuy.Status != enums.GroupBuyStatusActive {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "group buy is closed")
		}

		rows, err := repo.SetPostID(ctx, input.GroupBuyID, input.PostID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: set announcement post")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "group buy was closed concurrently")
		}

		entry := &models.GroupBuyLog{
			GroupBuyID: input.GroupBuyID,
			UserID:     input.ActorID,
			Username:   input.ActorUsername,
			Action:     enums.LogActionAnnounced,
			Details: types.LogDetails{
				Action:  enums.LogActionAnnounced.String(),
				Version: groupBuy.Version + 1,
				PostID:  input.PostID,
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
	return s.Get(ctx, input.GroupBuyID)
}

// Close ends the round. Closing an already-closed round is always rejected,
// never treated as idempotent.
func (s *service) Close(ctx context.Context, input CloseGroupBuyInput) (*models.GroupBuy, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid close payload")
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		groupBuy, err := loadGroupBuy(ctx, repo, input.GroupBuyID)
		if err != nil {
			return err
		}
		if !s.canManage(groupBuy, input.ActorID, input.ActorUsername) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the creator or an admin may close")
		}
		if groupBuy.Status == enums.GroupBuyStatusClosed {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "group buy is already closed")
		}

		rows, err := repo.Close(ctx, input.GroupBuyID, input.ExpectedVersion)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: close group buy")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "group buy was modified concurrently")
		}

		entry := &models.GroupBuyLog{
			GroupBuyID: input.GroupBuyID,
			UserID:     input.ActorID,
			Username:   input.ActorUsername,
			Action:     enums.LogActionClosed,
			Details: types.LogDetails{
				Action:       enums.LogActionClosed.String(),
				Version:      input.ExpectedVersion + 1,
				MerchantName: groupBuy.MerchantName,
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
	return s.Get(ctx, input.GroupBuyID)
}

// Delete removes the round and, transitively, its orders, logs, and
// adjustments.
func (s *service) Delete(ctx context.Context, input DeleteGroupBuyInput) error {
	if err := s.validate.Struct(input); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid delete payload")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		groupBuy, err := loadGroupBuy(ctx, repo, input.GroupBuyID)
		if err != nil {
			return err
		}
		if !s.canManage(groupBuy, input.ActorID, input.ActorUsername) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the creator or an admin may delete")
		}

		rows, err := repo.DeleteCascade(ctx, input.GroupBuyID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: delete group buy")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, "group buy not found")
		}
		return nil
	})
}

func (s *service) canManage(groupBuy *models.GroupBuy, actorID, actorUsername string) bool {
	return groupBuy.CreatorID == actorID || s.authz.IsAdmin(actorID, actorUsername)
}

func loadGroupBuy(ctx context.Context, repo *Repository, id uuid.UUID) (*models.GroupBuy, error) {
	groupBuy, err := repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "group buy not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load group buy")
	}
	return groupBuy, nil
}
