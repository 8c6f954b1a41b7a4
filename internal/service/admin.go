package service

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/sirupsen/logrus"

	"github.com/vchernov/bank-cards/internal/models"
)

const (
	adminCardsPageSize = 10
	adminUsersPageSize = 100
)

// AdminService is the administrator review surface: account inspection,
// user block/unblock and block-request approval.
type AdminService struct {
	users   UserStore
	cards   CardStore
	cardSvc *CardService
	log     *logrus.Logger
	now     func() time.Time
}

// NewAdminService initializes a new admin service
func NewAdminService(users UserStore, cards CardStore, cardSvc *CardService, log *logrus.Logger) *AdminService {
	return &AdminService{
		users:   users,
		cards:   cards,
		cardSvc: cardSvc,
		log:     log,
		now:     time.Now,
	}
}

// AllCards returns one page of every card in the system.
func (s *AdminService) AllCards(ctx context.Context, page int) (models.Page[CardSummary], error) {
	if page < 0 {
		page = 0
	}
	cards, err := s.cards.ListCards(ctx, page, adminCardsPageSize)
	if err != nil {
		return models.Page[CardSummary]{}, err
	}
	return toCardSummaries(cards, s.now()), nil
}

// ApproveBlock transitions a card from BLOCK_REQUESTED to BLOCKED.
func (s *AdminService) ApproveBlock(ctx context.Context, cardID int64) (*CardSummary, error) {
	card, err := s.cards.ApproveBlock(ctx, cardID)
	if err != nil {
		return nil, err
	}
	s.log.Infof("Block approved for card %d", card.ID)
	summary := toCardSummary(card, s.now())
	return &summary, nil
}

// AllUsers returns one page of every user in the system.
func (s *AdminService) AllUsers(ctx context.Context, page int) (models.Page[AdminUser], error) {
	if page < 0 {
		page = 0
	}
	users, err := s.users.ListUsers(ctx, page, adminUsersPageSize)
	if err != nil {
		return models.Page[AdminUser]{}, err
	}
	items := make([]AdminUser, len(users.Items))
	for i := range users.Items {
		items[i] = toAdminUser(&users.Items[i])
	}
	return models.Page[AdminUser]{
		Items:      items,
		Number:     users.Number,
		Size:       users.Size,
		TotalItems: users.TotalItems,
		TotalPages: users.TotalPages,
	}, nil
}

// UserByID returns the administrator projection of a user.
func (s *AdminService) UserByID(ctx context.Context, userID int64) (*AdminUser, error) {
	user, err := s.users.UserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := toAdminUser(user)
	return &out, nil
}

// BlockUser deactivates a user account.
func (s *AdminService) BlockUser(ctx context.Context, userID int64) (*AdminUser, error) {
	return s.setUserActive(ctx, userID, false)
}

// UnblockUser reactivates a user account.
func (s *AdminService) UnblockUser(ctx context.Context, userID int64) (*AdminUser, error) {
	return s.setUserActive(ctx, userID, true)
}

func (s *AdminService) setUserActive(ctx context.Context, userID int64, active bool) (*AdminUser, error) {
	user, err := s.users.UserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Active == active {
		msg := "user is already blocked"
		if active {
			msg = "user is not blocked"
		}
		return nil, goerrors.New(msg, goerrors.CategoryConflict).
			WithCode(goerrors.CodeConflict)
	}
	if err := s.users.SetUserActive(ctx, userID, active); err != nil {
		return nil, err
	}
	user.Active = active

	s.log.Infof("User %d active flag set to %t", userID, active)
	out := toAdminUser(user)
	return &out, nil
}

// CreateCardForUser issues a card on behalf of a user.
func (s *AdminService) CreateCardForUser(ctx context.Context, userID int64) (*CardMaterial, error) {
	return s.cardSvc.IssueCard(ctx, userID)
}

// RotateCVV regenerates the CVV of a user's card.
func (s *AdminService) RotateCVV(ctx context.Context, userID, cardID int64) (*CvvRotation, error) {
	return s.cardSvc.RotateCVV(ctx, userID, cardID)
}
