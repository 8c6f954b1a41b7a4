// Package service holds the business logic: the token lifecycle behind
// authentication and the card ledger engine. Persistence is consumed
// through narrow store interfaces implemented by the repository.
package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vchernov/bank-cards/internal/models"
)

// UserStore is the persistence surface for users.
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	UserByID(ctx context.Context, id int64) (*models.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ListUsers(ctx context.Context, page, size int) (models.Page[models.User], error)
	SetUserActive(ctx context.Context, id int64, active bool) error
}

// CardStore is the persistence surface for cards. Deposit, Transfer,
// RequestBlock and ApproveBlock are atomic units: their guards and
// mutations either all commit or none do.
type CardStore interface {
	CreateCard(ctx context.Context, card *models.Card) error
	CardByOwner(ctx context.Context, cardID, userID int64) (*models.Card, error)
	CardByID(ctx context.Context, cardID int64) (*models.Card, error)
	ListCardsByOwner(ctx context.Context, userID int64, page, size int) (models.Page[models.Card], error)
	ListCards(ctx context.Context, page, size int) (models.Page[models.Card], error)
	UpdateCardCVV(ctx context.Context, cardID int64, encryptedCVV string) (time.Time, error)
	Deposit(ctx context.Context, userID, cardID int64, amount decimal.Decimal, now time.Time) (*models.Card, error)
	Transfer(ctx context.Context, userID, fromID, toID int64, amount decimal.Decimal, now time.Time) (*models.Card, *models.Card, error)
	RequestBlock(ctx context.Context, userID, cardID int64, now time.Time) (*models.Card, error)
	ApproveBlock(ctx context.Context, cardID int64) (*models.Card, error)
}

// TokenStore is the persistence surface for the revocation ledger.
type TokenStore interface {
	SaveTokens(ctx context.Context, tokens ...*models.Token) error
	TokenByValue(ctx context.Context, value string) (*models.Token, error)
	RotateTokens(ctx context.Context, userID int64, presented string, replacements ...*models.Token) error
	RevokeToken(ctx context.Context, value string) error
	ExpireTokens(ctx context.Context, now time.Time) (int64, error)
}

// Notifier sends best-effort user notifications. Implementations log
// their own failures; callers fire and forget.
type Notifier interface {
	SendWelcome(to, username string)
	SendDepositReceipt(to, username, cardMask string, amount, balance decimal.Decimal)
	SendTransferReceipt(to, username, fromMask, toMask string, amount decimal.Decimal)
	SendBlockRequested(to, username, cardMask string)
}
