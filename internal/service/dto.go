package service

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vchernov/bank-cards/internal/models"
	"github.com/vchernov/bank-cards/internal/utils"
)

// UserSummary is the caller-facing projection of a user.
type UserSummary struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// AdminUser is the administrator-facing projection of a user.
type AdminUser struct {
	ID        int64         `json:"id"`
	Username  string        `json:"username"`
	Email     string        `json:"email"`
	Roles     []models.Role `json:"roles"`
	Active    bool          `json:"active"`
	CreatedAt time.Time     `json:"created_at"`
}

// AuthResponse carries a freshly issued credential pair.
type AuthResponse struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	User         UserSummary `json:"user"`
}

// CardMaterial is the plaintext card material returned exactly once, at
// creation time. It is never retrievable again.
type CardMaterial struct {
	CardNumber string `json:"card_number"`
	Expiry     string `json:"expiry"`
	CVV        string `json:"cvv"`
}

// CardSummary is the display projection of a card. It never exposes the
// full number or the CVV in any form.
type CardSummary struct {
	ID           int64             `json:"id"`
	MaskedNumber string            `json:"masked_number"`
	LastFour     string            `json:"last_four"`
	Expiry       string            `json:"expiry"`
	Status       models.CardStatus `json:"status"`
	Balance      decimal.Decimal   `json:"balance"`
}

// CvvRotation reports a CVV regeneration. NewCVV is plaintext, shown once.
type CvvRotation struct {
	CardID       int64     `json:"card_id"`
	MaskedNumber string    `json:"masked_number"`
	NewCVV       string    `json:"new_cvv"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// DepositResult reports a successful deposit.
type DepositResult struct {
	CardID       int64           `json:"card_id"`
	MaskedNumber string          `json:"masked_number"`
	Amount       decimal.Decimal `json:"amount"`
	NewBalance   decimal.Decimal `json:"new_balance"`
	Timestamp    time.Time       `json:"timestamp"`
}

// TransferResult reports a successful transfer between two cards. The
// caller's optional note is echoed back untouched.
type TransferResult struct {
	FromCardID   int64           `json:"from_card_id"`
	FromCardMask string          `json:"from_card_mask"`
	ToCardID     int64           `json:"to_card_id"`
	ToCardMask   string          `json:"to_card_mask"`
	Amount       decimal.Decimal `json:"amount"`
	FromBalance  decimal.Decimal `json:"from_balance"`
	ToBalance    decimal.Decimal `json:"to_balance"`
	Message      string          `json:"message,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
}

// BalanceResult reports a card's current balance.
type BalanceResult struct {
	CardID       int64           `json:"card_id"`
	MaskedNumber string          `json:"masked_number"`
	Balance      decimal.Decimal `json:"balance"`
}

func toUserSummary(u *models.User) UserSummary {
	return UserSummary{ID: u.ID, Username: u.Username, Email: u.Email}
}

func toAdminUser(u *models.User) AdminUser {
	return AdminUser{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Roles:     u.Roles,
		Active:    u.Active,
		CreatedAt: u.CreatedAt,
	}
}

// toCardSummary projects a card for display. A stored ACTIVE status reads
// as EXPIRED once the expiration date has passed; expiry is a read-time
// predicate, not a persisted transition.
func toCardSummary(c *models.Card, now time.Time) CardSummary {
	status := c.Status
	if status == models.CardStatusActive && c.IsExpired(now) {
		status = models.CardStatusExpired
	}
	return CardSummary{
		ID:           c.ID,
		MaskedNumber: c.MaskedNumber(),
		LastFour:     c.LastFour,
		Expiry:       utils.FormatExpiry(c.ExpirationDate),
		Status:       status,
		Balance:      c.Balance,
	}
}

func toCardSummaries(page models.Page[models.Card], now time.Time) models.Page[CardSummary] {
	items := make([]CardSummary, len(page.Items))
	for i := range page.Items {
		items[i] = toCardSummary(&page.Items[i], now)
	}
	return models.Page[CardSummary]{
		Items:      items,
		Number:     page.Number,
		Size:       page.Size,
		TotalItems: page.TotalItems,
		TotalPages: page.TotalPages,
	}
}
