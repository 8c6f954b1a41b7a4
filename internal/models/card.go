package models

import (
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/shopspring/decimal"
)

// CardStatus is the persisted card lifecycle state. EXPIRED is evaluated
// against the expiration date at read time and never written back.
type CardStatus string

const (
	CardStatusActive         CardStatus = "ACTIVE"
	CardStatusBlocked        CardStatus = "BLOCKED"
	CardStatusBlockRequested CardStatus = "BLOCK_REQUESTED"
	CardStatusExpired        CardStatus = "EXPIRED"
)

// Text codes attached to card domain errors so callers can tell the
// failure modes apart without parsing messages.
const (
	CodeCardNotActive     = "CARD_NOT_ACTIVE"
	CodeCardExpired       = "CARD_EXPIRED"
	CodeInsufficientFunds = "INSUFFICIENT_FUNDS"
	CodeBlockNotAllowed   = "BLOCK_NOT_ALLOWED"
)

// Card represents a bank card
type Card struct {
	ID              int64           `json:"id"`
	UserID          int64           `json:"user_id"`
	EncryptedNumber string          `json:"-"` // Not serialized
	LastFour        string          `json:"last_four"`
	EncryptedCVV    string          `json:"-"` // Not serialized
	ExpirationDate  time.Time       `json:"expiration_date"`
	Status          CardStatus      `json:"status"`
	Balance         decimal.Decimal `json:"balance"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// MaskedNumber returns the display form of the card number.
func (c *Card) MaskedNumber() string {
	return "**** **** **** " + c.LastFour
}

// IsExpired reports whether the card is past its expiration date.
func (c *Card) IsExpired(now time.Time) bool {
	return c.ExpirationDate.Before(now.Truncate(24 * time.Hour))
}

// EnsureOperational fails unless the card is ACTIVE and not past its
// expiration date. Every balance-affecting operation calls this first.
func (c *Card) EnsureOperational(now time.Time) error {
	if c.Status != CardStatusActive {
		return goerrors.New(fmt.Sprintf("card %d is not active, status: %s", c.ID, c.Status), goerrors.CategoryConflict).
			WithCode(goerrors.CodeConflict).
			WithTextCode(CodeCardNotActive)
	}
	if c.IsExpired(now) {
		return goerrors.New(fmt.Sprintf("card %d has expired", c.ID), goerrors.CategoryConflict).
			WithCode(goerrors.CodeConflict).
			WithTextCode(CodeCardExpired)
	}
	return nil
}

// Credit adds amount to the balance.
func (c *Card) Credit(amount decimal.Decimal, now time.Time) error {
	if err := c.EnsureOperational(now); err != nil {
		return err
	}
	c.Balance = c.Balance.Add(amount)
	return nil
}

// Debit subtracts amount from the balance, refusing overdraw.
func (c *Card) Debit(amount decimal.Decimal, now time.Time) error {
	if err := c.EnsureOperational(now); err != nil {
		return err
	}
	if c.Balance.LessThan(amount) {
		return goerrors.New(
			fmt.Sprintf("insufficient funds: available %s, required %s", c.Balance.StringFixed(2), amount.StringFixed(2)),
			goerrors.CategoryConflict).
			WithCode(goerrors.CodeConflict).
			WithTextCode(CodeInsufficientFunds)
	}
	c.Balance = c.Balance.Sub(amount)
	return nil
}

// RequestBlock transitions ACTIVE -> BLOCK_REQUESTED.
func (c *Card) RequestBlock(now time.Time) error {
	switch {
	case c.Status == CardStatusBlocked:
		return goerrors.New("card is already blocked", goerrors.CategoryConflict).
			WithCode(goerrors.CodeConflict).
			WithTextCode(CodeBlockNotAllowed)
	case c.Status == CardStatusBlockRequested:
		return goerrors.New("block request already pending administrator approval", goerrors.CategoryConflict).
			WithCode(goerrors.CodeConflict).
			WithTextCode(CodeBlockNotAllowed)
	case c.Status == CardStatusExpired || c.IsExpired(now):
		return goerrors.New("an expired card cannot be blocked", goerrors.CategoryConflict).
			WithCode(goerrors.CodeConflict).
			WithTextCode(CodeBlockNotAllowed)
	}
	c.Status = CardStatusBlockRequested
	return nil
}

// ApproveBlock transitions BLOCK_REQUESTED -> BLOCKED.
func (c *Card) ApproveBlock() error {
	if c.Status != CardStatusBlockRequested {
		return goerrors.New(
			fmt.Sprintf("card does not have a pending block request, status: %s", c.Status),
			goerrors.CategoryConflict).
			WithCode(goerrors.CodeConflict).
			WithTextCode(CodeBlockNotAllowed)
	}
	c.Status = CardStatusBlocked
	return nil
}
