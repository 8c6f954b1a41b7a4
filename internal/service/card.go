package service

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/vchernov/bank-cards/internal/models"
	"github.com/vchernov/bank-cards/internal/utils"
)

// Card numbers carry a fixed issuer prefix followed by random digits.
// No check digit is applied.
const (
	cardNumberPrefix = "400000"
	cardNumberLength = 16

	userCardsPageSize = 2
)

// CardService owns the card ledger engine: card issuance, encryption of
// sensitive material, status transitions and balance operations.
type CardService struct {
	users  UserStore
	cards  CardStore
	key    []byte
	log    *logrus.Logger
	mailer Notifier
	now    func() time.Time
}

// NewCardService initializes a new card service. The encryption key is
// injected at construction; mailer may be nil.
func NewCardService(users UserStore, cards CardStore, key []byte, log *logrus.Logger, mailer Notifier) *CardService {
	return &CardService{
		users:  users,
		cards:  cards,
		key:    key,
		log:    log,
		mailer: mailer,
		now:    time.Now,
	}
}

// IssueCard creates a card for the owner and returns the plaintext
// material exactly once. Only encrypted forms are persisted.
func (s *CardService) IssueCard(ctx context.Context, ownerID int64) (*CardMaterial, error) {
	user, err := s.users.UserByID(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	cardNumber, err := utils.GenerateCardNumber(cardNumberPrefix, cardNumberLength)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate card number").
			WithCode(goerrors.CodeInternal)
	}
	cvv := utils.GenerateCVV()
	expiration := utils.GenerateExpirationDate(s.now())

	encryptedNumber, err := utils.Encrypt(cardNumber, s.key)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encrypt card number").
			WithCode(goerrors.CodeInternal)
	}
	encryptedCVV, err := utils.Encrypt(cvv, s.key)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encrypt cvv").
			WithCode(goerrors.CodeInternal)
	}
	lastFour, err := utils.LastFour(cardNumber)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to derive last four digits").
			WithCode(goerrors.CodeInternal)
	}

	card := &models.Card{
		UserID:          user.ID,
		EncryptedNumber: encryptedNumber,
		LastFour:        lastFour,
		EncryptedCVV:    encryptedCVV,
		ExpirationDate:  expiration,
		Status:          models.CardStatusActive,
		Balance:         decimal.Zero,
	}
	if err := s.cards.CreateCard(ctx, card); err != nil {
		return nil, err
	}

	s.log.Infof("Card issued for user %d: **** %s", user.ID, lastFour)
	return &CardMaterial{
		CardNumber: cardNumber,
		Expiry:     utils.FormatExpiry(expiration),
		CVV:        cvv,
	}, nil
}

// RotateCVV regenerates and re-encrypts only the CVV of a card belonging
// to the specified owner. The new CVV is returned in plaintext once.
func (s *CardService) RotateCVV(ctx context.Context, ownerID, cardID int64) (*CvvRotation, error) {
	if _, err := s.users.UserByID(ctx, ownerID); err != nil {
		return nil, err
	}
	card, err := s.cards.CardByOwner(ctx, cardID, ownerID)
	if err != nil {
		return nil, err
	}

	newCVV := utils.GenerateCVV()
	encryptedCVV, err := utils.Encrypt(newCVV, s.key)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encrypt cvv").
			WithCode(goerrors.CodeInternal)
	}
	updatedAt, err := s.cards.UpdateCardCVV(ctx, card.ID, encryptedCVV)
	if err != nil {
		return nil, err
	}

	s.log.Infof("CVV rotated for card %d", card.ID)
	return &CvvRotation{
		CardID:       card.ID,
		MaskedNumber: card.MaskedNumber(),
		NewCVV:       newCVV,
		UpdatedAt:    updatedAt,
	}, nil
}

// ListCards returns one page of the owner's cards as display summaries.
func (s *CardService) ListCards(ctx context.Context, ownerID int64, page int) (models.Page[CardSummary], error) {
	if page < 0 {
		page = 0
	}
	cards, err := s.cards.ListCardsByOwner(ctx, ownerID, page, userCardsPageSize)
	if err != nil {
		return models.Page[CardSummary]{}, err
	}
	return toCardSummaries(cards, s.now()), nil
}

// Deposit adds amount to an ACTIVE, unexpired card owned by the caller.
func (s *CardService) Deposit(ctx context.Context, ownerID, cardID int64, amount decimal.Decimal) (*DepositResult, error) {
	if err := requirePositive(amount); err != nil {
		return nil, err
	}

	now := s.now()
	card, err := s.cards.Deposit(ctx, ownerID, cardID, amount, now)
	if err != nil {
		return nil, err
	}

	s.notifyDeposit(ctx, ownerID, card, amount)
	s.log.Infof("Deposit of %s to card %d", amount.StringFixed(2), card.ID)
	return &DepositResult{
		CardID:       card.ID,
		MaskedNumber: card.MaskedNumber(),
		Amount:       amount,
		NewBalance:   card.Balance,
		Timestamp:    now,
	}, nil
}

// Transfer moves amount between two cards of the same owner. The debit
// and credit commit as one unit; their net balance change is zero. The
// message is a free-form note echoed back in the result.
func (s *CardService) Transfer(ctx context.Context, ownerID, fromCardID, toCardID int64, amount decimal.Decimal, message string) (*TransferResult, error) {
	if fromCardID == toCardID {
		return nil, goerrors.New("cannot transfer from a card to itself", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest)
	}
	if err := requirePositive(amount); err != nil {
		return nil, err
	}

	now := s.now()
	from, to, err := s.cards.Transfer(ctx, ownerID, fromCardID, toCardID, amount, now)
	if err != nil {
		return nil, err
	}

	s.notifyTransfer(ctx, ownerID, from, to, amount)
	s.log.Infof("Transfer of %s from card %d to card %d", amount.StringFixed(2), from.ID, to.ID)
	return &TransferResult{
		FromCardID:   from.ID,
		FromCardMask: from.MaskedNumber(),
		ToCardID:     to.ID,
		ToCardMask:   to.MaskedNumber(),
		Amount:       amount,
		FromBalance:  from.Balance,
		ToBalance:    to.Balance,
		Message:      message,
		Timestamp:    now,
	}, nil
}

// GetBalance returns the current balance of a card owned by the caller.
func (s *CardService) GetBalance(ctx context.Context, ownerID, cardID int64) (*BalanceResult, error) {
	card, err := s.cards.CardByOwner(ctx, cardID, ownerID)
	if err != nil {
		return nil, err
	}
	return &BalanceResult{
		CardID:       card.ID,
		MaskedNumber: card.MaskedNumber(),
		Balance:      card.Balance,
	}, nil
}

// RequestBlock transitions the caller's card from ACTIVE to
// BLOCK_REQUESTED, pending administrator approval.
func (s *CardService) RequestBlock(ctx context.Context, ownerID, cardID int64) (*CardSummary, error) {
	now := s.now()
	card, err := s.cards.RequestBlock(ctx, ownerID, cardID, now)
	if err != nil {
		return nil, err
	}

	if s.mailer != nil {
		if user, err := s.users.UserByID(ctx, ownerID); err == nil {
			go s.mailer.SendBlockRequested(user.Email, user.Username, card.MaskedNumber())
		}
	}
	s.log.Infof("Block requested for card %d", card.ID)
	summary := toCardSummary(card, now)
	return &summary, nil
}

func (s *CardService) notifyDeposit(ctx context.Context, ownerID int64, card *models.Card, amount decimal.Decimal) {
	if s.mailer == nil {
		return
	}
	user, err := s.users.UserByID(ctx, ownerID)
	if err != nil {
		return
	}
	go s.mailer.SendDepositReceipt(user.Email, user.Username, card.MaskedNumber(), amount, card.Balance)
}

func (s *CardService) notifyTransfer(ctx context.Context, ownerID int64, from, to *models.Card, amount decimal.Decimal) {
	if s.mailer == nil {
		return
	}
	user, err := s.users.UserByID(ctx, ownerID)
	if err != nil {
		return
	}
	go s.mailer.SendTransferReceipt(user.Email, user.Username, from.MaskedNumber(), to.MaskedNumber(), amount)
}

func requirePositive(amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return goerrors.New("amount must be greater than zero", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest)
	}
	return nil
}
