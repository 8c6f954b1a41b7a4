package service

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vchernov/bank-cards/internal/models"
	"github.com/vchernov/bank-cards/internal/service/servicetest"
	"github.com/vchernov/bank-cards/internal/utils"
)

var cardTestNow = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

type cardFixture struct {
	svc   *CardService
	store *servicetest.Store
	key   []byte
	owner *models.User
}

func newCardFixture(t *testing.T) *cardFixture {
	t.Helper()
	f := &cardFixture{
		store: servicetest.New(),
		key:   utils.DeriveKey("card-secret"),
	}
	f.svc = NewCardService(f.store, f.store, f.key, testLogger(), nil)
	f.svc.now = func() time.Time { return cardTestNow }
	f.owner = f.store.SeedUser(&models.User{
		Username: "alice",
		Email:    "alice@example.com",
		Roles:    []models.Role{models.RoleUser},
		Active:   true,
	})
	return f
}

func (f *cardFixture) seedActiveCard(balance string) *models.Card {
	return f.store.SeedCard(&models.Card{
		UserID:         f.owner.ID,
		LastFour:       "1234",
		ExpirationDate: cardTestNow.AddDate(3, 0, 0),
		Status:         models.CardStatusActive,
		Balance:        decimal.RequireFromString(balance),
	})
}

func requireTextCode(t *testing.T, err error, code string) {
	t.Helper()
	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr), "expected a structured error, got %v", err)
	assert.Equal(t, code, richErr.TextCode)
}

func TestIssueCard(t *testing.T) {
	f := newCardFixture(t)

	material, err := f.svc.IssueCard(context.Background(), f.owner.ID)
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^400000\d{10}$`), material.CardNumber)
	assert.Regexp(t, regexp.MustCompile(`^\d{3}$`), material.CVV)
	assert.Equal(t, "03/2029", material.Expiry)

	stored, ok := f.store.CardSnapshot(1)
	require.True(t, ok)
	assert.Equal(t, models.CardStatusActive, stored.Status)
	assert.True(t, stored.Balance.IsZero())
	assert.Equal(t, material.CardNumber[12:], stored.LastFour)

	// Only ciphertext is persisted; it decrypts back to the plaintext
	// returned at creation.
	assert.NotEqual(t, material.CardNumber, stored.EncryptedNumber)
	assert.NotEqual(t, material.CVV, stored.EncryptedCVV)
	number, err := utils.Decrypt(stored.EncryptedNumber, f.key)
	require.NoError(t, err)
	assert.Equal(t, material.CardNumber, number)
	cvv, err := utils.Decrypt(stored.EncryptedCVV, f.key)
	require.NoError(t, err)
	assert.Equal(t, material.CVV, cvv)
}

func TestIssueCardUnknownOwner(t *testing.T) {
	f := newCardFixture(t)

	_, err := f.svc.IssueCard(context.Background(), 999)
	requireCategory(t, err, goerrors.CategoryNotFound)
}

func TestDeposit(t *testing.T) {
	f := newCardFixture(t)
	card := f.seedActiveCard("0.00")

	result, err := f.svc.Deposit(context.Background(), f.owner.ID, card.ID, decimal.RequireFromString("50.00"))
	require.NoError(t, err)
	assert.Equal(t, card.ID, result.CardID)
	assert.Equal(t, "**** **** **** 1234", result.MaskedNumber)
	assert.True(t, result.NewBalance.Equal(decimal.RequireFromString("50.00")))

	stored, _ := f.store.CardSnapshot(card.ID)
	assert.True(t, stored.Balance.Equal(decimal.RequireFromString("50.00")))
}

func TestDepositRejectsNonPositiveAmount(t *testing.T) {
	f := newCardFixture(t)
	card := f.seedActiveCard("10.00")

	for _, amount := range []string{"-5.00", "0"} {
		_, err := f.svc.Deposit(context.Background(), f.owner.ID, card.ID, decimal.RequireFromString(amount))
		requireCategory(t, err, goerrors.CategoryValidation)
	}

	stored, _ := f.store.CardSnapshot(card.ID)
	assert.True(t, stored.Balance.Equal(decimal.RequireFromString("10.00")))
}

func TestDepositToBlockedCard(t *testing.T) {
	f := newCardFixture(t)
	card := f.store.SeedCard(&models.Card{
		UserID:         f.owner.ID,
		LastFour:       "1234",
		ExpirationDate: cardTestNow.AddDate(3, 0, 0),
		Status:         models.CardStatusBlocked,
		Balance:        decimal.RequireFromString("10.00"),
	})

	_, err := f.svc.Deposit(context.Background(), f.owner.ID, card.ID, decimal.RequireFromString("5.00"))
	requireTextCode(t, err, models.CodeCardNotActive)
}

func TestDepositToForeignCard(t *testing.T) {
	f := newCardFixture(t)
	other := f.store.SeedUser(&models.User{Username: "bob", Email: "bob@example.com", Active: true})
	card := f.store.SeedCard(&models.Card{
		UserID:         other.ID,
		LastFour:       "9999",
		ExpirationDate: cardTestNow.AddDate(3, 0, 0),
		Status:         models.CardStatusActive,
		Balance:        decimal.Zero,
	})

	_, err := f.svc.Deposit(context.Background(), f.owner.ID, card.ID, decimal.RequireFromString("5.00"))
	requireCategory(t, err, goerrors.CategoryNotFound)
}

func TestTransferConservesTotal(t *testing.T) {
	f := newCardFixture(t)
	from := f.seedActiveCard("100.00")
	to := f.seedActiveCard("0.00")

	result, err := f.svc.Transfer(context.Background(), f.owner.ID, from.ID, to.ID, decimal.RequireFromString("40.00"), "rent share")
	require.NoError(t, err)
	assert.True(t, result.FromBalance.Equal(decimal.RequireFromString("60.00")))
	assert.True(t, result.ToBalance.Equal(decimal.RequireFromString("40.00")))
	assert.Equal(t, "rent share", result.Message)

	storedFrom, _ := f.store.CardSnapshot(from.ID)
	storedTo, _ := f.store.CardSnapshot(to.ID)
	assert.True(t, storedFrom.Balance.Add(storedTo.Balance).Equal(decimal.RequireFromString("100.00")))
}

func TestTransferInsufficientFunds(t *testing.T) {
	f := newCardFixture(t)
	from := f.seedActiveCard("100.00")
	to := f.seedActiveCard("0.00")

	_, err := f.svc.Transfer(context.Background(), f.owner.ID, from.ID, to.ID, decimal.RequireFromString("1000.00"), "")
	requireTextCode(t, err, models.CodeInsufficientFunds)

	// Neither balance moves on a failed transfer.
	storedFrom, _ := f.store.CardSnapshot(from.ID)
	storedTo, _ := f.store.CardSnapshot(to.ID)
	assert.True(t, storedFrom.Balance.Equal(decimal.RequireFromString("100.00")))
	assert.True(t, storedTo.Balance.IsZero())
}

func TestConcurrentTransfersNeverOverdraw(t *testing.T) {
	f := newCardFixture(t)
	from := f.seedActiveCard("100.00")
	to := f.seedActiveCard("0.00")
	amount := decimal.RequireFromString("30.00")

	// 100.00 funds at most three 30.00 transfers; the rest must fail
	// with insufficient funds, never by driving the balance negative.
	const attempts = 20
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Transfer(context.Background(), f.owner.ID, from.ID, to.ID, amount, "")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		requireTextCode(t, err, models.CodeInsufficientFunds)
	}
	assert.Equal(t, 3, succeeded)
	storedFrom, _ := f.store.CardSnapshot(from.ID)
	storedTo, _ := f.store.CardSnapshot(to.ID)
	assert.False(t, storedFrom.Balance.IsNegative())
	assert.True(t, storedFrom.Balance.Equal(decimal.RequireFromString("10.00")))
	assert.True(t, storedFrom.Balance.Add(storedTo.Balance).Equal(decimal.RequireFromString("100.00")))
}

func TestConcurrentDepositsLoseNothing(t *testing.T) {
	f := newCardFixture(t)
	card := f.seedActiveCard("0.00")
	amount := decimal.RequireFromString("1.00")

	const deposits = 50
	var wg sync.WaitGroup
	errs := make([]error, deposits)
	for i := 0; i < deposits; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Deposit(context.Background(), f.owner.ID, card.ID, amount)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	stored, _ := f.store.CardSnapshot(card.ID)
	assert.True(t, stored.Balance.Equal(decimal.RequireFromString("50.00")))
}

func TestTransferToSelf(t *testing.T) {
	f := newCardFixture(t)
	card := f.seedActiveCard("100.00")

	_, err := f.svc.Transfer(context.Background(), f.owner.ID, card.ID, card.ID, decimal.RequireFromString("10.00"), "")
	requireCategory(t, err, goerrors.CategoryValidation)
}

func TestTransferToForeignCard(t *testing.T) {
	f := newCardFixture(t)
	from := f.seedActiveCard("100.00")
	other := f.store.SeedUser(&models.User{Username: "bob", Email: "bob@example.com", Active: true})
	foreign := f.store.SeedCard(&models.Card{
		UserID:         other.ID,
		LastFour:       "9999",
		ExpirationDate: cardTestNow.AddDate(3, 0, 0),
		Status:         models.CardStatusActive,
		Balance:        decimal.Zero,
	})

	_, err := f.svc.Transfer(context.Background(), f.owner.ID, from.ID, foreign.ID, decimal.RequireFromString("10.00"), "")
	requireCategory(t, err, goerrors.CategoryNotFound)

	stored, _ := f.store.CardSnapshot(from.ID)
	assert.True(t, stored.Balance.Equal(decimal.RequireFromString("100.00")))
}

func TestGetBalance(t *testing.T) {
	f := newCardFixture(t)
	card := f.seedActiveCard("123.45")

	result, err := f.svc.GetBalance(context.Background(), f.owner.ID, card.ID)
	require.NoError(t, err)
	assert.True(t, result.Balance.Equal(decimal.RequireFromString("123.45")))
	assert.Equal(t, "**** **** **** 1234", result.MaskedNumber)
}

func TestRequestBlockFlow(t *testing.T) {
	f := newCardFixture(t)
	card := f.seedActiveCard("0.00")

	summary, err := f.svc.RequestBlock(context.Background(), f.owner.ID, card.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CardStatusBlockRequested, summary.Status)

	stored, _ := f.store.CardSnapshot(card.ID)
	assert.Equal(t, models.CardStatusBlockRequested, stored.Status)

	// The pending card refuses balance operations.
	_, err = f.svc.Deposit(context.Background(), f.owner.ID, card.ID, decimal.RequireFromString("5.00"))
	requireTextCode(t, err, models.CodeCardNotActive)

	// And refuses a second request.
	_, err = f.svc.RequestBlock(context.Background(), f.owner.ID, card.ID)
	requireTextCode(t, err, models.CodeBlockNotAllowed)
}

func TestRotateCVV(t *testing.T) {
	f := newCardFixture(t)
	material, err := f.svc.IssueCard(context.Background(), f.owner.ID)
	require.NoError(t, err)

	rotation, err := f.svc.RotateCVV(context.Background(), f.owner.ID, 1)
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^\d{3}$`), rotation.NewCVV)

	stored, _ := f.store.CardSnapshot(1)
	cvv, err := utils.Decrypt(stored.EncryptedCVV, f.key)
	require.NoError(t, err)
	assert.Equal(t, rotation.NewCVV, cvv)
	// The card number is untouched.
	number, err := utils.Decrypt(stored.EncryptedNumber, f.key)
	require.NoError(t, err)
	assert.Equal(t, material.CardNumber, number)
}

func TestListCardsPagination(t *testing.T) {
	f := newCardFixture(t)
	for i := 0; i < 3; i++ {
		f.seedActiveCard("0.00")
	}

	page, err := f.svc.ListCards(context.Background(), f.owner.ID, 0)
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, int64(3), page.TotalItems)
	assert.Equal(t, 2, page.TotalPages)

	page, err = f.svc.ListCards(context.Background(), f.owner.ID, 1)
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
}

func TestListCardsShowsExpiredStatus(t *testing.T) {
	f := newCardFixture(t)
	f.seedActiveCard("0.00")
	f.store.SeedCard(&models.Card{
		UserID:         f.owner.ID,
		LastFour:       "1234",
		ExpirationDate: cardTestNow.AddDate(0, -1, 0),
		Status:         models.CardStatusActive,
		Balance:        decimal.Zero,
	})

	page, err := f.svc.ListCards(context.Background(), f.owner.ID, 0)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, models.CardStatusActive, page.Items[0].Status)
	// Stored ACTIVE, displayed EXPIRED once the date has passed.
	assert.Equal(t, models.CardStatusExpired, page.Items[1].Status)
}
