package service

import (
	"context"
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

type adminFixture struct {
	svc   *AdminService
	cards *CardService
	store *servicetest.Store
}

func newAdminFixture(t *testing.T) *adminFixture {
	t.Helper()
	f := &adminFixture{store: servicetest.New()}
	now := func() time.Time { return cardTestNow }
	f.cards = NewCardService(f.store, f.store, utils.DeriveKey("card-secret"), testLogger(), nil)
	f.cards.now = now
	f.svc = NewAdminService(f.store, f.store, f.cards, testLogger())
	f.svc.now = now
	return f
}

func (f *adminFixture) seedUser(username, email string) *models.User {
	return f.store.SeedUser(&models.User{
		Username: username,
		Email:    email,
		Roles:    []models.Role{models.RoleUser},
		Active:   true,
	})
}

func (f *adminFixture) seedCard(userID int64, status models.CardStatus) *models.Card {
	return f.store.SeedCard(&models.Card{
		UserID:         userID,
		LastFour:       "4321",
		ExpirationDate: cardTestNow.AddDate(3, 0, 0),
		Status:         status,
		Balance:        decimal.Zero,
	})
}

func TestApproveBlock(t *testing.T) {
	f := newAdminFixture(t)
	user := f.seedUser("alice", "alice@example.com")
	card := f.seedCard(user.ID, models.CardStatusBlockRequested)

	summary, err := f.svc.ApproveBlock(context.Background(), card.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CardStatusBlocked, summary.Status)

	stored, _ := f.store.CardSnapshot(card.ID)
	assert.Equal(t, models.CardStatusBlocked, stored.Status)
}

func TestApproveBlockWithoutRequest(t *testing.T) {
	f := newAdminFixture(t)
	user := f.seedUser("alice", "alice@example.com")
	card := f.seedCard(user.ID, models.CardStatusActive)

	_, err := f.svc.ApproveBlock(context.Background(), card.ID)
	requireTextCode(t, err, models.CodeBlockNotAllowed)

	stored, _ := f.store.CardSnapshot(card.ID)
	assert.Equal(t, models.CardStatusActive, stored.Status)
}

func TestApproveBlockUnknownCard(t *testing.T) {
	f := newAdminFixture(t)

	_, err := f.svc.ApproveBlock(context.Background(), 42)
	requireCategory(t, err, goerrors.CategoryNotFound)
}

func TestBlockAndUnblockUser(t *testing.T) {
	f := newAdminFixture(t)
	user := f.seedUser("alice", "alice@example.com")

	blocked, err := f.svc.BlockUser(context.Background(), user.ID)
	require.NoError(t, err)
	assert.False(t, blocked.Active)

	// Blocking twice is a conflict.
	_, err = f.svc.BlockUser(context.Background(), user.ID)
	requireCategory(t, err, goerrors.CategoryConflict)

	unblocked, err := f.svc.UnblockUser(context.Background(), user.ID)
	require.NoError(t, err)
	assert.True(t, unblocked.Active)

	_, err = f.svc.UnblockUser(context.Background(), user.ID)
	requireCategory(t, err, goerrors.CategoryConflict)
}

func TestBlockUserNotFound(t *testing.T) {
	f := newAdminFixture(t)

	_, err := f.svc.BlockUser(context.Background(), 42)
	requireCategory(t, err, goerrors.CategoryNotFound)
}

func TestAllCardsPagination(t *testing.T) {
	f := newAdminFixture(t)
	alice := f.seedUser("alice", "alice@example.com")
	bob := f.seedUser("bob", "bob@example.com")
	for i := 0; i < 7; i++ {
		f.seedCard(alice.ID, models.CardStatusActive)
	}
	for i := 0; i < 5; i++ {
		f.seedCard(bob.ID, models.CardStatusActive)
	}

	page, err := f.svc.AllCards(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, page.Items, 10)
	assert.Equal(t, int64(12), page.TotalItems)
	assert.Equal(t, 2, page.TotalPages)

	page, err = f.svc.AllCards(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
}

func TestAllUsers(t *testing.T) {
	f := newAdminFixture(t)
	f.seedUser("alice", "alice@example.com")
	f.seedUser("bob", "bob@example.com")

	page, err := f.svc.AllUsers(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "alice", page.Items[0].Username)
	assert.Equal(t, []models.Role{models.RoleUser}, page.Items[0].Roles)
}

func TestAdminUserByID(t *testing.T) {
	f := newAdminFixture(t)
	user := f.seedUser("alice", "alice@example.com")

	out, err := f.svc.UserByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", out.Email)
	assert.True(t, out.Active)

	_, err = f.svc.UserByID(context.Background(), 42)
	requireCategory(t, err, goerrors.CategoryNotFound)
}

func TestCreateCardForUser(t *testing.T) {
	f := newAdminFixture(t)
	user := f.seedUser("alice", "alice@example.com")

	material, err := f.svc.CreateCardForUser(context.Background(), user.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, material.CardNumber)

	stored, ok := f.store.CardSnapshot(1)
	require.True(t, ok)
	assert.Equal(t, user.ID, stored.UserID)
}

func TestAdminRotateCVV(t *testing.T) {
	f := newAdminFixture(t)
	user := f.seedUser("alice", "alice@example.com")
	_, err := f.svc.CreateCardForUser(context.Background(), user.ID)
	require.NoError(t, err)

	rotation, err := f.svc.RotateCVV(context.Background(), user.ID, 1)
	require.NoError(t, err)
	assert.Len(t, rotation.NewCVV, 3)
}
