// Package servicetest provides an in-memory implementation of the
// service store interfaces for tests.
package servicetest

import (
	"context"
	"sort"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/shopspring/decimal"

	"github.com/vchernov/bank-cards/internal/models"
)

// Store is a mutex-guarded in-memory stand-in for the repository. Its
// atomic operations hold the lock across all guards and mutations,
// matching the transactional repository behavior.
type Store struct {
	mu         sync.Mutex
	users      map[int64]*models.User
	cards      map[int64]*models.Card
	tokens     map[string]*models.Token
	nextUserID int64
	nextCardID int64
	nextTokID  int64
}

// New creates an empty store.
func New() *Store {
	return &Store{
		users:  make(map[int64]*models.User),
		cards:  make(map[int64]*models.Card),
		tokens: make(map[string]*models.Token),
	}
}

// SeedCard inserts a card directly, for test arrangement.
func (s *Store) SeedCard(card *models.Card) *models.Card {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextCardID++
	card.ID = s.nextCardID
	cp := *card
	s.cards[card.ID] = &cp
	return card
}

// SeedUser inserts a user directly, for test arrangement.
func (s *Store) SeedUser(user *models.User) *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextUserID++
	user.ID = s.nextUserID
	user.CreatedAt = time.Now()
	cp := *user
	s.users[user.ID] = &cp
	return user
}

// TokensForUser returns copies of the user's ledger rows.
func (s *Store) TokensForUser(userID int64) []models.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Token
	for _, t := range s.tokens {
		if t.UserID == userID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CardSnapshot returns a copy of a stored card.
func (s *Store) CardSnapshot(cardID int64) (models.Card, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cards[cardID]
	if !ok {
		return models.Card{}, false
	}
	return *c, true
}

// UserStore implementation.

func (s *Store) CreateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == user.Email {
			return goerrors.New("email already exists", goerrors.CategoryConflict).
				WithCode(goerrors.CodeConflict)
		}
		if u.Username == user.Username {
			return goerrors.New("username already exists", goerrors.CategoryConflict).
				WithCode(goerrors.CodeConflict)
		}
	}
	s.nextUserID++
	user.ID = s.nextUserID
	user.CreatedAt = time.Now()
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

func (s *Store) UserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, errNotFound("user not found")
}

func (s *Store) UserByID(_ context.Context, id int64) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, errNotFound("user not found")
	}
	cp := *u
	return &cp, nil
}

func (s *Store) ExistsByEmail(_ context.Context, email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ExistsByUsername(_ context.Context, username string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ListUsers(_ context.Context, page, size int) (models.Page[models.User], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		all = append(all, *u)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return models.NewPage(slicePage(all, page, size), page, size, int64(len(all))), nil
}

func (s *Store) SetUserActive(_ context.Context, id int64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return errNotFound("user not found")
	}
	u.Active = active
	return nil
}

// CardStore implementation.

func (s *Store) CreateCard(_ context.Context, card *models.Card) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextCardID++
	card.ID = s.nextCardID
	card.CreatedAt = time.Now()
	card.UpdatedAt = card.CreatedAt
	cp := *card
	s.cards[card.ID] = &cp
	return nil
}

func (s *Store) CardByOwner(_ context.Context, cardID, userID int64) (*models.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cardByOwnerLocked(cardID, userID)
}

func (s *Store) CardByID(_ context.Context, cardID int64) (*models.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cards[cardID]
	if !ok {
		return nil, errNotFound("card not found or does not belong to the specified user")
	}
	cp := *c
	return &cp, nil
}

func (s *Store) ListCardsByOwner(_ context.Context, userID int64, page, size int) (models.Page[models.Card], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []models.Card
	for _, c := range s.cards {
		if c.UserID == userID {
			all = append(all, *c)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return models.NewPage(slicePage(all, page, size), page, size, int64(len(all))), nil
}

func (s *Store) ListCards(_ context.Context, page, size int) (models.Page[models.Card], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make([]models.Card, 0, len(s.cards))
	for _, c := range s.cards {
		all = append(all, *c)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return models.NewPage(slicePage(all, page, size), page, size, int64(len(all))), nil
}

func (s *Store) UpdateCardCVV(_ context.Context, cardID int64, encryptedCVV string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cards[cardID]
	if !ok {
		return time.Time{}, errNotFound("card not found or does not belong to the specified user")
	}
	c.EncryptedCVV = encryptedCVV
	c.UpdatedAt = time.Now()
	return c.UpdatedAt, nil
}

func (s *Store) Deposit(_ context.Context, userID, cardID int64, amount decimal.Decimal, now time.Time) (*models.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	card, err := s.cardByOwnerLocked(cardID, userID)
	if err != nil {
		return nil, err
	}
	if err := card.Credit(amount, now); err != nil {
		return nil, err
	}
	card.UpdatedAt = now
	s.cards[card.ID] = card
	cp := *card
	return &cp, nil
}

func (s *Store) Transfer(_ context.Context, userID, fromID, toID int64, amount decimal.Decimal, now time.Time) (*models.Card, *models.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	from, err := s.cardByOwnerLocked(fromID, userID)
	if err != nil {
		return nil, nil, err
	}
	to, err := s.cardByOwnerLocked(toID, userID)
	if err != nil {
		return nil, nil, err
	}
	if err := from.Debit(amount, now); err != nil {
		return nil, nil, err
	}
	if err := to.Credit(amount, now); err != nil {
		return nil, nil, err
	}
	from.UpdatedAt = now
	to.UpdatedAt = now
	s.cards[from.ID] = from
	s.cards[to.ID] = to
	fromCp, toCp := *from, *to
	return &fromCp, &toCp, nil
}

func (s *Store) RequestBlock(_ context.Context, userID, cardID int64, now time.Time) (*models.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	card, err := s.cardByOwnerLocked(cardID, userID)
	if err != nil {
		return nil, err
	}
	if err := card.RequestBlock(now); err != nil {
		return nil, err
	}
	card.UpdatedAt = now
	s.cards[card.ID] = card
	cp := *card
	return &cp, nil
}

func (s *Store) ApproveBlock(_ context.Context, cardID int64) (*models.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cards[cardID]
	if !ok {
		return nil, errNotFound("card not found or does not belong to the specified user")
	}
	card := *c
	if err := card.ApproveBlock(); err != nil {
		return nil, err
	}
	card.UpdatedAt = time.Now()
	s.cards[card.ID] = &card
	cp := card
	return &cp, nil
}

// cardByOwnerLocked returns a copy; callers persist mutations by writing
// the copy back, so failed guards leave the stored card untouched.
func (s *Store) cardByOwnerLocked(cardID, userID int64) (*models.Card, error) {
	c, ok := s.cards[cardID]
	if !ok || c.UserID != userID {
		return nil, errNotFound("card not found or does not belong to the specified user")
	}
	cp := *c
	return &cp, nil
}

// TokenStore implementation.

func (s *Store) SaveTokens(_ context.Context, tokens ...*models.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveTokensLocked(tokens)
	return nil
}

func (s *Store) TokenByValue(_ context.Context, value string) (*models.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[value]
	if !ok {
		return nil, errTokenInvalid()
	}
	cp := *t
	return &cp, nil
}

func (s *Store) RotateTokens(_ context.Context, userID int64, presented string, replacements ...*models.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if presented != "" {
		t, ok := s.tokens[presented]
		if !ok {
			return errTokenInvalid()
		}
		if !t.Live() {
			return goerrors.New("token has been superseded by a later session", goerrors.CategoryAuth).
				WithCode(goerrors.CodeUnauthorized)
		}
	}
	for _, t := range s.tokens {
		if t.UserID == userID && !t.Revoked {
			t.Expired = true
			t.Revoked = true
		}
	}
	s.saveTokensLocked(replacements)
	return nil
}

func (s *Store) RevokeToken(_ context.Context, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[value]
	if !ok {
		return errTokenInvalid()
	}
	t.Expired = true
	t.Revoked = true
	return nil
}

func (s *Store) ExpireTokens(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, t := range s.tokens {
		if !t.Expired && t.ExpiresAt.Before(now) {
			t.Expired = true
			n++
		}
	}
	return n, nil
}

func (s *Store) saveTokensLocked(tokens []*models.Token) {
	for _, t := range tokens {
		s.nextTokID++
		t.ID = s.nextTokID
		t.CreatedAt = time.Now()
		cp := *t
		s.tokens[t.Token] = &cp
	}
}

func slicePage[T any](all []T, page, size int) []T {
	start := page * size
	if start >= len(all) {
		return nil
	}
	end := start + size
	if end > len(all) {
		end = len(all)
	}
	return all[start:end]
}

func errNotFound(msg string) error {
	return goerrors.New(msg, goerrors.CategoryNotFound).
		WithCode(goerrors.CodeNotFound)
}

func errTokenInvalid() error {
	return goerrors.New("token is not valid or has been revoked", goerrors.CategoryAuth).
		WithCode(goerrors.CodeUnauthorized)
}
