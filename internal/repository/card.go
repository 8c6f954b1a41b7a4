package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/shopspring/decimal"

	"github.com/vchernov/bank-cards/internal/models"
)

// CreateCard creates a new card in the database
func (r *Repository) CreateCard(ctx context.Context, card *models.Card) error {
	query := `
		INSERT INTO bank.cards (user_id, number_encrypted, last_four, cvv_encrypted,
			expiration_date, status, balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		RETURNING id, created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query,
		card.UserID, card.EncryptedNumber, card.LastFour, card.EncryptedCVV,
		card.ExpirationDate, card.Status, card.Balance).
		Scan(&card.ID, &card.CreatedAt, &card.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create card: %w", err)
	}
	return nil
}

// CardByOwner retrieves a card by id scoped to its owner. A card owned by
// someone else reads the same as a card that does not exist.
func (r *Repository) CardByOwner(ctx context.Context, cardID, userID int64) (*models.Card, error) {
	return scanCard(r.db.QueryRowContext(ctx, cardSelect+` WHERE id = $1 AND user_id = $2`, cardID, userID))
}

// CardByID retrieves a card by id without an ownership scope (admin paths).
func (r *Repository) CardByID(ctx context.Context, cardID int64) (*models.Card, error) {
	return scanCard(r.db.QueryRowContext(ctx, cardSelect+` WHERE id = $1`, cardID))
}

// ListCardsByOwner returns one page of a user's cards ordered by id.
func (r *Repository) ListCardsByOwner(ctx context.Context, userID int64, page, size int) (models.Page[models.Card], error) {
	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM bank.cards WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return models.Page[models.Card]{}, fmt.Errorf("failed to count cards: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, cardSelect+` WHERE user_id = $1 ORDER BY id LIMIT $2 OFFSET $3`,
		userID, size, page*size)
	if err != nil {
		return models.Page[models.Card]{}, fmt.Errorf("failed to list cards: %w", err)
	}
	return collectCards(rows, page, size, total)
}

// ListCards returns one page of all cards ordered by id.
func (r *Repository) ListCards(ctx context.Context, page, size int) (models.Page[models.Card], error) {
	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM bank.cards`).Scan(&total); err != nil {
		return models.Page[models.Card]{}, fmt.Errorf("failed to count cards: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, cardSelect+` ORDER BY id LIMIT $1 OFFSET $2`, size, page*size)
	if err != nil {
		return models.Page[models.Card]{}, fmt.Errorf("failed to list cards: %w", err)
	}
	return collectCards(rows, page, size, total)
}

// UpdateCardCVV replaces the encrypted CVV of a card.
func (r *Repository) UpdateCardCVV(ctx context.Context, cardID int64, encryptedCVV string) (time.Time, error) {
	var updatedAt time.Time
	err := r.db.QueryRowContext(ctx, `
		UPDATE bank.cards SET cvv_encrypted = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
		RETURNING updated_at`, cardID, encryptedCVV).Scan(&updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, errCardNotFound()
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to update cvv: %w", err)
	}
	return updatedAt, nil
}

// Deposit credits amount to a card owned by userID. The card row stays
// locked from the status and expiry checks through the balance write.
func (r *Repository) Deposit(ctx context.Context, userID, cardID int64, amount decimal.Decimal, now time.Time) (*models.Card, error) {
	var card *models.Card
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		card, err = lockCard(ctx, tx, cardID, userID)
		if err != nil {
			return err
		}
		if err := card.Credit(amount, now); err != nil {
			return err
		}
		return writeBalance(ctx, tx, card)
	})
	if err != nil {
		return nil, err
	}
	return card, nil
}

// Transfer atomically debits fromID and credits toID, both owned by
// userID. Rows are locked in id order so two opposing transfers cannot
// deadlock, and the sufficient-funds check runs against the locked row.
func (r *Repository) Transfer(ctx context.Context, userID, fromID, toID int64, amount decimal.Decimal, now time.Time) (*models.Card, *models.Card, error) {
	var from, to *models.Card
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		firstID, secondID := fromID, toID
		if secondID < firstID {
			firstID, secondID = secondID, firstID
		}
		first, err := lockCard(ctx, tx, firstID, userID)
		if err != nil {
			return err
		}
		second, err := lockCard(ctx, tx, secondID, userID)
		if err != nil {
			return err
		}
		from, to = first, second
		if from.ID != fromID {
			from, to = second, first
		}

		if err := from.Debit(amount, now); err != nil {
			return err
		}
		if err := to.Credit(amount, now); err != nil {
			return err
		}
		if err := writeBalance(ctx, tx, from); err != nil {
			return err
		}
		return writeBalance(ctx, tx, to)
	})
	if err != nil {
		return nil, nil, err
	}
	return from, to, nil
}

// RequestBlock transitions a user's card to BLOCK_REQUESTED under lock.
func (r *Repository) RequestBlock(ctx context.Context, userID, cardID int64, now time.Time) (*models.Card, error) {
	var card *models.Card
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		card, err = lockCard(ctx, tx, cardID, userID)
		if err != nil {
			return err
		}
		if err := card.RequestBlock(now); err != nil {
			return err
		}
		return writeStatus(ctx, tx, card)
	})
	if err != nil {
		return nil, err
	}
	return card, nil
}

// ApproveBlock transitions a card from BLOCK_REQUESTED to BLOCKED under lock.
func (r *Repository) ApproveBlock(ctx context.Context, cardID int64) (*models.Card, error) {
	var card *models.Card
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, cardSelect+` WHERE id = $1 FOR UPDATE`, cardID)
		var err error
		card, err = scanCard(row)
		if err != nil {
			return err
		}
		if err := card.ApproveBlock(); err != nil {
			return err
		}
		return writeStatus(ctx, tx, card)
	})
	if err != nil {
		return nil, err
	}
	return card, nil
}

const cardSelect = `
	SELECT id, user_id, number_encrypted, last_four, cvv_encrypted,
		expiration_date, status, balance, created_at, updated_at
	FROM bank.cards`

func lockCard(ctx context.Context, tx *sql.Tx, cardID, userID int64) (*models.Card, error) {
	row := tx.QueryRowContext(ctx, cardSelect+` WHERE id = $1 AND user_id = $2 FOR UPDATE`, cardID, userID)
	return scanCard(row)
}

func scanCard(row rowScanner) (*models.Card, error) {
	card := &models.Card{}
	err := row.Scan(&card.ID, &card.UserID, &card.EncryptedNumber, &card.LastFour, &card.EncryptedCVV,
		&card.ExpirationDate, &card.Status, &card.Balance, &card.CreatedAt, &card.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errCardNotFound()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan card: %w", err)
	}
	return card, nil
}

func collectCards(rows *sql.Rows, page, size int, total int64) (models.Page[models.Card], error) {
	defer rows.Close()
	var cards []models.Card
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return models.Page[models.Card]{}, err
		}
		cards = append(cards, *card)
	}
	if err := rows.Err(); err != nil {
		return models.Page[models.Card]{}, fmt.Errorf("failed to list cards: %w", err)
	}
	return models.NewPage(cards, page, size, total), nil
}

func writeBalance(ctx context.Context, tx *sql.Tx, card *models.Card) error {
	err := tx.QueryRowContext(ctx, `
		UPDATE bank.cards SET balance = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
		RETURNING updated_at`, card.ID, card.Balance).Scan(&card.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	return nil
}

func writeStatus(ctx context.Context, tx *sql.Tx, card *models.Card) error {
	err := tx.QueryRowContext(ctx, `
		UPDATE bank.cards SET status = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
		RETURNING updated_at`, card.ID, card.Status).Scan(&card.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	return nil
}

func errCardNotFound() error {
	return goerrors.New("card not found or does not belong to the specified user", goerrors.CategoryNotFound).
		WithCode(goerrors.CodeNotFound)
}
