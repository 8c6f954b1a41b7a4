package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/vchernov/bank-cards/internal/models"
)

// SaveTokens appends rows to the revocation ledger.
func (r *Repository) SaveTokens(ctx context.Context, tokens ...*models.Token) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		return insertTokens(ctx, tx, tokens)
	})
}

// TokenByValue retrieves a ledger row by its opaque signed string.
func (r *Repository) TokenByValue(ctx context.Context, value string) (*models.Token, error) {
	row := r.db.QueryRowContext(ctx, tokenSelect+` WHERE token = $1`, value)
	return scanToken(row)
}

// RotateTokens revokes every live token of the user and appends the
// replacement pair, all in one transaction holding the user row lock. If
// presented is non-empty it must still be a live row at that point;
// otherwise the rotation fails, so two refreshes racing each other cannot
// both redeem the same credential.
func (r *Repository) RotateTokens(ctx context.Context, userID int64, presented string, replacements ...*models.Token) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		var locked int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM bank.users WHERE id = $1 FOR UPDATE`, userID).Scan(&locked)
		if errors.Is(err, sql.ErrNoRows) {
			return errUserNotFound()
		}
		if err != nil {
			return fmt.Errorf("failed to lock user: %w", err)
		}

		if presented != "" {
			row := tx.QueryRowContext(ctx, tokenSelect+` WHERE token = $1 FOR UPDATE`, presented)
			stored, err := scanToken(row)
			if err != nil {
				return err
			}
			if !stored.Live() {
				return errTokenSuperseded()
			}
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE bank.tokens SET expired = TRUE, revoked = TRUE
			WHERE user_id = $1 AND revoked = FALSE`, userID); err != nil {
			return fmt.Errorf("failed to revoke tokens: %w", err)
		}

		return insertTokens(ctx, tx, replacements)
	})
}

// RevokeToken flags a single ledger row as expired and revoked.
func (r *Repository) RevokeToken(ctx context.Context, value string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE bank.tokens SET expired = TRUE, revoked = TRUE WHERE token = $1`, value)
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	if n == 0 {
		return errTokenNotFound()
	}
	return nil
}

// ExpireTokens marks rows whose embedded expiry has passed. Validity
// checks would reject them anyway; this keeps the ledger flags in step
// with the clock.
func (r *Repository) ExpireTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE bank.tokens SET expired = TRUE
		WHERE expired = FALSE AND expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire tokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to expire tokens: %w", err)
	}
	return n, nil
}

const tokenSelect = `
	SELECT id, user_id, token, token_type, expires_at, expired, revoked, created_at
	FROM bank.tokens`

func insertTokens(ctx context.Context, tx *sql.Tx, tokens []*models.Token) error {
	for _, t := range tokens {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO bank.tokens (user_id, token, token_type, expires_at, expired, revoked, created_at)
			VALUES ($1, $2, $3, $4, FALSE, FALSE, CURRENT_TIMESTAMP)
			RETURNING id, created_at`,
			t.UserID, t.Token, t.TokenType, t.ExpiresAt).
			Scan(&t.ID, &t.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to save token: %w", err)
		}
	}
	return nil
}

func scanToken(row rowScanner) (*models.Token, error) {
	t := &models.Token{}
	err := row.Scan(&t.ID, &t.UserID, &t.Token, &t.TokenType, &t.ExpiresAt, &t.Expired, &t.Revoked, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errTokenNotFound()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan token: %w", err)
	}
	return t, nil
}

func errTokenNotFound() error {
	return goerrors.New("token is not valid or has been revoked", goerrors.CategoryAuth).
		WithCode(goerrors.CodeUnauthorized)
}

func errTokenSuperseded() error {
	return goerrors.New("token has been superseded by a later session", goerrors.CategoryAuth).
		WithCode(goerrors.CodeUnauthorized)
}
