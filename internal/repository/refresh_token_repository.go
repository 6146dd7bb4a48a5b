package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/casetrack/casetrack/internal/domain"
)

// RefreshTokenRepository tracks issued refresh tokens by their jti.
type RefreshTokenRepository interface {
	Create(ctx context.Context, token *domain.RefreshToken) error
	GetByTokenID(ctx context.Context, tokenID string) (*domain.RefreshToken, error)
	DeleteByTokenID(ctx context.Context, tokenID string) error
	DeleteByUser(ctx context.Context, userID string) (int64, error)
	DeleteExpired(ctx context.Context) (int64, error)
}

type refreshTokenRepository struct {
	db DBTX
}

// NewRefreshTokenRepository returns a Postgres-backed implementation.
func NewRefreshTokenRepository(db DBTX) RefreshTokenRepository {
	return &refreshTokenRepository{db: db}
}

func (r *refreshTokenRepository) Create(ctx context.Context, token *domain.RefreshToken) error {
	const query = `
        INSERT INTO refresh_tokens (user_id, token_id, expires_at)
        VALUES ($1, $2, $3)
        RETURNING id, created_at`
	err := r.db.QueryRow(ctx, query, token.UserID, token.TokenID, token.ExpiresAt).
		Scan(&token.ID, &token.CreatedAt)
	return translate(err)
}

func (r *refreshTokenRepository) GetByTokenID(ctx context.Context, tokenID string) (*domain.RefreshToken, error) {
	const query = `
        SELECT id, user_id, token_id, expires_at, created_at
        FROM refresh_tokens WHERE token_id=$1`

	var t domain.RefreshToken
	if err := r.db.QueryRow(ctx, query, tokenID).Scan(
		&t.ID,
		&t.UserID,
		&t.TokenID,
		&t.ExpiresAt,
		&t.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *refreshTokenRepository) DeleteByTokenID(ctx context.Context, tokenID string) error {
	cmd, err := r.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE token_id=$1`, tokenID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *refreshTokenRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	cmd, err := r.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE user_id=$1`, userID)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *refreshTokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	cmd, err := r.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at < NOW()`)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
