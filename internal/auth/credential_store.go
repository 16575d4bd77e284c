package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CredentialStore persists the single linked account per provider.
type CredentialStore interface {
	Load(ctx context.Context, provider string) (Token, error)
	Save(ctx context.Context, provider string, tok Token) error
}

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgCredentialStore struct {
	pool rowQuerier
}

func NewPgCredentialStore(pool *pgxpool.Pool) *PgCredentialStore {
	if pool == nil {
		panic("auth: pgx pool required")
	}
	return &PgCredentialStore{pool: pool}
}

func newPgCredentialStoreWithExec(exec rowQuerier) *PgCredentialStore {
	return &PgCredentialStore{pool: exec}
}

func (s *PgCredentialStore) Load(ctx context.Context, provider string) (Token, error) {
	var tok Token
	err := s.pool.QueryRow(ctx, `
		SELECT access_token, refresh_token, expires_at
		FROM oauth_credentials
		WHERE provider = $1
	`, provider).Scan(&tok.AccessToken, &tok.RefreshToken, &tok.Expiry)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Token{}, ErrNoLinkedAccount
		}
		return Token{}, fmt.Errorf("load oauth credentials: %w", err)
	}
	return tok, nil
}

func (s *PgCredentialStore) Save(ctx context.Context, provider string, tok Token) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO oauth_credentials (provider, access_token, refresh_token, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (provider) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expires_at = EXCLUDED.expires_at,
			updated_at = now()
	`, provider, tok.AccessToken, tok.RefreshToken, tok.Expiry)
	if err != nil {
		return fmt.Errorf("save oauth credentials: %w", err)
	}
	return nil
}
