package sqlite

import (
	"context"
	"time"

	"github.com/blender-id/bid/internal/bid/domain"
)

type accessTokensRepo struct {
	db dbtx
}

func (r *accessTokensRepo) CreateAccessToken(ctx context.Context, t domain.AccessToken) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO access_tokens (id, token_hash, user_id, application_id, scopes, host_label, subclient, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.TokenHash, t.UserID, t.ApplicationID, joinScopes(t.Scopes),
		t.HostLabel, t.Subclient, t.ExpiresAt.UTC(), time.Now().UTC())
	return err
}

func (r *accessTokensRepo) GetAccessToken(ctx context.Context, tokenHash, subclient string) (domain.AccessToken, error) {
	var (
		t      domain.AccessToken
		scopes string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, token_hash, user_id, application_id, scopes, host_label, subclient, expires_at, created_at
		 FROM access_tokens WHERE token_hash = ? AND subclient = ?`,
		tokenHash, subclient).
		Scan(&t.ID, &t.TokenHash, &t.UserID, &t.ApplicationID, &scopes,
			&t.HostLabel, &t.Subclient, &t.ExpiresAt, &t.CreatedAt)
	if err != nil {
		return domain.AccessToken{}, mapNotFound(err)
	}
	t.Scopes = splitScopes(scopes)
	return t, nil
}

func (r *accessTokensRepo) DeleteAccessToken(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM access_tokens WHERE id = ?`, id)
	return err
}

func (r *accessTokensRepo) DeleteExpiredAccessTokens(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM access_tokens WHERE expires_at < ?`, time.Now().UTC())
	return err
}

type refreshTokensRepo struct {
	db dbtx
}

func (r *refreshTokensRepo) CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (id, token_hash, user_id, application_id, access_token_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.TokenHash, t.UserID, t.ApplicationID, t.AccessTokenID, time.Now().UTC())
	return err
}

func (r *refreshTokensRepo) DeleteRefreshTokensForAccessToken(ctx context.Context, accessTokenID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE access_token_id = ?`, accessTokenID)
	return err
}

func (r *refreshTokensRepo) DeleteOrphanedRefreshTokens(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens
		 WHERE access_token_id != ''
		   AND access_token_id NOT IN (SELECT id FROM access_tokens)`)
	return err
}
