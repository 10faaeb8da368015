package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/blender-id/bid/internal/bid/domain"
	"github.com/blender-id/bid/internal/bid/obs"
	"github.com/blender-id/bid/internal/bid/store"
	"github.com/blender-id/bid/pkg/cryptox"
	"github.com/blender-id/bid/pkg/idx"
	"github.com/blender-id/bid/pkg/slogx"
)

// DefaultTokenTTL is how long an issued access token stays valid. The
// consuming desktop add-on has no refresh flow in active use, so tokens are
// deliberately long-lived.
const DefaultTokenTTL = 365 * 24 * time.Hour

var (
	// ErrInvalidCredentials covers bad email, bad password, and inactive
	// accounts alike; callers must not be able to tell which.
	ErrInvalidCredentials = errors.New("invalid_credentials")

	// ErrTokenInvalid is the uniform signal for not-found, expired, and
	// subclient-mismatched tokens. The reasons are distinguishable in logs
	// but never in the error returned.
	ErrTokenInvalid = errors.New("invalid_token")

	// ErrNotOwner reports that a token exists but belongs to a different
	// user than the caller asserted.
	ErrNotOwner = errors.New("token_not_owned")
)

// TokenService issues, validates, and revokes the opaque bearer tokens used
// by the first-party desktop add-on. All tokens are bound to the single
// configured add-on application, resolved once at startup; a missing record
// is a deployment error surfaced at boot, never per request.
type TokenService struct {
	Store       store.Store
	Application domain.Application
	TokenTTL    time.Duration
}

func (s *TokenService) ttl() time.Duration {
	if s.TokenTTL > 0 {
		return s.TokenTTL
	}
	return DefaultTokenTTL
}

// Authenticate verifies an email/password pair and returns the matching
// active user. Every failure mode maps to ErrInvalidCredentials.
func (s *TokenService) Authenticate(ctx context.Context, email, password string) (domain.User, error) {
	l := slogx.FromContext(ctx)

	email = domain.NormalizeEmail(email)
	if email == "" || len(email) > domain.MaxEmailLength || password == "" {
		return domain.User{}, ErrInvalidCredentials
	}

	user, err := s.Store.Users().GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Burn comparable time so a missing account is not
			// distinguishable from a wrong password by latency.
			_ = cryptox.VerifyPassword(password, cryptox.DummyHash())
			l.Info("authentication failed, unknown email", slog.String("email", email))
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, err
	}

	if err := cryptox.VerifyPassword(password, user.PasswordHash); err != nil {
		l.Info("authentication failed, bad password", slog.String("email", email))
		return domain.User{}, ErrInvalidCredentials
	}

	if !user.IsActive {
		l.Info("authentication failed, inactive account", slog.String("email", email))
		return domain.User{}, ErrInvalidCredentials
	}

	return user, nil
}

// IssuePrimary creates a primary access+refresh token pair for an
// authenticated user and records the login metadata, all in one transaction.
// hostLabel is free-text bookkeeping describing the client installation.
func (s *TokenService) IssuePrimary(ctx context.Context, user domain.User, hostLabel, remoteIP string) (domain.TokenPair, error) {
	var pair domain.TokenPair

	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		pair, err = s.createTokens(ctx, tx, user, hostLabel, "")
		if err != nil {
			return err
		}
		return tx.Users().RecordLogin(ctx, user.ID, remoteIP)
	})
	if err != nil {
		return domain.TokenPair{}, err
	}

	obs.CountTokenIssued("primary")
	return pair, nil
}

// IssueSubclient creates a delegated token scoped to a named downstream
// integration. The token shares lineage with the user's primary session but
// validates only when presented with exactly the same subclient id.
func (s *TokenService) IssueSubclient(ctx context.Context, user domain.User, subclient, hostLabel string) (domain.TokenPair, error) {
	var pair domain.TokenPair

	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		pair, err = s.createTokens(ctx, tx, user, hostLabel, subclient)
		return err
	})
	if err != nil {
		return domain.TokenPair{}, err
	}

	obs.CountTokenIssued("subclient")
	return pair, nil
}

// createTokens generates both opaque token strings and persists their
// records. Only fingerprints hit the database; the plaintext tokens exist in
// the returned pair and nowhere else.
func (s *TokenService) createTokens(ctx context.Context, tx store.Tx, user domain.User, hostLabel, subclient string) (domain.TokenPair, error) {
	now := time.Now()
	expires := now.Add(s.ttl())

	accessOpaque, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return domain.TokenPair{}, err
	}
	refreshOpaque, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return domain.TokenPair{}, err
	}

	access := domain.AccessToken{
		ID:            idx.New().String(),
		TokenHash:     cryptox.FingerprintToken(accessOpaque),
		UserID:        user.ID,
		ApplicationID: s.Application.ID,
		Scopes:        s.Application.Scopes,
		HostLabel:     hostLabel,
		Subclient:     subclient,
		ExpiresAt:     expires,
	}
	if err := tx.AccessTokens().CreateAccessToken(ctx, access); err != nil {
		return domain.TokenPair{}, err
	}

	refresh := domain.RefreshToken{
		ID:            idx.New().String(),
		TokenHash:     cryptox.FingerprintToken(refreshOpaque),
		UserID:        user.ID,
		ApplicationID: s.Application.ID,
		AccessTokenID: access.ID,
	}
	if err := tx.RefreshTokens().CreateRefreshToken(ctx, refresh); err != nil {
		return domain.TokenPair{}, err
	}

	return domain.TokenPair{
		AccessToken:  accessOpaque,
		RefreshToken: refreshOpaque,
		Expires:      expires,
	}, nil
}

// Validate looks up a presented token by its (fingerprint, subclient) pair
// and returns the owning user plus the stored token record.
//
// A primary token never validates against a non-empty subclient and vice
// versa; the pair is the lookup key, not the token string alone. When
// expectedUserID is non-empty the caller is asserting ownership, and a
// mismatch returns ErrNotOwner instead of the uniform ErrTokenInvalid.
// Validation never extends expiry.
func (s *TokenService) Validate(ctx context.Context, token, subclient, expectedUserID string) (domain.User, domain.AccessToken, error) {
	l := slogx.FromContext(ctx)

	access, err := s.Store.AccessTokens().GetAccessToken(ctx, cryptox.FingerprintToken(token), subclient)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			l.Debug("token not found in database")
			obs.CountTokenValidation("invalid")
			return domain.User{}, domain.AccessToken{}, ErrTokenInvalid
		}
		obs.CountTokenValidation("error")
		return domain.User{}, domain.AccessToken{}, err
	}

	if expectedUserID != "" && access.UserID != expectedUserID {
		l.Warn("token ownership mismatch",
			slog.String("owner_id", access.UserID),
			slog.String("asserted_id", expectedUserID),
		)
		obs.CountTokenValidation("mismatch")
		return domain.User{}, domain.AccessToken{}, ErrNotOwner
	}

	if access.Expired(time.Now()) {
		l.Debug("token found but expired")
		obs.CountTokenValidation("invalid")
		return domain.User{}, domain.AccessToken{}, ErrTokenInvalid
	}

	user, err := s.Store.Users().GetUserByID(ctx, access.UserID)
	if err != nil {
		obs.CountTokenValidation("error")
		return domain.User{}, domain.AccessToken{}, err
	}

	obs.CountTokenValidation("ok")
	return user, access, nil
}

// Revoke deletes the (token, subclient) record and its paired refresh
// tokens, after confirming the token belongs to userID. Revoking a token
// that no longer exists is an idempotent success; an ownership mismatch is
// ErrNotOwner and leaves the token intact.
func (s *TokenService) Revoke(ctx context.Context, userID, token, subclient string) error {
	l := slogx.FromContext(ctx)

	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		access, err := tx.AccessTokens().GetAccessToken(ctx, cryptox.FingerprintToken(token), subclient)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				l.Debug("revoke of unknown token is a no-op", slog.String("user_id", userID))
				return nil
			}
			return err
		}

		if access.UserID != userID {
			l.Warn("revoke refused, token owned by another user",
				slog.String("owner_id", access.UserID),
				slog.String("caller_id", userID),
			)
			return ErrNotOwner
		}

		if err := tx.RefreshTokens().DeleteRefreshTokensForAccessToken(ctx, access.ID); err != nil {
			return err
		}
		return tx.AccessTokens().DeleteAccessToken(ctx, access.ID)
	})
}
