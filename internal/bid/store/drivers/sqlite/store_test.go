package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/blender-id/bid/internal/bid/domain"
	"github.com/blender-id/bid/internal/bid/store"
	"github.com/blender-id/bid/pkg/idx"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Store {
	t.Helper()

	st, err := NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.ApplyMigrations())
	return st
}

func insertUser(t *testing.T, st store.Store, email string) domain.User {
	t.Helper()

	u := domain.User{
		ID:           idx.New().String(),
		Email:        email,
		FullName:     "Some User",
		PasswordHash: "not-a-real-hash",
		IsActive:     true,
	}
	require.NoError(t, st.Users().CreateUser(context.Background(), u))
	return u
}

func insertRole(t *testing.T, st store.Store, name string) domain.Role {
	t.Helper()

	r := domain.Role{ID: idx.New().String(), Name: name, IsActive: true, IsBadge: true, IsPublic: true}
	require.NoError(t, st.Roles().CreateRole(context.Background(), r))
	return r
}

func insertApplication(t *testing.T, st store.Store) domain.Application {
	t.Helper()

	a := domain.Application{
		ID:       idx.New().String(),
		ClientID: "blender-addon",
		Name:     "Blender Add-on",
		Scopes:   []string{"badger", "profile"},
	}
	require.NoError(t, st.Applications().CreateApplication(context.Background(), a))
	return a
}

func TestUsersRepo(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	user := insertUser(t, st, "ton@blender.example")

	t.Run("round-trips by id and email", func(t *testing.T) {
		byID, err := st.Users().GetUserByID(ctx, user.ID)
		require.NoError(t, err)
		require.Equal(t, user.Email, byID.Email)
		require.True(t, byID.IsActive)

		byEmail, err := st.Users().GetUserByEmail(ctx, user.Email)
		require.NoError(t, err)
		require.Equal(t, user.ID, byEmail.ID)
	})

	t.Run("missing user maps to ErrNotFound", func(t *testing.T) {
		_, err := st.Users().GetUserByEmail(ctx, "ghost@blender.example")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("duplicate email is rejected", func(t *testing.T) {
		err := st.Users().CreateUser(ctx, domain.User{
			ID:           idx.New().String(),
			Email:        user.Email,
			PasswordHash: "hash",
		})
		require.Error(t, err)
	})

	t.Run("RecordLogin bumps count and stores the ip", func(t *testing.T) {
		require.NoError(t, st.Users().RecordLogin(ctx, user.ID, "203.0.113.7"))
		require.NoError(t, st.Users().RecordLogin(ctx, user.ID, "203.0.113.8"))

		got, err := st.Users().GetUserByID(ctx, user.ID)
		require.NoError(t, err)
		require.EqualValues(t, 2, got.LoginCount)
		require.Equal(t, "203.0.113.8", got.LastLoginIP)
	})

	t.Run("SetActive flips the flag", func(t *testing.T) {
		require.NoError(t, st.Users().SetActive(ctx, user.ID, false))
		got, err := st.Users().GetUserByID(ctx, user.ID)
		require.NoError(t, err)
		require.False(t, got.IsActive)

		require.NoError(t, st.Users().SetActive(ctx, user.ID, true))
	})

	t.Run("role membership edges", func(t *testing.T) {
		role := insertRole(t, st, "cloud_demo")

		has, err := st.Users().HasRole(ctx, user.ID, role.ID)
		require.NoError(t, err)
		require.False(t, has)

		require.NoError(t, st.Users().AddRole(ctx, user.ID, role.ID))

		has, err = st.Users().HasRole(ctx, user.ID, role.ID)
		require.NoError(t, err)
		require.True(t, has)

		roles, err := st.Users().ListRoles(ctx, user.ID)
		require.NoError(t, err)
		require.Len(t, roles, 1)
		require.Equal(t, "cloud_demo", roles[0].Name)

		require.NoError(t, st.Users().RemoveRole(ctx, user.ID, role.ID))
		roles, err = st.Users().ListRoles(ctx, user.ID)
		require.NoError(t, err)
		require.Empty(t, roles)
	})
}

func TestRolesRepo(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	badge := insertRole(t, st, "cloud_demo")
	manager := insertRole(t, st, "badger_cloud")

	t.Run("lookup by name", func(t *testing.T) {
		got, err := st.Roles().GetRoleByName(ctx, "cloud_demo")
		require.NoError(t, err)
		require.Equal(t, badge.ID, got.ID)

		_, err = st.Roles().GetRoleByName(ctx, "nope")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("managed role edges", func(t *testing.T) {
		managed, err := st.Roles().ListManagedRoles(ctx, manager.ID)
		require.NoError(t, err)
		require.Empty(t, managed)

		require.NoError(t, st.Roles().AddManagedRole(ctx, manager.ID, badge.ID))

		managed, err = st.Roles().ListManagedRoles(ctx, manager.ID)
		require.NoError(t, err)
		require.Len(t, managed, 1)
		require.Equal(t, "cloud_demo", managed[0].Name)

		// The edge is directed: the badge manages nothing.
		managed, err = st.Roles().ListManagedRoles(ctx, badge.ID)
		require.NoError(t, err)
		require.Empty(t, managed)

		require.NoError(t, st.Roles().RemoveManagedRole(ctx, manager.ID, badge.ID))
		managed, err = st.Roles().ListManagedRoles(ctx, manager.ID)
		require.NoError(t, err)
		require.Empty(t, managed)
	})

	t.Run("ListAll returns every role", func(t *testing.T) {
		all, err := st.Roles().ListAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)
	})
}

func TestApplicationsRepo(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	app := insertApplication(t, st)

	got, err := st.Applications().GetApplicationByClientID(ctx, "blender-addon")
	require.NoError(t, err)
	require.Equal(t, app.ID, got.ID)
	require.Equal(t, []string{"badger", "profile"}, got.Scopes)

	_, err = st.Applications().GetApplicationByClientID(ctx, "unknown")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestAccessTokensCompositeKey(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	user := insertUser(t, st, "artist@blender.example")
	app := insertApplication(t, st)

	primary := domain.AccessToken{
		ID:            idx.New().String(),
		TokenHash:     "fingerprint-1",
		UserID:        user.ID,
		ApplicationID: app.ID,
		Scopes:        []string{"badger"},
		HostLabel:     "workstation",
		ExpiresAt:     time.Now().Add(time.Hour),
	}
	require.NoError(t, st.AccessTokens().CreateAccessToken(ctx, primary))

	delegated := primary
	delegated.ID = idx.New().String()
	delegated.Subclient = "flamenco"
	require.NoError(t, st.AccessTokens().CreateAccessToken(ctx, delegated))

	t.Run("same fingerprint resolves per subclient", func(t *testing.T) {
		got, err := st.AccessTokens().GetAccessToken(ctx, "fingerprint-1", "")
		require.NoError(t, err)
		require.Equal(t, primary.ID, got.ID)
		require.Equal(t, []string{"badger"}, got.Scopes)

		got, err = st.AccessTokens().GetAccessToken(ctx, "fingerprint-1", "flamenco")
		require.NoError(t, err)
		require.Equal(t, delegated.ID, got.ID)
	})

	t.Run("wrong subclient is not found", func(t *testing.T) {
		_, err := st.AccessTokens().GetAccessToken(ctx, "fingerprint-1", "cloud")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("duplicate (hash, subclient) pair is rejected", func(t *testing.T) {
		dup := primary
		dup.ID = idx.New().String()
		require.Error(t, st.AccessTokens().CreateAccessToken(ctx, dup))
	})

	t.Run("deletion removes the row", func(t *testing.T) {
		require.NoError(t, st.AccessTokens().DeleteAccessToken(ctx, delegated.ID))
		_, err := st.AccessTokens().GetAccessToken(ctx, "fingerprint-1", "flamenco")
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestHousekeepingQueries(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	user := insertUser(t, st, "artist@blender.example")
	app := insertApplication(t, st)

	live := domain.AccessToken{
		ID:            idx.New().String(),
		TokenHash:     "live-token",
		UserID:        user.ID,
		ApplicationID: app.ID,
		ExpiresAt:     time.Now().Add(time.Hour),
	}
	expired := domain.AccessToken{
		ID:            idx.New().String(),
		TokenHash:     "expired-token",
		UserID:        user.ID,
		ApplicationID: app.ID,
		ExpiresAt:     time.Now().Add(-time.Hour),
	}
	require.NoError(t, st.AccessTokens().CreateAccessToken(ctx, live))
	require.NoError(t, st.AccessTokens().CreateAccessToken(ctx, expired))

	for i, accessID := range []string{live.ID, expired.ID} {
		require.NoError(t, st.RefreshTokens().CreateRefreshToken(ctx, domain.RefreshToken{
			ID:            idx.New().String(),
			TokenHash:     "refresh-" + string(rune('a'+i)),
			UserID:        user.ID,
			ApplicationID: app.ID,
			AccessTokenID: accessID,
		}))
	}

	require.NoError(t, st.AccessTokens().DeleteExpiredAccessTokens(ctx))

	_, err := st.AccessTokens().GetAccessToken(ctx, "expired-token", "")
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = st.AccessTokens().GetAccessToken(ctx, "live-token", "")
	require.NoError(t, err)

	// The expired token's refresh pair is now orphaned and gets swept.
	require.NoError(t, st.RefreshTokens().DeleteOrphanedRefreshTokens(ctx))

	var remaining int
	require.NoError(t, st.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM refresh_tokens`).Scan(&remaining))
	require.Equal(t, 1, remaining)
}

func TestAuditRepo(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	actor := insertUser(t, st, "badger@blender.example")
	target := insertUser(t, st, "target@blender.example")

	entries, err := st.Audit().ListByTarget(ctx, target.ID)
	require.NoError(t, err)
	require.Empty(t, entries)

	for _, action := range []string{domain.AuditActionGrant, domain.AuditActionRevoke} {
		require.NoError(t, st.Audit().Append(ctx, domain.AuditEntry{
			ID:           idx.New().String(),
			ActorUserID:  actor.ID,
			TargetUserID: target.ID,
			RoleName:     "cloud_demo",
			Action:       action,
			Message:      action + " badge cloud_demo",
		}))
	}

	entries, err = st.Audit().ListByTarget(ctx, target.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		require.Equal(t, actor.ID, e.ActorUserID)
		require.Equal(t, "cloud_demo", e.RoleName)
		require.NotEmpty(t, e.Message)
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	sentinel := errors.New("boom")
	err := st.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().CreateUser(ctx, domain.User{
			ID:           idx.New().String(),
			Email:        "rollback@blender.example",
			PasswordHash: "hash",
		}); err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	_, err = st.Users().GetUserByEmail(ctx, "rollback@blender.example")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestWithTxCommits(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	require.NoError(t, st.WithTx(ctx, func(tx store.Tx) error {
		return tx.Users().CreateUser(ctx, domain.User{
			ID:           idx.New().String(),
			Email:        "commit@blender.example",
			PasswordHash: "hash",
		})
	}))

	_, err := st.Users().GetUserByEmail(ctx, "commit@blender.example")
	require.NoError(t, err)
}
