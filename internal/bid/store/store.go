package store

import (
	"context"
	"errors"

	"github.com/blender-id/bid/internal/bid/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite for now)
// implement this. It exposes sub-repositories to keep concerns tidy and
// testable, and a transaction entry point for operations that must be atomic
// (token issuance writes two rows, the badger engine does read-decide-write
// plus an audit append).
type Store interface {
	Users() Users
	Roles() Roles
	Applications() Applications
	AccessTokens() AccessTokens
	RefreshTokens() RefreshTokens
	Audit() Audit

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise it is committed. This is the
	// recommended way to handle transactions.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByEmail looks a user up by case-normalized email.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// CreateUser inserts a new user (id is provided by app via ULID).
	CreateUser(ctx context.Context, u domain.User) error

	// RecordLogin bumps login_count and stores the originating IP.
	RecordLogin(ctx context.Context, userID string, ip string) error

	// SetActive flips the soft-delete flag.
	SetActive(ctx context.Context, userID string, active bool) error

	// ListRoles returns every role the user holds.
	ListRoles(ctx context.Context, userID string) ([]domain.Role, error)

	// HasRole reports whether the user currently holds the role.
	HasRole(ctx context.Context, userID, roleID string) (bool, error)

	// AddRole adds the membership edge. Adding an edge that already exists
	// is an error; callers check HasRole first.
	AddRole(ctx context.Context, userID, roleID string) error

	// RemoveRole deletes the membership edge if present.
	RemoveRole(ctx context.Context, userID, roleID string) error
}

type Roles interface {
	// GetRoleByID fetches a role by its ID.
	GetRoleByID(ctx context.Context, id string) (domain.Role, error)

	// GetRoleByName fetches a role by its unique name.
	GetRoleByName(ctx context.Context, name string) (domain.Role, error)

	// ListAll returns all roles in the system.
	ListAll(ctx context.Context) ([]domain.Role, error)

	// ListManagedRoles returns the roles the given role may grant/revoke.
	ListManagedRoles(ctx context.Context, roleID string) ([]domain.Role, error)

	// CreateRole inserts a new role (id is ULID).
	CreateRole(ctx context.Context, r domain.Role) error

	// AddManagedRole adds a manager->managed edge to the role graph.
	AddManagedRole(ctx context.Context, roleID, managedRoleID string) error

	// RemoveManagedRole deletes a manager->managed edge.
	RemoveManagedRole(ctx context.Context, roleID, managedRoleID string) error
}

type Applications interface {
	// GetApplicationByClientID resolves the first-party application record.
	GetApplicationByClientID(ctx context.Context, clientID string) (domain.Application, error)

	// CreateApplication inserts a new application (id is ULID).
	CreateApplication(ctx context.Context, a domain.Application) error
}

type AccessTokens interface {
	// CreateAccessToken stores a new access token record.
	CreateAccessToken(ctx context.Context, t domain.AccessToken) error

	// GetAccessToken returns the token by its (fingerprint, subclient) pair.
	// The pair is the true lookup key: a primary token never matches a
	// subclient lookup and vice versa.
	GetAccessToken(ctx context.Context, tokenHash, subclient string) (domain.AccessToken, error)

	// DeleteAccessToken removes the row. Deletion is the sole revocation
	// mechanism; there is no soft-revoke flag.
	DeleteAccessToken(ctx context.Context, id string) error

	// DeleteExpiredAccessTokens is housekeeping; validation never depends on it.
	DeleteExpiredAccessTokens(ctx context.Context) error
}

type RefreshTokens interface {
	// CreateRefreshToken stores a new refresh token record.
	CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error

	// DeleteRefreshTokensForAccessToken removes refresh tokens paired with
	// the given access token (used when the access token is revoked).
	DeleteRefreshTokensForAccessToken(ctx context.Context, accessTokenID string) error

	// DeleteOrphanedRefreshTokens removes refresh tokens whose paired access
	// token no longer exists (housekeeping).
	DeleteOrphanedRefreshTokens(ctx context.Context) error
}

type Audit interface {
	// Append writes one audit entry. The log is append-only.
	Append(ctx context.Context, e domain.AuditEntry) error

	// ListByTarget returns entries about a target user, newest first.
	ListByTarget(ctx context.Context, targetUserID string) ([]domain.AuditEntry, error)
}
