package domain

import "time"

// ExpiresFormat is the exact timestamp layout the desktop add-on parses for
// token expiry dates. The add-on ships bundled with the client application and
// cannot easily be updated, so this layout must never change without a
// client-side migration plan.
const ExpiresFormat = "2006-01-02T15:04:05.000000Z"

// TokenPair is what the identify endpoint returns: two opaque random tokens
// plus the shared expiry of the access token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	Expires      time.Time
}

// AccessToken models the stored access token record. Only the SHA-256
// fingerprint of the opaque token is persisted; the true lookup key is the
// (token_hash, subclient) pair, so a primary token and a subclient token are
// distinct records even if they shared the same random string.
type AccessToken struct {
	ID            string
	TokenHash     string // deterministic fingerprint (base64url SHA-256)
	UserID        string
	ApplicationID string
	Scopes        []string
	HostLabel     string // free-text client installation label, diagnostics only
	Subclient     string // empty for a primary token
	ExpiresAt     time.Time
	CreatedAt     time.Time
}

// Expired reports whether the token is past its expiry at the given instant.
// Expiry is checked lazily at validation time; an expired row stays inert
// until housekeeping deletes it.
func (t AccessToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// RefreshToken is issued alongside every access token. Redemption is not
// implemented by this service; the record exists to honour the issuance
// contract with the add-on.
type RefreshToken struct {
	ID            string
	TokenHash     string
	UserID        string
	ApplicationID string
	AccessTokenID string // back-reference to the paired access token
	CreatedAt     time.Time
}

// FormatExpires renders an expiry timestamp in the add-on wire format, always
// in UTC.
func FormatExpires(t time.Time) string {
	return t.UTC().Format(ExpiresFormat)
}
