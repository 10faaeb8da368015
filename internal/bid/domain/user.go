package domain

import (
	"strings"
	"time"
)

// MaxEmailLength is the longest email address accepted anywhere in the
// system. Matches the legacy database column width.
const MaxEmailLength = 64

// NormalizeEmail lowercases and trims an email address so that lookups and
// uniqueness checks are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type User struct {
	ID           string
	Email        string // unique, case-normalized, max 64 chars
	FullName     string
	PasswordHash string // argon2 encoded
	IsActive     bool   // soft-delete path: deactivate instead of deleting
	LastLoginIP  string
	LoginCount   int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
