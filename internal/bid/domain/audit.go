package domain

import "time"

// Audit actions recorded for permission-changing operations.
const (
	AuditActionGrant  = "grant"
	AuditActionRevoke = "revoke"
)

// AuditEntry is one append-only record of a badge grant or revoke. Exactly
// one entry is written per state-changing call; idempotent no-ops never reach
// the log.
type AuditEntry struct {
	ID           string
	ActorUserID  string
	TargetUserID string
	RoleName     string
	Action       string // AuditActionGrant or AuditActionRevoke
	Message      string
	CreatedAt    time.Time
}
