package sqlite

import (
	"context"
	"time"

	"github.com/blender-id/bid/internal/bid/domain"
)

type auditRepo struct {
	db dbtx
}

func (r *auditRepo) Append(ctx context.Context, e domain.AuditEntry) error {
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, actor_user_id, target_user_id, role_name, action, message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ActorUserID, e.TargetUserID, e.RoleName, e.Action, e.Message, createdAt)
	return err
}

func (r *auditRepo) ListByTarget(ctx context.Context, targetUserID string) ([]domain.AuditEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, actor_user_id, target_user_id, role_name, action, message, created_at
		 FROM audit_log WHERE target_user_id = ? ORDER BY created_at DESC, id DESC`,
		targetUserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		if err := rows.Scan(&e.ID, &e.ActorUserID, &e.TargetUserID, &e.RoleName,
			&e.Action, &e.Message, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
