package sqlite

import (
	"context"
	"time"

	"github.com/blender-id/bid/internal/bid/domain"
)

type applicationsRepo struct {
	db dbtx
}

func (r *applicationsRepo) GetApplicationByClientID(ctx context.Context, clientID string) (domain.Application, error) {
	var (
		a      domain.Application
		scopes string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, client_id, name, scopes, created_at, updated_at
		 FROM applications WHERE client_id = ?`, clientID).
		Scan(&a.ID, &a.ClientID, &a.Name, &scopes, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return domain.Application{}, mapNotFound(err)
	}
	a.Scopes = splitScopes(scopes)
	return a, nil
}

func (r *applicationsRepo) CreateApplication(ctx context.Context, a domain.Application) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO applications (id, client_id, name, scopes, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.ClientID, a.Name, joinScopes(a.Scopes), now, now)
	return err
}
