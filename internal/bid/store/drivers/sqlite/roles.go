package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/blender-id/bid/internal/bid/domain"
)

type rolesRepo struct {
	db dbtx
}

const roleColumns = `id, name, description, is_active, is_badge, is_public, created_at, updated_at`

func prefixedRoleColumns(alias string) string {
	return alias + `.id, ` + alias + `.name, ` + alias + `.description, ` +
		alias + `.is_active, ` + alias + `.is_badge, ` + alias + `.is_public, ` +
		alias + `.created_at, ` + alias + `.updated_at`
}

func scanRole(row interface{ Scan(...any) error }) (domain.Role, error) {
	var role domain.Role
	err := row.Scan(
		&role.ID,
		&role.Name,
		&role.Description,
		&role.IsActive,
		&role.IsBadge,
		&role.IsPublic,
		&role.CreatedAt,
		&role.UpdatedAt,
	)
	if err != nil {
		return domain.Role{}, mapNotFound(err)
	}
	return role, nil
}

func collectRoles(rows *sql.Rows) ([]domain.Role, error) {
	var roles []domain.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (r *rolesRepo) GetRoleByID(ctx context.Context, id string) (domain.Role, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE id = ?`, id)
	return scanRole(row)
}

func (r *rolesRepo) GetRoleByName(ctx context.Context, name string) (domain.Role, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE name = ?`, name)
	return scanRole(row)
}

func (r *rolesRepo) ListAll(ctx context.Context) ([]domain.Role, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+roleColumns+` FROM roles ORDER BY is_active DESC, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRoles(rows)
}

func (r *rolesRepo) ListManagedRoles(ctx context.Context, roleID string) ([]domain.Role, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+prefixedRoleColumns("r")+`
		 FROM roles r
		 JOIN role_managed_roles m ON m.managed_role_id = r.id
		 WHERE m.role_id = ?
		 ORDER BY r.name`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRoles(rows)
}

func (r *rolesRepo) CreateRole(ctx context.Context, role domain.Role) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO roles (id, name, description, is_active, is_badge, is_public, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		role.ID, role.Name, role.Description, role.IsActive, role.IsBadge, role.IsPublic, now, now)
	return err
}

func (r *rolesRepo) AddManagedRole(ctx context.Context, roleID, managedRoleID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO role_managed_roles (role_id, managed_role_id) VALUES (?, ?)`,
		roleID, managedRoleID)
	return err
}

func (r *rolesRepo) RemoveManagedRole(ctx context.Context, roleID, managedRoleID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM role_managed_roles WHERE role_id = ? AND managed_role_id = ?`,
		roleID, managedRoleID)
	return err
}
