package store

import (
	"context"
	"database/sql"
	"errors"
)

func InsertAdmin(ctx context.Context, q Querier, a Admin) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO admin (tenant, admin_user, admin_secret, privilege, created, updated)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.Tenant, a.AdminUser, a.AdminSecret, a.Privilege, a.Created, a.Updated)
	return err
}

func GetAdmin(ctx context.Context, q Querier, tenant, adminUser string) (Admin, error) {
	row := q.QueryRowContext(ctx, `
		SELECT tenant, admin_user, admin_secret, privilege, created, updated
		FROM admin WHERE tenant = ? AND admin_user = ?`, tenant, adminUser)
	return scanAdmin(row)
}

func ListAdmins(ctx context.Context, q Querier, tenant string) ([]Admin, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT tenant, admin_user, admin_secret, privilege, created, updated
		FROM admin WHERE tenant = ? ORDER BY admin_user`, tenant)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Admin
	for rows.Next() {
		a, err := scanAdminRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func DeleteAdmin(ctx context.Context, q Querier, tenant, adminUser string) error {
	res, err := q.ExecContext(ctx, `DELETE FROM admin WHERE tenant = ? AND admin_user = ?`, tenant, adminUser)
	if err != nil {
		return err
	}
	return rowsAffectedOrNotFound(res)
}

func scanAdmin(row rowScanner) (Admin, error) {
	var a Admin
	if err := row.Scan(&a.Tenant, &a.AdminUser, &a.AdminSecret, &a.Privilege, &a.Created, &a.Updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Admin{}, ErrNotFound
		}
		return Admin{}, err
	}
	return a, nil
}

func scanAdminRows(rows *sql.Rows) (Admin, error) {
	return scanAdmin(rows)
}
