package store

import (
	"context"
	"database/sql"
	"errors"
)

// ErrNotFound is returned by Get-style helpers when no row matches; callers
// translate it into tmserrors.NotFound or tmserrors.Policy depending on
// context.
var ErrNotFound = errors.New("store: not found")

func InsertTenant(ctx context.Context, q Querier, t Tenant) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO tenants (tenant, enabled, created, updated)
		VALUES (?, ?, ?, ?)`,
		t.Tenant, boolToInt(t.Enabled), t.Created, t.Updated)
	return err
}

func GetTenant(ctx context.Context, q Querier, tenant string) (Tenant, error) {
	row := q.QueryRowContext(ctx, `
		SELECT tenant, enabled, created, updated FROM tenants WHERE tenant = ?`, tenant)
	var t Tenant
	var enabled int
	if err := row.Scan(&t.Tenant, &enabled, &t.Created, &t.Updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Tenant{}, ErrNotFound
		}
		return Tenant{}, err
	}
	t.Enabled = enabled != 0
	return t, nil
}

func ListTenants(ctx context.Context, q Querier) ([]Tenant, error) {
	rows, err := q.QueryContext(ctx, `SELECT tenant, enabled, created, updated FROM tenants ORDER BY tenant`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Tenant
	for rows.Next() {
		var t Tenant
		var enabled int
		if err := rows.Scan(&t.Tenant, &enabled, &t.Created, &t.Updated); err != nil {
			return nil, err
		}
		t.Enabled = enabled != 0
		out = append(out, t)
	}
	return out, rows.Err()
}

// RenameTenant updates the tenant's primary key; every FK-referencing table
// carries ON UPDATE CASCADE, so this single statement propagates the new
// name across the whole namespace (§8's tenant-rename invariant).
func RenameTenant(ctx context.Context, q Querier, oldName, newName, updated string) error {
	_, err := q.ExecContext(ctx, `UPDATE tenants SET tenant = ?, updated = ? WHERE tenant = ?`, newName, updated, oldName)
	return err
}

func SetTenantEnabled(ctx context.Context, q Querier, tenant string, enabled bool, updated string) error {
	_, err := q.ExecContext(ctx, `UPDATE tenants SET enabled = ?, updated = ? WHERE tenant = ?`, boolToInt(enabled), updated, tenant)
	return err
}

// DeleteTenant relies on the declared RESTRICT foreign keys from clients,
// user_mfa, admin, and hosts: the delete fails with a foreign-key violation
// while any dependent row exists, satisfying §8's "deleting a tenant while
// dependents exist fails" invariant without application-level checks.
func DeleteTenant(ctx context.Context, q Querier, tenant string) error {
	res, err := q.ExecContext(ctx, `DELETE FROM tenants WHERE tenant = ?`, tenant)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
