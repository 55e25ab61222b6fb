package store

import (
	"context"
	"database/sql"
	"errors"
)

func InsertUserHost(ctx context.Context, q Querier, h UserHost) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO user_hosts (tenant, tms_user_id, host, host_account, created, updated)
		VALUES (?, ?, ?, ?, ?, ?)`,
		h.Tenant, h.TMSUserID, h.Host, h.HostAccount, h.Created, h.Updated)
	return err
}

// FindUserHostBinding looks for an exact binding first, then the tenant's
// wildcard binding (tms_user_id = "*", host_account = "*"), per §4.3's
// tie-break rule that the exact row is preferred but either suffices.
func FindUserHostBinding(ctx context.Context, q Querier, tenant, tmsUserID, host, hostAccount string) (UserHost, error) {
	row := q.QueryRowContext(ctx, `
		SELECT tenant, tms_user_id, host, host_account, created, updated
		FROM user_hosts WHERE tenant = ? AND tms_user_id = ? AND host = ? AND host_account = ?`,
		tenant, tmsUserID, host, hostAccount)
	h, err := scanUserHost(row)
	if err == nil {
		return h, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return UserHost{}, err
	}
	row = q.QueryRowContext(ctx, `
		SELECT tenant, tms_user_id, host, host_account, created, updated
		FROM user_hosts WHERE tenant = ? AND tms_user_id = '*' AND host = ? AND host_account = '*'`,
		tenant, host)
	return scanUserHost(row)
}

func ListUserHosts(ctx context.Context, q Querier, tenant string) ([]UserHost, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT tenant, tms_user_id, host, host_account, created, updated
		FROM user_hosts WHERE tenant = ? ORDER BY tms_user_id, host, host_account`, tenant)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []UserHost
	for rows.Next() {
		h, err := scanUserHost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func DeleteUserHost(ctx context.Context, q Querier, tenant, tmsUserID, host, hostAccount string) error {
	res, err := q.ExecContext(ctx, `
		DELETE FROM user_hosts WHERE tenant = ? AND tms_user_id = ? AND host = ? AND host_account = ?`,
		tenant, tmsUserID, host, hostAccount)
	if err != nil {
		return err
	}
	return rowsAffectedOrNotFound(res)
}

func scanUserHost(row rowScanner) (UserHost, error) {
	var h UserHost
	if err := row.Scan(&h.Tenant, &h.TMSUserID, &h.Host, &h.HostAccount, &h.Created, &h.Updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return UserHost{}, ErrNotFound
		}
		return UserHost{}, err
	}
	return h, nil
}
