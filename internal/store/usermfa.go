package store

import (
	"context"
	"database/sql"
	"errors"
)

func InsertUserMFA(ctx context.Context, q Querier, m UserMFA) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO user_mfa (tenant, tms_user_id, expires_at, enabled, created, updated)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.Tenant, m.TMSUserID, m.ExpiresAt, boolToInt(m.Enabled), m.Created, m.Updated)
	return err
}

func GetUserMFA(ctx context.Context, q Querier, tenant, tmsUserID string) (UserMFA, error) {
	row := q.QueryRowContext(ctx, `
		SELECT tenant, tms_user_id, expires_at, enabled, created, updated
		FROM user_mfa WHERE tenant = ? AND tms_user_id = ?`, tenant, tmsUserID)
	var m UserMFA
	var enabled int
	if err := row.Scan(&m.Tenant, &m.TMSUserID, &m.ExpiresAt, &enabled, &m.Created, &m.Updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return UserMFA{}, ErrNotFound
		}
		return UserMFA{}, err
	}
	m.Enabled = enabled != 0
	return m, nil
}

func ListUserMFA(ctx context.Context, q Querier, tenant string) ([]UserMFA, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT tenant, tms_user_id, expires_at, enabled, created, updated
		FROM user_mfa WHERE tenant = ? ORDER BY tms_user_id`, tenant)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []UserMFA
	for rows.Next() {
		var m UserMFA
		var enabled int
		if err := rows.Scan(&m.Tenant, &m.TMSUserID, &m.ExpiresAt, &enabled, &m.Created, &m.Updated); err != nil {
			return nil, err
		}
		m.Enabled = enabled != 0
		out = append(out, m)
	}
	return out, rows.Err()
}

// DeleteUserMFA cascades (via ON DELETE CASCADE foreign keys) to every
// user_hosts, delegations, pubkeys, and reservations row naming this
// (tenant, tms_user_id), per §3's ownership rule and §8's cascade
// invariant.
func DeleteUserMFA(ctx context.Context, q Querier, tenant, tmsUserID string) error {
	res, err := q.ExecContext(ctx, `DELETE FROM user_mfa WHERE tenant = ? AND tms_user_id = ?`, tenant, tmsUserID)
	if err != nil {
		return err
	}
	return rowsAffectedOrNotFound(res)
}
