package store

import (
	"context"
	"database/sql"
	"errors"
)

func InsertDelegation(ctx context.Context, q Querier, d Delegation) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO delegations (tenant, client_id, client_user_id, expires_at, created, updated)
		VALUES (?, ?, ?, ?, ?, ?)`,
		d.Tenant, d.ClientID, d.ClientUserID, d.ExpiresAt, d.Created, d.Updated)
	return err
}

// FindDelegation looks for an exact delegation first, then the client's
// wildcard delegation (client_user_id = "*"), per §4.3's tie-break rule.
func FindDelegation(ctx context.Context, q Querier, tenant, clientID, clientUserID string) (Delegation, error) {
	row := q.QueryRowContext(ctx, `
		SELECT tenant, client_id, client_user_id, expires_at, created, updated
		FROM delegations WHERE tenant = ? AND client_id = ? AND client_user_id = ?`,
		tenant, clientID, clientUserID)
	d, err := scanDelegation(row)
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Delegation{}, err
	}
	row = q.QueryRowContext(ctx, `
		SELECT tenant, client_id, client_user_id, expires_at, created, updated
		FROM delegations WHERE tenant = ? AND client_id = ? AND client_user_id = '*'`,
		tenant, clientID)
	return scanDelegation(row)
}

func ListDelegations(ctx context.Context, q Querier, tenant string) ([]Delegation, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT tenant, client_id, client_user_id, expires_at, created, updated
		FROM delegations WHERE tenant = ? ORDER BY client_id, client_user_id`, tenant)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Delegation
	for rows.Next() {
		d, err := scanDelegation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func DeleteDelegation(ctx context.Context, q Querier, tenant, clientID, clientUserID string) error {
	res, err := q.ExecContext(ctx, `
		DELETE FROM delegations WHERE tenant = ? AND client_id = ? AND client_user_id = ?`,
		tenant, clientID, clientUserID)
	if err != nil {
		return err
	}
	return rowsAffectedOrNotFound(res)
}

func scanDelegation(row rowScanner) (Delegation, error) {
	var d Delegation
	if err := row.Scan(&d.Tenant, &d.ClientID, &d.ClientUserID, &d.ExpiresAt, &d.Created, &d.Updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Delegation{}, ErrNotFound
		}
		return Delegation{}, err
	}
	return d, nil
}
