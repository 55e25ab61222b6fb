package store

import (
	"context"
	"database/sql"
	"errors"
)

func InsertClient(ctx context.Context, q Querier, c Client) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO clients (tenant, client_id, client_secret, app_name, app_version, enabled, created, updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Tenant, c.ClientID, c.ClientSecret, c.AppName, c.AppVersion, boolToInt(c.Enabled), c.Created, c.Updated)
	return err
}

func GetClient(ctx context.Context, q Querier, tenant, clientID string) (Client, error) {
	row := q.QueryRowContext(ctx, `
		SELECT tenant, client_id, client_secret, app_name, app_version, enabled, created, updated
		FROM clients WHERE tenant = ? AND client_id = ?`, tenant, clientID)
	return scanClient(row)
}

func ListClients(ctx context.Context, q Querier, tenant string) ([]Client, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT tenant, client_id, client_secret, app_name, app_version, enabled, created, updated
		FROM clients WHERE tenant = ? ORDER BY client_id`, tenant)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Client
	for rows.Next() {
		c, err := scanClientRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func DeleteClient(ctx context.Context, q Querier, tenant, clientID string) error {
	res, err := q.ExecContext(ctx, `DELETE FROM clients WHERE tenant = ? AND client_id = ?`, tenant, clientID)
	if err != nil {
		return err
	}
	return rowsAffectedOrNotFound(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClient(row rowScanner) (Client, error) {
	var c Client
	var enabled int
	if err := row.Scan(&c.Tenant, &c.ClientID, &c.ClientSecret, &c.AppName, &c.AppVersion, &enabled, &c.Created, &c.Updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Client{}, ErrNotFound
		}
		return Client{}, err
	}
	c.Enabled = enabled != 0
	return c, nil
}

func scanClientRows(rows *sql.Rows) (Client, error) {
	return scanClient(rows)
}

func rowsAffectedOrNotFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
