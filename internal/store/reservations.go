package store

import (
	"context"
	"database/sql"
	"errors"
)

func InsertReservation(ctx context.Context, q Querier, r Reservation) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO reservations (resid, tenant, client_id, client_user_id, host, public_key_fingerprint, expires_at, created, updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ResID, r.Tenant, r.ClientID, r.ClientUserID, r.Host, r.PublicKeyFingerprint, r.ExpiresAt, r.Created, r.Updated)
	return err
}

func GetReservation(ctx context.Context, q Querier, resid, tenant, clientID, clientUserID, host, fingerprint string) (Reservation, error) {
	row := q.QueryRowContext(ctx, `
		SELECT resid, tenant, client_id, client_user_id, host, public_key_fingerprint, expires_at, created, updated
		FROM reservations
		WHERE resid = ? AND tenant = ? AND client_id = ? AND client_user_id = ? AND host = ? AND public_key_fingerprint = ?`,
		resid, tenant, clientID, clientUserID, host, fingerprint)
	return scanReservation(row)
}

// FindReservationForResolve finds any unexpired reservation matching the
// resolve tuple (tenant, client_id, client_user_id, host, fingerprint),
// independent of resid, per §4.3 resolve predicate 5.
func FindReservationForResolve(ctx context.Context, q Querier, tenant, clientID, clientUserID, host, fingerprint string, now int64) (Reservation, error) {
	row := q.QueryRowContext(ctx, `
		SELECT resid, tenant, client_id, client_user_id, host, public_key_fingerprint, expires_at, created, updated
		FROM reservations
		WHERE tenant = ? AND client_id = ? AND client_user_id = ? AND host = ? AND public_key_fingerprint = ? AND expires_at > ?
		LIMIT 1`,
		tenant, clientID, clientUserID, host, fingerprint, now)
	return scanReservation(row)
}

func ListReservations(ctx context.Context, q Querier, tenant string) ([]Reservation, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT resid, tenant, client_id, client_user_id, host, public_key_fingerprint, expires_at, created, updated
		FROM reservations WHERE tenant = ? ORDER BY resid`, tenant)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Reservation
	for rows.Next() {
		r, err := scanReservationRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func DeleteReservation(ctx context.Context, q Querier, resid, tenant, clientID, clientUserID, host, fingerprint string) error {
	res, err := q.ExecContext(ctx, `
		DELETE FROM reservations
		WHERE resid = ? AND tenant = ? AND client_id = ? AND client_user_id = ? AND host = ? AND public_key_fingerprint = ?`,
		resid, tenant, clientID, clientUserID, host, fingerprint)
	if err != nil {
		return err
	}
	return rowsAffectedOrNotFound(res)
}

func scanReservation(row rowScanner) (Reservation, error) {
	var r Reservation
	if err := row.Scan(&r.ResID, &r.Tenant, &r.ClientID, &r.ClientUserID, &r.Host, &r.PublicKeyFingerprint, &r.ExpiresAt, &r.Created, &r.Updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Reservation{}, ErrNotFound
		}
		return Reservation{}, err
	}
	return r, nil
}

func scanReservationRows(rows *sql.Rows) (Reservation, error) {
	return scanReservation(rows)
}
