package store

import (
	"context"
	"database/sql"
	"errors"
)

func InsertPubKey(ctx context.Context, q Querier, k PubKey) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO pubkeys (
			public_key_fingerprint, host, tenant, client_id, client_user_id, host_account,
			public_key, key_type, key_bits, max_uses, remaining_uses, initial_ttl_minutes,
			expires_at, created, updated
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		k.PublicKeyFingerprint, k.Host, k.Tenant, k.ClientID, k.ClientUserID, k.HostAccount,
		k.PublicKey, k.KeyType, k.KeyBits, k.MaxUses, k.RemainingUses, k.InitialTTLMinutes,
		k.ExpiresAt, k.Created, k.Updated)
	return err
}

func GetPubKey(ctx context.Context, q Querier, fingerprint, host string) (PubKey, error) {
	row := q.QueryRowContext(ctx, `
		SELECT public_key_fingerprint, host, tenant, client_id, client_user_id, host_account,
		       public_key, key_type, key_bits, max_uses, remaining_uses, initial_ttl_minutes,
		       expires_at, created, updated
		FROM pubkeys WHERE public_key_fingerprint = ? AND host = ?`, fingerprint, host)
	return scanPubKey(row)
}

func ListPubKeys(ctx context.Context, q Querier, tenant string) ([]PubKey, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT public_key_fingerprint, host, tenant, client_id, client_user_id, host_account,
		       public_key, key_type, key_bits, max_uses, remaining_uses, initial_ttl_minutes,
		       expires_at, created, updated
		FROM pubkeys WHERE tenant = ? ORDER BY host, public_key_fingerprint`, tenant)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PubKey
	for rows.Next() {
		k, err := scanPubKeyRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func DeletePubKey(ctx context.Context, q Querier, fingerprint, host string) error {
	res, err := q.ExecContext(ctx, `DELETE FROM pubkeys WHERE public_key_fingerprint = ? AND host = ?`, fingerprint, host)
	if err != nil {
		return err
	}
	return rowsAffectedOrNotFound(res)
}

// DecrementRemainingUses performs the compare-and-set §4.4 requires: it only
// succeeds if the row's remaining_uses still equals observed, so concurrent
// resolves racing on the same row serialize through SQLite's single-writer
// transaction and at most `remaining_uses` callers ever win.
func DecrementRemainingUses(ctx context.Context, q Querier, fingerprint, host string, observed int, updated string) (bool, error) {
	res, err := q.ExecContext(ctx, `
		UPDATE pubkeys SET remaining_uses = remaining_uses - 1, updated = ?
		WHERE public_key_fingerprint = ? AND host = ? AND remaining_uses = ?`,
		updated, fingerprint, host, observed)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func scanPubKey(row rowScanner) (PubKey, error) {
	var k PubKey
	if err := row.Scan(
		&k.PublicKeyFingerprint, &k.Host, &k.Tenant, &k.ClientID, &k.ClientUserID, &k.HostAccount,
		&k.PublicKey, &k.KeyType, &k.KeyBits, &k.MaxUses, &k.RemainingUses, &k.InitialTTLMinutes,
		&k.ExpiresAt, &k.Created, &k.Updated,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return PubKey{}, ErrNotFound
		}
		return PubKey{}, err
	}
	return k, nil
}

func scanPubKeyRows(rows *sql.Rows) (PubKey, error) {
	return scanPubKey(rows)
}
