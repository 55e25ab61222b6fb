package store

import (
	"context"
	"strconv"
	"strings"
)

func InsertHost(ctx context.Context, q Querier, h Host) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO hosts (tenant, host, addr, created, updated)
		VALUES (?, ?, ?, ?, ?)`,
		h.Tenant, h.Host, h.Addr, h.Created, h.Updated)
	return err
}

func ListHosts(ctx context.Context, q Querier, tenant string) ([]Host, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT tenant, host, addr, created, updated FROM hosts WHERE tenant = ? ORDER BY host, addr`, tenant)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Host
	for rows.Next() {
		var h Host
		if err := rows.Scan(&h.Tenant, &h.Host, &h.Addr, &h.Created, &h.Updated); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func DeleteHost(ctx context.Context, q Querier, tenant, host, addr string) error {
	res, err := q.ExecContext(ctx, `DELETE FROM hosts WHERE tenant = ? AND host = ? AND addr = ?`, tenant, host, addr)
	if err != nil {
		return err
	}
	return rowsAffectedOrNotFound(res)
}

// MatchAddr reports whether addr (a literal dotted-quad, a dotted-quad with
// a trailing "*" wildcard last segment, or a "[a,b]" inclusive last-octet
// range) matches the given dotted-quad ip, per §3's host catalog address
// forms.
func MatchAddr(pattern, ip string) bool {
	if pattern == ip {
		return true
	}
	pPrefix, pLast, ok := splitLastOctet(pattern)
	ipPrefix, ipLast, okIP := splitLastOctet(ip)
	if !ok || !okIP || pPrefix != ipPrefix {
		return false
	}
	if pLast == "*" {
		return true
	}
	if strings.HasPrefix(pLast, "[") && strings.HasSuffix(pLast, "]") {
		parts := strings.SplitN(pLast[1:len(pLast)-1], ",", 2)
		if len(parts) != 2 {
			return false
		}
		lo, errLo := strconv.Atoi(strings.TrimSpace(parts[0]))
		hi, errHi := strconv.Atoi(strings.TrimSpace(parts[1]))
		n, errN := strconv.Atoi(ipLast)
		if errLo != nil || errHi != nil || errN != nil {
			return false
		}
		return n >= lo && n <= hi
	}
	return false
}

func splitLastOctet(addr string) (prefix, last string, ok bool) {
	i := strings.LastIndexByte(addr, '.')
	if i < 0 {
		return "", "", false
	}
	return addr[:i], addr[i+1:], true
}
