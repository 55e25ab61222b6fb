package store

import (
	"context"
	"embed"
	"fmt"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrate applies every embedded migration file in filename order. Each
// file's statements use "IF NOT EXISTS" / "CREATE TRIGGER IF NOT EXISTS" so
// re-running Migrate against an already-migrated database is a no-op, per
// §4.1's idempotent-migration contract. The store does not keep its own
// migration-version table; idempotence of the DDL itself is the mechanism.
func Migrate(ctx context.Context, d *DB) error {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("store: read migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		raw, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("store: read migration %s: %w", name, err)
		}
		if err := execScript(ctx, d, string(raw)); err != nil {
			return fmt.Errorf("store: apply migration %s: %w", name, err)
		}
	}
	return nil
}

// execScript runs a migration file as a single multi-statement Exec when
// the driver allows it, falling back to a naive semicolon split so drivers
// that only execute one statement per call (notably modernc.org/sqlite in
// some configurations) still apply every statement in the file.
func execScript(ctx context.Context, d *DB, script string) error {
	if _, err := d.SQL.ExecContext(ctx, script); err == nil {
		return nil
	}
	for _, stmt := range splitSQL(script) {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := d.SQL.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("statement %q: %w", truncate(stmt, 80), err)
		}
	}
	return nil
}

// splitSQL splits on statement-terminating semicolons that sit outside a
// BEGIN...END trigger body. It is intentionally naive (no string-literal
// awareness) because migration files here never embed a semicolon inside a
// quoted literal.
func splitSQL(script string) []string {
	var stmts []string
	var cur strings.Builder
	depth := 0
	upper := strings.ToUpper(script)
	for i, r := range script {
		cur.WriteRune(r)
		if r == ';' && depth == 0 {
			stmts = append(stmts, cur.String())
			cur.Reset()
			continue
		}
		if hasWordAt(upper, i, "BEGIN") {
			depth++
		}
		if hasWordAt(upper, i, "END") {
			if depth > 0 {
				depth--
			}
		}
	}
	if strings.TrimSpace(cur.String()) != "" {
		stmts = append(stmts, cur.String())
	}
	return stmts
}

func hasWordAt(upper string, byteIdx int, word string) bool {
	// byteIdx is the index of the rune we just wrote; check if word ends here.
	end := byteIdx + 1
	start := end - len(word)
	if start < 0 || end > len(upper) {
		return false
	}
	if upper[start:end] != word {
		return false
	}
	if start > 0 && isWordByte(upper[start-1]) {
		return false
	}
	if end < len(upper) && isWordByte(upper[end]) {
		return false
	}
	return true
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
