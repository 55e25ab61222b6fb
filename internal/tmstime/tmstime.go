// Package tmstime centralizes the "never expires" sentinel and the
// timestamp formatting rules shared by the store and HTTP layers, so that
// the +262142 sentinel year is computed in exactly one place.
package tmstime

import "time"

// NeverSentinel is the literal wire representation of "no expiry".
const NeverSentinel = "+262142-12-31T23:59:59Z"

// Never is the time.Time value the sentinel denotes. Its Unix() (seconds)
// fits in an int64; its UnixNano() would overflow, which is why expires_at
// columns are stored in whole seconds rather than nanoseconds.
var Never = time.Date(262142, time.December, 31, 23, 59, 59, 0, time.UTC)

// timestampLayout renders created/updated columns with nanosecond
// fractional precision, as required for rows that are not the never
// sentinel (those always carry an ordinary "now" value).
const timestampLayout = "2006-01-02T15:04:05.999999999Z"

// Now returns the current instant in UTC with its fractional seconds kept,
// so FormatTimestamp renders them. expires_at computation and comparison
// go through ExpiresAtSeconds, which works in whole seconds.
func Now() time.Time {
	return time.Now().UTC()
}

// FormatTimestamp renders a created/updated value in UTC ISO-8601 with
// fractional seconds.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// ExpiresAtSeconds converts an expires_at instant to the int64 Unix-seconds
// representation stored in the pubkeys/delegations/user_mfa/reservations
// tables. The never sentinel maps to Never.Unix(), which callers compare
// against with a plain ">" against the current Unix-seconds clock.
func ExpiresAtSeconds(t time.Time) int64 {
	return t.Unix()
}

// ExpiresAtFromSeconds is the inverse of ExpiresAtSeconds, used when
// reading a row back out of the store.
func ExpiresAtFromSeconds(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

// FormatExpiresAt renders an expires_at instant for JSON responses: the
// never sentinel renders as the literal NeverSentinel string, everything
// else renders as ordinary RFC3339.
func FormatExpiresAt(t time.Time) string {
	if t.Unix() == Never.Unix() {
		return NeverSentinel
	}
	return t.UTC().Format(time.RFC3339)
}

// ExpiresAtFromTTL computes an expires_at instant from a TTL in minutes,
// per §3/§4.4: ttlMinutes == 0 means "never".
func ExpiresAtFromTTL(now time.Time, ttlMinutes int) time.Time {
	if ttlMinutes == 0 {
		return Never
	}
	return now.Add(time.Duration(ttlMinutes) * time.Minute)
}

// IsExpired reports whether expiresAt is not after now (i.e. expires_at <=
// now), comparing at second precision the way the stored column does.
func IsExpired(expiresAt, now time.Time) bool {
	return expiresAt.Unix() <= now.Unix()
}
