// Package feed owns the ordered post feed and reconciles local, backend and
// confirmed copies of posts into it.
package feed

import "strconv"

// msThreshold separates millisecond timestamps (13 digits today) from
// second timestamps (10 digits today).
const msThreshold int64 = 100_000_000_000

// Normalize canonicalizes a unix timestamp to seconds. Any value whose
// magnitude reaches 1e11 is taken as milliseconds and divided by 1000 until
// it no longer does, so the result is idempotent and strictly below 1e11.
func Normalize(ts int64) int64 {
	for ts >= msThreshold || ts <= -msThreshold {
		ts /= 1000
	}
	return ts
}

// RelativeLabel renders the age of t (canonical seconds) relative to now.
// Future timestamps are treated as clock skew.
func RelativeLabel(t, now int64) string {
	diff := now - t
	switch {
	case diff < 60:
		return "just now"
	case diff < 3600:
		return strconv.FormatInt(diff/60, 10) + "m ago"
	case diff < 86400:
		return strconv.FormatInt(diff/3600, 10) + "h ago"
	default:
		return strconv.FormatInt(diff/86400, 10) + "d ago"
	}
}
