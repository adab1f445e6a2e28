// Package limiter throttles backend writes per client.
package limiter

import (
	"context"
	"crypto/sha256"
	"time"
)

// Limiter counts writes per client key and blocks clients that exceed a
// quota within a window.
type Limiter interface {
	// Hit records one write and reports whether it is allowed, with a
	// retry-after when it is not.
	Hit(ctx context.Context, key []byte) (bool, time.Duration, error)
}

// HashIP returns a stable hash for an IP string to avoid storing raw addresses.
func HashIP(ip string) []byte {
	h := sha256.Sum256([]byte(ip))
	return h[:]
}
