package limiter

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PG is a PostgreSQL-backed fixed-window limiter with temporary blocks.
type PG struct {
	pool     pgxQuerier
	window   time.Duration
	maxHits  int
	blockFor time.Duration
	now      func() time.Time
}

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ Limiter = (*PG)(nil)

// NewPG allows maxHits writes per window and blocks for blockFor after that.
func NewPG(q pgxQuerier, window time.Duration, maxHits int, blockFor time.Duration) *PG {
	return &PG{pool: q, window: window, maxHits: maxHits, blockFor: blockFor, now: time.Now}
}

// Hit implements Limiter.
func (l *PG) Hit(ctx context.Context, key []byte) (bool, time.Duration, error) {
	const sel = `SELECT blocked_until FROM write_limiter WHERE key_hash=$1`
	var blockedUntil time.Time
	err := l.pool.QueryRow(ctx, sel, key).Scan(&blockedUntil)
	switch {
	case err == nil:
		if now := l.now(); blockedUntil.After(now) {
			return false, blockedUntil.Sub(now), nil
		}
	case errors.Is(err, pgx.ErrNoRows):
	default:
		return false, 0, err
	}

	const hit = `
INSERT INTO write_limiter (key_hash, hits, window_start, blocked_until)
VALUES ($1, 1, now(), 'epoch')
ON CONFLICT (key_hash) DO UPDATE
SET
  hits         = CASE WHEN now() - write_limiter.window_start > $2::interval THEN 1 ELSE write_limiter.hits + 1 END,
  window_start = CASE WHEN now() - write_limiter.window_start > $2::interval THEN now() ELSE write_limiter.window_start END
RETURNING hits`
	var hits int
	if err := l.pool.QueryRow(ctx, hit, key, l.window).Scan(&hits); err != nil {
		return false, 0, err
	}
	if hits <= l.maxHits {
		return true, 0, nil
	}

	const block = `UPDATE write_limiter SET blocked_until=$2 WHERE key_hash=$1`
	if _, err := l.pool.Exec(ctx, block, key, l.now().Add(l.blockFor)); err != nil {
		return false, 0, err
	}
	return false, l.blockFor, nil
}
