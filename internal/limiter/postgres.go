package limiter

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/and161185/docflow/internal/clock"
)

// PG is a PostgreSQL-backed limiter with a fixed window and lockout.
type PG struct {
	pool     pgxQuerier
	clk      clock.Clock
	window   time.Duration
	maxFails int
	blockFor time.Duration
}

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPG constructs a PostgreSQL-backed limiter. *pgxpool.Pool satisfies q.
func NewPG(q pgxQuerier, clk clock.Clock, window time.Duration, maxFails int, blockFor time.Duration) *PG {
	return &PG{pool: q, clk: clk, window: window, maxFails: maxFails, blockFor: blockFor}
}

// Allow reports whether a lookup is currently allowed and a retry-after duration.
func (l *PG) Allow(ctx context.Context, ipHash []byte) (bool, time.Duration, error) {
	const q = `SELECT blocked_until FROM token_limiter WHERE ip_hash=$1`
	var blockedUntil time.Time
	err := l.pool.QueryRow(ctx, q, ipHash).Scan(&blockedUntil)
	switch {
	case err == nil:
		now := l.clk.Now()
		if blockedUntil.After(now) {
			return false, blockedUntil.Sub(now), nil
		}
		return true, 0, nil
	case errors.Is(err, pgx.ErrNoRows):
		return true, 0, nil
	default:
		return false, 0, err
	}
}

// Success drops an elapsed block for ip. fail_count and updated_at are left alone so the
// failure window keeps running.
func (l *PG) Success(ctx context.Context, ipHash []byte) error {
	const q = `
UPDATE token_limiter SET blocked_until='epoch'
WHERE ip_hash=$1 AND blocked_until > 'epoch' AND blocked_until <= $2`
	_, err := l.pool.Exec(ctx, q, ipHash, l.clk.Now())
	return err
}

// Failure records an unknown token; may set a block until a future time.
func (l *PG) Failure(ctx context.Context, ipHash []byte) (bool, time.Duration, error) {
	now := l.clk.Now()

	const q = `
INSERT INTO token_limiter (ip_hash, fail_count, blocked_until, updated_at)
VALUES ($1,1,'epoch',$2)
ON CONFLICT (ip_hash) DO UPDATE
SET
  fail_count = CASE WHEN $2 - token_limiter.updated_at > $3::interval THEN 1 ELSE token_limiter.fail_count + 1 END,
  updated_at = $2
RETURNING fail_count`
	var fails int
	if err := l.pool.QueryRow(ctx, q, ipHash, now, l.window).Scan(&fails); err != nil {
		return false, 0, err
	}
	if fails >= l.maxFails {
		blockUntil := now.Add(l.blockFor)
		const upd = `UPDATE token_limiter SET blocked_until=$2 WHERE ip_hash=$1`
		if _, err := l.pool.Exec(ctx, upd, ipHash, blockUntil); err != nil {
			return false, 0, err
		}
		return true, l.blockFor, nil
	}
	return false, 0, nil
}
