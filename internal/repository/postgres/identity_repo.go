package postgres

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"

	"github.com/privcaster/privcaster/internal/errs"
	"github.com/privcaster/privcaster/internal/model"
)

// IdentityRepo implements IdentityRepository using PostgreSQL.
type IdentityRepo struct{ db *DB }

// NewIdentityRepo constructs an identity repository.
func NewIdentityRepo(db *DB) *IdentityRepo { return &IdentityRepo{db: db} }

// Upsert inserts or replaces the identity row for address.
func (r *IdentityRepo) Upsert(ctx context.Context, address string, id model.Identity) (model.StoredIdentity, error) {
	const q = `
INSERT INTO identities (address, owner, user_id, reputation_score, follower_count, following_count)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (address) DO UPDATE
SET owner=EXCLUDED.owner, user_id=EXCLUDED.user_id, reputation_score=EXCLUDED.reputation_score,
    follower_count=EXCLUDED.follower_count, following_count=EXCLUDED.following_count, updated_at=now()
RETURNING created_at, updated_at`
	if id.ReputationScore > math.MaxInt64 || id.FollowerCount > math.MaxInt64 || id.FollowingCount > math.MaxInt64 {
		return model.StoredIdentity{}, fmt.Errorf("%w: identity counter exceeds bigint", errs.ErrValidation)
	}
	if id.OwnerAddress == "" {
		id.OwnerAddress = address
	}
	out := model.StoredIdentity{Address: address, Identity: id}
	err := r.db.Pool.QueryRow(ctx, q, address, id.OwnerAddress, id.UserID,
		int64(id.ReputationScore), int64(id.FollowerCount), int64(id.FollowingCount),
	).Scan(&out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return model.StoredIdentity{}, err
	}
	return out, nil
}

// Get selects the identity row for address.
func (r *IdentityRepo) Get(ctx context.Context, address string) (*model.StoredIdentity, error) {
	const q = `
SELECT address, owner, user_id, reputation_score, follower_count, following_count, created_at, updated_at
FROM identities WHERE address=$1`
	var (
		s                  model.StoredIdentity
		rep, fers, follows int64
	)
	err := r.db.Pool.QueryRow(ctx, q, address).Scan(
		&s.Address, &s.Identity.OwnerAddress, &s.Identity.UserID,
		&rep, &fers, &follows, &s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	s.Identity.ReputationScore = uint64(rep)
	s.Identity.FollowerCount = uint64(fers)
	s.Identity.FollowingCount = uint64(follows)
	return &s, nil
}
