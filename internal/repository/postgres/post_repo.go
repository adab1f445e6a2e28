package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/privcaster/privcaster/internal/errs"
	"github.com/privcaster/privcaster/internal/model"
)

// PostRepo implements PostRepository using PostgreSQL.
type PostRepo struct{ db *DB }

// NewPostRepo constructs a post repository.
func NewPostRepo(db *DB) *PostRepo { return &PostRepo{db: db} }

const postColumns = `id, author, author_id, body, verified, likes, replies, relays,
is_liked, on_chain, is_private, ts, tx_id, created_at, updated_at`

// Upsert inserts or replaces the post row with p.ID.
func (r *PostRepo) Upsert(ctx context.Context, p model.StoredPost) (model.StoredPost, error) {
	const q = `
INSERT INTO posts (id, author, author_id, body, verified, likes, replies, relays, is_liked, on_chain, is_private, ts, tx_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (id) DO UPDATE
SET author=EXCLUDED.author, author_id=EXCLUDED.author_id, body=EXCLUDED.body, verified=EXCLUDED.verified,
    likes=EXCLUDED.likes, replies=EXCLUDED.replies, relays=EXCLUDED.relays, is_liked=EXCLUDED.is_liked,
    on_chain=EXCLUDED.on_chain, is_private=EXCLUDED.is_private, ts=EXCLUDED.ts, tx_id=EXCLUDED.tx_id,
    updated_at=now()
RETURNING created_at, updated_at`
	err := r.db.Pool.QueryRow(ctx, q,
		p.ID, p.User, p.UserID, p.Text, p.Verified, p.Likes, p.Replies, p.Relays,
		p.IsLiked, p.OnChain, p.IsPrivate, p.Timestamp, nullable(p.TxID),
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return model.StoredPost{}, err
	}
	return p, nil
}

// List returns every post, newest timestamp first.
func (r *PostRepo) List(ctx context.Context) ([]model.StoredPost, error) {
	q := `SELECT ` + postColumns + ` FROM posts ORDER BY ts DESC, created_at DESC`
	rows, err := r.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.StoredPost, 0)
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Delete removes the post row with id.
func (r *PostRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM posts WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func scanPost(row pgx.Row) (model.StoredPost, error) {
	var (
		p    model.StoredPost
		txID *string
	)
	err := row.Scan(&p.ID, &p.User, &p.UserID, &p.Text, &p.Verified, &p.Likes, &p.Replies, &p.Relays,
		&p.IsLiked, &p.OnChain, &p.IsPrivate, &p.Timestamp, &txID, &p.CreatedAt, &p.UpdatedAt)
	if txID != nil {
		p.TxID = *txID
	}
	return p, err
}
