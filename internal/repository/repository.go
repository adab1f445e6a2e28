// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/privcaster/privcaster/internal/model"
)

// IdentityRepository stores at most one identity document per address.
type IdentityRepository interface {
	// Upsert creates or replaces the identity for address.
	Upsert(ctx context.Context, address string, id model.Identity) (model.StoredIdentity, error)
	// Get loads the identity for address or returns errs.ErrNotFound.
	Get(ctx context.Context, address string) (*model.StoredIdentity, error)
}

// PostRepository stores post documents keyed by id.
type PostRepository interface {
	// Upsert creates or replaces the post with p.ID.
	Upsert(ctx context.Context, p model.StoredPost) (model.StoredPost, error)
	// List returns all posts ordered by timestamp, newest first.
	List(ctx context.Context) ([]model.StoredPost, error)
	// Delete removes a post or returns errs.ErrNotFound.
	Delete(ctx context.Context, id string) error
}
