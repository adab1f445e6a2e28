// Package persistence is the client side of the PrivCaster backend: identity
// and post documents over HTTP.
package persistence

import (
	"context"

	"github.com/privcaster/privcaster/internal/model"
)

// Store is the backend CRUD surface the client core depends on.
type Store interface {
	// SaveIdentity upserts the identity for address and returns the stored copy.
	SaveIdentity(ctx context.Context, address string, id model.Identity) (model.Identity, error)
	// FetchIdentity returns errs.ErrNotFound when the address has no identity.
	FetchIdentity(ctx context.Context, address string) (*model.Identity, error)
	// SavePost upserts p by id and returns the stored copy.
	SavePost(ctx context.Context, p model.Post) (model.Post, error)
	// FetchPosts returns every post, newest first.
	FetchPosts(ctx context.Context) ([]model.Post, error)
	// DeletePost returns errs.ErrNotFound when nothing was deleted.
	DeletePost(ctx context.Context, id string) error
}
