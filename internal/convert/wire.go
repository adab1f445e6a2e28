// Package convert maps domain entities to and from the backend's JSON documents.
package convert

import (
	"time"

	"github.com/privcaster/privcaster/internal/model"
)

// PostDoc is the wire shape of a post.
type PostDoc struct {
	ID        string     `json:"id"`
	User      string     `json:"user"`
	UserID    string     `json:"userId"`
	Text      string     `json:"text"`
	Verified  bool       `json:"verified"`
	Likes     int        `json:"likes"`
	Replies   int        `json:"replies"`
	Relays    int        `json:"relays"`
	IsLiked   bool       `json:"isLiked"`
	OnChain   bool       `json:"onChain"`
	IsPrivate bool       `json:"isPrivate"`
	Timestamp int64      `json:"timestamp"`
	TxID      *string    `json:"txId"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// IdentityBody is the nested identity object of an identity document.
type IdentityBody struct {
	Owner           string `json:"owner"`
	UserID          string `json:"user_id"`
	ReputationScore uint64 `json:"reputation_score"`
	FollowerCount   uint64 `json:"follower_count"`
	FollowingCount  uint64 `json:"following_count"`
}

// IdentityDoc is the wire shape of an identity document.
type IdentityDoc struct {
	Address   string        `json:"address"`
	Identity  *IdentityBody `json:"identity"`
	CreatedAt *time.Time    `json:"createdAt,omitempty"`
	UpdatedAt *time.Time    `json:"updatedAt,omitempty"`
}

// ErrorDoc is the backend's error body.
type ErrorDoc struct {
	Error string `json:"error"`
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

// --- posts, client side ---

// ToPostDoc renders a feed post for the backend. The timestamp is written
// in milliseconds, like every other client of this backend.
func ToPostDoc(p model.Post) PostDoc {
	return PostDoc{
		ID:        p.ID,
		User:      p.AuthorHandle,
		UserID:    p.AuthorHandle,
		Text:      p.Text,
		Verified:  p.IsOnChain,
		Likes:     p.LikeCount,
		Replies:   p.ReplyCount,
		Relays:    p.RelayCount,
		IsLiked:   p.LikedByViewer,
		OnChain:   p.IsOnChain,
		IsPrivate: p.IsPrivate,
		Timestamp: p.CreatedAt * 1000,
		TxID:      strPtr(p.OriginTxID),
	}
}

// FromPostDoc reads a backend post. CreatedAt carries the raw timestamp;
// the feed normalizes it.
func FromPostDoc(d PostDoc) model.Post {
	author := d.User
	if author == "" {
		author = d.UserID
	}
	return model.Post{
		ID:            d.ID,
		AuthorHandle:  author,
		Text:          d.Text,
		CreatedAt:     d.Timestamp,
		IsPrivate:     d.IsPrivate,
		IsOnChain:     d.OnChain,
		LikeCount:     d.Likes,
		ReplyCount:    d.Replies,
		RelayCount:    d.Relays,
		LikedByViewer: d.IsLiked,
		OriginTxID:    deref(d.TxID),
	}
}

// FromPostDocs converts a list.
func FromPostDocs(ds []PostDoc) []model.Post {
	out := make([]model.Post, 0, len(ds))
	for _, d := range ds {
		out = append(out, FromPostDoc(d))
	}
	return out
}

// --- posts, backend side ---

// StoredPostFromDoc maps a request body to the stored document.
func StoredPostFromDoc(d PostDoc) model.StoredPost {
	return model.StoredPost{
		ID:        d.ID,
		User:      d.User,
		UserID:    d.UserID,
		Text:      d.Text,
		Verified:  d.Verified,
		Likes:     d.Likes,
		Replies:   d.Replies,
		Relays:    d.Relays,
		IsLiked:   d.IsLiked,
		OnChain:   d.OnChain,
		IsPrivate: d.IsPrivate,
		Timestamp: d.Timestamp,
		TxID:      deref(d.TxID),
	}
}

// DocFromStoredPost maps a stored document to its response body.
func DocFromStoredPost(p model.StoredPost) PostDoc {
	return PostDoc{
		ID:        p.ID,
		User:      p.User,
		UserID:    p.UserID,
		Text:      p.Text,
		Verified:  p.Verified,
		Likes:     p.Likes,
		Replies:   p.Replies,
		Relays:    p.Relays,
		IsLiked:   p.IsLiked,
		OnChain:   p.OnChain,
		IsPrivate: p.IsPrivate,
		Timestamp: p.Timestamp,
		TxID:      strPtr(p.TxID),
		CreatedAt: timePtr(p.CreatedAt),
		UpdatedAt: timePtr(p.UpdatedAt),
	}
}

// --- identities ---

// ToIdentityBody renders the nested identity object.
func ToIdentityBody(id model.Identity) *IdentityBody {
	return &IdentityBody{
		Owner:           id.OwnerAddress,
		UserID:          id.UserID,
		ReputationScore: id.ReputationScore,
		FollowerCount:   id.FollowerCount,
		FollowingCount:  id.FollowingCount,
	}
}

// FromIdentityDoc extracts the identity. The owner falls back to the
// document address when the nested object omits it.
func FromIdentityDoc(d IdentityDoc) model.Identity {
	b := deref(d.Identity)
	owner := b.Owner
	if owner == "" {
		owner = d.Address
	}
	return model.Identity{
		OwnerAddress:    owner,
		UserID:          b.UserID,
		ReputationScore: b.ReputationScore,
		FollowerCount:   b.FollowerCount,
		FollowingCount:  b.FollowingCount,
	}
}

// DocFromStoredIdentity maps a stored identity to its response body.
func DocFromStoredIdentity(s model.StoredIdentity) IdentityDoc {
	return IdentityDoc{
		Address:   s.Address,
		Identity:  ToIdentityBody(s.Identity),
		CreatedAt: timePtr(s.CreatedAt),
		UpdatedAt: timePtr(s.UpdatedAt),
	}
}
