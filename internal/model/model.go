// Package model defines domain entities used by services, the feed and repositories.
package model

import "time"

// Identity is the per-wallet pseudonymous profile. At most one exists per OwnerAddress.
type Identity struct {
	OwnerAddress    string // wallet public key, PK
	UserID          string // opaque field literal, e.g. "1234field"
	ReputationScore uint64
	FollowerCount   uint64
	FollowingCount  uint64
}

// Post is a single feed entry. CreatedAt is canonical unix seconds.
type Post struct {
	ID            string
	AuthorHandle  string // derived, pseudonymous
	Text          string
	CreatedAt     int64
	IsPrivate     bool
	IsOnChain     bool
	LikeCount     int
	ReplyCount    int
	RelayCount    int
	LikedByViewer bool
	OriginTxID    string // empty when the post has no on-chain origin
	Unconfirmed   bool   // local placeholder whose backend write failed
	TimeLabel     string // derived at read time, never the source of truth
}

// StoredIdentity is the backend's identity document.
type StoredIdentity struct {
	Address   string
	Identity  Identity
	CreatedAt time.Time
	UpdatedAt time.Time
}

// StoredPost is the backend's post document. Timestamp is kept as written by
// the client (seconds or milliseconds); readers normalize it.
type StoredPost struct {
	ID        string
	User      string
	UserID    string
	Text      string
	Verified  bool
	Likes     int
	Replies   int
	Relays    int
	IsLiked   bool
	OnChain   bool
	IsPrivate bool
	Timestamp int64
	TxID      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PostState is the lifecycle of a single post submission.
type PostState int

const (
	Composing PostState = iota
	Submitting
	Confirmed
	FailedAndDiscarded
)

func (s PostState) String() string {
	switch s {
	case Composing:
		return "composing"
	case Submitting:
		return "submitting"
	case Confirmed:
		return "confirmed"
	case FailedAndDiscarded:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s PostState) Terminal() bool { return s == Confirmed || s == FailedAndDiscarded }
