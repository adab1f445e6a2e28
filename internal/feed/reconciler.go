package feed

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/privcaster/privcaster/internal/errs"
	"github.com/privcaster/privcaster/internal/model"
)

// Feed is an ordered post sequence, newest first.
type Feed []model.Post

// Source is the backend the reconciler reads from and deletes through.
type Source interface {
	FetchPosts(ctx context.Context) ([]model.Post, error)
	DeletePost(ctx context.Context, id string) error
}

// Reconciler is the single owner of the in-memory feed. Every mutation reads
// the latest state under the lock and rebuilds the whole feed, so ordering
// holds after any sequence of operations.
type Reconciler struct {
	src Source
	log *zap.Logger
	now func() time.Time

	mu    sync.Mutex
	posts []model.Post

	// pending holds placeholders whose backend save is in flight; removed
	// holds the pending ones the user deleted before the save returned.
	pending map[string]struct{}
	removed map[string]struct{}
}

// NewReconciler constructs an empty feed backed by src. A nil clock means time.Now.
func NewReconciler(src Source, log *zap.Logger, now func() time.Time) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &Reconciler{
		src:     src,
		log:     log,
		now:     now,
		pending: make(map[string]struct{}),
		removed: make(map[string]struct{}),
	}
}

// LoadInitial fetches all backend posts and builds the feed from them.
// A failed fetch is logged and leaves the feed as it was (empty at startup).
func (r *Reconciler) LoadInitial(ctx context.Context) Feed {
	fetched, err := r.src.FetchPosts(ctx)
	if err != nil {
		r.log.Warn("load feed", zap.Error(err))
		return r.Snapshot()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.log.Debug("feed loaded", zap.Int("posts", len(fetched)))
	return r.rebuild(r.withoutRemoved(merge(r.posts, fetched)))
}

// Refresh re-fetches the backend and merges it with local state: local
// placeholders the backend does not know yet are kept, and local-only
// interaction state (likes, replies) survives. Errors leave the feed untouched.
func (r *Reconciler) Refresh(ctx context.Context) (Feed, error) {
	fetched, err := r.src.FetchPosts(ctx)
	if err != nil {
		return r.Snapshot(), err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rebuild(r.withoutRemoved(merge(r.posts, fetched))), nil
}

// InsertLocal puts a freshly composed post at the head of the feed before
// the backend confirms it. An existing entry with the same id is replaced.
func (r *Reconciler) InsertLocal(p model.Post) Feed {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insert(p)
}

// InsertPending inserts p as an unconfirmed placeholder whose backend save
// is in flight. It must be settled by ReconcileConfirmed or MarkUnconfirmed.
func (r *Reconciler) InsertPending(p model.Post) Feed {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.Unconfirmed = true
	r.pending[p.ID] = struct{}{}
	delete(r.removed, p.ID)
	return r.insert(p)
}

func (r *Reconciler) insert(p model.Post) Feed {
	p.CreatedAt = Normalize(p.CreatedAt)
	next := make([]model.Post, 0, len(r.posts)+1)
	next = append(next, p)
	for _, q := range r.posts {
		if q.ID != p.ID {
			next = append(next, q)
		}
	}
	return r.rebuild(next)
}

// ReconcileConfirmed replaces the placeholder localID with the backend's
// confirmed record. If the placeholder is gone the confirmed record is added,
// unless it was removed while its save was pending: then the feed is left as
// is and false is returned so the caller can delete the backend copy.
func (r *Reconciler) ReconcileConfirmed(localID string, confirmed model.Post) (Feed, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.pending, localID)
	if _, gone := r.removed[localID]; gone {
		delete(r.removed, localID)
		return r.snapshot(), false
	}

	if confirmed.ID == "" {
		confirmed.ID = localID
	}
	confirmed.CreatedAt = Normalize(confirmed.CreatedAt)
	confirmed.Unconfirmed = false

	next := make([]model.Post, 0, len(r.posts)+1)
	placed := false
	for _, q := range r.posts {
		switch {
		case q.ID == localID && !placed:
			next = append(next, confirmed)
			placed = true
		case q.ID == localID || q.ID == confirmed.ID:
			// duplicate of the confirmed record
		default:
			next = append(next, q)
		}
	}
	if !placed {
		next = append([]model.Post{confirmed}, next...)
	}
	return r.rebuild(next), true
}

// MarkUnconfirmed flags the placeholder localID as not persisted. It stays
// visible for the session unless it was removed while pending.
func (r *Reconciler) MarkUnconfirmed(localID string) Feed {
	r.mu.Lock()
	delete(r.pending, localID)
	_, gone := r.removed[localID]
	delete(r.removed, localID)
	r.mu.Unlock()
	if gone {
		return r.Snapshot()
	}
	f, _ := r.update(localID, func(p *model.Post) { p.Unconfirmed = true })
	return f
}

// Remove deletes id from the backend and then from the feed. A backend
// failure leaves the feed unchanged and is returned. A placeholder the
// backend never stored is removed locally when the backend reports not found.
// A placeholder whose save is still pending is only removed locally; the
// backend copy is deleted when the save settles.
func (r *Reconciler) Remove(ctx context.Context, id string) (Feed, error) {
	if id == "" {
		return r.Snapshot(), fmt.Errorf("%w: empty post id", errs.ErrValidation)
	}

	r.mu.Lock()
	if _, ok := r.pending[id]; ok {
		r.removed[id] = struct{}{}
		f := r.rebuild(without(r.posts, id))
		r.mu.Unlock()
		r.log.Debug("pending post removed", zap.String("id", id))
		return f, nil
	}
	r.mu.Unlock()

	if err := r.src.DeletePost(ctx, id); err != nil {
		if !errors.Is(err, errs.ErrNotFound) || !r.isUnconfirmed(id) {
			return r.Snapshot(), err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rebuild(without(r.posts, id)), nil
}

// ToggleLike flips the viewer's like on id. Applying it twice restores the
// original state. Reports false when id is not in the feed.
func (r *Reconciler) ToggleLike(id string) (Feed, bool) {
	return r.update(id, func(p *model.Post) {
		if p.LikedByViewer {
			p.LikeCount--
		} else {
			p.LikeCount++
		}
		p.LikedByViewer = !p.LikedByViewer
	})
}

// AddReply increments the reply counter of id.
func (r *Reconciler) AddReply(id string) (Feed, bool) {
	return r.update(id, func(p *model.Post) { p.ReplyCount++ })
}

// Snapshot returns a copy of the feed with time labels derived from the current clock.
func (r *Reconciler) Snapshot() Feed {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot()
}

// Find returns the post with the given id.
func (r *Reconciler) Find(id string) (model.Post, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.posts {
		if p.ID == id {
			return p, true
		}
	}
	return model.Post{}, false
}

func (r *Reconciler) isUnconfirmed(id string) bool {
	p, ok := r.Find(id)
	return ok && p.Unconfirmed
}

func (r *Reconciler) update(id string, fn func(*model.Post)) (Feed, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := slices.Clone(r.posts)
	found := false
	for i := range next {
		if next[i].ID == id {
			fn(&next[i])
			found = true
			break
		}
	}
	if !found {
		return r.snapshot(), false
	}
	return r.rebuild(next), true
}

// withoutRemoved drops posts deleted while pending. Callers hold r.mu.
func (r *Reconciler) withoutRemoved(posts []model.Post) []model.Post {
	if len(r.removed) == 0 {
		return posts
	}
	return slices.DeleteFunc(posts, func(p model.Post) bool {
		_, gone := r.removed[p.ID]
		return gone
	})
}

func without(posts []model.Post, id string) []model.Post {
	next := make([]model.Post, 0, len(posts))
	for _, q := range posts {
		if q.ID != id {
			next = append(next, q)
		}
	}
	return next
}

// rebuild installs posts as the new feed. Callers hold r.mu.
func (r *Reconciler) rebuild(posts []model.Post) Feed {
	slices.SortStableFunc(posts, func(a, b model.Post) int {
		return cmp.Compare(b.CreatedAt, a.CreatedAt)
	})
	r.posts = posts
	return r.snapshot()
}

func (r *Reconciler) snapshot() Feed {
	now := r.now().Unix()
	out := make(Feed, len(r.posts))
	for i, p := range r.posts {
		p.TimeLabel = RelativeLabel(p.CreatedAt, now)
		out[i] = p
	}
	return out
}

// merge combines local state with a backend listing. Local placeholders come
// first so they win timestamp ties.
func merge(local, fetched []model.Post) []model.Post {
	byID := make(map[string]model.Post, len(local))
	for _, p := range local {
		byID[p.ID] = p
	}
	inFetched := make(map[string]struct{}, len(fetched))
	for _, p := range fetched {
		inFetched[p.ID] = struct{}{}
	}

	out := make([]model.Post, 0, len(local)+len(fetched))
	for _, p := range local {
		if _, ok := inFetched[p.ID]; !ok && p.Unconfirmed {
			out = append(out, p)
		}
	}
	seen := make(map[string]struct{}, len(fetched))
	for _, p := range fetched {
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}
		p.CreatedAt = Normalize(p.CreatedAt)
		p.Unconfirmed = false
		if l, ok := byID[p.ID]; ok {
			p.LikedByViewer = l.LikedByViewer
			p.LikeCount = l.LikeCount
			p.ReplyCount = l.ReplyCount
		}
		out = append(out, p)
	}
	return out
}
