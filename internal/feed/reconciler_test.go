package feed

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/privcaster/privcaster/internal/errs"
	"github.com/privcaster/privcaster/internal/model"
)

type fakeSource struct {
	posts    []model.Post
	fetchErr error
	delErr   error
	deleted  []string
}

var _ Source = (*fakeSource)(nil)

func (f *fakeSource) FetchPosts(context.Context) ([]model.Post, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return append([]model.Post(nil), f.posts...), nil
}

func (f *fakeSource) DeletePost(_ context.Context, id string) error {
	if f.delErr != nil {
		return f.delErr
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func fixedClock(sec int64) func() time.Time {
	return func() time.Time { return time.Unix(sec, 0) }
}

func newTestReconciler(t *testing.T, src *fakeSource) *Reconciler {
	t.Helper()
	return NewReconciler(src, zaptest.NewLogger(t), fixedClock(1700000100))
}

func requireSorted(t *testing.T, f Feed) {
	t.Helper()
	for i := 1; i < len(f); i++ {
		require.GreaterOrEqual(t, f[i-1].CreatedAt, f[i].CreatedAt, "feed out of order at %d: %+v", i, f)
	}
}

func ids(f Feed) []string {
	out := make([]string, len(f))
	for i, p := range f {
		out[i] = p.ID
	}
	return out
}

func TestLoadInitial_NormalizesSortsAndLabels(t *testing.T) {
	t.Parallel()

	src := &fakeSource{posts: []model.Post{
		{ID: "old", CreatedAt: 1699990000},
		{ID: "ms", CreatedAt: 1700000000000},
		{ID: "new", CreatedAt: 1700000090},
	}}
	r := newTestReconciler(t, src)

	f := r.LoadInitial(context.Background())
	require.Equal(t, []string{"new", "ms", "old"}, ids(f))
	require.Equal(t, int64(1700000000), f[1].CreatedAt)
	require.Equal(t, "just now", f[0].TimeLabel)
	require.Equal(t, "1m ago", f[1].TimeLabel)
	require.Equal(t, "2h ago", f[2].TimeLabel)
}

func TestLoadInitial_FetchErrorYieldsEmptyFeed(t *testing.T) {
	t.Parallel()

	r := newTestReconciler(t, &fakeSource{fetchErr: errors.New("down")})
	f := r.LoadInitial(context.Background())
	require.Empty(t, f)
}

func TestInsertLocal_PrependsAndWinsTies(t *testing.T) {
	t.Parallel()

	src := &fakeSource{posts: []model.Post{{ID: "a", CreatedAt: 1700000000}}}
	r := newTestReconciler(t, src)
	r.LoadInitial(context.Background())

	f := r.InsertLocal(model.Post{ID: "b", CreatedAt: 1700000000000, Unconfirmed: true})
	require.Equal(t, []string{"b", "a"}, ids(f))
	require.Equal(t, int64(1700000000), f[0].CreatedAt)

	f = r.InsertLocal(model.Post{ID: "c", CreatedAt: 1700000050})
	require.Equal(t, []string{"c", "b", "a"}, ids(f))

	// same id replaces, never duplicates
	f = r.InsertLocal(model.Post{ID: "c", CreatedAt: 1700000060, Text: "edited"})
	require.Len(t, f, 3)
	require.Equal(t, "edited", f[0].Text)
}

func TestReconcileConfirmed_ReplacesPlaceholder(t *testing.T) {
	t.Parallel()

	r := newTestReconciler(t, &fakeSource{})
	r.InsertLocal(model.Post{ID: "p1", CreatedAt: 1700000000, Unconfirmed: true, Text: "draft"})

	f, kept := r.ReconcileConfirmed("p1", model.Post{ID: "p1", CreatedAt: 1700000000000, Text: "hello"})
	require.True(t, kept)
	require.Len(t, f, 1)
	require.False(t, f[0].Unconfirmed)
	require.Equal(t, "hello", f[0].Text)
	require.Equal(t, int64(1700000000), f[0].CreatedAt)

	// unknown placeholder: confirmed record is still added
	f, kept = r.ReconcileConfirmed("ghost", model.Post{ID: "p2", CreatedAt: 1700000010})
	require.True(t, kept)
	require.Equal(t, []string{"p2", "p1"}, ids(f))
}

func TestRemove_PendingPostStaysDeletedAfterConfirm(t *testing.T) {
	t.Parallel()

	src := &fakeSource{posts: []model.Post{{ID: "old", CreatedAt: 1699999000}}}
	r := newTestReconciler(t, src)
	r.LoadInitial(context.Background())
	r.InsertPending(model.Post{ID: "p1", CreatedAt: 1700000000, Text: "draft"})

	f, err := r.Remove(context.Background(), "p1")
	require.NoError(t, err)
	require.Equal(t, []string{"old"}, ids(f))
	require.Empty(t, src.deleted, "backend delete must wait for the save")

	// the save lands on the backend before the confirmation arrives
	src.posts = append(src.posts, model.Post{ID: "p1", CreatedAt: 1700000000})
	f, err = r.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"old"}, ids(f))

	f, kept := r.ReconcileConfirmed("p1", model.Post{ID: "p1", CreatedAt: 1700000000, Text: "draft"})
	require.False(t, kept)
	require.Equal(t, []string{"old"}, ids(f))
	_, ok := r.Find("p1")
	require.False(t, ok)

	// settled: a later confirmation of the same id is applied normally
	r.InsertPending(model.Post{ID: "p1", CreatedAt: 1700000000})
	f, kept = r.ReconcileConfirmed("p1", model.Post{ID: "p1", CreatedAt: 1700000000})
	require.True(t, kept)
	require.Equal(t, []string{"p1", "old"}, ids(f))
}

func TestMarkUnconfirmed_AfterPendingRemoveKeepsPostGone(t *testing.T) {
	t.Parallel()

	r := newTestReconciler(t, &fakeSource{})
	r.InsertPending(model.Post{ID: "p1", CreatedAt: 1700000000})
	_, err := r.Remove(context.Background(), "p1")
	require.NoError(t, err)

	require.Empty(t, r.MarkUnconfirmed("p1"))
}

func TestMarkUnconfirmed_RetainsPost(t *testing.T) {
	t.Parallel()

	r := newTestReconciler(t, &fakeSource{})
	r.InsertLocal(model.Post{ID: "p1", CreatedAt: 1700000000})
	f := r.MarkUnconfirmed("p1")
	require.Len(t, f, 1)
	require.True(t, f[0].Unconfirmed)
}

func TestRemove_BackendFailureKeepsPost(t *testing.T) {
	t.Parallel()

	src := &fakeSource{posts: []model.Post{{ID: "x", CreatedAt: 1700000000}}}
	r := newTestReconciler(t, src)
	r.LoadInitial(context.Background())

	src.delErr = fmt.Errorf("%w: status 500", errs.ErrPersistence)
	f, err := r.Remove(context.Background(), "x")
	require.ErrorIs(t, err, errs.ErrPersistence)
	require.Equal(t, []string{"x"}, ids(f))
	_, ok := r.Find("x")
	require.True(t, ok)

	src.delErr = nil
	f, err = r.Remove(context.Background(), "x")
	require.NoError(t, err)
	require.Empty(t, f)
	require.Equal(t, []string{"x"}, src.deleted)
}

func TestRemove_Validation(t *testing.T) {
	t.Parallel()

	src := &fakeSource{}
	r := newTestReconciler(t, src)
	_, err := r.Remove(context.Background(), "")
	require.ErrorIs(t, err, errs.ErrValidation)
	require.Empty(t, src.deleted)
}

func TestRemove_UnconfirmedPlaceholderNotOnBackend(t *testing.T) {
	t.Parallel()

	src := &fakeSource{}
	r := newTestReconciler(t, src)
	r.InsertLocal(model.Post{ID: "local", CreatedAt: 1700000000, Unconfirmed: true})
	r.InsertLocal(model.Post{ID: "known", CreatedAt: 1700000001})

	src.delErr = fmt.Errorf("delete post: %w", errs.ErrNotFound)
	f, err := r.Remove(context.Background(), "local")
	require.NoError(t, err)
	require.Equal(t, []string{"known"}, ids(f))

	_, err = r.Remove(context.Background(), "known")
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestToggleLike_IsInvolution(t *testing.T) {
	t.Parallel()

	r := newTestReconciler(t, &fakeSource{})
	r.InsertLocal(model.Post{ID: "p", CreatedAt: 1700000000, LikeCount: 3})

	f, ok := r.ToggleLike("p")
	require.True(t, ok)
	require.Equal(t, 4, f[0].LikeCount)
	require.True(t, f[0].LikedByViewer)

	f, ok = r.ToggleLike("p")
	require.True(t, ok)
	require.Equal(t, 3, f[0].LikeCount)
	require.False(t, f[0].LikedByViewer)

	_, ok = r.ToggleLike("missing")
	require.False(t, ok)
}

func TestAddReply(t *testing.T) {
	t.Parallel()

	r := newTestReconciler(t, &fakeSource{})
	r.InsertLocal(model.Post{ID: "p", CreatedAt: 1700000000})
	r.AddReply("p")
	f, ok := r.AddReply("p")
	require.True(t, ok)
	require.Equal(t, 2, f[0].ReplyCount)
}

func TestRefresh_MergesKeepingLocalState(t *testing.T) {
	t.Parallel()

	src := &fakeSource{posts: []model.Post{{ID: "a", CreatedAt: 1700000000, LikeCount: 1}}}
	r := newTestReconciler(t, src)
	r.LoadInitial(context.Background())
	r.ToggleLike("a")
	r.InsertLocal(model.Post{ID: "pending", CreatedAt: 1700000050, Unconfirmed: true})

	src.posts = append(src.posts, model.Post{ID: "b", CreatedAt: 1700000020000}, model.Post{ID: "b", CreatedAt: 1700000020})
	f, err := r.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"pending", "b", "a"}, ids(f))
	require.True(t, f[2].LikedByViewer)
	require.Equal(t, 2, f[2].LikeCount)

	src.fetchErr = errors.New("down")
	f, err = r.Refresh(context.Background())
	require.Error(t, err)
	require.Len(t, f, 3)
}

func TestSnapshot_LabelsFollowClock(t *testing.T) {
	t.Parallel()

	now := int64(1700000100)
	r := NewReconciler(&fakeSource{}, zaptest.NewLogger(t), func() time.Time { return time.Unix(now, 0) })
	r.InsertLocal(model.Post{ID: "p", CreatedAt: 1700000000})
	require.Equal(t, "1m ago", r.Snapshot()[0].TimeLabel)

	now += 2 * 86400
	require.Equal(t, "2d ago", r.Snapshot()[0].TimeLabel)
}

func TestRandomMutations_KeepOrdering(t *testing.T) {
	t.Parallel()

	src := &fakeSource{}
	r := newTestReconciler(t, src)
	rng := rand.New(rand.NewSource(42))
	ctx := context.Background()

	var f Feed
	for i := 0; i < 2000; i++ {
		id := fmt.Sprintf("p%d", rng.Intn(40))
		ts := 1699000000 + rng.Int63n(2000000)
		if rng.Intn(2) == 0 {
			ts *= 1000
		}
		switch rng.Intn(4) {
		case 0, 1:
			f = r.InsertLocal(model.Post{ID: id, CreatedAt: ts, Unconfirmed: true})
		case 2:
			f, _ = r.ReconcileConfirmed(id, model.Post{ID: id, CreatedAt: ts})
		case 3:
			src.delErr = nil
			if rng.Intn(3) == 0 {
				src.delErr = errors.New("500")
			}
			f, _ = r.Remove(ctx, id)
		}
		requireSorted(t, f)
		seen := map[string]bool{}
		for _, p := range f {
			require.False(t, seen[p.ID], "duplicate id %s", p.ID)
			seen[p.ID] = true
			require.Less(t, p.CreatedAt, int64(1e11))
		}
	}
}
