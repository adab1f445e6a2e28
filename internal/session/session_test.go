package session

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/privcaster/privcaster/internal/errs"
	"github.com/privcaster/privcaster/internal/model"
	"github.com/privcaster/privcaster/internal/persistence"
	"github.com/privcaster/privcaster/internal/wallet"
	"github.com/privcaster/privcaster/internal/wallet/devwallet"
)

type memStore struct {
	mu         sync.Mutex
	identities map[string]model.Identity
	posts      map[string]model.Post
	fetchErr   error
}

var _ persistence.Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{identities: map[string]model.Identity{}, posts: map[string]model.Post{}}
}

func (m *memStore) SaveIdentity(_ context.Context, address string, id model.Identity) (model.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.identities[address] = id
	return id, nil
}

func (m *memStore) FetchIdentity(_ context.Context, address string) (*model.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.identities[address]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &id, nil
}

func (m *memStore) SavePost(_ context.Context, p model.Post) (model.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// stored like the backend does: milliseconds
	p.CreatedAt *= 1000
	m.posts[p.ID] = p
	return p, nil
}

func (m *memStore) FetchPosts(context.Context) ([]model.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	out := make([]model.Post, 0, len(m.posts))
	for _, p := range m.posts {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	return out, nil
}

func (m *memStore) DeletePost(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.posts[id]; !ok {
		return errs.ErrNotFound
	}
	delete(m.posts, id)
	return nil
}

func newSession(t *testing.T, store *memStore, balance uint64) (*Session, *devwallet.Wallet) {
	t.Helper()
	log := zaptest.NewLogger(t)
	dw, err := devwallet.New(bytes.Repeat([]byte{5}, 32), balance, log)
	require.NoError(t, err)
	wc := wallet.NewClient(dw, wallet.Config{}, log)
	return New(wc, store, Config{Now: func() time.Time { return time.Unix(1700000100, 0) }}, log), dw
}

func TestSession_OpenFeedFailureIsEmpty(t *testing.T) {
	t.Parallel()
	st := newMemStore()
	st.fetchErr = fmt.Errorf("%w: down", errs.ErrPersistence)
	s, _ := newSession(t, st, 0)

	require.Empty(t, s.Open(context.Background()))
}

func TestSession_EndToEnd(t *testing.T) {
	t.Parallel()
	st := newMemStore()
	st.posts["old"] = model.Post{ID: "old", Text: "earlier", CreatedAt: 1700000000000}
	s, dw := newSession(t, st, 1_000_000)
	ctx := context.Background()

	f := s.Open(ctx)
	require.Len(t, f, 1)
	require.Equal(t, int64(1700000000), f[0].CreatedAt)
	require.Equal(t, "1m ago", f[0].TimeLabel)

	_, err := s.CreatePost(ctx, "hi", false)
	require.ErrorIs(t, err, errs.ErrNotConnected)

	id, err := s.Connect(ctx)
	require.NoError(t, err)
	require.Nil(t, id)
	require.Equal(t, dw.Address(), s.Address())

	sub, err := s.CreatePost(ctx, "hello world", false)
	require.NoError(t, err)
	require.Equal(t, model.Confirmed, sub.State)
	require.NotNil(t, s.Identity())
	require.Equal(t, dw.Address(), s.Identity().OwnerAddress)
	require.Equal(t, uint64(1_000_000-35000-35000), dw.Balance())

	f = s.Feed()
	require.Len(t, f, 2)
	require.Equal(t, sub.Post.ID, f[0].ID)
	require.Equal(t, int64(1700000100), f[0].CreatedAt)

	f, err = s.Refresh(ctx)
	require.NoError(t, err)
	require.Len(t, f, 2)

	sig, err := s.Sign(ctx, "proof")
	require.NoError(t, err)
	require.True(t, devwallet.Verify(dw.Address(), []byte("proof"), sig))

	recs, err := s.Records(ctx, wallet.CreditsProgram)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	pt, err := s.Decrypt(ctx, string(recs[0].Bytes()))
	require.NoError(t, err)
	require.Contains(t, pt, "microcredits")

	f, err = s.DeletePost(ctx, sub.Post.ID)
	require.NoError(t, err)
	require.Len(t, f, 1)

	require.NoError(t, s.Close(ctx))
	require.Nil(t, s.Identity())
	require.Empty(t, s.Address())
}

func TestSession_ConnectResolvesExistingIdentity(t *testing.T) {
	t.Parallel()
	st := newMemStore()
	s, dw := newSession(t, st, 100000)
	st.identities[dw.Address()] = model.Identity{OwnerAddress: dw.Address(), UserID: "123field", ReputationScore: 10}

	id, err := s.Connect(context.Background())
	require.NoError(t, err)
	require.Equal(t, "123field", id.UserID)

	_, err = s.CreatePost(context.Background(), "hi", false)
	require.NoError(t, err)
	require.Len(t, dw.History(), 1)
}

func TestSession_InsufficientFunds(t *testing.T) {
	t.Parallel()
	s, _ := newSession(t, newMemStore(), 100)
	ctx := context.Background()
	_, err := s.Connect(ctx)
	require.NoError(t, err)

	_, err = s.EnsureIdentity(ctx)
	require.ErrorIs(t, err, errs.ErrIdentityCreationFailed)
	require.ErrorIs(t, err, errs.ErrInsufficientFunds)
	require.Contains(t, errs.UserMessage(err), errs.FaucetURL)
	require.Nil(t, s.Identity())
}

func TestSession_PayoutsAndGroups(t *testing.T) {
	t.Parallel()
	s, dw := newSession(t, newMemStore(), 1_000_000)
	ctx := context.Background()
	_, err := s.Connect(ctx)
	require.NoError(t, err)

	pool, err := s.CreatePayoutPool(ctx, 500, 5, "active repliers")
	require.NoError(t, err)
	require.NotEmpty(t, pool.ID)
	pools, err := s.Records(ctx, wallet.DefaultProgram)
	require.NoError(t, err)
	require.Len(t, pools, 1)

	claim, err := s.ClaimPayout(ctx, pools[0], 100, "replied 3 times")
	require.NoError(t, err)
	require.NotEmpty(t, claim.TxID)

	group, err := s.CreateGroup(ctx, "book club")
	require.NoError(t, err)
	require.NotEmpty(t, group.ID)

	// records now: re-issued pool, group
	recs, err := s.Records(ctx, wallet.DefaultProgram)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	_, err = s.AddGroupMember(ctx, recs[1], "aleo1reader")
	require.NoError(t, err)

	recs, err = s.Records(ctx, wallet.DefaultProgram)
	require.NoError(t, err)
	require.Len(t, recs, 3, "pool, group, membership")
	_, err = s.GroupPayout(ctx, recs[0], recs[2], 50)
	require.NoError(t, err)

	h, err := s.TransactionHistory(ctx, wallet.DefaultProgram)
	require.NoError(t, err)
	require.Len(t, h, 5)
	require.Len(t, dw.History(), 5)
	require.Empty(t, s.Feed(), "payout actions never touch the feed")
}
