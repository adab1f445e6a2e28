package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/privcaster/privcaster/internal/errs"
	"github.com/privcaster/privcaster/internal/feed"
	"github.com/privcaster/privcaster/internal/model"
)

type fakeWallet struct {
	mu      sync.Mutex
	address string
	delay   time.Duration

	identityCalls []string
	identityErr   error
	casts         []string
	castErr       error
	tips          []string
	tipErr        error
}

var _ Wallet = (*fakeWallet)(nil)

func (w *fakeWallet) Address() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.address
}

func (w *fakeWallet) CreateIdentity(_ context.Context, userID string, _ uint64) (string, error) {
	time.Sleep(w.delay)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.identityErr != nil {
		return "", w.identityErr
	}
	w.identityCalls = append(w.identityCalls, userID)
	return fmt.Sprintf("at1identity%d", len(w.identityCalls)), nil
}

func (w *fakeWallet) CreateCast(_ context.Context, castID, _ string, _ int64) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.castErr != nil {
		return "", w.castErr
	}
	w.casts = append(w.casts, castID)
	return "at1cast" + castID, nil
}

func (w *fakeWallet) TipPost(_ context.Context, _ string, _ uint64, postID string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.tipErr != nil {
		return "", w.tipErr
	}
	w.tips = append(w.tips, postID)
	return "at1tip", nil
}

func (w *fakeWallet) identityTxs() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.identityCalls)
}

// fakeStore is an in-memory backend.
type fakeStore struct {
	mu         sync.Mutex
	identities map[string]model.Identity
	posts      map[string]model.Post

	fetchIdentityErr error
	saveIdentityErr  error
	savePostErr      error
	deleteErr        error
	identitySaves    int
	deletes          []string

	// saveStarted receives the post id when SavePost is entered; SavePost
	// then blocks until saveGate is closed.
	saveStarted chan string
	saveGate    chan struct{}
}

var (
	_ IdentityStore = (*fakeStore)(nil)
	_ PostStore     = (*fakeStore)(nil)
	_ feed.Source   = (*fakeStore)(nil)
)

func newFakeStore() *fakeStore {
	return &fakeStore{identities: map[string]model.Identity{}, posts: map[string]model.Post{}}
}

func (s *fakeStore) SaveIdentity(_ context.Context, address string, id model.Identity) (model.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveIdentityErr != nil {
		return model.Identity{}, s.saveIdentityErr
	}
	s.identitySaves++
	s.identities[address] = id
	return id, nil
}

func (s *fakeStore) FetchIdentity(_ context.Context, address string) (*model.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetchIdentityErr != nil {
		return nil, s.fetchIdentityErr
	}
	id, ok := s.identities[address]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &id, nil
}

func (s *fakeStore) SavePost(_ context.Context, p model.Post) (model.Post, error) {
	if s.saveStarted != nil {
		s.saveStarted <- p.ID
	}
	if s.saveGate != nil {
		<-s.saveGate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.savePostErr != nil {
		return model.Post{}, s.savePostErr
	}
	s.posts[p.ID] = p
	return p, nil
}

func (s *fakeStore) FetchPosts(context.Context) ([]model.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Post, 0, len(s.posts))
	for _, p := range s.posts {
		out = append(out, p)
	}
	return out, nil
}

func (s *fakeStore) DeletePost(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.deletes = append(s.deletes, id)
	if _, ok := s.posts[id]; !ok {
		return errs.ErrNotFound
	}
	delete(s.posts, id)
	return nil
}
