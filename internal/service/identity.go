// Package service contains the client-side application services: identity
// resolution, the post action engine and payout/group actions.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/privcaster/privcaster/internal/errs"
	"github.com/privcaster/privcaster/internal/field"
	"github.com/privcaster/privcaster/internal/model"
)

// DefaultReputation is the reputation a fresh identity starts with.
const DefaultReputation uint64 = 10

// Wallet is the subset of the wallet adapter the services call.
type Wallet interface {
	Address() string
	CreateIdentity(ctx context.Context, userID string, reputation uint64) (string, error)
	CreateCast(ctx context.Context, castID, contentHash string, timestamp int64) (string, error)
	TipPost(ctx context.Context, author string, amount uint64, postID string) (string, error)
}

// IdentityStore persists identity documents.
type IdentityStore interface {
	SaveIdentity(ctx context.Context, address string, id model.Identity) (model.Identity, error)
	FetchIdentity(ctx context.Context, address string) (*model.Identity, error)
}

// IdentityService links a wallet address to its pseudonymous identity.
type IdentityService interface {
	// Resolve returns the identity for address, or nil when none exists.
	Resolve(ctx context.Context, address string) (*model.Identity, error)
	// Ensure returns the existing identity or creates exactly one.
	Ensure(ctx context.Context, address string, initialReputation uint64) (model.Identity, error)
	// Forget drops address from the session cache.
	Forget(address string)
}

// IdentityServiceImpl is the IdentityService backed by a store, a wallet and a per-session cache.
type IdentityServiceImpl struct {
	store     IdentityStore
	wallet    Wallet
	log       *zap.Logger
	newUserID func() (string, error)

	mu    sync.Mutex
	cache map[string]model.Identity
	group singleflight.Group
}

var _ IdentityService = (*IdentityServiceImpl)(nil)

// NewIdentityService constructs IdentityService with required dependencies.
func NewIdentityService(store IdentityStore, w Wallet, log *zap.Logger) *IdentityServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &IdentityServiceImpl{
		store:     store,
		wallet:    w,
		log:       log,
		newUserID: field.NewID,
		cache:     map[string]model.Identity{},
	}
}

// Resolve consults the session cache, then the backend. A backend failure is
// returned, not reported as "absent": treating it as absent would let Ensure
// create a second identity.
func (s *IdentityServiceImpl) Resolve(ctx context.Context, address string) (*model.Identity, error) {
	if address == "" {
		return nil, fmt.Errorf("%w: empty address", errs.ErrValidation)
	}
	if id, ok := s.cached(address); ok {
		return &id, nil
	}
	id, err := s.store.FetchIdentity(ctx, address)
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return nil, nil
	case err != nil:
		return nil, err
	case id == nil:
		return nil, nil
	}
	s.put(address, *id)
	return id, nil
}

// Ensure is single-flight per address: concurrent callers share one
// resolution and at most one identity transaction.
func (s *IdentityServiceImpl) Ensure(ctx context.Context, address string, initialReputation uint64) (model.Identity, error) {
	if address == "" {
		return model.Identity{}, errs.ErrNotConnected
	}
	v, err, _ := s.group.Do(address, func() (any, error) {
		return s.ensure(ctx, address, initialReputation)
	})
	if err != nil {
		return model.Identity{}, err
	}
	return v.(model.Identity), nil
}

func (s *IdentityServiceImpl) ensure(ctx context.Context, address string, rep uint64) (model.Identity, error) {
	existing, err := s.Resolve(ctx, address)
	if err != nil {
		return model.Identity{}, err
	}
	if existing != nil {
		return *existing, nil
	}

	userID, err := s.newUserID()
	if err != nil {
		return model.Identity{}, fmt.Errorf("%w: user id: %w", errs.ErrIdentityCreationFailed, err)
	}
	txID, err := s.wallet.CreateIdentity(ctx, userID, rep)
	if err != nil {
		return model.Identity{}, fmt.Errorf("%w: %w", errs.ErrIdentityCreationFailed, err)
	}

	id := model.Identity{OwnerAddress: address, UserID: userID, ReputationScore: rep}
	// on-chain now; keep it for the session whatever the backend says
	s.put(address, id)
	s.log.Info("identity created", zap.String("address", address), zap.String("tx", txID))

	saved, err := s.store.SaveIdentity(ctx, address, id)
	if err != nil {
		s.log.Warn("identity not persisted", zap.String("address", address), zap.Error(err))
		return id, nil
	}
	s.put(address, saved)
	return saved, nil
}

// Forget drops address from the session cache; the next Resolve goes to the backend.
func (s *IdentityServiceImpl) Forget(address string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, address)
}

func (s *IdentityServiceImpl) cached(address string) (model.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.cache[address]
	return id, ok
}

func (s *IdentityServiceImpl) put(address string, id model.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[address] = id
}
