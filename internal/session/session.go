// Package session ties one user's wallet, identity and feed together.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/privcaster/privcaster/internal/feed"
	"github.com/privcaster/privcaster/internal/model"
	"github.com/privcaster/privcaster/internal/persistence"
	"github.com/privcaster/privcaster/internal/service"
	"github.com/privcaster/privcaster/internal/wallet"
)

// Config tunes a session.
type Config struct {
	InitialReputation uint64
	Now               func() time.Time // nil means time.Now
}

// Session is the explicit owner of the state the UI reads: the connected
// wallet, the resolved identity and the feed.
type Session struct {
	wallet     *wallet.Client
	feed       *feed.Reconciler
	identities *service.IdentityServiceImpl
	posts      *service.PostServiceImpl
	payouts    *service.PayoutServiceImpl
	log        *zap.Logger

	mu       sync.Mutex
	address  string
	identity *model.Identity
}

// New wires services around w and store.
func New(w *wallet.Client, store persistence.Store, cfg Config, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.InitialReputation == 0 {
		cfg.InitialReputation = service.DefaultReputation
	}
	f := feed.NewReconciler(store, log.Named("feed"), cfg.Now)
	ids := service.NewIdentityService(store, w, log.Named("identity"))
	return &Session{
		wallet:     w,
		feed:       f,
		identities: ids,
		posts:      service.NewPostService(w, ids, store, f, cfg.InitialReputation, log.Named("posts")),
		payouts:    service.NewPayoutService(w, log.Named("payouts")),
		log:        log,
	}
}

// Open loads the feed. Backend failures are logged and yield an empty feed.
func (s *Session) Open(ctx context.Context) feed.Feed {
	return s.feed.LoadInitial(ctx)
}

// Connect opens the wallet and resolves the address's identity, which may be nil.
func (s *Session) Connect(ctx context.Context) (*model.Identity, error) {
	if err := s.wallet.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect wallet: %w", err)
	}
	addr := s.wallet.Address()
	s.mu.Lock()
	s.address = addr
	s.mu.Unlock()

	id, err := s.identities.Resolve(ctx, addr)
	if err != nil {
		return nil, err
	}
	s.setIdentity(id)
	s.log.Info("session connected", zap.String("address", addr), zap.Bool("identity", id != nil))
	return id, nil
}

// Close forgets the identity and disconnects the wallet.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	addr := s.address
	s.address, s.identity = "", nil
	s.mu.Unlock()
	if addr != "" {
		s.identities.Forget(addr)
	}
	return s.wallet.Disconnect(ctx)
}

// Address is the connected wallet address or "".
func (s *Session) Address() string { return s.wallet.Address() }

// Identity returns the identity resolved or created in this session.
func (s *Session) Identity() *model.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == nil {
		return nil
	}
	id := *s.identity
	return &id
}

// EnsureIdentity creates the identity now instead of on first post.
func (s *Session) EnsureIdentity(ctx context.Context) (model.Identity, error) {
	id, err := s.identities.Ensure(ctx, s.wallet.Address(), s.posts.Reputation())
	if err != nil {
		return model.Identity{}, err
	}
	s.setIdentity(&id)
	return id, nil
}

// Feed returns the current feed, newest first.
func (s *Session) Feed() feed.Feed { return s.feed.Snapshot() }

// Refresh merges the backend listing into the feed.
func (s *Session) Refresh(ctx context.Context) (feed.Feed, error) { return s.feed.Refresh(ctx) }

// CreatePost submits a cast and records the identity it was posted under.
func (s *Session) CreatePost(ctx context.Context, text string, isPrivate bool) (service.Submission, error) {
	sub, err := s.posts.CreatePost(ctx, text, isPrivate)
	if sub.State == model.Confirmed {
		if id, rerr := s.identities.Resolve(ctx, s.wallet.Address()); rerr == nil {
			s.setIdentity(id)
		}
	}
	return sub, err
}

// ToggleLike flips the viewer's like on id.
func (s *Session) ToggleLike(id string) (feed.Feed, bool) { return s.posts.ToggleLike(id) }

// AddReply bumps the reply counter of id.
func (s *Session) AddReply(id string) (feed.Feed, bool) { return s.posts.AddReply(id) }

// TipPost sends amount microcredits to the author of postID.
func (s *Session) TipPost(ctx context.Context, author string, amount int64, postID string) (string, error) {
	return s.posts.TipPost(ctx, author, amount, postID)
}

// DeletePost removes id from the backend and the feed.
func (s *Session) DeletePost(ctx context.Context, id string) (feed.Feed, error) {
	return s.posts.DeletePost(ctx, id)
}

// Records lists the wallet's records for program.
func (s *Session) Records(ctx context.Context, program string) ([]wallet.Record, error) {
	return s.wallet.Records(ctx, program)
}

// Decrypt asks the wallet to decrypt ciphertext.
func (s *Session) Decrypt(ctx context.Context, ciphertext string) (string, error) {
	return s.wallet.Decrypt(ctx, ciphertext)
}

// Sign signs message with the wallet key.
func (s *Session) Sign(ctx context.Context, message string) (string, error) {
	return s.wallet.Sign(ctx, message)
}

// Transfer sends private credits to another address.
func (s *Session) Transfer(ctx context.Context, to string, amount, fee uint64) (string, error) {
	return s.wallet.TransferCredits(ctx, to, amount, fee)
}

// CreatePayoutPool opens a private pool of total microcredits for recipients
// meeting criteria.
func (s *Session) CreatePayoutPool(ctx context.Context, total, recipients uint64, criteria string) (service.Receipt, error) {
	return s.payouts.CreatePool(ctx, total, recipients, criteria)
}

// ClaimPayout claims amount from a pool record the wallet holds.
func (s *Session) ClaimPayout(ctx context.Context, pool wallet.Record, amount uint64, proof string) (service.Receipt, error) {
	return s.payouts.Claim(ctx, pool, amount, proof)
}

// CreateGroup opens a private group.
func (s *Session) CreateGroup(ctx context.Context, name string) (service.Receipt, error) {
	return s.payouts.CreateGroup(ctx, name)
}

// AddGroupMember admits member to the group record.
func (s *Session) AddGroupMember(ctx context.Context, group wallet.Record, member string) (service.Receipt, error) {
	return s.payouts.AddMember(ctx, group, member)
}

// GroupPayout pays amount from pool to the holder of membership.
func (s *Session) GroupPayout(ctx context.Context, pool, membership wallet.Record, amount uint64) (service.Receipt, error) {
	return s.payouts.GroupPayout(ctx, pool, membership, amount)
}

// TransactionHistory lists the wallet's transactions for program.
func (s *Session) TransactionHistory(ctx context.Context, program string) ([]wallet.HistoryEntry, error) {
	return s.payouts.History(ctx, program)
}

func (s *Session) setIdentity(id *model.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == nil {
		s.identity = nil
		return
	}
	cp := *id
	s.identity = &cp
}
