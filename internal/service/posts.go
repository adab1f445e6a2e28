package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/privcaster/privcaster/internal/errs"
	"github.com/privcaster/privcaster/internal/feed"
	"github.com/privcaster/privcaster/internal/field"
	"github.com/privcaster/privcaster/internal/model"
)

// PostStore persists post documents.
type PostStore interface {
	SavePost(ctx context.Context, p model.Post) (model.Post, error)
	DeletePost(ctx context.Context, id string) error
}

// Submission is the outcome of CreatePost.
type Submission struct {
	State model.PostState
	TxID  string
	Post  model.Post
	// PersistErr is set when the cast is on-chain but the backend write
	// failed; the post stays in the feed flagged Unconfirmed.
	PersistErr error
}

// PostService drives post actions against the wallet, backend and feed.
type PostService interface {
	CreatePost(ctx context.Context, text string, isPrivate bool) (Submission, error)
	ToggleLike(id string) (feed.Feed, bool)
	AddReply(id string) (feed.Feed, bool)
	TipPost(ctx context.Context, author string, amount int64, postID string) (string, error)
	DeletePost(ctx context.Context, id string) (feed.Feed, error)
}

// PostServiceImpl is the PostService backed by a wallet, a post store and the feed reconciler.
type PostServiceImpl struct {
	wallet     Wallet
	identities IdentityService
	store      PostStore
	feed       *feed.Reconciler
	log        *zap.Logger
	reputation uint64
	now        func() time.Time
	newID      func() (string, error)
}

var _ PostService = (*PostServiceImpl)(nil)

// NewPostService constructs PostService. Identities are created on first
// post with initialReputation.
func NewPostService(w Wallet, ids IdentityService, store PostStore, f *feed.Reconciler, initialReputation uint64, log *zap.Logger) *PostServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &PostServiceImpl{
		wallet:     w,
		identities: ids,
		store:      store,
		feed:       f,
		log:        log,
		reputation: initialReputation,
		now:        time.Now,
		newID:      field.NewID,
	}
}

// CreatePost submits a cast and, once it is on-chain, shows and persists it.
// A wallet failure leaves the feed untouched.
func (s *PostServiceImpl) CreatePost(ctx context.Context, text string, isPrivate bool) (Submission, error) {
	sub := Submission{State: model.Composing}

	address := s.wallet.Address()
	if address == "" {
		return sub, errs.ErrNotConnected
	}
	if strings.TrimSpace(text) == "" {
		return sub, fmt.Errorf("%w: empty post", errs.ErrValidation)
	}

	identity, err := s.identities.Ensure(ctx, address, s.reputation)
	if err != nil {
		return sub, err
	}

	castID, err := s.newID()
	if err != nil {
		return sub, fmt.Errorf("cast id: %w", err)
	}
	ts := s.now().Unix()

	sub.State = model.Submitting
	txID, err := s.wallet.CreateCast(ctx, castID, field.ContentHash(text), ts)
	if err != nil {
		sub.State = model.FailedAndDiscarded
		return sub, err
	}
	sub.State = model.Confirmed
	sub.TxID = txID

	local := model.Post{
		ID:           field.Strip(castID),
		AuthorHandle: field.AnonHandle(identity.UserID),
		Text:         text,
		CreatedAt:    ts,
		IsPrivate:    isPrivate,
		IsOnChain:    true,
		OriginTxID:   txID,
	}
	s.feed.InsertPending(local)

	saved, err := s.store.SavePost(ctx, withoutLocalFlags(local))
	if err != nil {
		s.log.Warn("post not persisted; kept locally",
			zap.String("id", local.ID), zap.String("tx", txID), zap.Error(err))
		s.feed.MarkUnconfirmed(local.ID)
		sub.PersistErr = err
		sub.Post, _ = s.feed.Find(local.ID)
		return sub, nil
	}

	if _, kept := s.feed.ReconcileConfirmed(local.ID, saved); !kept {
		// deleted by the user while the save was in flight
		if err := s.store.DeletePost(ctx, local.ID); err != nil && !errors.Is(err, errs.ErrNotFound) {
			s.log.Warn("delete of removed post failed",
				zap.String("id", local.ID), zap.String("tx", txID), zap.Error(err))
			sub.PersistErr = err
		}
		sub.Post = withoutLocalFlags(saved)
		s.log.Info("post removed before save settled", zap.String("id", local.ID), zap.String("tx", txID))
		return sub, nil
	}
	sub.Post, _ = s.feed.Find(local.ID)
	s.log.Info("post created", zap.String("id", local.ID), zap.String("tx", txID))
	return sub, nil
}

// Reputation is the score new identities start with.
func (s *PostServiceImpl) Reputation() uint64 { return s.reputation }

func withoutLocalFlags(p model.Post) model.Post {
	p.Unconfirmed = false
	p.TimeLabel = ""
	return p
}

// ToggleLike flips the viewer's like locally.
func (s *PostServiceImpl) ToggleLike(id string) (feed.Feed, bool) { return s.feed.ToggleLike(id) }

// AddReply bumps the reply counter locally.
func (s *PostServiceImpl) AddReply(id string) (feed.Feed, bool) { return s.feed.AddReply(id) }

// TipPost validates input before any wallet call and never touches the feed.
func (s *PostServiceImpl) TipPost(ctx context.Context, author string, amount int64, postID string) (string, error) {
	switch {
	case strings.TrimSpace(author) == "":
		return "", fmt.Errorf("%w: missing author address", errs.ErrValidation)
	case strings.TrimSpace(postID) == "":
		return "", fmt.Errorf("%w: missing post id", errs.ErrValidation)
	case amount <= 0:
		return "", fmt.Errorf("%w: tip amount must be positive", errs.ErrValidation)
	}
	if s.wallet.Address() == "" {
		return "", errs.ErrNotConnected
	}
	txID, err := s.wallet.TipPost(ctx, author, uint64(amount), postID)
	if err != nil {
		return "", err
	}
	s.log.Info("tip sent", zap.String("post", postID), zap.Int64("amount", amount), zap.String("tx", txID))
	return txID, nil
}

// DeletePost removes id from backend and feed, all or nothing.
func (s *PostServiceImpl) DeletePost(ctx context.Context, id string) (feed.Feed, error) {
	f, err := s.feed.Remove(ctx, id)
	if err != nil && !errors.Is(err, errs.ErrValidation) {
		s.log.Warn("delete failed", zap.String("id", id), zap.Error(err))
	}
	return f, err
}
