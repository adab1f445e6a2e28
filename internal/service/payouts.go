package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/privcaster/privcaster/internal/errs"
	"github.com/privcaster/privcaster/internal/field"
	"github.com/privcaster/privcaster/internal/wallet"
)

// PayoutWallet is the subset of the wallet adapter payout and group actions call.
type PayoutWallet interface {
	Address() string
	CreatePayoutPool(ctx context.Context, poolID string, total, recipients uint64, criteriaHash string) (string, error)
	ClaimPayout(ctx context.Context, pool wallet.Record, amount uint64, proof, nullifier string) (string, error)
	CreateGroup(ctx context.Context, groupID, name string) (string, error)
	AddGroupMember(ctx context.Context, group wallet.Record, member, memberID string) (string, error)
	GroupPayout(ctx context.Context, pool, membership wallet.Record, amount uint64, nullifier string) (string, error)
	TransactionHistory(ctx context.Context, program string) ([]wallet.HistoryEntry, error)
}

// Receipt is a submitted transaction and the id of the object it created, if any.
type Receipt struct {
	ID   string `json:"id,omitempty"`
	TxID string `json:"tx"`
}

// PayoutService drives private payout pools and groups. Nothing here touches
// the feed or the backend: pools, groups and memberships live in wallet records.
type PayoutService interface {
	CreatePool(ctx context.Context, total, recipients uint64, criteria string) (Receipt, error)
	Claim(ctx context.Context, pool wallet.Record, amount uint64, proof string) (Receipt, error)
	CreateGroup(ctx context.Context, name string) (Receipt, error)
	AddMember(ctx context.Context, group wallet.Record, member string) (Receipt, error)
	GroupPayout(ctx context.Context, pool, membership wallet.Record, amount uint64) (Receipt, error)
	History(ctx context.Context, program string) ([]wallet.HistoryEntry, error)
}

// PayoutServiceImpl is the PayoutService backed by a wallet adapter.
type PayoutServiceImpl struct {
	wallet PayoutWallet
	log    *zap.Logger
	newID  func() (string, error)
}

var _ PayoutService = (*PayoutServiceImpl)(nil)

// NewPayoutService constructs PayoutService.
func NewPayoutService(w PayoutWallet, log *zap.Logger) *PayoutServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &PayoutServiceImpl{wallet: w, log: log, newID: field.NewID}
}

// CreatePool opens a pool of total microcredits split across recipients who
// meet criteria. Only the criteria's hash goes on-chain.
func (s *PayoutServiceImpl) CreatePool(ctx context.Context, total, recipients uint64, criteria string) (Receipt, error) {
	if strings.TrimSpace(criteria) == "" {
		return Receipt{}, fmt.Errorf("%w: missing eligibility criteria", errs.ErrValidation)
	}
	if s.wallet.Address() == "" {
		return Receipt{}, errs.ErrNotConnected
	}
	poolID, err := s.newID()
	if err != nil {
		return Receipt{}, fmt.Errorf("pool id: %w", err)
	}
	tx, err := s.wallet.CreatePayoutPool(ctx, poolID, total, recipients, field.ContentHash(criteria))
	if err != nil {
		return Receipt{}, err
	}
	s.log.Info("payout pool created", zap.String("pool", poolID), zap.Uint64("total", total), zap.String("tx", tx))
	return Receipt{ID: poolID, TxID: tx}, nil
}

// Claim spends amount from pool. The nullifier is bound to the claimant and
// the pool record, so the same record cannot be claimed twice by one address.
func (s *PayoutServiceImpl) Claim(ctx context.Context, pool wallet.Record, amount uint64, proof string) (Receipt, error) {
	if strings.TrimSpace(proof) == "" {
		return Receipt{}, fmt.Errorf("%w: missing eligibility proof", errs.ErrValidation)
	}
	addr := s.wallet.Address()
	if addr == "" {
		return Receipt{}, errs.ErrNotConnected
	}
	tx, err := s.wallet.ClaimPayout(ctx, pool, amount, field.ContentHash(proof), nullifier(addr, pool))
	if err != nil {
		return Receipt{}, err
	}
	s.log.Info("payout claimed", zap.Uint64("amount", amount), zap.String("tx", tx))
	return Receipt{TxID: tx}, nil
}

// CreateGroup opens a private group. The name is stored as a hash.
func (s *PayoutServiceImpl) CreateGroup(ctx context.Context, name string) (Receipt, error) {
	if strings.TrimSpace(name) == "" {
		return Receipt{}, fmt.Errorf("%w: missing group name", errs.ErrValidation)
	}
	if s.wallet.Address() == "" {
		return Receipt{}, errs.ErrNotConnected
	}
	groupID, err := s.newID()
	if err != nil {
		return Receipt{}, fmt.Errorf("group id: %w", err)
	}
	tx, err := s.wallet.CreateGroup(ctx, groupID, field.ContentHash(name))
	if err != nil {
		return Receipt{}, err
	}
	s.log.Info("group created", zap.String("group", groupID), zap.String("tx", tx))
	return Receipt{ID: groupID, TxID: tx}, nil
}

// AddMember admits member to group under a fresh member id.
func (s *PayoutServiceImpl) AddMember(ctx context.Context, group wallet.Record, member string) (Receipt, error) {
	if strings.TrimSpace(member) == "" {
		return Receipt{}, fmt.Errorf("%w: missing member address", errs.ErrValidation)
	}
	if s.wallet.Address() == "" {
		return Receipt{}, errs.ErrNotConnected
	}
	memberID, err := s.newID()
	if err != nil {
		return Receipt{}, fmt.Errorf("member id: %w", err)
	}
	tx, err := s.wallet.AddGroupMember(ctx, group, member, memberID)
	if err != nil {
		return Receipt{}, err
	}
	s.log.Info("group member added", zap.String("member", memberID), zap.String("tx", tx))
	return Receipt{ID: memberID, TxID: tx}, nil
}

// GroupPayout pays amount from pool to the holder of membership.
func (s *PayoutServiceImpl) GroupPayout(ctx context.Context, pool, membership wallet.Record, amount uint64) (Receipt, error) {
	addr := s.wallet.Address()
	if addr == "" {
		return Receipt{}, errs.ErrNotConnected
	}
	n := field.ContentHash(string(pool.Bytes()) + "|" + string(membership.Bytes()))
	tx, err := s.wallet.GroupPayout(ctx, pool, membership, amount, n)
	if err != nil {
		return Receipt{}, err
	}
	s.log.Info("group payout sent", zap.Uint64("amount", amount), zap.String("tx", tx))
	return Receipt{TxID: tx}, nil
}

// History lists the wallet's transactions for program; empty when the wallet
// has no history access.
func (s *PayoutServiceImpl) History(ctx context.Context, program string) ([]wallet.HistoryEntry, error) {
	if program == "" {
		program = wallet.DefaultProgram
	}
	return s.wallet.TransactionHistory(ctx, program)
}

func nullifier(address string, rec wallet.Record) string {
	return field.ContentHash(address + "|" + string(rec.Bytes()))
}
