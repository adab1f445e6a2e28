package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/privcaster/privcaster/internal/errs"
	"github.com/privcaster/privcaster/internal/field"
)

const (
	// DefaultProgram is the PrivCaster program id.
	DefaultProgram = "privcaster_v2.aleo"
	// CreditsProgram holds native credit records.
	CreditsProgram = "credits.aleo"
)

// Fees are per-function transaction fees in microcredits.
type Fees struct {
	Identity    uint64
	Cast        uint64
	Tip         uint64
	PayoutPool  uint64
	Claim       uint64
	Group       uint64
	AddMember   uint64
	GroupPayout uint64
}

// DefaultFees match the deployed program's observed costs.
var DefaultFees = Fees{
	Identity:    35000,
	Cast:        35000,
	Tip:         10000,
	PayoutPool:  60000,
	Claim:       40000,
	Group:       40000,
	AddMember:   45000,
	GroupPayout: 50000,
}

// orDefault fills every zero fee from DefaultFees.
func (f Fees) orDefault() Fees {
	pick := func(v, def uint64) uint64 {
		if v == 0 {
			return def
		}
		return v
	}
	d := DefaultFees
	return Fees{
		Identity:    pick(f.Identity, d.Identity),
		Cast:        pick(f.Cast, d.Cast),
		Tip:         pick(f.Tip, d.Tip),
		PayoutPool:  pick(f.PayoutPool, d.PayoutPool),
		Claim:       pick(f.Claim, d.Claim),
		Group:       pick(f.Group, d.Group),
		AddMember:   pick(f.AddMember, d.AddMember),
		GroupPayout: pick(f.GroupPayout, d.GroupPayout),
	}
}

// Config tunes the adapter.
type Config struct {
	Network Network
	Program string
	Fees    Fees
	Timeout time.Duration // per wallet call; 0 disables
}

// Client adapts a Capability to PrivCaster program calls.
type Client struct {
	cap Capability
	cfg Config
	log *zap.Logger
	now func() time.Time
}

// NewClient wraps cap. Zero config fields, including individual fees, fall back to defaults.
func NewClient(cap Capability, cfg Config, log *zap.Logger) *Client {
	if cfg.Network == "" {
		cfg.Network = TestnetBeta
	}
	if cfg.Program == "" {
		cfg.Program = DefaultProgram
	}
	cfg.Fees = cfg.Fees.orDefault()
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{cap: cap, cfg: cfg, log: log, now: time.Now}
}

// Address returns the connected address or "".
func (c *Client) Address() string { return c.cap.PublicKey() }

// Connected reports whether the wallet has an active session with an address.
func (c *Client) Connected() bool { return c.cap.Connected() && c.cap.PublicKey() != "" }

// Connect opens a wallet session.
func (c *Client) Connect(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.cap.Connect(ctx)
}

// Disconnect closes the wallet session.
func (c *Client) Disconnect(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.cap.Disconnect(ctx)
}

// CreateIdentity submits create_identity(userID, reputation).
func (c *Client) CreateIdentity(ctx context.Context, userID string, reputation uint64) (string, error) {
	return c.submit(ctx, c.cfg.Program, "create_identity", c.cfg.Fees.Identity,
		Literal(userID), Literal(field.U64(reputation)))
}

// CreateCast submits create_cast(castID, contentHash, timestamp).
func (c *Client) CreateCast(ctx context.Context, castID, contentHash string, timestamp int64) (string, error) {
	if timestamp < 0 {
		return "", fmt.Errorf("%w: negative timestamp", errs.ErrValidation)
	}
	return c.submit(ctx, c.cfg.Program, "create_cast", c.cfg.Fees.Cast,
		Literal(castID), Literal(contentHash), Literal(field.U64(uint64(timestamp))))
}

// TipPost submits tip_post(author, amount, postID, now).
func (c *Client) TipPost(ctx context.Context, author string, amount uint64, postID string) (string, error) {
	ts := uint64(c.now().Unix())
	return c.submit(ctx, c.cfg.Program, "tip_post", c.cfg.Fees.Tip,
		Literal(author), Literal(field.U64(amount)), Literal(postID), Literal(field.U64(ts)))
}

// CreatePayoutPool submits create_payout_pool(poolID, total, recipients, criteriaHash, now).
// The wallet receives the pool record that claims and group payouts spend.
func (c *Client) CreatePayoutPool(ctx context.Context, poolID string, total, recipients uint64, criteriaHash string) (string, error) {
	switch {
	case total == 0:
		return "", fmt.Errorf("%w: pool total must be positive", errs.ErrValidation)
	case recipients == 0:
		return "", fmt.Errorf("%w: pool needs at least one recipient", errs.ErrValidation)
	case recipients > total:
		return "", fmt.Errorf("%w: more recipients than microcredits in pool", errs.ErrValidation)
	}
	ts := uint64(c.now().Unix())
	return c.submit(ctx, c.cfg.Program, "create_payout_pool", c.cfg.Fees.PayoutPool,
		Literal(poolID), Literal(field.U64(total)), Literal(field.U64(recipients)),
		Literal(criteriaHash), Literal(field.U64(ts)))
}

// ClaimPayout submits claim_payout(pool, amount, proof, nullifier).
func (c *Client) ClaimPayout(ctx context.Context, pool Record, amount uint64, proof, nullifier string) (string, error) {
	if amount == 0 {
		return "", fmt.Errorf("%w: claim amount must be positive", errs.ErrValidation)
	}
	return c.submit(ctx, c.cfg.Program, "claim_payout", c.cfg.Fees.Claim,
		RecordInput(pool), Literal(field.U64(amount)), Literal(proof), Literal(nullifier))
}

// CreateGroup submits create_group(groupID, name, now).
func (c *Client) CreateGroup(ctx context.Context, groupID, name string) (string, error) {
	ts := uint64(c.now().Unix())
	return c.submit(ctx, c.cfg.Program, "create_group", c.cfg.Fees.Group,
		Literal(groupID), Literal(name), Literal(field.U64(ts)))
}

// AddGroupMember submits add_member(group, member, memberID).
func (c *Client) AddGroupMember(ctx context.Context, group Record, member, memberID string) (string, error) {
	if member == "" {
		return "", fmt.Errorf("%w: missing member address", errs.ErrValidation)
	}
	return c.submit(ctx, c.cfg.Program, "add_member", c.cfg.Fees.AddMember,
		RecordInput(group), Literal(member), Literal(memberID))
}

// GroupPayout submits group_payout(pool, membership, amount, nullifier).
func (c *Client) GroupPayout(ctx context.Context, pool, membership Record, amount uint64, nullifier string) (string, error) {
	if amount == 0 {
		return "", fmt.Errorf("%w: payout amount must be positive", errs.ErrValidation)
	}
	return c.submit(ctx, c.cfg.Program, "group_payout", c.cfg.Fees.GroupPayout,
		RecordInput(pool), RecordInput(membership), Literal(field.U64(amount)), Literal(nullifier))
}

// TransactionHistory lists the wallet's transactions for program. A wallet
// without history access yields an empty list.
func (c *Client) TransactionHistory(ctx context.Context, program string) ([]HistoryEntry, error) {
	if c.cap.PublicKey() == "" {
		return nil, errs.ErrNotConnected
	}
	h, ok := c.cap.(HistoryCapability)
	if !ok {
		c.log.Debug("wallet has no history access")
		return []HistoryEntry{}, nil
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return h.RequestTransactionHistory(ctx, program)
}

// TransferCredits sends amount privately using the first spendable credits
// record. A zero fee uses the tip fee.
func (c *Client) TransferCredits(ctx context.Context, to string, amount, fee uint64) (string, error) {
	if fee == 0 {
		fee = c.cfg.Fees.Tip
	}
	recs, err := c.Records(ctx, CreditsProgram)
	if err != nil {
		return "", err
	}
	if len(recs) == 0 {
		return "", Classify(errors.New("no records available for transfer: insufficient credits"))
	}
	return c.submit(ctx, CreditsProgram, "transfer_private", fee,
		RecordInput(recs[0]), Literal(to), Literal(field.U64(amount)))
}

// Records returns the wallet's records for program.
func (c *Client) Records(ctx context.Context, program string) ([]Record, error) {
	if c.cap.PublicKey() == "" {
		return nil, errs.ErrNotConnected
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.cap.RequestRecords(ctx, program)
}

// Decrypt asks the wallet to decrypt ciphertext.
func (c *Client) Decrypt(ctx context.Context, ciphertext string) (string, error) {
	if c.cap.PublicKey() == "" {
		return "", errs.ErrNotConnected
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.cap.Decrypt(ctx, ciphertext)
}

// Sign signs message and returns the wallet's textual signature.
func (c *Client) Sign(ctx context.Context, message string) (string, error) {
	if c.cap.PublicKey() == "" {
		return "", errs.ErrNotConnected
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	sig, err := c.cap.SignMessage(ctx, []byte(message))
	if err != nil {
		return "", err
	}
	return string(sig), nil
}

func (c *Client) submit(ctx context.Context, program, function string, fee uint64, inputs ...Input) (string, error) {
	sender := c.cap.PublicKey()
	if sender == "" {
		return "", errs.ErrNotConnected
	}
	tx := Transaction{
		Sender:   sender,
		Network:  c.cfg.Network,
		Program:  program,
		Function: function,
		Inputs:   inputs,
		Fee:      fee,
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	txID, err := c.cap.RequestTransaction(ctx, tx)
	if err != nil {
		err = Classify(err)
		c.log.Warn("wallet tx failed",
			zap.String("function", program+"/"+function),
			zap.Duration("dur", time.Since(start)),
			zap.Error(err),
		)
		return "", err
	}
	c.log.Info("wallet tx",
		zap.String("function", program+"/"+function),
		zap.String("tx", txID),
		zap.Duration("dur", time.Since(start)),
	)
	return txID, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.cfg.Timeout)
}
