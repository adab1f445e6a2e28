// Package devwallet is an in-process wallet for local development and tests.
// It keeps a single account with an ed25519 key, a credit balance and
// encrypted records; it does not prove or broadcast anything.
package devwallet

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/privcaster/privcaster/internal/errs"
	"github.com/privcaster/privcaster/internal/wallet"
)

const (
	addressPrefix   = "aleo1"
	signaturePrefix = "sign1"
	txPrefix        = "at1"
)

// Wallet implements wallet.Capability in memory.
type Wallet struct {
	log     *zap.Logger
	priv    ed25519.PrivateKey
	address string
	viewKey []byte

	mu         sync.Mutex
	connected  bool
	connecting bool
	balance    uint64
	records    map[string][]wallet.Record
	nullifiers map[string]struct{}
	history    []wallet.HistoryEntry
}

var (
	_ wallet.Capability        = (*Wallet)(nil)
	_ wallet.HistoryCapability = (*Wallet)(nil)
)

// creditsRecord is the plaintext of a credits.aleo record.
type creditsRecord struct {
	Owner        string `json:"owner"`
	Microcredits uint64 `json:"microcredits"`
}

// programRecord is the plaintext of a record issued by a PrivCaster program.
type programRecord struct {
	Owner    string   `json:"owner"`
	Kind     string   `json:"kind"`
	Function string   `json:"function"`
	Data     []string `json:"data"`
}

// outputs lists the record kinds each program function issues to the caller.
// A spent record of the same kind is re-issued with its original contents.
var outputs = map[string][]string{
	"create_identity":    {"identity"},
	"create_cast":        {"cast"},
	"create_payout_pool": {"pool"},
	"claim_payout":       {"pool"},
	"create_group":       {"group"},
	"add_member":         {"group", "membership"},
	"group_payout":       {"pool", "membership"},
}

// nullified functions take a nullifier as their last input.
var nullified = map[string]bool{"claim_payout": true, "group_payout": true}

// New creates a wallet from a 32-byte seed (random when nil) holding balance microcredits.
func New(seed []byte, balance uint64, log *zap.Logger) (*Wallet, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if seed == nil {
		var err error
		if seed, err = randBytes(ed25519.SeedSize); err != nil {
			return nil, err
		}
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes", ed25519.SeedSize)
	}
	viewKey, err := deriveViewKey(seed)
	if err != nil {
		return nil, err
	}
	priv := ed25519.NewKeyFromSeed(seed)
	w := &Wallet{
		log:     log,
		priv:    priv,
		address: AddressOf(priv.Public().(ed25519.PublicKey)),
		viewKey: viewKey,
		balance:    balance,
		records:    map[string][]wallet.Record{},
		nullifiers: map[string]struct{}{},
	}
	if balance > 0 {
		if err := w.mint(balance); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// AddressOf renders a public key as a wallet address.
func AddressOf(pub ed25519.PublicKey) string { return addressPrefix + hex.EncodeToString(pub) }

// Address returns the account address regardless of connection state.
func (w *Wallet) Address() string { return w.address }

// PublicKey returns the address while connected.
func (w *Wallet) PublicKey() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.connected {
		return ""
	}
	return w.address
}

func (w *Wallet) Connected() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.connected
}

func (w *Wallet) Connecting() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.connecting
}

func (w *Wallet) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.connecting = false
	w.connected = true
	w.log.Info("dev wallet connected", zap.String("address", w.address))
	return nil
}

func (w *Wallet) Disconnect(context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.connected = false
	return nil
}

// Balance returns the spendable microcredits.
func (w *Wallet) Balance() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balance
}

// History returns the accepted transactions, oldest first.
func (w *Wallet) History() []wallet.HistoryEntry {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]wallet.HistoryEntry(nil), w.history...)
}

// RequestTransactionHistory returns the accepted transactions for program, oldest first.
func (w *Wallet) RequestTransactionHistory(ctx context.Context, program string) ([]wallet.HistoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.connected {
		return nil, errs.ErrNotConnected
	}
	out := []wallet.HistoryEntry{}
	for _, h := range w.history {
		if h.Program == program {
			out = append(out, h)
		}
	}
	return out, nil
}

// RequestTransaction checks sender and fee, spends the input records, debits
// the fee and issues the function's output records. Nothing changes on error.
func (w *Wallet) RequestTransaction(ctx context.Context, tx wallet.Transaction) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.connected {
		return "", errs.ErrNotConnected
	}
	if tx.Sender != w.address {
		return "", errors.New("sender does not match wallet account")
	}
	if tx.Program == "" || tx.Function == "" {
		return "", errors.New("missing program or function")
	}
	if tx.Fee > w.balance {
		return "", errors.New("No records for fee")
	}

	nullifier := ""
	if nullified[tx.Function] && tx.Program != wallet.CreditsProgram {
		if n := len(tx.Inputs); n > 0 {
			nullifier = tx.Inputs[n-1].Literal
		}
		if nullifier == "" {
			return "", errors.New("missing nullifier")
		}
		if _, used := w.nullifiers[nullifier]; used {
			return "", errors.New("nullifier already used")
		}
	}

	remaining, spent, err := w.spend(tx.Program, tx.Inputs)
	if err != nil {
		return "", err
	}
	issued, err := w.issue(tx, spent)
	if err != nil {
		return "", err
	}
	raw, err := randBytes(16)
	if err != nil {
		return "", err
	}
	id := txPrefix + hex.EncodeToString(raw)

	w.records[tx.Program] = append(remaining, issued...)
	if nullifier != "" {
		w.nullifiers[nullifier] = struct{}{}
	}
	w.balance -= tx.Fee
	w.history = append(w.history, wallet.HistoryEntry{ID: id, Transaction: tx})
	w.log.Info("dev wallet tx",
		zap.String("tx", id),
		zap.String("function", tx.Program+"/"+tx.Function),
		zap.Uint64("fee", tx.Fee),
		zap.Uint64("balance", w.balance),
	)
	return id, nil
}

func (w *Wallet) RequestRecords(ctx context.Context, program string) ([]wallet.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.connected {
		return nil, errs.ErrNotConnected
	}
	return append([]wallet.Record(nil), w.records[program]...), nil
}

// Decrypt opens a ciphertext produced by Encrypt or held in a record.
func (w *Wallet) Decrypt(ctx context.Context, ciphertext string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !w.Connected() {
		return "", errs.ErrNotConnected
	}
	blob, err := decodeCiphertext(ciphertext)
	if err != nil {
		return "", err
	}
	pt, err := open(w.viewKey, []byte(w.address), blob)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(pt), nil
}

// Encrypt produces a ciphertext only this wallet can decrypt.
func (w *Wallet) Encrypt(plaintext string) (string, error) {
	blob, err := seal(w.viewKey, []byte(w.address), []byte(plaintext))
	if err != nil {
		return "", err
	}
	return encodeCiphertext(blob), nil
}

// SignMessage returns a textual ed25519 signature "sign1<hex>".
func (w *Wallet) SignMessage(ctx context.Context, msg []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !w.Connected() {
		return nil, errs.ErrNotConnected
	}
	return []byte(signaturePrefix + hex.EncodeToString(ed25519.Sign(w.priv, msg))), nil
}

// Verify checks a signature produced by SignMessage against address.
func Verify(address string, msg []byte, sig string) bool {
	pub, err := hex.DecodeString(strings.TrimPrefix(address, addressPrefix))
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(sig, signaturePrefix))
	if err != nil {
		return false
	}
	return ed25519.Verify(pub, msg, raw)
}

// mint stores a credits record worth amount. Callers hold w.mu or own w exclusively.
func (w *Wallet) mint(amount uint64) error {
	pt, err := json.Marshal(creditsRecord{Owner: w.address, Microcredits: amount})
	if err != nil {
		return err
	}
	ct, err := w.Encrypt(string(pt))
	if err != nil {
		return err
	}
	w.records[wallet.CreditsProgram] = append(w.records[wallet.CreditsProgram], wallet.NewRecord([]byte(ct)))
	return nil
}

// spend returns program's records without the ones tx spends, plus the
// decoded program records among them. w.records is not modified. Callers hold w.mu.
func (w *Wallet) spend(program string, inputs []wallet.Input) ([]wallet.Record, []programRecord, error) {
	remaining := slices.Clone(w.records[program])
	var spent []programRecord
	for _, in := range inputs {
		if in.Record == nil {
			continue
		}
		want := string(in.Record.Bytes())
		i := slices.IndexFunc(remaining, func(r wallet.Record) bool { return string(r.Bytes()) == want })
		if i < 0 {
			return nil, nil, errors.New("record already spent or unknown")
		}
		remaining = slices.Delete(remaining, i, i+1)
		if pr, ok := w.readProgramRecord(want); ok {
			spent = append(spent, pr)
		}
	}
	return remaining, spent, nil
}

// issue encrypts the output records of tx. Callers hold w.mu.
func (w *Wallet) issue(tx wallet.Transaction, spent []programRecord) ([]wallet.Record, error) {
	if tx.Program == wallet.CreditsProgram {
		return nil, nil
	}
	var data []string
	for _, in := range tx.Inputs {
		if in.Record == nil {
			data = append(data, in.Literal)
		}
	}
	var out []wallet.Record
	for _, kind := range outputs[tx.Function] {
		pr := programRecord{Owner: w.address, Kind: kind, Function: tx.Function, Data: data}
		if i := slices.IndexFunc(spent, func(s programRecord) bool { return s.Kind == kind }); i >= 0 {
			pr = spent[i]
		}
		pt, err := json.Marshal(pr)
		if err != nil {
			return nil, err
		}
		ct, err := w.Encrypt(string(pt))
		if err != nil {
			return nil, err
		}
		out = append(out, wallet.NewRecord([]byte(ct)))
	}
	return out, nil
}

func (w *Wallet) readProgramRecord(ciphertext string) (programRecord, bool) {
	blob, err := decodeCiphertext(ciphertext)
	if err != nil {
		return programRecord{}, false
	}
	pt, err := open(w.viewKey, []byte(w.address), blob)
	if err != nil {
		return programRecord{}, false
	}
	var pr programRecord
	if err := json.Unmarshal(pt, &pr); err != nil || pr.Kind == "" {
		return programRecord{}, false
	}
	return pr, true
}
