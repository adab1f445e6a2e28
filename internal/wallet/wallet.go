// Package wallet defines the wallet capability the client core consumes and
// a thin adapter that turns PrivCaster actions into wallet transactions.
package wallet

import (
	"context"
	"encoding/json"
)

// Network names the chain a transaction targets.
type Network string

// TestnetBeta is the network the PrivCaster programs are deployed on.
const TestnetBeta Network = "testnetbeta"

// Capability is the operation set exposed by an external wallet. The core
// calls it but never implements transaction building, proving or decryption.
type Capability interface {
	// PublicKey returns the connected address, or "" when disconnected.
	PublicKey() string
	// Connected reports whether a wallet session is established.
	Connected() bool
	// Connecting reports whether a connect request is pending.
	Connecting() bool
	// Connect establishes a wallet session.
	Connect(ctx context.Context) error
	// Disconnect ends the wallet session.
	Disconnect(ctx context.Context) error
	// RequestTransaction signs and broadcasts tx and returns its id.
	RequestTransaction(ctx context.Context, tx Transaction) (string, error)
	// RequestRecords returns the caller's records owned by program.
	RequestRecords(ctx context.Context, program string) ([]Record, error)
	// Decrypt decrypts a ciphertext addressed to the wallet.
	Decrypt(ctx context.Context, ciphertext string) (string, error)
	// SignMessage signs msg with the account key.
	SignMessage(ctx context.Context, msg []byte) ([]byte, error)
}

// HistoryCapability is implemented by wallets that were granted access to the
// account's on-chain transaction history.
type HistoryCapability interface {
	RequestTransactionHistory(ctx context.Context, program string) ([]HistoryEntry, error)
}

// HistoryEntry is one transaction the wallet submitted.
type HistoryEntry struct {
	ID string `json:"id"`
	Transaction
}

// Record is an opaque record handle. Only wallet implementations look inside.
type Record struct{ raw []byte }

// NewRecord wraps wallet-specific record bytes.
func NewRecord(raw []byte) Record { return Record{raw: append([]byte(nil), raw...)} }

// Bytes exposes the record bytes to wallet implementations.
func (r Record) Bytes() []byte { return append([]byte(nil), r.raw...) }

// MarshalJSON encodes the record as an opaque base64 string.
func (r Record) MarshalJSON() ([]byte, error) { return json.Marshal(r.raw) }

// UnmarshalJSON decodes a record produced by MarshalJSON.
func (r *Record) UnmarshalJSON(b []byte) error { return json.Unmarshal(b, &r.raw) }

// Input is one transaction input: either a literal or a record handle.
type Input struct {
	Literal string  `json:"literal,omitempty"`
	Record  *Record `json:"record,omitempty"`
}

// Literal builds a literal input such as "10u64" or "123field".
func Literal(v string) Input { return Input{Literal: v} }

// RecordInput passes a record back to the wallet untouched.
func RecordInput(r Record) Input { return Input{Record: &r} }

// Transaction is an execution request for a program function.
type Transaction struct {
	Sender   string  `json:"sender"`
	Network  Network `json:"network"`
	Program  string  `json:"program"`
	Function string  `json:"function"`
	Inputs   []Input `json:"inputs"`
	Fee      uint64  `json:"fee"`
}
