package walletrpc

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/privcaster/privcaster/internal/errs"
	"github.com/privcaster/privcaster/internal/wallet"
)

// Client implements wallet.Capability against a remote bridge.
type Client struct {
	cc grpc.ClientConnInterface

	mu         sync.RWMutex
	address    string
	token      string
	connecting bool
}

var (
	_ wallet.Capability        = (*Client)(nil)
	_ wallet.HistoryCapability = (*Client)(nil)
)

// NewClient uses cc for all calls.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Dial creates a connection to target and a Client on top of it.
// The caller closes the returned connection.
func Dial(target string, opts ...grpc.DialOption) (*Client, *grpc.ClientConn, error) {
	opts = append(opts, grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)))
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("wallet bridge %s: %w", target, err)
	}
	return NewClient(conn), conn, nil
}

func (c *Client) PublicKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.address
}

func (c *Client) Connected() bool { return c.PublicKey() != "" }

func (c *Client) Connecting() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connecting
}

func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	c.connecting = true
	c.mu.Unlock()

	var out ConnectResponse
	err := c.invoke(ctx, "Connect", &Empty{}, &out)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.connecting = false
	if err != nil {
		return err
	}
	c.address, c.token = out.Address, out.Token
	return nil
}

func (c *Client) Disconnect(ctx context.Context) error {
	err := c.invoke(ctx, "Disconnect", &Empty{}, &Empty{})
	c.mu.Lock()
	c.address, c.token = "", ""
	c.mu.Unlock()
	return err
}

// Status asks the bridge for the wallet's connection state.
func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var out StatusResponse
	err := c.invoke(ctx, "Status", &Empty{}, &out)
	return out, err
}

func (c *Client) RequestTransaction(ctx context.Context, tx wallet.Transaction) (string, error) {
	var out TransactionResponse
	if err := c.invoke(ctx, "RequestTransaction", &tx, &out); err != nil {
		return "", err
	}
	return out.TxID, nil
}

func (c *Client) RequestRecords(ctx context.Context, program string) ([]wallet.Record, error) {
	var out RecordsResponse
	if err := c.invoke(ctx, "RequestRecords", &RecordsRequest{Program: program}, &out); err != nil {
		return nil, err
	}
	return out.Records, nil
}

func (c *Client) RequestTransactionHistory(ctx context.Context, program string) ([]wallet.HistoryEntry, error) {
	var out HistoryResponse
	if err := c.invoke(ctx, "RequestTransactionHistory", &HistoryRequest{Program: program}, &out); err != nil {
		return nil, err
	}
	if out.Transactions == nil {
		return []wallet.HistoryEntry{}, nil
	}
	return out.Transactions, nil
}

func (c *Client) Decrypt(ctx context.Context, ciphertext string) (string, error) {
	var out DecryptResponse
	if err := c.invoke(ctx, "Decrypt", &DecryptRequest{Ciphertext: ciphertext}, &out); err != nil {
		return "", err
	}
	return out.Plaintext, nil
}

func (c *Client) SignMessage(ctx context.Context, msg []byte) ([]byte, error) {
	var out SignResponse
	if err := c.invoke(ctx, "SignMessage", &SignRequest{Message: msg}, &out); err != nil {
		return nil, err
	}
	return out.Signature, nil
}

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	c.mu.RLock()
	tok := c.token
	c.mu.RUnlock()
	if tok != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+tok)
	}
	err := c.cc.Invoke(ctx, fullMethod(method), in, out, grpc.CallContentSubtype(codecName))
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fromStatus(err)
}

// fromStatus restores sentinels the bridge encodes as status codes.
func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.FailedPrecondition:
		if st.Message() == errs.ErrNotConnected.Error() {
			return errs.ErrNotConnected
		}
	case codes.Unauthenticated:
		return fmt.Errorf("%w: %s", errs.ErrUnauthorized, st.Message())
	case codes.Aborted:
		return fmt.Errorf("wallet: %s", st.Message())
	}
	return err
}
