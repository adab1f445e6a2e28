package walletrpc

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/privcaster/privcaster/internal/errs"
	"github.com/privcaster/privcaster/internal/wallet"
	"github.com/privcaster/privcaster/internal/wallet/devwallet"
)

var testKey = []byte("bridge-secret")

func startBridge(t *testing.T, balance uint64) (*Client, *devwallet.Wallet) {
	t.Helper()
	dw, err := devwallet.New(bytes.Repeat([]byte{3}, 32), balance, zaptest.NewLogger(t))
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	gs := NewGRPCServer(NewServer(dw, testKey, time.Hour, zaptest.NewLogger(t)))
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	c, conn, err := Dial("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return c, dw
}

func TestBridge_ConnectAndTransact(t *testing.T) {
	c, dw := startBridge(t, 100000)
	ctx := context.Background()

	st, err := c.Status(ctx)
	require.NoError(t, err)
	require.False(t, st.Connected)

	require.NoError(t, c.Connect(ctx))
	require.Equal(t, dw.Address(), c.PublicKey())
	require.True(t, c.Connected())

	wc := wallet.NewClient(c, wallet.Config{}, zaptest.NewLogger(t))
	id, err := wc.CreateIdentity(ctx, "7field", 10)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.Equal(t, uint64(100000-35000), dw.Balance())
}

func TestBridge_FeeFailurePassesThrough(t *testing.T) {
	c, _ := startBridge(t, 100)
	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))

	wc := wallet.NewClient(c, wallet.Config{}, zaptest.NewLogger(t))
	_, err := wc.CreateCast(ctx, "1field", "2field", 1700000000)
	require.ErrorIs(t, err, errs.ErrInsufficientFunds)
}

func TestBridge_RecordsDecryptSign(t *testing.T) {
	c, dw := startBridge(t, 5000)
	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))

	recs, err := c.RequestRecords(ctx, wallet.CreditsProgram)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	pt, err := c.Decrypt(ctx, string(recs[0].Bytes()))
	require.NoError(t, err)
	require.Contains(t, pt, dw.Address())

	sig, err := c.SignMessage(ctx, []byte("hi"))
	require.NoError(t, err)
	require.True(t, devwallet.Verify(dw.Address(), []byte("hi"), string(sig)))
}

func TestBridge_PayoutRecordsAndHistory(t *testing.T) {
	c, dw := startBridge(t, 1_000_000)
	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))
	wc := wallet.NewClient(c, wallet.Config{}, zaptest.NewLogger(t))

	_, err := wc.CreatePayoutPool(ctx, "1field", 1000, 2, "2field")
	require.NoError(t, err)
	pools, err := wc.Records(ctx, wallet.DefaultProgram)
	require.NoError(t, err)
	require.Len(t, pools, 1)

	// a record round-trips through the bridge and is spendable
	_, err = wc.ClaimPayout(ctx, pools[0], 100, "3field", "4field")
	require.NoError(t, err)

	h, err := wc.TransactionHistory(ctx, wallet.DefaultProgram)
	require.NoError(t, err)
	require.Len(t, h, 2)
	require.Equal(t, "create_payout_pool", h[0].Function)
	require.Equal(t, "claim_payout", h[1].Function)
	require.Equal(t, dw.History()[1].ID, h[1].ID)
	require.Equal(t, pools[0].Bytes(), h[1].Inputs[0].Record.Bytes())
}

func TestBridge_RequiresSession(t *testing.T) {
	c, dw := startBridge(t, 5000)
	ctx := context.Background()

	_, err := c.RequestRecords(ctx, wallet.CreditsProgram)
	require.ErrorIs(t, err, errs.ErrUnauthorized)

	require.NoError(t, c.Connect(ctx))
	_, err = c.RequestTransaction(ctx, wallet.Transaction{Sender: "aleo1other", Program: "p.aleo", Function: "f"})
	require.Error(t, err)

	// wallet dropped the session behind the bridge's back
	require.NoError(t, dw.Disconnect(ctx))
	_, err = c.SignMessage(ctx, []byte("x"))
	require.ErrorIs(t, err, errs.ErrNotConnected)
}

func TestBridge_Disconnect(t *testing.T) {
	c, dw := startBridge(t, 0)
	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))
	require.NoError(t, c.Disconnect(ctx))
	require.Empty(t, c.PublicKey())
	require.False(t, dw.Connected())
}
