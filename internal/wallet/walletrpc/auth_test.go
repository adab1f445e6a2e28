package walletrpc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

func incoming(pairs ...string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs(pairs...))
}

func TestBearerTokenFromMD(t *testing.T) {
	t.Parallel()

	got, err := bearerTokenFromMD(incoming("authorization", "Bearer abc.def.ghi"))
	require.NoError(t, err)
	require.Equal(t, "abc.def.ghi", got)

	_, err = bearerTokenFromMD(incoming("authorization", "Basic foo"))
	require.Error(t, err)
	_, err = bearerTokenFromMD(incoming("authorization", "Bearer   "))
	require.Error(t, err)
	_, err = bearerTokenFromMD(context.Background())
	require.Error(t, err)
}

func TestTokenRoundTripAndExpiry(t *testing.T) {
	t.Parallel()
	key := []byte("k")

	tok, err := issueToken(key, "aleo1abc", time.Now(), time.Minute)
	require.NoError(t, err)
	sub, err := parseToken(key, tok)
	require.NoError(t, err)
	require.Equal(t, "aleo1abc", sub)

	_, err = parseToken([]byte("other"), tok)
	require.Error(t, err)

	old, err := issueToken(key, "aleo1abc", time.Now().Add(-2*time.Hour), time.Minute)
	require.NoError(t, err)
	_, err = parseToken(key, old)
	require.Error(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.RegisteredClaims{Subject: "aleo1abc"}).SignedString(key)
	require.NoError(t, err)
	_, err = parseToken(key, none)
	require.Error(t, err)
}

func TestAuthUnary(t *testing.T) {
	t.Parallel()
	key := []byte("k")
	ic := AuthUnary(key, "Status")

	var seen string
	h := func(ctx context.Context, _ any) (any, error) {
		seen, _ = AddressFromCtx(ctx)
		return "ok", nil
	}

	_, err := ic(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: fullMethod("Status")}, h)
	require.NoError(t, err)
	require.Empty(t, seen)

	_, err = ic(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: fullMethod("Decrypt")}, h)
	require.Equal(t, codes.Unauthenticated, status.Code(err))

	tok, err := issueToken(key, "aleo1abc", time.Now(), time.Minute)
	require.NoError(t, err)
	_, err = ic(incoming("authorization", "Bearer "+tok), nil, &grpc.UnaryServerInfo{FullMethod: fullMethod("Decrypt")}, h)
	require.NoError(t, err)
	require.Equal(t, "aleo1abc", seen)
}

type fakeAddr struct{}

func (fakeAddr) Network() string { return "tcp" }
func (fakeAddr) String() string  { return "127.0.0.1:12345" }

func TestLoggingUnary_Passthrough(t *testing.T) {
	t.Parallel()
	ic := LoggingUnary(zaptest.NewLogger(t))
	ctx := peer.NewContext(context.Background(), &peer.Peer{Addr: fakeAddr{}})
	info := &grpc.UnaryServerInfo{FullMethod: fullMethod("Status")}

	resp, err := ic(ctx, "req", info, func(context.Context, any) (any, error) { return "ok", nil })
	require.NoError(t, err)
	require.Equal(t, "ok", resp)

	boom := errors.New("boom")
	_, err = ic(ctx, "req", info, func(context.Context, any) (any, error) { return nil, boom })
	require.ErrorIs(t, err, boom)
}

func TestRecoverUnary(t *testing.T) {
	t.Parallel()
	ic := RecoverUnary(zaptest.NewLogger(t))
	info := &grpc.UnaryServerInfo{FullMethod: fullMethod("Decrypt")}

	_, err := ic(context.Background(), nil, info, func(context.Context, any) (any, error) { panic("oh no") })
	require.Equal(t, codes.Internal, status.Code(err))

	resp, err := ic(context.Background(), nil, info, func(context.Context, any) (any, error) { return 42, nil })
	require.NoError(t, err)
	require.Equal(t, 42, resp)
}
