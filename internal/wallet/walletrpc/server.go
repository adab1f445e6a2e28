package walletrpc

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/privcaster/privcaster/internal/errs"
	"github.com/privcaster/privcaster/internal/wallet"
)

// Server exposes a Capability as a WalletServer.
type Server struct {
	cap     wallet.Capability
	signKey []byte
	ttl     time.Duration
	log     *zap.Logger
	now     func() time.Time
}

var _ WalletServer = (*Server)(nil)

// NewServer wraps cap. Session tokens are signed with signKey and live for ttl.
func NewServer(cap wallet.Capability, signKey []byte, ttl time.Duration, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{cap: cap, signKey: signKey, ttl: ttl, log: log, now: time.Now}
}

// NewGRPCServer builds a grpc.Server with recovery, logging and auth
// interceptors and the wallet service registered.
func NewGRPCServer(s *Server, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(
		RecoverUnary(s.log),
		LoggingUnary(s.log),
		AuthUnary(s.signKey, "Connect", "Status"),
	))
	gs := grpc.NewServer(opts...)
	Register(gs, s)
	return gs
}

// Connect opens the wallet session and returns a token bound to its address.
func (s *Server) Connect(ctx context.Context, _ *Empty) (*ConnectResponse, error) {
	if err := s.cap.Connect(ctx); err != nil {
		return nil, toStatus(err)
	}
	addr := s.cap.PublicKey()
	if addr == "" {
		return nil, status.Error(codes.Unavailable, "wallet returned no address")
	}
	tok, err := issueToken(s.signKey, addr, s.now(), s.ttl)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "issue token: %v", err)
	}
	return &ConnectResponse{Address: addr, Token: tok}, nil
}

func (s *Server) Disconnect(ctx context.Context, _ *Empty) (*Empty, error) {
	if _, err := s.authorize(ctx); err != nil {
		return nil, err
	}
	if err := s.cap.Disconnect(ctx); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

func (s *Server) Status(context.Context, *Empty) (*StatusResponse, error) {
	return &StatusResponse{
		Address:    s.cap.PublicKey(),
		Connected:  s.cap.Connected(),
		Connecting: s.cap.Connecting(),
	}, nil
}

func (s *Server) RequestTransaction(ctx context.Context, tx *wallet.Transaction) (*TransactionResponse, error) {
	addr, err := s.authorize(ctx)
	if err != nil {
		return nil, err
	}
	if tx.Sender != addr {
		return nil, status.Error(codes.PermissionDenied, "sender is not the session address")
	}
	id, err := s.cap.RequestTransaction(ctx, *tx)
	if err != nil {
		return nil, toStatus(err)
	}
	return &TransactionResponse{TxID: id}, nil
}

func (s *Server) RequestRecords(ctx context.Context, req *RecordsRequest) (*RecordsResponse, error) {
	if _, err := s.authorize(ctx); err != nil {
		return nil, err
	}
	if req.Program == "" {
		return nil, status.Error(codes.InvalidArgument, "empty program")
	}
	recs, err := s.cap.RequestRecords(ctx, req.Program)
	if err != nil {
		return nil, toStatus(err)
	}
	return &RecordsResponse{Records: recs}, nil
}

// RequestTransactionHistory returns an empty list when the wallet behind the
// bridge has no history access.
func (s *Server) RequestTransactionHistory(ctx context.Context, req *HistoryRequest) (*HistoryResponse, error) {
	if _, err := s.authorize(ctx); err != nil {
		return nil, err
	}
	if req.Program == "" {
		return nil, status.Error(codes.InvalidArgument, "empty program")
	}
	h, ok := s.cap.(wallet.HistoryCapability)
	if !ok {
		return &HistoryResponse{Transactions: []wallet.HistoryEntry{}}, nil
	}
	txs, err := h.RequestTransactionHistory(ctx, req.Program)
	if err != nil {
		return nil, toStatus(err)
	}
	return &HistoryResponse{Transactions: txs}, nil
}

func (s *Server) Decrypt(ctx context.Context, req *DecryptRequest) (*DecryptResponse, error) {
	if _, err := s.authorize(ctx); err != nil {
		return nil, err
	}
	pt, err := s.cap.Decrypt(ctx, req.Ciphertext)
	if err != nil {
		return nil, toStatus(err)
	}
	return &DecryptResponse{Plaintext: pt}, nil
}

func (s *Server) SignMessage(ctx context.Context, req *SignRequest) (*SignResponse, error) {
	if _, err := s.authorize(ctx); err != nil {
		return nil, err
	}
	sig, err := s.cap.SignMessage(ctx, req.Message)
	if err != nil {
		return nil, toStatus(err)
	}
	return &SignResponse{Signature: sig}, nil
}

// authorize checks that the token subject is still the wallet's address.
func (s *Server) authorize(ctx context.Context) (string, error) {
	addr, ok := AddressFromCtx(ctx)
	if !ok {
		return "", status.Error(codes.Unauthenticated, "no auth")
	}
	current := s.cap.PublicKey()
	if current == "" {
		return "", status.Error(codes.FailedPrecondition, errs.ErrNotConnected.Error())
	}
	if current != addr {
		return "", status.Error(codes.Unauthenticated, "session address changed")
	}
	return addr, nil
}

// toStatus maps wallet errors to gRPC codes. Wallet messages are passed
// through verbatim so the client can classify fee failures.
func toStatus(err error) error {
	switch {
	case errors.Is(err, errs.ErrNotConnected):
		return status.Error(codes.FailedPrecondition, errs.ErrNotConnected.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Aborted, err.Error())
	}
}
