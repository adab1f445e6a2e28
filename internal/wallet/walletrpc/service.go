// Package walletrpc exposes a wallet.Capability over gRPC so a client process
// can drive a wallet running elsewhere (a bridge next to the browser
// extension, or the development wallet).
package walletrpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/privcaster/privcaster/internal/wallet"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "privcaster.wallet.v1.Wallet"

type Empty struct{}

type ConnectResponse struct {
	Address string `json:"address"`
	Token   string `json:"token"`
}

type StatusResponse struct {
	Address    string `json:"address,omitempty"`
	Connected  bool   `json:"connected"`
	Connecting bool   `json:"connecting"`
}

type TransactionResponse struct {
	TxID string `json:"txId"`
}

type RecordsRequest struct {
	Program string `json:"program"`
}

type RecordsResponse struct {
	Records []wallet.Record `json:"records"`
}

type HistoryRequest struct {
	Program string `json:"program"`
}

type HistoryResponse struct {
	Transactions []wallet.HistoryEntry `json:"transactions"`
}

type DecryptRequest struct {
	Ciphertext string `json:"ciphertext"`
}

type DecryptResponse struct {
	Plaintext string `json:"plaintext"`
}

type SignRequest struct {
	Message []byte `json:"message"`
}

type SignResponse struct {
	Signature []byte `json:"signature"`
}

// WalletServer is the server side of the bridge.
type WalletServer interface {
	Connect(context.Context, *Empty) (*ConnectResponse, error)
	Disconnect(context.Context, *Empty) (*Empty, error)
	Status(context.Context, *Empty) (*StatusResponse, error)
	RequestTransaction(context.Context, *wallet.Transaction) (*TransactionResponse, error)
	RequestRecords(context.Context, *RecordsRequest) (*RecordsResponse, error)
	RequestTransactionHistory(context.Context, *HistoryRequest) (*HistoryResponse, error)
	Decrypt(context.Context, *DecryptRequest) (*DecryptResponse, error)
	SignMessage(context.Context, *SignRequest) (*SignResponse, error)
}

func fullMethod(name string) string { return "/" + ServiceName + "/" + name }

// unary builds a MethodDesc whose handler decodes Req and calls call through the interceptor chain.
func unary[Req, Resp any](name string, call func(WalletServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, ic grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(WalletServer)
			if ic == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			return ic(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(*Req))
			})
		},
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*WalletServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Connect", WalletServer.Connect),
		unary("Disconnect", WalletServer.Disconnect),
		unary("Status", WalletServer.Status),
		unary("RequestTransaction", WalletServer.RequestTransaction),
		unary("RequestRecords", WalletServer.RequestRecords),
		unary("RequestTransactionHistory", WalletServer.RequestTransactionHistory),
		unary("Decrypt", WalletServer.Decrypt),
		unary("SignMessage", WalletServer.SignMessage),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "privcaster/wallet/v1/wallet",
}

// Register attaches srv to a gRPC server.
func Register(s grpc.ServiceRegistrar, srv WalletServer) {
	s.RegisterService(&serviceDesc, srv)
}
